package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/recyclesim/internal/clock"
	"github.com/smallbiznis/recyclesim/internal/dbtest"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	"github.com/smallbiznis/recyclesim/internal/recycler/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestServiceResetAndGet(t *testing.T) {
	db := dbtest.Open(t, &recyclerdomain.Plant{}, &recyclerdomain.Recycler{})
	node := dbtest.Node(t)
	fc := clock.NewFakeClock(time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	ledger := repository.NewLedger(fc)
	ctx := context.Background()

	rec := &recyclerdomain.Recycler{
		ID: node.Generate(), PlantID: node.Generate(), Code: "rc-a",
		Capacity: 5, FillCycle: 1, CreatedAt: fc.Now(), UpdatedAt: fc.Now(),
	}
	require.NoError(t, repo.InsertRecycler(ctx, db, rec))
	_, err := ledger.TryReserve(ctx, db, rec.ID, 5)
	require.NoError(t, err)

	svc := New(Params{DB: db, Log: zap.NewNop(), Clock: fc, Repo: repo, Ledger: ledger})

	got, err := svc.Get(ctx, rec.ID.String())
	require.NoError(t, err)
	assert.True(t, got.Full)
	assert.Equal(t, int64(0), got.Remaining)

	reset, err := svc.Reset(ctx, rec.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(0), reset.CurrentLoad)
	assert.Equal(t, int64(2), reset.FillCycle)
	assert.False(t, reset.Full)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(5), list[0].Remaining)
}

func TestServiceErrors(t *testing.T) {
	db := dbtest.Open(t, &recyclerdomain.Plant{}, &recyclerdomain.Recycler{})
	fc := clock.NewFakeClock(time.Now())
	svc := New(Params{DB: db, Log: zap.NewNop(), Clock: fc, Repo: repository.Provide(), Ledger: repository.NewLedger(fc)})
	ctx := context.Background()

	_, err := svc.Get(ctx, "not-an-id")
	assert.ErrorIs(t, err, recyclerdomain.ErrInvalidID)

	_, err = svc.Get(ctx, "12345")
	assert.ErrorIs(t, err, recyclerdomain.ErrNotFound)

	_, err = svc.Reset(ctx, "12345")
	assert.ErrorIs(t, err, recyclerdomain.ErrNotFound)
}
