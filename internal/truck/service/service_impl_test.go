package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/recyclesim/internal/clock"
	"github.com/smallbiznis/recyclesim/internal/dbtest"
	"github.com/smallbiznis/recyclesim/internal/material"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
	"github.com/smallbiznis/recyclesim/internal/truck/guard"
	"github.com/smallbiznis/recyclesim/internal/truck/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func TestTruckDeliveryCycle(t *testing.T) {
	db := dbtest.Open(t, &truckdomain.Truck{})
	node := dbtest.Node(t)
	fc := clock.NewFakeClock(time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC))
	repo := repository.Provide()
	ctx := context.Background()

	truck := &truckdomain.Truck{
		ID: node.Generate(), PlayerID: "player-1", Code: "tr-1",
		Status: truckdomain.StatusIdle, Load: datatypes.JSON(`{}`), DeliveryCycle: 1,
		CreatedAt: fc.Now(), UpdatedAt: fc.Now(),
	}
	require.NoError(t, repo.Insert(ctx, db, truck))

	svc := New(Params{DB: db, Log: zap.NewNop(), Clock: fc, Repo: repo})

	resp, err := svc.Transition(ctx, truckdomain.TransitionRequest{
		ID: truck.ID.String(), Status: "en_route", Load: map[string]int64{"Plastic": 4},
	})
	require.NoError(t, err)
	assert.Equal(t, truckdomain.StatusEnRoute, resp.Status)
	assert.Equal(t, map[string]int64{"plastic": 4}, resp.Load)

	_, err = svc.Transition(ctx, truckdomain.TransitionRequest{ID: truck.ID.String(), Status: "idle"})
	assert.ErrorIs(t, err, guard.ErrInvalidTransition)

	unloading, err := svc.BeginUnloading(ctx, db, truck.ID, material.Load{"plastic": 4})
	require.NoError(t, err)
	assert.Equal(t, truckdomain.StatusUnloading, unloading.Status)

	again, err := svc.BeginUnloading(ctx, db, truck.ID, material.Load{"plastic": 4})
	require.NoError(t, err)
	assert.Equal(t, truckdomain.StatusUnloading, again.Status)

	require.NoError(t, svc.MarkEmpty(ctx, db, truck.ID))
	require.NoError(t, svc.MarkEmpty(ctx, db, truck.ID))

	got, err := svc.Get(ctx, truck.ID.String())
	require.NoError(t, err)
	assert.Equal(t, truckdomain.StatusEmpty, got.Status)
	assert.Empty(t, got.Load)

	next, err := svc.Transition(ctx, truckdomain.TransitionRequest{ID: truck.ID.String(), Status: "idle"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.DeliveryCycle)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestTruckServiceErrors(t *testing.T) {
	db := dbtest.Open(t, &truckdomain.Truck{})
	svc := New(Params{DB: db, Log: zap.NewNop(), Clock: clock.New(), Repo: repository.Provide()})
	ctx := context.Background()

	_, err := svc.Get(ctx, "x")
	assert.ErrorIs(t, err, truckdomain.ErrInvalidID)

	_, err = svc.Get(ctx, "77")
	assert.ErrorIs(t, err, truckdomain.ErrNotFound)

	_, err = svc.Transition(ctx, truckdomain.TransitionRequest{ID: "77", Status: "parked"})
	assert.ErrorIs(t, err, truckdomain.ErrInvalidStatus)

	_, err = svc.Transition(ctx, truckdomain.TransitionRequest{ID: "77", Status: "en_route", Load: map[string]int64{"glass": -1}})
	assert.ErrorIs(t, err, truckdomain.ErrInvalidLoad)
}
