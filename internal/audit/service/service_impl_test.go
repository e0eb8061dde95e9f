package service

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/recyclesim/internal/audit/domain"
	"github.com/smallbiznis/recyclesim/internal/audit/repository"
	"github.com/smallbiznis/recyclesim/internal/clock"
	"github.com/smallbiznis/recyclesim/internal/dbtest"
	obscontext "github.com/smallbiznis/recyclesim/internal/observability/context"
	"github.com/smallbiznis/recyclesim/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	db := dbtest.Open(t, &auditdomain.AuditLog{})
	fc := clock.NewFakeClock(time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC))
	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: fc,
		GenID: dbtest.Node(t),
		Repo:  repository.Provide(),
	}), fc
}

func TestAuditLogUsesContextActor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := obscontext.WithActor(context.Background(), "admin", "token")
	ctx = obscontext.WithRequestID(ctx, "req-1")

	target := "42"
	require.NoError(t, svc.AuditLog(ctx, "delivery.retry", "delivery", &target, map[string]any{"reason": "invalid_load"}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	entry := resp.Data[0]
	assert.Equal(t, "admin", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "token", *entry.ActorID)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, "42", *entry.TargetID)
	require.NotNil(t, entry.RequestID)
	assert.Equal(t, "req-1", *entry.RequestID)
	assert.Equal(t, "invalid_load", entry.Metadata["reason"])
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, _ := newTestService(t)
	require.NoError(t, svc.AuditLog(context.Background(), "outbox.flush", "", nil, nil))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), resp.Data[0].ActorType)
	assert.Equal(t, "unknown", resp.Data[0].TargetType)
	assert.Nil(t, resp.Data[0].ActorID)
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _ := newTestService(t)
	assert.ErrorIs(t, svc.AuditLog(context.Background(), " ", "delivery", nil, nil), auditdomain.ErrInvalidAction)
}

func TestListPagesNewestFirst(t *testing.T) {
	svc, fc := newTestService(t)
	ctx := context.Background()
	for _, action := range []string{"a.1", "a.2", "a.3"} {
		require.NoError(t, svc.AuditLog(ctx, action, "recycler", nil, nil))
		fc.Advance(time.Second)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Data, 2)
	assert.Equal(t, "a.3", first.Data[0].Action)
	assert.Equal(t, "a.2", first.Data[1].Action)
	require.True(t, first.PageInfo.HasMore)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.PageInfo.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Data, 1)
	assert.Equal(t, "a.1", second.Data[0].Action)
	assert.False(t, second.PageInfo.HasMore)

	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: "%%%"}})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)

	start, end := fc.Now(), fc.Now().Add(-time.Hour)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
