package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	creditsdomain "github.com/smallbiznis/recyclesim/internal/credits/domain"
	"github.com/smallbiznis/recyclesim/internal/credits/repository"
	"github.com/smallbiznis/recyclesim/internal/credits/service"
	"github.com/smallbiznis/recyclesim/internal/events"
	"github.com/smallbiznis/recyclesim/internal/simtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(h *simtest.Harness) *service.Service {
	svc := service.New(service.Params{
		DB:    h.DB,
		Log:   h.Log,
		Clock: h.Clock,
		Repo:  repository.Provide(),
	})
	h.Local.Subscribe(events.TypeDeliveryCompleted, svc)
	return svc
}

func completed(t *testing.T, deliveryID, playerID, credits string) events.Envelope {
	t.Helper()
	raw, err := json.Marshal(events.DeliveryCompleted{
		TruckID:       "1",
		PlantID:       "2",
		PlayerID:      playerID,
		Timestamp:     simtest.Epoch,
		LoadByType:    map[string]int64{"plastic": 4},
		CreditsEarned: decimal.RequireFromString(credits),
	})
	require.NoError(t, err)
	return events.Envelope{
		EventID:    "evt-" + deliveryID,
		DeliveryID: deliveryID,
		Sequence:   2,
		Type:       events.TypeDeliveryCompleted,
		OccurredAt: simtest.Epoch,
		Payload:    raw,
	}
}

func TestProjectionFollowsSettlement(t *testing.T) {
	h := simtest.New(t, &creditsdomain.PlayerCredit{}, &creditsdomain.ProcessedEvent{})
	svc := newService(h)
	plant, recs := h.Plant(t, 100)
	ctx := context.Background()

	first := h.Submit(t, h.Truck(t, plant, "player-7"), recs[0], map[string]int64{"plastic": 10, "glass": 5})
	_, err := h.Engine.Settle(ctx, first)
	require.NoError(t, err)
	second := h.Submit(t, h.Truck(t, plant, "player-7"), recs[0], map[string]int64{"paper": 3})
	_, err = h.Engine.Settle(ctx, second)
	require.NoError(t, err)

	got, err := svc.Get(ctx, "player-7")
	require.NoError(t, err)
	assert.Equal(t, "36.95", got.Balance)
	assert.Equal(t, int64(2), got.Deliveries)
	assert.Equal(t, int64(18), got.Bottles)
}

func TestProjectionIgnoresDuplicates(t *testing.T) {
	h := simtest.New(t, &creditsdomain.PlayerCredit{}, &creditsdomain.ProcessedEvent{})
	svc := newService(h)
	ctx := context.Background()

	env := completed(t, "100", "player-1", "12.50")
	require.NoError(t, svc.Handle(ctx, env))
	require.NoError(t, svc.Handle(ctx, env))

	// Same fact under a new event id is still the same fact.
	env.EventID = "evt-other"
	h.Clock.Advance(time.Minute)
	require.NoError(t, svc.Handle(ctx, env))

	require.NoError(t, svc.Handle(ctx, completed(t, "101", "player-1", "0.25")))

	got, err := svc.Get(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, "12.75", got.Balance)
	assert.Equal(t, int64(2), got.Deliveries)

	list, err := svc.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "player-1", list[0].PlayerID)
}

func TestProjectionRejectsBadEvents(t *testing.T) {
	h := simtest.New(t, &creditsdomain.PlayerCredit{}, &creditsdomain.ProcessedEvent{})
	svc := newService(h)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Handle(ctx, completed(t, "1", " ", "1")), creditsdomain.ErrInvalidPlayer)
	assert.ErrorIs(t, svc.Handle(ctx, completed(t, "2", "p", "-1")), creditsdomain.ErrInvalidAmount)
	assert.ErrorIs(t, svc.Handle(ctx, completed(t, "3", "p", "0.001")), creditsdomain.ErrInvalidAmount)

	wrong := completed(t, "4", "p", "1")
	wrong.Type = events.TypeTruckLoaded
	assert.ErrorIs(t, svc.Handle(ctx, wrong), events.ErrUnexpectedType)

	_, err := svc.Get(ctx, "p")
	assert.ErrorIs(t, err, creditsdomain.ErrNotFound)
	_, err = svc.Get(ctx, "")
	assert.ErrorIs(t, err, creditsdomain.ErrInvalidPlayer)
}
