package seed

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/recyclesim/internal/clock"
	"github.com/smallbiznis/recyclesim/internal/dbtest"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	recyclerrepo "github.com/smallbiznis/recyclesim/internal/recycler/repository"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
	truckrepo "github.com/smallbiznis/recyclesim/internal/truck/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureDemoFleetIsIdempotent(t *testing.T) {
	db := dbtest.Open(t, &recyclerdomain.Plant{}, &recyclerdomain.Recycler{}, &truckdomain.Truck{})
	node := dbtest.Node(t)
	ctx := context.Background()
	c := clock.NewFakeClock(time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC))

	created, err := EnsureDemoFleet(ctx, db, node, c, DefaultFleet())
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureDemoFleet(ctx, db, node, c, DefaultFleet())
	require.NoError(t, err)
	assert.False(t, created)

	recs, err := recyclerrepo.Provide().List(ctx, db)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	codes := make([]string, 0, len(recs))
	for _, r := range recs {
		codes = append(codes, r.Code)
		assert.Zero(t, r.CurrentLoad)
	}
	assert.Contains(t, codes, "harbor-street-plant-rc-1")
	assert.Contains(t, codes, "ridge-valley-plant-rc-1")

	trucks, err := truckrepo.Provide().List(ctx, db)
	require.NoError(t, err)
	require.Len(t, trucks, 3)
	for _, tr := range trucks {
		assert.Equal(t, truckdomain.StatusIdle, tr.Status)
		require.NotNil(t, tr.PlantID)
	}
}

func TestEnsureDemoFleetRequiresHandles(t *testing.T) {
	_, err := EnsureDemoFleet(context.Background(), nil, nil, nil, DefaultFleet())
	assert.Error(t, err)
}
