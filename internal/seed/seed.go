package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/recyclesim/internal/clock"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	recyclerrepo "github.com/smallbiznis/recyclesim/internal/recycler/repository"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
	truckrepo "github.com/smallbiznis/recyclesim/internal/truck/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Fleet describes the demo world created on an empty database.
type Fleet struct {
	Plants []PlantSpec
}

type PlantSpec struct {
	Name       string
	Capacities []int64
	Trucks     []TruckSpec
}

type TruckSpec struct {
	PlayerID string
}

// DefaultFleet is two plants with a few recyclers and trucks each.
func DefaultFleet() Fleet {
	return Fleet{
		Plants: []PlantSpec{
			{
				Name:       "Harbor Street Plant",
				Capacities: []int64{100, 250},
				Trucks:     []TruckSpec{{PlayerID: "player-1"}, {PlayerID: "player-2"}},
			},
			{
				Name:       "Ridge Valley Plant",
				Capacities: []int64{80},
				Trucks:     []TruckSpec{{PlayerID: "player-3"}},
			},
		},
	}
}

// EnsureDemoFleet seeds fleet when no plant exists yet. It reports whether
// anything was created.
func EnsureDemoFleet(ctx context.Context, db *gorm.DB, node *snowflake.Node, c clock.Clock, fleet Fleet) (bool, error) {
	if db == nil {
		return false, errors.New("seed database handle is required")
	}
	if node == nil {
		return false, errors.New("seed id generator is required")
	}

	recyclers := recyclerrepo.Provide()
	trucks := truckrepo.Provide()

	created := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := recyclers.CountPlants(ctx, tx)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := c.Now()
		for _, spec := range fleet.Plants {
			code := slug.Make(spec.Name)
			plant := &recyclerdomain.Plant{
				ID:        node.Generate(),
				Code:      code,
				Name:      spec.Name,
				CreatedAt: now,
			}
			if err := recyclers.InsertPlant(ctx, tx, plant); err != nil {
				return fmt.Errorf("seed plant %s: %w", code, err)
			}

			for i, capacity := range spec.Capacities {
				rec := &recyclerdomain.Recycler{
					ID:        node.Generate(),
					PlantID:   plant.ID,
					Code:      fmt.Sprintf("%s-rc-%d", code, i+1),
					Capacity:  capacity,
					FillCycle: 1,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := recyclers.InsertRecycler(ctx, tx, rec); err != nil {
					return fmt.Errorf("seed recycler %s: %w", rec.Code, err)
				}
			}

			for i, ts := range spec.Trucks {
				plantID := plant.ID
				truck := &truckdomain.Truck{
					ID:            node.Generate(),
					PlantID:       &plantID,
					PlayerID:      ts.PlayerID,
					Code:          fmt.Sprintf("%s-tr-%d", code, i+1),
					Status:        truckdomain.StatusIdle,
					Load:          datatypes.JSON(`{}`),
					DeliveryCycle: 1,
					CreatedAt:     now,
					UpdatedAt:     now,
				}
				if err := trucks.Insert(ctx, tx, truck); err != nil {
					return fmt.Errorf("seed truck %s: %w", truck.Code, err)
				}
			}
		}
		created = true
		return nil
	})
	return created, err
}
