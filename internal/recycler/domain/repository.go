package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPlant(ctx context.Context, db *gorm.DB, plant *Plant) error
	InsertRecycler(ctx context.Context, db *gorm.DB, recycler *Recycler) error
	FindPlantByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plant, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Recycler, error)
	List(ctx context.Context, db *gorm.DB) ([]Recycler, error)
	ListByPlant(ctx context.Context, db *gorm.DB, plantID snowflake.ID) ([]Recycler, error)
	CountPlants(ctx context.Context, db *gorm.DB) (int64, error)
}
