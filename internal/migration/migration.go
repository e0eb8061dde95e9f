package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/recyclesim/internal/audit/domain"
	creditsdomain "github.com/smallbiznis/recyclesim/internal/credits/domain"
	deliverydomain "github.com/smallbiznis/recyclesim/internal/delivery/domain"
	"github.com/smallbiznis/recyclesim/internal/events"
	"github.com/smallbiznis/recyclesim/internal/lease"
	recyclerdomain "github.com/smallbiznis/recyclesim/internal/recycler/domain"
	truckdomain "github.com/smallbiznis/recyclesim/internal/truck/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres schema. All tables the
// simulation needs are created on startup.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Models lists every persisted table in dependency order.
func Models() []any {
	return []any{
		&recyclerdomain.Plant{},
		&recyclerdomain.Recycler{},
		&truckdomain.Truck{},
		&deliverydomain.Delivery{},
		&events.OutboxEvent{},
		&lease.Row{},
		&creditsdomain.ProcessedEvent{},
		&creditsdomain.PlayerCredit{},
		&auditdomain.AuditLog{},
	}
}

// AutoMigrate builds the schema from the models. It backs the sqlite
// dialect, which the postgres SQL files do not target.
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
