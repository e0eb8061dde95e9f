package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/smallbiznis/recyclesim/internal/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestInitMigrationCreatesEveryModelTable(t *testing.T) {
	raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_init.up.sql")
	require.NoError(t, err)
	sql := string(raw)

	db := dbtest.Open(t)
	tables := make([]string, 0, len(Models()))
	for _, model := range Models() {
		stmt := &gorm.Statement{DB: db}
		require.NoError(t, stmt.Parse(model))
		table := stmt.Schema.Table
		tables = append(tables, table)
		assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS "+table+" (", "missing table %s", table)
	}
	assert.ElementsMatch(t, []string{
		"plants", "recyclers", "trucks", "deliveries",
		"outbox_events", "leases", "processed_events", "player_credits",
		"audit_logs",
	}, tables)
}

func TestAutoMigrateBuildsSQLiteSchema(t *testing.T) {
	db := dbtest.Open(t)
	require.NoError(t, AutoMigrate(db))
	for _, model := range Models() {
		assert.True(t, db.Migrator().HasTable(model))
	}
}
