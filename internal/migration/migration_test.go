package migration

import (
	"io/fs"
	"strings"
	"testing"

	dbpkg "github.com/smallbiznis/computeledger/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestEmbeddedSchemaCoversModels(t *testing.T) {
	raw, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000001_init.up.sql")
	require.NoError(t, err)
	schema := string(raw)

	conn, err := dbpkg.NewTest()
	require.NoError(t, err)
	for _, model := range Models() {
		stmt := conn.Model(model).Statement
		require.NoError(t, stmt.Parse(model))
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+stmt.Schema.Table+" (")
	}
}

func TestAutoMigrateSQLite(t *testing.T) {
	conn, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(conn))

	for _, table := range []string{"balances", "transactions", "billing_records", "payment_events", "tenant_events"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestApplyNonPostgresAutoMigrates(t *testing.T) {
	conn, err := dbpkg.NewTest()
	require.NoError(t, err)
	require.NoError(t, Apply(conn, dbpkg.DialectSQLite))
	assert.True(t, conn.Migrator().HasTable("presets"))

	assert.Error(t, Apply(nil, dbpkg.DialectSQLite))
}
