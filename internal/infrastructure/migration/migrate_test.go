package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/erp/stockledger/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedded(t *testing.T) {
	names, err := Embedded()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "000001_create_stock_movements", names[0])
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := Embedded()
	require.NoError(t, err)

	for _, name := range names {
		up, err := fs.ReadFile(migrations.FS, name+".up.sql")
		require.NoError(t, err)
		down, err := fs.ReadFile(migrations.FS, name+".down.sql")
		require.NoError(t, err, "missing down migration for %s", name)
		assert.NotEmpty(t, strings.TrimSpace(string(up)))
		assert.NotEmpty(t, strings.TrimSpace(string(down)))
	}
}

func TestInitialMigrationGuardsImmutability(t *testing.T) {
	up, err := fs.ReadFile(migrations.FS, "000001_create_stock_movements.up.sql")
	require.NoError(t, err)

	sql := string(up)
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS stock_movements")
	assert.Contains(t, sql, "BEFORE UPDATE ON stock_movements")
	assert.Contains(t, sql, "BEFORE DELETE ON stock_movements")
	assert.Contains(t, sql, "idx_movement_superseded_by")
}
