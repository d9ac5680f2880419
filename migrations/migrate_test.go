package migrations

import (
	"database/sql"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunMigrationsCreatesTables(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, RunMigrations(db, zerolog.Nop()))

	for _, table := range []string{
		"memory_items", "goals", "tasks", "contacts",
		"contact_relations", "contact_key_dates", "transcripts", "turns",
	} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s", table)
	}

	v, dirty, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, RunMigrations(db, zerolog.Nop()))
	require.NoError(t, RunMigrations(db, zerolog.Nop()))
}

func TestContactNamesAreCaseInsensitiveUnique(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, RunMigrations(db, zerolog.Nop()))

	_, err := db.Exec(`INSERT INTO contacts (full_name, created_at, updated_at) VALUES ('Ada Lovelace', 'x', 'x')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO contacts (full_name, created_at, updated_at) VALUES ('ada lovelace', 'x', 'x')`)
	assert.Error(t, err)
}
