package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB opens a migrated in-memory database private to the test.
// Both pools attach to the same shared-cache database named after t.Name().
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", url.PathEscape(t.Name()))

	openPool := func(maxConns int) *sql.DB {
		pool, err := sql.Open("sqlite", dsn)
		require.NoError(t, err)
		pool.SetMaxOpenConns(maxConns)
		require.NoError(t, pool.Ping())
		return pool
	}

	// The writer is opened first and held so the memory database outlives
	// any idle reader connection.
	db := &DB{Writer: openPool(1), path: dsn}
	db.Reader = openPool(4)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, RunMigrations(db.Writer))
	return db
}
