package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/evalforge/evalforge/internal/database"
)

// Each test gets its own named in-memory database; cache=shared only spans
// the connections gorm pools against that name.
var testDBSeq atomic.Int64

// MustOpenTestDB opens an isolated in-memory SQLite database with the full
// schema migrated, registering cleanup on the test.
func MustOpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb-%d?mode=memory&cache=shared&_foreign_keys=1", testDBSeq.Add(1))
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)

	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
