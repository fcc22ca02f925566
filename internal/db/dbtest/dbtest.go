// Package dbtest opens throwaway in-memory sqlite databases with the full
// schema migrated.
package dbtest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"careershift/internal/db"
)

var seq atomic.Int64

// New returns a migrated database private to the calling test.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "-", " ", "-").Replace(t.Name())
	dsn := fmt.Sprintf("sqlite://file:%s-%d-%d?mode=memory&cache=shared", name, time.Now().UnixNano(), seq.Add(1))

	conn, err := db.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// CreateUser inserts a user with the given tier and returns it.
func CreateUser(t testing.TB, conn *gorm.DB, email string, tier db.Tier) *db.User {
	t.Helper()
	u := &db.User{Email: email, PasswordHash: "x", Tier: tier}
	require.NoError(t, conn.Create(u).Error)
	return u
}
