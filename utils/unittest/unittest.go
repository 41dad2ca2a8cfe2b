package unittest

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/require"
)

// BadgerDB opens a badger database with synchronous writes under dir.
func BadgerDB(t testing.TB, dir string) *badger.DB {
	opts := badger.
		DefaultOptions(dir).
		WithKeepL0InMemory(true).
		WithLogger(nil).
		WithSyncWrites(true)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	return db
}

// RunWithBadgerDB runs f against a fresh badger database in a temporary
// directory and tears it down afterwards.
func RunWithBadgerDB(t testing.TB, f func(*badger.DB)) {
	dir := t.TempDir()
	db := BadgerDB(t, dir)
	defer func() {
		require.NoError(t, db.Close())
	}()
	f(db)
}

// RequireCloseBefore requires that the given channel closes before the
// duration expires.
func RequireCloseBefore(t testing.TB, c <-chan struct{}, duration time.Duration, message string) {
	select {
	case <-c:
	case <-time.After(duration):
		require.Fail(t, "could not close done channel on time: "+message)
	}
}

// RequireReturnsBefore requires that the given function returns before the
// duration expires.
func RequireReturnsBefore(t testing.TB, f func(), duration time.Duration, message string) {
	done := make(chan struct{})
	go func() {
		f()
		close(done)
	}()
	RequireCloseBefore(t, done, duration, message)
}

// RequireEventually retries condition until it holds or the duration
// expires.
func RequireEventually(t testing.TB, condition func() bool, duration time.Duration, message string) {
	require.Eventually(t, condition, duration, duration/100, message)
}
