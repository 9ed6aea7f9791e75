package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/yndnr/metalgate/internal/storage"
	"github.com/yndnr/metalgate/internal/storage/storagetest"
)

// openTestStore connects to METALGATE_TEST_POSTGRES_DSN and empties the
// tables. Tests skip when the variable is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("METALGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("METALGATE_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := Open(ctx, dsn, WithTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := s.pool.Exec(ctx, `TRUNCATE api_keys, users, auth_tokens`); err != nil {
		s.Close()
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_KeyStore(t *testing.T) {
	storagetest.RunKeyStoreTests(t, func(t *testing.T) storage.KeyStore { return openTestStore(t) })
}

func TestStore_UserStore(t *testing.T) {
	storagetest.RunUserStoreTests(t, func(t *testing.T) storage.UserStore { return openTestStore(t) })
}

func TestStore_TokenStore(t *testing.T) {
	storagetest.RunTokenStoreTests(t, func(t *testing.T) storage.TokenStore { return openTestStore(t) })
}

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), ""); err == nil {
		t.Error("Open(\"\") should fail")
	}
}
