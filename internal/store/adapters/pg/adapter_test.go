package pg

import (
	"context"
	"os"
	"testing"

	"github.com/dropDatabas3/devpulse/internal/domain/repository"
	"github.com/dropDatabas3/devpulse/internal/store"
	"github.com/dropDatabas3/devpulse/internal/store/storetest"
)

// Requiere una base descartable: DEVPULSE_TEST_PG_DSN=postgres://...
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DEVPULSE_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("DEVPULSE_TEST_PG_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) repository.Store {
		ctx := context.Background()
		st, err := (&postgresAdapter{}).Open(ctx, store.Config{DSN: dsn})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		pgs := st.(*Store)
		if _, err := pgs.Migrate(ctx); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		if _, err := pgs.pool.Exec(ctx, `TRUNCATE provider_connection, app_user`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}
