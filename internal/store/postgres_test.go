package store

import (
	"context"
	"os"
	"testing"
)

// Set HOOKSCOPE_TEST_POSTGRES_DSN to run against a live database. The
// deliveries table is cleared before each subtest.
func TestPostgresConformance(t *testing.T) {
	dsn := os.Getenv("HOOKSCOPE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("HOOKSCOPE_TEST_POSTGRES_DSN not set")
	}
	runConformance(t, func(t *testing.T) Store {
		t.Helper()
		s, err := NewPostgresStore(dsn)
		if err != nil {
			t.Fatalf("open postgres: %v", err)
		}
		if err := s.Clear(context.Background()); err != nil {
			t.Fatalf("clear: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
