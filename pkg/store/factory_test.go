package store

import (
	"strings"
	"testing"

	"github.com/nimburion/dbext/pkg/config"
	"github.com/nimburion/dbext/pkg/observability/logger"
)

func TestNewSQLAdapter_UnsupportedType(t *testing.T) {
	for _, typ := range []string{"", "memory", "mongodb"} {
		adapter, err := NewSQLAdapter(config.DatabaseConfig{Type: typ}, logger.NewNop())
		if err == nil {
			t.Fatalf("expected unsupported type error for %q", typ)
		}
		if adapter != nil {
			t.Fatalf("expected nil adapter for %q", typ)
		}
		if !strings.Contains(err.Error(), "unsupported database.type") {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestNewSQLAdapter_RequiresURL(t *testing.T) {
	for _, typ := range []string{config.DatabaseTypePostgres, "MySQL"} {
		if _, err := NewSQLAdapter(config.DatabaseConfig{Type: typ}, logger.NewNop()); err == nil {
			t.Fatalf("expected error for %s without url", typ)
		}
	}
}
