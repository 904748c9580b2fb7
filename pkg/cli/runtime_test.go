package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/nimburion/dbext/pkg/config"
	"github.com/nimburion/dbext/pkg/database"
	"github.com/nimburion/dbext/pkg/samples"
)

func TestOpenRuntime_Memory(t *testing.T) {
	ctx := context.Background()
	rt, err := OpenRuntime(ctx, config.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rt.Close(ctx)

	var out bytes.Buffer
	if err := samples.Console(ctx, rt.Transactor, "Eve", &out); err != nil {
		t.Fatalf("console: %v", err)
	}
	if out.String() != "1: Eve\n" {
		t.Fatalf("unexpected output %q", out.String())
	}

	if got := rt.Health().List(); len(got) != 1 || got[0] != "transactor" {
		t.Fatalf("expected only the transactor check, got %v", got)
	}
	if !rt.Health().Check(ctx).IsHealthy() {
		t.Fatal("expected memory runtime to be healthy")
	}
}

func TestOpenRuntime_RetriesWithConfiguredDefaults(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Transactions.MaxRetries = 2
	cfg.Transactions.RetryBackoff = 1

	rt, err := OpenRuntime(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rt.Close(ctx)

	attempts := 0
	err = rt.Transactor.Transact(ctx, func(database.Context) error {
		attempts++
		if attempts < 3 {
			return database.ErrRetryable
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestOpenRuntime_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := OpenRuntime(ctx, nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	cfg := config.DefaultConfig()
	cfg.Database.Type = "oracle"
	if _, err := OpenRuntime(ctx, cfg, nil); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported engine error, got %v", err)
	}

	cfg = config.DefaultConfig()
	cfg.Database.Type = config.DatabaseTypePostgres
	cfg.Database.URL = ""
	if _, err := OpenRuntime(ctx, cfg, nil); err == nil {
		t.Fatal("expected error for postgres without URL")
	}
}

func TestRuntime_CloseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	rt, err := OpenRuntime(ctx, config.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rt.Close(ctx); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := rt.Close(ctx); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
