package health

import (
	"context"
	"strings"
	"testing"
	"time"
)

// mockChecker is a mock implementation of Checker for testing
type mockChecker struct {
	name   string
	result CheckResult
	delay  time.Duration
}

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	return m.result
}

func (m *mockChecker) Name() string {
	return m.name
}

func newMock(name string, status Status) *mockChecker {
	return &mockChecker{name: name, result: CheckResult{Name: name, Status: status}}
}

func TestRegistry_RegisterAndList(t *testing.T) {
	registry := NewRegistry()
	if len(registry.List()) != 0 {
		t.Fatalf("new registry should be empty, got %v", registry.List())
	}

	registry.Register(newMock("zeta", StatusHealthy))
	registry.Register(newMock("alpha", StatusHealthy))
	registry.Register(newMock("alpha", StatusDegraded))

	names := registry.List()
	if strings.Join(names, ",") != "alpha,zeta" {
		t.Fatalf("expected sorted unique names, got %v", names)
	}
	result, err := registry.CheckOne(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("CheckOne: %v", err)
	}
	if result.Status != StatusDegraded {
		t.Fatalf("expected replaced checker to run, got %s", result.Status)
	}
}

func TestRegistry_Check(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{name: "empty", want: StatusHealthy},
		{name: "all healthy", statuses: []Status{StatusHealthy, StatusHealthy}, want: StatusHealthy},
		{name: "degraded wins over healthy", statuses: []Status{StatusHealthy, StatusDegraded}, want: StatusDegraded},
		{name: "unhealthy wins", statuses: []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			for i, s := range tt.statuses {
				registry.Register(newMock(string(rune('a'+i)), s))
			}
			result := registry.Check(context.Background())
			if result.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, result.Status)
			}
			if len(result.Checks) != len(tt.statuses) {
				t.Fatalf("expected %d results, got %d", len(tt.statuses), len(result.Checks))
			}
			if result.IsHealthy() != (tt.want == StatusHealthy) {
				t.Fatal("IsHealthy disagrees with status")
			}
		})
	}
}

func TestRegistry_CheckRunsConcurrently(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"c", "b", "a"} {
		m := newMock(name, StatusHealthy)
		m.delay = 50 * time.Millisecond
		registry.Register(m)
	}

	start := time.Now()
	result := registry.Check(context.Background())
	if elapsed := time.Since(start); elapsed > 140*time.Millisecond {
		t.Fatalf("checks did not run concurrently, took %v", elapsed)
	}
	if result.Checks[0].Name != "a" || result.Checks[2].Name != "c" {
		t.Fatalf("expected results sorted by name, got %+v", result.Checks)
	}
}

func TestRegistry_CheckOneMissing(t *testing.T) {
	if _, err := NewRegistry().CheckOne(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown check")
	}
}
