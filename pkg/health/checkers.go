package health

import (
	"context"
	"time"

	"github.com/nimburion/dbext/pkg/database"
)

const defaultCheckTimeout = 5 * time.Second

// Checkable is an interface for components that support health checks
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker creates a health checker for any component that implements Checkable
type AdapterChecker struct {
	name    string
	adapter Checkable
	timeout time.Duration
}

// NewAdapterChecker creates a new health checker for an adapter
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	return &AdapterChecker{
		name:    name,
		adapter: adapter,
		timeout: timeout,
	}
}

// Check performs the health check on the adapter
func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return timed(c.name, func() error { return c.adapter.HealthCheck(checkCtx) })
}

// Name returns the name of the health check
func (c *AdapterChecker) Name() string {
	return c.name
}

// TransactorChecker reports a transactor healthy when it commits an empty
// read-only transaction.
type TransactorChecker struct {
	name    string
	tr      database.Transactor
	timeout time.Duration
}

// NewTransactorChecker creates a checker that runs an empty read-only transaction on tr.
func NewTransactorChecker(name string, tr database.Transactor, timeout time.Duration) *TransactorChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &TransactorChecker{name: name, tr: tr, timeout: timeout}
}

// Check runs the empty transaction.
func (c *TransactorChecker) Check(ctx context.Context) CheckResult {
	return timed(c.name, func() error {
		return c.tr.Transact(ctx, func(database.Context) error { return nil }, &database.TransactOptions{
			ReadOnly: true,
			Timeout:  c.timeout,
		})
	})
}

// Name returns the name of the health check
func (c *TransactorChecker) Name() string {
	return c.name
}

// NewDatabaseChecker creates a health checker for a database adapter
// with database-specific defaults
func NewDatabaseChecker(name string, db Checkable) *AdapterChecker {
	return NewAdapterChecker(name, db, defaultCheckTimeout)
}

func timed(name string, check func() error) CheckResult {
	start := time.Now()
	err := check()
	duration := time.Since(start)

	if err != nil {
		return CheckResult{
			Name:      name,
			Status:    StatusUnhealthy,
			Error:     err.Error(),
			Timestamp: time.Now(),
			Duration:  duration,
		}
	}
	return CheckResult{
		Name:      name,
		Status:    StatusHealthy,
		Message:   "OK",
		Timestamp: time.Now(),
		Duration:  duration,
	}
}
