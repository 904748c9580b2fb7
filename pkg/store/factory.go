package store

import (
	"fmt"
	"strings"

	"github.com/nimburion/dbext/pkg/config"
	"github.com/nimburion/dbext/pkg/observability/logger"
	"github.com/nimburion/dbext/pkg/store/mysql"
	"github.com/nimburion/dbext/pkg/store/postgres"
)

var (
	_ SQLAdapter = (*postgres.PostgreSQLAdapter)(nil)
	_ SQLAdapter = (*mysql.MySQLAdapter)(nil)
)

// NewSQLAdapter selects and initializes the relational adapter named by cfg.Type.
func NewSQLAdapter(cfg config.DatabaseConfig, log logger.Logger) (SQLAdapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypePostgres:
		adapter, err := postgres.NewPostgreSQLAdapter(postgres.Config{
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			QueryTimeout:    cfg.QueryTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	case config.DatabaseTypeMySQL:
		adapter, err := mysql.NewMySQLAdapter(mysql.Config{
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			QueryTimeout:    cfg.QueryTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	default:
		return nil, fmt.Errorf("unsupported database.type %q for a SQL adapter (supported: postgres, mysql)", cfg.Type)
	}
}
