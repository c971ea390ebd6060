package db

import (
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/jmehdipour/agency-crm/internal/config"
	"github.com/jmoiron/sqlx"
)

// NewClickHouseConnection opens the billing analytics store.
// DSN e.g. clickhouse://default:@localhost:9000/agcrm?dial_timeout=5s&compress=true
func NewClickHouseConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	return openPool("clickhouse", cfg, 3*time.Second)
}
