// internal/config/database.go
package config

import (
	"fmt"
)

// DSN builds the PostgreSQL connection string. Sessions run in UTC so that
// license expiry timestamps round-trip unchanged.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC connect_timeout=10",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}
