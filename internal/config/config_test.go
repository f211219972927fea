// internal/config/config_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("EMAIL_PROVIDER", "log")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 12, cfg.Workflow.DefaultDurationMonths)
	assert.Equal(t, 7*24*time.Hour, cfg.Workflow.ApprovalTTL)
	assert.Equal(t, 3, cfg.Workflow.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Workflow.RetryDelay)
	assert.Equal(t, 50, cfg.Workflow.MaxDevicesFor("School"))
	assert.Equal(t, 1, cfg.Workflow.MaxDevicesFor("enterprise"))
	assert.Equal(t, "IDLab", cfg.Brand.ProductName)
}

func TestLoadParsesTables(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("EMAIL_PROVIDER", "log")
	t.Setenv("DEVICE_LIMITS", "School:100, business:20,broken,trial:x")
	t.Setenv("ADMIN_ACCOUNTS", "Admin@IDLab.studio:$2a$10$abc, ops@idlab.studio:$2a$10$def")
	t.Setenv("PUBLIC_URL", "https://api.idlab.studio/")
	t.Setenv("APPROVAL_TTL", "48h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"school": 100, "business": 20}, cfg.Workflow.DeviceLimits)
	assert.Equal(t, "$2a$10$abc", cfg.Auth.Admins["admin@idlab.studio"])
	assert.Equal(t, "$2a$10$def", cfg.Auth.Admins["ops@idlab.studio"])
	assert.Equal(t, "https://api.idlab.studio", cfg.Frontend.PublicURL)
	assert.Equal(t, 48*time.Hour, cfg.Workflow.ApprovalTTL)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment: "production",
			JWT:         JWTConfig{SecretKey: "a-real-secret"},
			Store:       StoreConfig{Driver: "postgres"},
			Database:    DatabaseConfig{Password: "pw"},
			Email:       EmailConfig{Provider: "smtp"},
			Workflow:    DefaultWorkflowConfig(),
		}
	}

	require.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"default jwt secret", func(c *Config) { c.JWT.SecretKey = "your-secret-key-change-in-production" }},
		{"unknown store", func(c *Config) { c.Store.Driver = "mongo" }},
		{"memory store in production", func(c *Config) { c.Store.Driver = "memory" }},
		{"missing database password", func(c *Config) { c.Database.Password = "" }},
		{"unknown email provider", func(c *Config) { c.Email.Provider = "pigeon" }},
		{"gmail without credentials", func(c *Config) { c.Email.Provider = "gmail" }},
		{"no retry attempts", func(c *Config) { c.Workflow.RetryAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
