// Package config provides dynamic configuration management for NetGraph.
// It uses Viper to load settings from files, environment variables, and CLI flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for NetGraph.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────────────
	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`
	DBPath     string `mapstructure:"db_path"`
	DBDriver   string `mapstructure:"db_driver"` // "sqlite" only for now

	// ── Security ──────────────────────────────────────────────────────────────
	// JWTSecret: HS256 signing key for the Web/API tokens.
	// Change this in production — default is a random-looking placeholder.
	JWTSecret string `mapstructure:"jwt_secret"`
	AdminUser string `mapstructure:"admin_user"`
	AdminPass string `mapstructure:"admin_pass"`
	// TokenLifetimeHours bounds how long a login token stays valid.
	TokenLifetimeHours int `mapstructure:"token_lifetime_hours"`

	// ── Discovery ────────────────────────────────────────────────────────────
	// CacheTTLMinutes gates re-use of cached command output. A cached entry
	// older than this is ignored (not deleted) and the device is queried again.
	CacheTTLMinutes int `mapstructure:"cache_ttl_minutes"`
	// WorkerConcurrency bounds the number of devices discovered in parallel
	// by the background worker path.
	WorkerConcurrency int `mapstructure:"worker_concurrency"`

	// ExecEndpoint is the internal command-execution service used by the
	// foreground (request-driven) path, e.g. "http://127.0.0.1:8181".
	ExecEndpoint string `mapstructure:"exec_endpoint"`
	// ExecToken is sent as "Authorization: Bearer <token>" on every exec call.
	ExecToken          string `mapstructure:"exec_token"`
	ExecTimeoutSeconds int    `mapstructure:"exec_timeout_seconds"`

	// ── SSH defaults (background worker direct transport) ────────────────────
	SSHUser           string `mapstructure:"ssh_user"`
	SSHPass           string `mapstructure:"ssh_pass"`
	SSHKeyPath        string `mapstructure:"ssh_key_path"`
	SSHTimeoutSeconds int    `mapstructure:"ssh_timeout_seconds"`

	// ── Topology ─────────────────────────────────────────────────────────────
	// LayoutAlgorithm is the default when a request does not pick one:
	// "force_directed", "circular" or "hierarchical".
	LayoutAlgorithm string `mapstructure:"layout_algorithm"`
}

// CacheTTL returns the command-cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// Load reads config from file (./config.yaml or ~/.netgraph/config.yaml)
// and falls back to smart defaults. Environment variables with prefix NETGRAPH_
// override file values.
func Load() (*Config, error) {
	v := viper.New()

	// --- Smart Defaults ---
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8484)
	v.SetDefault("db_path", "netgraph.db")
	v.SetDefault("db_driver", "sqlite")

	// Security defaults — MUST be overridden in production via config.yaml or env vars.
	v.SetDefault("jwt_secret", "NgR4ph$Km2!xW8#qT5^bJ7&cL9*mZ3")
	v.SetDefault("admin_user", "admin")
	v.SetDefault("admin_pass", "admin")
	v.SetDefault("token_lifetime_hours", 24)

	v.SetDefault("cache_ttl_minutes", 15)
	v.SetDefault("worker_concurrency", 4)

	v.SetDefault("exec_endpoint", "http://127.0.0.1:8181")
	v.SetDefault("exec_token", "netgraph-exec-key-123")
	v.SetDefault("exec_timeout_seconds", 60)

	v.SetDefault("ssh_user", "admin")
	v.SetDefault("ssh_pass", "")
	v.SetDefault("ssh_key_path", "~/.ssh/id_rsa")
	v.SetDefault("ssh_timeout_seconds", 15)

	v.SetDefault("layout_algorithm", "force_directed")

	// --- Config file ---
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.netgraph")
	if err := v.ReadInConfig(); err != nil {
		// config file is optional; ignore "not found" errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// --- Environment Variables ---
	v.SetEnvPrefix("NETGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
