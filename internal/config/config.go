package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// PMS backend (the remote permit management system)
	PMSBaseURL      string        `envconfig:"PMS_BASE_URL"`
	PMSToken        string        `envconfig:"PMS_TOKEN"`
	PMSTimeout      time.Duration `envconfig:"PMS_TIMEOUT" default:"30s"`
	PendingListPath string        `envconfig:"PENDING_LIST_PATH" default:"/safety/permit/pending-approvals"`

	// Gateway API
	ListenAddr     string `envconfig:"LISTEN_ADDR" default:":8080"`
	AuthMode       string `envconfig:"AUTH_MODE" default:"api-key"` // "api-key", "jwt", "none"
	APIKey         string `envconfig:"API_KEY"`
	JWTSecret      string `envconfig:"JWT_SECRET"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"200"`
	CORSOrigins    string `envconfig:"CORS_ORIGINS"`
	TLSCert        string `envconfig:"TLS_CERT"`
	TLSKey         string `envconfig:"TLS_KEY"`

	// Audit store (optional — agent runs without local persistence)
	StorePath      string        `envconfig:"STORE_PATH"`
	AuditRetention time.Duration `envconfig:"AUDIT_RETENTION" default:"2160h"` // 90 days
	RetentionSweep time.Duration `envconfig:"RETENTION_SWEEP_INTERVAL" default:"6h"`

	// Slack notifications (optional)
	// Prefixed with AGENT_ to keep deployment tooling from auto-subscribing the bot
	SlackBotToken       string `envconfig:"AGENT_SLACK_BOT_TOKEN"`
	SlackDefaultChannel string `envconfig:"AGENT_SLACK_CHANNEL" default:"#permit-approvals"`
	RoutingFile         string `envconfig:"NOTIFY_ROUTING_FILE"`
}

// PMSEnabled returns true if the PMS backend connection is configured.
func (c *Config) PMSEnabled() bool {
	return c.PMSBaseURL != "" && c.PMSToken != ""
}

// StoreEnabled returns true if the local audit store is configured.
func (c *Config) StoreEnabled() bool {
	return c.StorePath != ""
}

// SlackEnabled returns true if the Slack notifier is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != ""
}

// Validate checks fatal preconditions that would otherwise surface as
// confusing mid-request failures.
func (c *Config) Validate() error {
	switch c.AuthMode {
	case "api-key":
		if c.APIKey == "" {
			return fmt.Errorf("AUTH_MODE=api-key requires API_KEY")
		}
	case "jwt":
		if c.JWTSecret == "" {
			return fmt.Errorf("AUTH_MODE=jwt requires JWT_SECRET")
		}
	case "none":
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS_CERT and TLS_KEY must be set together")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
