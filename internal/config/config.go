// Package config provides YAML-based configuration loading for Loadline.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Loadline configuration, loaded from loadline.yaml.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Gateway     GatewayConfig     `yaml:"gateway"`
	Negotiation NegotiationConfig `yaml:"negotiation"`
	Search      SearchConfig      `yaml:"search"`
	Server      ServerConfig      `yaml:"server"`
	Notify      NotifyConfig      `yaml:"notify"`
}

// DatabaseConfig holds connection settings. Driver "sqlite" uses Path;
// driver "mysql" uses Host/Port/Name.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	Name   string `yaml:"name"`
}

// GatewayConfig holds settings for the carrier verification gateway client.
type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// NegotiationConfig parameterizes the negotiation engine.
type NegotiationConfig struct {
	MaxRounds          int     `yaml:"max_rounds"`
	MinAcceptableRatio float64 `yaml:"min_acceptable_ratio"`
	TargetRatio        float64 `yaml:"target_ratio"`
	ConcessionStep     float64 `yaml:"concession_step"`
}

// SearchConfig bounds load catalog queries.
type SearchConfig struct {
	Limit          int `yaml:"limit"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// ServerConfig holds HTTP listen ports.
type ServerConfig struct {
	Port          int `yaml:"port"`
	DashboardPort int `yaml:"dashboard_port"`
}

// NotifyConfig holds optional chat notification settings. A notifier is
// enabled when its bot token is non-empty.
type NotifyConfig struct {
	Slack   SlackNotifyConfig   `yaml:"slack"`
	Discord DiscordNotifyConfig `yaml:"discord"`
}

// SlackNotifyConfig holds Slack notifier credentials.
type SlackNotifyConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordNotifyConfig holds Discord notifier credentials.
type DiscordNotifyConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with all defaults applied, for tests and
// commands run without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "loadline.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Name == "" {
		c.Database.Name = "loadline"
	}
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = 5
	}
	if c.Gateway.MaxRetries == 0 {
		c.Gateway.MaxRetries = 2
	}
	if c.Negotiation.MaxRounds == 0 {
		c.Negotiation.MaxRounds = 3
	}
	if c.Negotiation.MinAcceptableRatio == 0 {
		c.Negotiation.MinAcceptableRatio = 0.90
	}
	if c.Negotiation.TargetRatio == 0 {
		c.Negotiation.TargetRatio = 0.97
	}
	if c.Negotiation.ConcessionStep == 0 {
		c.Negotiation.ConcessionStep = 0.03
	}
	if c.Search.Limit == 0 {
		c.Search.Limit = 5
	}
	if c.Search.TimeoutSeconds == 0 {
		c.Search.TimeoutSeconds = 5
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.DashboardPort == 0 {
		c.Server.DashboardPort = 8080
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Negotiation.MaxRounds < 1 {
		errs = append(errs, "negotiation.max_rounds must be at least 1")
	}
	if c.Negotiation.MinAcceptableRatio <= 0 || c.Negotiation.MinAcceptableRatio > 1 {
		errs = append(errs, "negotiation.min_acceptable_ratio must be in (0, 1]")
	}
	if c.Negotiation.TargetRatio <= 0 || c.Negotiation.TargetRatio > 1 {
		errs = append(errs, "negotiation.target_ratio must be in (0, 1]")
	}
	if c.Negotiation.TargetRatio < c.Negotiation.MinAcceptableRatio {
		errs = append(errs, "negotiation.target_ratio must not be below min_acceptable_ratio")
	}
	if c.Negotiation.ConcessionStep <= 0 {
		errs = append(errs, "negotiation.concession_step must be positive")
	}
	if c.Search.Limit < 1 {
		errs = append(errs, "search.limit must be at least 1")
	}
	if c.Notify.Slack.BotToken != "" && c.Notify.Slack.ChannelID == "" {
		errs = append(errs, "notify.slack.channel_id is required when bot_token is set")
	}
	if c.Notify.Discord.BotToken != "" && c.Notify.Discord.ChannelID == "" {
		errs = append(errs, "notify.discord.channel_id is required when bot_token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
