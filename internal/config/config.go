package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "15m".
type Duration time.Duration

// Std converts to a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	BaseURL string `yaml:"base_url"` // public issuer URL, e.g. http://localhost:8080
}

// UpstreamConfig holds the calendar provider's OAuth application settings.
// Client credentials come from the environment, never from the YAML file.
type UpstreamConfig struct {
	ClientID     string   `yaml:"-"`
	ClientSecret string   `yaml:"-"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	APIURL       string   `yaml:"api_url"`
	Scopes       []string `yaml:"scopes"`
}

// BrokerConfig holds the broker's credential lifetimes.
type BrokerConfig struct {
	AccessTokenTTL Duration `yaml:"access_token_ttl"`
	AuthCodeTTL    Duration `yaml:"auth_code_ttl"`
	SessionTTL     Duration `yaml:"session_ttl"`
	SweepInterval  Duration `yaml:"sweep_interval"`
}

// Config is the full application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Broker   BrokerConfig   `yaml:"broker"`
}

// Default returns the configuration used when no YAML file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Upstream: UpstreamConfig{
			AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
			APIURL:   "https://www.googleapis.com/calendar/v3",
			Scopes: []string{
				"https://www.googleapis.com/auth/calendar",
				"openid",
				"email",
			},
		},
		Broker: BrokerConfig{
			AccessTokenTTL: Duration(time.Hour),
			AuthCodeTTL:    Duration(10 * time.Minute),
			SessionTTL:     Duration(15 * time.Minute),
			SweepInterval:  Duration(time.Minute),
		},
	}
}

// Load reads the YAML config file (if it exists) over the defaults, then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Upstream.ClientID = os.Getenv("UPSTREAM_CLIENT_ID")
	c.Upstream.ClientSecret = os.Getenv("UPSTREAM_CLIENT_SECRET")

	if v := os.Getenv("SERVER_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
