package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tool settings. Precedence: CLI flags (applied by the
// caller after Load) > environment variables > profile file > defaults.
type Config struct {
	Profile string
	Home    string // directory for profiles and checkpoint databases

	APIBaseURL string
	APIToken   string
	PageSize   int
	RateLimit  float64 // API requests per second, 0 = unlimited
	APITimeout time.Duration

	LogLevel  string
	LogFormat string
	HTTPAddr  string // status server address in watch mode

	KafkaBrokers []string
	KafkaTopic   string
}

// profileFile is the on-disk YAML shape of one named profile.
type profileFile struct {
	APIURL    string  `yaml:"api_url"`
	APIToken  string  `yaml:"api_token"`
	PageSize  int     `yaml:"page_size"`
	RateLimit float64 `yaml:"rate_limit"`
}

// Load reads configuration for the named profile, merging the profile
// file (if present) with environment variables.
func Load(profile string) (*Config, error) {
	if profile == "" {
		profile = "default"
	}

	home, err := resolveHome()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Profile:    profile,
		Home:       home,
		PageSize:   100,
		APITimeout: 60 * time.Second,
		LogLevel:   envOrDefault("LOG_LEVEL", "info"),
		LogFormat:  envOrDefault("LOG_FORMAT", "json"),
		HTTPAddr:   envOrDefault("HTTP_ADDR", ":8080"),
		KafkaTopic: envOrDefault("KAFKA_TOPIC", "security-events"),
	}

	if err := cfg.applyProfileFile(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// CheckpointPath is the profile-scoped checkpoint database location.
// Distinct profiles get distinct files, so concurrent invocations for
// different profiles never touch each other's checkpoints.
func (c *Config) CheckpointPath() string {
	return filepath.Join(c.Home, c.Profile+".checkpoints.db")
}

// ProfilePath is where the named profile's YAML file lives.
func (c *Config) ProfilePath() string {
	return filepath.Join(c.Home, "profiles", c.Profile+".yaml")
}

func (c *Config) applyProfileFile() error {
	data, err := os.ReadFile(c.ProfilePath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read profile %s: %w", c.Profile, err)
	}

	var p profileFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse profile %s: %w", c.Profile, err)
	}

	if p.APIURL != "" {
		c.APIBaseURL = p.APIURL
	}
	if p.APIToken != "" {
		c.APIToken = p.APIToken
	}
	if p.PageSize != 0 {
		c.PageSize = p.PageSize
	}
	if p.RateLimit != 0 {
		c.RateLimit = p.RateLimit
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("C42_API_URL"); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv("C42_API_TOKEN"); v != "" {
		c.APIToken = v
	}
	if v := os.Getenv("C42_PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("invalid C42_PAGE_SIZE")
		}
		c.PageSize = n
	}
	if v := os.Getenv("C42_RATE_LIMIT"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return errors.New("invalid C42_RATE_LIMIT")
		}
		c.RateLimit = f
	}
	if v := os.Getenv("C42_API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return errors.New("invalid C42_API_TIMEOUT")
		}
		c.APITimeout = d
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.KafkaBrokers = parseBrokers(v)
	}
	return nil
}

func (c *Config) validate() error {
	if c.APIBaseURL != "" {
		u, err := url.Parse(c.APIBaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("API URL must be an absolute http(s) URL")
		}
	}
	if c.PageSize < 1 || c.PageSize > 10000 {
		return errors.New("page size must be 1-10000")
	}
	return nil
}

func resolveHome() (string, error) {
	if v := os.Getenv("C42_HOME"); v != "" {
		return v, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(userHome, ".code42cli"), nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(value string) []string {
	parts := strings.Split(value, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
