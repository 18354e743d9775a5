package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// TargetProductsPerQuery is the default number of records kept per query.
const TargetProductsPerQuery = 500

// Cache modes.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds collector configuration.
type Config struct {
	Endpoint     string
	APIKey       string
	APIKeyHeader string
	Cap          int
	MaxPages     int // 0 means follow nextPage until the cap or the end
	Delay        time.Duration
	RandomDelay  time.Duration
	Timeout      time.Duration
	OutputFile   string
	OutputFormat string // csv, json, or dual
	Source       string
	UserAgent    string
	CacheMode    string // none, memory, or redis
	CacheSize    int
	CacheTTL     time.Duration
	RedisAddr    string
	MetricsAddr  string
	Verbose      bool
}

// DefaultConfig returns the defaults used when no flag or env var overrides them.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:     "http://localhost:3000/api/search",
		APIKeyHeader: "X-API-Key",
		Cap:          TargetProductsPerQuery,
		MaxPages:     0,
		Delay:        100 * time.Millisecond,
		RandomDelay:  0,
		Timeout:      30 * time.Second,
		OutputFile:   "data.csv",
		OutputFormat: "csv",
		Source:       "Amazon",
		UserAgent:    "go-product-collector/1.0",
		CacheMode:    CacheNone,
		CacheSize:    1024,
		CacheTTL:     time.Hour,
		RedisAddr:    "localhost:6379",
		Verbose:      false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	parsedURL, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("endpoint must use http or https")
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("endpoint must include a host")
	}

	if c.Cap <= 0 {
		return fmt.Errorf("cap must be positive")
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.APIKey != "" && c.APIKeyHeader == "" {
		return fmt.Errorf("api key header cannot be empty when an api key is set")
	}

	switch c.CacheMode {
	case CacheNone:
	case CacheMemory:
		if c.CacheSize <= 0 {
			return fmt.Errorf("cache size must be positive")
		}
		if c.CacheTTL <= 0 {
			return fmt.Errorf("cache ttl must be positive")
		}
	case CacheRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
		if c.CacheTTL <= 0 {
			return fmt.Errorf("cache ttl must be positive")
		}
	default:
		return fmt.Errorf("cache mode must be none, memory, or redis")
	}

	return nil
}

// LoadDotEnv loads variables from a .env file without overriding ones
// already set. A missing file is ignored.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvDuration parses key as a Go duration ("250ms", "2s").
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// EnvBool parses key with strconv.ParseBool.
func EnvBool(key string) (bool, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return false, false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, false, fmt.Errorf("%s: %w", key, err)
	}
	return b, true, nil
}
