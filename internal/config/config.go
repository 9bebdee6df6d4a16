package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPAddr               string `yaml:"http_addr"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
	LogLevel               string `yaml:"log_level"`
	LogFormat              string `yaml:"log_format"`

	ReceiptLogPath   string  `yaml:"receipt_log_path"`
	ReceiptFsync     bool    `yaml:"receipt_fsync"`
	HashAlg          string  `yaml:"hash_alg"`
	Scorer           string  `yaml:"scorer"`
	ScoreThreshold   float64 `yaml:"score_threshold"`
	SealThreshold    float64 `yaml:"seal_threshold"`
	RequireSignature bool    `yaml:"require_signature"`

	SigningAlg               string `yaml:"signing_alg"`
	SigningKID               string `yaml:"signing_kid"`
	SigningPrivateKeyBase64  string `yaml:"signing_private_key_base64"`
	SigningPrivateKeySeedHex string `yaml:"signing_private_key_seed_hex"`

	SealEnabled   bool   `yaml:"seal_enabled"`
	SealSecretHex string `yaml:"seal_secret_hex"`

	PolicyBundlePath string `yaml:"policy_bundle_path"`
	PostgresDSN      string `yaml:"postgres_dsn"`
	APIKey           string `yaml:"api_key"`

	RateLimitRequests      int  `yaml:"rate_limit_requests"`
	RateLimitWindowSeconds int  `yaml:"rate_limit_window_seconds"`
	RateLimitFailClosed    bool `yaml:"rate_limit_fail_closed"`
	RateLimitMaxKeys       int  `yaml:"rate_limit_max_keys"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

func Defaults() Config {
	return Config{
		HTTPAddr:               ":8080",
		ShutdownTimeoutSeconds: 15,
		LogLevel:               "info",
		LogFormat:              "json",
		ReceiptLogPath:         "data/receipts.jsonl",
		HashAlg:                "sha3-256",
		Scorer:                 "digest",
		SealThreshold:          0.9,
		SigningAlg:             "ed25519",
		RateLimitWindowSeconds: 60,
		RateLimitMaxKeys:       10000,
	}
}

// FromEnv returns the defaults overlaid with environment variables.
func FromEnv() Config {
	return applyEnv(Defaults())
}

// Load reads the optional YAML file at path and overlays environment
// variables on top of it. An empty path falls back to RECEIPT_CONFIG.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv("RECEIPT_CONFIG")
	}
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg = applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(c Config) Config {
	c.HTTPAddr = envDefault("HTTP_ADDR", c.HTTPAddr)
	c.ShutdownTimeoutSeconds = envIntDefault("SHUTDOWN_TIMEOUT_SECONDS", c.ShutdownTimeoutSeconds)
	c.LogLevel = envDefault("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envDefault("LOG_FORMAT", c.LogFormat)
	c.ReceiptLogPath = envDefault("RECEIPT_LOG_PATH", c.ReceiptLogPath)
	c.ReceiptFsync = envBoolDefault("RECEIPT_FSYNC", c.ReceiptFsync)
	c.HashAlg = envDefault("RECEIPT_HASH_ALG", c.HashAlg)
	c.Scorer = envDefault("RECEIPT_SCORER", c.Scorer)
	c.ScoreThreshold = envFloatDefault("RECEIPT_SCORE_THRESHOLD", c.ScoreThreshold)
	c.SealThreshold = envFloatDefault("RECEIPT_SEAL_THRESHOLD", c.SealThreshold)
	c.RequireSignature = envBoolDefault("RECEIPT_REQUIRE_SIGNATURE", c.RequireSignature)
	c.SigningAlg = envDefault("SIGNING_ALG", c.SigningAlg)
	c.SigningKID = envDefault("SIGNING_KID", c.SigningKID)
	c.SigningPrivateKeyBase64 = envDefault("SIGNING_PRIVATE_KEY_BASE64", c.SigningPrivateKeyBase64)
	c.SigningPrivateKeySeedHex = envDefault("SIGNING_PRIVATE_KEY_SEED_HEX", c.SigningPrivateKeySeedHex)
	c.SealEnabled = envBoolDefault("SEAL_ENABLED", c.SealEnabled)
	c.SealSecretHex = envDefault("SEAL_SECRET_HEX", c.SealSecretHex)
	c.PolicyBundlePath = envDefault("POLICY_BUNDLE_PATH", c.PolicyBundlePath)
	c.PostgresDSN = envDefault("POSTGRES_DSN", c.PostgresDSN)
	c.APIKey = envDefault("API_KEY", c.APIKey)
	c.RateLimitRequests = envIntDefault("RATE_LIMIT_REQUESTS", c.RateLimitRequests)
	c.RateLimitWindowSeconds = envIntDefault("RATE_LIMIT_WINDOW_SECONDS", c.RateLimitWindowSeconds)
	c.RateLimitFailClosed = envBoolDefault("RATE_LIMIT_FAIL_CLOSED", c.RateLimitFailClosed)
	c.RateLimitMaxKeys = envIntDefault("RATE_LIMIT_MAX_KEYS", c.RateLimitMaxKeys)
	c.RedisAddr = envDefault("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envDefault("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = envIntDefault("REDIS_DB", c.RedisDB)
	return c
}

func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.HashAlg) {
	case "sha256", "sha3-256":
	default:
		errs = append(errs, fmt.Errorf("hash_alg must be sha256 or sha3-256, got %q", c.HashAlg))
	}
	if !inUnitRange(c.ScoreThreshold) {
		errs = append(errs, fmt.Errorf("score_threshold must be within [0,1], got %v", c.ScoreThreshold))
	}
	if !inUnitRange(c.SealThreshold) {
		errs = append(errs, fmt.Errorf("seal_threshold must be within [0,1], got %v", c.SealThreshold))
	}
	if strings.TrimSpace(c.ReceiptLogPath) == "" {
		errs = append(errs, errors.New("receipt_log_path is required"))
	}
	return errors.Join(errs...)
}

// inUnitRange is false for NaN.
func inUnitRange(v float64) bool {
	return v >= 0 && v <= 1
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c Config) ShutdownTimeout() time.Duration {
	if c.ShutdownTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed < 0 {
		return def
	}
	return parsed
}

func envFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}
