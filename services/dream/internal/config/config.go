package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                   string `yaml:"port"`
	LogLevel               string `yaml:"logLevel"`
	RedisAddr              string `yaml:"redisAddr"`
	RedisPassword          string `yaml:"redisPassword"`
	DatabaseURL            string `yaml:"databaseURL"`
	CompilerURL            string `yaml:"compilerURL"`
	ReferenceTimezone      string `yaml:"referenceTimezone"`
	ReflectionWindow       string `yaml:"reflectionWindow"`
	PendingTTL             string `yaml:"pendingTTL"`
	LockTTL                string `yaml:"lockTTL"`
	BuildConcurrency       int    `yaml:"buildConcurrency"`
	BuildToken             string `yaml:"buildToken"`
	BuildStream            string `yaml:"buildStream"`
	BuildGroup             string `yaml:"buildGroup"`
	JWKSURL                string `yaml:"jwksUrl"`
	JWTIssuer              string `yaml:"jwtIssuer"`
	JWTAudience            string `yaml:"jwtAudience"`
	PollRateLimitPerMinute int    `yaml:"pollRateLimitPerMinute"`
	MinioEndpoint          string `yaml:"minioEndpoint"`
	MinioAccessKey         string `yaml:"minioAccessKey"`
	MinioSecretKey         string `yaml:"minioSecretKey"`
	MinioBucket            string `yaml:"minioBucket"`
	MinioUseSSL            bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("COMPILER_URL"); v != "" {
		cfg.CompilerURL = v
	}
	if v := os.Getenv("REFERENCE_TIMEZONE"); v != "" {
		cfg.ReferenceTimezone = v
	}
	if v := os.Getenv("BUILD_TOKEN"); v != "" {
		cfg.BuildToken = v
	}
	if v := os.Getenv("JWKS_URL"); v != "" {
		cfg.JWKSURL = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("DREAM_POLL_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollRateLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for dream state and locks")
	}
	if strings.TrimSpace(cfg.CompilerURL) == "" {
		return errors.New("config: compilerURL is required (set COMPILER_URL)")
	}
	if strings.TrimSpace(cfg.BuildToken) == "" {
		return errors.New("config: buildToken is required to guard the build endpoint")
	}
	if cfg.BuildConcurrency < 0 {
		return errors.New("config: buildConcurrency must be >= 0")
	}
	if cfg.PollRateLimitPerMinute < 0 {
		return errors.New("config: pollRateLimitPerMinute must be >= 0")
	}
	return nil
}

// ParseReflectionWindow parses the optional reflection window duration string.
func ParseReflectionWindow(windowStr string) (time.Duration, error) {
	if windowStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(windowStr)
	if err != nil {
		return 0, fmt.Errorf("invalid reflectionWindow duration: %w", err)
	}
	return dur, nil
}

// ParsePendingTTL parses the optional pending artifact TTL duration string.
func ParsePendingTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid pendingTTL duration: %w", err)
	}
	return dur, nil
}

// ParseLockTTL parses the optional build lock TTL duration string.
func ParseLockTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid lockTTL duration: %w", err)
	}
	return dur, nil
}
