package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const baseConfig = `
port: "8087"
logLevel: "info"
redisAddr: "localhost:6379"
compilerURL: "http://localhost:8090"
buildToken: "builder-secret"
referenceTimezone: "America/New_York"
reflectionWindow: "4320h"
pendingTTL: "336h"
lockTTL: "24h"
buildConcurrency: 4
pollRateLimitPerMinute: 30
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("COMPILER_URL", "http://compiler:9000")
	t.Setenv("REFERENCE_TIMEZONE", "UTC")
	t.Setenv("BUILD_TOKEN", "rotated-secret")
	t.Setenv("DREAM_POLL_RATE_LIMIT_PER_MINUTE", "12")

	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.RedisAddr != "redis:6380" {
		t.Fatalf("redisAddr = %q, want redis:6380", cfg.RedisAddr)
	}
	if cfg.CompilerURL != "http://compiler:9000" {
		t.Fatalf("compilerURL = %q, want http://compiler:9000", cfg.CompilerURL)
	}
	if cfg.ReferenceTimezone != "UTC" {
		t.Fatalf("referenceTimezone = %q, want UTC", cfg.ReferenceTimezone)
	}
	if cfg.BuildToken != "rotated-secret" {
		t.Fatalf("buildToken = %q, want rotated-secret", cfg.BuildToken)
	}
	if cfg.PollRateLimitPerMinute != 12 {
		t.Fatalf("pollRateLimitPerMinute = %d, want 12", cfg.PollRateLimitPerMinute)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	window, err := ParseReflectionWindow(cfg.ReflectionWindow)
	if err != nil {
		t.Fatalf("parse reflection window: %v", err)
	}
	if window != 180*24*time.Hour {
		t.Fatalf("reflectionWindow = %s, want 4320h", window)
	}
	pending, err := ParsePendingTTL(cfg.PendingTTL)
	if err != nil {
		t.Fatalf("parse pending TTL: %v", err)
	}
	if pending != 14*24*time.Hour {
		t.Fatalf("pendingTTL = %s, want 336h", pending)
	}
	lock, err := ParseLockTTL(cfg.LockTTL)
	if err != nil {
		t.Fatalf("parse lock TTL: %v", err)
	}
	if lock != 24*time.Hour {
		t.Fatalf("lockTTL = %s, want 24h", lock)
	}
	if _, err := ParsePendingTTL("two weeks"); err == nil {
		t.Fatalf("ParsePendingTTL expected error for non-duration input")
	}
}

func TestValidateConfigRejectsMissingBuildToken(t *testing.T) {
	cfg := FileConfig{
		Port:        "8087",
		RedisAddr:   "localhost:6379",
		CompilerURL: "http://localhost:8090",
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for missing buildToken")
	}
}

func TestValidateConfigRejectsMissingRedis(t *testing.T) {
	cfg := FileConfig{
		Port:        "8087",
		CompilerURL: "http://localhost:8090",
		BuildToken:  "builder-secret",
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("validateConfig() expected error for missing redisAddr")
	}
}
