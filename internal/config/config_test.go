package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.StorageDriver != StorageDriverPostgres {
		t.Errorf("got port=%s driver=%s", cfg.Port, cfg.StorageDriver)
	}
	if !cfg.StartingBalance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("starting balance = %s", cfg.StartingBalance)
	}
	if cfg.TokenTTL != 24*time.Hour || cfg.DBMaxConns != 10 || cfg.NotifyMaxWorkers != 5 {
		t.Errorf("got %+v", cfg)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("STARTING_BALANCE", "12.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("TOKEN_TTL", "90m")
	t.Setenv("DB_MAX_CONNS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.StorageDriver != StorageDriverMemory || cfg.DBMaxConns != 3 {
		t.Errorf("got %+v", cfg)
	}
	if !cfg.StartingBalance.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("balance = %s", cfg.StartingBalance)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("origins = %v", cfg.CORSOrigins)
	}
	if cfg.TokenTTL != 90*time.Minute {
		t.Errorf("ttl = %s", cfg.TokenTTL)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("JWT_SECRET=from-file\nPORT=7070\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "6060")
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.JWTSecret != "from-file" {
		t.Errorf("secret = %q", cfg.JWTSecret)
	}
	if cfg.Port != "6060" {
		t.Errorf("process env should win, port = %s", cfg.Port)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string][2]string{
		"bad driver":       {"STORAGE_DRIVER", "sqlite"},
		"bad balance":      {"STARTING_BALANCE", "lots"},
		"negative balance": {"STARTING_BALANCE", "-1"},
		"bad ttl":          {"TOKEN_TTL", "forever"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for missing env file")
	}
}
