package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.GridLevels != 10 {
		t.Fatalf("GridLevels default: %d", cfg.GridLevels)
	}
	if !cfg.GridSpacingPercent.Equal(decimal.RequireFromString("2")) {
		t.Fatalf("GridSpacingPercent default: %s", cfg.GridSpacingPercent)
	}
	if !cfg.SRChangeThresholdPercent.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("SRChangeThresholdPercent default: %s", cfg.SRChangeThresholdPercent)
	}
	if !cfg.PaperTradingEnabled {
		t.Fatal("paper trading should default on")
	}
}

func TestEnvDec(t *testing.T) {
	t.Setenv("TEST_DEC_VALUE", "2650.42")
	if got := envDec("TEST_DEC_VALUE", "0"); !got.Equal(decimal.RequireFromString("2650.42")) {
		t.Fatalf("envDec: %s", got)
	}
	t.Setenv("TEST_DEC_VALUE", "not-a-number")
	if got := envDec("TEST_DEC_VALUE", "7"); !got.Equal(decimal.RequireFromString("7")) {
		t.Fatalf("envDec fallback: %s", got)
	}
}

func TestValidate_LiveModeRequiresSecrets(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	cfg.PaperTradingEnabled = false
	cfg.WalletAddress = ""
	cfg.PrivateKey = ""
	cfg.EthereumAPIEndpoint = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("live mode without secrets should fail validation")
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBUser: "u", DBPassword: "p", DBHost: "h", DBPort: 5432, DBName: "d"}
	want := "postgres://u:p@h:5432/d?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Fatalf("DSN: got %s", got)
	}
}
