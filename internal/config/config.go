package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Secrets (from .env)
	DuneAPIKey          string
	WalletAddress       string
	PrivateKey          string
	EthereumAPIEndpoint string
	WebhookURL          string
	BotName             string
	APIKey              string
	CORSAllowOrigin     string
	LogLevel            string

	// Database
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Blockchain
	ChainID              int
	QuoteTokenAddress    string
	QuoteTokenSymbol     string
	QuoteTokenDecimals   int
	WETHAddress          string
	UniswapRouterAddress string

	// Support/Resistance
	SRMethod                   string
	SRRefreshHours             int
	SRLookbackDays             int
	SRChangeThresholdPercent   decimal.Decimal
	SRSchedulerIntervalMinutes int

	// Risk Management
	MaxDailyTrades     int
	MaxPositionSizeUSD decimal.Decimal
	StopLossPercent    float64
	TakeProfitPercent  float64

	// Paper Trading
	PaperTradingEnabled  bool
	PaperInitialETH      decimal.Decimal
	PaperInitialUSDC     decimal.Decimal
	PaperSlippagePercent float64

	// Grid Configuration
	GridLevels         int
	GridSpacingPercent decimal.Decimal
	GridBasePrice      decimal.Decimal
	AmountPerGrid      decimal.Decimal

	// Trading Parameters
	SlippageTolerance decimal.Decimal
	GasMultiplier     float64
	GasLimit          int

	// Price feed sanity bounds
	PriceSanityMin decimal.Decimal
	PriceSanityMax decimal.Decimal

	// Timing
	PriceCheckIntervalSeconds   int
	StatusReportIntervalMinutes int
	PostTradeCooldownSeconds    int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Secrets
		DuneAPIKey:          envStr("DUNE_API_KEY", ""),
		WalletAddress:       envStr("WALLET_ADDRESS", ""),
		PrivateKey:          envStr("PRIVATE_KEY", ""),
		EthereumAPIEndpoint: envStr("ETHEREUM_API_ENDPOINT", ""),
		WebhookURL:          envStr("WEBHOOK_URL", ""),
		BotName:             envStr("BOT_NAME", "GridlineBot"),
		APIKey:              envStr("API_KEY", ""),
		CORSAllowOrigin:     envStr("CORS_ALLOW_ORIGIN", "*"),
		LogLevel:            envStr("LOG_LEVEL", "info"),

		// Database
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "gridline"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),

		// Blockchain
		ChainID:              envInt("CHAIN_ID", 1),
		QuoteTokenAddress:    envStr("QUOTE_TOKEN_ADDRESS", "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		QuoteTokenSymbol:     envStr("QUOTE_TOKEN_SYMBOL", "USDC"),
		QuoteTokenDecimals:   envInt("QUOTE_TOKEN_DECIMALS", 6),
		WETHAddress:          "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		UniswapRouterAddress: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D",

		// Support/Resistance
		SRMethod:                   envStr("SR_METHOD", "simple"),
		SRRefreshHours:             envInt("SR_REFRESH_HOURS", 48),
		SRLookbackDays:             envInt("SR_LOOKBACK_DAYS", 14),
		SRChangeThresholdPercent:   envDec("SR_CHANGE_THRESHOLD_PERCENT", "5"),
		SRSchedulerIntervalMinutes: envInt("SR_SCHEDULER_INTERVAL_MINUTES", 60),

		// Risk Management
		MaxDailyTrades:     envInt("MAX_DAILY_TRADES", 50),
		MaxPositionSizeUSD: envDec("MAX_POSITION_SIZE_USD", "10000"),
		StopLossPercent:    envFloat("STOP_LOSS_PERCENT", 0),
		TakeProfitPercent:  envFloat("TAKE_PROFIT_PERCENT", 0),

		// Paper Trading
		PaperTradingEnabled:  envBool("PAPER_TRADING_ENABLED", true),
		PaperInitialETH:      envDec("PAPER_INITIAL_ETH", "1.0"),
		PaperInitialUSDC:     envDec("PAPER_INITIAL_USDC", "1000"),
		PaperSlippagePercent: envFloat("PAPER_SLIPPAGE_PERCENT", 0.5),

		// Grid
		GridLevels:         envInt("GRID_LEVELS", 10),
		GridSpacingPercent: envDec("GRID_SPACING_PERCENT", "2"),
		GridBasePrice:      envDec("GRID_BASE_PRICE", "0"),
		AmountPerGrid:      envDec("AMOUNT_PER_GRID", "100"),

		// Trading Parameters
		SlippageTolerance: envDec("SLIPPAGE_TOLERANCE", "1.5"),
		GasMultiplier:     envFloat("GAS_MULTIPLIER", 1.2),
		GasLimit:          envInt("GAS_LIMIT", 250000),

		// Price feed sanity bounds
		PriceSanityMin: envDec("PRICE_SANITY_MIN", "100"),
		PriceSanityMax: envDec("PRICE_SANITY_MAX", "100000"),

		// Timing
		PriceCheckIntervalSeconds:   envInt("PRICE_CHECK_INTERVAL_SECONDS", 30),
		StatusReportIntervalMinutes: envInt("STATUS_REPORT_INTERVAL_MINUTES", 60),
		PostTradeCooldownSeconds:    envInt("POST_TRADE_COOLDOWN_SECONDS", 60),
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if !c.PaperTradingEnabled {
		if c.WalletAddress == "" {
			errs = append(errs, "WALLET_ADDRESS is required for live trading")
		}
		if c.PrivateKey == "" {
			errs = append(errs, "PRIVATE_KEY is required for live trading")
		}
		if c.EthereumAPIEndpoint == "" {
			errs = append(errs, "ETHEREUM_API_ENDPOINT is required for live trading")
		}
	}
	if c.GridLevels < 2 {
		errs = append(errs, "GRID_LEVELS must be at least 2")
	}
	if c.GridSpacingPercent.Sign() <= 0 {
		errs = append(errs, "GRID_SPACING_PERCENT must be positive")
	}
	if c.AmountPerGrid.Sign() <= 0 {
		errs = append(errs, "AMOUNT_PER_GRID must be positive")
	}

	if c.DuneAPIKey == "" {
		fmt.Println("[WARN] DUNE_API_KEY not set — will use current price for grid center (fallback mode)")
	}
	if c.StopLossPercent == 0 && c.TakeProfitPercent == 0 {
		fmt.Println("[WARN] STOP_LOSS_PERCENT and TAKE_PROFIT_PERCENT are both 0 — no portfolio circuit breakers active")
	}
	if c.MaxDailyTrades == 0 && c.MaxPositionSizeUSD.IsZero() {
		fmt.Println("[WARN] MAX_DAILY_TRADES and MAX_POSITION_SIZE_USD are both 0 — no per-trade limits active")
	}
	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set — REST API has no authentication")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== Gridline Trading Bot Configuration ===")

	if c.PaperTradingEnabled {
		fmt.Println("════════════════════════════════════════")
		fmt.Println("  PAPER TRADING MODE ENABLED")
		fmt.Println("  No real transactions will execute")
		fmt.Println("════════════════════════════════════════")
		fmt.Printf("Paper Initial ETH: %s\n", c.PaperInitialETH)
		fmt.Printf("Paper Initial %s: %s\n", c.QuoteTokenSymbol, c.PaperInitialUSDC)
		fmt.Printf("Paper Slippage: 0-%.1f%%\n", c.PaperSlippagePercent)
	} else {
		fmt.Println("  LIVE TRADING MODE")
	}

	fmt.Println("--------------------------------------")
	fmt.Printf("Chain ID: %d\n", c.ChainID)
	if len(c.WalletAddress) > 16 {
		fmt.Printf("Wallet: %s...%s\n", c.WalletAddress[:10], c.WalletAddress[len(c.WalletAddress)-6:])
	}
	fmt.Printf("Trading Pair: ETH/%s\n", c.QuoteTokenSymbol)
	fmt.Printf("Quote Token: %s (%s...)\n", c.QuoteTokenSymbol, truncAddr(c.QuoteTokenAddress))
	fmt.Println("--------------------------------------")
	fmt.Println("Grid Configuration:")
	fmt.Printf("  Levels: %d\n", c.GridLevels)
	fmt.Printf("  Spacing: %s%%\n", c.GridSpacingPercent)
	fmt.Printf("  Amount/Grid: $%s\n", c.AmountPerGrid)
	fmt.Println("--------------------------------------")
	fmt.Println("Support/Resistance Configuration:")
	fmt.Printf("  S/R Method: %s\n", c.SRMethod)
	fmt.Printf("  S/R Refresh: every %d hours\n", c.SRRefreshHours)
	fmt.Printf("  S/R Lookback: %d days\n", c.SRLookbackDays)
	fmt.Printf("  Rebuild threshold: %s%% midpoint drift\n", c.SRChangeThresholdPercent)
	fmt.Printf("  Dune API: %s\n", boolLabel(c.DuneAPIKey != "", "configured", "not set (fallback mode)"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDec(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(fallback)
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func truncAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10]
	}
	return addr
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
