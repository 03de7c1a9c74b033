package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gridline/internal/api"
	"gridline/internal/config"
	"gridline/internal/engine"
	"gridline/internal/eth"
	"gridline/internal/logging"
	"gridline/internal/market"
	"gridline/internal/notify"
	"gridline/internal/paper"
	"gridline/internal/risk"
	"gridline/internal/scheduler"
	"gridline/internal/store"
)

const banner = `
╔══════════════════════════════════════╗
║      GRIDLINE Grid Trader v0.3       ║
║                                      ║
╚══════════════════════════════════════╝
`

const apiPort = 3001

func main() {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	cfg.Print()

	log := logging.New(cfg.LogLevel)

	// Database
	log.Info().Str("host", cfg.DBHost).Int("port", cfg.DBPort).Str("db", cfg.DBName).
		Msg("connecting to database")
	pool, err := store.Connect(cfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	st := store.New(pool)

	// Graceful shutdown context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared Dune client (engine + scheduler), cache warmed from the store.
	var dune *market.DuneClient
	if cfg.DuneAPIKey != "" {
		dune = market.NewDuneClient(cfg.DuneAPIKey, market.DuneOptions{
			Method:       cfg.SRMethod,
			LookbackDays: cfg.SRLookbackDays,
			RefreshHours: cfg.SRRefreshHours,
		}, log)
		if latest, err := st.SR.LatestSignal(ctx); err == nil && latest != nil {
			dune.SeedCache(latest)
		}
	}

	notifier := notify.NewSender(cfg.WebhookURL, cfg.BotName, log)
	prices := market.NewPriceFeed(log)
	guard := risk.NewGuardian(risk.Limits{
		MaxDailyTrades:     cfg.MaxDailyTrades,
		MaxPositionSizeUSD: cfg.MaxPositionSizeUSD,
		StopLossPercent:    cfg.StopLossPercent,
		TakeProfitPercent:  cfg.TakeProfitPercent,
	}, st.Trades)

	// Execution backend
	var (
		executor engine.Executor
		mode     engine.Mode
		ethc     *eth.Client
	)
	if cfg.PaperTradingEnabled {
		mode = engine.ModePaper
		wallet := paper.NewWallet(st, cfg.PaperInitialETH, cfg.PaperInitialUSDC, log)
		if err := wallet.Init(ctx); err != nil {
			log.Fatal().Err(err).Msg("paper wallet init failed")
		}
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		executor = paper.NewExecutor(wallet, rng, cfg.PaperSlippagePercent, log)
	} else {
		mode = engine.ModeLive
		ethc, err = eth.NewClient(cfg.EthereumAPIEndpoint, cfg.PrivateKey,
			int64(cfg.ChainID), cfg.GasLimit, cfg.GasMultiplier)
		if err != nil {
			log.Fatal().Err(err).Msg("ethereum client init failed")
		}
		defer ethc.Close()

		executor, err = eth.NewRouter(ethc, eth.RouterConfig{
			RouterAddr:         cfg.UniswapRouterAddress,
			WETHAddr:           cfg.WETHAddress,
			QuoteAddr:          cfg.QuoteTokenAddress,
			QuoteSymbol:        cfg.QuoteTokenSymbol,
			QuoteDec:           int32(cfg.QuoteTokenDecimals),
			MaxSlippagePercent: cfg.SlippageTolerance,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("router init failed")
		}
	}

	// Typed-nil guard: only hand the engine a signal source that exists.
	var signals engine.SignalSource
	if dune != nil {
		signals = dune
	}

	eng := engine.New(engine.Config{
		Mode:           mode,
		Levels:         cfg.GridLevels,
		SpacingPercent: cfg.GridSpacingPercent,
		AmountPerLevel: cfg.AmountPerGrid,
		BasePrice:      cfg.GridBasePrice,
		PriceMin:       cfg.PriceSanityMin,
		PriceMax:       cfg.PriceSanityMax,
		TickInterval:   time.Duration(cfg.PriceCheckIntervalSeconds) * time.Second,
		Cooldown:       time.Duration(cfg.PostTradeCooldownSeconds) * time.Second,
		StatusInterval: time.Duration(cfg.StatusReportIntervalMinutes) * time.Minute,
	}, engine.Deps{
		Log:      log,
		Prices:   prices,
		Signals:  signals,
		Exec:     executor,
		Store:    st,
		Notifier: notifier,
		Guard:    guard,
	})

	if err := eng.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("engine init failed")
	}

	// 1. API server
	srv := api.NewServer(pool, apiPort, cfg.APIKey, cfg.CORSAllowOrigin, log)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("API server error")
		}
	}()

	// 2. Trading engine
	engineDone := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(engineDone)
	}()

	// 3. S/R scheduler (shares the Dune client)
	var sched *scheduler.Scheduler
	if dune != nil {
		sched = scheduler.New(dune, st.SR, eng.StateView, eng.Rebuild, scheduler.Config{
			Interval:         time.Duration(cfg.SRSchedulerIntervalMinutes) * time.Minute,
			ThresholdPercent: cfg.SRChangeThresholdPercent,
		}, log)
		sched.Start()
	} else {
		log.Warn().Msg("scheduler skipped, no Dune API key configured")
	}

	log.Info().Msg("all services started")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	if sched != nil {
		sched.Stop()
	}

	eng.Stop()
	<-engineDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("API shutdown error")
	}
	log.Info().Msg("shutdown complete")
}
