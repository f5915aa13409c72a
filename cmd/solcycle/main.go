package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"solcycle/internal/application/port"
	"solcycle/internal/application/service"
	"solcycle/internal/application/usecase/trader"
	"solcycle/internal/domain/model"
	domainsvc "solcycle/internal/domain/service"
	"solcycle/internal/infrastructure/chain"
	"solcycle/internal/infrastructure/config"
	"solcycle/internal/infrastructure/logger"
	"solcycle/internal/infrastructure/marketdata"
	"solcycle/internal/infrastructure/ratelimit"
	"solcycle/internal/infrastructure/storage"
	"solcycle/internal/infrastructure/storage/composite"
	"solcycle/internal/infrastructure/storage/postgres"
	redispub "solcycle/internal/infrastructure/storage/redis"
	"solcycle/internal/infrastructure/storage/sqlite"
	"solcycle/internal/infrastructure/swap"
	"solcycle/internal/interfaces/console"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	keyStr := os.Getenv("PRIVATE_KEY")
	if keyStr == "" {
		log.Fatal().Msg("PRIVATE_KEY not set")
	}
	wallet, err := solana.PrivateKeyFromBase58(keyStr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid PRIVATE_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("open storage failed")
	}
	defer repo.Close()

	var pub port.EventPublisher = console.NewSink()
	if cfg.Redis.Enabled {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pub = redispub.New(rdb, cfg.Redis.Prefix, cfg.Redis.TradeStream, cfg.Redis.TradeChan)
	}
	defer pub.Close()

	chainClient := chain.New(cfg.RPC.URL, wallet)
	swapClient := swap.New(cfg.Swap.QuoteURL, cfg.Swap.SwapURL, ratelimit.New(cfg.SwapPacing()))
	marketFeed := marketdata.New(cfg.MarketData.SearchURL, ratelimit.New(cfg.MarketPacing()))

	ledger := service.NewLedger(repo, chainClient, service.LedgerConfig{
		DustThreshold:   1e-6,
		BlockTimeout:    cfg.BlockTimeout(),
		CooldownTimeout: cfg.CooldownTimeout(),
		PriceFailureCap: cfg.Limits.PriceFailureCap,
		BuyFailureCap:   cfg.Limits.BuyFailureCap,
	})

	oracle := service.NewOracle(swapClient, chainClient, repo, service.OracleConfig{
		CeilingSOL:      cfg.Oracle.CeilingSOL,
		Attempts:        cfg.Oracle.Attempts,
		BackoffBase:     500 * time.Millisecond,
		SnapshotMaxAge:  cfg.SnapshotMaxAge(),
		SlippageBps:     cfg.Swap.SlippageBps,
		DecimalAttempts: 3,
	})

	screener := service.NewScreener(marketFeed, swapClient, chainClient, ledger, oracle, service.ScreenerConfig{
		Query:               cfg.MarketData.Query,
		ShortlistSize:       cfg.Screener.ShortlistSize,
		MinLiquidityUSD:     cfg.Screener.MinLiquidityUSD,
		RelaxedLiquidityUSD: cfg.Screener.RelaxedLiquidityUSD,
		MinVolumeUSD:        cfg.Screener.MinVolumeUSD,
		FDVMinUSD:           cfg.Screener.FDVMinUSD,
		FDVMaxUSD:           cfg.Screener.FDVMaxUSD,
		MaxPairAge:          cfg.MaxPairAge(),
		RelaxedPairAge:      cfg.RelaxedPairAge(),
		ProbeLamports:       lamports(cfg.Wallet.TradeSOL),
		SlippageBps:         cfg.Swap.SlippageBps,
		PurchaseAttemptCap:  cfg.Screener.PurchaseAttemptCap,
	})

	executor := service.NewExecutor(chainClient, swapClient, ledger, oracle, repo, pub, service.ExecutorConfig{
		MaxAttempts:         cfg.Executor.MaxAttempts,
		SlippageBps:         cfg.Swap.SlippageBps,
		ReserveLamports:     lamports(cfg.Wallet.ReserveSOL),
		FeeEstimateLamports: lamports(cfg.Executor.FeeEstimateSOL),
		MinSellOutLamports:  lamports(cfg.Executor.MinSellOutSOL),
		MinPoolLiquidityUSD: cfg.Executor.MinPoolLiquidityUSD,
		ConfirmTimeout:      cfg.ConfirmTimeout(),
		AttemptBackoff:      cfg.AttemptBackoff(),
		FeeMultiplier:       cfg.Executor.FeeMultiplier,
		MinPriorityFee:      cfg.Executor.MinPriorityFee,
	})

	policy := &domainsvc.Policy{
		StopLossGrowth:    cfg.Policy.StopLossGrowth,
		InitialTakeProfit: cfg.Policy.InitialTakeProfit,
		ScaleOutGrowth:    cfg.Policy.ScaleOutGrowth,
		StagnationFloor:   cfg.Policy.StagnationFloor,
		ScaleOutFraction:  cfg.Policy.ScaleOutFraction,
		MaxHold:           cfg.MaxHold(),
	}

	svc := trader.NewService(trader.ServiceDeps{
		Chain:    chainClient,
		Repo:     repo,
		Ledger:   ledger,
		Oracle:   oracle,
		Screener: screener,
		Executor: executor,
		Policy:   policy,

		CycleInterval:    cfg.CycleInterval(),
		RefreshInterval:  cfg.RefreshInterval(),
		StatsInterval:    cfg.StatsInterval(),
		RestartDelay:     cfg.RestartDelay(),
		MaxPositions:     cfg.App.MaxPositions,
		TradeLamports:    lamports(cfg.Wallet.TradeSOL),
		ReserveLamports:  lamports(cfg.Wallet.ReserveSOL),
		CriticalLamports: lamports(cfg.Wallet.CriticalSOL),
	})

	balance, err := chainClient.Balance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("startup balance read failed")
	}
	log.Info().
		Str("config", *configPath).
		Str("wallet", chainClient.WalletAddress()).
		Float64("balance_sol", float64(balance)/model.LamportsPerSOL).
		Str("storage", cfg.Storage.Driver).
		Bool("redis", cfg.Redis.Enabled).
		Msg("solcycle started")

	if err := svc.Run(ctx); err != nil {
		log.Error().Err(err).Msg("trader service exited")
	}
}

func openRepository(cfg *config.Config) (port.Repository, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return storage.NewMemoryRepo(), nil
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN)
	case "both":
		sq, err := sqlite.New(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		pg, err := postgres.New(cfg.Storage.PostgresDSN)
		if err != nil {
			_ = sq.Close()
			return nil, err
		}
		return composite.New(sq, pg), nil
	default:
		return sqlite.New(cfg.Storage.SQLitePath)
	}
}

func lamports(sol float64) uint64 {
	return uint64(sol * model.LamportsPerSOL)
}
