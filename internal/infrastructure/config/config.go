package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	App struct {
		CycleIntervalSec   int    `toml:"cycle_interval_sec"`
		RefreshIntervalMin int    `toml:"refresh_interval_min"`
		StatsIntervalMin   int    `toml:"stats_interval_min"`
		RestartDelaySec    int    `toml:"restart_delay_sec"`
		MaxPositions       int    `toml:"max_positions"`
		LogLevel           string `toml:"log_level"`
	} `toml:"app"`

	Wallet struct {
		TradeSOL    float64 `toml:"trade_sol"`
		ReserveSOL  float64 `toml:"reserve_sol"`
		CriticalSOL float64 `toml:"critical_sol"`
	} `toml:"wallet"`

	RPC struct {
		URL string `toml:"url"`
	} `toml:"rpc"`

	Swap struct {
		QuoteURL    string `toml:"quote_url"`
		SwapURL     string `toml:"swap_url"`
		PacingMs    int    `toml:"pacing_ms"`
		SlippageBps int    `toml:"slippage_bps"`
	} `toml:"swap"`

	MarketData struct {
		SearchURL string `toml:"search_url"`
		Query     string `toml:"query"`
		PacingMs  int    `toml:"pacing_ms"`
	} `toml:"marketdata"`

	Screener struct {
		ShortlistSize       int     `toml:"shortlist_size"`
		MinLiquidityUSD     float64 `toml:"min_liquidity_usd"`
		RelaxedLiquidityUSD float64 `toml:"relaxed_liquidity_usd"`
		MinVolumeUSD        float64 `toml:"min_volume_usd"`
		FDVMinUSD           float64 `toml:"fdv_min_usd"`
		FDVMaxUSD           float64 `toml:"fdv_max_usd"`
		MaxPairAgeHours     int     `toml:"max_pair_age_hours"`
		RelaxedPairAgeHours int     `toml:"relaxed_pair_age_hours"`
		PurchaseAttemptCap  int     `toml:"purchase_attempt_cap"`
	} `toml:"screener"`

	Policy struct {
		StopLossGrowth    float64 `toml:"stop_loss_growth"`
		InitialTakeProfit float64 `toml:"initial_take_profit"`
		ScaleOutGrowth    float64 `toml:"scale_out_growth"`
		StagnationFloor   float64 `toml:"stagnation_floor"`
		ScaleOutFraction  float64 `toml:"scale_out_fraction"`
		MaxHoldHours      int     `toml:"max_hold_hours"`
	} `toml:"policy"`

	Executor struct {
		MaxAttempts         int     `toml:"max_attempts"`
		ConfirmTimeoutSec   int     `toml:"confirm_timeout_sec"`
		AttemptBackoffSec   int     `toml:"attempt_backoff_sec"`
		FeeEstimateSOL      float64 `toml:"fee_estimate_sol"`
		MinSellOutSOL       float64 `toml:"min_sell_out_sol"`
		MinPoolLiquidityUSD float64 `toml:"min_pool_liquidity_usd"`
		FeeMultiplier       float64 `toml:"fee_multiplier"`
		MinPriorityFee      uint64  `toml:"min_priority_fee"`
	} `toml:"executor"`

	Oracle struct {
		CeilingSOL        float64 `toml:"ceiling_sol"`
		Attempts          int     `toml:"attempts"`
		SnapshotMaxAgeMin int     `toml:"snapshot_max_age_min"`
	} `toml:"oracle"`

	Limits struct {
		BlockHours      int `toml:"block_hours"`
		CooldownHours   int `toml:"cooldown_hours"`
		PriceFailureCap int `toml:"price_failure_cap"`
		BuyFailureCap   int `toml:"buy_failure_cap"`
	} `toml:"limits"`

	Storage struct {
		Driver      string `toml:"driver"` // sqlite | postgres | both | memory
		SQLitePath  string `toml:"sqlite_path"`
		PostgresDSN string `toml:"postgres_dsn"`
	} `toml:"storage"`

	Redis struct {
		Enabled     bool   `toml:"enabled"`
		Addr        string `toml:"addr"`
		Password    string `toml:"password"`
		DB          int    `toml:"db"`
		Prefix      string `toml:"prefix"`
		TradeStream string `toml:"trade_stream"`
		TradeChan   string `toml:"trade_chan"`
	} `toml:"redis"`
}

func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets deployment secrets override the file.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		cfg.RPC.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("POSTGRES_DSN")); v != "" {
		cfg.Storage.PostgresDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.CycleIntervalSec <= 0 {
		cfg.App.CycleIntervalSec = 30
	}
	if cfg.App.RefreshIntervalMin <= 0 {
		cfg.App.RefreshIntervalMin = 10
	}
	if cfg.App.StatsIntervalMin <= 0 {
		cfg.App.StatsIntervalMin = 5
	}
	if cfg.App.RestartDelaySec <= 0 {
		cfg.App.RestartDelaySec = 10
	}
	if cfg.App.MaxPositions <= 0 {
		cfg.App.MaxPositions = 3
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}

	if cfg.Wallet.TradeSOL <= 0 {
		cfg.Wallet.TradeSOL = 0.05
	}
	if cfg.Wallet.ReserveSOL <= 0 {
		cfg.Wallet.ReserveSOL = 0.05
	}
	if cfg.Wallet.CriticalSOL <= 0 {
		cfg.Wallet.CriticalSOL = 0.02
	}

	if cfg.Swap.PacingMs <= 0 {
		cfg.Swap.PacingMs = 1100
	}
	if cfg.Swap.SlippageBps <= 0 {
		cfg.Swap.SlippageBps = 300
	}
	if cfg.MarketData.PacingMs <= 0 {
		cfg.MarketData.PacingMs = 1100
	}
	if cfg.MarketData.Query == "" {
		cfg.MarketData.Query = "SOL"
	}

	if cfg.Screener.ShortlistSize <= 0 {
		cfg.Screener.ShortlistSize = 10
	}
	if cfg.Screener.MinLiquidityUSD <= 0 {
		cfg.Screener.MinLiquidityUSD = 2000
	}
	if cfg.Screener.RelaxedLiquidityUSD <= 0 {
		cfg.Screener.RelaxedLiquidityUSD = 1000
	}
	if cfg.Screener.MinVolumeUSD <= 0 {
		cfg.Screener.MinVolumeUSD = 5000
	}
	if cfg.Screener.FDVMinUSD <= 0 {
		cfg.Screener.FDVMinUSD = 50_000
	}
	if cfg.Screener.FDVMaxUSD <= 0 {
		cfg.Screener.FDVMaxUSD = 50_000_000
	}
	if cfg.Screener.MaxPairAgeHours <= 0 {
		cfg.Screener.MaxPairAgeHours = 24
	}
	if cfg.Screener.RelaxedPairAgeHours <= 0 {
		cfg.Screener.RelaxedPairAgeHours = 48
	}
	if cfg.Screener.PurchaseAttemptCap <= 0 {
		cfg.Screener.PurchaseAttemptCap = 3
	}

	if cfg.Policy.StopLossGrowth <= 0 {
		cfg.Policy.StopLossGrowth = 0.5
	}
	if cfg.Policy.InitialTakeProfit <= 0 {
		cfg.Policy.InitialTakeProfit = 1.3
	}
	if cfg.Policy.ScaleOutGrowth <= 0 {
		cfg.Policy.ScaleOutGrowth = 1.5
	}
	if cfg.Policy.StagnationFloor <= 0 {
		cfg.Policy.StagnationFloor = 1.15
	}
	if cfg.Policy.ScaleOutFraction <= 0 {
		cfg.Policy.ScaleOutFraction = 0.25
	}
	if cfg.Policy.MaxHoldHours <= 0 {
		cfg.Policy.MaxHoldHours = 6
	}

	if cfg.Executor.MaxAttempts <= 0 {
		cfg.Executor.MaxAttempts = 4
	}
	if cfg.Executor.ConfirmTimeoutSec <= 0 {
		cfg.Executor.ConfirmTimeoutSec = 45
	}
	if cfg.Executor.AttemptBackoffSec <= 0 {
		cfg.Executor.AttemptBackoffSec = 2
	}
	if cfg.Executor.FeeEstimateSOL <= 0 {
		cfg.Executor.FeeEstimateSOL = 0.001
	}
	if cfg.Executor.MinSellOutSOL <= 0 {
		cfg.Executor.MinSellOutSOL = 0.0001
	}
	if cfg.Executor.MinPoolLiquidityUSD <= 0 {
		cfg.Executor.MinPoolLiquidityUSD = 500
	}
	if cfg.Executor.FeeMultiplier <= 0 {
		cfg.Executor.FeeMultiplier = 1.5
	}
	if cfg.Executor.MinPriorityFee == 0 {
		cfg.Executor.MinPriorityFee = 10_000
	}

	if cfg.Oracle.CeilingSOL <= 0 {
		cfg.Oracle.CeilingSOL = 10_000
	}
	if cfg.Oracle.Attempts <= 0 {
		cfg.Oracle.Attempts = 3
	}
	if cfg.Oracle.SnapshotMaxAgeMin <= 0 {
		cfg.Oracle.SnapshotMaxAgeMin = 15
	}

	if cfg.Limits.BlockHours <= 0 {
		cfg.Limits.BlockHours = 24
	}
	if cfg.Limits.CooldownHours <= 0 {
		cfg.Limits.CooldownHours = 12
	}
	if cfg.Limits.PriceFailureCap <= 0 {
		cfg.Limits.PriceFailureCap = 5
	}
	if cfg.Limits.BuyFailureCap <= 0 {
		cfg.Limits.BuyFailureCap = 3
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/solcycle.db"
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "solcycle"
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.RPC.URL) == "" {
		return errors.New("rpc.url is empty")
	}
	switch cfg.Storage.Driver {
	case "sqlite", "memory":
	case "postgres", "both":
		if strings.TrimSpace(cfg.Storage.PostgresDSN) == "" {
			return errors.New("storage.postgres_dsn empty but driver requires postgres")
		}
	default:
		return errors.New("storage.driver must be sqlite, postgres, both or memory")
	}
	if cfg.Redis.Enabled && strings.TrimSpace(cfg.Redis.Addr) == "" {
		return errors.New("redis.addr empty but enabled")
	}
	if cfg.Wallet.CriticalSOL >= cfg.Wallet.ReserveSOL+cfg.Wallet.TradeSOL {
		return errors.New("wallet.critical_sol must sit below reserve plus trade size")
	}
	if cfg.Policy.StopLossGrowth >= cfg.Policy.InitialTakeProfit {
		return errors.New("policy.stop_loss_growth must be below initial_take_profit")
	}
	return nil
}

// The file keeps plain integers; callers get durations.

func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.App.CycleIntervalSec) * time.Second
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.App.RefreshIntervalMin) * time.Minute
}

func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.App.StatsIntervalMin) * time.Minute
}

func (c *Config) RestartDelay() time.Duration {
	return time.Duration(c.App.RestartDelaySec) * time.Second
}

func (c *Config) SwapPacing() time.Duration {
	return time.Duration(c.Swap.PacingMs) * time.Millisecond
}

func (c *Config) MarketPacing() time.Duration {
	return time.Duration(c.MarketData.PacingMs) * time.Millisecond
}

func (c *Config) MaxPairAge() time.Duration {
	return time.Duration(c.Screener.MaxPairAgeHours) * time.Hour
}

func (c *Config) RelaxedPairAge() time.Duration {
	return time.Duration(c.Screener.RelaxedPairAgeHours) * time.Hour
}

func (c *Config) MaxHold() time.Duration {
	return time.Duration(c.Policy.MaxHoldHours) * time.Hour
}

func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Executor.ConfirmTimeoutSec) * time.Second
}

func (c *Config) AttemptBackoff() time.Duration {
	return time.Duration(c.Executor.AttemptBackoffSec) * time.Second
}

func (c *Config) SnapshotMaxAge() time.Duration {
	return time.Duration(c.Oracle.SnapshotMaxAgeMin) * time.Minute
}

func (c *Config) BlockTimeout() time.Duration {
	return time.Duration(c.Limits.BlockHours) * time.Hour
}

func (c *Config) CooldownTimeout() time.Duration {
	return time.Duration(c.Limits.CooldownHours) * time.Hour
}
