// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"breakout-bot/internal/allocation"
	"breakout-bot/internal/cache"
	"breakout-bot/internal/engine"
	"breakout-bot/internal/execution"
	"breakout-bot/internal/strategy"
	"breakout-bot/internal/types"
)

// Config represents the full application configuration.
type Config struct {
	Engine      EngineConfig       `yaml:"engine"`
	Strategy    StrategyConfig     `yaml:"strategy"`
	Allocation  AllocationConfig   `yaml:"allocation"`
	Execution   ExecutionConfig    `yaml:"execution"`
	Cache       CacheConfig        `yaml:"cache"`
	Scheduler   SchedulerConfig    `yaml:"scheduler"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Alerting    AlertingConfig     `yaml:"alerting"`
	Exchanges   []ExchangeConfig   `yaml:"exchanges"`
	Instruments []InstrumentConfig `yaml:"instruments"`
}

// EngineConfig holds engine-level settings.
type EngineConfig struct {
	Currency         string `yaml:"currency"`
	RollHour         int    `yaml:"roll_hour"`
	Timezone         string `yaml:"timezone"`
	MaxCommitRetries int    `yaml:"max_commit_retries"`
}

// StrategyConfig holds breakout strategy settings.
type StrategyConfig struct {
	KFactor float64    `yaml:"k_factor"`
	Exit    ExitConfig `yaml:"exit"`
}

// ExitConfig selects and parameterizes the exit condition.
type ExitConfig struct {
	Type          string  `yaml:"type"` // time_boundary | stop_loss | both
	BoundaryHour  int     `yaml:"boundary_hour"`
	StopLossRatio float64 `yaml:"stop_loss_ratio"`
}

// AllocationConfig holds capital allocation settings.
type AllocationConfig struct {
	MarginReserveRatio float64            `yaml:"margin_reserve_ratio"`
	Weights            map[string]float64 `yaml:"weights"`
}

// ExecutionConfig holds order execution settings.
type ExecutionConfig struct {
	MaxPollAttempts  int `yaml:"max_poll_attempts"`
	MaxSubmitRetries int `yaml:"max_submit_retries"`
	BackoffBaseMs    int `yaml:"backoff_base_ms"`
	BackoffMaxMs     int `yaml:"backoff_max_ms"`
}

// CacheConfig holds cache store settings.
type CacheConfig struct {
	Type string `yaml:"type"` // sqlite | memory
	Path string `yaml:"path"` // for sqlite
}

// SchedulerConfig holds the tick driver settings.
type SchedulerConfig struct {
	TickIntervalSec int `yaml:"tick_interval_sec"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// AlertingConfig holds alerting settings.
type AlertingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ExchangeConfig holds per-exchange adapter settings.
type ExchangeConfig struct {
	Name         string  `yaml:"name"`
	Type         string  `yaml:"type"` // paper
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	Burst        int     `yaml:"burst"`
	Paper        struct {
		FillRatio      float64 `yaml:"fill_ratio"`
		FillAfterPolls int     `yaml:"fill_after_polls"`
		InitialCash    float64 `yaml:"initial_cash"`
	} `yaml:"paper"`
}

// InstrumentConfig holds one tradable instrument.
type InstrumentConfig struct {
	Exchange string  `yaml:"exchange"`
	Ticker   string  `yaml:"ticker"`
	Interval string  `yaml:"interval"`
	KFactor  float64 `yaml:"k_factor"` // optional per-instrument override
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes. Environment
// variables in the document are expanded first.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration and fills in defaults.
func (c *Config) Validate() error {
	var errs []string

	if c.Engine.Currency == "" {
		c.Engine.Currency = "KRW"
	}
	if c.Engine.RollHour < 0 || c.Engine.RollHour > 23 {
		errs = append(errs, "engine.roll_hour must be between 0 and 23")
	}
	if c.Engine.Timezone != "" {
		if _, err := time.LoadLocation(c.Engine.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("engine.timezone %q is not a valid IANA zone", c.Engine.Timezone))
		}
	}
	if c.Engine.MaxCommitRetries < 0 {
		errs = append(errs, "engine.max_commit_retries must not be negative")
	}

	if c.Strategy.KFactor <= 0 {
		c.Strategy.KFactor = 0.5
	}
	// An unset boundary_hour would exit at every hour, so zero falls
	// back to mid-afternoon liquidation.
	if c.Strategy.Exit.BoundaryHour == 0 {
		c.Strategy.Exit.BoundaryHour = 15
	}
	switch c.Strategy.Exit.Type {
	case "", "time_boundary":
		c.Strategy.Exit.Type = "time_boundary"
		if c.Strategy.Exit.BoundaryHour < 0 || c.Strategy.Exit.BoundaryHour > 23 {
			errs = append(errs, "strategy.exit.boundary_hour must be between 0 and 23")
		}
	case "stop_loss":
		if c.Strategy.Exit.StopLossRatio <= 0 || c.Strategy.Exit.StopLossRatio >= 1 {
			errs = append(errs, "strategy.exit.stop_loss_ratio must be between 0 and 1")
		}
	case "both":
		if c.Strategy.Exit.BoundaryHour < 0 || c.Strategy.Exit.BoundaryHour > 23 {
			errs = append(errs, "strategy.exit.boundary_hour must be between 0 and 23")
		}
		if c.Strategy.Exit.StopLossRatio <= 0 || c.Strategy.Exit.StopLossRatio >= 1 {
			errs = append(errs, "strategy.exit.stop_loss_ratio must be between 0 and 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("strategy.exit.type %q is not supported", c.Strategy.Exit.Type))
	}

	if c.Allocation.MarginReserveRatio < 0 || c.Allocation.MarginReserveRatio >= 1 {
		errs = append(errs, "allocation.margin_reserve_ratio must be in [0, 1)")
	}
	for key, w := range c.Allocation.Weights {
		if w <= 0 {
			errs = append(errs, fmt.Sprintf("allocation.weights[%s] must be positive", key))
		}
	}

	if c.Execution.MaxPollAttempts <= 0 {
		c.Execution.MaxPollAttempts = 5
	}
	if c.Execution.MaxSubmitRetries < 0 {
		c.Execution.MaxSubmitRetries = 2
	}
	if c.Execution.BackoffBaseMs <= 0 {
		c.Execution.BackoffBaseMs = 500
	}
	if c.Execution.BackoffMaxMs <= 0 {
		c.Execution.BackoffMaxMs = 10000
	}

	switch c.Cache.Type {
	case "":
		c.Cache.Type = "memory"
	case "memory":
	case "sqlite":
		if c.Cache.Path == "" {
			errs = append(errs, "cache.path is required for sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.type %q must be 'sqlite' or 'memory'", c.Cache.Type))
	}

	if c.Scheduler.TickIntervalSec <= 0 {
		c.Scheduler.TickIntervalSec = 60
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 {
			c.Metrics.Port = 9090
		}
		if c.Metrics.Path == "" {
			c.Metrics.Path = "/metrics"
		}
	}

	if len(c.Instruments) == 0 {
		errs = append(errs, "at least one instrument is required")
	}
	exchanges := make(map[string]bool, len(c.Exchanges))
	for i, ex := range c.Exchanges {
		if ex.Name == "" {
			errs = append(errs, fmt.Sprintf("exchanges[%d].name is required", i))
			continue
		}
		if ex.Type != "" && ex.Type != "paper" {
			errs = append(errs, fmt.Sprintf("exchanges[%d].type %q is not supported", i, ex.Type))
		}
		if ex.RateLimitRPS < 0 {
			errs = append(errs, fmt.Sprintf("exchanges[%d].rate_limit_rps must not be negative", i))
		}
		if ex.RateLimitRPS > 0 && ex.Burst < 1 {
			c.Exchanges[i].Burst = 1
		}
		exchanges[ex.Name] = true
	}
	seen := make(map[string]bool, len(c.Instruments))
	for i, inst := range c.Instruments {
		if inst.Exchange == "" || inst.Ticker == "" {
			errs = append(errs, fmt.Sprintf("instruments[%d] requires exchange and ticker", i))
			continue
		}
		if len(c.Exchanges) > 0 && !exchanges[inst.Exchange] {
			errs = append(errs, fmt.Sprintf("instruments[%d] references unknown exchange %q", i, inst.Exchange))
		}
		key := inst.Exchange + ":" + inst.Ticker
		if seen[key] {
			errs = append(errs, fmt.Sprintf("instruments[%d] duplicates %s", i, key))
		}
		seen[key] = true
		if inst.KFactor < 0 {
			errs = append(errs, fmt.Sprintf("instruments[%d].k_factor must not be negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Location returns the configured timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	if c.Engine.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ToEngineConfig converts to engine.Config.
func (c *Config) ToEngineConfig() engine.Config {
	return engine.Config{
		Currency:         c.Engine.Currency,
		RollHour:         c.Engine.RollHour,
		Location:         c.Location(),
		MaxCommitRetries: c.Engine.MaxCommitRetries,
	}
}

// ToCacheConfig converts to cache.Config including per-instrument
// k-factor overrides.
func (c *Config) ToCacheConfig() cache.Config {
	overrides := make(map[string]decimal.Decimal)
	for _, inst := range c.Instruments {
		if inst.KFactor > 0 {
			overrides[inst.Exchange+":"+inst.Ticker] = decimal.NewFromFloat(inst.KFactor)
		}
	}
	return cache.Config{
		DefaultKFactor:   decimal.NewFromFloat(c.Strategy.KFactor),
		KFactorOverrides: overrides,
	}
}

// ToAllocationConfig converts to allocation.Config.
func (c *Config) ToAllocationConfig() allocation.Config {
	weights := make(map[string]decimal.Decimal, len(c.Allocation.Weights))
	for key, w := range c.Allocation.Weights {
		weights[key] = decimal.NewFromFloat(w)
	}
	return allocation.Config{
		MarginReserveRatio: decimal.NewFromFloat(c.Allocation.MarginReserveRatio),
		Weights:            weights,
	}
}

// ToExecutionConfig converts to execution.Config.
func (c *Config) ToExecutionConfig() execution.Config {
	return execution.Config{
		MaxPollAttempts:  c.Execution.MaxPollAttempts,
		MaxSubmitRetries: c.Execution.MaxSubmitRetries,
		Currency:         c.Engine.Currency,
	}
}

// BackoffPolicy builds the executor's backoff from config.
func (c *Config) BackoffPolicy() execution.ExponentialBackoff {
	return execution.ExponentialBackoff{
		Base: time.Duration(c.Execution.BackoffBaseMs) * time.Millisecond,
		Max:  time.Duration(c.Execution.BackoffMaxMs) * time.Millisecond,
	}
}

// ExitCondition builds the strategy's exit condition from config.
func (c *Config) ExitCondition() strategy.ExitCondition {
	boundary := strategy.NewTimeBoundary(c.Strategy.Exit.BoundaryHour, c.Location())
	stop := strategy.NewStopLoss(decimal.NewFromFloat(c.Strategy.Exit.StopLossRatio))

	switch c.Strategy.Exit.Type {
	case "stop_loss":
		return stop
	case "both":
		return strategy.NewAnyOf(boundary, stop)
	default:
		return boundary
	}
}

// InstrumentList converts configured instruments to domain values.
func (c *Config) InstrumentList() []types.Instrument {
	out := make([]types.Instrument, 0, len(c.Instruments))
	for _, inst := range c.Instruments {
		out = append(out, types.Instrument{
			Exchange: inst.Exchange,
			Ticker:   inst.Ticker,
			Interval: inst.Interval,
		})
	}
	return out
}

// TickInterval returns the scheduler tick interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickIntervalSec) * time.Second
}
