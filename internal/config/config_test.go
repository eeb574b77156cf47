package config

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"breakout-bot/internal/types"
)

const validYAML = `
engine:
  currency: KRW
  roll_hour: 9
  timezone: Asia/Seoul
  max_commit_retries: 3
strategy:
  k_factor: 0.5
  exit:
    type: time_boundary
    boundary_hour: 20
allocation:
  margin_reserve_ratio: 0.05
  weights:
    "upbit:KRW-BTC": 2
execution:
  max_poll_attempts: 5
  max_submit_retries: 2
  backoff_base_ms: 500
  backoff_max_ms: 10000
cache:
  type: sqlite
  path: /tmp/breakout.db
scheduler:
  tick_interval_sec: 30
metrics:
  enabled: true
  port: 9102
exchanges:
  - name: upbit
    type: paper
    rate_limit_rps: 8
    burst: 4
instruments:
  - exchange: upbit
    ticker: KRW-BTC
    interval: day
  - exchange: upbit
    ticker: KRW-ETH
    interval: day
    k_factor: 0.7
`

func TestLoadFromBytes_Valid(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(validYAML))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}

	if cfg.Engine.Currency != "KRW" {
		t.Errorf("Currency = %s, want KRW", cfg.Engine.Currency)
	}
	if cfg.Engine.RollHour != 9 {
		t.Errorf("RollHour = %d, want 9", cfg.Engine.RollHour)
	}
	if len(cfg.Instruments) != 2 {
		t.Fatalf("Instruments = %d, want 2", len(cfg.Instruments))
	}
	if cfg.Scheduler.TickIntervalSec != 30 {
		t.Errorf("TickIntervalSec = %d, want 30", cfg.Scheduler.TickIntervalSec)
	}
	if cfg.TickInterval() != 30*time.Second {
		t.Errorf("TickInterval = %v, want 30s", cfg.TickInterval())
	}
}

func TestLoadFromBytes_Defaults(t *testing.T) {
	minimal := `
instruments:
  - exchange: upbit
    ticker: KRW-BTC
`
	cfg, err := LoadFromBytes([]byte(minimal))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}

	if cfg.Engine.Currency != "KRW" {
		t.Errorf("default Currency = %s, want KRW", cfg.Engine.Currency)
	}
	if cfg.Strategy.KFactor != 0.5 {
		t.Errorf("default KFactor = %v, want 0.5", cfg.Strategy.KFactor)
	}
	if cfg.Strategy.Exit.Type != "time_boundary" {
		t.Errorf("default exit type = %s, want time_boundary", cfg.Strategy.Exit.Type)
	}
	if cfg.Cache.Type != "memory" {
		t.Errorf("default cache type = %s, want memory", cfg.Cache.Type)
	}
	if cfg.Execution.MaxPollAttempts != 5 {
		t.Errorf("default MaxPollAttempts = %d, want 5", cfg.Execution.MaxPollAttempts)
	}
	if cfg.Scheduler.TickIntervalSec != 60 {
		t.Errorf("default TickIntervalSec = %d, want 60", cfg.Scheduler.TickIntervalSec)
	}
	if cfg.Strategy.Exit.BoundaryHour != 15 {
		t.Errorf("default BoundaryHour = %d, want 15", cfg.Strategy.Exit.BoundaryHour)
	}
}

func TestValidate_RateLimitedExchangeGetsBurst(t *testing.T) {
	doc := `
exchanges:
  - name: upbit
    type: paper
    rate_limit_rps: 8
instruments:
  - exchange: upbit
    ticker: KRW-BTC
`
	cfg, err := LoadFromBytes([]byte(doc))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}

	// A zero burst would make every rate-limited call fail.
	if cfg.Exchanges[0].Burst != 1 {
		t.Errorf("default Burst = %d, want 1", cfg.Exchanges[0].Burst)
	}
}

func TestLoadFromBytes_EnvExpansion(t *testing.T) {
	os.Setenv("BREAKOUT_TEST_TICKER", "KRW-SOL")
	defer os.Unsetenv("BREAKOUT_TEST_TICKER")

	doc := `
instruments:
  - exchange: upbit
    ticker: ${BREAKOUT_TEST_TICKER}
`
	cfg, err := LoadFromBytes([]byte(doc))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if cfg.Instruments[0].Ticker != "KRW-SOL" {
		t.Errorf("Ticker = %s, want KRW-SOL", cfg.Instruments[0].Ticker)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			"no instruments",
			`engine: {currency: KRW}`,
			"at least one instrument",
		},
		{
			"bad roll hour",
			`engine: {roll_hour: 25}
instruments: [{exchange: upbit, ticker: KRW-BTC}]`,
			"roll_hour",
		},
		{
			"bad timezone",
			`engine: {timezone: Mars/Olympus}
instruments: [{exchange: upbit, ticker: KRW-BTC}]`,
			"timezone",
		},
		{
			"bad exit type",
			`strategy: {exit: {type: trailing}}
instruments: [{exchange: upbit, ticker: KRW-BTC}]`,
			"exit.type",
		},
		{
			"stop loss ratio out of range",
			`strategy: {exit: {type: stop_loss, stop_loss_ratio: 1.5}}
instruments: [{exchange: upbit, ticker: KRW-BTC}]`,
			"stop_loss_ratio",
		},
		{
			"reserve ratio out of range",
			`allocation: {margin_reserve_ratio: 1.0}
instruments: [{exchange: upbit, ticker: KRW-BTC}]`,
			"margin_reserve_ratio",
		},
		{
			"sqlite without path",
			`cache: {type: sqlite}
instruments: [{exchange: upbit, ticker: KRW-BTC}]`,
			"cache.path",
		},
		{
			"unknown cache type",
			`cache: {type: redis}
instruments: [{exchange: upbit, ticker: KRW-BTC}]`,
			"cache.type",
		},
		{
			"duplicate instrument",
			`instruments:
  - {exchange: upbit, ticker: KRW-BTC}
  - {exchange: upbit, ticker: KRW-BTC}`,
			"duplicates",
		},
		{
			"instrument references unknown exchange",
			`exchanges: [{name: upbit, type: paper}]
instruments: [{exchange: binance, ticker: BTCUSDT}]`,
			"unknown exchange",
		},
		{
			"negative rate limit",
			`exchanges: [{name: upbit, type: paper, rate_limit_rps: -1}]
instruments: [{exchange: upbit, ticker: KRW-BTC}]`,
			"rate_limit_rps",
		},
		{
			"unsupported exchange type",
			`exchanges: [{name: upbit, type: live}]
instruments: [{exchange: upbit, ticker: KRW-BTC}]`,
			"not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !errors.Is(err, types.ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestConfig_ToCacheConfig(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(validYAML))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}

	cacheCfg := cfg.ToCacheConfig()
	if !cacheCfg.DefaultKFactor.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("DefaultKFactor = %s, want 0.5", cacheCfg.DefaultKFactor)
	}
	override, ok := cacheCfg.KFactorOverrides["upbit:KRW-ETH"]
	if !ok {
		t.Fatal("missing k_factor override for upbit:KRW-ETH")
	}
	if !override.Equal(decimal.RequireFromString("0.7")) {
		t.Errorf("override = %s, want 0.7", override)
	}
	if _, ok := cacheCfg.KFactorOverrides["upbit:KRW-BTC"]; ok {
		t.Error("instrument without override should not appear in overrides")
	}
}

func TestConfig_ExitCondition(t *testing.T) {
	tests := []struct {
		exitType string
		want     string
	}{
		{"time_boundary", "time_boundary"},
		{"stop_loss", "stop_loss"},
		{"both", "any_of(time_boundary,stop_loss)"},
	}

	for _, tt := range tests {
		doc := `
strategy:
  exit:
    type: ` + tt.exitType + `
    boundary_hour: 20
    stop_loss_ratio: 0.03
instruments:
  - exchange: upbit
    ticker: KRW-BTC
`
		cfg, err := LoadFromBytes([]byte(doc))
		if err != nil {
			t.Fatalf("%s: LoadFromBytes: %v", tt.exitType, err)
		}
		if got := cfg.ExitCondition().Name(); got != tt.want {
			t.Errorf("%s: ExitCondition().Name() = %s, want %s", tt.exitType, got, tt.want)
		}
	}
}

func TestConfig_ToEngineConfig(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(validYAML))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}

	engCfg := cfg.ToEngineConfig()
	if engCfg.RollHour != 9 {
		t.Errorf("RollHour = %d, want 9", engCfg.RollHour)
	}
	if engCfg.Location.String() != "Asia/Seoul" {
		t.Errorf("Location = %s, want Asia/Seoul", engCfg.Location)
	}
}

func TestConfig_InstrumentList(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(validYAML))
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}

	list := cfg.InstrumentList()
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Key() != "upbit:KRW-BTC" {
		t.Errorf("first = %s, want upbit:KRW-BTC", list[0].Key())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected an error for a missing file")
	}
}
