package allocation

import (
	"testing"

	"github.com/shopspring/decimal"

	"breakout-bot/internal/types"
)

func instruments(tickers ...string) []types.Instrument {
	out := make([]types.Instrument, 0, len(tickers))
	for _, ticker := range tickers {
		out = append(out, types.Instrument{Exchange: "upbit", Ticker: ticker})
	}
	return out
}

func TestManager_Allocate_EvenSplit(t *testing.T) {
	cfg := Config{MarginReserveRatio: decimal.RequireFromString("0.05")}
	mgr := NewManager(cfg, nil)

	eligible := instruments("KRW-BTC", "KRW-ETH", "KRW-XRP")
	plan := mgr.Allocate(decimal.NewFromInt(1_000_000), eligible)

	// 1,000,000 * 0.95 / 3 = 316,666.66..., floored.
	want := decimal.RequireFromString("316666.6666")
	for _, inst := range eligible {
		budget, ok := plan.Budget(inst)
		if !ok {
			t.Fatalf("no budget for %s", inst)
		}
		if !budget.Equal(want) {
			t.Errorf("budget for %s = %s, want %s", inst, budget, want)
		}
	}
}

func TestManager_Allocate_EvenSplitNoReserve(t *testing.T) {
	mgr := NewManager(Config{MarginReserveRatio: decimal.Zero}, nil)

	eligible := instruments("KRW-BTC", "KRW-ETH", "KRW-XRP")
	plan := mgr.Allocate(decimal.NewFromInt(1_000_000), eligible)

	want := decimal.RequireFromString("333333.3333")
	sum := decimal.Zero
	for _, inst := range eligible {
		budget, _ := plan.Budget(inst)
		if !budget.Equal(want) {
			t.Errorf("budget for %s = %s, want %s", inst, budget, want)
		}
		sum = sum.Add(budget)
	}
	if sum.GreaterThan(decimal.NewFromInt(1_000_000)) {
		t.Errorf("budgets sum %s exceeds balance", sum)
	}
}

func TestManager_Allocate_SumNeverExceedsAllocatable(t *testing.T) {
	cfg := Config{MarginReserveRatio: decimal.RequireFromString("0.05")}
	mgr := NewManager(cfg, nil)

	balances := []string{"1000000", "999999.99", "1", "0.0001", "333333.33"}
	counts := []int{1, 2, 3, 7, 13}

	for _, balance := range balances {
		for _, n := range counts {
			tickers := make([]string, n)
			for i := range tickers {
				tickers[i] = "KRW-" + string(rune('A'+i))
			}
			total := decimal.RequireFromString(balance)
			plan := mgr.Allocate(total, instruments(tickers...))

			sum := decimal.Zero
			for _, b := range plan.PerInstrument {
				if b.IsNegative() {
					t.Errorf("balance %s n=%d: negative budget %s", balance, n, b)
				}
				sum = sum.Add(b)
			}
			allocatable := total.Sub(plan.MarginReserve)
			if sum.GreaterThan(allocatable) {
				t.Errorf("balance %s n=%d: budgets sum %s exceeds allocatable %s",
					balance, n, sum, allocatable)
			}
		}
	}
}

func TestManager_Allocate_Weighted(t *testing.T) {
	cfg := Config{
		MarginReserveRatio: decimal.Zero,
		Weights: map[string]decimal.Decimal{
			"upbit:KRW-BTC": decimal.RequireFromString("2"),
			"upbit:KRW-ETH": decimal.RequireFromString("1"),
		},
	}
	mgr := NewManager(cfg, nil)

	eligible := instruments("KRW-BTC", "KRW-ETH")
	plan := mgr.Allocate(decimal.NewFromInt(300), eligible)

	btc, _ := plan.Budget(eligible[0])
	eth, _ := plan.Budget(eligible[1])
	if !btc.Equal(decimal.NewFromInt(200)) {
		t.Errorf("BTC budget = %s, want 200", btc)
	}
	if !eth.Equal(decimal.NewFromInt(100)) {
		t.Errorf("ETH budget = %s, want 100", eth)
	}
}

func TestManager_Allocate_UnweightedInstrumentDefaultsToOne(t *testing.T) {
	cfg := Config{
		MarginReserveRatio: decimal.Zero,
		Weights: map[string]decimal.Decimal{
			"upbit:KRW-BTC": decimal.RequireFromString("3"),
		},
	}
	mgr := NewManager(cfg, nil)

	eligible := instruments("KRW-BTC", "KRW-ETH")
	plan := mgr.Allocate(decimal.NewFromInt(400), eligible)

	btc, _ := plan.Budget(eligible[0])
	eth, _ := plan.Budget(eligible[1])
	if !btc.Equal(decimal.NewFromInt(300)) {
		t.Errorf("BTC budget = %s, want 300", btc)
	}
	if !eth.Equal(decimal.NewFromInt(100)) {
		t.Errorf("ETH budget = %s, want 100", eth)
	}
}

func TestManager_Allocate_EmptyEligible(t *testing.T) {
	mgr := NewManager(DefaultConfig(), nil)

	plan := mgr.Allocate(decimal.NewFromInt(1_000_000), nil)
	if len(plan.PerInstrument) != 0 {
		t.Errorf("expected empty plan, got %d budgets", len(plan.PerInstrument))
	}

	_, ok := plan.Budget(types.Instrument{Exchange: "upbit", Ticker: "KRW-BTC"})
	if ok {
		t.Error("Budget should report absence for unallocated instrument")
	}
}

func TestManager_Allocate_NonPositiveBalance(t *testing.T) {
	mgr := NewManager(DefaultConfig(), nil)

	for _, balance := range []string{"0", "-100"} {
		plan := mgr.Allocate(decimal.RequireFromString(balance), instruments("KRW-BTC"))
		if len(plan.PerInstrument) != 0 {
			t.Errorf("balance %s: expected empty plan, got %d budgets", balance, len(plan.PerInstrument))
		}
	}
}

func TestManager_Allocate_ReserveWithheld(t *testing.T) {
	cfg := Config{MarginReserveRatio: decimal.RequireFromString("0.1")}
	mgr := NewManager(cfg, nil)

	plan := mgr.Allocate(decimal.NewFromInt(1000), instruments("KRW-BTC"))
	if !plan.MarginReserve.Equal(decimal.NewFromInt(100)) {
		t.Errorf("MarginReserve = %s, want 100", plan.MarginReserve)
	}
	budget, _ := plan.Budget(types.Instrument{Exchange: "upbit", Ticker: "KRW-BTC"})
	if !budget.Equal(decimal.NewFromInt(900)) {
		t.Errorf("budget = %s, want 900", budget)
	}
}
