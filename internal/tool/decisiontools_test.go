package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dealroom/orchestrator/internal/domain"
)

type fakeLedgerPort struct {
	account domain.Account

	gotSymbol     string
	gotLeverage   int
	gotAmountUSDT float64
	gotTP, gotSL  float64
}

func (f *fakeLedgerPort) GetAccount(ctx context.Context) (domain.Account, error) {
	return f.account, nil
}

func (f *fakeLedgerPort) OpenLong(ctx context.Context, symbol string, leverage int, amountUSDT, tpPrice, slPrice float64) (Result, error) {
	f.gotSymbol, f.gotLeverage, f.gotAmountUSDT, f.gotTP, f.gotSL = symbol, leverage, amountUSDT, tpPrice, slPrice
	return Result{Success: true, Summary: "opened long"}, nil
}

func (f *fakeLedgerPort) OpenShort(ctx context.Context, symbol string, leverage int, amountUSDT, tpPrice, slPrice float64) (Result, error) {
	f.gotSymbol, f.gotLeverage, f.gotAmountUSDT, f.gotTP, f.gotSL = symbol, leverage, amountUSDT, tpPrice, slPrice
	return Result{Success: true, Summary: "opened short"}, nil
}

func (f *fakeLedgerPort) ClosePosition(ctx context.Context, symbol string) (Result, error) {
	return Result{Success: true, Summary: "closed"}, nil
}

func TestRegisterDecisionTools_ConvertsPercentToUSDT(t *testing.T) {
	ledger := &fakeLedgerPort{account: domain.Account{AvailableBalance: 10000}}
	r := NewRegistry()
	if err := RegisterDecisionTools(r, ledger, Limits{MaxLeverage: 20, MaxPositionPercent: 0.5}); err != nil {
		t.Fatalf("RegisterDecisionTools: %v", err)
	}

	args := json.RawMessage(`{"symbol":"BTC-USDT","amount_percent":0.2,"leverage":5,"tp_price":60000,"sl_price":45000}`)
	res := r.Invoke(context.Background(), "open_long", args)
	if !res.Success {
		t.Fatalf("open_long failed: %s", res.Error)
	}
	if ledger.gotAmountUSDT != 2000 {
		t.Errorf("amountUSDT = %v, want 2000 (20%% of 10000)", ledger.gotAmountUSDT)
	}
	if ledger.gotLeverage != 5 {
		t.Errorf("leverage = %d, want 5", ledger.gotLeverage)
	}
	if ledger.gotTP != 60000 || ledger.gotSL != 45000 {
		t.Errorf("tp/sl = %v/%v, want 60000/45000", ledger.gotTP, ledger.gotSL)
	}
}

func TestRegisterDecisionTools_ClampsLeverageAndPercent(t *testing.T) {
	ledger := &fakeLedgerPort{account: domain.Account{AvailableBalance: 10000}}
	r := NewRegistry()
	if err := RegisterDecisionTools(r, ledger, Limits{MaxLeverage: 10, MaxPositionPercent: 0.3}); err != nil {
		t.Fatalf("RegisterDecisionTools: %v", err)
	}

	args := json.RawMessage(`{"symbol":"BTC-USDT","amount_percent":0.9,"leverage":50,"tp_price":60000,"sl_price":45000}`)
	res := r.Invoke(context.Background(), "open_short", args)
	if !res.Success {
		t.Fatalf("open_short failed: %s", res.Error)
	}
	if ledger.gotLeverage != 10 {
		t.Errorf("leverage = %d, want clamped to 10", ledger.gotLeverage)
	}
	if ledger.gotAmountUSDT != 3000 {
		t.Errorf("amountUSDT = %v, want clamped to 30%% of 10000", ledger.gotAmountUSDT)
	}
}

func TestRegisterDecisionTools_MissingTPSLRejectedBySchema(t *testing.T) {
	ledger := &fakeLedgerPort{account: domain.Account{AvailableBalance: 10000}}
	r := NewRegistry()
	if err := RegisterDecisionTools(r, ledger, Limits{}); err != nil {
		t.Fatalf("RegisterDecisionTools: %v", err)
	}

	args := json.RawMessage(`{"symbol":"BTC-USDT","amount_percent":0.2,"leverage":5}`)
	res := r.Invoke(context.Background(), "open_long", args)
	if res.Success {
		t.Error("expected schema validation to reject a call missing tp_price/sl_price")
	}
}

func TestRegisterDecisionTools_Hold(t *testing.T) {
	ledger := &fakeLedgerPort{}
	r := NewRegistry()
	if err := RegisterDecisionTools(r, ledger, Limits{}); err != nil {
		t.Fatalf("RegisterDecisionTools: %v", err)
	}

	res := r.Invoke(context.Background(), "hold", json.RawMessage(`{"symbol":"BTC-USDT"}`))
	if !res.Success {
		t.Errorf("hold should always succeed, got %+v", res)
	}
}
