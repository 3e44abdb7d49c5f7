package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dealroom/orchestrator/internal/domain"
)

// LedgerPort is the write contract decision tools delegate to, satisfied by
// internal/ledger.Ledger. Declared here (not imported from internal/ledger)
// so internal/tool never depends on internal/ledger — ledger depends on
// tool for registration, not the other way around.
//
// OpenLong/OpenShort take a concrete amount_usdt, not a percentage: the
// decision tool converts the agent's requested amount_percent against
// GetAccount's available balance before ever calling the ledger (spec.md
// §4.7, "the engine is responsible for computing available_balance ×
// amount_percent before calling").
type LedgerPort interface {
	GetAccount(ctx context.Context) (domain.Account, error)
	OpenLong(ctx context.Context, symbol string, leverage int, amountUSDT, tpPrice, slPrice float64) (Result, error)
	OpenShort(ctx context.Context, symbol string, leverage int, amountUSDT, tpPrice, slPrice float64) (Result, error)
	ClosePosition(ctx context.Context, symbol string) (Result, error)
}

// Limits are the tunable guardrails applied to every open_long/open_short
// call before it reaches the ledger (spec.md §8 Property #3: leverage in
// [1, MaxLeverage], amount_percent clamped so no single position exceeds
// MaxPositionPercent of the account). Zero values fall back to the
// package defaults rather than disabling the guard.
type Limits struct {
	MaxLeverage        int
	MaxPositionPercent float64
}

func (l Limits) withDefaults() Limits {
	if l.MaxLeverage <= 0 {
		l.MaxLeverage = 20
	}
	if l.MaxPositionPercent <= 0 {
		l.MaxPositionPercent = 0.30
	}
	return l
}

func (l Limits) clampLeverage(requested int) int {
	if requested < 1 {
		return 1
	}
	if requested > l.MaxLeverage {
		return l.MaxLeverage
	}
	return requested
}

func (l Limits) clampPercent(requested float64) float64 {
	if requested <= 0 {
		return l.MaxPositionPercent
	}
	if requested > l.MaxPositionPercent {
		return l.MaxPositionPercent
	}
	return requested
}

type decisionArgs struct {
	Symbol          string  `json:"symbol"`
	AmountPercent   float64 `json:"amount_percent"`
	Leverage        int     `json:"leverage"`
	TakeProfitPrice float64 `json:"tp_price"`
	StopLossPrice   float64 `json:"sl_price"`
}

type decisionTool struct {
	name        string
	description string
	schema      json.RawMessage
	exec        func(ctx context.Context, args decisionArgs) (Result, error)
}

func (d *decisionTool) Name() string                 { return d.name }
func (d *decisionTool) Description() string          { return d.description }
func (d *decisionTool) InputSchema() json.RawMessage { return d.schema }
func (d *decisionTool) Init(context.Context) error   { return nil }
func (d *decisionTool) Close() error                 { return nil }
func (d *decisionTool) IsDecisionTool() bool         { return true }

func (d *decisionTool) Execute(ctx context.Context, raw json.RawMessage) (Result, error) {
	var args decisionArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return Result{}, fmt.Errorf("decode decision tool args: %w", err)
		}
	}
	return d.exec(ctx, args)
}

// RegisterDecisionTools registers open_long, open_short, close_position,
// and hold as local resolvers delegating to ledger (spec.md §3/§4.1). hold
// is a no-op decision tool: it still counts against the
// at-most-one-decision-tool-per-turn cap, it just makes no ledger call.
// limits clamps leverage and position size before any open reaches the
// ledger; the zero value applies the package defaults.
func RegisterDecisionTools(r *Registry, ledger LedgerPort, limits Limits) error {
	limits = limits.withDefaults()

	amountSchema := BuildSchema(
		SchemaParam{Name: "symbol", Type: "string", Description: "trading pair, e.g. BTC-USDT", Required: true},
		SchemaParam{Name: "amount_percent", Type: "number", Description: "fraction of available balance to commit, 0-1", Required: true},
		SchemaParam{Name: "leverage", Type: "integer", Description: "leverage multiplier", Required: true},
		SchemaParam{Name: "tp_price", Type: "number", Description: "take-profit trigger price", Required: true},
		SchemaParam{Name: "sl_price", Type: "number", Description: "stop-loss trigger price", Required: true},
	)
	closeSchema := BuildSchema(
		SchemaParam{Name: "symbol", Type: "string", Description: "trading pair, e.g. BTC-USDT", Required: true},
	)
	holdSchema := BuildSchema(
		SchemaParam{Name: "symbol", Type: "string", Description: "trading pair, e.g. BTC-USDT", Required: true},
	)

	// open converts a's amount_percent into a concrete USDT margin
	// against the ledger's current available balance, clamps leverage and
	// percent to limits, and dispatches to write, the ledger's OpenLong or
	// OpenShort. This is the single point where amount_percent becomes
	// amount_usdt, per spec.md §4.7.
	open := func(ctx context.Context, a decisionArgs, write func(context.Context, string, int, float64, float64, float64) (Result, error)) (Result, error) {
		acct, err := ledger.GetAccount(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("get account: %w", err)
		}
		leverage := limits.clampLeverage(a.Leverage)
		percent := limits.clampPercent(a.AmountPercent)
		amountUSDT := acct.AvailableBalance * percent
		return write(ctx, a.Symbol, leverage, amountUSDT, a.TakeProfitPrice, a.StopLossPrice)
	}

	tools := []Tool{
		&decisionTool{
			name:        "open_long",
			description: "Open a long position sized as a fraction of available balance, bracketed by tp_price/sl_price.",
			schema:      amountSchema,
			exec: func(ctx context.Context, a decisionArgs) (Result, error) {
				return open(ctx, a, ledger.OpenLong)
			},
		},
		&decisionTool{
			name:        "open_short",
			description: "Open a short position sized as a fraction of available balance, bracketed by tp_price/sl_price.",
			schema:      amountSchema,
			exec: func(ctx context.Context, a decisionArgs) (Result, error) {
				return open(ctx, a, ledger.OpenShort)
			},
		},
		&decisionTool{
			name:        "close_position",
			description: "Close the open position for a symbol, if any.",
			schema:      closeSchema,
			exec: func(ctx context.Context, a decisionArgs) (Result, error) {
				return ledger.ClosePosition(ctx, a.Symbol)
			},
		},
		&decisionTool{
			name:        "hold",
			description: "Take no position action this round.",
			schema:      holdSchema,
			exec: func(ctx context.Context, a decisionArgs) (Result, error) {
				return Result{Success: true, Summary: fmt.Sprintf("hold on %s", a.Symbol)}, nil
			},
		},
	}

	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
