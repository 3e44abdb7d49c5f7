// Package ledger implements the paper-trading position ledger (C7): a
// single-writer, mutex-guarded store of open positions per symbol, built
// fresh in the teacher's concurrency idiom since the teacher itself never
// models a trading position — grounded on internal/session.Store's
// mutex-guarded-map shape (spec.md §4.7).
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dealroom/orchestrator/internal/apperr"
	"github.com/dealroom/orchestrator/internal/domain"
	"github.com/dealroom/orchestrator/internal/tool"
	"github.com/google/uuid"
)

// initialBalanceUSDT is the paper account's starting capital. Spec.md §6
// names no env var for it, so it is fixed the way the teacher fixes
// other paper-only constants (e.g. maxNotionalUSDT in context.go).
const initialBalanceUSDT = 100_000

// PriceSource supplies the mark price the ledger needs to compute
// notional/liquidation figures at open/close time. Kept as a narrow
// injectable port so Ledger never reaches out over the network itself.
type PriceSource interface {
	MarkPrice(ctx context.Context, symbol string) (float64, error)
}

// Reflector is notified after a position closes so internal/memory can run
// its best-effort reflection pass (spec.md §4.9, DESIGN.md Open Question 3).
type Reflector interface {
	Reflect(closed domain.PositionContext)
}

// Ledger is the single-writer paper-trading book. One trade-lock mutex
// serializes every mutating call across all symbols, matching the spec's
// "single-writer mutex for the paper-trading ledger" requirement exactly:
// simultaneous open/close calls never interleave.
type Ledger struct {
	mu        sync.Mutex
	positions map[string]*domain.PositionContext
	prices    PriceSource
	reflector Reflector

	realizedPnL float64
	totalTrades int
	wins        int
}

// New creates an empty Ledger seeded with initialBalanceUSDT. reflector may
// be nil if reflection is not wired.
func New(prices PriceSource, reflector Reflector) *Ledger {
	return &Ledger{
		positions: make(map[string]*domain.PositionContext),
		prices:    prices,
		reflector: reflector,
	}
}

// PositionContext returns the current snapshot for a symbol (HasPosition
// false if none), with liquidation distance, P&L and add-more headroom
// filled in by context.go's derived-field computation, plus the account
// balance fields a caller needs to size a follow-on decision.
func (l *Ledger) PositionContext(ctx context.Context, symbol string) (domain.PositionContext, error) {
	l.mu.Lock()
	pos, ok := l.positions[symbol]
	l.mu.Unlock()

	acct, err := l.GetAccount(ctx)
	if err != nil {
		return domain.PositionContext{}, err
	}

	if !ok {
		return domain.PositionContext{
			Symbol:           symbol,
			HasPosition:      false,
			AvailableBalance: acct.AvailableBalance,
			TotalEquity:      acct.TotalEquity,
		}, nil
	}

	snapshot := *pos
	if l.prices != nil {
		mark, err := l.prices.MarkPrice(ctx, symbol)
		if err == nil {
			snapshot.MarkPrice = mark
		}
	}
	snapshot.AvailableBalance = acct.AvailableBalance
	snapshot.TotalEquity = acct.TotalEquity
	return deriveFields(snapshot), nil
}

// GetAccount aggregates the paper account's balance sheet across every
// open position (spec.md §4.7): available balance, total equity, used
// margin, and unrealized P&L. The open_long/open_short decision tools call
// this before converting an agent's requested amount_percent into a
// concrete USDT margin, so the
// conversion is always against a balance the ledger itself just computed.
func (l *Ledger) GetAccount(ctx context.Context) (domain.Account, error) {
	l.mu.Lock()
	positions := make([]domain.PositionContext, 0, len(l.positions))
	for _, p := range l.positions {
		positions = append(positions, *p)
	}
	realized := l.realizedPnL
	trades := l.totalTrades
	wins := l.wins
	l.mu.Unlock()

	var usedMargin, unrealized float64
	for _, pos := range positions {
		usedMargin += pos.MarginUSDT
		mark := pos.MarkPrice
		if l.prices != nil {
			if p, err := l.prices.MarkPrice(ctx, pos.Symbol); err == nil {
				mark = p
			}
		}
		unrealized += unrealizedPnL(pos, mark)
	}

	available := initialBalanceUSDT + realized - usedMargin
	return domain.Account{
		AvailableBalance: available,
		TotalEquity:      available + usedMargin + unrealized,
		UsedMargin:       usedMargin,
		UnrealizedPnL:    unrealized,
		RealizedPnL:      realized,
		TotalTrades:      trades,
		Wins:             wins,
	}, nil
}

func (l *Ledger) openPosition(ctx context.Context, symbol string, direction domain.VoteDirection, leverage int, amountUSDT, tpPrice, slPrice float64) (tool.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.positions[symbol]; exists {
		err := fmt.Errorf("%w: %s already has an open position", apperr.ErrAlreadyHasPosition, symbol)
		return tool.Result{Success: false, Error: err.Error(), Summary: err.Error()}, nil
	}

	mark := 0.0
	if l.prices != nil {
		if p, err := l.prices.MarkPrice(ctx, symbol); err == nil {
			mark = p
		}
	}

	pos := &domain.PositionContext{
		TradeID:         uuid.NewString(),
		Symbol:          symbol,
		HasPosition:     true,
		Direction:       direction,
		EntryPrice:      mark,
		MarkPrice:       mark,
		Leverage:        leverage,
		MarginUSDT:      amountUSDT,
		NotionalUSDT:    amountUSDT * float64(leverage),
		TakeProfitPrice: tpPrice,
		StopLossPrice:   slPrice,
		OpenedAt:        time.Now(),
	}
	if mark > 0 {
		pos.Size = pos.NotionalUSDT / mark
	}
	l.positions[symbol] = pos

	return tool.Result{
		Success: true,
		Result:  deriveFields(*pos),
		Summary: fmt.Sprintf("opened %s %s at %.2f (leverage %dx)", direction, symbol, mark, leverage),
	}, nil
}

// OpenLong opens a long position sized at amountUSDT margin with leverage,
// optionally bracketed by tpPrice/slPrice (zero means unset), failing with
// ErrAlreadyHasPosition if one is already open for symbol. amountUSDT is
// the concrete USDT margin the caller already converted from
// amount_percent against GetAccount's available balance (spec.md §4.7);
// the position's notional is amountUSDT * leverage.
func (l *Ledger) OpenLong(ctx context.Context, symbol string, leverage int, amountUSDT, tpPrice, slPrice float64) (tool.Result, error) {
	return l.openPosition(ctx, symbol, domain.VoteLong, leverage, amountUSDT, tpPrice, slPrice)
}

// OpenShort opens a short position, mirroring OpenLong.
func (l *Ledger) OpenShort(ctx context.Context, symbol string, leverage int, amountUSDT, tpPrice, slPrice float64) (tool.Result, error) {
	return l.openPosition(ctx, symbol, domain.VoteShort, leverage, amountUSDT, tpPrice, slPrice)
}

// ClosePosition closes the open position for symbol, if any, settles its
// realized P&L into the account, and fires the reflection hook in the
// background once the write completes.
func (l *Ledger) ClosePosition(ctx context.Context, symbol string) (tool.Result, error) {
	l.mu.Lock()
	pos, exists := l.positions[symbol]
	if !exists {
		l.mu.Unlock()
		return tool.Result{Success: true, Summary: fmt.Sprintf("no open position for %s", symbol)}, nil
	}
	closed := *pos
	if l.prices != nil {
		if mark, err := l.prices.MarkPrice(ctx, symbol); err == nil {
			closed.MarkPrice = mark
		}
	}
	pnl := unrealizedPnL(closed, closed.MarkPrice)
	delete(l.positions, symbol)
	l.realizedPnL += pnl
	l.totalTrades++
	if pnl > 0 {
		l.wins++
	}
	l.mu.Unlock()

	closed = deriveFields(closed)

	if l.reflector != nil {
		go l.reflector.Reflect(closed)
	}

	return tool.Result{
		Success: true,
		Result:  closed,
		Summary: fmt.Sprintf("closed %s %s position, realized P&L %.2f", closed.Direction, symbol, pnl),
	}, nil
}
