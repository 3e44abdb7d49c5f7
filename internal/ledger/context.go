package ledger

import (
	"math"
	"time"

	"github.com/dealroom/orchestrator/internal/domain"
)

// maintenanceMarginRatio is the simplified maintenance-margin fraction used
// for the paper ledger's liquidation estimate; real-exchange tiered margin
// schedules are out of scope (spec.md Non-goals).
const maintenanceMarginRatio = 0.005

// maxNotionalUSDT bounds how much additional notional a single symbol may
// carry, a conservative paper-trading guardrail independent of any real
// exchange's margin tiers.
const maxNotionalUSDT = 100_000

// deriveFields computes the read-only fields the engine needs but the
// ledger itself does not store: liquidation distance, unrealized P&L, TP/SL
// distance, and whether (and how much) more can be added to the position.
// Kept out of Ledger's write path per spec.md §4.7 ("derived fields ...
// computed by the engine").
func deriveFields(pos domain.PositionContext) domain.PositionContext {
	if !pos.HasPosition {
		return pos
	}

	pos.LiquidationPrice = liquidationPrice(pos)
	if pos.MarkPrice > 0 {
		pos.LiquidationDistPct = priceDistancePct(pos, pos.LiquidationPrice)
		pos.UnrealizedPnL = unrealizedPnL(pos, pos.MarkPrice)
		if pos.MarginUSDT > 0 {
			pos.UnrealizedPnLPct = pos.UnrealizedPnL / pos.MarginUSDT * 100
		}
		if pos.TakeProfitPrice > 0 {
			pos.TPDistancePct = priceMagnitudePct(pos.MarkPrice, pos.TakeProfitPrice)
		}
		if pos.StopLossPrice > 0 {
			pos.SLDistancePct = priceMagnitudePct(pos.MarkPrice, pos.StopLossPrice)
		}
	}

	remaining := maxNotionalUSDT - pos.NotionalUSDT
	pos.CanAddMore = remaining > 0
	if pos.CanAddMore {
		pos.MaxAdditionalUSDT = remaining
	}

	if !pos.OpenedAt.IsZero() {
		pos.HoldingDuration = time.Since(pos.OpenedAt)
	}

	return pos
}

// unrealizedPnL marks a position to market against its notional exposure,
// sign-flipped for shorts (a mark below entry is a short's profit).
func unrealizedPnL(pos domain.PositionContext, mark float64) float64 {
	if pos.EntryPrice <= 0 {
		return 0
	}
	move := (mark - pos.EntryPrice) / pos.EntryPrice
	if pos.Direction == domain.VoteShort {
		move = -move
	}
	return move * pos.NotionalUSDT
}

func liquidationPrice(pos domain.PositionContext) float64 {
	if pos.Leverage <= 0 || pos.EntryPrice <= 0 {
		return 0
	}
	maintenanceFraction := maintenanceMarginRatio * float64(pos.Leverage)
	move := pos.EntryPrice * (1/float64(pos.Leverage) - maintenanceFraction)

	switch pos.Direction {
	case domain.VoteLong:
		return pos.EntryPrice - move
	case domain.VoteShort:
		return pos.EntryPrice + move
	default:
		return 0
	}
}

// priceDistancePct reports how far target is from the current mark, as a
// percentage, oriented so that a positive value means the position still
// has that much room before hitting target, regardless of direction. Used
// for liquidation distance, where the sign carries "still safe" meaning.
func priceDistancePct(pos domain.PositionContext, target float64) float64 {
	if target <= 0 || pos.MarkPrice <= 0 {
		return 0
	}
	diff := pos.MarkPrice - target
	if pos.Direction == domain.VoteShort {
		diff = -diff
	}
	return (diff / pos.MarkPrice) * 100
}

// priceMagnitudePct is the unsigned percentage gap between mark and
// target, used for TP/SL distance where only "how far away" matters, not
// which side of entry the target sits on.
func priceMagnitudePct(mark, target float64) float64 {
	if mark <= 0 {
		return 0
	}
	return math.Abs(mark-target) / mark * 100
}
