package roundtable

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dealroom/orchestrator/internal/agentcore"
	"github.com/dealroom/orchestrator/internal/domain"
)

// allowedOperations computes the "allowed operations" list the engine
// injects before signal generation (spec.md §4.6): no position means
// {long, short, hold}; an existing position of direction D means
// {close, hold, add_D, reverse}.
func allowedOperations(pos domain.PositionContext) []domain.VoteDirection {
	if !pos.HasPosition {
		return []domain.VoteDirection{domain.VoteLong, domain.VoteShort, domain.VoteHold}
	}
	add := domain.VoteAddLong
	if pos.Direction == domain.VoteShort {
		add = domain.VoteAddShort
	}
	return []domain.VoteDirection{domain.VoteClose, domain.VoteHold, add, domain.VoteReverse}
}

func signalInstruction(allowed []domain.VoteDirection) string {
	names := make([]string, len(allowed))
	for i, a := range allowed {
		names[i] = string(a)
	}
	return fmt.Sprintf(
		"Emit your Vote Record as fenced YAML with fields direction, confidence (0-1), rationale, and "+
			"optionally suggested_leverage (e.g. \"10x\"), suggested_take_profit_pct, suggested_stop_loss_pct. "+
			"Choose direction from exactly this set: [%s].",
		strings.Join(names, ", "),
	)
}

func summarizePosition(pos domain.PositionContext) string {
	if !pos.HasPosition {
		return fmt.Sprintf(
			"Position context for %s: no open position. Available balance=%.2f total equity=%.2f",
			pos.Symbol, pos.AvailableBalance, pos.TotalEquity,
		)
	}
	return fmt.Sprintf(
		"Position context for %s: direction=%s entry=%.2f mark=%.2f leverage=%dx "+
			"notional=%.2f margin=%.2f unrealized_pnl=%.2f (%.1f%%) tp=%.2f sl=%.2f "+
			"liquidation=%.2f (%.1f%% away) can_add_more=%v max_additional=%.2f "+
			"available_balance=%.2f total_equity=%.2f held=%s",
		pos.Symbol, pos.Direction, pos.EntryPrice, pos.MarkPrice, pos.Leverage,
		pos.NotionalUSDT, pos.MarginUSDT, pos.UnrealizedPnL, pos.UnrealizedPnLPct, pos.TakeProfitPrice, pos.StopLossPrice,
		pos.LiquidationPrice, pos.LiquidationDistPct, pos.CanAddMore, pos.MaxAdditionalUSDT,
		pos.AvailableBalance, pos.TotalEquity, pos.HoldingDuration.Round(time.Second),
	)
}

// BuildSignal turns the leader's execution-phase turn output into a
// TradingSignal. Only the first decision tool the leader invoked counts
// (Agent.Turn already de-duplicates within one response per spec.md §4.4);
// if none was invoked, or the one invoked was "hold"/"close_position", the
// signal still records the outcome but with AmountPercent/Leverage zeroed.
func BuildSignal(symbol string, out agentcore.TurnOutput, votes []domain.VoteRecord, pos domain.PositionContext) *domain.TradingSignal {
	agg := Aggregate(votes)

	signal := &domain.TradingSignal{
		Symbol:          symbol,
		Direction:       domain.VoteHold,
		Confidence:      agg.AvgConfidence,
		SupportingVotes: agg.Long,
		ConsensusMap:    consensusMap(votes),
		Reasoning:       out.Content,
	}

	var invoked *agentcore.ToolInvocation
	for i := range out.ToolsInvoked {
		if !out.ToolsInvoked[i].Result.Success {
			continue
		}
		switch out.ToolsInvoked[i].Name {
		case "open_long", "open_short", "close_position", "hold":
			invoked = &out.ToolsInvoked[i]
		}
		if invoked != nil {
			break
		}
	}
	if invoked == nil {
		return signal
	}

	switch invoked.Name {
	case "open_long":
		signal.Direction = domain.VoteLong
		signal.SupportingVotes = agg.Long
	case "open_short":
		signal.Direction = domain.VoteShort
		signal.SupportingVotes = agg.Short
	case "close_position":
		signal.Direction = domain.VoteClose
		return signal
	default: // "hold" or anything unrecognized
		return signal
	}

	// The ledger's open handlers return the resulting PositionContext as
	// Result.Result; recover sizing from it rather than re-parsing the
	// leader's raw tool-call arguments (the registry already applied them).
	opened, ok := invoked.Result.Result.(domain.PositionContext)
	if !ok || opened.Leverage <= 0 {
		return signal
	}

	signal.Leverage = opened.Leverage
	signal.EntryPrice = opened.EntryPrice
	signal.TakeProfitPrice = opened.TakeProfitPrice
	signal.StopLossPrice = opened.StopLossPrice
	signal.RiskRewardRatio = riskRewardRatio(opened)
	if pos.AvailableBalance > 0 {
		signal.AmountPercent = opened.MarginUSDT / pos.AvailableBalance
	}

	return signal
}

// consensusMap records each analyst's final direction, keyed by agent
// name, so a reader of the signal can see the dissent behind it.
func consensusMap(votes []domain.VoteRecord) map[string]domain.VoteDirection {
	if len(votes) == 0 {
		return nil
	}
	m := make(map[string]domain.VoteDirection, len(votes))
	for _, v := range votes {
		m[v.Agent] = v.Direction
	}
	return m
}

// riskRewardRatio computes |tp - entry| / |entry - sl|. The distances are
// absolute, so it does not check that tp and sl sit on the right side of
// entry for the position's direction; zero if entry or either leg is unset
// or the stop-loss distance is zero.
func riskRewardRatio(pos domain.PositionContext) float64 {
	if pos.EntryPrice <= 0 || pos.TakeProfitPrice <= 0 || pos.StopLossPrice <= 0 {
		return 0
	}
	reward := math.Abs(pos.TakeProfitPrice - pos.EntryPrice)
	risk := math.Abs(pos.EntryPrice - pos.StopLossPrice)
	if risk == 0 {
		return 0
	}
	return reward / risk
}

// OpenedTradeID returns the trade id the ledger assigned if the leader's
// turn successfully opened a position, or "" otherwise. The roundtable
// engine uses this to key the predictions it hands to internal/memory for
// later reflection (spec.md §4.9 step 1).
func OpenedTradeID(out agentcore.TurnOutput) string {
	for _, invoked := range out.ToolsInvoked {
		if !invoked.Result.Success {
			continue
		}
		if opened, ok := invoked.Result.Result.(domain.PositionContext); ok && opened.TradeID != "" {
			return opened.TradeID
		}
	}
	return ""
}
