package roundtable

import (
	"testing"

	"github.com/dealroom/orchestrator/internal/agentcore"
	"github.com/dealroom/orchestrator/internal/domain"
	"github.com/dealroom/orchestrator/internal/tool"
)

func TestAllowedOperations_NoPosition(t *testing.T) {
	ops := allowedOperations(domain.PositionContext{HasPosition: false})
	want := []domain.VoteDirection{domain.VoteLong, domain.VoteShort, domain.VoteHold}
	if len(ops) != len(want) {
		t.Fatalf("allowedOperations() = %v", ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Errorf("ops[%d] = %v, want %v", i, ops[i], want[i])
		}
	}
}

func TestAllowedOperations_ExistingLong(t *testing.T) {
	ops := allowedOperations(domain.PositionContext{HasPosition: true, Direction: domain.VoteLong})
	found := map[domain.VoteDirection]bool{}
	for _, o := range ops {
		found[o] = true
	}
	if !found[domain.VoteClose] || !found[domain.VoteAddLong] || !found[domain.VoteReverse] || !found[domain.VoteHold] {
		t.Errorf("allowedOperations() for existing long = %v", ops)
	}
	if found[domain.VoteAddShort] {
		t.Error("add_short should not be offered while long")
	}
}

func TestBuildSignal_NoToolInvoked(t *testing.T) {
	sig := BuildSignal("BTC-USDT", agentcore.TurnOutput{Content: "holding"}, nil, domain.PositionContext{})
	if sig.Direction != domain.VoteHold {
		t.Errorf("Direction = %v, want hold", sig.Direction)
	}
}

func TestBuildSignal_OpenLong(t *testing.T) {
	out := agentcore.TurnOutput{
		ToolsInvoked: []agentcore.ToolInvocation{
			{Name: "open_long", Result: tool.Result{
				Success: true,
				Result: domain.PositionContext{
					Leverage: 4, MarginUSDT: 1000, NotionalUSDT: 4000,
					EntryPrice: 100, TakeProfitPrice: 120, StopLossPrice: 90,
				},
			}},
		},
	}
	votes := []domain.VoteRecord{{Agent: "alice", Direction: domain.VoteLong, Confidence: 0.9}}
	sig := BuildSignal("BTC-USDT", out, votes, domain.PositionContext{AvailableBalance: 10000})
	if sig.Direction != domain.VoteLong {
		t.Errorf("Direction = %v, want long", sig.Direction)
	}
	if sig.Leverage != 4 {
		t.Errorf("Leverage = %d, want 4", sig.Leverage)
	}
	if sig.AmountPercent != 0.1 {
		t.Errorf("AmountPercent = %v, want 0.1", sig.AmountPercent)
	}
	if sig.EntryPrice != 100 || sig.TakeProfitPrice != 120 || sig.StopLossPrice != 90 {
		t.Errorf("entry/tp/sl = %v/%v/%v, want 100/120/90", sig.EntryPrice, sig.TakeProfitPrice, sig.StopLossPrice)
	}
	if sig.RiskRewardRatio != 2 {
		t.Errorf("RiskRewardRatio = %v, want 2 (20 reward / 10 risk)", sig.RiskRewardRatio)
	}
	if sig.ConsensusMap["alice"] != domain.VoteLong {
		t.Errorf("ConsensusMap[alice] = %v, want long", sig.ConsensusMap["alice"])
	}
}
