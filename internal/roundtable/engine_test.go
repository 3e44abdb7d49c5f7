package roundtable

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dealroom/orchestrator/internal/agentcore"
	"github.com/dealroom/orchestrator/internal/bus"
	"github.com/dealroom/orchestrator/internal/domain"
	"github.com/dealroom/orchestrator/internal/llm"
	"github.com/dealroom/orchestrator/internal/llm/gateway"
	"github.com/dealroom/orchestrator/internal/tool"
)

type fakeRecorder struct {
	tradeID string
	preds   []domain.Prediction
}

func (r *fakeRecorder) RecordPredictions(tradeID string, preds []domain.Prediction) {
	r.tradeID = tradeID
	r.preds = preds
}

type fakeLLM struct {
	textResponses []gateway.Response
	toolResponses []gateway.Response
	textCalls     int
	toolCalls     int
}

func (f *fakeLLM) ChatText(ctx context.Context, messages []llm.Message) (gateway.Response, error) {
	r := f.textResponses[f.textCalls]
	f.textCalls++
	return r, nil
}

func (f *fakeLLM) ChatWithTools(ctx context.Context, messages []llm.Message, tools []tool.ToolDefinition, toolChoice string) (gateway.Response, error) {
	r := f.toolResponses[f.toolCalls]
	f.toolCalls++
	return r, nil
}

type fakeLedger struct {
	opened string
}

func (l *fakeLedger) GetAccount(ctx context.Context) (domain.Account, error) {
	return domain.Account{AvailableBalance: 10000, TotalEquity: 10000}, nil
}

func (l *fakeLedger) OpenLong(ctx context.Context, symbol string, leverage int, amountUSDT, tpPrice, slPrice float64) (tool.Result, error) {
	l.opened = symbol
	pos := domain.PositionContext{
		TradeID: "trade-xyz", Symbol: symbol, HasPosition: true, Direction: domain.VoteLong,
		Leverage: leverage, MarginUSDT: amountUSDT, NotionalUSDT: amountUSDT * float64(leverage),
		TakeProfitPrice: tpPrice, StopLossPrice: slPrice,
	}
	return tool.Result{Success: true, Result: pos, Summary: "opened long"}, nil
}

func (l *fakeLedger) OpenShort(ctx context.Context, symbol string, leverage int, amountUSDT, tpPrice, slPrice float64) (tool.Result, error) {
	return tool.Result{Success: true, Summary: "opened short"}, nil
}

func (l *fakeLedger) ClosePosition(ctx context.Context, symbol string) (tool.Result, error) {
	return tool.Result{Success: true, Summary: "closed"}, nil
}

func buildAnalyst(name string, vote string) *agentcore.Agent {
	llmClient := &fakeLLM{
		toolResponses: []gateway.Response{{Content: "I see a bullish setup."}},
		textResponses: []gateway.Response{{Content: vote}},
	}
	return agentcore.New(domain.AgentConfig{Name: name}, llmClient, tool.NewRegistry())
}

func TestEngine_AnalysisMode_ReachesConsensus(t *testing.T) {
	a1 := buildAnalyst("alice", "```yaml\ndirection: long\nconfidence: 0.8\nrationale: strong volume\n```")
	a2 := buildAnalyst("bob", "```yaml\ndirection: long\nconfidence: 0.7\nrationale: breakout\n```")

	risk := agentcore.New(domain.AgentConfig{Name: "risk"}, &fakeLLM{
		textResponses: []gateway.Response{{Content: "no objections, risk is manageable"}},
	}, tool.NewRegistry())

	leader := agentcore.New(domain.AgentConfig{Name: "leader"}, &fakeLLM{
		textResponses: []gateway.Response{{Content: "Consensus is long, proceeding with analysis only."}},
	}, tool.NewRegistry())

	e := New(bus.New(), Roster{Analysts: []*agentcore.Agent{a1, a2}, RiskAssessor: risk, Leader: leader},
		tool.NewRegistry(), nil, "BTC-USDT", ModeAnalysis)

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Status != domain.SessionStatusCompleted {
		t.Errorf("Status = %v, want completed", result.Status)
	}
	if result.Signal != nil {
		t.Error("analysis mode should not produce a trading signal")
	}
	if len(result.Votes) != 2 {
		t.Fatalf("Votes = %d, want 2", len(result.Votes))
	}
	dir, ok := Consensus(result.Votes, false, 0)
	if !ok || dir != domain.VoteLong {
		t.Errorf("Consensus over collected votes = %v, %v; want long, true", dir, ok)
	}
}

func TestEngine_TradingMode_ExecutesOpenLong(t *testing.T) {
	a1 := buildAnalyst("alice", "```yaml\ndirection: long\nconfidence: 0.8\nrationale: strong volume\n```")
	a2 := buildAnalyst("bob", "```yaml\ndirection: long\nconfidence: 0.7\nrationale: breakout\n```")

	risk := agentcore.New(domain.AgentConfig{Name: "risk"}, &fakeLLM{
		textResponses: []gateway.Response{{Content: "no objections"}},
	}, tool.NewRegistry())

	reg := tool.NewRegistry()
	ledger := &fakeLedger{}
	if err := tool.RegisterDecisionTools(reg, ledger, tool.Limits{}); err != nil {
		t.Fatalf("RegisterDecisionTools: %v", err)
	}

	leaderLLM := &fakeLLM{
		textResponses: []gateway.Response{{Content: "Consensus is long."}},
		toolResponses: []gateway.Response{
			{
				Content: "opening long",
				ToolCalls: []llm.ToolCall{
					{ID: "1", Name: "open_long", Arguments: json.RawMessage(`{"symbol":"BTC-USDT","amount_percent":0.1,"leverage":5,"tp_price":60000,"sl_price":45000}`)},
				},
			},
			{Content: "position opened"},
		},
	}
	leader := agentcore.New(domain.AgentConfig{Name: "leader", ToolNames: []string{"open_long", "open_short", "close_position", "hold"}}, leaderLLM, reg)

	e := New(bus.New(), Roster{Analysts: []*agentcore.Agent{a1, a2}, RiskAssessor: risk, Leader: leader},
		reg, nil, "BTC-USDT", ModeTrading)
	recorder := &fakeRecorder{}
	e.Memory = recorder

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Signal == nil {
		t.Fatal("expected a trading signal")
	}
	if result.Signal.Direction != domain.VoteLong {
		t.Errorf("Signal.Direction = %v, want long", result.Signal.Direction)
	}
	if result.Signal.Leverage != 5 {
		t.Errorf("Signal.Leverage = %d, want 5", result.Signal.Leverage)
	}
	if ledger.opened != "BTC-USDT" {
		t.Errorf("ledger.opened = %q, want BTC-USDT", ledger.opened)
	}
	if recorder.tradeID != "trade-xyz" {
		t.Errorf("recorder.tradeID = %q, want trade-xyz", recorder.tradeID)
	}
	if len(recorder.preds) != 2 {
		t.Fatalf("recorder.preds = %d, want 2", len(recorder.preds))
	}
}

func TestEngine_RoundCap_ForcesSynthesis(t *testing.T) {
	a1 := buildAnalyst("alice", "```yaml\ndirection: hold\nconfidence: 0\nrationale: n/a\n```")

	leader := agentcore.New(domain.AgentConfig{Name: "leader"}, &fakeLLM{
		textResponses: []gateway.Response{{Content: "budget exhausted, holding"}},
	}, tool.NewRegistry())

	e := New(bus.New(), Roster{Analysts: []*agentcore.Agent{a1}, Leader: leader}, tool.NewRegistry(), nil, "BTC-USDT", ModeAnalysis)
	e.MaxRounds = 0

	result, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !result.Forced {
		t.Error("expected a forced synthesis when the round cap is already exhausted")
	}
}
