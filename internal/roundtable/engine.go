// Package roundtable implements the Roundtable Meeting Engine (C6): a
// multi-round turn scheduler across a roster of agents, with no teacher
// equivalent to adapt (the teacher is single-agent). Phase sequencing
// follows the explicit ordered-stage style of
// internal/agent/flow.go; the round cap follows internal/agent/state.go's
// MaxAgentSteps env-tunable-with-validation pattern.
package roundtable

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/dealroom/orchestrator/internal/agentcore"
	"github.com/dealroom/orchestrator/internal/bus"
	"github.com/dealroom/orchestrator/internal/domain"
	"github.com/dealroom/orchestrator/internal/llm"
	"github.com/dealroom/orchestrator/internal/tool"
)

// Mode selects which of the two skeletons the engine drives.
type Mode string

const (
	ModeAnalysis Mode = "analysis"
	ModeTrading  Mode = "trading"
)

// Phase names recorded on each domain.Round.
const (
	PhaseMarketAnalysis   = "market_analysis"
	PhaseSignalGeneration = "signal_generation"
	PhaseRiskReview       = "risk_review"
	PhaseConsensus        = "consensus"
	PhaseExecution        = "execution"
)

// MaxRounds caps rounds across all phases combined. Configurable via the
// MAX_ROUNDS env var (default 8), validated the same way the teacher
// validates AGENT_MAX_STEPS.
var MaxRounds = loadMaxRounds()

func loadMaxRounds() int {
	const def = 8
	v := os.Getenv("MAX_ROUNDS")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 50 {
		log.Printf("[Roundtable] WARNING: invalid MAX_ROUNDS=%q (must be 1-50), using default %d", v, def)
		return def
	}
	return n
}

// PositionSource is the read-only snapshot contract the engine consumes at
// each phase entry (spec.md §4.7), satisfied by *ledger.Ledger. Declared
// locally so this package never imports internal/ledger directly.
type PositionSource interface {
	PositionContext(ctx context.Context, symbol string) (domain.PositionContext, error)
}

// PredictionRecorder is the write side of internal/memory's prediction
// store, declared locally so this package never imports internal/memory
// directly. Satisfied by *memory.Store.
type PredictionRecorder interface {
	RecordPredictions(tradeID string, preds []domain.Prediction)
}

// Roster is the fixed set of participant roles a meeting seats.
type Roster struct {
	Analysts     []*agentcore.Agent
	RiskAssessor *agentcore.Agent
	Leader       *agentcore.Agent
}

func (r Roster) all() []*agentcore.Agent {
	out := append([]*agentcore.Agent(nil), r.Analysts...)
	if r.RiskAssessor != nil {
		out = append(out, r.RiskAssessor)
	}
	if r.Leader != nil {
		out = append(out, r.Leader)
	}
	return out
}

// Engine drives one meeting: a roster of agents across bounded phases,
// publishing every statement to a shared Bus.
type Engine struct {
	Bus      *bus.Bus
	Roster   Roster
	// Dispatch is the root registry agents' per-agent views are scoped
	// from; kept here so callers can pass the same registry the agents
	// were built with (schema lookups, IsDecisionTool checks), even though
	// the engine itself never calls Invoke directly — every decision-tool
	// dispatch happens inside Agent.Turn, with the ledger enforcing the
	// execution-time precondition (AlreadyHasPosition) that spec.md §4.6
	// describes as a guard "before dispatch".
	Dispatch  *tool.Registry
	Position  PositionSource
	Symbol    string
	Mode      Mode
	MaxRounds int

	// MaxLeverage, MaxPositionPercent and MinConfidence mirror the
	// MAX_LEVERAGE/MAX_POSITION_PERCENT/MIN_CONFIDENCE env tunables
	// (spec.md §6); the zero value leaves consensus confidence-gating off
	// and lets the decision tools' own defaults apply the leverage/amount
	// clamp, so existing callers that never set these fields are
	// unaffected. MinConfidence is on the same 0-1 scale as VoteRecord.Confidence.
	MaxLeverage        int
	MaxPositionPercent float64
	MinConfidence      float64

	// Memory receives each analyst's vote as a Prediction once the leader's
	// decision tool opens a position, keyed by the trade id the ledger
	// assigned, so internal/memory can reflect on it once the trade closes.
	// Optional: nil disables prediction recording entirely.
	Memory PredictionRecorder

	// OnRound reports each phase's completed Round, mirroring
	// internal/dd.State.OnProgress so internal/web can translate a
	// meeting's progress into the same outbound SSE envelope as a DD
	// session (spec.md §6). Optional.
	OnRound func(domain.Round)

	lastSnapshot domain.PositionContext
}

func (e *Engine) reportRound(r domain.Round) {
	if e.OnRound != nil {
		e.OnRound(r)
	}
}

// New builds an Engine with the package default MaxRounds; override the
// field directly for tests that need a smaller cap.
func New(b *bus.Bus, roster Roster, dispatch *tool.Registry, position PositionSource, symbol string, mode Mode) *Engine {
	return &Engine{
		Bus:       b,
		Roster:    roster,
		Dispatch:  dispatch,
		Position:  position,
		Symbol:    symbol,
		Mode:      mode,
		MaxRounds: MaxRounds,
	}
}

// Result is everything a completed meeting produced.
type Result struct {
	Votes   []domain.VoteRecord
	Signal  *domain.TradingSignal
	Rounds  []domain.Round
	Status  domain.SessionStatus
	Forced  bool // true if the round cap forced an early synthesis
}

// Run drives the meeting to completion or until the round cap forces a
// leader synthesis. It never returns an error for agent-level failures
// (those degrade to information messages per spec.md §4.4); it only
// returns an error if the roster is missing a required seat.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	if e.Roster.Leader == nil {
		return Result{}, fmt.Errorf("roundtable: roster has no leader")
	}
	if len(e.Roster.Analysts) == 0 {
		return Result{}, fmt.Errorf("roundtable: roster has no analysts")
	}

	var rounds []domain.Round
	round := 0
	capReached := func() bool {
		round++
		return round > e.MaxRounds
	}

	position := e.snapshot(ctx)

	// Phase 1: market analysis.
	if capReached() {
		return e.forcedSynthesis(ctx, rounds, position)
	}
	var marketMsgs []domain.Message
	for _, a := range e.Roster.Analysts {
		out := a.Turn(ctx, agentcore.TurnInput{
			Messages:         e.context(a, "Analyze the current market and opportunity. Report your findings."),
			AllowToolCalling: true,
		})
		marketMsgs = append(marketMsgs, e.publish(a, round, domain.MessageKindStatement, out.Content))
	}
	rounds = append(rounds, domain.Round{Index: round, Phase: PhaseMarketAnalysis, Messages: marketMsgs})
	e.reportRound(rounds[len(rounds)-1])

	// Phase 2: signal generation.
	if capReached() {
		return e.forcedSynthesis(ctx, rounds, position)
	}
	allowed := allowedOperations(position)
	var votes []domain.VoteRecord
	var voteMsgs []domain.Message
	for _, a := range e.Roster.Analysts {
		instruction := signalInstruction(allowed)
		out := a.Turn(ctx, agentcore.TurnInput{Messages: e.context(a, instruction)})
		vote, err := agentcore.ParseVote(a.Config.Name, out.Content)
		if err != nil {
			log.Printf("[Roundtable] %s: vote parse failed, defaulting to hold: %v", a.Config.Name, err)
			vote = domain.VoteRecord{Agent: a.Config.Name, Direction: domain.VoteHold}
		}
		votes = append(votes, vote)
		voteMsgs = append(voteMsgs, e.publish(a, round, domain.MessageKindVote, out.Content))
	}
	rounds = append(rounds, domain.Round{Index: round, Phase: PhaseSignalGeneration, Messages: voteMsgs, Votes: votes})
	e.reportRound(rounds[len(rounds)-1])

	// Phase 3: risk review.
	if capReached() {
		return e.forcedSynthesis(ctx, rounds, position)
	}
	agg := Aggregate(votes)
	var riskContent string
	objection := false
	if e.Roster.RiskAssessor != nil {
		riskPrompt := fmt.Sprintf(
			"Aggregate votes: long=%d short=%d hold=%d (avg confidence %.0f%%). Review risk and publish a summary. "+
				"If you see a reason execution should not proceed, begin your response with \"OBJECTION:\".",
			agg.Long, agg.Short, agg.Hold, agg.AvgConfidence*100,
		)
		out := e.Roster.RiskAssessor.Turn(ctx, agentcore.TurnInput{Messages: e.context(e.Roster.RiskAssessor, riskPrompt)})
		riskContent = out.Content
		objection = hasObjection(riskContent)
		msg := e.publish(e.Roster.RiskAssessor, round, domain.MessageKindStatement, riskContent)
		rounds = append(rounds, domain.Round{Index: round, Phase: PhaseRiskReview, Messages: []domain.Message{msg}})
		e.reportRound(rounds[len(rounds)-1])
	}

	// Phase 4: consensus.
	if capReached() {
		return e.forcedSynthesis(ctx, rounds, position)
	}
	consensusDirection, hasConsensus := Consensus(votes, objection, e.MinConfidence)
	consensusPrompt := fmt.Sprintf(
		"The analyst votes and risk review are on the record. Consensus direction: %s (reached=%v). "+
			"Publish your synthesis for the group.", consensusDirection, hasConsensus,
	)
	consensusOut := e.Roster.Leader.Turn(ctx, agentcore.TurnInput{Messages: e.context(e.Roster.Leader, consensusPrompt)})
	consensusMsg := e.publish(e.Roster.Leader, round, domain.MessageKindStatement, consensusOut.Content)
	rounds = append(rounds, domain.Round{Index: round, Phase: PhaseConsensus, Messages: []domain.Message{consensusMsg}})
	e.reportRound(rounds[len(rounds)-1])

	if e.Mode == ModeAnalysis {
		return Result{Votes: votes, Rounds: rounds, Status: domain.SessionStatusCompleted}, nil
	}

	// Phase 5: execution (trading mode only).
	if capReached() {
		return e.forcedSynthesis(ctx, rounds, position)
	}
	execPrompt := fmt.Sprintf(
		"Decide the final action for %s. Allowed operations: %v. Consensus direction: %s. "+
			"If opening or adding to a position, a leverage of %dx is a reasonable default absent a stronger view; "+
			"it will be clamped to the account's configured maximum regardless of what you choose. "+
			"Express your decision as exactly one tool call from the decision-tools set.",
		e.Symbol, allowed, consensusDirection, e.defaultLeverage(),
	)
	execOut := e.Roster.Leader.Turn(ctx, agentcore.TurnInput{
		Messages:         e.context(e.Roster.Leader, execPrompt),
		AllowToolCalling: true,
	})
	execMsg := e.publish(e.Roster.Leader, round, domain.MessageKindStatement, execOut.Content)
	signal := BuildSignal(e.Symbol, execOut, votes, position)
	rounds = append(rounds, domain.Round{
		Index: round, Phase: PhaseExecution, Messages: []domain.Message{execMsg}, Signal: signal,
	})
	e.reportRound(rounds[len(rounds)-1])

	if e.Memory != nil {
		if tradeID := OpenedTradeID(execOut); tradeID != "" {
			e.Memory.RecordPredictions(tradeID, predictionsFromVotes(tradeID, votes))
		}
	}

	return Result{Votes: votes, Signal: signal, Rounds: rounds, Status: domain.SessionStatusCompleted}, nil
}

// defaultLeverage implements S3's sizing rule, leverage = floor(MAX_LEVERAGE
// * 0.6), surfaced in the execution-phase prompt as a suggested starting
// point. Falls back to tool.Limits' own default when MaxLeverage is unset.
func (e *Engine) defaultLeverage() int {
	max := e.MaxLeverage
	if max <= 0 {
		max = 20
	}
	return int(float64(max) * 0.6)
}

// snapshot reads the position context once at meeting start; a fresh read
// would normally happen at each phase boundary per spec.md §4.7, but since
// Run executes all phases without yielding control back to a caller
// between them, one snapshot per Run call satisfies "frozen for the
// duration of one phase" trivially. Callers driving repeated meeting
// cycles (the scheduler) re-invoke Run, which re-snapshots.
func (e *Engine) snapshot(ctx context.Context) domain.PositionContext {
	pos := domain.PositionContext{Symbol: e.Symbol}
	if e.Position != nil {
		if p, err := e.Position.PositionContext(ctx, e.Symbol); err != nil {
			log.Printf("[Roundtable] position snapshot failed: %v", err)
		} else {
			pos = p
		}
	}
	e.lastSnapshot = pos
	return pos
}

// forcedSynthesis is invoked when the round cap is hit mid-meeting: the
// leader is given one last turn over whatever history accumulated so far,
// and the meeting ends without entering the execution phase.
func (e *Engine) forcedSynthesis(ctx context.Context, rounds []domain.Round, position domain.PositionContext) (Result, error) {
	log.Printf("[Roundtable] round cap (%d) reached, forcing leader synthesis", e.MaxRounds)
	out := e.Roster.Leader.Turn(ctx, agentcore.TurnInput{
		Messages: e.context(e.Roster.Leader, "The round budget is exhausted. Summarize the meeting and conclude with hold."),
	})
	msg := e.publish(e.Roster.Leader, e.MaxRounds, domain.MessageKindStatement, out.Content)
	rounds = append(rounds, domain.Round{Index: e.MaxRounds, Phase: PhaseConsensus, Messages: []domain.Message{msg}})
	e.reportRound(rounds[len(rounds)-1])
	return Result{Rounds: rounds, Status: domain.SessionStatusCompleted, Forced: true}, nil
}

// context builds one agent's turn input: its role prompt, the position
// summary (if trading mode), and the bus history relevant to it (all
// broadcasts plus anything addressed to it by name), followed by the
// engine's turn-specific instruction (spec.md §4.4 step 1).
func (e *Engine) context(a *agentcore.Agent, instruction string) []llm.Message {
	messages := []llm.Message{{Role: llm.RoleSystem, Content: a.Config.Role}}

	if e.Mode == ModeTrading {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: summarizePosition(e.snapshotCached())})
	}

	for _, m := range e.Bus.History(nil) {
		if m.Recipient != "" && m.Recipient != a.Config.Name {
			continue
		}
		role := llm.RoleAssistant
		if m.Sender == "system" {
			role = llm.RoleSystem
		}
		messages = append(messages, llm.Message{Role: role, Content: fmt.Sprintf("[%s] %s", m.Sender, m.Content)})
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: instruction})
	return messages
}

// snapshotCached avoids a second ledger round-trip per agent turn within
// the same phase; Run calls snapshot once and context reuses it via this
// thin indirection so context's signature stays independent of Run's
// local variables.
func (e *Engine) snapshotCached() domain.PositionContext {
	return e.lastSnapshot
}

// predictionsFromVotes converts the signal-generation votes into the
// Predictions internal/memory stores against tradeID (spec.md §4.9 step 1).
func predictionsFromVotes(tradeID string, votes []domain.VoteRecord) []domain.Prediction {
	now := time.Now()
	preds := make([]domain.Prediction, len(votes))
	for i, v := range votes {
		preds[i] = domain.Prediction{
			TradeID:    tradeID,
			Agent:      v.Agent,
			Direction:  v.Direction,
			Confidence: v.Confidence,
			Rationale:  v.Rationale,
			CreatedAt:  now,
		}
	}
	return preds
}

func (e *Engine) publish(a *agentcore.Agent, round int, kind domain.MessageKind, content string) domain.Message {
	return e.Bus.Publish(domain.Message{
		Kind:    kind,
		Sender:  a.Config.Name,
		Content: content,
		Round:   round,
	})
}
