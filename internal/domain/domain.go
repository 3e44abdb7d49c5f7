// Package domain holds the value types shared across the deliberation
// components (C1-C9) so that those packages do not need to import each
// other just to pass data around, mirroring the way internal/core holds
// shared generic machinery that internal/agent used to specialize.
package domain

import "time"

// SessionKind distinguishes the two orchestration flavors a Session can
// run: a linear due-diligence pass or a multi-agent roundtable debate.
type SessionKind string

const (
	SessionKindDD         SessionKind = "dd"
	SessionKindRoundtable SessionKind = "roundtable"
)

// SessionStatus is the coarse lifecycle state of a Session, independent
// of which state machine (dd or roundtable) is driving it.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusSuspended SessionStatus = "suspended"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
	SessionStatusError     SessionStatus = "error"

	// SessionStatusRejectedByPreference marks a DD session that
	// short-circuited at the preference-match step (spec.md §8 S-reject):
	// a distinct terminal state from SessionStatusCompleted so callers can
	// tell a rejection apart from a memo that actually finished.
	SessionStatusRejectedByPreference SessionStatus = "rejected-by-preference"
)

// Session is the top-level unit of work tracked by internal/session.Store:
// either a DD run or a Roundtable meeting, identified by ID and carrying
// whatever step/round bookkeeping its engine produced.
type Session struct {
	ID        string
	Kind      SessionKind
	Status    SessionStatus
	CreatedAt time.Time
	UpdatedAt time.Time

	Steps  []Step  // populated for SessionKindDD
	Rounds []Round // populated for SessionKindRoundtable

	Error string // set when Status == SessionStatusError
}

// Step is one node transition of a DD session (spec.md §4.5).
type Step struct {
	Name      string
	Status    string // "pending", "running", "completed", "failed", "skipped"
	StartedAt time.Time
	EndedAt   time.Time
	Output    any
}

// Round is one iteration of a Roundtable meeting, holding every message
// exchanged and the votes/signal produced in that round.
type Round struct {
	Index    int
	Phase    string // "market_analysis", "signal_generation", "risk_review", "consensus", "execution"
	Messages []Message
	Votes    []VoteRecord
	Signal   *TradingSignal
}

// MessageKind classifies a Message on the bus (spec.md §4.3).
type MessageKind string

const (
	MessageKindStatement MessageKind = "statement"
	MessageKindVote      MessageKind = "vote"
	MessageKindToolCall  MessageKind = "tool_call"
	MessageKindToolResult MessageKind = "tool_result"
	MessageKindSystem    MessageKind = "system"
)

// Message is one entry on the bus: a typed, attributed utterance.
type Message struct {
	ID        string
	Kind      MessageKind
	Sender    string // agent name, or "system"
	Recipient string // "" means broadcast
	Content   string
	Round     int
	CreatedAt time.Time
}

// AgentConfig describes one participant: its name, role prompt, assigned
// model, and the subset of tool names it may call (spec.md §3).
type AgentConfig struct {
	Name      string
	Role      string
	Model     string
	ToolNames []string
}

// VoteDirection is the normalized direction of a participant's vote.
type VoteDirection string

const (
	VoteLong  VoteDirection = "long"
	VoteShort VoteDirection = "short"
	VoteHold  VoteDirection = "hold"

	// Position-aware extensions, offered only when a position is already
	// open (spec.md §4.6 "position-aware option set").
	VoteClose    VoteDirection = "close"
	VoteAddLong  VoteDirection = "add_long"
	VoteAddShort VoteDirection = "add_short"
	VoteReverse  VoteDirection = "reverse"
)

// VoteRecord is one agent's structured position at the end of a round.
type VoteRecord struct {
	Agent      string
	Direction  VoteDirection
	Confidence float64 // 0-1
	Rationale  string

	// SuggestedLeverage, SuggestedTakeProfitPct and SuggestedStopLossPct are
	// optional sizing hints an agent may attach to its vote (spec.md §4.4);
	// the leader is free to ignore them and the decision tools clamp
	// whatever eventually reaches the ledger regardless.
	SuggestedLeverage      int
	SuggestedTakeProfitPct float64
	SuggestedStopLossPct   float64
}

// TradingSignal is the Roundtable's consensus output for one symbol/round,
// ready to be handed to the ledger's decision tools (spec.md §4.6/§4.7).
type TradingSignal struct {
	Symbol          string
	Direction       VoteDirection
	AmountPercent   float64 // fraction of available balance committed, 0-1 (see DESIGN.md Open Question 1)
	Leverage        int
	EntryPrice      float64
	TakeProfitPrice float64
	StopLossPrice   float64
	// RiskRewardRatio is (TakeProfitPrice-EntryPrice)/(EntryPrice-StopLossPrice)
	// for a long, mirrored for a short; zero when either leg is unset.
	RiskRewardRatio float64
	Confidence      float64
	SupportingVotes int
	Reasoning       string
	// ConsensusMap records each voting agent's direction, keyed by agent
	// name, so a reader of the signal can see the dissent behind it
	// without walking the round's raw vote list.
	ConsensusMap map[string]VoteDirection
	CreatedAt    time.Time
}

// PositionContext is the read-only snapshot of a live position the engine
// hands to agents and uses to gate decision tools (spec.md §4.7).
type PositionContext struct {
	TradeID      string // assigned at open, carried through to the close event for C9's reflection lookup
	Symbol       string
	HasPosition  bool
	Direction    VoteDirection
	EntryPrice   float64
	MarkPrice    float64
	Leverage     int
	Size         float64 // base-asset quantity, NotionalUSDT/EntryPrice at open
	NotionalUSDT float64 // total exposure, AmountUSDT * Leverage
	MarginUSDT   float64 // collateral committed, equal to AmountUSDT at open

	TakeProfitPrice float64
	StopLossPrice   float64
	TPDistancePct   float64 // |TakeProfitPrice-MarkPrice|/MarkPrice * 100, unsigned
	SLDistancePct   float64 // |StopLossPrice-MarkPrice|/MarkPrice * 100, unsigned

	UnrealizedPnL    float64
	UnrealizedPnLPct float64

	LiquidationPrice   float64
	LiquidationDistPct float64 // derived by the engine, not stored on the ledger
	CanAddMore         bool
	MaxAdditionalUSDT  float64

	AvailableBalance float64
	TotalEquity      float64

	OpenedAt        time.Time
	HoldingDuration time.Duration
}

// Account is the paper-trading book's balance sheet, returned by the
// ledger's GetAccount (spec.md §4.7): the engine reads it to convert an
// agent's requested amount_percent into a concrete USDT notional before
// ever calling a decision tool.
type Account struct {
	AvailableBalance float64
	TotalEquity      float64
	UsedMargin       float64
	UnrealizedPnL    float64
	RealizedPnL      float64
	TotalTrades      int
	Wins             int
}

// AgentMemory is the persisted, bounded lessons/experiences log for one
// agent, consulted at the start of a session and appended to only by
// internal/memory's reflection pipeline (spec.md §4.9).
type AgentMemory struct {
	Agent string

	TotalTrades    int
	Wins           int
	Losses         int
	CumulativePnL  float64
	CurrentStreak  int // positive = winning streak, negative = losing streak
	MaxStreak      int

	Lessons         []string // bounded, FIFO eviction
	Experiences     []string // bounded, FIFO eviction
	DirectionAccuracy map[VoteDirection]float64
	CurrentFocus    string

	UpdatedAt time.Time
}

// Reflection is one structured self-assessment an agent produces after a
// trade it predicted closes (spec.md §4.9 step 2's output shape).
type Reflection struct {
	Summary         string
	WhatWentWell    []string
	WhatWentWrong   []string
	LessonsLearned  []string
	NextTimeAction  string
}

// Prediction is what an agent committed to at position-open time, kept
// around so the reflection pipeline can compare it against the outcome
// once the position closes (spec.md §4.9 step 1).
type Prediction struct {
	TradeID   string
	Agent     string
	Direction VoteDirection
	Confidence float64
	Rationale string
	CreatedAt time.Time
}
