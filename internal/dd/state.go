// Package dd implements the linear due-diligence state machine (C5):
// DOC_PARSE -> PREFERENCE_MATCH -> {TDD || MDD} -> CROSS_CHECK ->
// QUESTION_GEN -> HITL -> REVISION -> COMPLETED, instantiated on top of
// internal/core's generic node/flow graph (spec.md §4.5).
package dd

import (
	"time"

	"github.com/dealroom/orchestrator/internal/domain"
)

// StepName enumerates the DD machine's fixed sequence.
type StepName string

const (
	StepDocParse         StepName = "DOC_PARSE"
	StepPreferenceMatch  StepName = "PREFERENCE_MATCH"
	StepParallelAnalysis StepName = "PARALLEL_ANALYSIS" // TDD || MDD
	StepCrossCheck       StepName = "CROSS_CHECK"
	StepQuestionGen      StepName = "QUESTION_GEN"
	StepHITL             StepName = "HITL"
	StepRevision         StepName = "REVISION"
	StepCompleted        StepName = "COMPLETED"
)

// ParsedDocument is DOC_PARSE's output: the structured facts extracted
// from the raw submission.
type ParsedDocument struct {
	Summary string
	Facts   map[string]string
}

// PreferenceMatchResult is PREFERENCE_MATCH's output: whether the
// opportunity clears the investor's stated preferences at all.
type PreferenceMatchResult struct {
	Passed bool
	Reason string
}

// AnalysisResult is one branch's (TDD or MDD) output.
type AnalysisResult struct {
	Kind      string // "TDD" or "MDD"
	Findings  []string
	Concerns  []string
	Err       error
}

// CrossCheckResult reconciles the two parallel branches.
type CrossCheckResult struct {
	Consistent      bool
	Discrepancies   []string
}

// PreliminaryIM is the preliminary investment memo produced before HITL
// review (DESIGN.md Open Question 2: serialized to a dict only at the
// internal/web boundary, never inside the state machine).
type PreliminaryIM struct {
	Thesis      string
	Risks       []string
	Questions   []string
	GeneratedAt time.Time
}

// hitlSignal is what Resume/Cancel deliver to an in-flight HITL wait.
type hitlSignal struct {
	answers   map[string]string
	cancelled bool
}

// State is the DD machine's shared state, threaded through every node's
// Prep/Exec/Post per internal/core's BaseNode contract.
type State struct {
	SessionID   string
	Document    string
	Preferences map[string]string

	Parsed          ParsedDocument
	PreferenceMatch PreferenceMatchResult
	TDD             AnalysisResult
	MDD             AnalysisResult
	CrossCheck      CrossCheckResult
	Memo            PreliminaryIM

	RevisionCount int
	MaxRevisions  int

	hitl   chan hitlSignal
	Status domain.SessionStatus

	// OnProgress reports each step transition to the caller (internal/web
	// translates it into an SSE event per spec.md §6).
	OnProgress func(Event)
}

// NewState seeds a fresh State for one DD session.
func NewState(sessionID, document string, preferences map[string]string) *State {
	return &State{
		SessionID:    sessionID,
		Document:     document,
		Preferences:  preferences,
		MaxRevisions: 2,
		hitl:         make(chan hitlSignal, 1),
		Status:       domain.SessionStatusRunning,
	}
}

// Resume delivers HITL answers to a suspended machine.
func (s *State) Resume(answers map[string]string) {
	select {
	case s.hitl <- hitlSignal{answers: answers}:
	default:
	}
}

// Cancel delivers a cancellation to a suspended machine.
func (s *State) Cancel() {
	select {
	case s.hitl <- hitlSignal{cancelled: true}:
	default:
	}
}
