package dd

import (
	"context"

	"github.com/dealroom/orchestrator/internal/core"
	"github.com/dealroom/orchestrator/internal/domain"
)

// Machine drives one DD session's state through the fixed node sequence.
type Machine struct {
	flow *core.Flow[State]
	hitl *hitlStep
}

// NewMachine wires the full DOC_PARSE -> PREFERENCE_MATCH -> {TDD || MDD}
// -> CROSS_CHECK -> QUESTION_GEN -> HITL -> REVISION -> COMPLETED graph.
func NewMachine(az Analyzer) *Machine {
	docParse := core.NewNode[State, string, ParsedDocument](&docParseNode{az: az}, 1)
	prefMatch := core.NewNode[State, *State, PreferenceMatchResult](&preferenceMatchNode{az: az}, 1)
	parallel := newParallelAnalysisStep(az)
	crossCheck := core.NewNode[State, *State, CrossCheckResult](&crossCheckNode{az: az}, 1)
	questionGen := core.NewNode[State, *State, []string](&questionGenNode{az: az}, 1)
	hitl := newHITLStep()
	revision := core.NewNode[State, *State, PreliminaryIM](&revisionNode{az: az, hitl: hitl}, 1)

	docParse.AddSuccessor(prefMatch, core.ActionContinue)
	prefMatch.AddSuccessor(parallel, core.ActionContinue)
	// ActionRejected from prefMatch has no successor: the flow ends there.
	parallel.AddSuccessor(crossCheck, core.ActionContinue)
	crossCheck.AddSuccessor(questionGen, core.ActionContinue)
	questionGen.AddSuccessor(hitl, core.ActionContinue)
	hitl.AddSuccessor(revision, core.ActionContinue)
	revision.AddSuccessor(questionGen, core.ActionRejected) // cycle for another clarification round
	// ActionContinue from revision has no successor: the flow ends (completed).

	return &Machine{flow: core.NewFlow[State](docParse), hitl: hitl}
}

// Run executes the DD session to completion, suspension being an internal
// detail of the HITL step (the flow only returns once the session reaches
// a terminal action: completed, rejected or failed).
func (m *Machine) Run(ctx context.Context, s *State) domain.SessionStatus {
	action := m.flow.Run(ctx, s)
	switch action {
	case core.ActionRejected:
		s.Status = domain.SessionStatusRejectedByPreference
	case core.ActionFailure:
		s.Status = domain.SessionStatusError
	default:
		s.Status = domain.SessionStatusCompleted
	}
	return s.Status
}
