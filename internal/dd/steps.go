package dd

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/dealroom/orchestrator/internal/core"
)

// Analyzer is the injected LLM-backed worker each step delegates to; kept
// narrow so the node wiring below stays testable with a stub.
type Analyzer interface {
	ParseDocument(ctx context.Context, document string) (ParsedDocument, error)
	MatchPreferences(ctx context.Context, parsed ParsedDocument, preferences map[string]string) (PreferenceMatchResult, error)
	RunTDD(ctx context.Context, parsed ParsedDocument) (AnalysisResult, error)
	RunMDD(ctx context.Context, parsed ParsedDocument) (AnalysisResult, error)
	CrossCheck(ctx context.Context, tdd, mdd AnalysisResult) (CrossCheckResult, error)
	GenerateQuestions(ctx context.Context, s *State) ([]string, error)
	Revise(ctx context.Context, s *State, answers map[string]string) (PreliminaryIM, error)
}

// docParseNode wraps Analyzer.ParseDocument as a BaseNode.
type docParseNode struct{ az Analyzer }

func (n *docParseNode) Prep(s *State) []string { return []string{s.Document} }

func (n *docParseNode) Exec(ctx context.Context, document string) (ParsedDocument, error) {
	return n.az.ParseDocument(ctx, document)
}

func (n *docParseNode) Post(s *State, _ []string, results ...ParsedDocument) core.Action {
	if len(results) == 0 {
		s.emit("error", StepDocParse, "document parse produced no result")
		return core.ActionFailure
	}
	s.Parsed = results[0]
	s.emit("running", StepDocParse, "document parsed")
	return core.ActionContinue
}

func (n *docParseNode) ExecFallback(err error) ParsedDocument {
	return ParsedDocument{Summary: fmt.Sprintf("parse failed: %v", err)}
}

// preferenceMatchNode wraps Analyzer.MatchPreferences and routes to
// ActionRejected when the opportunity doesn't clear stated preferences,
// short-circuiting the remaining steps.
type preferenceMatchNode struct{ az Analyzer }

func (n *preferenceMatchNode) Prep(s *State) []*State { return []*State{s} }

func (n *preferenceMatchNode) Exec(ctx context.Context, s *State) (PreferenceMatchResult, error) {
	return n.az.MatchPreferences(ctx, s.Parsed, s.Preferences)
}

func (n *preferenceMatchNode) Post(s *State, _ []*State, results ...PreferenceMatchResult) core.Action {
	if len(results) == 0 {
		s.emit("error", StepPreferenceMatch, "preference match produced no result")
		return core.ActionFailure
	}
	s.PreferenceMatch = results[0]
	if !s.PreferenceMatch.Passed {
		s.emit("rejected-by-preference", StepPreferenceMatch, "rejected: "+s.PreferenceMatch.Reason)
		return core.ActionRejected
	}
	s.emit("running", StepPreferenceMatch, "preferences matched")
	return core.ActionContinue
}

func (n *preferenceMatchNode) ExecFallback(err error) PreferenceMatchResult {
	return PreferenceMatchResult{Passed: false, Reason: fmt.Sprintf("match failed: %v", err)}
}

// parallelAnalysisStep runs TDD and MDD concurrently. It implements
// core.Workflow directly rather than going through core.Node, since
// core.Node's Prep/Exec loop is sequential over its prep items and the
// spec requires the two branches to run in parallel (spec.md §4.5
// SUPPLEMENT, DESIGN.md C5).
type parallelAnalysisStep struct {
	az         Analyzer
	successors map[core.Action]core.Workflow[State]
}

func newParallelAnalysisStep(az Analyzer) *parallelAnalysisStep {
	return &parallelAnalysisStep{az: az, successors: make(map[core.Action]core.Workflow[State])}
}

func (p *parallelAnalysisStep) Run(ctx context.Context, s *State) core.Action {
	var wg sync.WaitGroup
	wg.Add(2)

	runBranch := func(kind string, fn func() (AnalysisResult, error), out *AnalysisResult) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				*out = AnalysisResult{Kind: kind, Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		res, err := fn()
		if err != nil {
			res = AnalysisResult{Kind: kind, Err: err}
		}
		*out = res
	}

	go runBranch("TDD", func() (AnalysisResult, error) { return p.az.RunTDD(ctx, s.Parsed) }, &s.TDD)
	go runBranch("MDD", func() (AnalysisResult, error) { return p.az.RunMDD(ctx, s.Parsed) }, &s.MDD)
	wg.Wait()

	if s.TDD.Err != nil {
		log.Printf("[DD] TDD branch failed: %v", s.TDD.Err)
	}
	if s.MDD.Err != nil {
		log.Printf("[DD] MDD branch failed: %v", s.MDD.Err)
	}

	s.emit("running", StepParallelAnalysis, "TDD/MDD analysis complete")
	return core.ActionContinue
}

func (p *parallelAnalysisStep) AddSuccessor(successor core.Workflow[State], action ...core.Action) core.Workflow[State] {
	if successor == nil {
		return successor
	}
	if len(action) == 0 {
		p.successors[core.ActionDefault] = successor
	} else {
		p.successors[action[0]] = successor
	}
	return successor
}

func (p *parallelAnalysisStep) GetSuccessor(action core.Action) core.Workflow[State] {
	return p.successors[action]
}

// crossCheckNode wraps Analyzer.CrossCheck.
type crossCheckNode struct{ az Analyzer }

func (n *crossCheckNode) Prep(s *State) []*State { return []*State{s} }

func (n *crossCheckNode) Exec(ctx context.Context, s *State) (CrossCheckResult, error) {
	return n.az.CrossCheck(ctx, s.TDD, s.MDD)
}

func (n *crossCheckNode) Post(s *State, _ []*State, results ...CrossCheckResult) core.Action {
	if len(results) == 0 {
		s.emit("error", StepCrossCheck, "cross-check produced no result")
		return core.ActionFailure
	}
	s.CrossCheck = results[0]
	s.emit("running", StepCrossCheck, "cross-check complete")
	return core.ActionContinue
}

func (n *crossCheckNode) ExecFallback(err error) CrossCheckResult {
	return CrossCheckResult{Consistent: false, Discrepancies: []string{fmt.Sprintf("cross-check failed: %v", err)}}
}

// questionGenNode wraps Analyzer.GenerateQuestions and builds the
// preliminary memo handed to HITL.
type questionGenNode struct{ az Analyzer }

func (n *questionGenNode) Prep(s *State) []*State { return []*State{s} }

func (n *questionGenNode) Exec(ctx context.Context, s *State) ([]string, error) {
	return n.az.GenerateQuestions(ctx, s)
}

func (n *questionGenNode) Post(s *State, _ []*State, results ...[]string) core.Action {
	var qs []string
	if len(results) > 0 {
		qs = results[0]
	}
	s.Memo = PreliminaryIM{
		Thesis:    s.Parsed.Summary,
		Risks:     append(append([]string{}, s.TDD.Concerns...), s.MDD.Concerns...),
		Questions: qs,
	}
	s.emit("running", StepQuestionGen, "questions generated")
	return core.ActionContinue
}

func (n *questionGenNode) ExecFallback(err error) []string {
	return []string{fmt.Sprintf("question generation failed: %v", err)}
}

// hitlStep blocks until Resume or Cancel delivers a signal on s.hitl, or
// ctx is cancelled. Grounded on the teacher's OnContextOverflow/
// OnStepComplete callback-injection pattern: the engine calls out to a
// caller-supplied hook rather than owning transport.
type hitlStep struct {
	successors map[core.Action]core.Workflow[State]
	answers    *map[string]string
}

func newHITLStep() *hitlStep {
	return &hitlStep{successors: make(map[core.Action]core.Workflow[State])}
}

func (h *hitlStep) Run(ctx context.Context, s *State) core.Action {
	s.Status = "suspended"
	s.emit("suspended", StepHITL, "awaiting human input")

	select {
	case sig := <-s.hitl:
		if sig.cancelled {
			s.emit("error", StepHITL, "cancelled during HITL")
			return core.ActionFailure
		}
		answers := sig.answers
		h.answers = &answers
		s.Status = "running"
		s.emit("running", StepHITL, "human input received")
		return core.ActionContinue
	case <-ctx.Done():
		s.emit("error", StepHITL, "context cancelled during HITL")
		return core.ActionFailure
	}
}

func (h *hitlStep) AddSuccessor(successor core.Workflow[State], action ...core.Action) core.Workflow[State] {
	if successor == nil {
		return successor
	}
	if len(action) == 0 {
		h.successors[core.ActionDefault] = successor
	} else {
		h.successors[action[0]] = successor
	}
	return successor
}

func (h *hitlStep) GetSuccessor(action core.Action) core.Workflow[State] {
	return h.successors[action]
}

// revisionNode wraps Analyzer.Revise, folding the HITL answers into a
// revised memo, and routes back to QUESTION_GEN if more revisions remain
// and the analyst requested clarification, or to COMPLETED otherwise.
type revisionNode struct {
	az   Analyzer
	hitl *hitlStep
}

func (n *revisionNode) Prep(s *State) []*State { return []*State{s} }

func (n *revisionNode) Exec(ctx context.Context, s *State) (PreliminaryIM, error) {
	var answers map[string]string
	if n.hitl.answers != nil {
		answers = *n.hitl.answers
	}
	return n.az.Revise(ctx, s, answers)
}

func (n *revisionNode) Post(s *State, _ []*State, results ...PreliminaryIM) core.Action {
	if len(results) == 0 {
		s.emit("error", StepRevision, "revision produced no result")
		return core.ActionFailure
	}
	s.Memo = results[0]
	s.RevisionCount++
	if len(s.Memo.Questions) > 0 && s.RevisionCount < s.MaxRevisions {
		s.emit("running", StepRevision, "further clarification requested")
		return core.ActionRejected // routed to QUESTION_GEN again, see machine.go wiring
	}
	s.emit("completed", StepRevision, "due diligence complete")
	return core.ActionContinue
}

func (n *revisionNode) ExecFallback(err error) PreliminaryIM {
	return PreliminaryIM{Thesis: strings.TrimSpace(fmt.Sprintf("revision failed: %v", err))}
}
