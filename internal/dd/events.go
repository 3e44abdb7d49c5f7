package dd

import "time"

// Event is the progress envelope emitted after every step transition,
// generalized from the teacher's SSE writer idiom
// (internal/web/sse.go's sseWriter.Send) to the outbound schema of
// spec.md §6.
type Event struct {
	Status             string         `json:"status"` // "running", "suspended", "completed", "rejected-by-preference", "error"
	CurrentStep        StepName       `json:"current_step"`
	AllSteps           []StepName     `json:"all_steps"`
	PreliminaryResult  *PreliminaryIM `json:"preliminary_result,omitempty"`
	Message            string         `json:"message,omitempty"`
	At                 time.Time      `json:"at"`
}

// allSteps is the fixed ordering reported in every Event.AllSteps, so a
// client can render a progress rail without hardcoding the sequence itself.
var allSteps = []StepName{
	StepDocParse, StepPreferenceMatch, StepParallelAnalysis,
	StepCrossCheck, StepQuestionGen, StepHITL, StepRevision, StepCompleted,
}

func (s *State) emit(status string, step StepName, message string) {
	if s.OnProgress == nil {
		return
	}
	var memo *PreliminaryIM
	if step == StepCompleted || step == StepHITL {
		m := s.Memo
		memo = &m
	}
	s.OnProgress(Event{
		Status:            status,
		CurrentStep:       step,
		AllSteps:          allSteps,
		PreliminaryResult: memo,
		Message:           message,
		At:                time.Now(),
	})
}
