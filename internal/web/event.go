// Package web implements the orchestration core's HTTP surface (spec.md
// §6): session creation, SSE progress streaming, and HITL control,
// generalized from the teacher's internal/web chat/agent handlers (which
// streamed one ReAct loop) to the session-kind-dispatching transport of a
// DD run or a Roundtable meeting.
package web

import (
	"time"

	"github.com/dealroom/orchestrator/internal/dd"
	"github.com/dealroom/orchestrator/internal/domain"
)

// StepProgress is one entry of the outbound envelope's all_steps/
// current_step (spec.md §6).
type StepProgress struct {
	Ordinal     int        `json:"ordinal"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Event is the outbound progress envelope of spec.md §6, shared by both DD
// sessions and Roundtable meetings so internal/web's SSE stream never needs
// to branch on session kind past event construction.
type Event struct {
	SessionID         string         `json:"session_id"`
	Status            string         `json:"status"` // "in_progress"|"hitl_required"|"completed"|"error"
	CurrentStep       *StepProgress  `json:"current_step"`
	AllSteps          []StepProgress `json:"all_steps"`
	PreliminaryResult any            `json:"preliminary_result,omitempty"`
	Message           string         `json:"message"`
}

// ddStatus translates a dd.Event's internal status label into the
// outbound schema's four-way status.
func ddStatus(s string) string {
	switch s {
	case "suspended":
		return "hitl_required"
	case "completed":
		return "completed"
	case "rejected-by-preference":
		return "completed"
	case "error":
		return "error"
	default:
		return "in_progress"
	}
}

// translateDD converts one dd.Event into the outbound Event envelope.
func translateDD(sessionID string, ev dd.Event) Event {
	all := make([]StepProgress, len(ev.AllSteps))
	var current *StepProgress
	for i, step := range ev.AllSteps {
		status := "pending"
		if step == ev.CurrentStep {
			status = ev.Status
		} else if stepBefore(ev.AllSteps, step, ev.CurrentStep) {
			status = "completed"
		}
		sp := StepProgress{Ordinal: i + 1, Title: string(step), Status: status}
		all[i] = sp
		if step == ev.CurrentStep {
			current = &all[i]
		}
	}
	return Event{
		SessionID:         sessionID,
		Status:            ddStatus(ev.Status),
		CurrentStep:       current,
		AllSteps:          all,
		PreliminaryResult: ev.PreliminaryResult,
		Message:           ev.Message,
	}
}

// stepBefore reports whether step occurs earlier in order than current.
func stepBefore(order []dd.StepName, step, current dd.StepName) bool {
	si, ci := -1, -1
	for i, s := range order {
		if s == step {
			si = i
		}
		if s == current {
			ci = i
		}
	}
	return si >= 0 && ci >= 0 && si < ci
}

// roundtablePhaseOrder is the fixed phase sequence reported in every
// Roundtable progress event, mirroring dd's allSteps.
var roundtablePhaseOrder = []string{
	"market_analysis", "signal_generation", "risk_review", "consensus", "execution",
}

// translateRoundtable converts one completed domain.Round into the
// outbound Event envelope (spec.md §6), treating each phase as one step.
func translateRoundtable(sessionID string, r domain.Round, final bool) Event {
	all := make([]StepProgress, len(roundtablePhaseOrder))
	var current *StepProgress
	reachedCurrent := false
	for i, phase := range roundtablePhaseOrder {
		status := "pending"
		switch {
		case phase == r.Phase:
			status = "running"
			if final {
				status = "completed"
			}
			reachedCurrent = true
		case !reachedCurrent:
			status = "completed"
		}
		all[i] = StepProgress{Ordinal: i + 1, Title: phase, Status: status}
		if phase == r.Phase {
			current = &all[i]
		}
	}
	status := "in_progress"
	if final {
		status = "completed"
	}
	return Event{
		SessionID:         sessionID,
		Status:            status,
		CurrentStep:       current,
		AllSteps:          all,
		PreliminaryResult: r,
		Message:           "phase " + r.Phase + " complete",
	}
}
