package agentcore

// Status is the coarse phase an Agent is in during one Turn, reported to
// the SSE transport layer between turn steps. The teacher tracks steps as
// a flat StepRecord history without an explicit status machine; C4's
// bounded per-turn model fits naturally into a small enum instead. A turn
// makes up to maxToolRoundsPerTurn tool-calling LLM calls plus one
// text-mode call once that budget is spent; the calls that follow tool
// results stay in tool-calling mode, so they can run further tools.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusThinking  Status = "thinking"
	StatusToolUsing Status = "tool_using"
	StatusSpeaking  Status = "speaking"
	StatusError     Status = "error"
)

// validTransitions enumerates the status graph; Transition rejects a move
// not listed here so a bug in the turn procedure surfaces immediately
// instead of silently reporting a nonsensical status to subscribers.
var validTransitions = map[Status][]Status{
	StatusIdle:      {StatusThinking},
	StatusThinking:  {StatusToolUsing, StatusSpeaking, StatusError},
	StatusToolUsing: {StatusThinking, StatusSpeaking, StatusError},
	StatusSpeaking:  {StatusIdle, StatusError},
	StatusError:     {StatusIdle},
}

// Transition reports whether moving from 'from' to 'to' is a legal step in
// the turn procedure.
func Transition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
