package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dealroom/orchestrator/internal/dd"
	"github.com/dealroom/orchestrator/internal/domain"
	"github.com/dealroom/orchestrator/internal/roundtable"
	"github.com/dealroom/orchestrator/internal/session"
)

func newSessionID() string { return uuid.NewString() }

// CreateSessionRequest is the inbound schema of POST /api/sessions
// (spec.md §6): session_kind selects which engine drives the run, target
// and config carry whatever that engine needs to start.
type CreateSessionRequest struct {
	SessionKind string            `json:"session_kind"` // "dd"|"roundtable_analysis"|"roundtable_trading"
	ProjectName string            `json:"project_name"`
	Target      map[string]string `json:"target"`
	DocumentRef string            `json:"document_ref"`
	Config      SessionConfig     `json:"config"`
}

// SessionConfig is the free-form tuning block of a create request, passed
// through to whichever engine the session kind selects.
type SessionConfig struct {
	Depth          string            `json:"depth"`
	SelectedAgents []string          `json:"selected_agents"`
	DataSources    []string          `json:"data_sources"`
	Preferences    map[string]string `json:"preferences"`
}

// CreateSessionResponse is the body of a successful POST /api/sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// ControlRequest is the body of POST /api/sessions/{id}/control
// (spec.md §6): "resume" delivers HITL feedback, "cancel" aborts the run.
type ControlRequest struct {
	Action   string `json:"action"` // "resume"|"cancel"
	Feedback string `json:"feedback"`
}

// RoundtableBuilder constructs the Engine for one roundtable session from
// its request config, kept as an injected function so internal/web never
// needs to know how a roster, bus, or ledger is assembled — that wiring
// lives in cmd/orchestratord, mirroring how the teacher's AgentHandler took
// a pre-built flow rather than constructing one itself.
type RoundtableBuilder func(ctx context.Context, mode roundtable.Mode, cfg SessionConfig) (*roundtable.Engine, error)

// sessionRuntime holds the live, in-memory pieces of a running session that
// don't belong in the persisted domain.Session: the event fan-out channel
// HandleStream reads from, and — for DD sessions only — the *dd.State a
// control request resumes or cancels.
type sessionRuntime struct {
	events  chan Event
	ddState *dd.State // nil for roundtable sessions; HITL only exists in dd
}

// SessionHandler implements the session lifecycle endpoints of spec.md §6,
// generalized from the teacher's AgentHandler (one ReAct loop streamed over
// SSE) to dispatch across the two engines this system drives.
type SessionHandler struct {
	Store      *session.Store
	Analyzer   dd.Analyzer
	Roundtable RoundtableBuilder

	mu       sync.Mutex
	runtimes map[string]*sessionRuntime
}

// NewSessionHandler wires a SessionHandler around its store and engines.
func NewSessionHandler(store *session.Store, az dd.Analyzer, rt RoundtableBuilder) *SessionHandler {
	return &SessionHandler{
		Store:      store,
		Analyzer:   az,
		Roundtable: rt,
		runtimes:   make(map[string]*sessionRuntime),
	}
}

func (h *SessionHandler) newRuntime(id string) *sessionRuntime {
	rt := &sessionRuntime{events: make(chan Event, 32)}
	h.mu.Lock()
	h.runtimes[id] = rt
	h.mu.Unlock()
	return rt
}

func (h *SessionHandler) runtime(id string) (*sessionRuntime, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rt, ok := h.runtimes[id]
	return rt, ok
}

// HandleCreate handles POST /api/sessions.
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	var req CreateSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id := newSessionID()
	switch req.SessionKind {
	case "dd":
		h.startDD(r.Context(), id, req)
	case "roundtable_analysis":
		h.startRoundtable(r.Context(), id, roundtable.ModeAnalysis, req)
	case "roundtable_trading":
		h.startRoundtable(r.Context(), id, roundtable.ModeTrading, req)
	default:
		http.Error(w, "unknown session_kind", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CreateSessionResponse{SessionID: id})
}

func (h *SessionHandler) startDD(ctx context.Context, id string, req CreateSessionRequest) {
	doc := req.DocumentRef
	if doc == "" {
		doc = req.ProjectName
	}
	prefs := req.Config.Preferences
	if prefs == nil {
		prefs = req.Target
	}

	kind := domain.SessionKindDD
	h.Store.Create(&domain.Session{ID: id, Kind: kind, Status: domain.SessionStatusRunning, CreatedAt: time.Now()})

	rt := h.newRuntime(id)
	state := dd.NewState(id, doc, prefs)
	rt.ddState = state
	state.OnProgress = func(ev dd.Event) {
		h.deliver(id, translateDD(id, ev))
		if ev.Status == "completed" || ev.Status == "error" {
			h.closeRuntime(id)
		}
	}

	machine := dd.NewMachine(h.Analyzer)
	go func() {
		status := machine.Run(ctx, state)
		h.Store.Update(id, func(s *domain.Session) { s.Status = status; s.UpdatedAt = time.Now() })
	}()
}

func (h *SessionHandler) startRoundtable(ctx context.Context, id string, mode roundtable.Mode, req CreateSessionRequest) {
	h.Store.Create(&domain.Session{ID: id, Kind: domain.SessionKindRoundtable, Status: domain.SessionStatusRunning, CreatedAt: time.Now()})
	rt := h.newRuntime(id)

	engine, err := h.Roundtable(ctx, mode, req.Config)
	if err != nil {
		h.deliver(id, Event{SessionID: id, Status: "error", Message: err.Error()})
		h.closeRuntime(id)
		h.Store.Update(id, func(s *domain.Session) { s.Status = domain.SessionStatusError; s.Error = err.Error() })
		return
	}
	engine.OnRound = func(round domain.Round) {
		h.deliver(id, translateRoundtable(id, round, false))
	}

	go func() {
		result, err := engine.Run(ctx)
		if err != nil {
			h.deliver(id, Event{SessionID: id, Status: "error", Message: err.Error()})
			h.Store.Update(id, func(s *domain.Session) { s.Status = domain.SessionStatusError; s.Error = err.Error() })
			h.closeRuntime(id)
			return
		}
		if len(result.Rounds) > 0 {
			h.deliver(id, translateRoundtable(id, result.Rounds[len(result.Rounds)-1], true))
		}
		h.Store.Update(id, func(s *domain.Session) { s.Status = result.Status; s.UpdatedAt = time.Now() })
		h.closeRuntime(id)
	}()
}

// deliver is a non-blocking send to the runtime's event channel; a stream
// reader that fell behind or never connected must never stall the engine.
func (h *SessionHandler) deliver(id string, ev Event) {
	rt, ok := h.runtime(id)
	if !ok {
		return
	}
	select {
	case rt.events <- ev:
	default:
		log.Printf("[web] session %s: event dropped, subscriber too slow", id)
	}
}

// closeRuntime closes the runtime's event channel but leaves the map entry
// in place: the channel's buffer still holds whatever progress events a
// stream reader hasn't consumed yet, and closing (rather than deleting)
// lets a client that connects after the engine already finished still
// drain them. The reader itself removes the entry once fully drained, via
// deleteRuntime below.
func (h *SessionHandler) closeRuntime(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rt, ok := h.runtimes[id]; ok {
		close(rt.events)
	}
}

func (h *SessionHandler) deleteRuntime(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.runtimes, id)
}

// HandleStream handles GET /api/sessions/{id}/stream.
func (h *SessionHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rt, ok := h.runtime(id)
	if !ok {
		http.Error(w, "session not found or already finished", http.StatusNotFound)
		return
	}
	sse := newSSEWriter(w, r)
	if sse == nil {
		return
	}
	for {
		select {
		case ev, open := <-rt.events:
			if !open {
				h.deleteRuntime(id)
				return
			}
			if !sse.Send("progress", ev) {
				return
			}
		case <-sse.ctx.Done():
			return
		}
	}
}

// HandleControl handles POST /api/sessions/{id}/control.
func (h *SessionHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.PathValue("id")
	rt, ok := h.runtime(id)
	if !ok {
		http.Error(w, "session not found or already finished", http.StatusNotFound)
		return
	}
	if rt.ddState == nil {
		http.Error(w, "this session kind has no control surface", http.StatusBadRequest)
		return
	}
	var req ControlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Action {
	case "resume":
		rt.ddState.Resume(map[string]string{"feedback": req.Feedback})
	case "cancel":
		rt.ddState.Cancel()
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
