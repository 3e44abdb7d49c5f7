package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dealroom/orchestrator/internal/agentcore"
	"github.com/dealroom/orchestrator/internal/bus"
	"github.com/dealroom/orchestrator/internal/dd"
	"github.com/dealroom/orchestrator/internal/domain"
	"github.com/dealroom/orchestrator/internal/llm"
	"github.com/dealroom/orchestrator/internal/llm/gateway"
	"github.com/dealroom/orchestrator/internal/roundtable"
	"github.com/dealroom/orchestrator/internal/session"
	"github.com/dealroom/orchestrator/internal/tool"
)

// fakeAnalyzer returns canned results for every dd step, so a dd.Machine
// runs to its HITL suspension and, once resumed, to completion, and the
// create+stream round trip can be tested without a real LLM.
type fakeAnalyzer struct{}

func (fakeAnalyzer) ParseDocument(ctx context.Context, document string) (dd.ParsedDocument, error) {
	return dd.ParsedDocument{Summary: "ok"}, nil
}
func (fakeAnalyzer) MatchPreferences(ctx context.Context, parsed dd.ParsedDocument, preferences map[string]string) (dd.PreferenceMatchResult, error) {
	return dd.PreferenceMatchResult{Passed: true}, nil
}
func (fakeAnalyzer) RunTDD(ctx context.Context, parsed dd.ParsedDocument) (dd.AnalysisResult, error) {
	return dd.AnalysisResult{Kind: "TDD"}, nil
}
func (fakeAnalyzer) RunMDD(ctx context.Context, parsed dd.ParsedDocument) (dd.AnalysisResult, error) {
	return dd.AnalysisResult{Kind: "MDD"}, nil
}
func (fakeAnalyzer) CrossCheck(ctx context.Context, tdd, mdd dd.AnalysisResult) (dd.CrossCheckResult, error) {
	return dd.CrossCheckResult{Consistent: true}, nil
}
func (fakeAnalyzer) GenerateQuestions(ctx context.Context, s *dd.State) ([]string, error) {
	return nil, nil
}
func (fakeAnalyzer) Revise(ctx context.Context, s *dd.State, answers map[string]string) (dd.PreliminaryIM, error) {
	return dd.PreliminaryIM{Thesis: "done"}, nil
}

func newTestSessionHandler(t *testing.T, rtBuilder RoundtableBuilder) *SessionHandler {
	t.Helper()
	store := session.NewStore(time.Hour)
	t.Cleanup(store.Close)
	return NewSessionHandler(store, fakeAnalyzer{}, rtBuilder)
}

func withPathValue(r *http.Request, key, val string) *http.Request {
	r.SetPathValue(key, val)
	return r
}

func TestSessionHandler_DDLifecycle_ResumeReachesCompletion(t *testing.T) {
	h := newTestSessionHandler(t, nil)

	body := strings.NewReader(`{"session_kind":"dd","project_name":"Acme","config":{"preferences":{"stage":"seed"}}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", body)
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created CreateSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.SessionID == "" {
		t.Fatal("expected a session id")
	}

	// The machine suspends at HITL unconditionally; resume it before
	// draining the stream so HandleStream doesn't block forever. The
	// buffered hitl channel means this is safe to call before the
	// machine has actually reached that step.
	ctrlReq := withPathValue(httptest.NewRequest(http.MethodPost, "/api/sessions/x/control", strings.NewReader(`{"action":"resume","feedback":"looks good"}`)), "id", created.SessionID)
	ctrlRec := httptest.NewRecorder()
	h.HandleControl(ctrlRec, ctrlReq)
	if ctrlRec.Code != http.StatusAccepted {
		t.Fatalf("control status = %d, body = %s", ctrlRec.Code, ctrlRec.Body.String())
	}

	streamRec := httptest.NewRecorder()
	streamReq := withPathValue(httptest.NewRequest(http.MethodGet, "/api/sessions/x/stream", nil), "id", created.SessionID)
	h.HandleStream(streamRec, streamReq)

	out := streamRec.Body.String()
	if !strings.Contains(out, `"status":"completed"`) {
		t.Errorf("expected a completed event in stream, got: %s", out)
	}
}

func TestSessionHandler_UnknownSessionKind(t *testing.T) {
	h := newTestSessionHandler(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"session_kind":"bogus"}`))
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSessionHandler_Control_RejectsUnknownSession(t *testing.T) {
	h := newTestSessionHandler(t, nil)
	req := withPathValue(httptest.NewRequest(http.MethodPost, "/api/sessions/x/control", strings.NewReader(`{"action":"cancel"}`)), "id", "nope")
	rec := httptest.NewRecorder()
	h.HandleControl(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSessionHandler_Control_RejectsRoundtableSessions(t *testing.T) {
	llmClient := &fakeTextLLM{responses: []string{
		"```yaml\ndirection: long\nconfidence: 0.8\nrationale: strong\n```",
		"no objections",
		"Consensus reached, long.",
	}}
	analyst := agentcore.New(domain.AgentConfig{Name: "alice"}, llmClient, tool.NewRegistry())
	risk := agentcore.New(domain.AgentConfig{Name: "risk"}, llmClient, tool.NewRegistry())
	leader := agentcore.New(domain.AgentConfig{Name: "leader"}, llmClient, tool.NewRegistry())

	builder := func(ctx context.Context, mode roundtable.Mode, cfg SessionConfig) (*roundtable.Engine, error) {
		roster := roundtable.Roster{Analysts: []*agentcore.Agent{analyst}, RiskAssessor: risk, Leader: leader}
		e := roundtable.New(bus.New(), roster, tool.NewRegistry(), nil, "BTC-USDT-SWAP", roundtable.ModeAnalysis)
		e.MaxRounds = 4
		return e, nil
	}
	h := newTestSessionHandler(t, builder)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"session_kind":"roundtable_analysis"}`))
	rec := httptest.NewRecorder()
	h.HandleCreate(rec, req)
	var created CreateSessionResponse
	json.Unmarshal(rec.Body.Bytes(), &created)

	// Give the background goroutine a moment to register before controlling it.
	time.Sleep(10 * time.Millisecond)

	ctrlReq := withPathValue(httptest.NewRequest(http.MethodPost, "/api/sessions/x/control", strings.NewReader(`{"action":"cancel"}`)), "id", created.SessionID)
	ctrlRec := httptest.NewRecorder()
	h.HandleControl(ctrlRec, ctrlReq)
	if ctrlRec.Code != http.StatusBadRequest && ctrlRec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 400 or 404 (roundtable sessions have no control surface)", ctrlRec.Code)
	}
}

type fakeTextLLM struct {
	responses []string
	calls     int
}

func (f *fakeTextLLM) ChatText(ctx context.Context, messages []llm.Message) (gateway.Response, error) {
	r := f.responses[f.calls%len(f.responses)]
	f.calls++
	return gateway.Response{Content: r}, nil
}

func (f *fakeTextLLM) ChatWithTools(ctx context.Context, messages []llm.Message, tools []tool.ToolDefinition, toolChoice string) (gateway.Response, error) {
	return gateway.Response{Content: "no tool call needed"}, nil
}
