package dd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dealroom/orchestrator/internal/llm"
	"github.com/dealroom/orchestrator/internal/llm/gateway"
)

// Gateway is the subset of gateway.Client the LLM-backed Analyzer needs,
// declared locally the way internal/agentcore.Gateway and
// internal/memory.Gateway are, so tests can substitute a fake.
type Gateway interface {
	ChatText(ctx context.Context, messages []llm.Message) (gateway.Response, error)
}

// LLMAnalyzer implements Analyzer against any Gateway, one prompt per step,
// grounded on the teacher's per-node LLM-call style
// (internal/agent/decide_node.go issuing one structured-JSON-returning
// prompt per step) and on internal/agentcore/vote_parse.go's fenced-block
// extraction (extractYAML) for parsing the response back out.
type LLMAnalyzer struct {
	LLM Gateway
}

// NewLLMAnalyzer builds an Analyzer around llmClient.
func NewLLMAnalyzer(llmClient Gateway) *LLMAnalyzer {
	return &LLMAnalyzer{LLM: llmClient}
}

func (a *LLMAnalyzer) ask(ctx context.Context, system, user string, out any) error {
	resp, err := a.LLM.ChatText(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	})
	if err != nil {
		return fmt.Errorf("llm call: %w", err)
	}
	body := extractJSON(resp.Content)
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// extractJSON pulls a JSON object out of a fenced block or surrounding
// prose, the same tiered fallback as internal/memory/reflect.go's
// extractReflection; internal/agentcore/vote_parse.go's extractYAML has the
// two fence tiers but no brace-matching tier.
func extractJSON(content string) string {
	body := content
	if idx := strings.Index(body, "```json"); idx >= 0 {
		rest := body[idx+7:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(body, "```"); idx >= 0 {
		rest := body[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if start := strings.Index(body, "{"); start >= 0 {
		if end := strings.LastIndex(body, "}"); end >= start {
			return strings.TrimSpace(body[start : end+1])
		}
	}
	return strings.TrimSpace(body)
}

func (a *LLMAnalyzer) ParseDocument(ctx context.Context, document string) (ParsedDocument, error) {
	var doc struct {
		Summary string            `json:"summary"`
		Facts   map[string]string `json:"facts"`
	}
	err := a.ask(ctx,
		"You extract structured facts from a due-diligence submission. "+
			"Respond with JSON: {\"summary\":\"\",\"facts\":{}}.",
		document, &doc)
	if err != nil {
		return ParsedDocument{}, err
	}
	return ParsedDocument{Summary: doc.Summary, Facts: doc.Facts}, nil
}

func (a *LLMAnalyzer) MatchPreferences(ctx context.Context, parsed ParsedDocument, preferences map[string]string) (PreferenceMatchResult, error) {
	var result struct {
		Passed bool   `json:"passed"`
		Reason string `json:"reason"`
	}
	prefJSON, _ := json.Marshal(preferences)
	user := fmt.Sprintf(
		"Opportunity summary: %s\nInvestor preferences: %s\n"+
			"Does this opportunity clear the stated preferences? Respond with JSON: "+
			"{\"passed\":true|false,\"reason\":\"\"}.",
		parsed.Summary, string(prefJSON),
	)
	err := a.ask(ctx, "You screen opportunities against investor preferences.", user, &result)
	if err != nil {
		return PreferenceMatchResult{}, err
	}
	return PreferenceMatchResult{Passed: result.Passed, Reason: result.Reason}, nil
}

func (a *LLMAnalyzer) runBranch(ctx context.Context, kind, instruction string, parsed ParsedDocument) (AnalysisResult, error) {
	var out struct {
		Findings []string `json:"findings"`
		Concerns []string `json:"concerns"`
	}
	user := fmt.Sprintf("Opportunity summary: %s\n%s\nRespond with JSON: {\"findings\":[],\"concerns\":[]}.", parsed.Summary, instruction)
	if err := a.ask(ctx, fmt.Sprintf("You perform %s due diligence analysis.", kind), user, &out); err != nil {
		return AnalysisResult{Kind: kind, Err: err}, err
	}
	return AnalysisResult{Kind: kind, Findings: out.Findings, Concerns: out.Concerns}, nil
}

// RunTDD performs technical due diligence (architecture, code quality,
// scalability risk).
func (a *LLMAnalyzer) RunTDD(ctx context.Context, parsed ParsedDocument) (AnalysisResult, error) {
	return a.runBranch(ctx, "TDD", "Focus on technical architecture, code quality, and scalability risk.", parsed)
}

// RunMDD performs market due diligence (competitive landscape, demand, moat).
func (a *LLMAnalyzer) RunMDD(ctx context.Context, parsed ParsedDocument) (AnalysisResult, error) {
	return a.runBranch(ctx, "MDD", "Focus on market size, competitive landscape, and defensibility.", parsed)
}

func (a *LLMAnalyzer) CrossCheck(ctx context.Context, tdd, mdd AnalysisResult) (CrossCheckResult, error) {
	var result struct {
		Consistent    bool     `json:"consistent"`
		Discrepancies []string `json:"discrepancies"`
	}
	tddJSON, _ := json.Marshal(tdd)
	mddJSON, _ := json.Marshal(mdd)
	user := fmt.Sprintf(
		"TDD findings: %s\nMDD findings: %s\n"+
			"Are these two analyses consistent with each other? Respond with JSON: "+
			"{\"consistent\":true|false,\"discrepancies\":[]}.",
		string(tddJSON), string(mddJSON),
	)
	err := a.ask(ctx, "You reconcile independent technical and market analyses of the same opportunity.", user, &result)
	if err != nil {
		return CrossCheckResult{}, err
	}
	return CrossCheckResult{Consistent: result.Consistent, Discrepancies: result.Discrepancies}, nil
}

func (a *LLMAnalyzer) GenerateQuestions(ctx context.Context, s *State) ([]string, error) {
	var out struct {
		Questions []string `json:"questions"`
	}
	user := fmt.Sprintf(
		"Summary: %s\nTDD concerns: %v\nMDD concerns: %v\nCross-check discrepancies: %v\n"+
			"List the open questions a human reviewer should answer before this memo is finalized. "+
			"Respond with JSON: {\"questions\":[]}.",
		s.Parsed.Summary, s.TDD.Concerns, s.MDD.Concerns, s.CrossCheck.Discrepancies,
	)
	if err := a.ask(ctx, "You identify open questions blocking an investment decision.", user, &out); err != nil {
		return nil, err
	}
	return out.Questions, nil
}

func (a *LLMAnalyzer) Revise(ctx context.Context, s *State, answers map[string]string) (PreliminaryIM, error) {
	var out struct {
		Thesis    string   `json:"thesis"`
		Risks     []string `json:"risks"`
		Questions []string `json:"questions"` // remaining open questions, if any
	}
	answersJSON, _ := json.Marshal(answers)
	user := fmt.Sprintf(
		"Prior memo thesis: %s\nPrior risks: %v\nHuman answers: %s\n"+
			"Revise the memo. If the answers raise new questions that must be clarified before this "+
			"memo can be finalized, list them; otherwise leave questions empty. "+
			"Respond with JSON: {\"thesis\":\"\",\"risks\":[],\"questions\":[]}.",
		s.Memo.Thesis, s.Memo.Risks, string(answersJSON),
	)
	if err := a.ask(ctx, "You revise an investment memo given human clarifications.", user, &out); err != nil {
		return PreliminaryIM{}, err
	}
	return PreliminaryIM{Thesis: out.Thesis, Risks: out.Risks, Questions: out.Questions, GeneratedAt: time.Now()}, nil
}
