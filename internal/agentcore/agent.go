// Package agentcore implements the Agent (C4): one participant's bounded
// per-turn procedure (context assembly -> LLM call -> optional tool
// execution -> follow-up synthesis -> emission), a direct generalization
// of the teacher's DecideNode->ToolNode->AnswerNode ReAct loop collapsed
// into a single call since C5/C6 need one bounded call per participant per
// phase rather than a walked node graph.
package agentcore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/dealroom/orchestrator/internal/domain"
	"github.com/dealroom/orchestrator/internal/llm"
	"github.com/dealroom/orchestrator/internal/llm/gateway"
	"github.com/dealroom/orchestrator/internal/tool"
)

// maxToolRoundsPerTurn bounds how many tool-call/tool-result exchanges a
// single Turn will carry out before forcing a final answer, independent of
// the round cap C6 enforces externally.
const maxToolRoundsPerTurn = 4

// Gateway is the subset of gateway.Client an Agent needs, declared here so
// tests can substitute a fake without depending on gateway's HTTP plumbing.
type Gateway interface {
	ChatText(ctx context.Context, messages []llm.Message) (gateway.Response, error)
	ChatWithTools(ctx context.Context, messages []llm.Message, tools []tool.ToolDefinition, toolChoice string) (gateway.Response, error)
}

// Agent is one participant: a role prompt, a model binding, and the subset
// of tools it's allowed to call.
type Agent struct {
	Config   domain.AgentConfig
	LLM      Gateway
	Tools    *tool.Registry // pre-scoped to Config.ToolNames via WithOnly
	OnStatus func(Status)   // optional, for SSE progress reporting
}

// New builds an Agent with its tool registry pre-scoped to its configured
// tool names.
func New(cfg domain.AgentConfig, llmClient Gateway, tools *tool.Registry) *Agent {
	return &Agent{
		Config: cfg,
		LLM:    llmClient,
		Tools:  tools.WithOnly(cfg.ToolNames...),
	}
}

// TurnInput is the context supplied for one Turn: the running transcript
// and whether decision tools are available this phase at all (e.g. C6's
// market-analysis phase passes none; the execution phase passes the full set).
type TurnInput struct {
	Messages         []llm.Message
	AllowToolCalling bool
}

// TurnOutput is everything a Turn produced: the final text, any tool
// invocations it made along the way (for bus publication), and its
// terminal status.
type TurnOutput struct {
	Content      string
	ToolsInvoked []ToolInvocation
	Status       Status
	Degraded     bool
}

// ToolInvocation records one dispatched tool call and its result, in
// invocation order.
type ToolInvocation struct {
	Name   string
	Result tool.Result
}

func (a *Agent) setStatus(s Status) {
	if a.OnStatus != nil {
		a.OnStatus(s)
	}
}

// Turn runs the agent's bounded decision procedure once: it calls the LLM
// with the current transcript, executes any tool the model called
// (de-duplicating to at most one decision tool per turn per spec.md
// §4.4), feeds results back, and repeats until the model stops calling
// tools or maxToolRoundsPerTurn is reached, then returns the content.
func (a *Agent) Turn(ctx context.Context, in TurnInput) TurnOutput {
	a.setStatus(StatusThinking)

	messages := append([]llm.Message(nil), in.Messages...)
	var invocations []ToolInvocation

	if !in.AllowToolCalling {
		resp, err := a.LLM.ChatText(ctx, messages)
		if err != nil {
			a.setStatus(StatusError)
			return TurnOutput{Content: fmt.Sprintf("agent %s: llm error: %v", a.Config.Name, err), Status: StatusError}
		}
		a.setStatus(StatusSpeaking)
		return TurnOutput{Content: resp.Content, Status: StatusSpeaking, Degraded: resp.Degraded}
	}

	schema := a.Tools.Schema(a.Config.ToolNames)
	decisionCalled := false

	for round := 0; round < maxToolRoundsPerTurn; round++ {
		resp, err := a.LLM.ChatWithTools(ctx, messages, schema, "auto")
		if err != nil {
			a.setStatus(StatusError)
			return TurnOutput{Content: fmt.Sprintf("agent %s: llm error: %v", a.Config.Name, err), Status: StatusError, ToolsInvoked: invocations}
		}

		if len(resp.ToolCalls) == 0 {
			a.setStatus(StatusSpeaking)
			return TurnOutput{Content: resp.Content, Status: StatusSpeaking, ToolsInvoked: invocations, Degraded: resp.Degraded}
		}

		a.setStatus(StatusToolUsing)
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, tc := range resp.ToolCalls {
			if a.Tools.IsDecisionTool(tc.Name) {
				if decisionCalled {
					log.Printf("[Agent] %s: dropping extra decision-tool call %q (one per turn)", a.Config.Name, tc.Name)
					messages = append(messages, llm.Message{
						Role: llm.RoleTool, ToolCallID: tc.ID, Name: tc.Name,
						Content: `{"success":false,"summary":"skipped: only one decision tool may run per turn"}`,
					})
					continue
				}
				decisionCalled = true
			}

			result := a.Tools.Invoke(ctx, tc.Name, tc.Arguments)
			invocations = append(invocations, ToolInvocation{Name: tc.Name, Result: result})

			payload, _ := json.Marshal(result)
			messages = append(messages, llm.Message{
				Role: llm.RoleTool, ToolCallID: tc.ID, Name: tc.Name, Content: string(payload),
			})
		}
	}

	// Tool budget exhausted: force a no-further-tools synthesis, mirroring
	// the teacher's AnswerNode follow-up after ToolNode completes.
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: "Tool budget for this turn is exhausted. Respond with your final answer; do not call any more tools.",
	})
	resp, err := a.LLM.ChatText(ctx, messages)
	if err != nil {
		a.setStatus(StatusError)
		return TurnOutput{Content: fmt.Sprintf("agent %s: llm error: %v", a.Config.Name, err), Status: StatusError, ToolsInvoked: invocations}
	}
	a.setStatus(StatusSpeaking)
	return TurnOutput{Content: resp.Content, Status: StatusSpeaking, ToolsInvoked: invocations, Degraded: resp.Degraded}
}
