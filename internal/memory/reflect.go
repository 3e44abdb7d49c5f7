package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/dealroom/orchestrator/internal/domain"
	"github.com/dealroom/orchestrator/internal/llm"
	"github.com/dealroom/orchestrator/internal/llm/gateway"
)

// reflectionTimeout bounds the whole best-effort reflection pass so a
// stalled gateway never blocks the ledger's ClosePosition caller beyond
// this window (the call itself already runs in a fire-and-forget goroutine).
const reflectionTimeout = 30 * time.Second

// Gateway is the subset of gateway.Client reflection needs, declared
// locally the way agentcore.Gateway is, so tests can substitute a fake.
type Gateway interface {
	ChatText(ctx context.Context, messages []llm.Message) (gateway.Response, error)
}

// reflectionDoc is the tolerant JSON shape an LLM's reflection is parsed
// from (spec.md §4.9 step 2).
type reflectionDoc struct {
	Summary        string   `json:"summary"`
	WhatWentWell   []string `json:"what_went_well"`
	WhatWentWrong  []string `json:"what_went_wrong"`
	LessonsLearned []string `json:"lessons_learned"`
	NextTimeAction string   `json:"next_time_action"`
}

// Reflector implements internal/ledger.Reflector: notified after a
// position closes, it looks up the predictions recorded for that trade and
// runs one reflection per predicting agent, best-effort (spec.md §4.9,
// DESIGN.md Open Question 3 — invoked via ClosePosition's fire-and-forget
// goroutine, not in the trading-cycle critical path).
type Reflector struct {
	Store *Store
	LLM   Gateway
}

// NewReflector builds a Reflector around store and llmClient.
func NewReflector(store *Store, llmClient Gateway) *Reflector {
	return &Reflector{Store: store, LLM: llmClient}
}

// Reflect runs the write path of spec.md §4.9: for each prediction
// recorded against closed.TradeID, ask the LLM to self-assess, then fold
// the result into that agent's memory. Every step is best-effort — a
// missing prediction set, an LLM error, or an unparseable response is
// logged and skipped, never propagated.
func (r *Reflector) Reflect(closed domain.PositionContext) {
	if r.Store == nil {
		return
	}
	preds := r.Store.takePredictions(closed.TradeID)
	if len(preds) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), reflectionTimeout)
	defer cancel()

	pnl := closePnL(closed)

	for _, p := range preds {
		reflection, err := r.reflectOne(ctx, p, closed, pnl)
		if err != nil {
			log.Printf("[Memory] reflection failed for agent %s trade %s: %v", p.Agent, closed.TradeID, err)
			continue
		}
		r.Store.apply(p.Agent, p.Direction, closed, pnl, reflection)
	}
}

// closePnL approximates realized P&L from the closed snapshot's notional
// and the distance the mark price moved from entry, consistent with the
// ledger's own simplified paper-trading model (no external price feed
// assumed beyond what the snapshot already carried).
func closePnL(closed domain.PositionContext) float64 {
	if closed.EntryPrice == 0 {
		return 0
	}
	move := (closed.MarkPrice - closed.EntryPrice) / closed.EntryPrice
	if closed.Direction == domain.VoteShort {
		move = -move
	}
	return move * closed.NotionalUSDT
}

func (r *Reflector) reflectOne(ctx context.Context, p domain.Prediction, closed domain.PositionContext, pnl float64) (domain.Reflection, error) {
	prompt := fmt.Sprintf(
		"You predicted %s on %s with confidence %.0f%%, reasoning: %q. "+
			"The position closed with entry=%.2f exit=%.2f leverage=%dx realized P&L=%.2f. "+
			"Respond with a JSON object: {\"summary\":\"\",\"what_went_well\":[],\"what_went_wrong\":[],"+
			"\"lessons_learned\":[],\"next_time_action\":\"\"}.",
		p.Direction, closed.Symbol, p.Confidence*100, p.Rationale,
		closed.EntryPrice, closed.MarkPrice, closed.Leverage, pnl,
	)

	resp, err := r.LLM.ChatText(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: "You are reflecting on one of your own past trading predictions."},
		{Role: llm.RoleUser, Content: prompt},
	})
	if err != nil {
		return domain.Reflection{}, err
	}

	doc, err := extractReflection(resp.Content)
	if err != nil {
		return domain.Reflection{}, err
	}
	return domain.Reflection{
		Summary:        doc.Summary,
		WhatWentWell:   doc.WhatWentWell,
		WhatWentWrong:  doc.WhatWentWrong,
		LessonsLearned: doc.LessonsLearned,
		NextTimeAction: doc.NextTimeAction,
	}, nil
}

// extractReflection pulls the JSON object out of a fenced code block or
// surrounding prose, tolerant in the same spirit as
// internal/agentcore/vote_parse.go's extractYAML.
func extractReflection(content string) (reflectionDoc, error) {
	body := content
	if idx := strings.Index(body, "```json"); idx >= 0 {
		rest := body[idx+7:]
		if end := strings.Index(rest, "```"); end >= 0 {
			body = rest[:end]
		}
	} else if idx := strings.Index(body, "```"); idx >= 0 {
		rest := body[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			body = rest[:end]
		}
	} else if start := strings.Index(body, "{"); start >= 0 {
		if end := strings.LastIndex(body, "}"); end >= start {
			body = body[start : end+1]
		}
	}

	var doc reflectionDoc
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &doc); err != nil {
		return reflectionDoc{}, fmt.Errorf("parse reflection: %w", err)
	}
	return doc, nil
}
