// Package memory implements Memory & Reflection (C9): a per-agent
// aggregate of trade outcomes and lessons, read at session start and
// written only by the reflection pipeline after a position closes. Built
// fresh (the teacher has no per-agent performance memory), grounded on
// internal/session.Store's map+mutex shape and Store.AppendTurn's bounded
// FIFO trim for the lessons/experiences lists (spec.md §4.9).
package memory

import (
	"fmt"
	"sync"
	"time"

	"github.com/dealroom/orchestrator/internal/domain"
)

// maxLessons/maxExperiences bound each agent's rolling lists, evicting the
// oldest entry once full, matching the teacher's bounded-history idiom.
const (
	maxLessons     = 20
	maxExperiences = 20
)

// Store is the process-wide registry of per-agent memories and the
// in-flight predictions awaiting a trade close to reflect on.
type Store struct {
	mu          sync.RWMutex
	memories    map[string]*domain.AgentMemory
	predictions map[string][]domain.Prediction // keyed by trade id
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		memories:    make(map[string]*domain.AgentMemory),
		predictions: make(map[string][]domain.Prediction),
	}
}

// Get returns a snapshot of an agent's memory, or the zero value if none
// has been recorded yet.
func (s *Store) Get(agent string) domain.AgentMemory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.memories[agent]; ok {
		return *m
	}
	return domain.AgentMemory{Agent: agent}
}

// Summary renders an agent's memory into one compact prompt line: trade
// count, win rate, cumulative P&L, current streak, the most recent lesson
// and the current focus. It has no line for the last trade's outcome and
// no list of common mistakes.
func (s *Store) Summary(agent string) string {
	m := s.Get(agent)
	if m.TotalTrades == 0 {
		return "No trading history yet."
	}
	winRate := float64(m.Wins) / float64(m.TotalTrades) * 100
	lesson := "none recorded"
	if len(m.Lessons) > 0 {
		lesson = m.Lessons[len(m.Lessons)-1]
	}
	focus := m.CurrentFocus
	if focus == "" {
		focus = "no specific focus"
	}
	return fmt.Sprintf(
		"Trades: %d, win rate %.0f%%, cumulative P&L %.2f, current streak %d. Last lesson: %q. Current focus: %s.",
		m.TotalTrades, winRate, m.CumulativePnL, m.CurrentStreak, lesson, focus,
	)
}

// RecordPredictions stores the votes an agent roster committed to at
// position-open time, keyed by trade id, so the reflection pipeline can
// find them again once the position closes (spec.md §4.9 step 1).
func (s *Store) RecordPredictions(tradeID string, preds []domain.Prediction) {
	if tradeID == "" || len(preds) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predictions[tradeID] = preds
}

// takePredictions removes and returns the predictions recorded for
// tradeID, if any.
func (s *Store) takePredictions(tradeID string) []domain.Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()
	preds := s.predictions[tradeID]
	delete(s.predictions, tradeID)
	return preds
}

// apply folds one reflection into its agent's memory: increments
// counters, updates the win/loss streak, appends a lesson (bounded FIFO),
// and recomputes current focus.
func (s *Store) apply(agent string, predicted domain.VoteDirection, closed domain.PositionContext, pnl float64, reflection domain.Reflection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memories[agent]
	if !ok {
		m = &domain.AgentMemory{Agent: agent, DirectionAccuracy: make(map[domain.VoteDirection]float64)}
		s.memories[agent] = m
	}
	if m.DirectionAccuracy == nil {
		m.DirectionAccuracy = make(map[domain.VoteDirection]float64)
	}

	won := pnl > 0
	m.TotalTrades++
	m.CumulativePnL += pnl
	if won {
		m.Wins++
		if m.CurrentStreak >= 0 {
			m.CurrentStreak++
		} else {
			m.CurrentStreak = 1
		}
	} else {
		m.Losses++
		if m.CurrentStreak <= 0 {
			m.CurrentStreak--
		} else {
			m.CurrentStreak = -1
		}
	}
	if abs(m.CurrentStreak) > abs(m.MaxStreak) {
		m.MaxStreak = m.CurrentStreak
	}

	// Exponential update toward 1 (correct) or 0 (incorrect) for the
	// predicted direction, so accuracy tracks recent performance more than
	// ancient history.
	const alpha = 0.2
	prior := m.DirectionAccuracy[predicted]
	outcome := 0.0
	if won {
		outcome = 1.0
	}
	m.DirectionAccuracy[predicted] = prior + alpha*(outcome-prior)

	for _, lesson := range reflection.LessonsLearned {
		m.Lessons = appendBounded(m.Lessons, lesson, maxLessons)
	}
	if reflection.Summary != "" {
		m.Experiences = appendBounded(m.Experiences, reflection.Summary, maxExperiences)
	}
	if reflection.NextTimeAction != "" {
		m.CurrentFocus = reflection.NextTimeAction
	}
	m.UpdatedAt = time.Now()
}

func appendBounded(list []string, item string, max int) []string {
	list = append(list, item)
	if len(list) > max {
		list = list[len(list)-max:]
	}
	return list
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
