package roundtable

import (
	"strings"

	"github.com/dealroom/orchestrator/internal/domain"
)

// Consensus reports whether one direction commands at least ceil(N/2)+1 of
// the analyst votes, with no outstanding risk-assessor objection
// (spec.md §4.6). Votes below minConfidence are excluded before tallying:
// a confidence-below-threshold vote cannot drive execution. Ties and
// no-majority cases report hasConsensus=false.
func Consensus(votes []domain.VoteRecord, objection bool, minConfidence float64) (domain.VoteDirection, bool) {
	if objection {
		return domain.VoteHold, false
	}

	eligible := make([]domain.VoteRecord, 0, len(votes))
	for _, v := range votes {
		if v.Confidence >= minConfidence {
			eligible = append(eligible, v)
		}
	}
	if len(eligible) == 0 {
		return domain.VoteHold, false
	}

	counts := make(map[domain.VoteDirection]int)
	for _, v := range eligible {
		counts[v.Direction]++
	}

	n := len(eligible)
	threshold := (n+1)/2 + 1 // ceil(n/2)+1, via integer division

	best := domain.VoteHold
	bestCount := 0
	for dir, c := range counts {
		if c > bestCount {
			best, bestCount = dir, c
		}
	}
	if bestCount >= threshold {
		return best, true
	}
	return domain.VoteHold, false
}

// hasObjection reports whether the risk-assessor's statement flags an
// outstanding objection (spec.md §4.6's "objection" kind). Matches the
// leading "OBJECTION:" marker the engine's risk-review prompt asks for,
// rather than a bare substring, so a response like "no objections" isn't
// mistaken for one.
func hasObjection(riskContent string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(riskContent)), "OBJECTION:")
}
