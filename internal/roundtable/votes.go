package roundtable

import (
	"github.com/dealroom/orchestrator/internal/domain"
)

// VoteAggregate summarizes one signal-generation phase's votes.
type VoteAggregate struct {
	Long, Short, Hold int
	Other             int // close/add_long/add_short/reverse, position-aware votes
	AvgConfidence     float64
}

// Aggregate tallies votes by direction and averages confidence across all
// of them, grounded on the teacher's loop/exploration detectors' style of
// small pure functions fed a window of history (internal/agent/loop_detector.go).
func Aggregate(votes []domain.VoteRecord) VoteAggregate {
	var agg VoteAggregate
	var total float64
	for _, v := range votes {
		switch v.Direction {
		case domain.VoteLong:
			agg.Long++
		case domain.VoteShort:
			agg.Short++
		case domain.VoteHold:
			agg.Hold++
		default:
			agg.Other++
		}
		total += v.Confidence
	}
	if len(votes) > 0 {
		agg.AvgConfidence = total / float64(len(votes))
	}
	return agg
}
