package bus

import (
	"testing"

	"github.com/dealroom/orchestrator/internal/domain"
)

func TestBus_PublishAssignsIDAndTimestamp(t *testing.T) {
	b := New()
	m := b.Publish(domain.Message{Kind: domain.MessageKindStatement, Sender: "agent-1", Content: "hi"})

	if m.ID == "" {
		t.Error("expected Publish to assign an ID")
	}
	if m.CreatedAt.IsZero() {
		t.Error("expected Publish to assign a timestamp")
	}
}

func TestBus_HistoryFilters(t *testing.T) {
	b := New()
	b.Publish(domain.Message{Kind: domain.MessageKindStatement, Round: 1, Sender: "a"})
	b.Publish(domain.Message{Kind: domain.MessageKindVote, Round: 1, Sender: "b"})
	b.Publish(domain.Message{Kind: domain.MessageKindStatement, Round: 2, Sender: "a"})

	round1 := b.History(ByRound(1))
	if len(round1) != 2 {
		t.Errorf("len(round1) = %d, want 2", len(round1))
	}

	votes := b.History(ByKind(domain.MessageKindVote))
	if len(votes) != 1 {
		t.Errorf("len(votes) = %d, want 1", len(votes))
	}

	all := b.History(nil)
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}

func TestBus_TrimKeepsWithinCap(t *testing.T) {
	b := New()
	for i := 0; i < maxHistory+50; i++ {
		b.Publish(domain.Message{Kind: domain.MessageKindStatement, Sender: "a"})
	}
	if b.Len() > maxHistory {
		t.Errorf("Len() = %d, want <= %d", b.Len(), maxHistory)
	}
}

func TestBus_TrimPreservesSummaries(t *testing.T) {
	b := New()
	b.Publish(domain.Message{Kind: domain.MessageKindSystem, Content: "summary"})
	for i := 0; i < maxHistory+10; i++ {
		b.Publish(domain.Message{Kind: domain.MessageKindStatement, Sender: "a"})
	}

	summaries := b.History(ByKind(domain.MessageKindSystem))
	if len(summaries) != 1 {
		t.Errorf("expected the summary message to survive trimming, got %d", len(summaries))
	}
}
