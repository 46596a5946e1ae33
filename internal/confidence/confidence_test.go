package confidence

import (
	"testing"

	"github.com/jason-c-dev/harmonia-memory/internal/entity"
	"github.com/jason-c-dev/harmonia-memory/internal/memtype"
)

func TestScoreRewardsSpecificContent(t *testing.T) {
	vague := Score(Candidate{
		Content:       "maybe something happened I think",
		Type:          memtype.Factual,
		LLMConfidence: 0.5,
	}, Context{})

	specific := Score(Candidate{
		Content:       "John Smith started at Acme Corp on March 3rd with a $95,000 salary",
		Type:          memtype.Factual,
		LLMConfidence: 0.9,
		Entities:      []string{"John Smith", "Acme Corp"},
		TemporalInfo:  "March 3rd",
	}, Context{})

	if specific.FinalScore <= vague.FinalScore {
		t.Errorf("expected specific, well-supported content to score higher: specific=%v vague=%v", specific.FinalScore, vague.FinalScore)
	}
}

func TestScoreClampsToUnitRange(t *testing.T) {
	f := Score(Candidate{
		Content:       "a",
		Type:          memtype.Personal,
		LLMConfidence: 5.0,
	}, Context{})
	if f.FinalScore < 0 || f.FinalScore > 1 {
		t.Errorf("expected final score in [0,1], got %v", f.FinalScore)
	}
}

func TestScoreEntitySupportUsesContextMatches(t *testing.T) {
	cand := Candidate{
		Content:       "works with Jane on the launch",
		Type:          memtype.Factual,
		LLMConfidence: 0.7,
		Entities:      []string{"Jane"},
	}
	without := Score(cand, Context{})
	f := Score(cand, Context{ExtractedEntities: []entity.Entity{{Text: "Jane", Type: "person"}}})
	if f.EntitySupport <= 0.3 {
		t.Errorf("expected entity support above the no-entity baseline, got %v", f.EntitySupport)
	}
	if f.EntitySupport <= without.EntitySupport {
		t.Errorf("expected a matching extracted entity to raise entity support: with=%v without=%v", f.EntitySupport, without.EntitySupport)
	}
}

func TestLevelThresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.95, "high"},
		{0.8, "high"},
		{0.7, "medium"},
		{0.6, "medium"},
		{0.5, "low"},
		{0.4, "low"},
		{0.1, "unreliable"},
	}
	for _, c := range cases {
		if got := Level(c.score); got != c.want {
			t.Errorf("Level(%v) = %q, want %q", c.score, got, c.want)
		}
	}
}

func TestSummarizeAggregatesScores(t *testing.T) {
	s := Summarize([]float64{0.9, 0.65, 0.3})
	if s.TotalMemories != 3 {
		t.Errorf("expected 3 memories, got %d", s.TotalMemories)
	}
	if s.MaxConfidence != 0.9 {
		t.Errorf("expected max 0.9, got %v", s.MaxConfidence)
	}
	if s.MinConfidence != 0.3 {
		t.Errorf("expected min 0.3, got %v", s.MinConfidence)
	}
	if s.HighConfidenceCount != 1 {
		t.Errorf("expected 1 high-confidence score, got %d", s.HighConfidenceCount)
	}
	if s.ReliableCount != 2 {
		t.Errorf("expected 2 reliable (high+medium) scores, got %d", s.ReliableCount)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalMemories != 0 {
		t.Errorf("expected zero-value summary for an empty slice, got %+v", s)
	}
}
