// Package confidence scores extracted memory candidates by combining the
// LLM's own confidence with several content, entity, context, temporal,
// and source-reliability factors, blended with a per-type baseline.
package confidence

import (
	"regexp"
	"strings"

	"github.com/jason-c-dev/harmonia-memory/internal/entity"
	"github.com/jason-c-dev/harmonia-memory/internal/memtype"
	"github.com/jason-c-dev/harmonia-memory/internal/preprocess"
)

// Candidate is the minimal view of an extracted memory the scorer needs.
type Candidate struct {
	Content       string
	Type          memtype.Type
	LLMConfidence float64
	Entities      []string
	Relationships []string
	Context       string
	TemporalInfo  string
}

// Context carries the scoring-time signals outside the candidate itself.
type Context struct {
	OriginalMessage   string
	ExtractedEntities []entity.Entity
	Preprocessed      *preprocess.Result
	UserMessageCount  int
}

// Factors is the full breakdown behind a final score.
type Factors struct {
	LLMConfidence        float64
	ContentQuality       float64
	EntitySupport        float64
	ContextRelevance     float64
	TemporalConsistency  float64
	SourceReliability    float64
	ComplexityBonus      float64
	LengthPenalty        float64
	FinalScore           float64
}

var weights = struct {
	llm, content, entitySupport, contextRel, temporal, source float64
}{0.30, 0.20, 0.15, 0.15, 0.10, 0.10}

var positiveIndicatorWords = uniqueWords(
	"specific names", "exact numbers", "precise dates", "detailed descriptions",
	"explicit statements", "clear relationships", "concrete actions")

var negativeIndicatorWords = uniqueWords(
	"vague terms", "maybe", "perhaps", "might", "could be", "not sure",
	"unclear", "ambiguous", "contradictory")

func uniqueWords(phrases ...string) [][]string {
	out := make([][]string, len(phrases))
	for i, p := range phrases {
		out[i] = strings.Fields(p)
	}
	return out
}

// Score computes the full factor breakdown and final score for one
// candidate memory.
func Score(c Candidate, ctx Context) Factors {
	f := Factors{
		LLMConfidence:       clamp01(c.LLMConfidence),
		ContentQuality:      scoreContentQuality(c),
		EntitySupport:       scoreEntitySupport(c, ctx),
		ContextRelevance:    scoreContextRelevance(c, ctx),
		TemporalConsistency: scoreTemporalConsistency(c),
		SourceReliability:   scoreSourceReliability(ctx),
		ComplexityBonus:     complexityBonus(c),
		LengthPenalty:       lengthPenalty(c),
	}

	weighted := f.LLMConfidence*weights.llm +
		f.ContentQuality*weights.content +
		f.EntitySupport*weights.entitySupport +
		f.ContextRelevance*weights.contextRel +
		f.TemporalConsistency*weights.temporal +
		f.SourceReliability*weights.source

	final := weighted*0.8 + memtype.Baseline(c.Type)*0.2
	final += f.ComplexityBonus
	final -= f.LengthPenalty
	f.FinalScore = clamp01(final)
	return f
}

func scoreContentQuality(c Candidate) float64 {
	content := strings.ToLower(c.Content)
	score := 0.5

	positive := 0
	for _, words := range positiveIndicatorWords {
		if anyWordIn(content, words) {
			positive++
		}
	}
	negative := 0
	for _, words := range negativeIndicatorWords {
		if anyWordIn(content, words) {
			negative++
		}
	}
	score += float64(positive) * 0.1
	score -= float64(negative) * 0.15

	if len(c.Entities) > 0 {
		score += 0.1
	}
	if c.TemporalInfo != "" {
		score += 0.1
	}

	wordCount := len(strings.Fields(c.Content))
	switch {
	case wordCount >= 5 && wordCount <= 20:
		score += 0.1
	case wordCount < 3:
		score -= 0.2
	case wordCount > 30:
		score -= 0.1
	}

	return clamp01(score)
}

func anyWordIn(content string, words []string) bool {
	for _, w := range words {
		if strings.Contains(content, w) {
			return true
		}
	}
	return false
}

func scoreEntitySupport(c Candidate, ctx Context) float64 {
	if len(c.Entities) == 0 {
		return 0.3
	}
	score := 0.4 + float64(len(c.Entities))*0.1
	if score > 0.8 {
		score = 0.8
	}

	if len(ctx.ExtractedEntities) > 0 {
		matches := 0
		for _, me := range c.Entities {
			meLower := strings.ToLower(me)
			for _, ee := range ctx.ExtractedEntities {
				if strings.Contains(strings.ToLower(ee.Text), meLower) {
					matches++
					break
				}
			}
		}
		if matches > 0 {
			score += float64(matches) * 0.1
		}
	}
	return clamp01(score)
}

func scoreContextRelevance(c Candidate, ctx Context) float64 {
	original := strings.ToLower(ctx.OriginalMessage)
	if original == "" {
		return 0.5
	}
	memoryContent := strings.ToLower(c.Content)

	messageWords := wordSet(original)
	memoryWords := wordSet(memoryContent)
	if len(messageWords) == 0 || len(memoryWords) == 0 {
		return 0.2
	}

	overlap := 0
	union := make(map[string]struct{}, len(messageWords)+len(memoryWords))
	for w := range messageWords {
		union[w] = struct{}{}
		if _, ok := memoryWords[w]; ok {
			overlap++
		}
	}
	for w := range memoryWords {
		union[w] = struct{}{}
	}

	overlapRatio := float64(overlap) / float64(len(union))
	score := overlapRatio * 2
	if score > 0.9 {
		score = 0.9
	}

	if strings.Contains(original, strings.TrimSpace(memoryContent)) {
		score += 0.1
	}

	return clamp01(score)
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	m := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		m[f] = struct{}{}
	}
	return m
}

var specificMarkers = []string{"yesterday", "today", "tomorrow", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

var temporalDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}`),
	regexp.MustCompile(`\d{1,2}:\d{2}`),
	regexp.MustCompile(`\b\d+\s+(?:days?|weeks?|months?|years?)\b`),
}

func scoreTemporalConsistency(c Candidate) float64 {
	if c.TemporalInfo == "" {
		return 0.7
	}
	info := strings.ToLower(c.TemporalInfo)
	score := 0.5

	for _, marker := range specificMarkers {
		if strings.Contains(info, marker) {
			score += 0.3
			break
		}
	}
	for _, re := range temporalDatePatterns {
		if re.MatchString(info) {
			score += 0.2
			break
		}
	}
	return clamp01(score)
}

func scoreSourceReliability(ctx Context) float64 {
	score := 0.7

	if ctx.Preprocessed != nil {
		if ctx.Preprocessed.ComplexityScore > 0.6 {
			score += 0.1
		}
		if ctx.Preprocessed.ContainsPII {
			score -= 0.1
		}
		if ctx.Preprocessed.WordCount >= 5 && ctx.Preprocessed.WordCount <= 50 {
			score += 0.1
		}
	}

	if ctx.UserMessageCount > 10 {
		score += 0.1
	}

	if score < 0.2 {
		score = 0.2
	}
	return clamp01(score)
}

func complexityBonus(c Candidate) float64 {
	bonus := 0.0
	if len(c.Entities) > 1 {
		bonus += 0.05
	}
	if len(c.Relationships) > 0 {
		bonus += 0.05
	}
	if len(c.Context) > 10 {
		bonus += 0.05
	}
	if c.TemporalInfo != "" {
		bonus += 0.05
	}
	if bonus > 0.2 {
		bonus = 0.2
	}
	return bonus
}

func lengthPenalty(c Candidate) float64 {
	wordCount := len(strings.Fields(c.Content))
	contentLen := len([]rune(c.Content))
	penalty := 0.0

	switch {
	case wordCount < 3:
		penalty += 0.2
	case wordCount < 5:
		penalty += 0.1
	}
	switch {
	case wordCount > 60:
		penalty += 0.2
	case wordCount > 40:
		penalty += 0.1
	}

	switch {
	case contentLen < 10:
		penalty += 0.1
	case contentLen > 300:
		penalty += 0.1
	}

	if penalty > 0.4 {
		penalty = 0.4
	}
	return penalty
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Level maps a final score to a textual confidence level.
func Level(score float64) string {
	switch {
	case score >= 0.8:
		return "high"
	case score >= 0.6:
		return "medium"
	case score >= 0.4:
		return "low"
	default:
		return "unreliable"
	}
}

// Summary aggregates scoring statistics across a batch.
type Summary struct {
	TotalMemories      int
	AvgConfidence      float64
	MaxConfidence      float64
	MinConfidence      float64
	HighConfidenceCount int
	ReliableCount       int
}

// Summarize computes aggregate statistics over a set of final scores.
func Summarize(scores []float64) Summary {
	if len(scores) == 0 {
		return Summary{}
	}
	sum, max, min := 0.0, scores[0], scores[0]
	high, medium, low := 0, 0, 0
	for _, s := range scores {
		sum += s
		if s > max {
			max = s
		}
		if s < min {
			min = s
		}
		switch {
		case s >= 0.8:
			high++
		case s >= 0.6:
			medium++
		case s >= 0.4:
			low++
		}
	}
	_ = low
	return Summary{
		TotalMemories:       len(scores),
		AvgConfidence:       sum / float64(len(scores)),
		MaxConfidence:       max,
		MinConfidence:       min,
		HighConfidenceCount: high,
		ReliableCount:       high + medium,
	}
}
