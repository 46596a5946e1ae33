// Package preprocess cleans a raw message and computes the signals the
// extraction pipeline uses to decide whether, and how, to extract
// memories from it. It is a pure function of its input: no state is
// held between calls.
package preprocess

import (
	"regexp"
	"strings"
	"unicode"
)

// Result is the output of preprocessing a single message.
type Result struct {
	OriginalText     string
	CleanedText      string
	WordCount        int
	CharCount        int
	Language         string
	EntitiesDetected []string
	ContainsPII      bool
	Sentiment        Sentiment
	TemporalMarkers  []string
	ComplexityScore  float64
}

// Sentiment holds the positive/negative/neutral ratios of a message,
// drawn from a fixed lexicon rather than a model.
type Sentiment struct {
	Positive float64
	Negative float64
	Neutral  float64
}

// Hints are the extraction-pipeline-facing suggestions derived from a
// preprocessed message.
type Hints struct {
	SuggestedMemoryTypes []string
	ExtractionMode       string // strict | moderate | permissive
	FocusAreas           []string
	ConfidenceAdjustment float64
}

var piiPatterns = map[string]*regexp.Regexp{
	"email":       regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
	"phone":       regexp.MustCompile(`(?i)\b(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`),
	"ssn":         regexp.MustCompile(`\b\d{3}-?\d{2}-?\d{4}\b`),
	"credit_card": regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
}

var temporalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:yesterday|today|tomorrow|tonight)\b`),
	regexp.MustCompile(`(?i)\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`),
	regexp.MustCompile(`(?i)\b(?:january|february|march|april|may|june|july|august|september|october|november|december)\b`),
	regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}:\d{2}(?:\s?[ap]m)?\b`),
	regexp.MustCompile(`(?i)\b(?:last|next|this)\s+(?:week|month|year|weekend)\b`),
	regexp.MustCompile(`(?i)\b\d+\s+(?:days?|weeks?|months?|years?)\s+(?:ago|from now)\b`),
}

var entityPatterns = map[string]*regexp.Regexp{
	"person":       regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`),
	"organization": regexp.MustCompile(`\b[A-Z][a-zA-Z]*(?:\s+[A-Z][a-zA-Z]*)*(?:\s+(?:Inc|Corp|LLC|Ltd|Co)\.?)\b`),
	"location":     regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*(?:\s+(?:Street|St|Avenue|Ave|Road|Rd|Drive|Dr|Boulevard|Blvd|City|State))\b`),
	"money":        regexp.MustCompile(`\$\d+(?:,\d{3})*(?:\.\d{2})?`),
	"percentage":   regexp.MustCompile(`\d+(?:\.\d+)?%`),
	"number":       regexp.MustCompile(`\b\d+(?:,\d{3})*(?:\.\d+)?\b`),
}

var positiveWords = wordSet("love", "like", "enjoy", "happy", "excited", "amazing", "great", "wonderful",
	"fantastic", "excellent", "awesome", "brilliant", "perfect", "beautiful")

var negativeWords = wordSet("hate", "dislike", "angry", "sad", "frustrated", "terrible", "awful",
	"horrible", "disgusting", "annoying", "boring", "stupid", "worst")

func wordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	curlyQuoteRe  = regexp.MustCompile(`[\x{201C}\x{201D}\x{2018}\x{2019}` + "`" + `]`)
	bangRunRe     = regexp.MustCompile(`!{2,}`)
	questionRunRe = regexp.MustCompile(`\?{2,}`)
	ellipsisRunRe = regexp.MustCompile(`\.{3,}`)
)

// Preprocess cleans message and computes its signal set.
func Preprocess(message string) Result {
	if strings.TrimSpace(message) == "" {
		return Result{
			OriginalText: message,
			Sentiment:    Sentiment{Neutral: 1.0},
			Language:     "unknown",
		}
	}

	cleaned := clean(message)
	words := strings.Fields(cleaned)
	wordCount := len(words)
	charCount := len([]rune(cleaned))

	entities := extractEntities(cleaned)

	return Result{
		OriginalText:     message,
		CleanedText:      cleaned,
		WordCount:        wordCount,
		CharCount:        charCount,
		Language:         detectLanguage(cleaned),
		EntitiesDetected: entities,
		ContainsPII:      detectPII(cleaned),
		Sentiment:        analyzeSentiment(cleaned),
		TemporalMarkers:  findTemporalMarkers(cleaned),
		ComplexityScore:  complexity(cleaned, wordCount, entities),
	}
}

func clean(text string) string {
	text = strings.TrimSpace(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = curlyQuoteRe.ReplaceAllString(text, `"`)
	text = bangRunRe.ReplaceAllString(text, "!")
	text = questionRunRe.ReplaceAllString(text, "?")
	text = ellipsisRunRe.ReplaceAllString(text, "...")
	return text
}

func detectLanguage(text string) string {
	if text == "" {
		return "unknown"
	}
	runes := []rune(text)
	ascii := 0
	for _, r := range runes {
		if r < 128 {
			ascii++
		}
	}
	if float64(ascii)/float64(len(runes)) > 0.9 {
		return "en"
	}
	return "other"
}

func extractEntities(text string) []string {
	var entities []string
	for _, entityType := range []string{"person", "organization", "location", "money", "percentage", "number"} {
		re := entityPatterns[entityType]
		for _, m := range re.FindAllString(text, -1) {
			entities = append(entities, entityType+":"+m)
		}
	}
	return entities
}

func detectPII(text string) bool {
	for _, re := range piiPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func analyzeSentiment(text string) Sentiment {
	words := strings.Fields(strings.ToLower(text))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}

	var pos, neg int
	for w := range seen {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	total := pos + neg
	if total == 0 {
		return Sentiment{Neutral: 1.0}
	}
	posRatio := float64(pos) / float64(total)
	negRatio := float64(neg) / float64(total)
	neutral := 1.0 - (posRatio + negRatio)
	if neutral < 0 {
		neutral = 0
	}
	return Sentiment{Positive: posRatio, Negative: negRatio, Neutral: neutral}
}

func findTemporalMarkers(text string) []string {
	seen := make(map[string]struct{})
	var markers []string
	for _, re := range temporalPatterns {
		for _, m := range re.FindAllString(text, -1) {
			lower := strings.ToLower(m)
			if _, ok := seen[lower]; ok {
				continue
			}
			seen[lower] = struct{}{}
			markers = append(markers, m)
		}
	}
	return markers
}

func complexity(text string, wordCount int, entities []string) float64 {
	if wordCount == 0 {
		return 0
	}
	words := strings.Fields(text)
	totalLen := 0
	for _, w := range words {
		totalLen += len([]rune(w))
	}
	avgWordLen := float64(totalLen) / float64(wordCount)
	entityDensity := float64(len(entities)) / float64(wordCount)

	runes := []rune(text)
	punctCount := 0
	for _, r := range runes {
		if unicode.IsPunct(r) {
			punctCount++
		}
	}
	punctDensity := 0.0
	if len(runes) > 0 {
		punctDensity = float64(punctCount) / float64(len(runes))
	}

	wordLengthScore := min1(avgWordLen / 10.0)
	entityScore := min1(entityDensity * 5.0)
	punctuationScore := min1(punctDensity * 10.0)

	score := wordLengthScore*0.3 + entityScore*0.4 + punctuationScore*0.3
	return min1(score)
}

func min1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	if v < 0 {
		return 0
	}
	return v
}

// ShouldExtract gates the extraction pipeline: too short, too punctuation
// heavy, or too simple a message is skipped.
func ShouldExtract(r Result) bool {
	if r.WordCount == 0 || r.WordCount < 3 {
		return false
	}
	if r.CharCount > 0 {
		punctCount := 0
		for _, c := range r.CleanedText {
			if unicode.IsPunct(c) {
				punctCount++
			}
		}
		if float64(punctCount)/float64(r.CharCount) > 0.5 {
			return false
		}
	}
	if r.ComplexityScore < 0.1 {
		return false
	}
	return true
}

// ExtractionHints derives suggested memory types, extraction mode, focus
// areas, and a confidence adjustment from a preprocessed message.
func ExtractionHints(r Result) Hints {
	h := Hints{ExtractionMode: "moderate"}

	if len(r.TemporalMarkers) > 0 {
		h.SuggestedMemoryTypes = append(h.SuggestedMemoryTypes, "temporal")
	}
	if r.Sentiment.Positive > 0.3 || r.Sentiment.Negative > 0.3 {
		h.SuggestedMemoryTypes = append(h.SuggestedMemoryTypes, "emotional", "preference")
	}
	for _, e := range r.EntitiesDetected {
		if strings.HasPrefix(e, "person:") {
			h.SuggestedMemoryTypes = append(h.SuggestedMemoryTypes, "relational")
			break
		}
	}
	if r.ComplexityScore > 0.7 {
		h.SuggestedMemoryTypes = append(h.SuggestedMemoryTypes, "factual", "procedural")
	}

	switch {
	case r.ComplexityScore > 0.8:
		h.ExtractionMode = "permissive"
	case r.ComplexityScore < 0.3:
		h.ExtractionMode = "strict"
	}

	if r.ContainsPII {
		h.FocusAreas = append(h.FocusAreas, "handle_pii_carefully")
	}
	if len(r.TemporalMarkers) > 0 {
		h.FocusAreas = append(h.FocusAreas, "temporal_information")
	}
	if len(r.EntitiesDetected) > 0 {
		h.FocusAreas = append(h.FocusAreas, "entity_relationships")
	}

	switch {
	case r.WordCount < 5:
		h.ConfidenceAdjustment = -0.1
	case r.ComplexityScore > 0.8:
		h.ConfidenceAdjustment = 0.1
	}

	return h
}
