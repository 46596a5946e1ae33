// Package conflict finds and resolves conflicts between a newly written
// memory and a user's existing memories: exact/partial duplicates,
// contradictions, temporal overlaps, update or merge candidates, and
// loosely related memories.
package conflict

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/jason-c-dev/harmonia-memory/internal/storage"
)

// Type is the kind of conflict detected between two memories.
type Type string

const (
	ExactDuplicate   Type = "exact_duplicate"
	PartialDuplicate Type = "partial_duplicate"
	Contradiction    Type = "contradiction"
	TemporalOverlap  Type = "temporal_overlap"
	UpdateNeeded     Type = "update_needed"
	MergeCandidate   Type = "merge_candidate"
	RelatedMemory    Type = "related_memory"
)

// Severity ranks how urgently a conflict needs resolving.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Conflict describes one detected relationship between a candidate
// memory and an existing one.
type Conflict struct {
	Type             Type
	Severity         Severity
	NewMemory        *storage.Memory
	ExistingMemory   *storage.Memory
	SimilarityScore  float64
	Confidence       float64
	Reason           string
	SuggestedAction  string
}

const (
	exactDuplicateThreshold   = 0.95
	partialDuplicateThreshold = 0.6
	relatedMemoryThreshold    = 0.4
	temporalOverlapHours      = 2.0
)

var entityPatterns = map[string]*regexp.Regexp{
	"person":       regexp.MustCompile(`(?i)\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})\s+(?:works?|is|has|lives?|goes?)\b`),
	"location":     regexp.MustCompile(`(?i)\b(?:in|at|from|to)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})\b`),
	"organization": regexp.MustCompile(`(?i)\b(?:works?\s+at|employed\s+by|company|corporation)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})\b`),
	"date":         regexp.MustCompile(`(?i)\b(\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|\d{4}[-/]\d{1,2}[-/]\d{1,2}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2}(?:,\s*\d{4})?)\b`),
	"time":         regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}(?:\s*[ap]m)?|\d{1,2}\s*[ap]m)\b`),
}

var simpleContradictions = [][2]string{
	{"married", "single"},
	{"single", "married"},
	{"employed", "unemployed"},
	{"unemployed", "employed"},
	{"likes coffee", "doesn't like coffee"},
	{"loves coffee", "hates coffee"},
}

var updateIndicators = []string{
	"now works at", "moved to", "recently", "currently",
	"updated", "changed", "new", "latest",
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)

	prefRe    = regexp.MustCompile(`(?i)\b(?:like|love|enjoy)s?\s+([a-z]+)`)
	negPrefRe = regexp.MustCompile(`(?i)\b(?:don't|doesn't|never)\s+(?:like|love|enjoy)\s+([a-z]+)`)
	hateRe    = regexp.MustCompile(`(?i)\b(?:hate|dislike)s?\s+([a-z]+)`)
	workRe    = regexp.MustCompile(`(?i)\bworks?\s+at\s+([a-z\s]+)`)
	livesRe   = regexp.MustCompile(`(?i)\blives?\s+in\s+([a-z\s]+)`)
	movedRe   = regexp.MustCompile(`(?i)\bmoved\s+(?:from|away)`)
)

// Detector finds conflicts between a candidate memory and a set of
// existing memories from the same user.
type Detector struct{}

// NewDetector returns a detector with the default thresholds.
func NewDetector() *Detector { return &Detector{} }

// Detect compares newMemory against every active existing memory and
// returns the conflicts found, ordered by severity (highest first) then
// similarity (highest first).
func (d *Detector) Detect(newMemory *storage.Memory, existing []*storage.Memory) []Conflict {
	var conflicts []Conflict

	for _, old := range existing {
		if old == nil || !old.IsActive {
			continue
		}
		similarity := d.Similarity(newMemory.Content, old.Content)
		if c := d.classify(newMemory, old, similarity); c != nil {
			conflicts = append(conflicts, *c)
		}
	}

	sortBySeverityThenSimilarity(conflicts)
	return conflicts
}

// sortBySeverityThenSimilarity orders conflicts highest severity first,
// breaking ties by similarity score descending.
func sortBySeverityThenSimilarity(conflicts []Conflict) {
	sort.Slice(conflicts, func(i, j int) bool {
		a, b := conflicts[i], conflicts[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		return a.SimilarityScore > b.SimilarityScore
	})
}

// Similarity blends a sequence-matcher ratio over normalized text with
// entity-overlap similarity: 0.7*sequence + 0.3*entity.
func (d *Detector) Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	normA := normalize(a)
	normB := normalize(b)
	if normA == normB {
		return 1.0
	}

	sm := difflib.NewMatcher(splitChars(normA), splitChars(normB))
	base := sm.Ratio()
	entitySim := entitySimilarity(a, b)

	final := base*0.7 + entitySim*0.3
	if final > 1.0 {
		final = 1.0
	}
	return final
}

func splitChars(s string) []string {
	runes := []rune(s)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}

func normalize(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	normalized = whitespaceRe.ReplaceAllString(normalized, " ")
	normalized = nonWordRe.ReplaceAllString(normalized, "")
	return normalized
}

func entitySimilarity(a, b string) float64 {
	ea := extractEntities(a)
	eb := extractEntities(b)
	if len(ea) == 0 && len(eb) == 0 {
		return 0
	}

	var total float64
	var types int
	for entityType := range entityPatterns {
		setA := ea[entityType]
		setB := eb[entityType]
		if len(setA) == 0 && len(setB) == 0 {
			continue
		}
		types++
		if len(setA) == 0 || len(setB) == 0 {
			continue
		}
		total += jaccard(setA, setB)
	}
	if types == 0 {
		return 0
	}
	return total / float64(types)
}

func extractEntities(content string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{})
	for entityType, re := range entityPatterns {
		matches := re.FindAllStringSubmatch(content, -1)
		if len(matches) == 0 {
			continue
		}
		set := make(map[string]struct{}, len(matches))
		for _, m := range matches {
			v := strings.TrimSpace(m[1])
			if v != "" {
				set[strings.ToLower(v)] = struct{}{}
			}
		}
		if len(set) > 0 {
			out[entityType] = set
		}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func (d *Detector) classify(newMem, existing *storage.Memory, similarity float64) *Conflict {
	switch {
	case similarity >= exactDuplicateThreshold:
		return &Conflict{
			Type: ExactDuplicate, Severity: SeverityLow,
			NewMemory: newMem, ExistingMemory: existing, SimilarityScore: similarity, Confidence: 0.95,
			Reason: "nearly identical content", SuggestedAction: "update_timestamp",
		}

	case similarity >= partialDuplicateThreshold:
		if isContradiction(newMem.Content, existing.Content) {
			return &Conflict{
				Type: Contradiction, Severity: SeverityHigh,
				NewMemory: newMem, ExistingMemory: existing, SimilarityScore: similarity, Confidence: 0.85,
				Reason: "contradictory information detected", SuggestedAction: "resolve_contradiction",
			}
		}
		if isUpdate(newMem, existing) {
			return &Conflict{
				Type: UpdateNeeded, Severity: SeverityMedium,
				NewMemory: newMem, ExistingMemory: existing, SimilarityScore: similarity, Confidence: 0.8,
				Reason: "content appears to be an update", SuggestedAction: "update_memory",
			}
		}
		return &Conflict{
			Type: MergeCandidate, Severity: SeverityMedium,
			NewMemory: newMem, ExistingMemory: existing, SimilarityScore: similarity, Confidence: 0.75,
			Reason: "similar content that could be merged", SuggestedAction: "merge_memories",
		}

	case hasTemporalOverlap(newMem, existing):
		return &Conflict{
			Type: TemporalOverlap, Severity: SeverityMedium,
			NewMemory: newMem, ExistingMemory: existing, SimilarityScore: similarity, Confidence: 0.7,
			Reason: "temporal overlap detected", SuggestedAction: "check_temporal_conflict",
		}

	case similarity >= relatedMemoryThreshold:
		return &Conflict{
			Type: RelatedMemory, Severity: SeverityLow,
			NewMemory: newMem, ExistingMemory: existing, SimilarityScore: similarity, Confidence: 0.6,
			Reason: "related content detected", SuggestedAction: "link_memories",
		}
	}
	return nil
}

func isContradiction(a, b string) bool {
	al, bl := strings.ToLower(a), strings.ToLower(b)

	prefA, negA, hateA := prefRe.FindStringSubmatch(al), negPrefRe.FindStringSubmatch(al), hateRe.FindStringSubmatch(al)
	prefB, negB, hateB := prefRe.FindStringSubmatch(bl), negPrefRe.FindStringSubmatch(bl), hateRe.FindStringSubmatch(bl)

	if prefA != nil && negB != nil && prefA[1] == negB[1] {
		return true
	}
	if prefB != nil && negA != nil && prefB[1] == negA[1] {
		return true
	}
	if prefA != nil && hateB != nil && prefA[1] == hateB[1] {
		return true
	}
	if prefB != nil && hateA != nil && prefB[1] == hateA[1] {
		return true
	}

	for _, pair := range simpleContradictions {
		if strings.Contains(al, pair[0]) && strings.Contains(bl, pair[1]) {
			return true
		}
		if strings.Contains(al, pair[1]) && strings.Contains(bl, pair[0]) {
			return true
		}
	}

	workA, workB := workRe.MatchString(al), workRe.MatchString(bl)
	unemployedA, unemployedB := strings.Contains(al, "unemployed"), strings.Contains(bl, "unemployed")
	if (workA && unemployedB) || (workB && unemployedA) {
		return true
	}

	livesA, livesB := livesRe.MatchString(al), livesRe.MatchString(bl)
	movedA, movedB := movedRe.MatchString(al), movedRe.MatchString(bl)
	if (livesA && movedB) || (livesB && movedA) {
		return true
	}

	return false
}

func isUpdate(newMem, existing *storage.Memory) bool {
	if newMem.CreatedAt.IsZero() || existing.CreatedAt.IsZero() {
		return false
	}
	if !newMem.CreatedAt.After(existing.CreatedAt) {
		return false
	}
	content := strings.ToLower(newMem.Content)
	for _, indicator := range updateIndicators {
		if strings.Contains(content, indicator) {
			return true
		}
	}
	return false
}

func hasTemporalOverlap(newMem, existing *storage.Memory) bool {
	if newMem.Timestamp == nil || existing.Timestamp == nil {
		return false
	}
	diff := newMem.Timestamp.Sub(*existing.Timestamp)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(temporalOverlapHours*float64(time.Hour))
}

// Summary aggregates a batch of conflicts for reporting.
type Summary struct {
	Total             int
	ByType            map[Type]int
	BySeverity        map[Severity]int
	SuggestedActions  []string
	HighestSimilarity float64
	CriticalCount     int
}

// Summarize builds aggregate counts over a conflict batch.
func Summarize(conflicts []Conflict) Summary {
	s := Summary{ByType: make(map[Type]int), BySeverity: make(map[Severity]int)}
	if len(conflicts) == 0 {
		return s
	}

	seenActions := make(map[string]struct{})
	for _, c := range conflicts {
		s.Total++
		s.ByType[c.Type]++
		s.BySeverity[c.Severity]++
		if _, ok := seenActions[c.SuggestedAction]; !ok {
			seenActions[c.SuggestedAction] = struct{}{}
			s.SuggestedActions = append(s.SuggestedActions, c.SuggestedAction)
		}
		if c.SimilarityScore > s.HighestSimilarity {
			s.HighestSimilarity = c.SimilarityScore
		}
		if c.Severity == SeverityCritical {
			s.CriticalCount++
		}
	}
	return s
}
