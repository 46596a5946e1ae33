// Package extraction orchestrates a single end-to-end memory extraction:
// preprocess, extract entities, render a prompt, call the LLM, parse and
// score the response, then filter and rank the surviving candidates.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jason-c-dev/harmonia-memory/internal/apperr"
	"github.com/jason-c-dev/harmonia-memory/internal/confidence"
	"github.com/jason-c-dev/harmonia-memory/internal/entity"
	"github.com/jason-c-dev/harmonia-memory/internal/llm"
	"github.com/jason-c-dev/harmonia-memory/internal/memtype"
	"github.com/jason-c-dev/harmonia-memory/internal/preprocess"
	"github.com/jason-c-dev/harmonia-memory/internal/prompt"
)

// PreviousMemory is prior context fed back into the extraction prompt.
type PreviousMemory struct {
	Content string `json:"content"`
	Type    string `json:"memory_type"`
}

// Request describes one message to extract memories from.
type Request struct {
	UserID              string
	SessionID            string
	Message              string
	PreviousMemories      []PreviousMemory
	UserTimezone         string
	MaxMemories          int
	ConfidenceThreshold  float64
	UserMessageCount     int
}

// Candidate is one surviving memory candidate with its full scoring
// breakdown.
type Candidate struct {
	Content       string
	Type          memtype.Type
	Entities      []string
	TemporalInfo  string
	Context       string
	Relationships []string
	Factors       confidence.Factors
}

// Result is the full outcome of an extraction run.
type Result struct {
	Memories             []Candidate
	ExtractionConfidence float64
	Reasoning            string
	Skipped              bool
	SkipReason           string
	ModelUsed            string
	Timings              map[string]time.Duration
	CandidateCount       int
	FilteredCount        int
}

// Pipeline wires the prompt registry and LLM client together.
type Pipeline struct {
	Prompts *prompt.Registry
	LLM     *llm.Client
}

// New builds a pipeline with default templates.
func New(llmClient *llm.Client) *Pipeline {
	return &Pipeline{Prompts: prompt.NewDefaultRegistry(), LLM: llmClient}
}

// Run executes the full nine-step extraction sequence for one message.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	timings := make(map[string]time.Duration)

	t0 := time.Now()
	pre := preprocess.Preprocess(req.Message)
	timings["preprocess"] = time.Since(t0)

	if !preprocess.ShouldExtract(pre) {
		return &Result{Skipped: true, SkipReason: "message too short, too punctuation-heavy, or too simple", Timings: timings}, nil
	}

	t1 := time.Now()
	entities := entity.Extract(pre.CleanedText, nil)
	relationships := entity.ExtractRelationships(pre.CleanedText, entities)
	timings["entity_extraction"] = time.Since(t1)

	hints := preprocess.ExtractionHints(pre)

	renderCtx := buildRenderContext(req, hints)

	systemTpl, ok := p.Prompts.Active("system")
	if !ok {
		return nil, apperr.New(apperr.ExtractionParseError, "no active system prompt template")
	}
	extractionTpl, ok := p.Prompts.Active("extraction")
	if !ok {
		return nil, apperr.New(apperr.ExtractionParseError, "no active extraction prompt template")
	}
	systemPrompt := systemTpl.Render(renderCtx)
	userPrompt := extractionTpl.Render(renderCtx)

	t2 := time.Now()
	raw, err := p.LLM.Complete(ctx, systemPrompt, userPrompt)
	timings["llm_call"] = time.Since(t2)
	if err != nil {
		return nil, err
	}

	t3 := time.Now()
	parsed, err := parseResponse(raw)
	timings["parse"] = time.Since(t3)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExtractionParseError, "failed to parse extraction response", err)
	}

	relLabels := relationshipLabels(relationships)

	t4 := time.Now()
	scored := make([]Candidate, 0, len(parsed.Memories))
	for _, m := range parsed.Memories {
		mt := memtype.Type(strings.ToLower(m.MemoryType))
		if !memtype.Valid(mt) {
			continue
		}
		rels := mergeRelationships(m.Relationships, relLabels)
		cand := confidence.Candidate{
			Content:       m.Content,
			Type:          mt,
			LLMConfidence: m.Confidence,
			Entities:      m.Entities,
			Relationships: rels,
			Context:       m.Context,
			TemporalInfo:  m.TemporalInfo,
		}
		cctx := confidence.Context{
			OriginalMessage:   req.Message,
			ExtractedEntities: entities,
			Preprocessed:      &pre,
			UserMessageCount:  req.UserMessageCount,
		}
		factors := confidence.Score(cand, cctx)

		if factors.FinalScore < memtype.Threshold(mt) {
			continue
		}

		scored = append(scored, Candidate{
			Content:       m.Content,
			Type:          mt,
			Entities:      m.Entities,
			TemporalInfo:  m.TemporalInfo,
			Context:       m.Context,
			Relationships: rels,
			Factors:       factors,
		})
	}
	timings["score_and_filter"] = time.Since(t4)

	sort.Slice(scored, func(i, j int) bool { return scored[i].Factors.FinalScore > scored[j].Factors.FinalScore })

	maxMemories := req.MaxMemories
	if maxMemories <= 0 {
		maxMemories = 10
	}
	filteredCount := len(scored)
	if len(scored) > maxMemories {
		scored = scored[:maxMemories]
	}

	return &Result{
		Memories:             scored,
		ExtractionConfidence: parsed.ExtractionConfidence,
		Reasoning:            parsed.Reasoning,
		ModelUsed:            p.LLM.ChatModel(),
		Timings:              timings,
		CandidateCount:       len(parsed.Memories),
		FilteredCount:        filteredCount,
	}, nil
}

// relationshipLabels turns the entity sweep's structured relationships
// into the flat string form Candidate.Relationships already uses.
func relationshipLabels(rels []entity.Relationship) []string {
	labels := make([]string, 0, len(rels))
	for _, r := range rels {
		labels = append(labels, r.Type+": "+strings.Join(r.Entities, ", "))
	}
	return labels
}

// mergeRelationships combines what the LLM reported with what the
// regex sweep found, deduplicating exact repeats.
func mergeRelationships(llmRels, swept []string) []string {
	if len(swept) == 0 {
		return llmRels
	}
	seen := make(map[string]struct{}, len(llmRels)+len(swept))
	merged := make([]string, 0, len(llmRels)+len(swept))
	for _, r := range llmRels {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		merged = append(merged, r)
	}
	for _, r := range swept {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		merged = append(merged, r)
	}
	return merged
}

func buildRenderContext(req Request, hints preprocess.Hints) map[string]any {
	types := make([]string, len(memtype.All))
	for i, t := range memtype.All {
		types[i] = string(t)
	}

	mode := hints.ExtractionMode
	if mode == "" {
		mode = "moderate"
	}

	timezone := req.UserTimezone
	if timezone == "" {
		timezone = "UTC"
	}
	threshold := req.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.70
	}
	maxMemories := req.MaxMemories
	if maxMemories <= 0 {
		maxMemories = 10
	}

	var prevBlock string
	if len(req.PreviousMemories) > 0 {
		b, _ := json.MarshalIndent(req.PreviousMemories, "", "  ")
		prevBlock = string(b)
	}

	return map[string]any{
		"memory_types_list":    strings.Join(types, ", "),
		"extraction_mode":      mode,
		"is_strict_mode":       mode == "strict",
		"is_moderate_mode":     mode == "moderate",
		"is_permissive_mode":   mode == "permissive",
		"message_text":         req.Message,
		"has_previous_memories": len(req.PreviousMemories) > 0,
		"previous_memories":    prevBlock,
		"max_memories":         maxMemories,
		"confidence_threshold": threshold,
		"user_timezone":        timezone,
		"session_id":           req.SessionID,
	}
}

type rawMemory struct {
	Content      string   `json:"content"`
	MemoryType   string   `json:"memory_type"`
	Confidence   float64  `json:"confidence"`
	Entities     []string `json:"entities"`
	TemporalInfo string   `json:"temporal_info"`
	Context      string   `json:"context"`
	Relationships []string `json:"relationships"`
}

type rawResponse struct {
	Memories             []rawMemory `json:"memories"`
	ExtractionConfidence float64     `json:"extraction_confidence"`
	Reasoning            string      `json:"reasoning"`
}

func parseResponse(raw string) (*rawResponse, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var parsed rawResponse
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	for i, m := range parsed.Memories {
		if m.Content == "" {
			return nil, fmt.Errorf("memory %d missing content", i)
		}
		if !memtype.Valid(memtype.Type(strings.ToLower(m.MemoryType))) {
			return nil, fmt.Errorf("memory %d has unknown memory_type %q", i, m.MemoryType)
		}
		if m.Confidence < 0 || m.Confidence > 1 {
			return nil, fmt.Errorf("memory %d confidence %v out of range", i, m.Confidence)
		}
	}
	return &parsed, nil
}
