package search

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jason-c-dev/harmonia-memory/internal/apperr"
	"github.com/jason-c-dev/harmonia-memory/internal/logging"
	"github.com/jason-c-dev/harmonia-memory/internal/storage"
)

var log = logging.GetLogger("search")

const (
	maxQueryLength  = 1000
	statsCacheTTL   = 5 * time.Minute
	bm25K1          = 1.2
	bm25B           = 0.75
	recencyWindow   = 30 * 24 * time.Hour
	maxRecencyBoost = 0.5
	categoryBoost   = 1.2
	snippetWindow   = 200
)

var (
	ftsUnsafeChars = regexp.MustCompile(`['()^]`)
	tokenPattern   = regexp.MustCompile(`[a-z0-9]+`)
)

// Options narrows and orders a search or list request.
type Options struct {
	Query           string
	Category        string
	SessionID       string
	StartDate       *time.Time
	EndDate         *time.Time
	MinConfidence   float64
	MaxConfidence   float64
	BoostRecent     bool
	BoostCategories []string
	SortBy          string // used by List only: created_at, updated_at, confidence_score
	SortDesc        bool
	Limit           int
	Offset          int
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.MaxConfidence == 0 {
		o.MaxConfidence = 1
	}
	return o
}

// Result is one ranked search hit.
type Result struct {
	Memory     *storage.Memory
	Score      float64
	Snippet    string
	Highlights []string
}

// Page is a paginated result set.
type Page struct {
	Results  []Result
	Total    int
	Limit    int
	Offset   int
	HasMore  bool
}

// Engine runs search and listing over one user's storage engine.
type Engine struct {
	db *storage.Engine

	mu        sync.Mutex
	stats     *corpusStats
	statsAt   time.Time
}

// NewEngine returns a search engine backed by db.
func NewEngine(db *storage.Engine) *Engine {
	return &Engine{db: db}
}

// ParseQuery validates and cleans a raw search query: trims it,
// preserves quoted phrases, strips FTS-unsafe characters, and drops any
// unmatched trailing quote. Returns an error for empty or overlong
// queries.
func ParseQuery(raw string) (string, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return "", apperr.New(apperr.Validation, "query must not be empty")
	}
	if len(q) > maxQueryLength {
		return "", apperr.New(apperr.Validation, "query exceeds maximum length")
	}

	if strings.Count(q, `"`)%2 != 0 {
		if idx := strings.LastIndex(q, `"`); idx >= 0 {
			q = q[:idx] + q[idx+1:]
		}
	}

	var out strings.Builder
	inQuote := false
	for _, r := range q {
		if r == '"' {
			inQuote = !inQuote
			out.WriteRune(r)
			continue
		}
		if !inQuote && (r == '\'' || r == '(' || r == ')' || r == '^') {
			continue
		}
		out.WriteRune(r)
	}
	cleaned := strings.TrimSpace(out.String())
	if cleaned == "" {
		return "", apperr.New(apperr.Validation, "query must not be empty")
	}
	return cleaned, nil
}

// buildFTSQuery turns a cleaned query into an FTS5 MATCH expression. A
// single token is used as-is; multiple tokens expand to
// "(t1 OR t2 OR ...) OR \"t1 t2 ...\"" so either a keyword hit or the
// whole phrase matches.
func buildFTSQuery(cleaned string) string {
	fields := strings.Fields(strings.ReplaceAll(cleaned, `"`, ""))
	if len(fields) <= 1 {
		return cleaned
	}
	orClause := strings.Join(fields, " OR ")
	phrase := strings.Join(fields, " ")
	return fmt.Sprintf(`(%s) OR "%s"`, orClause, phrase)
}

// Search runs a full-text query, re-ranks results with corpus-aware
// BM25, and returns a paginated, snippeted page.
func (e *Engine) Search(ctx context.Context, rawQuery string, opts Options) (*Page, error) {
	opts = opts.withDefaults()

	cleaned, err := ParseQuery(rawQuery)
	if err != nil {
		return nil, err
	}
	ftsQuery := buildFTSQuery(cleaned)

	filters := toStorageFilters(opts)
	filters.ActiveOnly = true

	raw, err := e.db.SearchMemories(ctx, ftsQuery, filters, storage.Page{Limit: 500})
	if err != nil {
		return nil, apperr.Wrap(apperr.DBError, "search query failed", err)
	}

	stats, err := e.corpusStats(ctx)
	if err != nil {
		return nil, err
	}

	terms := tokenPattern.FindAllString(strings.ToLower(cleaned), -1)

	results := make([]Result, 0, len(raw))
	for _, sr := range raw {
		m := sr.Memory
		if m.ConfidenceScore < opts.MinConfidence || m.ConfidenceScore > opts.MaxConfidence {
			continue
		}
		score := bm25Score(m, terms, stats)
		score *= m.ConfidenceScore
		if opts.BoostRecent && time.Since(m.CreatedAt) <= recencyWindow {
			age := time.Since(m.CreatedAt)
			factor := 1 - float64(age)/float64(recencyWindow)
			score += maxRecencyBoost * factor
		}
		if containsFold(opts.BoostCategories, m.Category) {
			score *= categoryBoost
		}
		results = append(results, Result{
			Memory:     m,
			Score:      score,
			Snippet:    snippet(m.Content, terms),
			Highlights: matchedTerms(m.Content, terms),
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	return paginate(results, opts), nil
}

// List returns memories matching filters without running FTS or BM25,
// ordered by the requested sort column.
func (e *Engine) List(ctx context.Context, opts Options) (*Page, error) {
	opts = opts.withDefaults()
	filters := toStorageFilters(opts)
	filters.ActiveOnly = true

	memories, err := e.db.ListMemories(ctx, filters, storage.Page{Limit: 10000})
	if err != nil {
		return nil, apperr.Wrap(apperr.DBError, "list query failed", err)
	}

	results := make([]Result, 0, len(memories))
	for _, m := range memories {
		if m.ConfidenceScore < opts.MinConfidence || m.ConfidenceScore > opts.MaxConfidence {
			continue
		}
		results = append(results, Result{Memory: m, Score: 0})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i].Memory, results[j].Memory
		var less bool
		switch opts.SortBy {
		case "updated_at":
			less = a.UpdatedAt.Before(b.UpdatedAt)
		case "confidence_score":
			less = a.ConfidenceScore < b.ConfidenceScore
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if opts.SortDesc {
			return !less
		}
		return less
	})

	return paginate(results, opts), nil
}

func paginate(results []Result, opts Options) *Page {
	total := len(results)
	start := opts.Offset
	if start > total {
		start = total
	}
	end := start + opts.Limit
	if end > total {
		end = total
	}
	page := results[start:end]
	return &Page{
		Results: page,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+len(page) < total,
	}
}

func toStorageFilters(opts Options) storage.Filters {
	return storage.Filters{
		Category:  opts.Category,
		SessionID: opts.SessionID,
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
	}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// corpusStats holds the aggregate document statistics BM25 needs,
// cached for up to statsCacheTTL.
type corpusStats struct {
	totalDocs int
	avgDocLen float64
	docFreq   map[string]int
	docLen    map[string]int
}

func (e *Engine) corpusStats(ctx context.Context) (*corpusStats, error) {
	e.mu.Lock()
	if e.stats != nil && time.Since(e.statsAt) < statsCacheTTL {
		s := e.stats
		e.mu.Unlock()
		return s, nil
	}
	e.mu.Unlock()

	memories, err := e.db.ListMemories(ctx, storage.Filters{ActiveOnly: true}, storage.Page{Limit: 100000})
	if err != nil {
		return nil, apperr.Wrap(apperr.DBError, "failed to compute corpus statistics", err)
	}

	stats := &corpusStats{
		docFreq: make(map[string]int),
		docLen:  make(map[string]int),
	}
	var totalLen int
	for _, m := range memories {
		terms := tokenPattern.FindAllString(strings.ToLower(m.Content), -1)
		stats.docLen[m.ID] = len(terms)
		totalLen += len(terms)
		seen := make(map[string]struct{}, len(terms))
		for _, t := range terms {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			stats.docFreq[t]++
		}
	}
	stats.totalDocs = len(memories)
	if stats.totalDocs > 0 {
		stats.avgDocLen = float64(totalLen) / float64(stats.totalDocs)
	}

	e.mu.Lock()
	e.stats = stats
	e.statsAt = time.Now()
	e.mu.Unlock()

	log.Info("refreshed corpus statistics", "docs", stats.totalDocs)
	return stats, nil
}

// bm25Score computes Okapi BM25 for a document against a term list
// using the user's corpus statistics (k1=1.2, b=0.75).
func bm25Score(m *storage.Memory, terms []string, stats *corpusStats) float64 {
	if stats.totalDocs == 0 || len(terms) == 0 {
		return 0
	}
	docLen, ok := stats.docLen[m.ID]
	if !ok {
		docLen = len(tokenPattern.FindAllString(strings.ToLower(m.Content), -1))
	}
	content := strings.ToLower(m.Content)

	var score float64
	for _, term := range terms {
		tf := strings.Count(content, term)
		if tf == 0 {
			continue
		}
		df := stats.docFreq[term]
		idf := math.Log(float64(stats.totalDocs-df)+0.5) - math.Log(float64(df)+0.5) + 1
		if idf < 0 {
			idf = 0
		}
		numerator := float64(tf) * (bm25K1 + 1)
		denominator := float64(tf) + bm25K1*(1-bm25B+bm25B*float64(docLen)/stats.avgDocLen)
		score += idf * (numerator / denominator)
	}
	return score
}

// snippet returns a ~200-character window around the first occurrence
// of any query term, ellipsized at the ends it doesn't already border.
func snippet(content string, terms []string) string {
	if len(content) <= snippetWindow {
		return content
	}
	lower := strings.ToLower(content)
	pos := -1
	for _, t := range terms {
		if i := strings.Index(lower, t); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}
	if pos < 0 {
		pos = 0
	}

	half := snippetWindow / 2
	start := pos - half
	if start < 0 {
		start = 0
	}
	end := start + snippetWindow
	if end > len(content) {
		end = len(content)
		start = end - snippetWindow
		if start < 0 {
			start = 0
		}
	}

	out := content[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(content) {
		out = out + "..."
	}
	return out
}

func matchedTerms(content string, terms []string) []string {
	lower := strings.ToLower(content)
	var out []string
	seen := make(map[string]struct{})
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		if strings.Contains(lower, t) {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// ExportFormat names the export serialization used by Export.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportCSV      ExportFormat = "csv"
	ExportMarkdown ExportFormat = "markdown"
	ExportText     ExportFormat = "text"
)

// ExportOptions governs what Export includes.
type ExportOptions struct {
	Options
	Format          ExportFormat
	IncludeMetadata bool
	UserID          string
}

// Export runs a List query and serializes the matching memories in the
// requested format, ignoring the caller's Limit and Offset. List reads at
// most 10,000 memories from storage, so a larger store is exported only
// up to that many.
func (e *Engine) Export(ctx context.Context, opts ExportOptions) (string, error) {
	listOpts := opts.Options
	listOpts.Limit = 1 << 30
	listOpts.Offset = 0
	page, err := e.List(ctx, listOpts)
	if err != nil {
		return "", err
	}

	switch opts.Format {
	case ExportCSV:
		return exportCSV(page.Results, opts), nil
	case ExportMarkdown:
		return exportMarkdown(page.Results, opts), nil
	case ExportText:
		return exportText(page.Results, opts), nil
	default:
		return exportJSON(page.Results, opts)
	}
}

type exportRecord struct {
	ID              string         `json:"id,omitempty"`
	Content         string         `json:"content"`
	Category        string         `json:"category"`
	ConfidenceScore float64        `json:"confidence_score"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	UserID          string         `json:"user_id,omitempty"`
	OriginalMessage string         `json:"original_message,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func toRecord(m *storage.Memory, opts ExportOptions) exportRecord {
	r := exportRecord{
		Content:         m.Content,
		Category:        m.Category,
		ConfidenceScore: m.ConfidenceScore,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
	if opts.IncludeMetadata {
		r.ID = m.ID
		r.UserID = opts.UserID
		r.OriginalMessage = m.OriginalMessage
		r.Metadata = m.Metadata
	}
	return r
}

func exportJSON(results []Result, opts ExportOptions) (string, error) {
	records := make([]exportRecord, len(results))
	for i, r := range results {
		records[i] = toRecord(r.Memory, opts)
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", apperr.Wrap(apperr.Validation, "failed to encode export", err)
	}
	return string(b), nil
}

func exportCSV(results []Result, opts ExportOptions) string {
	var buf strings.Builder
	w := csv.NewWriter(&buf)

	header := []string{"content", "category", "confidence_score", "created_at", "updated_at"}
	if opts.IncludeMetadata {
		header = append(header, "id", "user_id", "original_message")
	}
	w.Write(header)

	for _, r := range results {
		m := r.Memory
		row := []string{
			m.Content,
			m.Category,
			fmt.Sprintf("%.4f", m.ConfidenceScore),
			m.CreatedAt.Format(time.RFC3339),
			m.UpdatedAt.Format(time.RFC3339),
		}
		if opts.IncludeMetadata {
			row = append(row, m.ID, opts.UserID, m.OriginalMessage)
		}
		w.Write(row)
	}
	w.Flush()
	return buf.String()
}

func exportMarkdown(results []Result, opts ExportOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Memories (%d)\n\n", len(results))
	for _, r := range results {
		m := r.Memory
		fmt.Fprintf(&b, "## %s\n\n", m.Category)
		fmt.Fprintf(&b, "%s\n\n", m.Content)
		fmt.Fprintf(&b, "- confidence: %.2f\n", m.ConfidenceScore)
		fmt.Fprintf(&b, "- created: %s\n", m.CreatedAt.Format(time.RFC3339))
		if opts.IncludeMetadata {
			fmt.Fprintf(&b, "- id: %s\n", m.ID)
			if m.OriginalMessage != "" {
				fmt.Fprintf(&b, "- original message: %s\n", m.OriginalMessage)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func exportText(results []Result, opts ExportOptions) string {
	var b strings.Builder
	for _, r := range results {
		m := r.Memory
		fmt.Fprintf(&b, "[%s] %s (confidence %.2f, created %s)\n", m.Category, m.Content, m.ConfidenceScore, m.CreatedAt.Format(time.RFC3339))
		if opts.IncludeMetadata {
			fmt.Fprintf(&b, "  id: %s\n", m.ID)
		}
	}
	return b.String()
}
