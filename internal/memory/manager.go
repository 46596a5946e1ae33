package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jason-c-dev/harmonia-memory/internal/apperr"
	"github.com/jason-c-dev/harmonia-memory/internal/conflict"
	"github.com/jason-c-dev/harmonia-memory/internal/extraction"
	"github.com/jason-c-dev/harmonia-memory/internal/logging"
	"github.com/jason-c-dev/harmonia-memory/internal/memtype"
	"github.com/jason-c-dev/harmonia-memory/internal/router"
	"github.com/jason-c-dev/harmonia-memory/internal/storage"
)

var log = logging.GetLogger("memory")

const maxContentLength = 10000

// ftsUnsafe strips characters that confuse SQLite's FTS5 query syntax.
var ftsUnsafe = strings.NewReplacer("'", "", "(", "", ")", "", "^", "")

// SanitizeFTSQuery strips FTS-unsafe characters from a free-form string,
// trims it, and caps it at maxLen runes (0 means unlimited).
func SanitizeFTSQuery(s string, maxLen int) string {
	s = ftsUnsafe.Replace(s)
	s = strings.TrimSpace(s)
	if maxLen > 0 {
		if r := []rune(s); len(r) > maxLen {
			s = string(r[:maxLen])
		}
	}
	return s
}

// Outcome is the final disposition of a write.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeUpdated          Outcome = "updated"
	OutcomeMerged           Outcome = "merged"
	OutcomeReplaced         Outcome = "replaced"
	OutcomeConflictDetected Outcome = "conflict_detected"
	OutcomeError            Outcome = "error"
)

// StoreRequest describes one candidate memory to write.
type StoreRequest struct {
	UserID          string
	ID              string
	Content         string
	OriginalMessage string
	Category        memtype.Type
	ConfidenceScore float64
	Timestamp       *time.Time
	SessionID       string
	Metadata        map[string]any
}

// WriteResult is the outcome of one Store call.
type WriteResult struct {
	Outcome     Outcome
	Memory      *storage.Memory
	Conflicts   []conflict.Conflict
	Resolutions []conflict.Resolution
	Error       string
}

// Manager is the single entry point for writes: it validates a
// candidate, opens (lazily creating) the user's storage, finds and
// resolves conflicts against existing memories, and persists the
// result.
type Manager struct {
	Router                  *router.Router
	Pipeline                *extraction.Pipeline
	EnableConflictDetection bool
	DetectionFanout         int

	detector *conflict.Detector

	mu        sync.Mutex
	resolvers map[string]*conflict.Resolver
}

// NewManager builds a manager over router, optionally running the
// extraction pipeline for ProcessAndStore.
func NewManager(rtr *router.Router, pipeline *extraction.Pipeline) *Manager {
	return &Manager{
		Router:                  rtr,
		Pipeline:                pipeline,
		EnableConflictDetection: true,
		DetectionFanout:         20,
		detector:                conflict.NewDetector(),
		resolvers:               make(map[string]*conflict.Resolver),
	}
}

func (m *Manager) resolverFor(userID string, eng *storage.Engine) *conflict.Resolver {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.resolvers[userID]; ok {
		return r
	}
	r := conflict.NewResolver(eng)
	m.resolvers[userID] = r
	return r
}

func validateCandidate(req StoreRequest) error {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return apperr.New(apperr.Validation, "content must not be empty")
	}
	if len(content) > maxContentLength {
		return apperr.New(apperr.Validation, "content exceeds maximum length")
	}
	if !memtype.Valid(req.Category) {
		return apperr.New(apperr.Validation, "category is not a recognized memory type: "+string(req.Category))
	}
	if req.ConfidenceScore < 0 || req.ConfidenceScore > 1 {
		return apperr.New(apperr.Validation, "confidence_score must be between 0 and 1")
	}
	return nil
}

// Store runs the full seven-step write sequence for one candidate
// memory: validate, ensure storage, duplicate precheck, detect and
// resolve conflicts, apply side effects, insert, and report the final
// outcome tag.
func (m *Manager) Store(ctx context.Context, req StoreRequest) (*WriteResult, error) {
	if err := validateCandidate(req); err != nil {
		return &WriteResult{Outcome: OutcomeError, Error: err.Error()}, err
	}

	eng, err := m.Router.Get(req.UserID)
	if err != nil {
		return &WriteResult{Outcome: OutcomeError, Error: err.Error()}, err
	}
	defer m.Router.Release(req.UserID)

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	} else if existing, err := eng.GetMemory(ctx, id); err != nil {
		return &WriteResult{Outcome: OutcomeError, Error: err.Error()}, err
	} else if existing != nil {
		dupErr := apperr.New(apperr.Duplicate, "memory id already exists: "+id)
		return &WriteResult{Outcome: OutcomeError, Error: dupErr.Error()}, dupErr
	}

	now := time.Now()
	candidate := &storage.Memory{
		ID:              id,
		Content:         strings.TrimSpace(req.Content),
		OriginalMessage: req.OriginalMessage,
		Category:        string(req.Category),
		ConfidenceScore: req.ConfidenceScore,
		Timestamp:       req.Timestamp,
		CreatedAt:       now,
		UpdatedAt:       now,
		Metadata:        req.Metadata,
		SessionID:       req.SessionID,
		IsActive:        true,
	}

	var conflicts []conflict.Conflict
	var resolutions []conflict.Resolution

	if m.EnableConflictDetection {
		seed := SanitizeFTSQuery(candidate.Content, 100)
		if seed != "" {
			results, err := eng.SearchMemories(ctx, seed, storage.Filters{ActiveOnly: true}, storage.Page{Limit: m.fanout()})
			if err != nil {
				log.Warn("similarity search for conflict detection failed", "user_id", req.UserID, "error", err)
			} else {
				existing := make([]*storage.Memory, 0, len(results))
				for _, r := range results {
					existing = append(existing, r.Memory)
				}
				conflicts = m.detector.Detect(candidate, existing)
			}
		}

		if len(conflicts) > 0 {
			resolver := m.resolverFor(req.UserID, eng)
			resolutions, err = resolver.ResolveAll(ctx, req.UserID, conflicts, conflict.DefaultUserPreferences())
			if err != nil {
				return &WriteResult{Outcome: OutcomeError, Conflicts: conflicts, Error: err.Error()}, err
			}
		}
	}

	outcome, primary, skipInsert := dominantOutcome(resolutions)
	if skipInsert {
		return &WriteResult{Outcome: outcome, Memory: primary, Conflicts: conflicts, Resolutions: resolutions}, nil
	}

	if err := eng.CreateMemory(ctx, candidate); err != nil {
		return &WriteResult{Outcome: OutcomeError, Conflicts: conflicts, Resolutions: resolutions, Error: err.Error()}, err
	}

	if outcome == "" {
		outcome = OutcomeCreated
	}
	return &WriteResult{Outcome: outcome, Memory: candidate, Conflicts: conflicts, Resolutions: resolutions}, nil
}

func (m *Manager) fanout() int {
	if m.DetectionFanout > 0 {
		return m.DetectionFanout
	}
	return 20
}

// dominantOutcome inspects resolutions (already applied against
// storage by the resolver) and decides whether the new candidate still
// needs to be inserted, and if not, which existing memory now
// represents it.
func dominantOutcome(resolutions []conflict.Resolution) (outcome Outcome, primary *storage.Memory, skipInsert bool) {
	for _, r := range resolutions {
		switch r.Action {
		case conflict.ActionUpdated:
			return OutcomeUpdated, r.PrimaryMemory, true
		case conflict.ActionMerged:
			return OutcomeMerged, r.PrimaryMemory, true
		case conflict.ActionNoAction:
			return OutcomeConflictDetected, nil, true
		}
	}
	for _, r := range resolutions {
		if r.Action == conflict.ActionReplaced {
			outcome = OutcomeReplaced
		}
	}
	return outcome, nil, false
}

// ProcessAndStoreResult summarizes a full ingestion run.
type ProcessAndStoreResult struct {
	Extraction *extraction.Result
	Writes     []WriteResult
}

// ProcessAndStore is the full ingestion entry point: run the extraction
// pipeline over message, then store each surviving candidate. extra is
// merged into every candidate's metadata (e.g. request-supplied tags);
// it may be nil.
func (m *Manager) ProcessAndStore(ctx context.Context, userID, message, sessionID string, extra map[string]any) (*ProcessAndStoreResult, error) {
	result, err := m.Pipeline.Run(ctx, extraction.Request{
		UserID:    userID,
		SessionID: sessionID,
		Message:   message,
	})
	if err != nil {
		return nil, err
	}

	out := &ProcessAndStoreResult{Extraction: result}
	if result.Skipped {
		return out, nil
	}

	for _, cand := range result.Memories {
		metadata := map[string]any{"entities": cand.Entities, "temporal_info": cand.TemporalInfo}
		for k, v := range extra {
			metadata[k] = v
		}
		wr, err := m.Store(ctx, StoreRequest{
			UserID:          userID,
			Content:         cand.Content,
			OriginalMessage: message,
			Category:        cand.Type,
			ConfidenceScore: cand.Factors.FinalScore,
			SessionID:       sessionID,
			Metadata:        metadata,
		})
		if err != nil {
			log.Warn("failed to store extracted candidate", "user_id", userID, "error", err)
			out.Writes = append(out.Writes, WriteResult{Outcome: OutcomeError, Error: err.Error()})
			continue
		}
		out.Writes = append(out.Writes, *wr)
	}
	return out, nil
}
