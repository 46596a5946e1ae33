package conflict

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jason-c-dev/harmonia-memory/internal/logging"
	"github.com/jason-c-dev/harmonia-memory/internal/storage"
)

var resolverLog = logging.GetLogger("conflict_resolver")

// ResolutionStrategy names the approach taken to resolve a conflict.
type ResolutionStrategy string

const (
	StrategyUpdateTimestamp ResolutionStrategy = "update_timestamp"
	StrategyReplace         ResolutionStrategy = "replace"
	StrategyMerge           ResolutionStrategy = "merge"
	StrategyLink            ResolutionStrategy = "link"
	StrategyCreateNew       ResolutionStrategy = "create_new"
	StrategyUserChoose      ResolutionStrategy = "user_choose"
	StrategyKeepBoth        ResolutionStrategy = "keep_both"
	StrategyArchiveOld      ResolutionStrategy = "archive_old"
)

// ResolutionAction records what actually happened to storage as a result
// of applying a strategy.
type ResolutionAction string

const (
	ActionCreated  ResolutionAction = "created"
	ActionUpdated  ResolutionAction = "updated"
	ActionMerged   ResolutionAction = "merged"
	ActionReplaced ResolutionAction = "replaced"
	ActionLinked   ResolutionAction = "linked"
	ActionArchived ResolutionAction = "archived"
	ActionNoAction ResolutionAction = "no_action"
)

// Resolution is the outcome of resolving one conflict.
type Resolution struct {
	Action            ResolutionAction
	Strategy          ResolutionStrategy
	PrimaryMemory     *storage.Memory
	AffectedMemories  []*storage.Memory
	MergedContent     string
	Confidence        float64
	Metadata          map[string]any
	AuditInfo         *AuditEntry
}

// UserPreferences governs how ambiguous conflicts get resolved.
type UserPreferences struct {
	DefaultStrategy           ResolutionStrategy
	AutoResolveDuplicates     bool
	PreserveOriginal          bool
	ConfidenceThreshold       float64
	MaxMergeAttempts          int
	PreferredResolutionByType map[Type]ResolutionStrategy
}

// DefaultUserPreferences returns the baseline preference set: merge by
// default, with a built-in per-conflict-type strategy table.
func DefaultUserPreferences() *UserPreferences {
	return &UserPreferences{
		DefaultStrategy:       StrategyMerge,
		AutoResolveDuplicates: true,
		PreserveOriginal:      true,
		ConfidenceThreshold:   0.8,
		MaxMergeAttempts:      3,
		PreferredResolutionByType: map[Type]ResolutionStrategy{
			ExactDuplicate:   StrategyUpdateTimestamp,
			PartialDuplicate: StrategyMerge,
			Contradiction:    StrategyUserChoose,
			UpdateNeeded:     StrategyReplace,
			TemporalOverlap:  StrategyUserChoose,
			RelatedMemory:    StrategyLink,
			MergeCandidate:   StrategyMerge,
		},
	}
}

func (p *UserPreferences) clone() *UserPreferences {
	c := *p
	c.PreferredResolutionByType = make(map[Type]ResolutionStrategy, len(p.PreferredResolutionByType))
	for k, v := range p.PreferredResolutionByType {
		c.PreferredResolutionByType[k] = v
	}
	return &c
}

// AuditEntry is one append-only record of a resolution, carrying enough
// state in RollbackData to undo it.
type AuditEntry struct {
	ID              string
	Timestamp       time.Time
	UserID          string
	Action          ResolutionAction
	Strategy        ResolutionStrategy
	ConflictType    Type
	MemoryIDs       []string
	OriginalContent map[string]string
	NewContent      map[string]string
	Metadata        map[string]any
	RollbackData    map[string]any
}

// Resolver applies resolution strategies to detected conflicts and
// persists the result through a storage engine, keeping an in-memory
// audit trail that supports real rollback (the previous content and
// active state are restored, not just logged).
type Resolver struct {
	engine *storage.Engine

	mu         sync.Mutex
	auditTrail []AuditEntry
}

// NewResolver returns a resolver that persists changes through engine.
func NewResolver(engine *storage.Engine) *Resolver {
	resolverLog.Info("conflict resolver initialized")
	return &Resolver{engine: engine}
}

// Resolve applies the appropriate strategy to a single conflict and
// records an audit entry for it.
func (r *Resolver) Resolve(ctx context.Context, userID string, c Conflict, prefs *UserPreferences) (*Resolution, error) {
	if prefs == nil {
		prefs = DefaultUserPreferences()
	}

	strategy := r.determineStrategy(c, prefs)
	resolverLog.Info("resolving conflict", "type", c.Type, "strategy", strategy)

	existingContent := c.ExistingMemory.Content
	resolution, err := r.apply(ctx, strategy, c, prefs)
	if err != nil {
		resolverLog.Error("conflict resolution failed", "error", err)
		return &Resolution{
			Action:        ActionNoAction,
			Strategy:      strategy,
			PrimaryMemory: c.NewMemory,
			Confidence:    0,
			Metadata:      map[string]any{"error": err.Error()},
		}, nil
	}

	entry := r.recordAudit(userID, c, resolution, prefs.DefaultStrategy, existingContent)
	resolution.AuditInfo = &entry

	resolverLog.Info("conflict resolved", "action", resolution.Action)
	return resolution, nil
}

// ResolveAll resolves a batch of conflicts in priority order (highest
// severity, then highest confidence, first), capping the number of
// merges applied per batch at prefs.MaxMergeAttempts: once the cap is
// hit, remaining merge candidates fall back to user_choose rather than
// silently merging without limit.
func (r *Resolver) ResolveAll(ctx context.Context, userID string, conflicts []Conflict, prefs *UserPreferences) ([]Resolution, error) {
	if len(conflicts) == 0 {
		return nil, nil
	}
	if prefs == nil {
		prefs = DefaultUserPreferences()
	}
	working := prefs.clone()

	sorted := make([]Conflict, len(conflicts))
	copy(sorted, conflicts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Severity != sorted[j].Severity {
			return sorted[i].Severity > sorted[j].Severity
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})

	resolutions := make([]Resolution, 0, len(sorted))
	mergeCount := 0
	for _, c := range sorted {
		res, err := r.Resolve(ctx, userID, c, working)
		if err != nil {
			return resolutions, err
		}
		resolutions = append(resolutions, *res)

		if res.Action == ActionMerged {
			mergeCount++
			if mergeCount >= working.MaxMergeAttempts {
				working.PreferredResolutionByType[MergeCandidate] = StrategyUserChoose
			}
		}
	}

	resolverLog.Info("resolved conflict batch", "conflicts", len(conflicts), "resolutions", len(resolutions))
	return resolutions, nil
}

func (r *Resolver) determineStrategy(c Conflict, prefs *UserPreferences) ResolutionStrategy {
	if c.Type == Contradiction {
		newConf := c.NewMemory.ConfidenceScore
		existingConf := c.ExistingMemory.ConfidenceScore
		if newConf > existingConf && newConf >= prefs.ConfidenceThreshold {
			return StrategyReplace
		}
		return StrategyUserChoose
	}

	if strategy, ok := prefs.PreferredResolutionByType[c.Type]; ok {
		return strategy
	}

	switch c.Type {
	case ExactDuplicate:
		return StrategyUpdateTimestamp
	case PartialDuplicate:
		return StrategyMerge
	case UpdateNeeded:
		return StrategyReplace
	case TemporalOverlap:
		return StrategyUserChoose
	case RelatedMemory:
		return StrategyLink
	case MergeCandidate:
		return StrategyMerge
	default:
		return prefs.DefaultStrategy
	}
}

func (r *Resolver) apply(ctx context.Context, strategy ResolutionStrategy, c Conflict, prefs *UserPreferences) (*Resolution, error) {
	switch strategy {
	case StrategyUpdateTimestamp:
		return r.updateTimestamp(ctx, c)
	case StrategyReplace:
		return r.replace(ctx, c, prefs)
	case StrategyMerge:
		return r.merge(ctx, c)
	case StrategyLink:
		return r.link(ctx, c)
	case StrategyCreateNew:
		return r.createNew(c), nil
	case StrategyKeepBoth:
		return r.keepBoth(ctx, c)
	case StrategyArchiveOld:
		return r.archiveOld(ctx, c)
	default:
		return r.handleUserChoice(c), nil
	}
}

func (r *Resolver) updateTimestamp(ctx context.Context, c Conflict) (*Resolution, error) {
	existing := c.ExistingMemory
	if err := r.engine.UpdateMemory(ctx, existing.ID, storage.UpdateFields{UpdatedBy: "conflict_resolver"}); err != nil {
		return nil, err
	}
	existing.UpdatedAt = time.Now()

	return &Resolution{
		Action:        ActionUpdated,
		Strategy:      StrategyUpdateTimestamp,
		PrimaryMemory: existing,
		Confidence:    0.95,
		Metadata: map[string]any{
			"reason": "exact duplicate detected",
		},
	}, nil
}

func (r *Resolver) replace(ctx context.Context, c Conflict, prefs *UserPreferences) (*Resolution, error) {
	newMem := c.NewMemory
	existing := c.ExistingMemory

	if prefs.PreserveOriginal {
		if newMem.Metadata == nil {
			newMem.Metadata = map[string]any{}
		}
		newMem.Metadata["replaced_memory_id"] = existing.ID
		newMem.Metadata["original_created_at"] = existing.CreatedAt
	}

	if existing.Metadata == nil {
		existing.Metadata = map[string]any{}
	}
	existing.Metadata["archived_reason"] = "replaced_by_newer"
	existing.Metadata["replaced_by"] = newMem.ID
	if err := r.engine.UpdateMemory(ctx, existing.ID, storage.UpdateFields{Metadata: existing.Metadata, UpdatedBy: "conflict_resolver"}); err != nil {
		return nil, err
	}
	if err := r.engine.DeleteMemory(ctx, existing.ID, true); err != nil {
		return nil, err
	}
	existing.IsActive = false

	return &Resolution{
		Action:           ActionReplaced,
		Strategy:         StrategyReplace,
		PrimaryMemory:    newMem,
		AffectedMemories: []*storage.Memory{existing},
		Confidence:       c.Confidence,
		Metadata: map[string]any{
			"replaced_memory_id": existing.ID,
			"reason":             c.Reason,
		},
	}, nil
}

func (r *Resolver) merge(ctx context.Context, c Conflict) (*Resolution, error) {
	newMem := c.NewMemory
	existing := c.ExistingMemory

	mergedContent := mergeContent(newMem.Content, existing.Content)
	mergedConfidence := existing.ConfidenceScore
	if newMem.ConfidenceScore > mergedConfidence {
		mergedConfidence = newMem.ConfidenceScore
	}

	if existing.Metadata == nil {
		existing.Metadata = map[string]any{}
	}
	existing.Metadata["merged_with"] = newMem.ID
	existing.Metadata["merge_timestamp"] = time.Now()
	existing.Metadata["original_content"] = existing.Content
	for k, v := range newMem.Metadata {
		existing.Metadata[k] = v
	}

	fields := storage.UpdateFields{
		Content:         &mergedContent,
		ConfidenceScore: &mergedConfidence,
		Metadata:        existing.Metadata,
		UpdatedBy:       "conflict_resolver",
	}
	if err := r.engine.UpdateMemory(ctx, existing.ID, fields); err != nil {
		return nil, err
	}
	existing.Content = mergedContent
	existing.ConfidenceScore = mergedConfidence

	return &Resolution{
		Action:        ActionMerged,
		Strategy:      StrategyMerge,
		PrimaryMemory: existing,
		MergedContent: mergedContent,
		Confidence:    c.Confidence,
		Metadata: map[string]any{
			"merged_from":     newMem.ID,
			"merge_algorithm": "content_combination",
		},
	}, nil
}

// mergeContent combines two memory contents by keeping every sentence
// that isn't already a substring of a longer sentence already kept,
// longest sentences first.
func mergeContent(a, b string) string {
	seen := map[string]struct{}{}
	var sentences []string
	for _, s := range strings.Split(a+"."+b, ".") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		sentences = append(sentences, s)
	}

	var merged []string
	for _, sentence := range sentences {
		unique := true
		low := strings.ToLower(sentence)
		for i, existing := range merged {
			existingLow := strings.ToLower(existing)
			if len(sentence) < len(existing) && strings.Contains(existingLow, low) {
				unique = false
				break
			}
			if len(sentence) > len(existing) && strings.Contains(low, existingLow) {
				merged[i] = merged[len(merged)-1]
				merged = merged[:len(merged)-1]
				break
			}
		}
		if unique {
			merged = append(merged, sentence)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return len(merged[i]) > len(merged[j]) })
	if len(merged) == 0 {
		return ""
	}
	return strings.Join(merged, ". ") + "."
}

func (r *Resolver) link(ctx context.Context, c Conflict) (*Resolution, error) {
	newMem := c.NewMemory
	existing := c.ExistingMemory

	if existing.Metadata == nil {
		existing.Metadata = map[string]any{}
	}
	existing.Metadata["related_memories"] = appendRelated(existing.Metadata["related_memories"], newMem.ID)
	if err := r.engine.UpdateMemory(ctx, existing.ID, storage.UpdateFields{Metadata: existing.Metadata, UpdatedBy: "conflict_resolver"}); err != nil {
		return nil, err
	}

	if newMem.Metadata == nil {
		newMem.Metadata = map[string]any{}
	}
	newMem.Metadata["related_memories"] = appendRelated(newMem.Metadata["related_memories"], existing.ID)

	return &Resolution{
		Action:           ActionLinked,
		Strategy:         StrategyLink,
		PrimaryMemory:    newMem,
		AffectedMemories: []*storage.Memory{existing},
		Confidence:       c.Confidence,
		Metadata: map[string]any{
			"linked_memory_id": existing.ID,
			"relationship_type": "related_content",
		},
	}, nil
}

func appendRelated(existing any, id string) []string {
	ids, _ := existing.([]string)
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}

func (r *Resolver) createNew(c Conflict) *Resolution {
	return &Resolution{
		Action:        ActionCreated,
		Strategy:      StrategyCreateNew,
		PrimaryMemory: c.NewMemory,
		Confidence:    1.0,
		Metadata:      map[string]any{"reason": "no conflicts require modification"},
	}
}

func (r *Resolver) keepBoth(ctx context.Context, c Conflict) (*Resolution, error) {
	newMem := c.NewMemory
	existing := c.ExistingMemory

	if newMem.Metadata == nil {
		newMem.Metadata = map[string]any{}
	}
	newMem.Metadata["related_but_distinct"] = existing.ID

	if existing.Metadata == nil {
		existing.Metadata = map[string]any{}
	}
	existing.Metadata["related_but_distinct"] = newMem.ID
	if err := r.engine.UpdateMemory(ctx, existing.ID, storage.UpdateFields{Metadata: existing.Metadata, UpdatedBy: "conflict_resolver"}); err != nil {
		return nil, err
	}

	return &Resolution{
		Action:           ActionCreated,
		Strategy:         StrategyKeepBoth,
		PrimaryMemory:    newMem,
		AffectedMemories: []*storage.Memory{existing},
		Confidence:       c.Confidence,
		Metadata: map[string]any{
			"kept_both":          true,
			"related_memory_id": existing.ID,
		},
	}, nil
}

func (r *Resolver) archiveOld(ctx context.Context, c Conflict) (*Resolution, error) {
	newMem := c.NewMemory
	existing := c.ExistingMemory

	if existing.Metadata == nil {
		existing.Metadata = map[string]any{}
	}
	existing.Metadata["archived_reason"] = "superseded_by_new"
	existing.Metadata["superseded_by"] = newMem.ID
	if err := r.engine.UpdateMemory(ctx, existing.ID, storage.UpdateFields{Metadata: existing.Metadata, UpdatedBy: "conflict_resolver"}); err != nil {
		return nil, err
	}
	if err := r.engine.DeleteMemory(ctx, existing.ID, true); err != nil {
		return nil, err
	}
	existing.IsActive = false

	if newMem.Metadata == nil {
		newMem.Metadata = map[string]any{}
	}
	newMem.Metadata["superseded_memory"] = existing.ID

	return &Resolution{
		Action:           ActionArchived,
		Strategy:         StrategyArchiveOld,
		PrimaryMemory:    newMem,
		AffectedMemories: []*storage.Memory{existing},
		Confidence:       c.Confidence,
		Metadata: map[string]any{
			"archived_memory_id": existing.ID,
			"reason":             "newer information available",
		},
	}, nil
}

func (r *Resolver) handleUserChoice(c Conflict) *Resolution {
	return &Resolution{
		Action:           ActionNoAction,
		Strategy:         StrategyUserChoose,
		PrimaryMemory:    c.NewMemory,
		AffectedMemories: []*storage.Memory{c.ExistingMemory},
		Confidence:       0,
		Metadata: map[string]any{
			"requires_user_choice": true,
			"suggested_actions":    []string{"replace", "merge", "keep_both", "archive_old"},
		},
	}
}

func (r *Resolver) recordAudit(userID string, c Conflict, resolution *Resolution, defaultStrategy ResolutionStrategy, existingContent string) AuditEntry {
	original := map[string]string{}
	newContent := map[string]string{}
	var ids []string

	ids = append(ids, resolution.PrimaryMemory.ID)
	newContent[resolution.PrimaryMemory.ID] = resolution.PrimaryMemory.Content

	for _, m := range resolution.AffectedMemories {
		ids = append(ids, m.ID)
		original[m.ID] = m.Content
	}
	if _, ok := original[c.ExistingMemory.ID]; !ok && c.ExistingMemory.ID != resolution.PrimaryMemory.ID {
		ids = append(ids, c.ExistingMemory.ID)
	}
	original[c.ExistingMemory.ID] = existingContent

	entry := AuditEntry{
		ID:              uuid.NewString(),
		Timestamp:       time.Now(),
		UserID:          userID,
		Action:          resolution.Action,
		Strategy:        resolution.Strategy,
		ConflictType:    c.Type,
		MemoryIDs:       ids,
		OriginalContent: original,
		NewContent:      newContent,
		Metadata:        resolution.Metadata,
		RollbackData: map[string]any{
			"conflict_type":    string(c.Type),
			"similarity_score": c.SimilarityScore,
			"confidence":       c.Confidence,
			"strategy_used":    string(resolution.Strategy),
			"default_strategy": string(defaultStrategy),
			"original_states":  original,
		},
	}

	r.mu.Lock()
	r.auditTrail = append(r.auditTrail, entry)
	r.mu.Unlock()
	return entry
}

// Rollback reverses a previously applied resolution by restoring the
// original content (and active state, for replace/archive) recorded in
// its audit entry. Unlike a resolver that merely logs what it would
// restore, this writes the restoration back through the storage engine.
func (r *Resolver) Rollback(ctx context.Context, auditID string) (bool, error) {
	r.mu.Lock()
	var entry *AuditEntry
	for i := range r.auditTrail {
		if r.auditTrail[i].ID == auditID {
			entry = &r.auditTrail[i]
			break
		}
	}
	r.mu.Unlock()

	if entry == nil {
		resolverLog.Error("audit entry not found", "audit_id", auditID)
		return false, nil
	}

	switch entry.Action {
	case ActionReplaced, ActionArchived:
		for memoryID := range entry.OriginalContent {
			if err := r.engine.ReactivateMemory(ctx, memoryID); err != nil {
				return false, err
			}
			resolverLog.Info("restored archived memory", "memory_id", memoryID)
		}

	case ActionMerged:
		for memoryID, original := range entry.OriginalContent {
			content := original
			if err := r.engine.UpdateMemory(ctx, memoryID, storage.UpdateFields{Content: &content, UpdatedBy: "rollback"}); err != nil {
				return false, err
			}
			resolverLog.Info("restored original content", "memory_id", memoryID)
		}

	case ActionLinked:
		resolverLog.Info("rollback of link action does not remove cross-references", "audit_id", auditID)
	}

	rollback := AuditEntry{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		UserID:       entry.UserID,
		Action:       ActionNoAction,
		Strategy:     StrategyCreateNew,
		ConflictType: entry.ConflictType,
		MemoryIDs:    entry.MemoryIDs,
		Metadata:     map[string]any{"rollback_of": auditID},
	}

	r.mu.Lock()
	r.auditTrail = append(r.auditTrail, rollback)
	r.mu.Unlock()

	resolverLog.Info("rollback completed", "audit_id", auditID)
	return true, nil
}

// AuditTrail returns recorded audit entries, newest first, optionally
// filtered by user and capped at limit (0 means unlimited).
func (r *Resolver) AuditTrail(userID string, limit int) []AuditEntry {
	r.mu.Lock()
	entries := make([]AuditEntry, len(r.auditTrail))
	copy(entries, r.auditTrail)
	r.mu.Unlock()

	var filtered []AuditEntry
	for _, e := range entries {
		if userID != "" && e.UserID != userID {
			continue
		}
		filtered = append(filtered, e)
	}

	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].Timestamp.After(filtered[j].Timestamp) })
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

// ResolutionStatistics summarizes resolutions performed so far.
type ResolutionStatistics struct {
	TotalResolutions int
	Actions          map[ResolutionAction]int
	Strategies       map[ResolutionStrategy]int
	ConflictTypes    map[Type]int
	SuccessRate      float64
}

// Statistics aggregates the audit trail into resolution counters.
func (r *Resolver) Statistics() ResolutionStatistics {
	r.mu.Lock()
	entries := make([]AuditEntry, len(r.auditTrail))
	copy(entries, r.auditTrail)
	r.mu.Unlock()

	stats := ResolutionStatistics{
		Actions:       map[ResolutionAction]int{},
		Strategies:    map[ResolutionStrategy]int{},
		ConflictTypes: map[Type]int{},
	}
	if len(entries) == 0 {
		return stats
	}

	succeeded := 0
	for _, e := range entries {
		stats.TotalResolutions++
		stats.Actions[e.Action]++
		stats.Strategies[e.Strategy]++
		stats.ConflictTypes[e.ConflictType]++
		if e.Action != ActionNoAction {
			succeeded++
		}
	}
	stats.SuccessRate = float64(succeeded) / float64(stats.TotalResolutions)
	return stats
}
