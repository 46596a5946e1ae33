package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jason-c-dev/harmonia-memory/internal/memory"
	"github.com/jason-c-dev/harmonia-memory/internal/storage"
)

// storeRequest is the POST /memory/store body.
type storeRequest struct {
	UserID    string         `json:"user_id" binding:"required"`
	Message   string         `json:"message" binding:"required"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"metadata"`
}

// handleStore runs the extraction pipeline over a message and persists
// every surviving candidate for the user.
func (s *Server) handleStore(c *gin.Context) {
	var req storeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := s.manager.ProcessAndStore(c.Request.Context(), req.UserID, req.Message, req.SessionID, req.Metadata)
	if err != nil {
		RespondError(c, err)
		return
	}

	writes := make([]gin.H, 0, len(result.Writes))
	for _, w := range result.Writes {
		writes = append(writes, writeResultToJSON(w))
	}

	Created(c, gin.H{
		"skipped":                result.Extraction.Skipped,
		"skip_reason":            result.Extraction.SkipReason,
		"extraction_confidence":  result.Extraction.ExtractionConfidence,
		"reasoning":              result.Extraction.Reasoning,
		"model_used":             result.Extraction.ModelUsed,
		"candidate_count":        result.Extraction.CandidateCount,
		"filtered_count":         result.Extraction.FilteredCount,
		"writes":                 writes,
	})
}

func writeResultToJSON(w memory.WriteResult) gin.H {
	out := gin.H{"outcome": w.Outcome}
	if w.Memory != nil {
		out["memory"] = memoryToJSON(w.Memory)
	}
	if w.Error != "" {
		out["error"] = w.Error
	}
	if len(w.Conflicts) > 0 {
		out["conflict_count"] = len(w.Conflicts)
	}
	if len(w.Resolutions) > 0 {
		resolutions := make([]gin.H, 0, len(w.Resolutions))
		for _, r := range w.Resolutions {
			resolutions = append(resolutions, gin.H{
				"strategy": r.Strategy,
				"action":   r.Action,
			})
		}
		out["resolutions"] = resolutions
	}
	return out
}

func memoryToJSON(m *storage.Memory) gin.H {
	return gin.H{
		"id":               m.ID,
		"content":          m.Content,
		"original_message": m.OriginalMessage,
		"category":         m.Category,
		"confidence_score": m.ConfidenceScore,
		"timestamp":        m.Timestamp,
		"created_at":       m.CreatedAt,
		"updated_at":       m.UpdatedAt,
		"metadata":         m.Metadata,
		"session_id":       m.SessionID,
		"is_active":        m.IsActive,
	}
}

// handleGetMemory looks up one memory by id for the given user.
func (s *Server) handleGetMemory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		BadRequest(c, "user_id is required")
		return
	}
	id := c.Param("id")

	eng, err := s.router.Get(userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	defer s.router.Release(userID)

	mem, err := eng.GetMemory(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	if mem == nil {
		NotFound(c, "memory not found: "+id)
		return
	}
	OK(c, memoryToJSON(mem))
}

// handleDeleteMemory soft-deletes a memory, marking it inactive rather
// than removing its row.
func (s *Server) handleDeleteMemory(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		BadRequest(c, "user_id is required")
		return
	}
	id := c.Param("id")

	eng, err := s.router.Get(userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	defer s.router.Release(userID)

	mem, err := eng.GetMemory(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	if mem == nil {
		NotFound(c, "memory not found: "+id)
		return
	}

	if err := eng.DeleteMemory(c.Request.Context(), id, true); err != nil {
		RespondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
