package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jason-c-dev/harmonia-memory/internal/search"
)

// parseSearchOptions builds search.Options from shared query parameters
// used by both /memory/search and /memory/list.
func parseSearchOptions(c *gin.Context) (search.Options, error) {
	opts := search.Options{
		Category:    c.Query("category"),
		SessionID:   c.Query("session_id"),
		BoostRecent: c.Query("boost_recent") == "true",
		SortBy:      c.DefaultQuery("sort_by", "created_at"),
		SortDesc:    c.DefaultQuery("sort_desc", "true") != "false",
		Limit:       clampLimit(atoiDefault(c.Query("limit"), 20)),
		Offset:      atoiDefault(c.Query("offset"), 0),
	}

	if v := c.Query("min_confidence"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.MinConfidence = f
		}
	}
	if v := c.Query("max_confidence"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.MaxConfidence = f
		}
	}
	if v := c.Query("start_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.StartDate = &t
		} else {
			return opts, err
		}
	}
	if v := c.Query("end_date"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.EndDate = &t
		} else {
			return opts, err
		}
	}
	if v := c.Query("boost_categories"); v != "" {
		opts.BoostCategories = splitCSV(v)
	}

	return opts, nil
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if part := s[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}

// handleSearch runs a ranked full-text search.
func (s *Server) handleSearch(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		BadRequest(c, "user_id is required")
		return
	}
	query := c.Query("q")
	if query == "" {
		BadRequest(c, "q is required")
		return
	}

	opts, err := parseSearchOptions(c)
	if err != nil {
		BadRequest(c, "invalid date parameter: "+err.Error())
		return
	}

	eng, err := s.router.Get(userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	defer s.router.Release(userID)

	engine := search.NewEngine(eng)
	page, err := engine.Search(c.Request.Context(), query, opts)
	if err != nil {
		RespondError(c, err)
		return
	}
	OK(c, pageToJSON(page))
}

// handleList lists memories without a free-text query.
func (s *Server) handleList(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		BadRequest(c, "user_id is required")
		return
	}

	opts, err := parseSearchOptions(c)
	if err != nil {
		BadRequest(c, "invalid date parameter: "+err.Error())
		return
	}

	eng, err := s.router.Get(userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	defer s.router.Release(userID)

	engine := search.NewEngine(eng)
	page, err := engine.List(c.Request.Context(), opts)
	if err != nil {
		RespondError(c, err)
		return
	}
	OK(c, pageToJSON(page))
}

func pageToJSON(page *search.Page) gin.H {
	results := make([]gin.H, 0, len(page.Results))
	for _, r := range page.Results {
		results = append(results, gin.H{
			"memory":     memoryToJSON(r.Memory),
			"score":      r.Score,
			"snippet":    r.Snippet,
			"highlights": r.Highlights,
		})
	}
	return gin.H{
		"results":  results,
		"total":    page.Total,
		"limit":    page.Limit,
		"offset":   page.Offset,
		"has_more": page.HasMore,
	}
}

// handleExport serializes the matching memories in the requested
// format (json, csv, markdown, text) through search.Engine.Export,
// which ignores limit and offset.
func (s *Server) handleExport(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		BadRequest(c, "user_id is required")
		return
	}

	opts, err := parseSearchOptions(c)
	if err != nil {
		BadRequest(c, "invalid date parameter: "+err.Error())
		return
	}

	format := search.ExportFormat(c.DefaultQuery("format", "json"))
	includeMetadata := c.DefaultQuery("include_metadata", "false") == "true"

	eng, err := s.router.Get(userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	defer s.router.Release(userID)

	engine := search.NewEngine(eng)
	body, err := engine.Export(c.Request.Context(), search.ExportOptions{
		Options:         opts,
		Format:          format,
		IncludeMetadata: includeMetadata,
		UserID:          userID,
	})
	if err != nil {
		RespondError(c, err)
		return
	}

	contentType := "application/json"
	switch format {
	case search.ExportCSV:
		contentType = "text/csv"
	case search.ExportMarkdown:
		contentType = "text/markdown"
	case search.ExportText:
		contentType = "text/plain"
	}
	c.Data(200, contentType, []byte(body))
}
