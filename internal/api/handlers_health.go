package api

import (
	"github.com/gin-gonic/gin"
)

// handleHealthSimple is a liveness probe: it always returns 200 once
// the process can serve requests, regardless of LLM or per-user
// storage state.
func (s *Server) handleHealthSimple(c *gin.Context) {
	OK(c, gin.H{"status": "ok"})
}

// handleHealth is a readiness probe: it reports LLM availability and
// the health of every currently open per-user storage handle.
func (s *Server) handleHealth(c *gin.Context) {
	routerHealth := s.router.Health(c.Request.Context())
	llmStats := s.llmClient.Stats()

	status := "ok"
	if !s.llmClient.IsAvailable() || len(routerHealth.Unhealthy) > 0 {
		status = "degraded"
	}

	OK(c, gin.H{
		"status": status,
		"llm": gin.H{
			"available":    s.llmClient.IsAvailable(),
			"chat_model":   s.llmClient.ChatModel(),
			"requests":     llmStats.Requests,
			"failures":     llmStats.Failures,
			"avg_latency":  llmStats.AvgLatency.String(),
		},
		"storage": gin.H{
			"open_handles": routerHealth.OpenHandles,
			"unhealthy":    routerHealth.Unhealthy,
		},
	})
}
