package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	Pending      int            `json:"pending"`
	AvgLatencyMS float64        `json:"avg_latency_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetYieldStats(r.Context())
	if err != nil {
		s.logger.Error("get yield stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Total:        stats.Total,
		ByStatus:     stats.CountByStatus,
		Pending:      s.svc.Runtime().Yields().Pending(),
		AvgLatencyMS: stats.AvgLatencyMS,
	})
}
