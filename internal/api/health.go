package api

import (
	"errors"
	"net/http"

	"github.com/h4shk4t/validAI-Contract/internal/contract"
)

type healthResponse struct {
	Status      string `json:"status"`
	Initialized bool   `json:"initialized"`
	Pending     int    `json:"pending_requests"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	_, err := s.svc.State(r.Context())
	if err != nil && !errors.Is(err, contract.ErrNotInitialized) {
		s.logger.Error("healthz state read", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded"})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Initialized: err == nil,
		Pending:     s.svc.Runtime().Yields().Pending(),
	})
}
