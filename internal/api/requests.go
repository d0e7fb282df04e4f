package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/h4shk4t/validAI-Contract/internal/model"
	"github.com/h4shk4t/validAI-Contract/internal/store"
)

// listRequestsResponse wraps the paginated list response.
type listRequestsResponse struct {
	Requests []*model.Yield `json:"requests"`
	Total    int            `json:"total"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseYieldID(chi.URLParam(r, "yield_id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid yield id")
		return
	}

	y, err := s.store.GetYield(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "request not found")
		return
	}
	if err != nil {
		s.logger.Error("get request", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get request")
		return
	}

	s.writeJSON(w, http.StatusOK, y)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)
	status := r.URL.Query().Get("status")

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	switch status {
	case "", model.YieldPending, model.YieldClaimed, model.YieldResolved, model.YieldTimedOut:
	default:
		s.writeError(w, http.StatusBadRequest, "unknown status "+status)
		return
	}

	yields, total, err := s.store.ListYields(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("list requests", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}

	if yields == nil {
		yields = []*model.Yield{}
	}

	s.writeJSON(w, http.StatusOK, listRequestsResponse{
		Requests: yields,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}
