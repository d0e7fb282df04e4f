package api

import (
	"net/http"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

// respondRequest is the JSON body for POST /v1/respond.
type respondRequest struct {
	YieldID  model.YieldID `json:"yield_id"`
	Response string        `json:"response"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req respondRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.YieldID.IsZero() {
		s.writeError(w, http.StatusBadRequest, "yield_id is required")
		return
	}

	out, err := s.svc.Respond(r.Context(), caller, req.YieldID, req.Response)
	if err != nil {
		s.writeCallError(w, "respond", err)
		return
	}
	s.writeJSON(w, http.StatusOK, callResponse{ReceiptID: out.ReceiptID, Logs: nonNil(out.Logs)})
}
