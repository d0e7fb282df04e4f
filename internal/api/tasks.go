package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/h4shk4t/validAI-Contract/internal/contract"
	"github.com/h4shk4t/validAI-Contract/internal/host"
	"github.com/h4shk4t/validAI-Contract/internal/model"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB

	// callerHeader names the account a call is made on behalf of.
	callerHeader = "X-Near-Account"
)

type initRequest struct {
	AttestationCenter model.AccountID `json:"attestation_center"`
}

// callResponse is returned by state-changing calls.
type callResponse struct {
	ReceiptID string           `json:"receipt_id"`
	Logs      []string         `json:"logs"`
	Transfers []model.Transfer `json:"transfers,omitempty"`
}

// submissionResponse is the body of POST /v1/tasks/before.
type submissionResponse struct {
	RequestID uint64          `json:"request_id"`
	YieldID   model.YieldID   `json:"yield_id"`
	ReceiptID string          `json:"receipt_id"`
	Logs      []string        `json:"logs,omitempty"`
	Result    *model.Response `json:"result,omitempty"`
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req initRequest
	if !s.decode(w, r, &req) {
		return
	}

	out, err := s.svc.Init(r.Context(), caller, req.AttestationCenter)
	if err != nil {
		s.writeCallError(w, "init", err)
		return
	}
	s.writeJSON(w, http.StatusOK, callResponse{ReceiptID: out.ReceiptID, Logs: nonNil(out.Logs)})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.State(r.Context())
	if err != nil {
		s.writeCallError(w, "get state", err)
		return
	}
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleBeforeTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req model.BeforeTask
	if !s.decode(w, r, &req) {
		return
	}
	if req.Performer != "" {
		if err := req.Performer.Validate(); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	sub, err := s.svc.BeforeTaskSubmission(r.Context(), caller, req)
	if err != nil {
		s.writeCallError(w, "before task submission", err)
		return
	}
	resp := submissionResponse{
		RequestID: sub.RequestID,
		YieldID:   sub.YieldID,
		ReceiptID: sub.ReceiptID,
		Logs:      sub.Logs,
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		s.writeJSON(w, http.StatusAccepted, resp)
		return
	}

	// The yield may outlive the server write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("clear write deadline for wait", "error", err)
	}
	result, err := contract.Await(r.Context(), sub.Promise)
	if err != nil {
		if r.Context().Err() != nil {
			return // Client gone; the request stays pending.
		}
		s.logger.Error("await request", "yield_id", sub.YieldID.String(), "error", err)
		s.writeError(w, http.StatusInternalServerError, "request finished without a result")
		return
	}
	resp.Result = &result
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAfterTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req model.AfterTask
	if !s.decode(w, r, &req) {
		return
	}
	if req.ModelInfo.ModelName == "" {
		s.writeError(w, http.StatusBadRequest, "model_info.model_name is required")
		return
	}

	out, err := s.svc.AfterTaskSubmission(r.Context(), caller, req)
	if err != nil {
		s.writeCallError(w, "after task submission", err)
		return
	}
	s.writeJSON(w, http.StatusOK, callResponse{
		ReceiptID: out.ReceiptID,
		Logs:      nonNil(out.Logs),
		Transfers: out.Transfers,
	})
}

// caller reads the optional calling account from the request headers.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (model.AccountID, bool) {
	v := r.Header.Get(callerHeader)
	if v == "" {
		return "", true
	}
	id, err := model.ParseAccountID(v)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// decode reads a size-limited JSON body into v, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeCallError maps contract and host errors onto HTTP statuses.
func (s *Server) writeCallError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, contract.ErrNotInitialized):
		s.writeError(w, http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, contract.ErrAlreadyInitialized),
		errors.Is(err, host.ErrResumeRejected):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, contract.ErrModelNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrInvalidAccountID),
		errors.Is(err, contract.ErrInvalidModelName):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op, "error", err)
		s.writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

func nonNil(lines []string) []string {
	if lines == nil {
		return []string{}
	}
	return lines
}
