package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

type registerModelRequest struct {
	ModelAccount model.AccountID `json:"model_account"`
	ModelName    string          `json:"model_name"`
	Reward       model.Token     `json:"reward"`
}

type modelResponse struct {
	ModelName    string          `json:"model_name"`
	ModelAccount model.AccountID `json:"model_account"`
}

func (s *Server) handleRegisterModel(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req registerModelRequest
	if !s.decode(w, r, &req) {
		return
	}

	out, err := s.svc.RegisterModel(r.Context(), caller, req.ModelAccount, req.ModelName, req.Reward)
	if err != nil {
		s.writeCallError(w, "register model", err)
		return
	}
	s.writeJSON(w, http.StatusOK, callResponse{ReceiptID: out.ReceiptID, Logs: nonNil(out.Logs)})
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	account, err := s.svc.Model(r.Context(), name)
	if err != nil {
		s.writeCallError(w, "get model", err)
		return
	}
	s.writeJSON(w, http.StatusOK, modelResponse{ModelName: name, ModelAccount: account})
}
