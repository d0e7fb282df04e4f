package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/h4shk4t/validAI-Contract/internal/model"
)

type balanceResponse struct {
	Account model.AccountID `json:"account"`
	Balance model.Token     `json:"balance"`
	Display string          `json:"display"`
}

type transfersResponse struct {
	Account   model.AccountID  `json:"account"`
	Transfers []model.Transfer `json:"transfers"`
}

func (s *Server) accountParam(w http.ResponseWriter, r *http.Request) (model.AccountID, bool) {
	id, err := model.ParseAccountID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}

	bal, err := s.store.GetBalance(r.Context(), account)
	if err != nil {
		s.logger.Error("get balance", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}
	s.writeJSON(w, http.StatusOK, balanceResponse{Account: account, Balance: bal, Display: bal.String()})
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	account, ok := s.accountParam(w, r)
	if !ok {
		return
	}
	limit := parseIntQuery(r, "limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	transfers, err := s.store.ListTransfers(r.Context(), account, limit)
	if err != nil {
		s.logger.Error("list transfers", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list transfers")
		return
	}
	if transfers == nil {
		transfers = []model.Transfer{}
	}
	s.writeJSON(w, http.StatusOK, transfersResponse{Account: account, Transfers: transfers})
}
