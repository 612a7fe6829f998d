package httpapi

import (
	"net/http"

	"github.com/peace-bassey/BitTrust/internal/audit"
	"github.com/peace-bassey/BitTrust/internal/ledger"
)

type depositRequest struct {
	Amount uint64 `json:"amount"`
}

type transactionsResponse struct {
	Items     []ledger.Transaction `json:"items"`
	NextAfter uint64               `json:"next_after,omitempty"`
}

// handleDeposit funds an account from outside the book. Only the protocol
// admin may mint.
func (a *API) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeError(w, r, http.StatusServiceUnavailable, "custody disabled")
		return
	}
	admin := a.engine.Admin()
	if admin == "" || caller(r) != admin {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}

	var req depositRequest
	if err := decodeJSON(w, r, &req, a.maxBody); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	account := r.PathValue("id")
	tx, err := a.journal.Deposit(r.Context(), account, req.Amount)
	fields := map[string]any{"account": account, "amount": req.Amount}
	if err != nil {
		fields["error"] = err.Error()
		_ = audit.LogEvent(r.Context(), "custody.deposit.rejected", fields)
		handleLendingError(w, r, err)
		return
	}
	fields["transaction_id"] = tx.ID
	_ = audit.LogEvent(r.Context(), "custody.deposit", fields)
	writeJSON(w, http.StatusCreated, tx)
}

func (a *API) handleBalance(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeError(w, r, http.StatusServiceUnavailable, "custody disabled")
		return
	}
	acct, err := a.journal.Account(r.Context(), r.PathValue("id"))
	if err != nil {
		handleLendingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeError(w, r, http.StatusServiceUnavailable, "custody disabled")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	after, err := parseUintParam(r.URL.Query().Get("after"), "after", 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	items, last, err := a.journal.ListTransactions(r.Context(), limit, after)
	if err != nil {
		handleLendingError(w, r, err)
		return
	}
	if items == nil {
		items = []ledger.Transaction{}
	}
	resp := transactionsResponse{Items: items}
	if len(items) == limit {
		resp.NextAfter = last
	}
	writeJSON(w, http.StatusOK, resp)
}
