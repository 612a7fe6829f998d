package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/peace-bassey/BitTrust/internal/audit"
	"github.com/peace-bassey/BitTrust/internal/lending"
	"github.com/peace-bassey/BitTrust/internal/obs"
	"github.com/peace-bassey/BitTrust/internal/reputation"
)

type scoreResponse struct {
	User string `json:"user"`
	reputation.Record
}

type loanRequest struct {
	Amount     uint64 `json:"amount"`
	Collateral uint64 `json:"collateral"`
	Duration   uint64 `json:"duration"`
}

type repaymentRequest struct {
	Amount uint64 `json:"amount"`
}

type loanResponse struct {
	lending.Loan
	TotalDue    uint64 `json:"total_due"`
	Outstanding uint64 `json:"outstanding"`
}

type userLoansResponse struct {
	User    string         `json:"user"`
	LoanIDs []uint64       `json:"loan_ids"`
	Loans   []loanResponse `json:"loans"`
}

func newLoanResponse(l lending.Loan) loanResponse {
	due, _ := l.TotalDue()
	return loanResponse{Loan: l, TotalDue: due, Outstanding: l.Outstanding()}
}

// finish audits and counts the outcome of a state-changing call and writes
// the error response if there is one. It reports whether the call succeeded.
func finish(w http.ResponseWriter, r *http.Request, op string, err error, fields map[string]any) bool {
	audit.LendingCall(r.Context(), op, err, fields)
	obs.ObserveLendingError(op, err)
	if err != nil {
		if lending.Kind(err) == "internal" {
			obs.LogEvent("error", "lending_call_failed", map[string]any{
				"op":         op,
				"request_id": RequestIDFromContext(r.Context()),
				"err":        err,
			})
		}
		handleLendingError(w, r, err)
		return false
	}
	return true
}

func (a *API) handleInitializeScore(w http.ResponseWriter, r *http.Request) {
	user := caller(r)
	err := a.engine.InitializeScore(r.Context(), user)
	if !finish(w, r, "initialize_score", err, nil) {
		return
	}
	rec, _, err := a.engine.UserScore(r.Context(), user)
	if err != nil {
		handleLendingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, scoreResponse{User: user, Record: rec})
}

func (a *API) handleGetScore(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	rec, ok, err := a.engine.UserScore(r.Context(), user)
	if err != nil {
		handleLendingError(w, r, err)
		return
	}
	if !ok {
		writeError(w, r, http.StatusNotFound, "reputation not initialized")
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{User: user, Record: rec})
}

func (a *API) handleRequestLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := decodeJSON(w, r, &req, a.maxBody); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	id, err := a.engine.RequestLoan(r.Context(), caller(r), req.Amount, req.Collateral, req.Duration)
	fields := map[string]any{
		"amount":     req.Amount,
		"collateral": req.Collateral,
		"duration":   req.Duration,
	}
	if id != 0 {
		fields["loan_id"] = id
	}
	if !finish(w, r, "request_loan", err, fields) {
		return
	}
	a.writeLoan(w, r, id, http.StatusCreated)
}

func (a *API) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r.PathValue("id"))
	if err != nil {
		handleLendingError(w, r, err)
		return
	}
	a.writeLoan(w, r, id, http.StatusOK)
}

func (a *API) handleRepayLoan(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r.PathValue("id"))
	if err != nil {
		handleLendingError(w, r, err)
		return
	}
	var req repaymentRequest
	if err := decodeJSON(w, r, &req, a.maxBody); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err = a.engine.RepayLoan(r.Context(), caller(r), id, req.Amount)
	if !finish(w, r, "repay_loan", err, map[string]any{"loan_id": id, "amount": req.Amount}) {
		return
	}
	a.writeLoan(w, r, id, http.StatusOK)
}

func (a *API) handleMarkDefaulted(w http.ResponseWriter, r *http.Request) {
	id, err := parseLoanID(r.PathValue("id"))
	if err != nil {
		handleLendingError(w, r, err)
		return
	}

	err = a.engine.MarkLoanDefaulted(r.Context(), caller(r), id)
	if !finish(w, r, "mark_defaulted", err, map[string]any{"loan_id": id}) {
		return
	}
	a.writeLoan(w, r, id, http.StatusOK)
}

func (a *API) writeLoan(w http.ResponseWriter, r *http.Request, id uint64, code int) {
	loan, ok, err := a.engine.Loan(r.Context(), id)
	if err != nil {
		handleLendingError(w, r, err)
		return
	}
	if !ok {
		handleLendingError(w, r, lending.ErrLoanNotFound)
		return
	}
	if code == http.StatusCreated {
		w.Header().Set("Location", "/v1/loans/"+strconv.FormatUint(id, 10))
	}
	writeJSON(w, code, newLoanResponse(loan))
}

func (a *API) handleUserLoans(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("user")
	loans, err := a.engine.UserLoanDetails(r.Context(), user)
	if err != nil {
		handleLendingError(w, r, err)
		return
	}

	resp := userLoansResponse{
		User:    user,
		LoanIDs: make([]uint64, 0, len(loans)),
		Loans:   make([]loanResponse, 0, len(loans)),
	}
	for _, loan := range loans {
		resp.LoanIDs = append(resp.LoanIDs, loan.ID)
		resp.Loans = append(resp.Loans, newLoanResponse(loan))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleTreasury(w http.ResponseWriter, r *http.Request) {
	total, err := a.engine.Treasury(r.Context())
	if err != nil {
		handleLendingError(w, r, err)
		return
	}
	resp := map[string]any{
		"collateral":      total,
		"custody_account": a.engine.CustodyAccount(),
	}
	if a.journal != nil {
		acct, err := a.journal.Account(r.Context(), a.engine.CustodyAccount())
		if err != nil {
			handleLendingError(w, r, err)
			return
		}
		resp["custody_balance"] = acct.Balance
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleQuote prices an amount for ?score=, or for the current score of
// ?user= when no score is given.
func (a *API) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := parseUintParam(q.Get("amount"), "amount", 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	score, err := parseUintParam(q.Get("score"), "score", 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(q.Get("score")) == "" {
		user := strings.TrimSpace(q.Get("user"))
		if user == "" {
			writeError(w, r, http.StatusBadRequest, "score or user is required")
			return
		}
		rec, ok, err := a.engine.UserScore(r.Context(), user)
		if err != nil {
			handleLendingError(w, r, err)
			return
		}
		if !ok {
			writeError(w, r, http.StatusNotFound, "reputation not initialized")
			return
		}
		score = rec.Score
	}

	terms, err := lending.Quote(amount, score)
	if err != nil {
		if errors.Is(err, lending.ErrInvalidScore) || errors.Is(err, lending.ErrInvalidAmount) {
			handleLendingError(w, r, err)
			return
		}
		writeError(w, r, http.StatusInternalServerError, "quote failed")
		return
	}
	writeJSON(w, http.StatusOK, terms)
}
