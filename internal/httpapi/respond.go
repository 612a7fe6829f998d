package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/peace-bassey/BitTrust/internal/ledger"
	"github.com/peace-bassey/BitTrust/internal/lending"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleLendingError maps lending and custody errors to HTTP statuses.
func handleLendingError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrInvalidDuration),
		errors.Is(err, lending.ErrInvalidLoanID),
		errors.Is(err, lending.ErrInvalidScore),
		errors.Is(err, ledger.ErrInvalidAccount),
		errors.Is(err, ledger.ErrInvalidAmount):
		code = http.StatusBadRequest
	case errors.Is(err, lending.ErrUnauthorized):
		code = http.StatusForbidden
	case errors.Is(err, lending.ErrLoanNotFound):
		code = http.StatusNotFound
	case errors.Is(err, lending.ErrAlreadyInitialized),
		errors.Is(err, lending.ErrLoanDefaulted),
		errors.Is(err, lending.ErrNotDue),
		errors.Is(err, lending.ErrTransferFailed),
		errors.Is(err, ledger.ErrInsufficientFunds):
		code = http.StatusConflict
	case errors.Is(err, lending.ErrInsufficientScore),
		errors.Is(err, lending.ErrActiveLoanLimitExceeded),
		errors.Is(err, lending.ErrInsufficientCollateral),
		errors.Is(err, lending.ErrCapacityExceeded):
		code = http.StatusUnprocessableEntity
	}
	if code == http.StatusInternalServerError {
		writeError(w, r, code, "internal error")
		return
	}
	payload := map[string]any{
		"error": err.Error(),
	}
	if kind := lending.Kind(err); kind != "internal" {
		payload["kind"] = kind
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	reader := http.MaxBytesReader(w, r.Body, maxBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// parseLoanID rejects anything that is not a positive decimal id.
func parseLoanID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, lending.ErrInvalidLoanID
	}
	return id, nil
}

func parseUintParam(raw, name string, def uint64) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

func parseLimit(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 100, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if val < 1 || val > 1000 {
		return 0, errors.New("limit must be between 1 and 1000")
	}
	return val, nil
}
