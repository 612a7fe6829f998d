// Package httpapi exposes the lending engine and its custody book over
// JSON/HTTP.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/peace-bassey/BitTrust/internal/auth"
	"github.com/peace-bassey/BitTrust/internal/ledger"
	"github.com/peace-bassey/BitTrust/internal/lending"
	"github.com/peace-bassey/BitTrust/internal/obs"
	"github.com/peace-bassey/BitTrust/internal/stream"
)

const serviceName = "bittrust-api"

// ReadyProbe checks that the backing database answers.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options wires the API. Engine and Journal are required.
type Options struct {
	Engine        *lending.Engine
	Journal       ledger.Journal
	Stream        *stream.Hub
	Tokens        *auth.Tokens
	Ready         ReadyProbe
	Version       string
	IssueTokens   bool
	TokenTTL      time.Duration
	RateBurst     int
	RatePerSecond float64
	MaxBodyBytes  int64
}

// API is the HTTP layer.
type API struct {
	mux         *http.ServeMux
	handler     http.Handler
	engine      *lending.Engine
	journal     ledger.Journal
	stream      *stream.Hub
	tokens      *auth.Tokens
	readyProbe  ReadyProbe
	version     string
	issueTokens bool
	tokenTTL    time.Duration
	maxBody     int64
}

func New(opts Options) *API {
	a := &API{
		mux:         http.NewServeMux(),
		engine:      opts.Engine,
		journal:     opts.Journal,
		stream:      opts.Stream,
		tokens:      opts.Tokens,
		readyProbe:  opts.Ready,
		version:     opts.Version,
		issueTokens: opts.IssueTokens,
		tokenTTL:    opts.TokenTTL,
		maxBody:     opts.MaxBodyBytes,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = time.Hour
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	burst, perSecond := opts.RateBurst, opts.RatePerSecond
	if burst <= 0 {
		burst = 20
	}
	if perSecond <= 0 {
		perSecond = 10
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/reputation", a.handleInitializeScore)
	a.mux.HandleFunc("GET /v1/reputation/{user}", a.handleGetScore)
	a.mux.HandleFunc("POST /v1/loans", a.handleRequestLoan)
	a.mux.HandleFunc("GET /v1/loans/{id}", a.handleGetLoan)
	a.mux.HandleFunc("POST /v1/loans/{id}/repayments", a.handleRepayLoan)
	a.mux.HandleFunc("POST /v1/loans/{id}/default", a.handleMarkDefaulted)
	a.mux.HandleFunc("GET /v1/users/{user}/loans", a.handleUserLoans)
	a.mux.HandleFunc("GET /v1/treasury", a.handleTreasury)
	a.mux.HandleFunc("GET /v1/quote", a.handleQuote)

	a.mux.HandleFunc("POST /v1/accounts/{id}/deposits", a.handleDeposit)
	a.mux.HandleFunc("GET /v1/accounts/{id}/balance", a.handleBalance)
	a.mux.HandleFunc("GET /v1/custody/transactions", a.handleTransactions)

	a.mux.HandleFunc("GET /v1/events", a.Stream)
	if a.issueTokens {
		a.mux.HandleFunc("POST /v1/auth/token", a.handleAuthToken)
	}

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})

	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, burst, perSecond)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	a.handler = obs.Instrument(h)
	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	return a.handler
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":            serviceName,
		"time":            time.Now().UTC().Format(time.RFC3339),
		"version":         a.version,
		"custody_account": a.engine.CustodyAccount(),
		"limits": map[string]any{
			"min_loan_score":   lending.MinLoanScore,
			"max_active_loans": lending.MaxActiveLoans,
			"max_duration":     lending.MaxDuration,
			"portfolio_size":   lending.PortfolioCapacity,
		},
	})
}
