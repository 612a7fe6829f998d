package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/peace-bassey/BitTrust/internal/auth"
	"github.com/peace-bassey/BitTrust/internal/clock"
	"github.com/peace-bassey/BitTrust/internal/lending"
	"github.com/peace-bassey/BitTrust/internal/store/memory"
	"github.com/peace-bassey/BitTrust/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	store   *memory.Store
	clock   *clock.Manual
	t       *testing.T
}

func newTestAPI(t *testing.T, issueTokens bool) *apiClient {
	t.Helper()

	tokens, err := auth.NewTokens("test-secret", "")
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	store := memory.New(nil)
	clk := clock.NewManual(1000)
	hub := stream.New()
	engine := lending.NewEngine(store, clk, "admin", lending.WithEventSink(hub))

	api := New(Options{
		Engine:        engine,
		Journal:       store.Book(),
		Stream:        hub,
		Tokens:        tokens,
		Version:       "test",
		IssueTokens:   issueTokens,
		RateBurst:     1000,
		RatePerSecond: 1000,
	})

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		store:   store,
		clock:   clk,
		t:       t,
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	resp, err := c.client.Get(u.String())
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(user string) map[string]string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{"user": user}, nil)
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	payload := decode[tokenResponse](c.t, resp)
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return map[string]string{"Authorization": "Bearer " + payload.Token}
}

// setScore bypasses the engine to give user a borrowing score.
func (c *apiClient) setScore(user string, score uint64) {
	c.t.Helper()
	err := c.store.Update(context.Background(), func(ctx context.Context, tx lending.Tx) error {
		rec, _, err := tx.Reputation(ctx, user)
		if err != nil {
			return err
		}
		rec.Score = score
		return tx.PutReputation(ctx, user, rec)
	})
	if err != nil {
		c.t.Fatalf("set score: %v", err)
	}
}

func (c *apiClient) fund(admin map[string]string, account string, amount uint64) {
	c.t.Helper()
	resp := c.post("/v1/accounts/"+account+"/deposits", map[string]any{"amount": amount}, admin)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("deposit to %s: status %d", account, resp.StatusCode)
	}
	resp.Body.Close()
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body := decode[map[string]any](t, resp)
		t.Fatalf("expected status %d, got %d: %v", want, resp.StatusCode, body)
	}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t, true)

	resp := api.get("/healthz", nil)
	expectStatus(t, resp, http.StatusOK)
	health := decode[map[string]any](t, resp)
	if health["status"] != "ok" || health["version"] != "test" {
		t.Fatalf("unexpected health: %v", health)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}

	resp = api.get("/readyz", nil)
	expectStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	resp = api.get("/v1/info", nil)
	expectStatus(t, resp, http.StatusOK)
	info := decode[map[string]any](t, resp)
	if info["custody_account"] != lending.DefaultCustodyAccount {
		t.Fatalf("unexpected custody account: %v", info["custody_account"])
	}
}

func TestLoanLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t, true)
	admin := api.obtainToken("admin")
	alice := api.obtainToken("alice")

	api.fund(admin, lending.DefaultCustodyAccount, 100_000_000)
	api.fund(admin, "alice", 720_000)

	resp := api.post("/v1/reputation", nil, alice)
	expectStatus(t, resp, http.StatusCreated)
	score := decode[map[string]any](t, resp)
	if score["score"].(float64) != 50 || score["user"] != "alice" {
		t.Fatalf("unexpected initial score: %v", score)
	}
	api.setScore("alice", 70)

	resp = api.post("/v1/loans", map[string]any{
		"amount":     1_000_000,
		"collateral": 650_000,
		"duration":   100,
	}, alice)
	expectStatus(t, resp, http.StatusCreated)
	if resp.Header.Get("Location") != "/v1/loans/1" {
		t.Fatalf("unexpected location: %q", resp.Header.Get("Location"))
	}
	loan := decode[loanResponse](t, resp)
	if loan.ID != 1 || loan.InterestRate != 7 || loan.TotalDue != 1_070_000 || loan.DueAt != 1100 {
		t.Fatalf("unexpected loan: %+v", loan)
	}
	if loan.Status != lending.StatusActive || loan.Outstanding != 1_070_000 {
		t.Fatalf("unexpected loan state: %+v", loan)
	}

	resp = api.get("/v1/treasury", nil)
	expectStatus(t, resp, http.StatusOK)
	treasury := decode[map[string]any](t, resp)
	if treasury["collateral"].(float64) != 650_000 {
		t.Fatalf("unexpected treasury: %v", treasury)
	}

	resp = api.post("/v1/loans/1/repayments", map[string]any{"amount": 70_000}, alice)
	expectStatus(t, resp, http.StatusOK)
	loan = decode[loanResponse](t, resp)
	if loan.Outstanding != 1_000_000 || loan.Status != lending.StatusActive {
		t.Fatalf("unexpected partial repayment result: %+v", loan)
	}

	resp = api.post("/v1/loans/1/repayments", map[string]any{"amount": 1_000_000}, alice)
	expectStatus(t, resp, http.StatusOK)
	loan = decode[loanResponse](t, resp)
	if loan.Status != lending.StatusRepaid || loan.Outstanding != 0 {
		t.Fatalf("expected repaid loan, got %+v", loan)
	}

	resp = api.get("/v1/reputation/alice", nil)
	expectStatus(t, resp, http.StatusOK)
	score = decode[map[string]any](t, resp)
	if score["score"].(float64) != 72 || score["loans_repaid"].(float64) != 1 {
		t.Fatalf("unexpected score after repayment: %v", score)
	}

	resp = api.get("/v1/accounts/alice/balance", nil)
	expectStatus(t, resp, http.StatusOK)
	bal := decode[map[string]any](t, resp)
	if bal["balance"].(float64) != 650_000 {
		t.Fatalf("collateral not returned: %v", bal)
	}

	resp = api.get("/v1/users/alice/loans", nil)
	expectStatus(t, resp, http.StatusOK)
	loans := decode[userLoansResponse](t, resp)
	if len(loans.LoanIDs) != 1 || len(loans.Loans) != 1 || loans.Loans[0].Status != lending.StatusRepaid {
		t.Fatalf("unexpected portfolio: %+v", loans)
	}

	resp = api.get("/v1/custody/transactions", url.Values{"limit": []string{"2"}})
	expectStatus(t, resp, http.StatusOK)
	page := decode[transactionsResponse](t, resp)
	if len(page.Items) != 2 || page.NextAfter != page.Items[1].Sequence {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestLendingErrorsMapToStatus(t *testing.T) {
	api := newTestAPI(t, true)
	alice := api.obtainToken("alice")

	resp := api.post("/v1/loans", map[string]any{"amount": 1, "collateral": 1, "duration": 1}, nil)
	expectStatus(t, resp, http.StatusUnauthorized)
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}

	resp = api.post("/v1/reputation", nil, alice)
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = api.post("/v1/reputation", nil, alice)
	expectStatus(t, resp, http.StatusConflict)
	body := decode[map[string]any](t, resp)
	if body["kind"] != "already_initialized" || body["request_id"] == "" {
		t.Fatalf("unexpected error body: %v", body)
	}

	resp = api.post("/v1/loans", map[string]any{"amount": 1000, "collateral": 1000, "duration": 10}, alice)
	expectStatus(t, resp, http.StatusUnprocessableEntity)
	body = decode[map[string]any](t, resp)
	if body["kind"] != "insufficient_score" {
		t.Fatalf("unexpected kind: %v", body)
	}

	resp = api.post("/v1/loans", map[string]any{"amount": 1000, "extra": true}, alice)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.get("/v1/loans/abc", nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.get("/v1/loans/0", nil)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.get("/v1/loans/42", nil)
	expectStatus(t, resp, http.StatusNotFound)
	body = decode[map[string]any](t, resp)
	if body["kind"] != "loan_not_found" {
		t.Fatalf("unexpected kind: %v", body)
	}

	resp = api.get("/v1/reputation/nobody", nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestMarkDefaultedRequiresAdmin(t *testing.T) {
	api := newTestAPI(t, true)
	admin := api.obtainToken("admin")
	alice := api.obtainToken("alice")
	bob := api.obtainToken("bob")

	api.fund(admin, lending.DefaultCustodyAccount, 10_000_000)
	api.fund(admin, "alice", 1_000_000)
	resp := api.post("/v1/reputation", nil, alice)
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()
	api.setScore("alice", 80)

	resp = api.post("/v1/loans", map[string]any{"amount": 100_000, "collateral": 60_000, "duration": 10}, alice)
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = api.post("/v1/loans/1/default", nil, admin)
	expectStatus(t, resp, http.StatusConflict)
	body := decode[map[string]any](t, resp)
	if body["kind"] != "not_due" {
		t.Fatalf("unexpected kind: %v", body)
	}

	api.clock.Advance(11)

	resp = api.post("/v1/loans/1/default", nil, bob)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = api.post("/v1/loans/1/default", nil, admin)
	expectStatus(t, resp, http.StatusOK)
	loan := decode[loanResponse](t, resp)
	if loan.Status != lending.StatusDefaulted {
		t.Fatalf("expected defaulted loan, got %+v", loan)
	}

	resp = api.post("/v1/loans/1/repayments", map[string]any{"amount": 1}, alice)
	expectStatus(t, resp, http.StatusConflict)
	resp.Body.Close()

	resp = api.get("/v1/reputation/alice", nil)
	score := decode[map[string]any](t, resp)
	if score["score"].(float64) != 70 {
		t.Fatalf("unexpected score after default: %v", score)
	}
}

func TestQuote(t *testing.T) {
	api := newTestAPI(t, true)

	resp := api.get("/v1/quote", url.Values{"amount": []string{"1000000"}, "score": []string{"70"}})
	expectStatus(t, resp, http.StatusOK)
	terms := decode[lending.Terms](t, resp)
	if terms.Collateral != 650_000 || terms.InterestRate != 7 || terms.TotalDue != 1_070_000 {
		t.Fatalf("unexpected terms: %+v", terms)
	}

	resp = api.get("/v1/quote", url.Values{"amount": []string{"1000"}, "score": []string{"49"}})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.get("/v1/quote", url.Values{"amount": []string{"1000"}})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = api.get("/v1/quote", url.Values{"amount": []string{"1000"}, "user": []string{"ghost"}})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestDepositRequiresAdmin(t *testing.T) {
	api := newTestAPI(t, true)
	alice := api.obtainToken("alice")
	admin := api.obtainToken("admin")

	resp := api.post("/v1/accounts/alice/deposits", map[string]any{"amount": 10}, alice)
	expectStatus(t, resp, http.StatusForbidden)
	resp.Body.Close()

	resp = api.post("/v1/accounts/alice/deposits", map[string]any{"amount": 0}, admin)
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestTokenEndpointOnlyWhenIssuing(t *testing.T) {
	api := newTestAPI(t, false)
	resp := api.post("/v1/auth/token", map[string]any{"user": "alice"}, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestStreamDeliversUserEvents(t *testing.T) {
	api := newTestAPI(t, true)
	alice := api.obtainToken("alice")
	bob := api.obtainToken("bob")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL+"/v1/events?user=alice", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := api.client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": stream started") {
		t.Fatalf("unexpected preamble %q: %v", line, err)
	}

	for _, h := range []map[string]string{bob, alice} {
		r := api.post("/v1/reputation", nil, h)
		expectStatus(t, r, http.StatusCreated)
		r.Body.Close()
	}

	for {
		line, err = reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var evt lending.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if evt.User != "alice" || evt.Kind != lending.EventScoreInitialized {
			t.Fatalf("unexpected event: %+v", evt)
		}
		return
	}
}
