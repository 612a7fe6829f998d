// Command smoke-lending drives one loan end to end against a running
// bittrust-api: HTTP for the writes, gRPC for reading state back.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/peace-bassey/BitTrust/internal/ids"
	"github.com/peace-bassey/BitTrust/internal/lending"
	"github.com/peace-bassey/BitTrust/internal/lending/remote"
)

type client struct {
	base string
	http *http.Client
}

func main() {
	httpAddr := flag.String("http", envOr("BITTRUST_SMOKE_HTTP", "http://localhost:8080"), "API base URL")
	grpcAddr := flag.String("grpc", envOr("BITTRUST_SMOKE_GRPC", "localhost:9091"), "gRPC address")
	admin := flag.String("admin", envOr("BITTRUST_ADMIN_PRINCIPAL", "admin"), "admin principal")
	flag.Parse()

	c := &client{base: *httpAddr, http: &http.Client{Timeout: 5 * time.Second}}
	rc, err := remote.Dial(*grpcAddr)
	if err != nil {
		log.Fatalf("dial %s: %v", *grpcAddr, err)
	}
	defer rc.Close()

	ctx, cancel := remote.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rc.Healthy(ctx); err != nil {
		log.Fatalf("grpc health: %v", err)
	}

	borrower := "smoke-" + ids.New()
	adminTok := c.token(*admin)
	userTok := c.token(borrower)

	c.must("POST", "/v1/reputation", userTok, nil, http.StatusCreated, nil)

	// A fresh participant sits below the loan threshold; the rejection
	// itself is the smoke check for pricing and eligibility.
	var rejected map[string]any
	c.must("POST", "/v1/loans", userTok, map[string]any{
		"amount": 1000, "collateral": 1000, "duration": 10,
	}, http.StatusUnprocessableEntity, &rejected)
	if rejected["kind"] != "insufficient_score" {
		log.Fatalf("unexpected rejection: %v", rejected)
	}

	c.must("POST", "/v1/accounts/"+borrower+"/deposits", adminTok, map[string]any{"amount": 5000}, http.StatusCreated, nil)

	rec, ok, err := rc.UserScore(ctx, borrower)
	if err != nil || !ok {
		log.Fatalf("score over grpc: ok=%v err=%v", ok, err)
	}
	if rec.Score != lending.MinScore {
		log.Fatalf("unexpected initial score %d", rec.Score)
	}
	if _, ok, err := rc.Loan(ctx, 1<<62); ok || err != nil {
		log.Fatalf("absent loan: ok=%v err=%v", ok, err)
	}
	treasury, err := rc.Treasury(ctx)
	if err != nil {
		log.Fatalf("treasury: %v", err)
	}

	var bal map[string]any
	c.must("GET", "/v1/accounts/"+borrower+"/balance", "", nil, http.StatusOK, &bal)
	if bal["balance"].(float64) != 5000 {
		log.Fatalf("unexpected balance: %v", bal)
	}

	fmt.Printf("smoke test passed: borrower=%s score=%d treasury=%s\n",
		borrower, rec.Score, strconv.FormatUint(treasury, 10))
}

func (c *client) token(user string) string {
	var resp struct {
		Token string `json:"token"`
	}
	c.must("POST", "/v1/auth/token", "", map[string]any{"user": user}, http.StatusOK, &resp)
	return resp.Token
}

func (c *client) must(method, path, token string, body any, want int, out any) {
	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.base+path, rdr)
	if err != nil {
		log.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		log.Fatalf("%s %s: expected %d, got %d: %s", method, path, want, resp.StatusCode, data)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			log.Fatalf("decode %s: %v", path, err)
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
