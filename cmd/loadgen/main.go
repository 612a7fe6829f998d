// Command loadgen drives concurrent lending traffic at a running
// bittrust-api and prints a response summary.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/peace-bassey/BitTrust/internal/loadgen"
)

func main() {
	var (
		baseURL  = flag.String("base-url", "http://localhost:8080", "API base URL")
		workers  = flag.Int("workers", 4, "Concurrent worker count")
		users    = flag.Int("users", 20, "Participants in the borrower pool")
		duration = flag.Duration("duration", 2*time.Minute, "Duration of the run")
		seed     = flag.Int64("seed", 0, "Random seed (0 = time based)")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	scenario := loadgen.BorrowerPool("load", *users)
	log.Printf("Launching load run: base=%s workers=%d users=%d duration=%s", *baseURL, *workers, len(scenario.Users), *duration)

	client := &http.Client{Timeout: 10 * time.Second}
	tokens := make(map[string]string, len(scenario.Users))
	for _, user := range scenario.Users {
		token, err := issueToken(ctx, client, *baseURL, user)
		if err != nil {
			log.Fatalf("issue token for %s: %v", user, err)
		}
		tokens[user] = token
	}

	base := *seed
	if base == 0 {
		base = time.Now().UnixNano()
	}

	var (
		counter loadgen.Counter
		wg      sync.WaitGroup
	)
	deadline := time.Now().Add(*duration)
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			gen := loadgen.NewGenerator(scenario, base+int64(id*9973))
			rnd := rand.New(rand.NewSource(base - int64(id)))
			for time.Now().Before(deadline) {
				select {
				case <-ctx.Done():
					return
				default:
				}
				action := gen.Next()
				status, err := perform(ctx, client, *baseURL, tokens[action.User], action)
				if err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("worker %d %s: %v", id, action.Kind, err)
				}
				counter.Add(action.Kind, status)
				switch {
				case status == http.StatusTooManyRequests:
					time.Sleep(250 * time.Millisecond)
				case status >= 500:
					log.Printf("worker %d %s failed: %d", id, action.Kind, status)
					time.Sleep(200 * time.Millisecond)
				default:
					time.Sleep(time.Duration(20+rnd.Intn(80)) * time.Millisecond)
				}
			}
		}(i)
	}
	wg.Wait()

	log.Printf("Run complete: %s", counter.Snapshot())
}

func perform(ctx context.Context, client *http.Client, baseURL, token string, a loadgen.Action) (int, error) {
	var (
		method = http.MethodGet
		path   string
		body   any
	)
	switch a.Kind {
	case loadgen.Quote:
		path = "/v1/quote?" + url.Values{
			"amount": {strconv.FormatUint(a.Amount, 10)},
			"score":  {strconv.FormatUint(a.Score, 10)},
		}.Encode()
	case loadgen.InitializeScore:
		method, path = http.MethodPost, "/v1/reputation"
	case loadgen.RequestLoan:
		method, path = http.MethodPost, "/v1/loans"
		body = map[string]any{"amount": a.Amount, "collateral": a.Collateral, "duration": a.Duration}
	case loadgen.ReadScore:
		path = "/v1/reputation/" + url.PathEscape(a.User)
	case loadgen.ReadLoan:
		path = "/v1/loans/" + strconv.FormatUint(a.LoanID, 10)
	case loadgen.ReadTreasury:
		path = "/v1/treasury"
	default:
		return 0, fmt.Errorf("unknown action %s", a.Kind)
	}

	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, rdr)
	if err != nil {
		return 0, err
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

func issueToken(ctx context.Context, client *http.Client, baseURL, user string) (string, error) {
	body, _ := json.Marshal(map[string]any{"user": user})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint: %s", resp.Status)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("empty token returned")
	}
	return out.Token, nil
}
