// Package config loads service settings from the environment.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// InsecureSecret is the development signing secret used when none is set.
const InsecureSecret = "dev-insecure-secret-change-me"

type Config struct {
	Env      string
	HTTPAddr string
	GRPCAddr string
	PGDSN    string

	AdminPrincipal string
	AuthSecret     string
	AuthIssuer     string
	TokenTTL       time.Duration
	IssueTokens    bool

	RateBurst     int
	RatePerSecond float64
	MaxBodyBytes  int64

	Genesis        time.Time
	BlockInterval  time.Duration
	CustodyAccount string

	ShutdownTimeout time.Duration
}

func Load() Config {
	return Config{
		Env:      getEnv("BITTRUST_ENV", "local"),
		HTTPAddr: getEnv("BITTRUST_HTTP_ADDR", ":8080"),
		GRPCAddr: getEnv("BITTRUST_GRPC_ADDR", ":9091"),
		PGDSN:    getEnv("BITTRUST_PG_DSN", ""),

		AdminPrincipal: strings.TrimSpace(getEnv("BITTRUST_ADMIN_PRINCIPAL", "")),
		AuthSecret:     getEnv("BITTRUST_AUTH_SECRET", InsecureSecret),
		AuthIssuer:     getEnv("BITTRUST_AUTH_ISSUER", "bittrust"),
		TokenTTL:       getEnvDuration("BITTRUST_TOKEN_TTL", time.Hour),
		IssueTokens:    getEnvBool("BITTRUST_ISSUE_TOKENS", false),

		RateBurst:     getEnvInt("BITTRUST_RATE_BURST", 20),
		RatePerSecond: getEnvFloat("BITTRUST_RATE_PER_SEC", 10),
		MaxBodyBytes:  int64(getEnvInt("BITTRUST_MAX_BODY_BYTES", 1<<20)),

		Genesis:        getEnvTime("BITTRUST_GENESIS", time.Time{}),
		BlockInterval:  getEnvDuration("BITTRUST_BLOCK_INTERVAL", 10*time.Minute),
		CustodyAccount: getEnv("BITTRUST_CUSTODY_ACCOUNT", "custody"),

		ShutdownTimeout: getEnvDuration("BITTRUST_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Production reports whether dev-only surfaces must stay off.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production")
}

// Validate rejects settings the server must not start with. Loan due
// heights are persisted by the PostgreSQL store, so its clock needs a fixed
// genesis that survives restarts.
func (c Config) Validate() error {
	var errs []error
	if c.PGDSN != "" && c.Genesis.IsZero() {
		errs = append(errs, errors.New("BITTRUST_GENESIS must be set (RFC3339) when BITTRUST_PG_DSN is set"))
	}
	if c.BlockInterval <= 0 {
		errs = append(errs, errors.New("BITTRUST_BLOCK_INTERVAL must be positive"))
	}
	if c.Production() {
		if c.IssueTokens {
			errs = append(errs, errors.New("BITTRUST_ISSUE_TOKENS must be off in production"))
		}
		if c.AuthSecret == InsecureSecret {
			errs = append(errs, errors.New("BITTRUST_AUTH_SECRET must be set in production"))
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvTime(key string, fallback time.Time) time.Time {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
			return t
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		n := strings.ToLower(strings.TrimSpace(v))
		return n == "1" || n == "true" || n == "yes"
	}
	return fallback
}
