package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/peace-bassey/BitTrust/internal/auth"
	"github.com/peace-bassey/BitTrust/internal/clock"
	"github.com/peace-bassey/BitTrust/internal/config"
	"github.com/peace-bassey/BitTrust/internal/grpcapi"
	"github.com/peace-bassey/BitTrust/internal/httpapi"
	"github.com/peace-bassey/BitTrust/internal/ledger"
	"github.com/peace-bassey/BitTrust/internal/lending"
	"github.com/peace-bassey/BitTrust/internal/obs"
	"github.com/peace-bassey/BitTrust/internal/store/memory"
	"github.com/peace-bassey/BitTrust/internal/store/pg"
	"github.com/peace-bassey/BitTrust/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store   lending.Store
		journal ledger.Journal
		probe   httpapi.ReadyProbe
		closeDB func() error
	)
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store, journal, closeDB = pgStore, pgStore, pgStore.Close
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		memStore := memory.New(nil)
		store, journal = memStore, memStore.Book()
		obs.LogEvent("warn", "using in-memory store", map[string]any{"env": cfg.Env})
	}

	genesis := cfg.Genesis
	if genesis.IsZero() {
		genesis = time.Now().UTC()
		// only the in-memory store gets here; its loans die with the process
		obs.LogEvent("warn", "BITTRUST_GENESIS unset, heights start at process start", map[string]any{
			"genesis": genesis.Format(time.RFC3339),
		})
	}
	if cfg.AdminPrincipal == "" {
		obs.LogEvent("warn", "no admin principal configured, defaults and deposits are disabled", nil)
	}

	hub := stream.New()
	engine := lending.NewEngine(store, clock.NewTicker(genesis, cfg.BlockInterval), cfg.AdminPrincipal,
		lending.WithCustodyAccount(cfg.CustodyAccount),
		lending.WithEventSink(hub),
		lending.WithEventSink(obs.LendingMetrics{}),
	)

	tokens, err := auth.NewTokens(cfg.AuthSecret, cfg.AuthIssuer)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	api := httpapi.New(httpapi.Options{
		Engine:        engine,
		Journal:       journal,
		Stream:        hub,
		Tokens:        tokens,
		Ready:         probe,
		Version:       version,
		IssueTokens:   cfg.IssueTokens,
		TokenTTL:      cfg.TokenTTL,
		RateBurst:     cfg.RateBurst,
		RatePerSecond: cfg.RatePerSecond,
		MaxBodyBytes:  cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcapi.LoggingInterceptor))
	health := grpcapi.Register(grpcSrv, grpcapi.NewServer(engine))
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("grpc listen: %v", err)
	}

	obs.LogEvent("info", "starting bittrust-api", map[string]any{
		"version":   version,
		"http_addr": cfg.HTTPAddr,
		"grpc_addr": cfg.GRPCAddr,
		"env":       cfg.Env,
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	obs.LogEvent("info", "shutting down", nil)
	obs.SetReady(false)
	health.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// SSE subscribers hold requests open; Shutdown waits for them up to the
	// deadline, then Close cuts them.
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	grpcSrv.GracefulStop()
	if closeDB != nil {
		_ = closeDB()
	}
	obs.LogEvent("info", "stopped", nil)
}
