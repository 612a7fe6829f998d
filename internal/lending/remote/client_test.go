package remote

import (
	"context"
	"errors"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/peace-bassey/BitTrust/internal/clock"
	"github.com/peace-bassey/BitTrust/internal/grpcapi"
	"github.com/peace-bassey/BitTrust/internal/lending"
	"github.com/peace-bassey/BitTrust/internal/store/memory"
)

type fixture struct {
	client *Client
	engine *lending.Engine
	store  *memory.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New(nil)
	engine := lending.NewEngine(store, clock.NewManual(500), "admin")

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(grpcapi.LoggingInterceptor))
	grpcapi.Register(srv, grpcapi.NewServer(engine))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return &fixture{client: client, engine: engine, store: store}
}

// borrow issues a 100000 loan to user at score 90.
func (f *fixture) borrow(t *testing.T, user string) uint64 {
	t.Helper()
	ctx := context.Background()
	if _, err := f.store.Book().Deposit(ctx, lending.DefaultCustodyAccount, 1_000_000); err != nil {
		t.Fatalf("fund custody: %v", err)
	}
	if _, err := f.store.Book().Deposit(ctx, user, 100_000); err != nil {
		t.Fatalf("fund %s: %v", user, err)
	}
	if err := f.engine.InitializeScore(ctx, user); err != nil {
		t.Fatalf("InitializeScore: %v", err)
	}
	err := f.store.Update(ctx, func(ctx context.Context, tx lending.Tx) error {
		rec, _, err := tx.Reputation(ctx, user)
		if err != nil {
			return err
		}
		rec.Score = 90
		return tx.PutReputation(ctx, user, rec)
	})
	if err != nil {
		t.Fatalf("set score: %v", err)
	}
	id, err := f.engine.RequestLoan(ctx, user, 100_000, 55_000, 20)
	if err != nil {
		t.Fatalf("RequestLoan: %v", err)
	}
	return id
}

func TestQueriesOverGRPC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.borrow(t, "alice")

	if err := f.client.Healthy(ctx); err != nil {
		t.Fatalf("Healthy: %v", err)
	}

	loan, ok, err := f.client.Loan(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Loan: ok=%v err=%v", ok, err)
	}
	want, _, _ := f.engine.Loan(ctx, id)
	if loan != want {
		t.Fatalf("loan mismatch:\n got %+v\nwant %+v", loan, want)
	}

	rec, ok, err := f.client.UserScore(ctx, "alice")
	if err != nil || !ok || rec.Score != 90 {
		t.Fatalf("UserScore: %+v ok=%v err=%v", rec, ok, err)
	}

	entry, ok, err := f.client.UserLoans(ctx, "alice")
	if err != nil || !ok || len(entry.LoanIDs) != 1 || entry.LoanIDs[0] != id {
		t.Fatalf("UserLoans: %+v ok=%v err=%v", entry, ok, err)
	}

	total, err := f.client.Treasury(ctx)
	if err != nil || total != 55_000 {
		t.Fatalf("Treasury: %d err=%v", total, err)
	}
}

func TestAbsenceIsNotAnError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, ok, err := f.client.Loan(ctx, 7); ok || err != nil {
		t.Fatalf("Loan: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.client.UserScore(ctx, "ghost"); ok || err != nil {
		t.Fatalf("UserScore: ok=%v err=%v", ok, err)
	}
	if _, ok, err := f.client.UserLoans(ctx, "ghost"); ok || err != nil {
		t.Fatalf("UserLoans: ok=%v err=%v", ok, err)
	}
}

func TestInvalidLoanIDMapsBack(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.client.Loan(context.Background(), 0)
	if !errors.Is(err, lending.ErrInvalidLoanID) {
		t.Fatalf("expected ErrInvalidLoanID, got %v", err)
	}
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", status.Code(err))
	}
}

func TestMapLendingError(t *testing.T) {
	cases := []error{
		lending.ErrUnauthorized,
		lending.ErrNotDue,
		lending.ErrLoanDefaulted,
		lending.ErrInsufficientCollateral,
		lending.ErrTransferFailed,
	}
	for _, sentinel := range cases {
		err := mapLendingError(grpcapi.Status(sentinel))
		if !errors.Is(err, sentinel) {
			t.Fatalf("%v: mapped to %v", sentinel, err)
		}
	}

	plain := status.Error(codes.Unavailable, "down")
	if got := mapLendingError(plain); got != plain {
		t.Fatalf("status without details should pass through, got %v", got)
	}
	if got := mapLendingError(grpcapi.Status(errors.New("disk on fire"))); status.Code(got) != codes.Internal {
		t.Fatalf("expected Internal, got %v", got)
	}
}
