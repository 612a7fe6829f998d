// Package remote reads lending state from a BitTrust gRPC endpoint.
package remote

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/peace-bassey/BitTrust/internal/audit"
	"github.com/peace-bassey/BitTrust/internal/grpcapi"
	"github.com/peace-bassey/BitTrust/internal/lending"
	"github.com/peace-bassey/BitTrust/internal/portfolio"
	"github.com/peace-bassey/BitTrust/internal/reputation"
)

// Client wraps a connection to the lending query service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client. Without options the transport is insecure.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn *grpc.ClientConn) *Client { return &Client{conn: conn} }

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Healthy reports whether the query service answers SERVING.
func (c *Client) Healthy(ctx context.Context) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: grpcapi.ServiceName})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return errors.New("lending query service not serving: " + resp.GetStatus().String())
	}
	return nil
}

func (c *Client) Loan(ctx context.Context, id uint64) (lending.Loan, bool, error) {
	resp, err := c.invoke(ctx, grpcapi.MethodGetLoan, grpcapi.LoanIDRequest(id))
	if err != nil {
		if errors.Is(err, lending.ErrLoanNotFound) {
			return lending.Loan{}, false, nil
		}
		return lending.Loan{}, false, err
	}
	loan, err := grpcapi.DecodeLoan(resp)
	if err != nil {
		return lending.Loan{}, false, err
	}
	return loan, true, nil
}

func (c *Client) UserScore(ctx context.Context, user string) (reputation.Record, bool, error) {
	resp, err := c.invoke(ctx, grpcapi.MethodGetUserScore, grpcapi.UserRequest(user))
	if status.Code(err) == codes.NotFound {
		return reputation.Record{}, false, nil
	}
	if err != nil {
		return reputation.Record{}, false, err
	}
	rec, err := grpcapi.DecodeRecord(resp)
	if err != nil {
		return reputation.Record{}, false, err
	}
	return rec, true, nil
}

func (c *Client) UserLoans(ctx context.Context, user string) (portfolio.Entry, bool, error) {
	resp, err := c.invoke(ctx, grpcapi.MethodGetUserLoans, grpcapi.UserRequest(user))
	if err != nil {
		return portfolio.Entry{}, false, err
	}
	entry, err := grpcapi.DecodeEntry(resp)
	if err != nil {
		return portfolio.Entry{}, false, err
	}
	return entry, entry.Len() > 0, nil
}

func (c *Client) Treasury(ctx context.Context) (uint64, error) {
	resp, err := c.invoke(ctx, grpcapi.MethodGetTreasury, &structpb.Struct{})
	if err != nil {
		return 0, err
	}
	return grpcapi.Uint(resp, "collateral")
}

func (c *Client) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	if rid := audit.RequestIDFromContext(ctx); rid != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, grpcapi.RequestIDKey, rid)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, req, resp); err != nil {
		return nil, mapLendingError(err)
	}
	return resp, nil
}

var byKind = func() map[string]error {
	m := make(map[string]error)
	for _, err := range []error{
		lending.ErrUnauthorized,
		lending.ErrAlreadyInitialized,
		lending.ErrInsufficientScore,
		lending.ErrActiveLoanLimitExceeded,
		lending.ErrInvalidAmount,
		lending.ErrInvalidDuration,
		lending.ErrInsufficientCollateral,
		lending.ErrLoanNotFound,
		lending.ErrLoanDefaulted,
		lending.ErrNotDue,
		lending.ErrInvalidLoanID,
		lending.ErrInvalidScore,
		lending.ErrCapacityExceeded,
		lending.ErrTransferFailed,
	} {
		m[lending.Kind(err)] = err
	}
	return m
}()

// mapLendingError turns a status carrying a lending ErrorInfo back into the
// matching sentinel, keeping the status as the wrapped cause.
func mapLendingError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != grpcapi.ErrorDomain {
			continue
		}
		if sentinel, ok := byKind[info.GetReason()]; ok {
			return &Error{Sentinel: sentinel, Status: st}
		}
	}
	return err
}

// Error is a lending error received from the server.
type Error struct {
	Sentinel error
	Status   *status.Status
}

func (e *Error) Error() string { return e.Status.Message() }

func (e *Error) Unwrap() []error { return []error{e.Sentinel, e.Status.Err()} }

// GRPCStatus lets status.FromError see through the mapping.
func (e *Error) GRPCStatus() *status.Status { return e.Status }

// WithTimeout returns a context with a default timeout for CLI tools.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
