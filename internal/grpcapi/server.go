// Package grpcapi serves read-only lending queries over gRPC.
package grpcapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/peace-bassey/BitTrust/internal/audit"
	"github.com/peace-bassey/BitTrust/internal/lending"
	"github.com/peace-bassey/BitTrust/internal/obs"
)

const (
	ServiceName = "bittrust.v1.LendingQuery"

	// ErrorDomain tags the ErrorInfo detail carried by lending errors.
	ErrorDomain = "lending.bittrust"

	MethodGetLoan      = "/" + ServiceName + "/GetLoan"
	MethodGetUserScore = "/" + ServiceName + "/GetUserScore"
	MethodGetUserLoans = "/" + ServiceName + "/GetUserLoans"
	MethodGetTreasury  = "/" + ServiceName + "/GetTreasury"

	// RequestIDKey is the metadata key carrying the caller's request id.
	RequestIDKey = "x-request-id"
)

// LendingQuery is the query service contract.
type LendingQuery interface {
	GetLoan(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetUserScore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetUserLoans(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetTreasury(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes LendingQuery for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LendingQuery)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetLoan", LendingQuery.GetLoan),
		unary("GetUserScore", LendingQuery.GetUserScore),
		unary("GetUserLoans", LendingQuery.GetUserLoans),
		unary("GetTreasury", LendingQuery.GetTreasury),
	},
	Metadata: "bittrust/v1/lending_query.proto",
}

func unary(name string, call func(LendingQuery, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LendingQuery), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(LendingQuery), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// Server answers queries from the engine's committed state.
type Server struct {
	engine *lending.Engine
}

var _ LendingQuery = (*Server)(nil)

func NewServer(engine *lending.Engine) *Server {
	return &Server{engine: engine}
}

// Register adds the query service and a health service to s. The returned
// health server reports SERVING for the query service until shut down.
func Register(s *grpc.Server, srv *Server) *health.Server {
	s.RegisterService(&ServiceDesc, srv)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

func (s *Server) GetLoan(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := Uint(in, "id")
	if err != nil || id == 0 {
		return nil, Status(lending.ErrInvalidLoanID)
	}
	loan, ok, err := s.engine.Loan(ctx, id)
	if err != nil {
		return nil, Status(err)
	}
	if !ok {
		return nil, Status(lending.ErrLoanNotFound)
	}
	return EncodeLoan(loan), nil
}

func (s *Server) GetUserScore(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	user := strings.TrimSpace(String(in, "user"))
	if user == "" {
		return nil, status.Error(codes.InvalidArgument, "user is required")
	}
	rec, ok, err := s.engine.UserScore(ctx, user)
	if err != nil {
		return nil, Status(err)
	}
	if !ok {
		return nil, status.Errorf(codes.NotFound, "reputation for %q not initialized", user)
	}
	return EncodeRecord(user, rec), nil
}

func (s *Server) GetUserLoans(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	user := strings.TrimSpace(String(in, "user"))
	if user == "" {
		return nil, status.Error(codes.InvalidArgument, "user is required")
	}
	entry, _, err := s.engine.UserLoans(ctx, user)
	if err != nil {
		return nil, Status(err)
	}
	return EncodeEntry(user, entry), nil
}

func (s *Server) GetTreasury(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	total, err := s.engine.Treasury(ctx)
	if err != nil {
		return nil, Status(err)
	}
	return EncodeTreasury(total, s.engine.CustodyAccount()), nil
}

// Status converts a lending error into a gRPC status. Known lending errors
// carry their kind as an ErrorInfo reason.
func Status(err error) error {
	if err == nil {
		return nil
	}
	kind := lending.Kind(err)
	if kind == "internal" {
		if errors.Is(err, context.Canceled) {
			return status.Error(codes.Canceled, err.Error())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return status.Error(codes.DeadlineExceeded, err.Error())
		}
		return status.Error(codes.Internal, "internal error")
	}
	st := status.New(codeFor(err), err.Error())
	if withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: kind, Domain: ErrorDomain}); derr == nil {
		st = withInfo
	}
	return st.Err()
}

func codeFor(err error) codes.Code {
	switch {
	case errors.Is(err, lending.ErrInvalidLoanID),
		errors.Is(err, lending.ErrInvalidAmount),
		errors.Is(err, lending.ErrInvalidDuration),
		errors.Is(err, lending.ErrInvalidScore):
		return codes.InvalidArgument
	case errors.Is(err, lending.ErrLoanNotFound):
		return codes.NotFound
	case errors.Is(err, lending.ErrUnauthorized):
		return codes.PermissionDenied
	case errors.Is(err, lending.ErrAlreadyInitialized):
		return codes.AlreadyExists
	case errors.Is(err, lending.ErrTransferFailed):
		return codes.Aborted
	default:
		return codes.FailedPrecondition
	}
}

// LoggingInterceptor writes one JSON line per call and carries the caller's
// request id into the handler context.
func LoggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDKey); len(v) > 0 {
			ctx = audit.WithRequestID(ctx, v[0])
		}
	}
	resp, err := handler(ctx, req)
	code := status.Code(err)
	level := "info"
	if code == codes.Internal || code == codes.Unknown {
		level = "error"
	}
	obs.LogEvent(level, "grpc_request", map[string]any{
		"method":      info.FullMethod,
		"code":        code.String(),
		"request_id":  audit.RequestIDFromContext(ctx),
		"duration_ms": float64(time.Since(start).Microseconds()) / 1000,
	})
	return resp, err
}
