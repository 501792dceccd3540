package fetch

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/otherjamesbrown/mentionkit/config"
	mkerrors "github.com/otherjamesbrown/mentionkit/pkg/errors"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/directory"
)

// Server exposes a directory.Fetcher over the same RPC GRPCFetcher calls.
type Server struct {
	fetcher directory.Fetcher
	token   string
	log     logging.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// RequireToken rejects calls that do not carry "Bearer <token>".
func RequireToken(token string) ServerOption {
	return func(s *Server) { s.token = token }
}

// WithServerLogger sets the server logger.
func WithServerLogger(l logging.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// NewServer wraps f.
func NewServer(f directory.Fetcher, opts ...ServerOption) *Server {
	s := &Server{fetcher: f, log: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds the service to gs under method, which must have the form
// "/package.Service/Method".
func (s *Server) Register(gs *grpc.Server, method string) {
	if method == "" {
		method = config.DefaultRPCMethod
	}
	service, name := splitMethod(method)

	gs.RegisterService(&grpc.ServiceDesc{
		ServiceName: service,
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: name,
			Handler:    s.handle(method),
		}},
		Streams: []grpc.StreamDesc{},
	}, s)
}

func (s *Server) handle(fullMethod string) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(_ interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return s.list(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: s, FullMethod: fullMethod}
		return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
			return s.list(ctx, req.(*structpb.Struct))
		})
	}
}

func (s *Server) list(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}

	scope, err := decodeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.fetcher.FetchMentionCandidates(ctx, scope)
	if err != nil {
		s.log.Warn("serving candidates failed", logging.F("scope", scope), logging.Err(err))
		return nil, toStatus(err)
	}
	if res == nil {
		return nil, status.Error(codes.Internal, "no result")
	}
	return encodeResult(res)
}

func (s *Server) authorize(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	for _, v := range md.Get("authorization") {
		if bearerMatches(v, s.token) {
			return nil
		}
	}
	return status.Error(codes.Unauthenticated, "missing or invalid token")
}

// bearerMatches compares an authorization header against "Bearer <token>"
// in constant time.
func bearerMatches(header, token string) bool {
	return subtle.ConstantTimeCompare([]byte(header), []byte("Bearer "+token)) == 1
}

func toStatus(err error) error {
	switch mkerrors.CodeOf(mkerrors.ClassifyFetchError(err, "", "")) {
	case mkerrors.CodeTimeout:
		return status.Error(codes.DeadlineExceeded, err.Error())
	case mkerrors.CodeCancelled:
		return status.Error(codes.Canceled, err.Error())
	case mkerrors.CodeUnauthorized:
		return status.Error(codes.PermissionDenied, err.Error())
	case mkerrors.CodeUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func splitMethod(method string) (service, name string) {
	method = strings.TrimPrefix(method, "/")
	if i := strings.LastIndex(method, "/"); i >= 0 {
		return method[:i], method[i+1:]
	}
	return method, "List"
}
