package fetch

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpccreds "google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/otherjamesbrown/mentionkit/config"
	"github.com/otherjamesbrown/mentionkit/pkg/buildinfo"
	mkerrors "github.com/otherjamesbrown/mentionkit/pkg/errors"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/directory"
)

// TokenSource returns the bearer token for a server, or "" for none.
// *credentials.Store satisfies it.
type TokenSource interface {
	Token(server string) (string, error)
}

// GRPCFetcher lists candidates through a unary RPC.
type GRPCFetcher struct {
	conn   grpc.ClientConnInterface
	method string
	server string
	tokens TokenSource
	log    logging.Logger
}

// GRPCOption configures a GRPCFetcher.
type GRPCOption func(*GRPCFetcher)

// WithMethod overrides the full RPC method name.
func WithMethod(method string) GRPCOption {
	return func(f *GRPCFetcher) { f.method = method }
}

// WithToken attaches a bearer token for server to every call.
func WithToken(server string, tokens TokenSource) GRPCOption {
	return func(f *GRPCFetcher) {
		f.server = server
		f.tokens = tokens
	}
}

// WithGRPCLogger sets the fetcher logger.
func WithGRPCLogger(l logging.Logger) GRPCOption {
	return func(f *GRPCFetcher) { f.log = l }
}

// NewGRPCFetcher creates a fetcher over conn.
func NewGRPCFetcher(conn grpc.ClientConnInterface, opts ...GRPCOption) *GRPCFetcher {
	f := &GRPCFetcher{
		conn:   conn,
		method: config.DefaultRPCMethod,
		log:    logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchMentionCandidates implements directory.Fetcher.
func (f *GRPCFetcher) FetchMentionCandidates(ctx context.Context, scope string) (*directory.FetchResult, error) {
	req, err := encodeRequest(scope)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	if f.tokens != nil {
		token, err := f.tokens.Token(f.server)
		if err != nil {
			f.log.Warn("could not read API token, calling without it", logging.Err(err))
		} else if token != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
		}
	}

	resp := &structpb.Struct{}
	if err := f.conn.Invoke(ctx, f.method, req, resp); err != nil {
		return nil, translateStatus(err)
	}

	res, err := decodeResult(resp)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// translateStatus maps gRPC status codes onto the errors ClassifyFetchError
// understands.
func translateStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", mkerrors.ErrUnauthorized, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", st.Message(), context.DeadlineExceeded)
	case codes.Canceled:
		return fmt.Errorf("%s: %w", st.Message(), context.Canceled)
	default:
		return err
	}
}

// Dial opens a client connection to cfg.ServerAddress using the configured
// transport security.
func Dial(cfg *config.CLIConfig, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	creds, err := transportCredentials(cfg)
	if err != nil {
		return nil, err
	}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithUserAgent(buildinfo.UserAgent()),
	}, opts...)
	conn, err := grpc.NewClient(cfg.ServerAddress, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to mention service at %s: %w", cfg.ServerAddress, err)
	}
	return conn, nil
}

func transportCredentials(cfg *config.CLIConfig) (grpccreds.TransportCredentials, error) {
	if cfg.Insecure || !cfg.TLS.Enabled {
		return insecure.NewCredentials(), nil
	}

	tlsConfig, err := LoadClientTLSConfig(&cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("loading TLS config: %w", err)
	}
	return grpccreds.NewTLS(tlsConfig), nil
}
