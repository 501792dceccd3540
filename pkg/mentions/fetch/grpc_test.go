package fetch

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/otherjamesbrown/mentionkit/config"
	mkerrors "github.com/otherjamesbrown/mentionkit/pkg/errors"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/directory"
)

var friends = []mentions.Candidate{
	{ID: "u1", Handle: "alice", DisplayName: "Alice A"},
	{ID: "u2", Handle: "bob", DisplayName: "Bob B"},
}

type staticTokens map[string]string

func (s staticTokens) Token(server string) (string, error) {
	return s[server], nil
}

// startServer serves fetcher over an in-memory listener and returns a
// connected client.
func startServer(t *testing.T, fetcher directory.Fetcher, opts ...ServerOption) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewServer(fetcher, opts...).Register(gs, config.DefaultRPCMethod)

	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGRPCFetcher_RoundTrip(t *testing.T) {
	var gotScope string
	conn := startServer(t, directory.FetcherFunc(func(_ context.Context, scope string) (*directory.FetchResult, error) {
		gotScope = scope
		return &directory.FetchResult{Success: true, Data: friends}, nil
	}))

	res, err := NewGRPCFetcher(conn).FetchMentionCandidates(context.Background(), "owner-123")
	require.NoError(t, err)
	assert.Equal(t, "owner-123", gotScope)
	assert.True(t, res.Success)
	assert.Equal(t, friends, res.Data)
}

func TestGRPCFetcher_EmptySuccess(t *testing.T) {
	conn := startServer(t, directory.FetcherFunc(func(context.Context, string) (*directory.FetchResult, error) {
		return &directory.FetchResult{Success: true}, nil
	}))

	res, err := NewGRPCFetcher(conn).FetchMentionCandidates(context.Background(), "owner-123")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotNil(t, res.Data)
	assert.Empty(t, res.Data)
}

func TestGRPCFetcher_Rejected(t *testing.T) {
	conn := startServer(t, directory.FetcherFunc(func(context.Context, string) (*directory.FetchResult, error) {
		return &directory.FetchResult{Success: false, Error: "not friends"}, nil
	}))

	res, err := NewGRPCFetcher(conn).FetchMentionCandidates(context.Background(), "owner-123")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "not friends", res.Error)
}

func TestGRPCFetcher_BackendErrorThroughDirectory(t *testing.T) {
	conn := startServer(t, directory.FetcherFunc(func(context.Context, string) (*directory.FetchResult, error) {
		return nil, errors.New("dial tcp: connection refused")
	}))

	dir := directory.New(NewGRPCFetcher(conn))
	got, err := dir.Load(context.Background(), "owner-123")

	require.Error(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.True(t, mkerrors.IsFetchFailed(err))
	assert.Equal(t, mkerrors.CodeUnavailable, mkerrors.CodeOf(err))
}

func TestGRPCFetcher_Token(t *testing.T) {
	backend := directory.FetcherFunc(func(context.Context, string) (*directory.FetchResult, error) {
		return &directory.FetchResult{Success: true, Data: friends}, nil
	})

	t.Run("accepted", func(t *testing.T) {
		conn := startServer(t, backend, RequireToken("s3cret"))
		f := NewGRPCFetcher(conn, WithToken("bufnet", staticTokens{"bufnet": "s3cret"}))

		res, err := f.FetchMentionCandidates(context.Background(), "owner-123")
		require.NoError(t, err)
		assert.Len(t, res.Data, 2)
	})

	t.Run("missing", func(t *testing.T) {
		conn := startServer(t, backend, RequireToken("s3cret"))

		_, err := NewGRPCFetcher(conn).FetchMentionCandidates(context.Background(), "owner-123")
		require.Error(t, err)
		assert.True(t, mkerrors.IsUnauthorized(err))
		assert.Equal(t, mkerrors.CodeUnauthorized, mkerrors.ClassifyFetchError(err, "owner-123", "").Code)
	})

	t.Run("wrong", func(t *testing.T) {
		conn := startServer(t, backend, RequireToken("s3cret"))
		f := NewGRPCFetcher(conn, WithToken("bufnet", staticTokens{"bufnet": "nope"}))

		_, err := f.FetchMentionCandidates(context.Background(), "owner-123")
		assert.True(t, mkerrors.IsUnauthorized(err))
	})
}

func TestBearerMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"Bearer s3cret", true},
		{"Bearer s3cre", false},
		{"Bearer s3cret2", false},
		{"bearer s3cret", false},
		{"s3cret", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, bearerMatches(tt.header, "s3cret"), "header %q", tt.header)
	}
}

func TestGRPCFetcher_DeadlineExceeded(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	conn := startServer(t, directory.FetcherFunc(func(ctx context.Context, _ string) (*directory.FetchResult, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewGRPCFetcher(conn).FetchMentionCandidates(ctx, "owner-123")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// fakeConn answers Invoke with a canned reply or error.
type fakeConn struct {
	method string
	md     metadata.MD
	reply  *structpb.Struct
	err    error
}

func (c *fakeConn) Invoke(ctx context.Context, method string, _ interface{}, reply interface{}, _ ...grpc.CallOption) error {
	c.method = method
	c.md, _ = metadata.FromOutgoingContext(ctx)
	if c.err != nil {
		return c.err
	}
	proto.Merge(reply.(*structpb.Struct), c.reply)
	return nil
}

func (c *fakeConn) NewStream(context.Context, *grpc.StreamDesc, string, ...grpc.CallOption) (grpc.ClientStream, error) {
	return nil, errors.New("not supported")
}

func TestGRPCFetcher_MalformedResponse(t *testing.T) {
	reply, err := structpb.NewStruct(map[string]interface{}{"data": []interface{}{}})
	require.NoError(t, err)
	conn := &fakeConn{reply: reply}

	_, err = NewGRPCFetcher(conn).FetchMentionCandidates(context.Background(), "owner-123")
	require.Error(t, err)
	assert.Equal(t, mkerrors.CodeMalformed, mkerrors.ClassifyFetchError(err, "owner-123", "").Code)
}

func TestGRPCFetcher_MethodAndMetadata(t *testing.T) {
	reply, err := encodeResult(&directory.FetchResult{Success: true})
	require.NoError(t, err)
	conn := &fakeConn{reply: reply}

	f := NewGRPCFetcher(conn,
		WithMethod("/custom.Service/List"),
		WithToken("api.example.com:443", staticTokens{"api.example.com:443": "tok"}),
	)
	_, err = f.FetchMentionCandidates(context.Background(), "owner-123")
	require.NoError(t, err)

	assert.Equal(t, "/custom.Service/List", conn.method)
	assert.Equal(t, []string{"Bearer tok"}, conn.md.Get("authorization"))
}

func TestTranslateStatus(t *testing.T) {
	tests := []struct {
		name  string
		in    error
		check func(t *testing.T, err error)
	}{
		{"unauthenticated", status.Error(codes.Unauthenticated, "x"), func(t *testing.T, err error) {
			assert.True(t, mkerrors.IsUnauthorized(err))
		}},
		{"permission denied", status.Error(codes.PermissionDenied, "x"), func(t *testing.T, err error) {
			assert.True(t, mkerrors.IsUnauthorized(err))
		}},
		{"deadline", status.Error(codes.DeadlineExceeded, "x"), func(t *testing.T, err error) {
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		}},
		{"canceled", status.Error(codes.Canceled, "x"), func(t *testing.T, err error) {
			assert.ErrorIs(t, err, context.Canceled)
		}},
		{"unavailable passes through", status.Error(codes.Unavailable, "x"), func(t *testing.T, err error) {
			assert.Equal(t, codes.Unavailable, status.Code(err))
		}},
		{"plain error", errors.New("boom"), func(t *testing.T, err error) {
			assert.EqualError(t, err, "boom")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, translateStatus(tt.in))
		})
	}
}

func TestSplitMethod(t *testing.T) {
	svc, name := splitMethod(config.DefaultRPCMethod)
	assert.Equal(t, "mentionkit.v1.MentionService", svc)
	assert.Equal(t, "ListMentionCandidates", name)

	svc, name = splitMethod("Bare")
	assert.Equal(t, "Bare", svc)
	assert.Equal(t, "List", name)
}

func TestTransportCredentials(t *testing.T) {
	creds, err := transportCredentials(&config.CLIConfig{Insecure: true})
	require.NoError(t, err)
	assert.Equal(t, "insecure", creds.Info().SecurityProtocol)

	creds, err = transportCredentials(&config.CLIConfig{TLS: config.TLSConfig{Enabled: true, SkipVerify: true}})
	require.NoError(t, err)
	assert.Equal(t, "tls", creds.Info().SecurityProtocol)
}
