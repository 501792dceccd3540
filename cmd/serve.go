package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/otherjamesbrown/mentionkit/config"
	"github.com/otherjamesbrown/mentionkit/pkg/buildinfo"
	"github.com/otherjamesbrown/mentionkit/pkg/db"
	mkerrors "github.com/otherjamesbrown/mentionkit/pkg/errors"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/directory"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/fetch"
)

// serveOptions are the flags of the serve command.
type serveOptions struct {
	listen      string
	adminListen string
	method      string
	token       string
	refresh     time.Duration
	rate        float64
	burst       int
}

// NewServeCommand creates the serve command.
func NewServeCommand(deps *Deps) *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve mention candidates over gRPC",
		Long: `Serve mention candidates over gRPC from the configured fetcher.

Candidates are cached per scope through the candidate directory and the
cache is reset every --refresh interval. A second HTTP listener exposes
/metrics, /version and /healthz. With --rate set, requests beyond the
limit are rejected with RESOURCE_EXHAUSTED.

Clients use the grpc fetcher:
  fetcher: grpc
  server_address: localhost:50051

Examples:
  mentionkit serve --fetcher postgres
  mentionkit serve --listen :50051 --admin-listen :9091 --refresh 30s
  mentionkit serve --rate 50 --burst 100
  MENTIONKIT_API_TOKEN=secret mentionkit serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), deps, opts)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", ":50051", "gRPC listen address")
	cmd.Flags().StringVar(&opts.adminListen, "admin-listen", ":9091", "HTTP address for /metrics, /version and /healthz (empty disables)")
	cmd.Flags().StringVar(&opts.method, "method", "", "full RPC method name (defaults to the configured rpc_method)")
	cmd.Flags().StringVar(&opts.token, "token", os.Getenv("MENTIONKIT_API_TOKEN"), "bearer token required from clients")
	cmd.Flags().DurationVar(&opts.refresh, "refresh", time.Minute, "how often the candidate cache is reset (0 disables)")
	cmd.Flags().Float64Var(&opts.rate, "rate", 0, "maximum requests per second across all clients (0 disables)")
	cmd.Flags().IntVar(&opts.burst, "burst", 10, "requests allowed above --rate in a burst")
	return cmd
}

func runServe(ctx context.Context, deps *Deps, opts serveOptions) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return err
	}
	log := deps.log().With(logging.F("command", "serve"))

	if cfg.Fetcher == config.FetcherGRPC {
		return fmt.Errorf("%w: serve needs a local fetcher (postgres or file), not grpc", mkerrors.ErrValidation)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	dir, pool, closeBackend, err := serveDirectory(ctx, deps, cfg, reg, log)
	if err != nil {
		return err
	}
	defer closeBackend()

	method := opts.method
	if method == "" {
		method = cfg.RPCMethod
	}

	serverOpts := []fetch.ServerOption{fetch.WithServerLogger(log)}
	if opts.token != "" {
		serverOpts = append(serverOpts, fetch.RequireToken(opts.token))
	}
	interceptors := []grpc.UnaryServerInterceptor{loggingInterceptor(log)}
	if opts.rate > 0 {
		interceptors = append(interceptors, rateLimitInterceptor(rate.NewLimiter(rate.Limit(opts.rate), opts.burst)))
	}
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	fetch.NewServer(DirectoryFetcher(dir), serverOpts...).Register(gs, method)

	lis, err := net.Listen("tcp", opts.listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", opts.listen, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		log.Info("grpc server listening", logging.F("addr", lis.Addr().String()), logging.F("method", method))
		errCh <- gs.Serve(lis)
	}()

	var admin *http.Server
	if opts.adminListen != "" {
		admin = &http.Server{
			Addr:              opts.adminListen,
			Handler:           adminMux(reg, pool),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("admin server listening", logging.F("addr", opts.adminListen))
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	if opts.refresh > 0 {
		go refreshLoop(ctx, dir, opts.refresh, log)
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.Error("server stopped", logging.Err(err))
	}

	if admin != nil {
		shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		_ = admin.Shutdown(shutdownCtx)
		stop()
	}
	gs.GracefulStop()
	return err
}

// serveDirectory builds the Directory serve answers from. With the postgres
// fetcher the one pool that runs candidate queries is also returned, so
// pool stats and /healthz observe the connections actually in use.
func serveDirectory(ctx context.Context, deps *Deps, cfg *config.CLIConfig, reg *prometheus.Registry, log logging.Logger) (*directory.Directory, *pgxpool.Pool, func(), error) {
	metrics := directory.WithMetrics(directory.NewMetrics(reg))

	if cfg.Fetcher != config.FetcherPostgres {
		dir, closeFetcher, err := deps.newDirectory(ctx, cfg, metrics)
		if err != nil {
			return nil, nil, nil, err
		}
		return dir, nil, closeFetcher, nil
	}

	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	if _, err := db.RegisterPoolStatsCollectorWith(pool, "mentionkit", "serve", reg); err != nil {
		log.Warn("registering pool stats collector", logging.Err(err))
	}

	f, closeCache := withRedisCache(ctx, cfg, log, fetch.NewPostgresFetcher(pool))
	closeAll := func() {
		closeCache()
		pool.Close()
	}
	return deps.directoryOver(f, cfg, metrics), pool, closeAll, nil
}

// DirectoryFetcher adapts a Directory to the Fetcher the gRPC server
// exposes. Directory failures become unsuccessful results carrying the
// directory's message.
func DirectoryFetcher(dir *directory.Directory) directory.Fetcher {
	return directory.FetcherFunc(func(ctx context.Context, scope string) (*directory.FetchResult, error) {
		if scope == "" {
			return &directory.FetchResult{Success: false, Error: "scope is required"}, nil
		}
		candidates, err := dir.Load(ctx, scope)
		if err != nil {
			var fe *mkerrors.FetchError
			if errors.As(err, &fe) {
				return &directory.FetchResult{Success: false, Error: fe.Message}, nil
			}
			return nil, err
		}
		return &directory.FetchResult{Success: true, Data: candidates}, nil
	})
}

func refreshLoop(ctx context.Context, dir *directory.Directory, every time.Duration, log logging.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n := len(dir.Scopes())
			dir.Reset()
			log.Debug("candidate cache reset", logging.F("scopes", n))
		}
	}
}

func adminMux(reg *prometheus.Registry, pool *pgxpool.Pool) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/version", buildinfo.Handler("mentionkit-serve"))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := db.Ping(r.Context(), pool); err != nil {
				http.Error(w, "database: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

func loggingInterceptor(log logging.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []logging.Field{
			logging.F("method", info.FullMethod),
			logging.F("code", status.Code(err).String()),
			logging.F("duration", time.Since(start)),
		}
		if err != nil {
			log.Warn("rpc failed", append(fields, logging.Err(err))...)
		} else {
			log.Debug("rpc", fields...)
		}
		return resp, err
	}
}

// rateLimitInterceptor rejects calls once limiter has no tokens left.
func rateLimitInterceptor(limiter *rate.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if !limiter.Allow() {
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded for %s", info.FullMethod)
		}
		return handler(ctx, req)
	}
}
