package cmd

import (
	"context"
	"fmt"

	"github.com/otherjamesbrown/mentionkit/config"
	"github.com/otherjamesbrown/mentionkit/credentials"
	"github.com/otherjamesbrown/mentionkit/pkg/logging"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/directory"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/fetch"
)

// watchCandidates reloads ff in the background until the returned stop
// function is called.
func watchCandidates(ctx context.Context, ff *fetch.FileFetcher, path string, log logging.Logger) func() {
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	log = log.With(logging.F("path", path))

	go func() {
		defer close(done)
		err := ff.Watch(watchCtx, func(err error) {
			if err != nil {
				log.Warn("candidates reload failed", logging.Err(err))
				return
			}
			log.Info("candidates reloaded", logging.F("scopes", ff.Scopes()))
		})
		if err != nil {
			log.Warn("candidates watch stopped", logging.Err(err))
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// BuildFetcher creates the candidate backend selected by cfg.Fetcher,
// wrapped in the Redis cache when one is configured.
func BuildFetcher(ctx context.Context, cfg *config.CLIConfig, log logging.Logger) (directory.Fetcher, func(), error) {
	var (
		f       directory.Fetcher
		closers []func()
	)

	switch cfg.Fetcher {
	case config.FetcherGRPC:
		conn, err := fetch.Dial(cfg)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = conn.Close() })
		f = fetch.NewGRPCFetcher(conn,
			fetch.WithMethod(cfg.RPCMethod),
			fetch.WithToken(cfg.ServerAddress, credentials.NewStore()),
			fetch.WithGRPCLogger(log),
		)

	case config.FetcherPostgres:
		pool, err := connectToDatabase(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		closers = append(closers, pool.Close)
		f = fetch.NewPostgresFetcher(pool)

	case config.FetcherFile:
		path, err := config.ExpandPath(cfg.CandidatesFile)
		if err != nil {
			return nil, nil, err
		}
		ff, err := fetch.LoadFileFetcher(path)
		if err != nil {
			return nil, nil, err
		}
		if cfg.CandidatesWatch {
			closers = append(closers, watchCandidates(ctx, ff, path, log))
		}
		f = ff

	default:
		return nil, nil, fmt.Errorf("unknown fetcher %q", cfg.Fetcher)
	}

	f, closeCache := withRedisCache(ctx, cfg, log, f)
	closers = append(closers, closeCache)

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return f, closeAll, nil
}

// withRedisCache wraps f in the Redis cache when one is configured and
// reachable. The returned func closes the Redis client.
func withRedisCache(ctx context.Context, cfg *config.CLIConfig, log logging.Logger, f directory.Fetcher) (directory.Fetcher, func()) {
	if !cfg.Redis.IsConfigured() {
		return f, func() {}
	}

	client, err := fetch.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("redis cache disabled", logging.Err(err))
		return f, func() {}
	}

	cached := fetch.NewRedisCache(client, f,
		fetch.WithTTL(cfg.Redis.GetTTL()),
		fetch.WithKeyPrefix(cfg.Redis.GetKeyPrefix()),
		fetch.WithRedisLogger(log),
	)
	return cached, func() { _ = client.Close() }
}
