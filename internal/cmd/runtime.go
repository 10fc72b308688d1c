package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tgfiles/tgfiles/internal/config"
	"github.com/tgfiles/tgfiles/internal/core/normalize"
	"github.com/tgfiles/tgfiles/internal/core/ratelimit"
	"github.com/tgfiles/tgfiles/internal/core/store"
	"github.com/tgfiles/tgfiles/internal/observability"
	"github.com/tgfiles/tgfiles/internal/relay"
	"github.com/tgfiles/tgfiles/internal/telegram"
)

// relayRuntime holds the wired services shared by serve and the one-shot commands.
type relayRuntime struct {
	cfg      *config.Config
	store    ratelimit.WindowStore
	limiter  *ratelimit.Limiter
	client   *telegram.Client
	files    *relay.Service
	quiz     *relay.QuizService
	closers  []func() error
	pingers  []func(context.Context) error
	fallback bool
}

func buildRuntime(ctx context.Context, cfg *config.Config) (*relayRuntime, error) {
	rt := &relayRuntime{cfg: cfg}

	if err := rt.openWindowStore(ctx); err != nil {
		return nil, err
	}
	rt.limiter = ratelimit.NewLimiter(rt.store, routePolicies(cfg.RateLimit))

	client, err := telegram.New(cfg.Telegram, nil)
	switch {
	case errors.Is(err, telegram.ErrMissingToken):
		observability.Warn("telegram bot token not configured; relay routes will report CONFIG_MISSING")
	case err != nil:
		_ = rt.Close()
		return nil, err
	default:
		rt.client = client
	}

	rt.files = &relay.Service{
		Normalizer: &normalize.Normalizer{
			ResolveTimeout: cfg.Telegram.ResolveTimeout,
			Concurrency:    cfg.Telegram.ResolveConcurrency,
			DateLayout:     cfg.Catalog.DateLayout,
			Location:       cfg.Catalog.Location(),
			Ascending:      cfg.Catalog.Ascending(),
		},
		Limiter:        rt.limiter,
		DefaultChannel: cfg.Telegram.DefaultChannel,
		Channels:       cfg.Telegram.Channels,
		PollLimit:      cfg.Telegram.PollLimit,
		PollTimeout:    cfg.Telegram.PollTimeout,
		ProbeChannel:   cfg.Telegram.ProbeChannel,
	}
	rt.quiz = &relay.QuizService{
		Limiter:      rt.limiter,
		MaxBytes:     cfg.Quiz.MaxBytes,
		FetchTimeout: cfg.Quiz.FetchTimeout,
	}

	// Interfaces stay nil without a client so the services report CONFIG_MISSING.
	if rt.client != nil {
		rt.files.Feed = rt.client
		rt.files.Normalizer.Resolver = rt.client
		rt.quiz.Fetcher = rt.client
	}

	return rt, nil
}

// openWindowStore selects the rate window backend. An unreachable external
// store falls back to memory so the relay keeps serving.
func (rt *relayRuntime) openWindowStore(ctx context.Context) error {
	switch rt.cfg.RateLimit.Backend {
	case "redis":
		client, err := ratelimit.NewRedisClient(rt.cfg.RateLimit.RedisURL)
		if err != nil {
			return fmt.Errorf("configure redis: %w", err)
		}
		redisStore := ratelimit.NewRedisStore(client, rt.cfg.RateLimit.RedisPrefix)
		if err := redisStore.Ping(ctx); err != nil {
			_ = redisStore.Close()
			observability.Warn("redis rate store unreachable; using memory store", zap.Error(err))
			rt.useMemory()
			return nil
		}
		rt.store = redisStore
		rt.closers = append(rt.closers, redisStore.Close)
		rt.pingers = append(rt.pingers, redisStore.Ping)
	case "sql":
		db, err := openStore(ctx, rt.cfg.Store)
		if err != nil {
			return err
		}
		rt.store = db
		rt.closers = append(rt.closers, db.Close)
		rt.pingers = append(rt.pingers, db.Ping)
	default:
		rt.useMemory()
	}
	return nil
}

func (rt *relayRuntime) useMemory() {
	rt.store = ratelimit.NewMemoryStore()
	rt.fallback = rt.cfg.RateLimit.Backend != "" && rt.cfg.RateLimit.Backend != "memory"
}

// PingStore checks the external window store, if any.
func (rt *relayRuntime) PingStore(ctx context.Context) error {
	for _, ping := range rt.pingers {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases external store connections.
func (rt *relayRuntime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func routePolicies(cfg config.RateLimitConfig) map[string]ratelimit.RoutePolicy {
	routes := make(map[string]ratelimit.RoutePolicy, len(cfg.Routes))
	for name, limit := range cfg.Routes {
		routes[name] = ratelimit.RoutePolicy{Limit: limit.Limit, Window: limit.Window}
	}
	return routes
}

func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
