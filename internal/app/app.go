// Package app wires the engine's components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jackchouchani/inventoryApp-sub001/internal/auth"
	"github.com/jackchouchani/inventoryApp-sub001/internal/config"
	"github.com/jackchouchani/inventoryApp-sub001/internal/conflict"
	"github.com/jackchouchani/inventoryApp-sub001/internal/db"
	"github.com/jackchouchani/inventoryApp-sub001/internal/httpapi"
	"github.com/jackchouchani/inventoryApp-sub001/internal/netmon"
	"github.com/jackchouchani/inventoryApp-sub001/internal/notify"
	"github.com/jackchouchani/inventoryApp-sub001/internal/remote"
	"github.com/jackchouchani/inventoryApp-sub001/internal/remote/pgremote"
	"github.com/jackchouchani/inventoryApp-sub001/internal/remote/rest"
	"github.com/jackchouchani/inventoryApp-sub001/internal/retention"
	"github.com/jackchouchani/inventoryApp-sub001/internal/service/offlineservice"
	"github.com/jackchouchani/inventoryApp-sub001/internal/store/sqlite"
	"github.com/jackchouchani/inventoryApp-sub001/internal/syncmgr"
)

// App owns every long-lived component of the daemon
type App struct {
	Config   *config.Config
	Store    *sqlite.Store
	Remote   remote.Store
	Net      *netmon.Monitor
	Hub      *notify.Hub
	Sync     *syncmgr.Manager
	Resolver *conflict.Resolver
	Service  *offlineservice.Service
	Janitor  *retention.Janitor

	log     zerolog.Logger
	closers []func()
}

// New opens the event store and the remote adapter and builds the engine.
// The remote is never dialled here; the device may start offline.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, log: logger}

	st, err := sqlite.New(ctx, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open event store: %w", err)
	}
	a.Store = st
	a.closers = append(a.closers, func() { _ = st.Close() })

	if a.Remote, err = a.openRemote(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Hub = notify.NewHub(0)
	a.Net = netmon.New(a.Remote, cfg.Remote.ProbeInterval, logger)
	a.Net.OnChange(func(online bool) {
		a.Hub.Publish(notify.Message{Kind: notify.KindConnectivity, Online: &online})
	})

	det := conflict.NewDetector(a.Remote, logger)
	opts := syncmgr.Options{
		Concurrency: cfg.Sync.Concurrency,
		Interval:    cfg.Sync.Interval,
		Retry: syncmgr.RetryPolicy{
			MaxAttempts:     cfg.Sync.MaxAttempts,
			InitialInterval: cfg.Sync.InitialBackoff,
			MaxInterval:     cfg.Sync.MaxBackoff,
			Multiplier:      2,
		},
	}
	if cfg.Sync.AutoApplyDecisions {
		opts.AfterPass = a.applyCachedDecisions
	}
	a.Sync = syncmgr.New(st, a.Remote, det, a.Net, a.Hub, opts, logger)
	a.Resolver = conflict.NewResolver(st, a.Sync, a.Hub, logger)
	a.Service = offlineservice.NewService(st, a.Resolver, a.Sync, a.Net, a.Hub)
	a.Janitor = retention.New(st, cfg.Retention.MaxAge(), cfg.Retention.Interval, logger)

	return a, nil
}

func (a *App) openRemote(ctx context.Context) (remote.Store, error) {
	rc := a.Config.Remote
	switch rc.Kind {
	case config.RemoteREST:
		opts := rest.Options{
			BaseURL:    rc.BaseURL,
			APIKey:     rc.APIKey,
			Timeout:    rc.Timeout,
			MaxRetries: rc.MaxRetries,
			SoftDelete: rc.SoftDelete,
		}
		if rc.JWTSecret != "" {
			opts.Tokens = auth.NewSigner(rc.JWTSecret, rc.JWTSubject, rc.JWTRole)
		}
		a.log.Info().Str("base_url", rc.BaseURL).Bool("signed", opts.Tokens != nil).Msg("using REST remote")
		return rest.New(opts), nil

	case config.RemotePostgres:
		pool, err := db.Open(ctx, rc.DatabaseURL, db.PoolOptions{MaxConns: rc.MaxConns, Lazy: true})
		if err != nil {
			return nil, fmt.Errorf("open remote pool: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.log.Info().Int32("max_conns", rc.MaxConns).Msg("using PostgreSQL remote")
		return pgremote.New(pool, rc.SoftDelete), nil
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownRemoteKind, rc.Kind)
}

func (a *App) applyCachedDecisions(ctx context.Context, res *syncmgr.Result) {
	if res == nil || res.Skipped || res.Conflicts == 0 {
		return
	}
	n, err := a.Resolver.ApplyCachedDecisions(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("auto-applying cached decisions failed")
		return
	}
	if n > 0 {
		a.log.Info().Int("resolved", n).Msg("conflicts resolved from decision cache")
		a.Sync.Trigger()
	}
}

// Handler builds the local HTTP API
func (a *App) Handler() http.Handler {
	hc := a.Config.HTTP
	srv := &httpapi.Server{
		Svc: a.Service,
		Hub: a.Hub,
		Net: a.Net,
		RateLimitConfig: httpapi.RateLimitInfo{
			WindowSeconds: hc.RateLimit.WindowSeconds,
			MaxRequests:   hc.RateLimit.MaxRequests,
			Burst:         hc.RateLimit.Burst,
		},
		AuthEnabled: a.Config.Auth.Enabled,
	}
	return srv.Routes(auth.JWTCfg{
		HS256Secret: a.Config.Auth.Secret,
		Issuer:      a.Config.Auth.Issuer,
		DevMode:     a.Config.Auth.DevMode,
	})
}

// Run drives the network monitor, the sync loop and the retention janitor
// until ctx is cancelled or the sync loop hits a storage failure.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Net.Run(ctx)
		return nil
	})
	g.Go(func() error {
		err := a.Sync.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		a.Janitor.Run(ctx)
		return nil
	})

	return g.Wait()
}

// Serve runs the engine and the HTTP API on addr, shutting down within
// grace once ctx is cancelled
func (a *App) Serve(ctx context.Context, addr string, grace time.Duration) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      a.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(gctx) })
	g.Go(func() error {
		a.log.Info().Str("addr", addr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutting down gracefully...")
		sctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		if err := httpServer.Shutdown(sctx); err != nil {
			a.log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		return nil
	})

	return g.Wait()
}

// Close releases the store and the remote pool
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
