package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jamesprial/gqlauth/internal/auth"
	"github.com/jamesprial/gqlauth/internal/config"
	"github.com/jamesprial/gqlauth/internal/credstore"
	"github.com/jamesprial/gqlauth/internal/graphql"
	"github.com/jamesprial/gqlauth/internal/logging"
	"github.com/jamesprial/gqlauth/internal/metrics"
	"github.com/jamesprial/gqlauth/internal/safety"
)

// app holds the long-lived components shared by serve and query.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	transport *graphql.Transport
	collector *metrics.Collector
	audit     *safety.AuditLogger
	closers   []func() error
}

// newApp wires the credential store, dispatcher and transport from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if cfg.Audit.Enabled {
		f, err := os.OpenFile(cfg.Audit.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			logger.Warn("could not open audit log, audit logging disabled", "path", cfg.Audit.LogPath, "err", err)
		} else {
			a.audit = safety.NewAuditLogger(f)
			a.closers = append(a.closers, f.Close)
		}
	}

	store, err := credstore.New(cfg.Credentials)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := store.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	credential, err := credstore.Initial(ctx, store, cfg.GraphQL.Credential)
	if err != nil {
		logger.Warn("could not load stored credential, using configured one", "store", cfg.Credentials.Store, "err", err)
	}

	dispatcher, err := graphql.NewHTTPDispatcher(cfg.GraphQL)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []graphql.Option{
		graphql.WithCredential(credential),
		graphql.WithLogger(logging.NewProvider(logger).GetLogger("graphql")),
		graphql.WithCredentialSaver(store),
		graphql.WithRefreshOperation(graphql.RefreshOperation(cfg.Refresh.Query)),
		graphql.WithRefreshTokenField(cfg.Refresh.TokenField),
	}
	if cfg.Metrics.Enabled {
		a.collector = metrics.New()
		opts = append(opts, graphql.WithMetrics(a.collector))
	}
	if cfg.Audit.Transitions {
		opts = append(opts, graphql.WithTransitionHook(graphql.AuditTransitions(a.audit)))
	}

	a.transport = graphql.New(dispatcher, opts...)
	logger.Info("graphql transport ready",
		"url", dispatcher.URL(),
		"store", cfg.Credentials.Store,
		"has_credential", credential != "",
	)
	return a, nil
}

// Close stops the transport and releases files and clients in reverse order.
func (a *app) Close() {
	if a.transport != nil {
		a.transport.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "err", err)
		}
	}
	a.closers = nil
}

// router mounts the MCP handler behind bearer auth next to the unauthenticated
// health and metrics endpoints.
func (a *app) router(mcpHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		snap := a.transport.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"state":       snap.State.String(),
			"queue_depth": snap.QueueDepth,
		})
	})

	if a.collector != nil {
		r.Handle(a.cfg.Metrics.Path, a.collector.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.NewAuthMiddleware(a.cfg.Server.AuthToken, a.logger))
		r.Handle("/mcp", mcpHandler)
	})
	return r
}

// listenAddr returns the server listen address.
func (a *app) listenAddr() string {
	return fmt.Sprintf(":%d", a.cfg.Server.Port)
}
