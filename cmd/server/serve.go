package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamesprial/gqlauth/internal/config"
	"github.com/jamesprial/gqlauth/internal/graphql"
	"github.com/jamesprial/gqlauth/internal/safety"
	"github.com/jamesprial/gqlauth/internal/tools"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long:  `Starts the MCP server on /mcp with health and metrics endpoints alongside.`,
		RunE:  runServe,
	}
	cmd.Flags().IntP("port", "p", 0, "Port to listen on (overrides config)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger := loadConfig(cmd)
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}

	tokenBefore := cfg.Server.AuthToken
	token, err := config.EnsureAuthToken(cfg)
	if err != nil {
		logger.Warn("could not generate auth token, running without authentication", "err", err)
	} else if tokenBefore == "" {
		logger.Info("generated auth token (set GQLAUTH_AUTH_TOKEN to persist)", "token", token)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
	)
	filter := safety.NewFilter(
		cfg.Safety.Operations.Allowlist,
		cfg.Safety.Operations.Denylist,
		safety.ReadOnly(cfg.Safety.ReadOnly),
	)
	names := tools.RegisterAll(mcpServer, graphql.GraphQLTools(a.transport, filter, a.audit))
	logger.Info("registered MCP tools", "tools", names)

	httpSrv := &http.Server{
		Addr:              a.listenAddr(),
		Handler:           a.router(server.NewStreamableHTTPServer(mcpServer)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("gqlauth listening", "addr", httpSrv.Addr)
		serverErrors <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown error", "err", err)
		_ = httpSrv.Close()
	}
	logger.Info("server stopped")
	return nil
}
