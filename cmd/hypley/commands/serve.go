package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hypley-ai/hypley-live/pkg/gateway/config"
	"github.com/hypley-ai/hypley-live/pkg/gateway/metrics"
	gatewayserver "github.com/hypley-ai/hypley-live/pkg/gateway/server"
)

type serveDeps struct {
	loadConfig   func() (config.Config, error)
	openStore    func(context.Context, config.Config, *slog.Logger) (historyStore, error)
	newBackends  func(context.Context, config.Config, *slog.Logger) (modelBackends, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServeDeps() serveDeps {
	return serveDeps{
		loadConfig:  config.LoadFromEnv,
		openStore:   openHistoryStore,
		newBackends: newModelBackends,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func newServeCmd(g *globalOptions, deps serveDeps) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Long: `Run the HTTP gateway.

Routes:
  GET  /v1/live                         websocket live relay (browser mic and speaker)
  POST /v1/chat                         text chat turn
  GET  /v1/conversations                conversation list
  GET  /v1/conversations/{id}/messages  stored messages
  GET  /healthz, /readyz, /metrics

On SIGINT or SIGTERM the gateway stops accepting sessions, notifies open
relays, and cancels relays still open after HYPLEY_SHUTDOWN_GRACE_PERIOD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := deps
			if addr != "" {
				load := d.loadConfig
				d.loadConfig = func() (config.Config, error) {
					cfg, err := load()
					cfg.Addr = addr
					return cfg, err
				}
			}
			return runServe(cmd.Context(), g.log(), d)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HYPLEY_ADDR)")
	return cmd
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServe(ctx context.Context, logger *slog.Logger, deps serveDeps) error {
	if deps.loadConfig == nil || deps.openStore == nil || deps.newBackends == nil {
		return errors.New("missing serve dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	backends, err := deps.newBackends(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init gemini: %w", err)
	}
	history, err := deps.openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer history.Close()

	gw := gatewayserver.New(cfg, gatewayserver.Deps{
		Dialer:  backends.Dialer,
		Text:    backends.Text,
		Titles:  backends.Text,
		Store:   history.Store,
		Catalog: catalog,
		Metrics: metrics.New("hypley"),
		Logger:  logger,
	})
	if history.Ping != nil {
		gw.Lifecycle().AddCheck("database", history.Ping)
	}
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr, "live_model", cfg.LiveModel, "chat_model", cfg.ChatModel, "agents", len(catalog.Agents()))

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	notified := gw.BeginDrain()
	logger.Info("draining", "live_sessions", notified)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	gw.WaitLiveSessions(shutdownCtx)

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("gateway stopped")
	return nil
}
