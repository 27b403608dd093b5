package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpadapter "phishguard/internal/adapters/http"
	"phishguard/internal/adapters/ws"
	"phishguard/internal/config"
	"phishguard/internal/services/dispatch"
	"phishguard/internal/services/guard"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scan API, extension messaging and dashboard endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		var disp *dispatch.Service
		hub := ws.NewHub(func(ctx context.Context, client string, raw json.RawMessage) (any, error) {
			return handleMessage(ctx, disp, client, raw)
		})

		eng := newEngine(store, cfg, hub)
		g := guard.New(eng.verdicts, eng.scanner, hub, cfg.Guard.WarningPage)
		defer stopMessaging(hub, g)

		disp = dispatch.New(dispatch.Deps{
			Scanner:      eng.scanner,
			Verdicts:     eng.verdicts,
			Navigator:    g,
			Blocker:      eng.blocking,
			Redirector:   hub,
			Tabs:         hub,
			Notifier:     hub,
			DashboardURL: cfg.Dashboard.BaseURL,
			LinkLimit:    cfg.Scan.BatchLimit,
		})

		if err := config.Watch(configPath, func(c *config.Config) {
			eng.blocking.SetFallbackCredentials(credentialsFrom(c))
		}); err != nil {
			zap.L().Warn("config watch disabled", zap.Error(err))
		}

		api := httpadapter.New(eng.verdicts, eng.reconciler, disp, eng.blocking, hub, cfg.Server.AllowedOrigins)

		addr := serveAddr
		if addr == "" {
			addr = cfg.Server.Addr
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		drained := make(chan struct{})
		go func() {
			defer close(drained)
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server",
			zap.String("addr", addr),
			zap.String("store", cfg.Store.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		<-drained
		return nil
	},
}

// stopMessaging closes the websocket hub, which waits out in-flight message
// handlers, and only then joins the guard's background rescans, so no
// navigation can start a rescan while Wait runs.
func stopMessaging(hub *ws.Hub, g *guard.Service) {
	hub.Close()
	g.Wait()
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
