package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/thesisdesk/thesisdesk"
	"github.com/thesisdesk/thesisdesk/api"
	audithook "github.com/thesisdesk/thesisdesk/audit_hook"
	"github.com/thesisdesk/thesisdesk/observability"
	"github.com/thesisdesk/thesisdesk/ratelimit"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(runCtx, ctx)
		},
	}
}

func runServer(ctx context.Context, cc *commandContext) error {
	cfg := cc.config
	logger := cc.logger()
	slog.SetDefault(logger)

	st, err := cc.openStore(ctx)
	if err != nil {
		return err
	}
	blobs, err := cc.openBlobs()
	if err != nil {
		_ = st.Close()
		return err
	}

	metrics := observability.NewPrometheusFactory()
	desk := thesisdesk.New(st,
		thesisdesk.WithLogger(logger),
		thesisdesk.WithPricePerPage(cfg.PricePerPage()),
		thesisdesk.WithBlobs(blobs),
		thesisdesk.WithMaxAttachmentSize(cfg.Storage.MaxAttachmentSize),
		thesisdesk.WithPlugin(audithook.New(audithook.LogRecorder(logger), audithook.WithLogger(logger))),
		thesisdesk.WithPlugin(observability.NewMetricsExtension(metrics)),
	)
	if err := desk.Start(ctx); err != nil {
		_ = st.Close()
		return fmt.Errorf("start desk: %w", err)
	}
	defer func() {
		if err := desk.Stop(); err != nil {
			logger.Error("stop desk", "error", err)
		}
	}()

	limiter, err := ratelimit.New(cfg.RateLimit)
	if err != nil {
		return err
	}

	var identity api.IdentityResolver
	if cfg.Auth.TrustHeaders {
		logger.Warn("trusting identity headers; run behind an authenticating proxy")
		identity = api.HeaderIdentity()
	} else {
		identity = api.NewJWTIdentity([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.New(desk, identity, api.WithLogger(logger), api.WithLimiter(limiter))
	router := handler.Router(cfg.Server.BasePath)
	if cfg.Server.MetricsPath != "" {
		router.GET(cfg.Server.MetricsPath, gin.WrapH(metrics.Handler()))
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
