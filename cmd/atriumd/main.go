// Command atriumd runs the membership service HTTP server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	atrium "github.com/atriumhq/atrium"
	"github.com/atriumhq/atrium/async"
	"github.com/atriumhq/atrium/audit"
	"github.com/atriumhq/atrium/authn"
	"github.com/atriumhq/atrium/config"
	"github.com/atriumhq/atrium/events"
	"github.com/atriumhq/atrium/httpapi"
	"github.com/atriumhq/atrium/linktoken"
	"github.com/atriumhq/atrium/mailer"
	"github.com/atriumhq/atrium/members"
	"github.com/atriumhq/atrium/metrics"
	"github.com/atriumhq/atrium/records"
	"github.com/atriumhq/atrium/redisblob"
	"github.com/atriumhq/atrium/token"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	blob, err := redisblob.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer blob.Close()

	m := metrics.New(cfg.MetricsEnabled)

	auditLog := audit.New(1000, audit.WithStdoutHandler())
	defer auditLog.Close()

	runner := async.NewRunner(logger)

	memberRepo := members.NewRepository(blob,
		records.WithShadowWrites[atrium.Member](cfg.ShadowWrites),
		records.WithLogger[atrium.Member](logger),
		records.WithFallbackHook[atrium.Member](func() { m.RecordShadowFallback("member") }),
	)
	eventRepo := events.NewRepository(blob,
		records.WithShadowWrites[atrium.Event](cfg.ShadowWrites),
		records.WithLogger[atrium.Event](logger),
		records.WithFallbackHook[atrium.Event](func() { m.RecordShadowFallback("event") }),
	)

	links := linktoken.New(blob)
	tokens, err := token.New(cfg.SigningSecret, token.WithTTL(cfg.SessionTTL))
	if err != nil {
		return err
	}

	mail := mailer.New(cfg.MailAPIKey, cfg.MailFrom, logger)

	svc := authn.New(memberRepo, links, tokens,
		authn.WithSuperUser(cfg.SuperAdminEmail, cfg.SuperAdminPassword),
		authn.WithMailer(mail),
		authn.WithMetrics(m),
		authn.WithAudit(auditLog),
		authn.WithRunner(runner),
		authn.WithLogger(logger),
		authn.WithBaseURL(cfg.BaseURL),
		authn.WithAdminEmail(cfg.AdminEmail),
		authn.WithLinkTTL(cfg.LinkTTL),
	)

	gin.SetMode(gin.ReleaseMode)
	server := httpapi.NewServer(svc, tokens, memberRepo, eventRepo, blob,
		httpapi.WithLogger(logger),
		httpapi.WithMetricsEndpoint(cfg.MetricsEnabled),
	)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// Let in-flight background tasks (mail, hash upgrades) finish.
	runner.Wait()
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
