package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"basegraph.app/codeask/common/id"
	"basegraph.app/codeask/common/llm"
	"basegraph.app/codeask/common/logger"
	"basegraph.app/codeask/common/otel"
	"basegraph.app/codeask/core/config"
	"basegraph.app/codeask/internal/delivery"
	"basegraph.app/codeask/internal/http/middleware"
	httprouter "basegraph.app/codeask/internal/http/router"
	"basegraph.app/codeask/internal/queue"
	"basegraph.app/codeask/internal/service"
	"basegraph.app/codeask/internal/store"
	"basegraph.app/codeask/internal/vcs"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "codeask starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	answerer, err := llm.New(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create llm client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "llm client ready", "model", answerer.Model())

	var mailer delivery.Mailer
	if cfg.SMTP.Enabled() {
		mailer, err = delivery.NewSMTPMailer(cfg.SMTP)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create smtp mailer", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "email escalation enabled", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
	} else {
		slog.InfoContext(ctx, "email escalation disabled", "reason", cfg.SMTP.Validate())
	}

	var issues delivery.IssueCreator
	if cfg.Issues.Enabled() {
		issues, err = delivery.NewIssueCreator(cfg.Issues)
		if err != nil {
			slog.ErrorContext(ctx, "failed to create issue tracker client", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "issue escalation enabled", "provider", issues.Provider())
	} else {
		slog.InfoContext(ctx, "issue escalation disabled", "provider", cfg.Issues.Provider)
	}

	var events queue.Producer
	if cfg.Events.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Events.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}

		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "redis connected", "stream", cfg.Events.RedisStream)

		producer := queue.NewRedisProducer(redisClient, cfg.Events.RedisStream, slog.Default())
		defer producer.Close()
		events = producer
	}

	stores := store.NewRegistry()
	defer stores.Close()

	services := service.NewServices(service.Deps{
		Answerer: answerer,
		Blame:    vcs.NewResolver(),
		Stores:   stores,
		Mailer:   mailer,
		Issues:   issues,
		Events:   events,
		Remote:   cfg.RemoteRef,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services)
	server := &http.Server{
		Addr:              "127.0.0.1:" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write timeout: answer streams stay open and AI queries can run long.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{})

	return router
}

const banner = `
  ___ ___  ___  ___   _   ___ _  __
 / __/ _ \|   \| __| /_\ / __| |/ /
| (_| (_) | |) | _| / _ \\__ \ ' <
 \___\___/|___/|___/_/ \_\___/_|\_\
`
