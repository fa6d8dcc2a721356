package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/pulseboard/feedsync/internal/alert"
	config "github.com/pulseboard/feedsync/internal/config/feed-gateway"
	"github.com/pulseboard/feedsync/internal/domain/notification"
	"github.com/pulseboard/feedsync/internal/feed"
	"github.com/pulseboard/feedsync/internal/obs"
	"github.com/pulseboard/feedsync/internal/obs/retry"
	outboxsvc "github.com/pulseboard/feedsync/internal/outbox"
	kafkax "github.com/pulseboard/feedsync/internal/repository/kafka"
	pg "github.com/pulseboard/feedsync/internal/repository/postgres"
	gateway "github.com/pulseboard/feedsync/internal/services/feed-gateway"
)

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "../config/feed-gateway.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(cfg.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	l.Info("starting feed-gateway",
		zap.String("env", cfg.App.Env),
		zap.String("version", cfg.App.Version),
		zap.Any("kafka_in", cfg.In),
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
	)

	otelCloser, err := obs.SetupOTel(rootCtx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	db, err := pg.New(rootCtx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	// repositories
	tx := pg.NewTransactor(db, l)
	obRepo := pg.NewOutboxRepo(db)
	notifRepo := pg.NewNotificationRepo(db, obRepo, tx)

	// alert side channel
	var alerter notification.Alerter
	if cfg.SMTP.Enable {
		alerter = alert.New(cfg.SMTP.AsAlertConfig()).WithLogger(l)
	}

	// feed sessions + change-feed routing
	sessions := feed.NewSessions(l, notifRepo, alerter, cfg.Feed.AsEngineConfig())
	defer sessions.CloseAll()
	hub := feed.NewHub(l, sessions)

	cons := kafkax.BootstrapConsumer(rootCtx, cfg.In.AsConsumerConfig(), l).WithLogger(l)
	defer func() { _ = cons.Close() }()

	consErrCh := make(chan error, 1)
	go func() {
		consErrCh <- cons.Consume(rootCtx, kafkax.ChangeHandler(hub.Handler()))
	}()

	// outbox publisher: read-state transitions flow back into the change feed
	prod := kafkax.NewProducer(cfg.Out.Brokers, cfg.Out.Topic).WithLogger(l)
	defer func() { _ = prod.Close() }()
	events := kafkax.NewChangeEventsKafka(prod)

	dispatch := outboxsvc.MakeGlobalOutboxHandler(events, retry.DefaultKafkaPolicy(l))
	runner := outboxsvc.NewOutboxRunner(l, obRepo, dispatch,
		cfg.Outbox.Workers, cfg.Outbox.BatchSize, cfg.Outbox.WaitTime, cfg.Outbox.InProgressTTL)
	runner.Start(rootCtx)

	// http
	srv := gateway.NewServer(l, sessions, cfg.Auth.JWTSecret)
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           otelhttp.NewHandler(srv.Handler(), "feed-gateway"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	httpErrCh := make(chan error, 1)
	go func() {
		l.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		httpErrCh <- httpSrv.ListenAndServe()
	}()

	var runErr error
	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case runErr = <-consErrCh:
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			l.Error("consumer error", zap.Error(runErr))
		}
	case runErr = <-httpErrCh:
		if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
			l.Error("http serve", zap.Error(runErr))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shCtx)
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
