// Command eventhandler runs the delivery-event reconciler in one of two ingestion modes, selected by EVENT_HANDLER_MODE:
// "http" runs the chi-routed SNS-HTTPS receiver as a long-lived server;
// "sqs" (the default) runs the SQS-relayed poll-loop consumer. Both modes
// share the same Reconciler core.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/sirupsen/logrus"

	"github.com/ignite/collection-dispatcher/internal/config"
	"github.com/ignite/collection-dispatcher/internal/eventhandler"
	"github.com/ignite/collection-dispatcher/internal/pkg/logger"
	"github.com/ignite/collection-dispatcher/internal/queue"
	"github.com/ignite/collection-dispatcher/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("eventhandler: load config: %w", err)
	}

	log := logger.WithFields(logger.Fields{"component": "eventhandler"})

	gateway := store.New(cfg.Store.BaseURL, cfg.Store.APIKey, cfg.Store.Timeout(), cfg.Store.MaxRetries)
	reconciler := eventhandler.New(gateway, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := os.Getenv("EVENT_HANDLER_MODE")
	if mode == "" {
		mode = "sqs"
	}

	switch mode {
	case "http":
		return runHTTP(ctx, cfg, reconciler, log)
	case "sqs":
		return runSQS(ctx, cfg, reconciler, log)
	default:
		return fmt.Errorf("eventhandler: unknown EVENT_HANDLER_MODE %q", mode)
	}
}

func runHTTP(ctx context.Context, cfg *config.Config, reconciler *eventhandler.Reconciler, log *logrus.Entry) error {
	server := eventhandler.NewServer(reconciler)
	addr := fmt.Sprintf(":%d", cfg.EventServer.Port)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("event handler listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runSQS(ctx context.Context, cfg *config.Config, reconciler *eventhandler.Reconciler, log *logrus.Entry) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("eventhandler: load aws config: %w", err)
	}
	queueGateway := queue.New(sqs.NewFromConfig(awsCfg), cfg.Queue.TrackingQueueURL)

	consumer := eventhandler.NewConsumer(queueGateway, reconciler, log)
	consumer.Start(ctx)

	<-ctx.Done()
	consumer.Stop()
	return nil
}
