// Command dispatcher is the dispatch worker's invocation entry point. Each
// run decodes one invocation event from stdin, drives it to completion
// through the Dispatch Controller, and writes the exit contract
// ({status, worker_id, processed, failed}) to stdout, one event per
// invocation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/collection-dispatcher/internal/audit"
	"github.com/ignite/collection-dispatcher/internal/cache"
	"github.com/ignite/collection-dispatcher/internal/config"
	"github.com/ignite/collection-dispatcher/internal/dispatch"
	"github.com/ignite/collection-dispatcher/internal/lease"
	"github.com/ignite/collection-dispatcher/internal/pkg/httpretry"
	"github.com/ignite/collection-dispatcher/internal/pkg/logger"
	"github.com/ignite/collection-dispatcher/internal/provider"
	"github.com/ignite/collection-dispatcher/internal/queue"
	schedulerpkg "github.com/ignite/collection-dispatcher/internal/scheduler"
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
		return fmt.Errorf("dispatcher: load config: %w", err)
	}

	workerID := uuid.NewString()
	log := logger.WithWorker(workerID)

	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("dispatcher: read invocation payload: %w", err)
	}

	var event dispatch.InvocationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("dispatcher: parse invocation event: %w", err)
	}

	log.WithField("action", event.Action).Info("worker started")

	ctx := context.Background()

	gateway := store.New(cfg.Store.BaseURL, cfg.Store.APIKey, cfg.Store.Timeout(), cfg.Store.MaxRetries)

	var redisClient *redis.Client
	if cfg.Cache.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	}
	templateCache := cache.New(gateway, redisClient, cfg.Cache.TTL())

	httpClient := httpretry.NewRetryClient(&http.Client{Timeout: 30 * time.Second}, 3)

	emailProvider, err := provider.New(ctx, cfg, httpClient)
	if err != nil {
		return fmt.Errorf("dispatcher: construct provider: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return fmt.Errorf("dispatcher: load aws config: %w", err)
	}
	queueGateway := queue.New(sqs.NewFromConfig(awsCfg), cfg.Queue.BatchQueueURL)

	auditLogger := audit.New(gateway, workerID)

	workerLease := lease.New(gateway, workerID, cfg.Scheduler.LeaseTTLSeconds)
	wakeupScheduler := schedulerpkg.New(scheduler.NewFromConfig(awsCfg), gateway, workerLease, schedulerpkg.Config{
		RuleName:         orDefault(cfg.Scheduler.RuleName, "collection-email-scheduler"),
		WorkerLambdaARN:  cfg.Scheduler.WorkerLambdaARN,
		SchedulerRoleARN: cfg.Scheduler.SchedulerRoleARN,
		SafetyWakeup:     cfg.Scheduler.SafetyWakeup(),
	}, log)

	processor := dispatch.NewProcessor(&processorStoreAdapter{gateway, templateCache}, emailProvider, cfg.Provider.FromAddress, cfg.IsDev(), log)
	controller := dispatch.NewController(gateway, queueGateway, processor, auditLogger, wakeupScheduler, workerID, log)

	result, err := controller.Handle(ctx, event)
	if err != nil {
		return fmt.Errorf("dispatcher: handle invocation: %w", err)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("dispatcher: marshal result: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// processorStoreAdapter layers the Template Cache in front of the Store
// Gateway's GetTemplate, while passing every other ProcessorStore method
// straight through.
type processorStoreAdapter struct {
	*store.Gateway
	templateCache *cache.TemplateCache
}

func (a *processorStoreAdapter) GetTemplate(ctx context.Context, id string) (*store.EmailTemplate, error) {
	return a.templateCache.GetTemplate(ctx, id)
}
