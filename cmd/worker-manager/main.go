// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-assistant/internal/common/camunda"
	"crm-assistant/internal/common/config"
	"crm-assistant/internal/common/database"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/observability"
	"crm-assistant/internal/engine"
	"crm-assistant/internal/engine/contextmanager"
	"crm-assistant/internal/engine/contextstore"

	pm "crm-assistant/internal/workers/conversation/process-message"
	rc "crm-assistant/internal/workers/conversation/reset-context"

	"github.com/elastic/go-elasticsearch/v8"
)

// retryWithBackoff retries operation with doubling delays.
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		if err = operation(); err == nil {
			return nil
		}
		if i < maxRetries-1 {
			log.Warn(operationName+" failed, retrying", map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "crm-assistant: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output).
		WithFields(map[string]interface{}{"service": cfg.App.Name, "version": cfg.App.Version})
	log.Info("starting crm assistant", map[string]interface{}{"environment": cfg.App.Environment})

	ctx := context.Background()

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := observability.InitTracing(cfg.App.Name, cfg.Tracing.JaegerEndpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			return err
		}
		defer func() {
			tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(tctx)
		}()
	}

	// --- Stores ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		if pg, err = database.NewPostgres(cfg.Database.Postgres); err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		return err
	}
	defer pg.Close()

	redisClient := database.NewRedis(cfg.Database.Redis)
	if err := retryWithBackoff(func() error { return redisClient.Ping(ctx) }, 10, 2*time.Second, log, "Redis connection"); err != nil {
		return err
	}
	defer redisClient.Close()

	readiness := []database.Pinger{pg}
	var es *elasticsearch.Client
	if len(cfg.Database.Elasticsearch.Addresses) > 0 {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			if esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch); err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, log, "Elasticsearch connection")
		if err != nil {
			return err
		}
		es = esClient.Client
		readiness = append(readiness, esClient)
	}

	// --- Engine ---
	mcfg, err := managerConfig(cfg.Conversation)
	if err != nil {
		return err
	}
	store := contextstore.NewRedisStore(redisClient.Client, cfg.Conversation.MaxUpdateRetries, log)
	readiness = append(readiness, store)
	contexts := contextmanager.NewManager(store, mcfg, log)

	router, err := buildExecutor(cfg, pg.DB, es, log)
	if err != nil {
		return err
	}
	sink, err := buildAnalytics(ctx, cfg, pg.DB, log)
	if err != nil {
		return err
	}

	eng := engine.New(&engine.Config{
		StoreTimeout:    config.GetDuration(cfg.Conversation.StoreTimeout),
		ExecutorTimeout: config.GetDuration(cfg.Conversation.ExecutorTimeout),
		MaxSuggestions:  cfg.Conversation.MaxSuggestions,
	}, contexts, router, sink, log, engine.WithObservability(obs))
	defer eng.Close()

	// --- Workers ---
	zeebe, err := camunda.NewClientWithConfig(&camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      10 * time.Second,
		RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
	})
	if err != nil {
		return err
	}
	defer zeebe.Close()

	var workers []*camunda.CamundaWorker
	if config.IsWorkerEnabled(cfg, pm.TaskType) {
		pmCfg := pm.LoadConfig()
		pmCfg.Timeout = workerTimeout(cfg, pm.TaskType, pmCfg.Timeout)
		workers = append(workers, startWorker(zeebe, cfg, pm.TaskType, pm.NewHandler(pmCfg, eng, log), log))
	}
	if config.IsWorkerEnabled(cfg, rc.TaskType) {
		rcCfg := rc.LoadConfig()
		rcCfg.Timeout = workerTimeout(cfg, rc.TaskType, rcCfg.Timeout)
		workers = append(workers, startWorker(zeebe, cfg, rc.TaskType, rc.NewHandler(rcCfg, contexts, log), log))
	}
	log.Info("workers registered", map[string]interface{}{"count": len(workers)})

	// --- Health & Metrics Server ---
	srv := newServer(cfg.App.HTTPPort, readiness)
	go func() {
		log.Info("health/metrics server listening", map[string]interface{}{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health/metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping workers", nil)
	for _, w := range workers {
		w.Stop()
	}
	if err := shutdownServer(srv, 10*time.Second); err != nil {
		log.Error("error stopping health server", map[string]interface{}{"error": err.Error()})
	}
	log.Info("crm assistant stopped", nil)
	return nil
}

func startWorker(client *camunda.Client, cfg *config.Config, taskType string, handler camunda.JobHandler, log logger.Logger) *camunda.CamundaWorker {
	wcfg := config.GetWorkerConfig(cfg, taskType)
	maxJobs := wcfg.MaxJobsActive
	if maxJobs == 0 {
		maxJobs = cfg.Camunda.MaxJobsActive
	}
	return camunda.NewWorker(client.GetClient(), taskType, camunda.WorkerOptions{
		MaxJobsActive: maxJobs,
		Timeout:       config.GetDuration(wcfg.Timeout),
	}, handler, log)
}
