// cmd/worker-manager/wiring.go
package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"crm-assistant/internal/common/aws"
	"crm-assistant/internal/common/config"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/zoho"
	"crm-assistant/internal/engine/analytics"
	"crm-assistant/internal/engine/contextmanager"
	"crm-assistant/internal/engine/executor"
	"crm-assistant/internal/models"
)

// routeTable overlays configured routes on the defaults.
func routeTable(configured map[string]string) (map[models.IntentTag]string, error) {
	routes := executor.DefaultRoutes()
	for name, backend := range configured {
		tag := models.IntentTag(name)
		if !tag.IsKnown() || tag == models.IntentUnknown || tag == models.IntentFollowUp {
			return nil, fmt.Errorf("executor.routes: %q is not an executable intent", name)
		}
		routes[tag] = backend
	}
	return routes, nil
}

// buildExecutor wires one backend per configured store. A route whose
// backend is not configured answers with an unsupported-intent reply.
func buildExecutor(cfg *config.Config, db *sql.DB, es *elasticsearch.Client, log logger.Logger) (*executor.Router, error) {
	routes, err := routeTable(cfg.Executor.Routes)
	if err != nil {
		return nil, err
	}

	backends := map[string]executor.Executor{
		executor.BackendSQL: executor.NewSQLExecutor(db, cfg.Executor.RowLimit),
	}
	if es != nil {
		backends[executor.BackendSearch] = executor.NewSearchExecutor(es, cfg.Executor.SearchIndex, cfg.Executor.RowLimit)
	}
	if token := cfg.Integrations.Zoho.AuthToken; token != "" {
		crm := zoho.NewCRMClient(token, cfg.Integrations.Zoho.BaseURL, config.GetDuration(cfg.Integrations.Zoho.Timeout))
		backends[executor.BackendCRM] = executor.NewCRMExecutor(crm, cfg.Executor.NurtureStage)
	} else {
		log.Warn("zoho oauth token not set, stage changes are disabled", nil)
	}

	for intent, backend := range routes {
		if _, ok := backends[backend]; !ok {
			log.Warn("route has no backend", map[string]interface{}{
				"intent":  string(intent),
				"backend": backend,
			})
		}
	}
	return executor.NewRouter(routes, backends, log), nil
}

// buildAnalytics fans feedback events out to every enabled sink behind an
// AsyncSink, so a slow sink never delays a reply.
func buildAnalytics(ctx context.Context, cfg *config.Config, db *sql.DB, log logger.Logger) (*analytics.AsyncSink, error) {
	var sinks analytics.MultiSink
	if cfg.Analytics.Postgres {
		sinks = append(sinks, analytics.NewPostgresSink(db))
	}

	if cfg.Analytics.SNS || cfg.Analytics.Email {
		awsCfg, err := aws.LoadConfig(ctx, cfg.Integrations.AWS.Region)
		if err != nil {
			return nil, err
		}
		if cfg.Analytics.SNS {
			sinks = append(sinks, analytics.NewSNSSink(aws.NewSNSClient(awsCfg), cfg.Integrations.AWS.SNS.TopicARN))
		}
		if cfg.Analytics.Email {
			sinks = append(sinks, analytics.NewEmailAlertSink(
				aws.NewSESClient(awsCfg),
				cfg.Integrations.AWS.SES.FromEmail,
				cfg.Analytics.AlertAddresses,
			))
		}
	}

	log.Info("feedback analytics configured", map[string]interface{}{"sinks": len(sinks)})
	return analytics.NewAsyncSink(sinks, config.GetDuration(cfg.Analytics.Timeout), log), nil
}

func managerConfig(cfg config.ConversationConfig) (*contextmanager.Config, error) {
	mc := &contextmanager.Config{
		KeyPrefix:    cfg.KeyPrefix,
		TTL:          cfg.TTL(),
		HistoryLimit: cfg.HistoryLimit,
	}
	if err := mc.Validate(); err != nil {
		return nil, fmt.Errorf("conversation config: %w", err)
	}
	return mc, nil
}

func workerTimeout(cfg *config.Config, taskType string, fallback time.Duration) time.Duration {
	if ms := config.GetWorkerConfig(cfg, taskType).Timeout; ms > 0 {
		return config.GetDuration(ms)
	}
	return fallback
}
