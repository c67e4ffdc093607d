package main

import (
	"context"
	"net/url"
	"time"

	"github.com/llj0824/weibo-research-guanghua/internal/batch"
	"github.com/llj0824/weibo-research-guanghua/internal/deepseek"
	"github.com/llj0824/weibo-research-guanghua/internal/gateway"
	"github.com/llj0824/weibo-research-guanghua/internal/handlers"
	"github.com/llj0824/weibo-research-guanghua/internal/prompt"
	"github.com/llj0824/weibo-research-guanghua/internal/selector"
	"github.com/llj0824/weibo-research-guanghua/internal/store"
	"github.com/llj0824/weibo-research-guanghua/internal/weibo"
	"github.com/llj0824/weibo-research-guanghua/pkg/config"
	"github.com/llj0824/weibo-research-guanghua/pkg/database"
	"github.com/llj0824/weibo-research-guanghua/pkg/logging"
	"github.com/llj0824/weibo-research-guanghua/pkg/monitoring"
	"github.com/llj0824/weibo-research-guanghua/pkg/server"
	"github.com/llj0824/weibo-research-guanghua/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("responder")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Responder (Weibo study response generator and sender)")

	dbURL := config.RequireEnv("DATABASE_URL")

	// === Database Connection ===
	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	st := store.NewStore(db)
	if err := st.EnsureSchema(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to ensure database schema")
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("responder", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("responder", version.Version, version.GitCommit)

	upstreamCalls := metricsCollector.NewCounter(
		"upstream_calls_total", "Outbound API calls by outcome", []string{"upstream", "outcome"})
	upstreamDuration := metricsCollector.NewHistogram(
		"upstream_call_duration_seconds", "Outbound API call duration", []string{"upstream"}, nil)
	quotaUsed := metricsCollector.NewGauge(
		"quota_used", "Hourly quota consumed per upstream", []string{"upstream"})

	// === Gateways ===
	// Each upstream has its own hourly quota; every call spends one unit.
	weiboQuota := gateway.NewHourlyQuota(config.GetEnvInt("WEIBO_HOURLY_LIMIT", 150))
	weiboGateway := gateway.New(gateway.Config{
		Upstream:      "weibo",
		Quota:         weiboQuota,
		MinInterval:   config.GetEnvDuration("WEIBO_MIN_INTERVAL", 1500*time.Millisecond),
		RateLimitBody: weibo.IsRateLimitBody,
		Calls:         upstreamCalls,
		Duration:      upstreamDuration,
		QuotaUsed:     quotaUsed,
		Logger:        logger,
	})

	deepseekQuota := gateway.NewHourlyQuota(config.GetEnvInt("DEEPSEEK_HOURLY_LIMIT", 100))
	deepseekGateway := gateway.New(gateway.Config{
		Upstream:  "deepseek",
		Quota:     deepseekQuota,
		Timeout:   config.GetEnvDuration("DEEPSEEK_TIMEOUT", 60*time.Second),
		Calls:     upstreamCalls,
		Duration:  upstreamDuration,
		QuotaUsed: quotaUsed,
		Logger:    logger,
	})

	// === Clients ===
	weiboConfig := weibo.ConfigFromEnv()
	deepseekConfig := deepseek.ConfigFromEnv()
	weiboClient := weibo.NewClient(weiboGateway, weiboConfig)
	deepseekClient := deepseek.NewClient(deepseekGateway, deepseekConfig)

	// === Group Configuration ===
	groups := prompt.DefaultLibrary()
	if path := config.GetEnv("GROUPS_CONFIG", ""); path != "" {
		loaded, err := prompt.LoadLibrary(path)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load group configuration")
		}
		groups = loaded
		logger.WithField("path", path).Info("Loaded group configuration")
	}

	policy := selector.PolicyEngagement
	if config.GetEnv("SELECTOR_POLICY", "engagement") == "latest" {
		policy = selector.PolicyLatest
	}
	sel := selector.New(policy, time.Now)

	// === Batch Runners ===
	generator := batch.NewGenerator(st, deepseekClient, sel, groups, logger)
	sender := batch.NewSender(st, weiboClient, logger)
	syncer := batch.NewSyncer(st, weiboClient, logger)

	handlers.Init(generator, syncer, sender, st, groups, map[string]handlers.QuotaReporter{
		"weibo":    weiboGateway,
		"deepseek": deepseekGateway,
	}, logger)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("weibo_api", monitoring.HTTPServiceHealthCheck("weibo", weiboConfig.APIBase))
	if u, err := url.Parse(deepseekConfig.APIURL); err == nil && u.Host != "" {
		healthChecker.AddCheck("deepseek_api", monitoring.HTTPServiceHealthCheck("deepseek", u.Scheme+"://"+u.Host))
	}
	healthChecker.AddCheck("configuration", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":       dbURL,
		"WEIBO_ACCESS_TOKEN": config.GetEnv("WEIBO_ACCESS_TOKEN", ""),
		"DEEPSEEK_API_KEY":   config.GetEnv("DEEPSEEK_API_KEY", ""),
	}))

	// === HTTP Server ===
	serverConfig := server.DefaultConfig("responder", config.GetEnv("RESPONDER_PORT", "18050"))

	app := server.SetupServiceRouter(logger, "responder", healthChecker, metricsCollector)
	handlers.RegisterRoutes(app)

	if err := server.Start(serverConfig, app, logger); err != nil {
		logger.WithError(err).Fatal("Responder HTTP server failed")
	}
}
