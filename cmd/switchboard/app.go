package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/adapter"
	"github.com/zen-systems/switchboard/pkg/config"
	"github.com/zen-systems/switchboard/pkg/corpus"
	"github.com/zen-systems/switchboard/pkg/embedding"
	"github.com/zen-systems/switchboard/pkg/feedback"
	"github.com/zen-systems/switchboard/pkg/handoff"
	"github.com/zen-systems/switchboard/pkg/logging"
	"github.com/zen-systems/switchboard/pkg/metrics"
	"github.com/zen-systems/switchboard/pkg/router"
	"github.com/zen-systems/switchboard/pkg/store"
)

const metricsNamespace = "switchboard"

// app wires every service from one loaded configuration.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	corpus   *corpus.Corpus
	metrics  *metrics.Collector
	engine   *router.Engine
	handoff  *handoff.Protocol
	feedback *feedback.Loop
	lock     *feedback.RedisLock
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	st, err := store.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	emb, err := embedding.New(cfg)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		corpus:  corpus.New(st, logger),
		metrics: metrics.NewCollector(metricsNamespace, logger),
	}
	a.metrics.WatchCorpus(metricsNamespace, a.corpus)

	routing := cfg.RoutingConfig
	engineOpts := []router.EngineOption{
		router.WithRecorder(st),
		router.WithObserver(a.metrics),
		router.WithLogger(logger),
	}
	if routing.VectorEnabled() {
		engineOpts = append(engineOpts, router.WithVectorRouter(
			router.NewVectorRouter(emb, a.corpus, routing.Vector.K, logger)))
	}
	if routing.ClassifierEnabled() {
		oracle, err := createOracle(cfg, a.metrics, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		engineOpts = append(engineOpts, router.WithOracle(oracle))
	}
	a.engine = router.NewEngine(routing, engineOpts...)

	a.handoff = handoff.New(a.engine, st, routing.Thresholds.Handoff,
		handoff.WithObserver(a.metrics),
		handoff.WithLogger(logger))

	loopOpts := []feedback.Option{
		feedback.WithObserver(a.metrics),
		feedback.WithLogger(logger),
	}
	if cfg.Redis.URL != "" {
		lock, err := feedback.NewRedisLock(cfg.Redis.URL, cfg.Redis.LockTTL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.lock = lock
		loopOpts = append(loopOpts, feedback.WithLock(lock))
	}
	a.feedback = feedback.NewLoop(st, emb, a.corpus, loopOpts...)

	return a, nil
}

func (a *app) close() {
	if a.lock != nil {
		_ = a.lock.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logger.Sync()
}

// createOracle picks the configured classifier backend, falling back to the
// mock adapter when its API key is missing.
func createOracle(cfg *config.Config, obs router.Observer, logger *zap.Logger) (*router.ClassifierOracle, error) {
	adapters, err := createAdapters(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create adapters: %w", err)
	}
	name := cfg.RoutingConfig.Classifier.Adapter
	a, ok := adapters[name]
	if !ok {
		logger.Warn("classifier adapter not configured, using mock", zap.String("adapter", name))
		a = adapters["mock"]
	}
	return router.NewClassifierOracle(a, cfg.RoutingConfig.Classifier,
		router.WithOracleLogger(logger),
		router.WithOracleObserver(obs)), nil
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadWithRoutingFile(configFile)
	}
	return config.Load()
}

func createAdapters(cfg *config.Config) (map[string]adapter.Adapter, error) {
	adapters := make(map[string]adapter.Adapter)

	if cfg.AnthropicAPIKey != "" {
		a, err := adapter.NewAnthropicAdapter(cfg.AnthropicAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create anthropic adapter: %w", err)
		}
		adapters["anthropic"] = a
	}

	if cfg.OpenAIAPIKey != "" {
		a, err := adapter.NewOpenAIAdapter(cfg.OpenAIAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai adapter: %w", err)
		}
		adapters["openai"] = a
	}

	if cfg.GoogleAPIKey != "" {
		a, err := adapter.NewGoogleAdapter(cfg.GoogleAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create google adapter: %w", err)
		}
		adapters["google"] = a
	}

	if cfg.DeepSeekAPIKey != "" {
		a, err := adapter.NewDeepSeekAdapter(cfg.DeepSeekAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create deepseek adapter: %w", err)
		}
		adapters["deepseek"] = a
	}

	adapters["mock"] = adapter.NewMockAdapter()

	return adapters, nil
}
