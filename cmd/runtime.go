package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"codeguard/internal/ai"
	"codeguard/internal/analysis"
	"codeguard/internal/config"
	"codeguard/internal/events"
	"codeguard/internal/logging"
	"codeguard/internal/matcher"
	"codeguard/internal/metrics"
	"codeguard/internal/progress"
	"codeguard/internal/rules"
	"codeguard/internal/store"
)

const defaultRulesDir = ".codeguard/rules"

// aiFlags are the per-command AI overrides layered over config.
type aiFlags struct {
	enabled  bool
	profile  string
	provider string
	model    string
	fallback string
	timeout  time.Duration
}

type runtimeEnv struct {
	cfg       config.Config
	logger    *zap.Logger
	rules     *rules.Store
	store     store.Store
	publisher events.Publisher
	metrics   *metrics.Metrics
	analyzer  *analysis.Analyzer
	aiConfig  ai.Config
	aiReady   bool
}

type runtimeOptions struct {
	ai      *aiFlags
	sink    progress.Sink
	persist bool
	publish bool
}

func loadConfig(g *globalOptions) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if g.rulesDir != "" {
		cfg.RulesDir = g.rulesDir
	}
	if g.storeDriver != "" {
		cfg.Store.Driver = g.storeDriver
	}
	if g.storePath != "" {
		cfg.Store.Path = g.storePath
	}
	if g.storeDSN != "" {
		cfg.Store.DSN = g.storeDSN
	}
	if g.debug {
		debug := true
		cfg.Log.Debug = &debug
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	return logging.New(cfg.Log.Debug != nil && *cfg.Log.Debug)
}

// loadRules returns the builtin rules followed by the rules directory. A directory
// rule with a builtin's id replaces it in place.
func loadRules(g *globalOptions, cfg config.Config, logger *zap.Logger) (*rules.Store, error) {
	var initial []rules.Rule
	if !g.noBuiltins {
		initial = rules.Builtins()
	}
	rs := rules.NewStore(initial...)

	dir := cfg.RulesDir
	if dir == "" {
		dir = defaultRulesDir
	}
	loaded, warnings, err := rules.LoadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		logger.Warn("rule skipped", zap.String("detail", w))
	}
	for _, r := range loaded {
		if err := rs.Add(r); err != nil {
			logger.Warn("rule not loaded", zap.String("rule_id", r.ID), zap.Error(err))
		}
	}
	logger.Debug("rules loaded", zap.Int("count", rs.Len()), zap.String("dir", dir))
	return rs, nil
}

func buildRuntime(ctx context.Context, g *globalOptions, opts runtimeOptions) (*runtimeEnv, error) {
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	env := &runtimeEnv{cfg: cfg, logger: logger, metrics: metrics.New(), publisher: events.Noop{}}

	env.rules, err = loadRules(g, cfg, logger)
	if err != nil {
		return nil, err
	}
	m, err := matcher.New(env.rules, 0, matcher.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	aopts := []analysis.Option{
		analysis.WithLogger(logger),
		analysis.WithMetrics(env.metrics),
	}
	if cfg.DefaultLanguage != "" {
		aopts = append(aopts, analysis.WithDefaultLanguage(cfg.DefaultLanguage))
	}
	if cfg.AggregateDefaultScore != nil {
		aopts = append(aopts, analysis.WithAggregateDefault(*cfg.AggregateDefaultScore))
	}
	if opts.sink != nil {
		aopts = append(aopts, analysis.WithSink(opts.sink))
	}

	if opts.persist {
		st, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		env.store = st
		aopts = append(aopts, analysis.WithStore(st))
	}

	if opts.publish && strings.TrimSpace(cfg.NATS.URL) != "" {
		pub, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			logger.Warn("completion events disabled", zap.Error(err))
		} else {
			env.publisher = pub
			aopts = append(aopts, analysis.WithPublisher(pub))
		}
	}

	if opts.ai != nil {
		detector, src, err := env.setupAI(*opts.ai)
		if err != nil {
			env.Close()
			return nil, err
		}
		if detector != nil {
			aopts = append(aopts, analysis.WithAI(detector, src))
		}
	}

	env.analyzer, err = analysis.New(m, aopts...)
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// setupAI resolves the provider configuration. A configuration that cannot be
// resolved disables AI review with a warning instead of failing the command.
func (e *runtimeEnv) setupAI(f aiFlags) (*ai.Detector, ai.ConfigSource, error) {
	section := e.cfg.AI
	if !f.enabled && !section.IsEnabled() {
		return nil, nil, nil
	}
	resolve := section.ResolveOptions()
	if f.profile != "" {
		resolve.Profile = f.profile
	}
	if f.provider != "" {
		resolve.Provider = f.provider
	}
	if f.model != "" {
		resolve.Model = f.model
	}
	if f.timeout > 0 {
		resolve.Timeout = f.timeout
	}
	fallback := section.Fallback
	if f.fallback != "" {
		fallback = f.fallback
	}

	dopts := []ai.Option{
		ai.WithLogger(e.logger),
		ai.WithFallback(fallback),
		ai.WithFailureHook(func(p *ai.ProviderError) {
			e.metrics.IncAIFailure(p.Provider, p.Stage)
		}),
	}
	if section.PromptFile != "" {
		tmpl, err := readPromptFile(section.PromptFile)
		if err != nil {
			return nil, nil, err
		}
		dopts = append(dopts, ai.WithTemplate(tmpl))
	}
	detector, err := ai.NewDetector(dopts...)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := ai.ResolveConfig(resolve)
	if err != nil {
		e.logger.Warn("ai review disabled", zap.Error(err))
		return nil, nil, nil
	}
	e.aiConfig = cfg
	e.aiReady = true
	e.logger.Debug("ai review enabled", zap.Stringer("config", cfg), zap.String("fallback", detector.Fallback()))
	return detector, ai.StaticConfigSource{Config: cfg, Enabled: true}, nil
}

const maxPromptBytes = 64 << 10

func readPromptFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("ai prompt file: %w", err)
	}
	if info.Size() > maxPromptBytes {
		return "", fmt.Errorf("ai prompt file %s exceeds %d bytes", path, maxPromptBytes)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("ai prompt file: %w", err)
	}
	return string(b), nil
}

func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	opts := store.Options{Driver: cfg.Store.Driver, Path: cfg.Store.Path, DSN: cfg.Store.DSN}
	if strings.EqualFold(opts.Driver, store.DriverPebble) && opts.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve store path: %w", err)
		}
		opts.Path = filepath.Join(home, ".codeguard", "data")
	}
	return store.Open(ctx, opts)
}

func (e *runtimeEnv) Close() {
	if e == nil {
		return
	}
	if e.publisher != nil {
		_ = e.publisher.Close()
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.Warn("close store", zap.Error(err))
		}
	}
	_ = e.logger.Sync()
}
