// Package paperflow provides a top-level convenience entry point for running
// the multi-agent paper workflow without assembling the engine by hand.
//
// Usage:
//
//	import "github.com/BaSui01/paperflow"
//
//	eng, err := paperflow.New(paperflow.WithOpenAI("gpt-4o", apiKey))
//	eng, err := paperflow.New(paperflow.WithAnthropic("claude-3-opus-20240229", apiKey))
//	defer eng.Close()
//
//	final, err := eng.Run(ctx, "quantum error correction")
//
// The HTTP service in cmd/paperflow wires the same components from
// configuration; use this package when embedding the engine in another
// program.
package paperflow

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/paperflow/agent"
	"github.com/BaSui01/paperflow/comms"
	"github.com/BaSui01/paperflow/internal/database"
	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/llm/retry"
	"github.com/BaSui01/paperflow/providers"
	"github.com/BaSui01/paperflow/research"
	"github.com/BaSui01/paperflow/research/sources"
	"github.com/BaSui01/paperflow/store"
	"github.com/BaSui01/paperflow/types"
	"github.com/BaSui01/paperflow/workflow"
)

// Engine bundles the assembled workflow components for embedded use.
type Engine struct {
	Store    *store.Store
	Bus      *comms.Bus
	Activity *workflow.ActivityLog
	Runner   *workflow.Runner
	Manager  *workflow.Manager

	pool   *database.PoolManager
	logger *zap.Logger
}

type options struct {
	provider    llm.Provider
	providerCfg *providers.Config
	dsn         string
	db          *gorm.DB
	srcs        []sources.Source
	logger      *zap.Logger
	workflow    workflow.Config
	research    research.Config
}

// Option configures the engine created by [New].
type Option func(*options)

// WithProvider sets a pre-built LLM provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithOpenAI uses the OpenAI API with the given model and key.
func WithOpenAI(model, apiKey string) Option {
	return withKind(providers.KindOpenAI, model, apiKey)
}

// WithAnthropic uses the Anthropic API with the given model and key.
func WithAnthropic(model, apiKey string) Option {
	return withKind(providers.KindAnthropic, model, apiKey)
}

// WithSiliconFlow uses the SiliconFlow API with the given model and key.
func WithSiliconFlow(model, apiKey string) Option {
	return withKind(providers.KindSiliconFlow, model, apiKey)
}

// WithDeepSeek uses the DeepSeek API with the given model and key.
func WithDeepSeek(model, apiKey string) Option {
	return withKind(providers.KindDeepSeek, model, apiKey)
}

func withKind(kind providers.Kind, model, apiKey string) Option {
	return func(o *options) {
		o.providerCfg = &providers.Config{Kind: kind, Model: model, APIKey: apiKey}
	}
}

// WithDatabase uses an existing gorm connection instead of the default
// local SQLite file.
func WithDatabase(db *gorm.DB) Option {
	return func(o *options) { o.db = db }
}

// WithDSN sets the SQLite file path. Ignored when [WithDatabase] is given.
func WithDSN(dsn string) Option {
	return func(o *options) { o.dsn = dsn }
}

// WithSources sets the research sources tried in order. Defaults to
// arXiv then PubMed.
func WithSources(srcs ...sources.Source) Option {
	return func(o *options) { o.srcs = srcs }
}

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithWorkflowConfig overrides the iteration and error budgets.
func WithWorkflowConfig(cfg workflow.Config) Option {
	return func(o *options) { o.workflow = cfg }
}

// WithResearchConfig overrides aggregator retry behavior.
func WithResearchConfig(cfg research.Config) Option {
	return func(o *options) { o.research = cfg }
}

// New assembles a workflow engine. Without a provider option the engine
// runs degraded: research falls back to template papers and the writing
// phases fail fast.
func New(opts ...Option) (*Engine, error) {
	o := &options{
		dsn:      "paperflow.db",
		workflow: workflow.DefaultConfig(),
		research: research.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	provider := o.provider
	if provider == nil && o.providerCfg != nil {
		built, err := providers.New(*o.providerCfg, o.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build provider: %w", err)
		}
		provider = retry.WrapProvider(built,
			retry.NewBackoffRetryer(retry.DefaultPolicy(), o.logger))
	}

	db := o.db
	if db == nil {
		var err error
		db, err = gorm.Open(sqlite.Open(o.dsn), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	pool, err := database.NewPoolManager(db, database.DefaultPoolConfig(), o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init connection pool: %w", err)
	}
	if err := store.AutoMigrate(pool.DB()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	st := store.New(pool, o.logger)

	srcs := o.srcs
	if srcs == nil {
		srcs = []sources.Source{
			sources.NewArxivSource(sources.DefaultArxivConfig(), o.logger),
			sources.NewPubMedSource(sources.DefaultPubMedConfig(), o.logger),
		}
	}

	synthetic := research.NewSyntheticGenerator(provider, o.logger)
	keypoints := research.NewKeyPointExtractor(provider, o.logger)
	aggregator := research.NewAggregator(srcs, synthetic, keypoints, o.research, o.logger)

	bus := comms.NewBus(provider, o.logger)
	activity := workflow.NewActivityLog(o.logger)

	runner := workflow.NewRunner(
		st,
		bus,
		activity,
		agent.NewSupervisor(provider, o.logger),
		agent.NewResearch(aggregator, provider, o.logger),
		agent.NewWriting(provider, o.logger),
		agent.NewReview(provider, o.logger),
		nil,
		o.workflow,
		o.logger,
	)

	return &Engine{
		Store:    st,
		Bus:      bus,
		Activity: activity,
		Runner:   runner,
		Manager:  workflow.NewManager(runner, o.logger),
		pool:     pool,
		logger:   o.logger,
	}, nil
}

// Run creates a project for topic, runs the workflow to completion, and
// returns the final paper version.
func (e *Engine) Run(ctx context.Context, topic string) (*store.Version, error) {
	project, err := e.Store.CreateProject(ctx, topic, "", "")
	if err != nil {
		return nil, err
	}
	if err := e.Runner.Run(ctx, project.ID); err != nil {
		return nil, err
	}
	return e.Store.LatestVersion(ctx, project.ID, types.ContentFinal)
}

// Close releases the database pool. In-flight background runs started via
// Manager should be shut down first.
func (e *Engine) Close() error {
	return e.pool.Close()
}
