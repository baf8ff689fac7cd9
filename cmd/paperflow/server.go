package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/paperflow/agent"
	"github.com/BaSui01/paperflow/comms"
	"github.com/BaSui01/paperflow/config"
	"github.com/BaSui01/paperflow/internal/database"
	"github.com/BaSui01/paperflow/internal/metrics"
	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/llm/retry"
	"github.com/BaSui01/paperflow/providers"
	"github.com/BaSui01/paperflow/research"
	"github.com/BaSui01/paperflow/research/sources"
	"github.com/BaSui01/paperflow/store"
	"github.com/BaSui01/paperflow/workflow"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装 PaperFlow 的全部组件：存储、通信总线、智能体与工作流管理器。
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	collector *metrics.Collector
	pool      *database.PoolManager
	store     *store.Store
	bus       *comms.Bus
	activity  *workflow.ActivityLog
	manager   *workflow.Manager

	httpServer *http.Server
	errCh      chan error
}

// NewServer 按配置装配所有组件。
// 未配置 API Key 时以降级模式运行：检索走合成兜底，写作与审阅环节会快速失败。
func NewServer(cfg *config.Config, logger *zap.Logger, db *gorm.DB) (*Server, error) {
	collector := metrics.NewCollector(cfg.Server.MetricsNamespace, logger)

	pool, err := database.NewPoolManager(db, cfg.Database.Pool, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init connection pool: %w", err)
	}

	if err := store.AutoMigrate(pool.DB()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	st := store.New(pool, logger)

	provider := buildProvider(cfg.Provider, collector, logger)
	srcs := buildSources(cfg.Research, collector, logger)

	synthetic := research.NewSyntheticGenerator(provider, logger)
	keypoints := research.NewKeyPointExtractor(provider, logger)
	aggregator := research.NewAggregator(srcs, synthetic, keypoints, cfg.Research.Aggregator, logger)

	bus := comms.NewBus(provider, logger)
	activity := workflow.NewActivityLog(logger)

	runner := workflow.NewRunner(
		st,
		bus,
		activity,
		agent.NewSupervisor(provider, logger),
		agent.NewResearch(aggregator, provider, logger),
		agent.NewWriting(provider, logger),
		agent.NewReview(provider, logger),
		collector,
		cfg.Workflow,
		logger,
	)
	manager := workflow.NewManager(runner, logger)

	return &Server{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		pool:      pool,
		store:     st,
		bus:       bus,
		activity:  activity,
		manager:   manager,
		errCh:     make(chan error, 1),
	}, nil
}

// buildProvider 根据配置创建 LLM Provider，失败或未配置时返回 nil（降级模式）。
func buildProvider(cfg config.ProviderConfig, collector *metrics.Collector, logger *zap.Logger) llm.Provider {
	if cfg.Kind == "" || cfg.APIKey == "" {
		logger.Warn("LLM provider not configured, running in degraded mode",
			zap.String("kind", cfg.Kind))
		return nil
	}

	provider, err := providers.New(providers.Config{
		Kind:        providers.Kind(cfg.Kind),
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: float32(cfg.Temperature),
		Timeout:     cfg.Timeout,
	}, logger)
	if err != nil {
		logger.Warn("Failed to create LLM provider, running in degraded mode",
			zap.String("kind", cfg.Kind), zap.Error(err))
		return nil
	}

	logger.Info("LLM provider initialized",
		zap.String("kind", cfg.Kind), zap.String("model", cfg.Model))
	// 指标按单次尝试上报，退避重试套在外层
	return retry.WrapProvider(
		instrumentProvider(provider, collector),
		retry.NewBackoffRetryer(retry.DefaultPolicy(), logger))
}

// buildSources 按配置顺序装配检索数据源，顺序即聚合器的默认查询顺序。
func buildSources(cfg config.ResearchConfig, collector *metrics.Collector, logger *zap.Logger) []sources.Source {
	wrap := func(src sources.Source) sources.Source {
		return instrumentSource(throttleSource(src, cfg.SourceRPS), collector)
	}

	var srcs []sources.Source
	for _, name := range cfg.Sources {
		switch name {
		case sources.NameArxiv:
			srcs = append(srcs, wrap(sources.NewArxivSource(cfg.Arxiv, logger)))
		case sources.NamePubMed:
			srcs = append(srcs, wrap(sources.NewPubMedSource(cfg.PubMed, logger)))
		case sources.NameScholar:
			if cfg.Scholar.APIKey == "" {
				logger.Warn("Google Scholar source requires SerpAPI key, skipping")
				continue
			}
			srcs = append(srcs, wrap(sources.NewScholarSource(cfg.Scholar, logger)))
		default:
			logger.Warn("Unknown research source, skipping", zap.String("source", name))
		}
	}
	return srcs
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动 HTTP 服务器（非阻塞）。
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := Chain(mux,
		Recovery(s.logger),
		RequestLogger(s.logger, s.collector),
	)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:      handler,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  2 * s.cfg.Server.ReadTimeout,
	}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.errCh <- err
		}
	}()

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞等待退出信号或服务器故障，随后执行优雅关闭。
func (s *Server) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-s.errCh:
		s.logger.Error("HTTP server failed", zap.Error(err))
	}

	s.Shutdown()
}

// Shutdown 优雅关闭：先取消在途工作流并等其退出，再关 HTTP 与数据库。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.manager.Shutdown(); err != nil {
		s.logger.Error("Workflow manager shutdown error", zap.Error(err))
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if err := s.pool.Close(); err != nil {
		s.logger.Error("Database close error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown complete")
}

// healthy 检查关键依赖是否可用。
func (s *Server) healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
