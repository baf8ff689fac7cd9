// Package research 聚合多个学术数据源的检索结果，
// 并在全部数据源失效时降级到模型生成的文献综述。
package research

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/research/sources"
	"github.com/BaSui01/paperflow/types"
)

// Config 配置聚合检索行为。
type Config struct {
	MaxResults    int            `json:"max_results" yaml:"max_results"`       // 单数据源最大结果数
	MaxRetries    int            `json:"max_retries" yaml:"max_retries"`       // 单数据源最大尝试次数
	BaseDelay     time.Duration  `json:"base_delay" yaml:"base_delay"`         // 退避基数，第 n 次重试等待 BaseDelay*2^n
	SourceRetries map[string]int `json:"source_retries" yaml:"source_retries"` // 按数据源覆盖尝试次数
}

// DefaultConfig 返回聚合检索的默认配置。
// Google Scholar 走 SerpAPI 按请求计费，只给一次尝试。
func DefaultConfig() Config {
	return Config{
		MaxResults: 10,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		SourceRetries: map[string]int{
			sources.NameScholar: 1,
		},
	}
}

// Result 聚合一次检索的全部产出。
// Papers 永不为空：所有数据源失效时由降级生成器兜底。
type Result struct {
	Topic             string            `json:"topic"`
	Papers            []types.Paper     `json:"papers"`
	SuccessfulSources []string          `json:"successful_sources"`
	FailedSources     map[string]string `json:"failed_sources,omitempty"`
	Fallback          bool              `json:"fallback"` // 是否来自降级生成
	Timestamp         time.Time         `json:"timestamp"`
}

// Aggregator 按顺序查询数据源，逐源重试，最终降级。
// Search 不返回错误：失败被记入 Result.FailedSources。
type Aggregator struct {
	sources   []sources.Source
	synthetic *SyntheticGenerator
	keypoints *KeyPointExtractor
	config    Config
	logger    *zap.Logger

	// 测试注入点：可替换为记录调用的假睡眠
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAggregator 创建聚合器。synthetic 不可为 nil，它是结果非空保证的兜底。
func NewAggregator(srcs []sources.Source, synthetic *SyntheticGenerator, keypoints *KeyPointExtractor, config Config, logger *zap.Logger) *Aggregator {
	if config.MaxResults <= 0 {
		config.MaxResults = 10
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		sources:   srcs,
		synthetic: synthetic,
		keypoints: keypoints,
		config:    config,
		logger:    logger,
		sleep:     sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Search 聚合检索。按顺序查询每个数据源，成功结果按顺序拼接，不去重；
// sourceNames 非空时只查其中列出的数据源并按该顺序执行，空则用注册全集。
// 没有任何数据源产出时降级到模型生成，保证返回的论文列表非空。
func (a *Aggregator) Search(ctx context.Context, topic string, sourceNames []string) *Result {
	result := &Result{
		Topic:         topic,
		FailedSources: make(map[string]string),
		Timestamp:     time.Now(),
	}

	for _, src := range a.selectSources(sourceNames, result) {
		papers, err := a.searchSource(ctx, src, topic)
		if err != nil {
			result.FailedSources[src.Name()] = err.Error()
			a.logger.Warn("research source failed",
				zap.String("source", src.Name()),
				zap.String("topic", topic),
				zap.Error(err))
			continue
		}
		if len(papers) == 0 {
			result.FailedSources[src.Name()] = "no results"
			a.logger.Warn("research source returned no results",
				zap.String("source", src.Name()),
				zap.String("topic", topic))
			continue
		}

		result.Papers = append(result.Papers, a.keypoints.Annotate(ctx, papers)...)
		result.SuccessfulSources = append(result.SuccessfulSources, src.Name())
		a.logger.Info("research source succeeded",
			zap.String("source", src.Name()),
			zap.String("topic", topic),
			zap.Int("papers", len(papers)))
	}

	if len(result.Papers) == 0 {
		// 所有数据源失效，降级到模型生成
		a.logger.Warn("all research sources failed, falling back to generated papers",
			zap.String("topic", topic),
			zap.Int("failed_sources", len(result.FailedSources)))
		result.Papers = a.synthetic.Generate(ctx, topic, 5)
		result.Fallback = true
	}
	return result
}

// selectSources 把本次检索要求的数据源名单映射到已注册数据源。
// 未注册的名字记入 FailedSources，不中断其余检索。
func (a *Aggregator) selectSources(sourceNames []string, result *Result) []sources.Source {
	if len(sourceNames) == 0 {
		return a.sources
	}

	byName := make(map[string]sources.Source, len(a.sources))
	for _, src := range a.sources {
		byName[src.Name()] = src
	}

	var selected []sources.Source
	for _, name := range sourceNames {
		src, ok := byName[name]
		if !ok {
			result.FailedSources[name] = "source not configured"
			a.logger.Warn("requested research source is not configured",
				zap.String("source", name))
			continue
		}
		selected = append(selected, src)
	}
	return selected
}

// searchSource 对单个数据源做带指数退避的有限重试。
// 第 n 次失败后等待 BaseDelay*2^n 再试，最后一次失败不等待。
func (a *Aggregator) searchSource(ctx context.Context, src sources.Source, topic string) ([]types.Paper, error) {
	attempts := a.config.MaxRetries
	if override, ok := a.config.SourceRetries[src.Name()]; ok && override > 0 {
		attempts = override
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := a.config.BaseDelay * time.Duration(1<<uint(attempt-1))
			a.logger.Debug("retrying research source",
				zap.String("source", src.Name()),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay))
			if err := a.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		papers, err := src.Search(ctx, topic, a.config.MaxResults)
		if err == nil {
			if len(papers) == 0 && attempt < attempts-1 {
				lastErr = fmt.Errorf("no results")
				continue
			}
			return papers, nil
		}
		lastErr = err
		if !types.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}
