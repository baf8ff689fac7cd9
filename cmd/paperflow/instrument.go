package main

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/BaSui01/paperflow/internal/metrics"
	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/research/sources"
	"github.com/BaSui01/paperflow/types"
)

// =============================================================================
// 📊 数据源与 Provider 装饰器
// =============================================================================
// 在组装层给 Provider 和检索源套上指标上报与限速，业务包保持无此类依赖。
// =============================================================================

// instrumentedProvider 包装 llm.Provider，上报请求次数、耗时与 token 用量。
type instrumentedProvider struct {
	inner     llm.Provider
	collector *metrics.Collector
}

func instrumentProvider(p llm.Provider, collector *metrics.Collector) llm.Provider {
	if collector == nil {
		return p
	}
	return &instrumentedProvider{inner: p, collector: collector}
}

func (p *instrumentedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := p.inner.Completion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		p.collector.RecordProviderRequest(p.inner.Name(), req.Model, "error", duration, 0, 0)
		return nil, err
	}
	p.collector.RecordProviderRequest(p.inner.Name(), resp.Model, "success", duration,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

func (p *instrumentedProvider) Name() string { return p.inner.Name() }

func (p *instrumentedProvider) HealthCheck(ctx context.Context) error {
	return p.inner.HealthCheck(ctx)
}

// instrumentedSource 包装 sources.Source，按结果分类上报检索尝试。
type instrumentedSource struct {
	inner     sources.Source
	collector *metrics.Collector
}

func instrumentSource(src sources.Source, collector *metrics.Collector) sources.Source {
	if collector == nil {
		return src
	}
	return &instrumentedSource{inner: src, collector: collector}
}

func (s *instrumentedSource) Name() string { return s.inner.Name() }

func (s *instrumentedSource) Search(ctx context.Context, query string, maxResults int) ([]types.Paper, error) {
	papers, err := s.inner.Search(ctx, query, maxResults)
	switch {
	case err != nil:
		s.collector.RecordSourceAttempt(s.inner.Name(), "error", 0)
	case len(papers) == 0:
		s.collector.RecordSourceAttempt(s.inner.Name(), "empty", 0)
	default:
		s.collector.RecordSourceAttempt(s.inner.Name(), "success", len(papers))
	}
	return papers, err
}

// throttledSource 对检索源限速，arXiv 等公共 API 对请求频率有约束。
type throttledSource struct {
	inner   sources.Source
	limiter *rate.Limiter
}

func throttleSource(src sources.Source, rps float64) sources.Source {
	if rps <= 0 {
		return src
	}
	return &throttledSource{inner: src, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (s *throttledSource) Name() string { return s.inner.Name() }

func (s *throttledSource) Search(ctx context.Context, query string, maxResults int) ([]types.Paper, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.inner.Search(ctx, query, maxResults)
}
