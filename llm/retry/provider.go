package retry

import (
	"context"

	"github.com/BaSui01/paperflow/llm"
)

// retriedProvider 给 Completion 套上重试器，透传其余方法。
type retriedProvider struct {
	inner   llm.Provider
	retryer Retryer
}

// WrapProvider 返回带退避重试的 Provider。
// 只有 Completion 走重试（可重试错误见 types.Error.Retryable），
// HealthCheck 保持单次探测。p 或 r 为 nil 时原样返回 p。
func WrapProvider(p llm.Provider, r Retryer) llm.Provider {
	if p == nil || r == nil {
		return p
	}
	return &retriedProvider{inner: p, retryer: r}
}

func (p *retriedProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return DoWithResult(p.retryer, ctx, func() (*llm.ChatResponse, error) {
		return p.inner.Completion(ctx, req)
	})
}

func (p *retriedProvider) Name() string { return p.inner.Name() }

func (p *retriedProvider) HealthCheck(ctx context.Context) error {
	return p.inner.HealthCheck(ctx)
}
