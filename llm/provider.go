// Package llm 定义统一的文本补全 Provider 接口。
// 工作流核心只依赖该抽象，具体适配见 providers 包。
package llm

import (
	"context"
	"time"

	"github.com/BaSui01/paperflow/types"
)

// ChatRequest 同步补全请求。
type ChatRequest struct {
	TraceID     string          `json:"trace_id,omitempty"`
	Model       string          `json:"model,omitempty"`
	Messages    []types.Message `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
	Timeout     time.Duration   `json:"timeout,omitempty"`
}

// ChatUsage token 用量统计。
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatResponse 同步补全响应。
type ChatResponse struct {
	ID        string    `json:"id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model"`
	Content   string    `json:"content"`
	Usage     ChatUsage `json:"usage,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Provider 定义统一的 LLM 适配接口。
// 错误统一使用 types.Error（带错误码与 Retryable 标记），
// 不使用哨兵字符串返回值表达失败。
type Provider interface {
	// Completion 发起同步补全请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name 返回 Provider 的唯一标识
	Name() string

	// HealthCheck 执行轻量级探活
	HealthCheck(ctx context.Context) error
}

// Complete 是单轮补全的便捷入口：发送消息序列并取回文本。
// p 为 nil 时返回 PROVIDER_UNAVAILABLE（离线部署下写作等必须依赖模型的环节借此快速失败）。
func Complete(ctx context.Context, p Provider, messages []types.Message) (string, error) {
	if p == nil {
		return "", types.NewError(types.ErrProviderUnavailable, "no llm provider configured")
	}
	resp, err := p.Completion(ctx, &ChatRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
