package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/internal/tlsutil"
	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/types"
)

// AnthropicProvider 实现 Anthropic Messages API 的 Provider。
// 与 OpenAI 协议的差异：
// 1. 认证使用 x-api-key 请求头而非 Bearer Token
// 2. system 消息单独传递，不进入消息数组
// 3. max_tokens 为必填字段
type AnthropicProvider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewAnthropicProvider 创建 Anthropic Provider。
func NewAnthropicProvider(cfg Config, logger *zap.Logger) *AnthropicProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second // Claude 响应可能较慢
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL(KindAnthropic)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel(KindAnthropic)
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnthropicProvider{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("provider", "anthropic")),
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// convertMessages 提取 system 消息并转换其余消息。
func convertMessages(msgs []types.Message) (string, []anthropicMessage) {
	var system string
	var out []anthropicMessage
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			system = m.Content
			continue
		}
		out = append(out, anthropicMessage{Role: string(m.Role), Content: m.Content})
	}
	return system, out
}

// Completion 实现 llm.Provider。
func (p *AnthropicProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}

	system, messages := convertMessages(req.Messages)
	body := anthropicRequest{
		Model:       model,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to encode request").WithCause(err).WithProvider("anthropic")
	}

	endpoint := fmt.Sprintf("%s/v1/messages", strings.TrimRight(p.cfg.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to build request").WithCause(err).WithProvider("anthropic")
	}
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, mapTransportError("anthropic", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to read response").WithCause(err).WithRetryable(true).WithProvider("anthropic")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError("anthropic", resp.StatusCode, data)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, types.NewError(types.ErrParseError, "malformed messages response").WithCause(err).WithProvider("anthropic")
	}
	if len(parsed.Content) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "response contained no content blocks").WithRetryable(true).WithProvider("anthropic")
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	p.logger.Debug("completion ok",
		zap.String("model", parsed.Model),
		zap.Int("output_tokens", parsed.Usage.OutputTokens),
	)

	return &llm.ChatResponse{
		ID:       parsed.ID,
		Provider: "anthropic",
		Model:    parsed.Model,
		Content:  strings.TrimSpace(sb.String()),
		Usage: llm.ChatUsage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
		CreatedAt: time.Now(),
	}, nil
}

// HealthCheck 实现 llm.Provider。
func (p *AnthropicProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Completion(ctx, &llm.ChatRequest{
		Messages:  []types.Message{types.NewUserMessage("Hello")},
		MaxTokens: 8,
	})
	return err
}
