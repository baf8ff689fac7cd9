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

// OpenAIProvider 实现 OpenAI Chat Completions 协议的 Provider。
// SiliconFlow、DeepSeek、GLM 以及自定义端点均走同一协议，仅端点与模型不同，
// 以此取代按模型名字符串分支的做法。
type OpenAIProvider struct {
	cfg    Config
	name   string
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider 创建 OpenAI 兼容 Provider。
func NewOpenAIProvider(cfg Config, logger *zap.Logger) *OpenAIProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL(cfg.Kind)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel(cfg.Kind)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	name := string(cfg.Kind)
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{
		cfg:    cfg,
		name:   name,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("provider", name)),
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
}

type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Completion 实现 llm.Provider。
func (p *OpenAIProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.cfg.Temperature
	}

	body := openaiRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, openaiMessage{Role: string(m.Role), Content: m.Content})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to encode request").WithCause(err).WithProvider(p.name)
	}

	endpoint := fmt.Sprintf("%s/v1/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))
	if p.cfg.Kind == KindGLM {
		// GLM 的 BaseURL 已包含版本前缀
		endpoint = fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.cfg.BaseURL, "/"))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to build request").WithCause(err).WithProvider(p.name)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, mapTransportError(p.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to read response").WithCause(err).WithRetryable(true).WithProvider(p.name)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(p.name, resp.StatusCode, data)
	}

	var parsed openaiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, types.NewError(types.ErrParseError, "malformed completion response").WithCause(err).WithProvider(p.name)
	}
	if parsed.Error != nil {
		return nil, types.NewError(types.ErrUpstreamError, parsed.Error.Message).WithProvider(p.name)
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "completion returned no choices").WithRetryable(true).WithProvider(p.name)
	}

	p.logger.Debug("completion ok",
		zap.String("model", parsed.Model),
		zap.Int("total_tokens", parsed.Usage.TotalTokens),
	)

	return &llm.ChatResponse{
		ID:       parsed.ID,
		Provider: p.name,
		Model:    parsed.Model,
		Content:  strings.TrimSpace(parsed.Choices[0].Message.Content),
		Usage: llm.ChatUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		CreatedAt: time.Now(),
	}, nil
}

// HealthCheck 实现 llm.Provider。
func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	_, err := p.Completion(ctx, &llm.ChatRequest{
		Messages:  []types.Message{types.NewUserMessage("Hello")},
		MaxTokens: 8,
	})
	return err
}
