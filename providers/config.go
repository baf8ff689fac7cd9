// Package providers 提供具体 LLM 服务的 llm.Provider 适配实现。
package providers

import "time"

// Kind 标识 Provider 适配类型。
// OpenAI 兼容协议覆盖 OpenAI、SiliconFlow、DeepSeek、GLM 与自定义端点。
type Kind string

const (
	KindOpenAI      Kind = "openai"
	KindSiliconFlow Kind = "siliconflow"
	KindDeepSeek    Kind = "deepseek"
	KindGLM         Kind = "glm"
	KindAnthropic   Kind = "anthropic"
	KindCustom      Kind = "custom"
)

// Config Provider 配置
type Config struct {
	Kind        Kind          `json:"kind" yaml:"kind"`
	APIKey      string        `json:"api_key" yaml:"api_key"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Model       string        `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// defaultBaseURL 各 Kind 的默认端点
func defaultBaseURL(kind Kind) string {
	switch kind {
	case KindOpenAI:
		return "https://api.openai.com"
	case KindSiliconFlow:
		return "https://api.siliconflow.cn"
	case KindDeepSeek:
		return "https://api.deepseek.com"
	case KindGLM:
		return "https://open.bigmodel.cn/api/paas/v4"
	case KindAnthropic:
		return "https://api.anthropic.com"
	}
	return ""
}

// defaultModel 各 Kind 的默认模型
func defaultModel(kind Kind) string {
	switch kind {
	case KindOpenAI:
		return "gpt-4o"
	case KindSiliconFlow:
		return "deepseek-ai/DeepSeek-R1-Distill-Qwen-7B"
	case KindDeepSeek:
		return "deepseek-chat"
	case KindGLM:
		return "glm-4"
	case KindAnthropic:
		return "claude-3-opus-20240229"
	}
	return ""
}
