package providers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/llm"
)

// New 根据配置创建对应的 Provider 适配器。
// custom 类型要求显式配置 BaseURL，其余走内置默认端点。
func New(cfg Config, logger *zap.Logger) (llm.Provider, error) {
	switch cfg.Kind {
	case KindOpenAI, KindSiliconFlow, KindDeepSeek, KindGLM:
		return NewOpenAIProvider(cfg, logger), nil
	case KindCustom:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("custom provider requires base_url")
		}
		return NewOpenAIProvider(cfg, logger), nil
	case KindAnthropic:
		return NewAnthropicProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider kind: %q", cfg.Kind)
	}
}
