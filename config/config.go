// =============================================================================
// 📦 PaperFlow 配置
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
// 配置优先级: 默认值 → YAML 文件 → 环境变量（PAPERFLOW_ 前缀）
// =============================================================================
package config

import (
	"fmt"
	"time"

	"github.com/BaSui01/paperflow/internal/database"
	"github.com/BaSui01/paperflow/providers"
	"github.com/BaSui01/paperflow/research"
	"github.com/BaSui01/paperflow/research/sources"
	"github.com/BaSui01/paperflow/workflow"
)

// Config 是 PaperFlow 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database"`

	// Provider 模型提供商配置
	Provider ProviderConfig `yaml:"provider"`

	// Research 检索聚合配置
	Research ResearchConfig `yaml:"research"`

	// Workflow 工作流预算
	Workflow workflow.Config `yaml:"workflow"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" envconfig:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	// Prometheus 指标命名空间
	MetricsNamespace string `yaml:"metrics_namespace" envconfig:"METRICS_NAMESPACE"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动: sqlite 或 postgres
	Driver string `yaml:"driver" envconfig:"DRIVER"`
	// SQLite 文件路径或 PostgreSQL DSN
	DSN string `yaml:"dsn" envconfig:"DSN"`
	// 连接池
	Pool database.PoolConfig `yaml:"pool"`
}

// ProviderConfig 模型提供商配置
type ProviderConfig struct {
	// 提供商类型: openai, siliconflow, deepseek, glm, anthropic, custom
	Kind string `yaml:"kind" envconfig:"KIND"`
	// API Key
	APIKey string `yaml:"api_key" envconfig:"API_KEY"`
	// 端点，custom 必填，其余类型留空用默认端点
	BaseURL string `yaml:"base_url" envconfig:"BASE_URL"`
	// 模型名
	Model string `yaml:"model" envconfig:"MODEL"`
	// 单次生成 token 上限
	MaxTokens int `yaml:"max_tokens" envconfig:"MAX_TOKENS"`
	// 采样温度
	Temperature float64 `yaml:"temperature" envconfig:"TEMPERATURE"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// ResearchConfig 检索聚合配置
type ResearchConfig struct {
	// 数据源默认顺序，项目可在创建时覆盖
	Sources []string `yaml:"sources" envconfig:"SOURCES"`
	// 单个数据源的请求速率上限（次/秒），0 表示不限速
	SourceRPS float64 `yaml:"source_rps" envconfig:"SOURCE_RPS"`
	// 聚合行为
	Aggregator research.Config `yaml:"aggregator"`
	// arXiv 适配器
	Arxiv sources.ArxivConfig `yaml:"arxiv"`
	// PubMed 适配器
	PubMed sources.PubMedConfig `yaml:"pubmed"`
	// Google Scholar 适配器
	Scholar sources.ScholarConfig `yaml:"scholar"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" envconfig:"LEVEL"`
	// 输出格式: json 或 console
	Format string `yaml:"format" envconfig:"FORMAT"`
}

// Validate 校验配置的基本一致性。
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	switch providers.Kind(c.Provider.Kind) {
	case providers.KindOpenAI, providers.KindSiliconFlow, providers.KindDeepSeek,
		providers.KindGLM, providers.KindAnthropic, providers.KindCustom:
	case "":
		// 未配置提供商时工作流走离线降级路径
	default:
		return fmt.Errorf("unsupported provider kind: %q", c.Provider.Kind)
	}
	if providers.Kind(c.Provider.Kind) == providers.KindCustom && c.Provider.BaseURL == "" {
		return fmt.Errorf("custom provider requires base_url")
	}
	if c.Research.SourceRPS < 0 {
		return fmt.Errorf("research source_rps must be non-negative")
	}
	for _, src := range c.Research.Sources {
		switch src {
		case sources.NameArxiv, sources.NamePubMed, sources.NameScholar:
		default:
			return fmt.Errorf("unknown research source: %q", src)
		}
	}
	if c.Workflow.MaxIterations < 0 || c.Workflow.MaxErrors < 0 {
		return fmt.Errorf("workflow budgets must be non-negative")
	}
	return nil
}
