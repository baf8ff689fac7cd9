// =============================================================================
// 📦 PaperFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/paperflow/internal/database"
	"github.com/BaSui01/paperflow/research"
	"github.com/BaSui01/paperflow/research/sources"
	"github.com/BaSui01/paperflow/workflow"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServerConfig(),
		Database: DefaultDatabaseConfig(),
		Provider: DefaultProviderConfig(),
		Research: DefaultResearchConfig(),
		Workflow: workflow.DefaultConfig(),
		Log:      DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:         8080,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     120 * time.Second, // 工作流接口可能长时间运行
		ShutdownTimeout:  15 * time.Second,
		MetricsNamespace: "paperflow",
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver: "sqlite",
		DSN:    "paperflow.db",
		Pool:   database.DefaultPoolConfig(),
	}
}

// DefaultProviderConfig 返回默认提供商配置
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Kind:        "siliconflow",
		MaxTokens:   4096,
		Temperature: 0.7,
		Timeout:     60 * time.Second,
	}
}

// DefaultResearchConfig 返回默认检索配置
func DefaultResearchConfig() ResearchConfig {
	return ResearchConfig{
		Sources:    []string{sources.NameArxiv, sources.NamePubMed},
		SourceRPS:  1,
		Aggregator: research.DefaultConfig(),
		Arxiv:      sources.DefaultArxivConfig(),
		PubMed:     sources.DefaultPubMedConfig(),
		Scholar:    sources.DefaultScholarConfig(),
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}
