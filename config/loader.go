package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Load 加载配置：默认值打底，YAML 文件覆盖，环境变量最优先。
// path 为空或文件不存在时跳过文件层。
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// 没有配置文件就用默认值
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// 环境变量按配置分组覆盖
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	groups := []struct {
		prefix string
		target any
	}{
		{"PAPERFLOW_SERVER", &cfg.Server},
		{"PAPERFLOW_DATABASE", &cfg.Database},
		{"PAPERFLOW_PROVIDER", &cfg.Provider},
		{"PAPERFLOW_RESEARCH", &cfg.Research},
		{"PAPERFLOW_WORKFLOW", &cfg.Workflow},
		{"PAPERFLOW_LOG", &cfg.Log},
	}
	for _, g := range groups {
		if err := envconfig.Process(g.prefix, g.target); err != nil {
			return fmt.Errorf("failed to apply %s environment overrides: %w", g.prefix, err)
		}
	}
	return nil
}
