package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/types"
)

// Writing 分节生成论文草稿并按审阅反馈修订。
// 逐节生成是为了压住单次请求的 token 规模；任一节失败即整体失败，
// 半成品草稿没有下游价值。
type Writing struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewWriting 创建写作智能体。
func NewWriting(provider llm.Provider, logger *zap.Logger) *Writing {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writing{provider: provider, logger: logger}
}

// sectionSpec 描述一节的生成要求。
type sectionSpec struct {
	name   string
	system string
	prompt func(topic, findings, summary string) string
}

var paperSections = []sectionSpec{
	{
		name:   "title_abstract",
		system: "You are an expert academic writer. Create a title and abstract for a research paper.",
		prompt: func(topic, findings, summary string) string {
			return fmt.Sprintf(`Create a title and abstract for an academic paper on %q.

Key findings from the research:
%s

Research summary:
%s

Format your response as:
# [Title]

## Abstract
[Abstract text]`, topic, findings, summary)
		},
	},
	{
		name:   "introduction",
		system: "You are an expert academic writer. Create an introduction section for a research paper.",
		prompt: func(topic, findings, _ string) string {
			return fmt.Sprintf(`Write an introduction section for an academic paper on %q.

Key findings: %s

The introduction should:
1. Establish the context and importance of the topic
2. State the research problem and objectives
3. Outline the structure of the paper

Format your response as:
## Introduction
[Introduction text]`, topic, findings)
		},
	},
	{
		name:   "literature_review",
		system: "You are an expert academic writer. Create a literature review section for a research paper.",
		prompt: func(topic, findings, summary string) string {
			return fmt.Sprintf(`Write a literature review section for an academic paper on %q.

Research summary: %s

Key findings: %s

The literature review should:
1. Survey the relevant prior work
2. Identify themes and disagreements in the literature
3. Position this paper relative to existing research

Format your response as:
## Literature Review
[Literature review text]`, topic, summary, findings)
		},
	},
	{
		name:   "methodology",
		system: "You are an expert academic writer. Create a methodology section for a research paper.",
		prompt: func(topic, _, _ string) string {
			return fmt.Sprintf(`Write a methodology section for an academic paper on %q.

The methodology section should:
1. Describe the research approach and design
2. Explain data collection and analysis procedures
3. Justify the chosen methods

Format your response as:
## Methodology
[Methodology text]`, topic)
		},
	},
	{
		name:   "results_discussion",
		system: "You are an expert academic writer. Create a results and discussion section for a research paper.",
		prompt: func(topic, findings, _ string) string {
			return fmt.Sprintf(`Write a results and discussion section for an academic paper on %q.

Key findings: %s

The section should:
1. Present the main results clearly
2. Interpret the results in the context of prior work
3. Discuss implications and limitations

Format your response as:
## Results and Discussion
[Results and discussion text]`, topic, findings)
		},
	},
	{
		name:   "future_research",
		system: "You are an expert academic writer. Create a future research directions section for a research paper.",
		prompt: func(topic, _, _ string) string {
			return fmt.Sprintf(`Write a future research directions section for an academic paper on %q.

The future research section should:
1. Identify open problems and promising directions
2. Suggest concrete next steps for the field

Format your response as:
## Future Research Directions
[Future research text]`, topic)
		},
	},
	{
		name:   "conclusion",
		system: "You are an expert academic writer. Create a conclusion section for a research paper.",
		prompt: func(topic, findings, _ string) string {
			return fmt.Sprintf(`Write a conclusion section for an academic paper on %q.

Key findings: %s

The conclusion should:
1. Summarize the main findings
2. Restate the significance of the research
3. Discuss limitations
4. End with a strong closing statement

Format your response as:
## Conclusion
[Conclusion text]`, topic, findings)
		},
	},
}

// Process 基于检索报告生成完整草稿。researchJSON 是检索智能体的报告。
func (w *Writing) Process(ctx context.Context, topic, researchJSON, instructions string) (string, error) {
	w.logger.Info("starting paper generation", zap.String("topic", topic))

	var report ResearchReport
	if err := json.Unmarshal([]byte(researchJSON), &report); err != nil {
		// 报告不可解析时仍然写作，只是没有文献支撑
		w.logger.Warn("research report was not valid JSON, writing without references", zap.Error(err))
		report = ResearchReport{Topic: topic}
	}

	findings := strings.Join(report.Analysis.KeyFindings, "; ")
	if findings == "" {
		findings = fmt.Sprintf("General findings on %s", topic)
	}
	findings = excerpt(findings, 500)
	summary := excerpt(report.Summary, 800)
	if instructions != "" {
		summary += "\n\nSupervisor instructions:\n" + excerpt(instructions, 500)
	}

	sections := make([]string, 0, len(paperSections)+1)
	for _, spec := range paperSections {
		w.logger.Debug("generating section", zap.String("section", spec.name))
		text, err := complete(ctx, w.provider, spec.system, spec.prompt(topic, findings, summary))
		if err != nil {
			return "", fmt.Errorf("failed to generate %s section: %w", spec.name, err)
		}
		sections = append(sections, text)
	}
	sections = append(sections, formatReferences(report.Papers))

	w.logger.Info("paper generation completed", zap.String("topic", topic))
	return strings.Join(sections, "\n\n"), nil
}

// Revise 按审阅反馈修订草稿，返回完整修订稿。
func (w *Writing) Revise(ctx context.Context, draft, feedback string) (string, error) {
	w.logger.Info("revising draft from review feedback")

	points := feedbackPoints(feedback)
	var sb strings.Builder
	for _, p := range points {
		sb.WriteString("- ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}

	prompt := fmt.Sprintf(`Here is the original paper draft:

%s

Here is the review feedback:

%s

Revise the paper according to the feedback to improve its academic quality. Keep the overall structure of the original paper while addressing the issues raised. Return the complete revised paper.`, draft, sb.String())

	revised, err := complete(ctx, w.provider,
		"You are an expert academic writer revising a paper based on review feedback. "+
			"Keep the paper structure intact and return the full revised paper.", prompt)
	if err != nil {
		return "", fmt.Errorf("failed to revise draft: %w", err)
	}
	w.logger.Info("draft revision completed")
	return revised, nil
}

// feedbackPoints 把反馈拆成逐条要点。JSON 数组优先，其次按行切。
// 时间戳等元数据行被过滤；全部落空时给默认要点。
func feedbackPoints(feedback string) []string {
	var points []string
	if err := json.Unmarshal([]byte(feedback), &points); err != nil {
		points = points[:0]
		for _, line := range strings.Split(feedback, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				points = append(points, line)
			}
		}
	}

	filtered := points[:0]
	for _, p := range points {
		if strings.HasPrefix(p, "Reviewed at:") || strings.HasPrefix(p, "Error:") || strings.HasPrefix(p, "WARNING:") {
			continue
		}
		filtered = append(filtered, p)
	}
	if len(filtered) == 0 {
		filtered = []string{
			"Improve the structure and content of the paper",
			"Add supporting data and evidence",
			"Strengthen the argumentation",
		}
	}
	return filtered
}

func formatReferences(papers []types.Paper) string {
	var sb strings.Builder
	sb.WriteString("## References\n")
	for _, p := range papers {
		authors := strings.Join(p.Authors, ", ")
		if authors == "" {
			authors = "Anonymous"
		}
		year := p.Year
		if year == "" {
			year = "n.d."
		}
		fmt.Fprintf(&sb, "\n%s (%s). %s.", authors, year, p.Title)
		if p.Journal != "" {
			fmt.Fprintf(&sb, " *%s*.", p.Journal)
		}
		if p.URL != "" {
			fmt.Fprintf(&sb, " %s", p.URL)
		}
	}
	return sb.String()
}
