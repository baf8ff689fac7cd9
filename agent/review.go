package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/llm"
)

// 内容短于此长度不值得评审。
const minReviewableLength = 100

// Review 对草稿生成逐条评审意见。
// 输出是 JSON 字符串数组，末尾附评审时间戳，方便前端展示与写作端过滤。
type Review struct {
	provider llm.Provider
	logger   *zap.Logger
	now      func() time.Time
}

// NewReview 创建审阅智能体。
func NewReview(provider llm.Provider, logger *zap.Logger) *Review {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Review{provider: provider, logger: logger, now: time.Now}
}

// Process 评审草稿，返回序列化的意见列表。
func (r *Review) Process(ctx context.Context, topic, draft string) (string, error) {
	if len(strings.TrimSpace(draft)) < minReviewableLength {
		return marshalFeedback([]string{
			"Error: the submitted paper content is too short for a complete review",
			"Please add more content and resubmit",
		})
	}

	r.logger.Info("starting review", zap.String("topic", topic))

	prompt := fmt.Sprintf(`Review the following academic paper on %q and provide feedback:

%s

Provide 5 to 8 specific review comments as a list, covering both strengths and areas that need improvement.`, topic, draft)

	response, err := complete(ctx, r.provider,
		"You are a rigorous academic paper reviewer skilled at providing constructive feedback. "+
			"Review the paper thoroughly, covering structure, methodology, analysis and conclusions, "+
			"and provide 5 to 8 specific, actionable suggestions as a list.", prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate review feedback: %w", err)
	}

	lines := parseFeedbackLines(response)
	if len(lines) == 0 {
		// 模型没按列表格式输出，整段作为一条意见
		lines = []string{response}
	}
	lines = append(lines, "Reviewed at: "+r.now().Format(time.RFC3339))

	r.logger.Info("review completed", zap.String("topic", topic), zap.Int("comments", len(lines)-1))
	return marshalFeedback(lines)
}

// parseFeedbackLines 从模型输出提取列表项：JSON 数组优先，
// 否则取以连字符、星号或序号开头的行。
func parseFeedbackLines(response string) []string {
	var lines []string
	if err := json.Unmarshal([]byte(extractJSONArray(response)), &lines); err == nil && len(lines) > 0 {
		return lines
	}

	lines = lines[:0]
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") || startsWithDigit(line) {
			if cleaned := strings.TrimLeft(line, "-*0123456789.、) "); cleaned != "" {
				lines = append(lines, cleaned)
			}
		}
	}
	return lines
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

func extractJSONArray(content string) string {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}

func marshalFeedback(lines []string) (string, error) {
	data, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("failed to marshal feedback: %w", err)
	}
	return string(data), nil
}
