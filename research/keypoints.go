package research

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/types"
)

// 要点数量固定为 3，摘要信息不足时用占位文本补齐。
const (
	keyPointCount       = 3
	keyPointPlaceholder = "Additional information not available"
	minSentenceLen      = 20
	maxSentenceLen      = 100
)

// KeyPointExtractor 为论文摘要提取固定数量的要点。
// 优先用模型提取；模型不可用或输出不合法时退回句子启发式。
type KeyPointExtractor struct {
	provider llm.Provider // 可为 nil，纯离线模式
	logger   *zap.Logger
}

// NewKeyPointExtractor 创建要点提取器。provider 为 nil 时只走启发式。
func NewKeyPointExtractor(provider llm.Provider, logger *zap.Logger) *KeyPointExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyPointExtractor{provider: provider, logger: logger}
}

// Annotate 为每篇论文填充 KeyPoints，始终恰好 3 条。
func (k *KeyPointExtractor) Annotate(ctx context.Context, papers []types.Paper) []types.Paper {
	out := make([]types.Paper, len(papers))
	for i, paper := range papers {
		paper.KeyPoints = k.Extract(ctx, paper.Abstract)
		out[i] = paper
	}
	return out
}

// Extract 从摘要提取恰好 3 条要点。
func (k *KeyPointExtractor) Extract(ctx context.Context, abstract string) []string {
	var points []string
	if k.provider != nil && strings.TrimSpace(abstract) != "" {
		points = k.extractLLM(ctx, abstract)
	}
	// 模型产出不足 3 条时退回句子启发式（启发式给得更多才替换），之后再补占位
	if len(points) < keyPointCount {
		if sentences := extractSentences(abstract); len(sentences) > len(points) {
			points = sentences
		}
	}
	if len(points) > keyPointCount {
		points = points[:keyPointCount]
	}
	for len(points) < keyPointCount {
		points = append(points, keyPointPlaceholder)
	}
	return points
}

func (k *KeyPointExtractor) extractLLM(ctx context.Context, abstract string) []string {
	messages := []types.Message{
		types.NewSystemMessage("You are an academic research assistant. " +
			"Extract exactly 3 key points from the abstract. " +
			`Respond with a JSON array of 3 short strings and nothing else, e.g. ["point 1","point 2","point 3"].`),
		types.NewUserMessage(abstract),
	}
	content, err := llm.Complete(ctx, k.provider, messages)
	if err != nil {
		k.logger.Debug("key point extraction via model failed, using heuristic", zap.Error(err))
		return nil
	}

	var points []string
	if err := json.Unmarshal([]byte(extractJSONArray(content)), &points); err != nil {
		k.logger.Debug("key point response was not a JSON array", zap.Error(err))
		return nil
	}
	cleaned := points[:0]
	for _, p := range points {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}

// extractSentences 取摘要里长度介于 20 到 100 字符的句子作为要点。
func extractSentences(abstract string) []string {
	var points []string
	for _, sentence := range strings.Split(abstract, ".") {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) > minSentenceLen && len(sentence) < maxSentenceLen {
			points = append(points, sentence)
			if len(points) >= keyPointCount {
				break
			}
		}
	}
	return points
}

// extractJSONArray 容忍模型在 JSON 前后输出说明文字或代码围栏。
func extractJSONArray(content string) string {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
