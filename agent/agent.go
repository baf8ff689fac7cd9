// Package agent 实现论文工作流里的四类智能体：
// 检索、写作、审阅与调度。每个智能体是一个接受 Provider 的薄封装，
// 失败时按各自的降级策略兜底，绝不让单次模型故障拖垮整个工作流。
package agent

import (
	"context"
	"strings"

	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/types"
)

// 智能体 ID，同时作为通信总线上的注册名。
const (
	IDSupervisor = "supervisor_agent"
	IDResearch   = "research_agent"
	IDWriting    = "writing_agent"
	IDReview     = "review_agent"
)

// 智能体类型。
const (
	TypeSupervisor = "supervisor"
	TypeResearch   = "research"
	TypeWriting    = "writing"
	TypeReview     = "review"
)

// 提示词里嵌入上下文的截断上限，防止超出 token 预算。
const (
	excerptShort = 1000
	excerptLong  = 1500
)

func excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func complete(ctx context.Context, provider llm.Provider, system, user string) (string, error) {
	messages := []types.Message{
		types.NewSystemMessage(system),
		types.NewUserMessage(user),
	}
	content, err := llm.Complete(ctx, provider, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}
