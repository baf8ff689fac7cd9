package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/types"
)

// Supervisor 决定工作流下一步。
// 决策表看产物齐备程度：没有研究先研究，有研究没草稿就写作，
// 有草稿没反馈就审阅，三者齐备才进入反馈评估。
type Supervisor struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewSupervisor 创建调度智能体。
func NewSupervisor(provider llm.Provider, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{provider: provider, logger: logger}
}

// DecideInput 是一次决策的全部上下文。空字符串表示该产物尚不存在。
type DecideInput struct {
	Topic          string
	ResearchResult string
	Draft          string
	ReviewFeedback string
	Iteration      int
}

const supervisorSystem = "You are a supervisor agent coordinating a multi-agent workflow to produce a high-quality academic paper."

// Decide 产出下一步决策。指令生成失败会降级为固定指令，
// 评估阶段模型失败才返回错误（调用方据此消耗错误预算）。
func (s *Supervisor) Decide(ctx context.Context, input DecideInput) (*types.Decision, error) {
	switch {
	case input.ResearchResult == "":
		return s.assignResearch(ctx, input.Topic), nil
	case input.Draft == "":
		return s.assignWriting(ctx, input.Topic, input.ResearchResult), nil
	case input.ReviewFeedback == "":
		return s.assignReview(ctx, input.Topic, input.Draft), nil
	default:
		return s.evaluateFeedback(ctx, input)
	}
}

func (s *Supervisor) assignResearch(ctx context.Context, topic string) *types.Decision {
	prompt := fmt.Sprintf(`You are initiating a multi-agent workflow to produce an academic paper on the topic: %q.

Please provide detailed instructions for the research agent who will be collecting relevant literature and information.

Your instructions should include:
1. The key aspects of the topic to focus on
2. Types of sources that would be most valuable
3. What kind of information would be most useful for the writing phase`, topic)

	return &types.Decision{
		Action:       types.ActionResearch,
		Instructions: s.instructions(ctx, prompt, fmt.Sprintf("Collect relevant literature and key findings on %q.", topic)),
		Reasoning:    "Starting workflow with research phase to gather relevant literature.",
	}
}

func (s *Supervisor) assignWriting(ctx context.Context, topic, researchResult string) *types.Decision {
	prompt := fmt.Sprintf(`You have received research results related to the topic: %q.

Research summary:
`+"```"+`
%s
`+"```"+`

Please provide detailed instructions for the writing agent who will be drafting the paper.

Your instructions should include:
1. Suggested structure for the paper
2. Important points that should be highlighted based on the research
3. Any stylistic preferences or academic standards to follow`, topic, excerpt(researchResult, excerptLong))

	return &types.Decision{
		Action:       types.ActionWrite,
		Instructions: s.instructions(ctx, prompt, fmt.Sprintf("Draft a structured academic paper on %q based on the research findings.", topic)),
		Reasoning:    "Research phase complete, moving to writing phase to draft the paper.",
	}
}

func (s *Supervisor) assignReview(ctx context.Context, topic, draft string) *types.Decision {
	prompt := fmt.Sprintf(`A draft paper on the topic: %q has been written.

Draft excerpt:
`+"```"+`
%s
`+"```"+`

Please provide detailed instructions for the review agent who will be evaluating this draft.

Your instructions should include:
1. Key aspects to evaluate (structure, clarity, argumentation, evidence, etc.)
2. How to present constructive feedback that the writing agent can use to improve the paper
3. The format in which the feedback should be provided`, topic, excerpt(draft, excerptLong))

	return &types.Decision{
		Action:       types.ActionReview,
		Instructions: s.instructions(ctx, prompt, "Review the draft for structure, clarity, argumentation and evidence, and provide actionable feedback."),
		Reasoning:    "Writing phase complete, moving to review phase to evaluate the draft.",
	}
}

// instructions 用模型生成阶段指令，失败时退回固定指令。
func (s *Supervisor) instructions(ctx context.Context, prompt, fallback string) string {
	if s.provider == nil {
		return fallback
	}
	out, err := complete(ctx, s.provider, supervisorSystem, prompt)
	if err != nil {
		s.logger.Warn("instruction generation failed, using canned instructions", zap.Error(err))
		return fallback
	}
	return out
}

func (s *Supervisor) evaluateFeedback(ctx context.Context, input DecideInput) (*types.Decision, error) {
	prompt := fmt.Sprintf(`You are at iteration %d of the paper development process for the topic: %q.

The review agent has provided feedback on the current draft.

Paper draft excerpt:
`+"```"+`
%s
`+"```"+`

Review feedback:
`+"```"+`
%s
`+"```"+`

Please evaluate the review feedback and decide on the next steps:

1. Is the feedback constructive, specific, and actionable? (Yes/No)
2. Does the feedback address substantive issues in the paper? (Yes/No)
3. Would implementing this feedback improve the paper? (Yes/No)

Based on your evaluation, decide whether to:
A. Accept the feedback and instruct the writing agent to revise the paper
B. Reject the feedback and ask the review agent to provide better feedback
C. Consider the paper complete if the feedback is minor and the paper is of high quality

Provide your decision with detailed reasoning. End your response with a single line of the form:
DECISION: ACCEPT or DECISION: REJECT or DECISION: COMPLETE`,
		input.Iteration, input.Topic,
		excerpt(input.Draft, excerptShort),
		excerpt(input.ReviewFeedback, excerptLong))

	evaluation, err := complete(ctx, s.provider, supervisorSystem, prompt)
	if err != nil {
		return nil, fmt.Errorf("feedback evaluation failed: %w", err)
	}

	decision := parseVerdict(evaluation)
	decision.Evaluation = evaluation
	decision.Reasoning = fmt.Sprintf("Evaluation complete, decided to %s in iteration %d.", decision.Verdict, input.Iteration)
	if decision.Ambiguous {
		s.logger.Warn("evaluation response matched no verdict, treating as complete",
			zap.Int("iteration", input.Iteration))
	}
	return decision, nil
}

// parseVerdict 解析评估输出。优先找约束格式的 DECISION: 行，
// 找不到再退回老的整句匹配；两者都落空时默认完成并标记 Ambiguous。
func parseVerdict(evaluation string) *types.Decision {
	for _, line := range strings.Split(evaluation, "\n") {
		line = strings.TrimSpace(line)
		rest, found := strings.CutPrefix(line, "DECISION:")
		if !found {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(rest)) {
		case "ACCEPT":
			return &types.Decision{Action: types.ActionWrite, Revise: true, Verdict: types.VerdictAccept}
		case "REJECT":
			return &types.Decision{Action: types.ActionReview, Verdict: types.VerdictReject}
		case "COMPLETE":
			return &types.Decision{Action: types.ActionComplete, Verdict: types.VerdictComplete}
		}
	}

	lower := strings.ToLower(evaluation)
	switch {
	case strings.Contains(lower, "accept the feedback"):
		return &types.Decision{Action: types.ActionWrite, Revise: true, Verdict: types.VerdictAccept}
	case strings.Contains(lower, "reject the feedback"):
		return &types.Decision{Action: types.ActionReview, Verdict: types.VerdictReject}
	}
	return &types.Decision{Action: types.ActionComplete, Verdict: types.VerdictComplete, Ambiguous: true}
}
