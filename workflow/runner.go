package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/agent"
	"github.com/BaSui01/paperflow/comms"
	"github.com/BaSui01/paperflow/internal/metrics"
	"github.com/BaSui01/paperflow/store"
	"github.com/BaSui01/paperflow/types"
)

// Config 限定主循环的迭代与错误预算。
type Config struct {
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	MaxErrors     int `json:"max_errors" yaml:"max_errors"`
}

// DefaultConfig 返回主循环默认预算。
func DefaultConfig() Config {
	return Config{MaxIterations: 3, MaxErrors: 3}
}

// Runner 驱动单个项目的完整工作流。
// 每轮迭代由调度智能体决定动作，阶段产物写入版本表，
// 阶段交接通过通信总线留痕。
type Runner struct {
	store      *store.Store
	bus        *comms.Bus
	activity   *ActivityLog
	supervisor *agent.Supervisor
	research   *agent.Research
	writing    *agent.Writing
	review     *agent.Review
	metrics    *metrics.Collector // 可为 nil
	config     Config
	logger     *zap.Logger
}

// NewRunner 创建工作流执行器。
func NewRunner(
	st *store.Store,
	bus *comms.Bus,
	activity *ActivityLog,
	supervisor *agent.Supervisor,
	research *agent.Research,
	writing *agent.Writing,
	review *agent.Review,
	collector *metrics.Collector,
	config Config,
	logger *zap.Logger,
) *Runner {
	if config.MaxIterations <= 0 {
		config.MaxIterations = 3
	}
	if config.MaxErrors <= 0 {
		config.MaxErrors = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:      st,
		bus:        bus,
		activity:   activity,
		supervisor: supervisor,
		research:   research,
		writing:    writing,
		review:     review,
		metrics:    collector,
		config:     config,
		logger:     logger,
	}
}

// registerAgents 注册四类智能体。重复注册被总线拒绝，无副作用。
func (r *Runner) registerAgents() {
	r.bus.Register(agent.IDSupervisor, agent.TypeSupervisor, "Coordinates the paper workflow")
	r.bus.Register(agent.IDResearch, agent.TypeResearch, "Collects and analyzes literature")
	r.bus.Register(agent.IDWriting, agent.TypeWriting, "Drafts and revises the paper")
	r.bus.Register(agent.IDReview, agent.TypeReview, "Reviews drafts and provides feedback")
}

// Run 执行项目工作流直到完成、错误预算耗尽或迭代上限。
// 达到迭代上限而未完成时，用最新草稿强制收官。
func (r *Runner) Run(ctx context.Context, projectID string) error {
	project, err := r.store.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	r.registerAgents()

	state := &State{Topic: project.Topic, Sources: project.ResearchSources()}
	completed := false

	if err := r.store.UpdateProjectStatus(ctx, projectID, types.StatusProcessing); err != nil {
		return err
	}

	for state.Iteration < r.config.MaxIterations && !completed {
		state.Iteration++
		r.activity.Record(projectID, "system", fmt.Sprintf("starting iteration %d", state.Iteration), "")

		if err := r.runIteration(ctx, projectID, state, &completed); err != nil {
			state.ErrorCount++
			r.logger.Error("iteration failed",
				zap.String("project_id", projectID),
				zap.Int("iteration", state.Iteration),
				zap.Int("error_count", state.ErrorCount),
				zap.Error(err))
			r.activity.Record(projectID, "system",
				fmt.Sprintf("iteration %d failed", state.Iteration), err.Error())

			if state.ErrorCount >= r.config.MaxErrors {
				return r.abort(ctx, projectID, state, err)
			}
			continue
		}

		// 每轮结束生成一次通信摘要，失败不拦路
		if summary, sErr := r.bus.SummarizeCommunications(ctx, "", state.Topic); sErr == nil {
			r.activity.Record(projectID, "communication",
				fmt.Sprintf("communication summary for iteration %d", state.Iteration), summary)
		}
	}

	if !completed {
		forced, err := r.forceComplete(ctx, projectID, state)
		if err != nil {
			return err
		}
		if !forced {
			if r.metrics != nil {
				r.metrics.RecordWorkflowRun("error", state.Iteration)
			}
			return types.NewError(types.ErrNoDraft, "iteration limit reached with no draft to finalize")
		}
	}

	if r.metrics != nil {
		r.metrics.RecordWorkflowRun("completed", state.Iteration)
	}
	r.logger.Info("workflow finished",
		zap.String("project_id", projectID),
		zap.Int("iterations", state.Iteration))
	return nil
}

// runIteration 执行一轮：调度决策加一次阶段动作。
func (r *Runner) runIteration(ctx context.Context, projectID string, state *State, completed *bool) error {
	r.activity.Record(projectID, agent.TypeSupervisor, "evaluating current state and assigning tasks", "")
	decision, err := r.supervisor.Decide(ctx, agent.DecideInput{
		Topic:          state.Topic,
		ResearchResult: state.ResearchResult,
		Draft:          state.Draft,
		ReviewFeedback: state.ReviewFeedback,
		Iteration:      state.Iteration,
	})
	if err != nil {
		return err
	}
	r.activity.Record(projectID, agent.TypeSupervisor,
		fmt.Sprintf("decision: %s", decision.Action), decision.Reasoning)

	started := time.Now()
	switch decision.Action {
	case types.ActionResearch:
		err = r.runResearch(ctx, projectID, state, decision)
	case types.ActionWrite:
		err = r.runWriting(ctx, projectID, state, decision)
	case types.ActionReview:
		err = r.runReview(ctx, projectID, state, decision)
	case types.ActionComplete:
		err = r.complete(ctx, projectID, state, decision)
		*completed = err == nil
	default:
		err = types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown action: %s", decision.Action))
	}

	if r.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		r.metrics.RecordPhaseExecution(string(decision.Action), status, time.Since(started))
	}
	return err
}

func (r *Runner) runResearch(ctx context.Context, projectID string, state *State, decision *types.Decision) error {
	if err := r.store.UpdateProjectStatus(ctx, projectID, types.StatusResearching); err != nil {
		return err
	}
	r.send(projectID, agent.IDSupervisor, agent.IDResearch,
		fmt.Sprintf("Please research the topic %q.\n\n%s", state.Topic, decision.Instructions),
		comms.TypeTaskAssignment)

	r.activity.Record(projectID, agent.TypeResearch,
		fmt.Sprintf("collecting papers related to %q", state.Topic), "")
	result, err := r.research.Process(ctx, state.Topic, decision.Instructions, state.Sources)
	if err != nil {
		return err
	}

	r.send(projectID, agent.IDResearch, agent.IDSupervisor,
		fmt.Sprintf("I have completed the research on %q.", state.Topic),
		comms.TypeTaskCompletion)

	version, err := r.saveVersion(ctx, projectID, types.ContentResearch, result, agent.IDResearch)
	if err != nil {
		return err
	}
	state.ResearchResult = result

	if err := r.store.MarkPhaseCompleted(ctx, projectID, types.ActionResearch); err != nil {
		return err
	}
	if err := r.store.UpdateProjectStatus(ctx, projectID, types.StatusResearchComplete); err != nil {
		return err
	}
	r.activity.Record(projectID, agent.TypeResearch,
		fmt.Sprintf("research complete, saved as version %d", version.VersionNumber), "")
	return nil
}

func (r *Runner) runWriting(ctx context.Context, projectID string, state *State, decision *types.Decision) error {
	if err := r.store.UpdateProjectStatus(ctx, projectID, types.StatusWriting); err != nil {
		return err
	}

	var draft string
	var err error
	if decision.Revise {
		r.send(projectID, agent.IDSupervisor, agent.IDWriting,
			fmt.Sprintf("Please revise the paper on %q per the review feedback.\n\n%s", state.Topic, decision.Evaluation),
			comms.TypeRevisionRequest)

		r.activity.Record(projectID, agent.TypeWriting, "revising paper from review feedback", "")
		draft, err = r.writing.Revise(ctx, state.Draft, state.ReviewFeedback)
		if err != nil {
			return err
		}
		// 反馈已消化，下一轮对修订稿重新审阅
		state.ReviewFeedback = ""

		r.send(projectID, agent.IDWriting, agent.IDReview,
			"I have revised the paper according to your review feedback.",
			comms.TypeTaskCompletion)
	} else {
		r.send(projectID, agent.IDSupervisor, agent.IDWriting,
			fmt.Sprintf("Please write a paper on %q based on the research results.\n\n%s", state.Topic, decision.Instructions),
			comms.TypeTaskAssignment)

		r.activity.Record(projectID, agent.TypeWriting, "drafting paper", "")
		draft, err = r.writing.Process(ctx, state.Topic, state.ResearchResult, decision.Instructions)
		if err != nil {
			return err
		}

		r.send(projectID, agent.IDWriting, agent.IDReview,
			fmt.Sprintf("I have completed the first draft of the paper on %q.", state.Topic),
			comms.TypeTaskCompletion)
	}

	r.send(projectID, agent.IDWriting, agent.IDSupervisor,
		"I have completed the writing work.", comms.TypeTaskCompletion)

	version, err := r.saveVersion(ctx, projectID, types.ContentDraft, draft, agent.IDWriting)
	if err != nil {
		return err
	}
	state.Draft = draft

	if err := r.store.MarkPhaseCompleted(ctx, projectID, types.ActionWrite); err != nil {
		return err
	}
	if err := r.store.UpdateProjectStatus(ctx, projectID, types.StatusWritingComplete); err != nil {
		return err
	}
	r.activity.Record(projectID, agent.TypeWriting,
		fmt.Sprintf("writing complete, saved as version %d", version.VersionNumber), "")
	return nil
}

func (r *Runner) runReview(ctx context.Context, projectID string, state *State, decision *types.Decision) error {
	if err := r.store.UpdateProjectStatus(ctx, projectID, types.StatusReviewing); err != nil {
		return err
	}
	r.send(projectID, agent.IDSupervisor, agent.IDReview,
		fmt.Sprintf("Please review the paper on %q.\n\n%s", state.Topic, decision.Instructions),
		comms.TypeTaskAssignment)

	r.activity.Record(projectID, agent.TypeReview, "reviewing draft", "")
	feedback, err := r.review.Process(ctx, state.Topic, state.Draft)
	if err != nil {
		return err
	}

	r.send(projectID, agent.IDReview, agent.IDWriting,
		fmt.Sprintf("I have reviewed the paper, here is my feedback:\n\n%s", feedback),
		comms.TypeReviewFeedback)
	r.send(projectID, agent.IDReview, agent.IDSupervisor,
		"I have completed the review work.", comms.TypeTaskCompletion)

	version, err := r.saveVersion(ctx, projectID, types.ContentReview, feedback, agent.IDReview)
	if err != nil {
		return err
	}
	state.ReviewFeedback = feedback

	if err := r.store.MarkPhaseCompleted(ctx, projectID, types.ActionReview); err != nil {
		return err
	}
	if err := r.store.UpdateProjectStatus(ctx, projectID, types.StatusReviewComplete); err != nil {
		return err
	}
	r.activity.Record(projectID, agent.TypeReview,
		fmt.Sprintf("review complete, saved as version %d", version.VersionNumber), "")
	return nil
}

// complete 把最新草稿定为最终稿并通知各智能体。
func (r *Runner) complete(ctx context.Context, projectID string, state *State, decision *types.Decision) error {
	r.activity.Record(projectID, agent.TypeSupervisor, "confirmed paper completion", decision.Evaluation)

	if state.Draft == "" {
		return types.NewError(types.ErrNoDraft, "cannot complete project without a draft")
	}

	for _, id := range []string{agent.IDResearch, agent.IDWriting, agent.IDReview} {
		r.send(projectID, agent.IDSupervisor, id,
			fmt.Sprintf("The project %q is complete. Thank you for your contribution!", state.Topic),
			comms.TypeProjectCompletion)
	}

	version, err := r.saveVersion(ctx, projectID, types.ContentFinal, state.Draft, agent.IDSupervisor)
	if err != nil {
		return err
	}
	if err := r.store.UpdateProjectStatus(ctx, projectID, types.StatusCompleted); err != nil {
		return err
	}
	r.activity.Record(projectID, "system",
		fmt.Sprintf("project completed, final version %d", version.VersionNumber), "")
	return nil
}

// forceComplete 在迭代耗尽时用最新草稿收官；没有草稿只能标错。
// 返回值指示是否真的完成了。
func (r *Runner) forceComplete(ctx context.Context, projectID string, state *State) (bool, error) {
	if state.Draft == "" {
		r.activity.Record(projectID, "system",
			"iteration limit reached with no draft, marking project as error", "")
		return false, r.store.UpdateProjectStatus(ctx, projectID, types.StatusError)
	}

	version, err := r.saveVersion(ctx, projectID, types.ContentFinal, state.Draft, agent.IDSupervisor)
	if err != nil {
		return false, err
	}
	if err := r.store.UpdateProjectStatus(ctx, projectID, types.StatusCompleted); err != nil {
		return false, err
	}
	r.activity.Record(projectID, "system",
		fmt.Sprintf("iteration limit reached, completed with latest draft as final version %d", version.VersionNumber), "")
	return true, nil
}

// abort 错误预算耗尽：标错、留痕、归档错误消息。
func (r *Runner) abort(ctx context.Context, projectID string, state *State, cause error) error {
	r.activity.Record(projectID, "system", "error budget exhausted, aborting workflow", cause.Error())

	if err := r.store.UpdateProjectStatus(ctx, projectID, types.StatusError); err != nil {
		r.logger.Error("failed to mark project as error", zap.String("project_id", projectID), zap.Error(err))
	}
	if _, err := r.store.SaveAgentMessage(ctx, projectID, "system", "",
		fmt.Sprintf("workflow aborted after repeated errors: %v", cause), "error"); err != nil {
		r.logger.Error("failed to archive abort message", zap.String("project_id", projectID), zap.Error(err))
	}
	if r.metrics != nil {
		r.metrics.RecordWorkflowRun("error", state.Iteration)
	}
	return types.NewError(types.ErrErrorBudget,
		fmt.Sprintf("workflow aborted after %d errors", state.ErrorCount)).WithCause(cause)
}

// send 通过总线发消息并同步归档到数据库，两者都是尽力而为。
func (r *Runner) send(projectID, sender, recipient, content, messageType string) {
	if _, err := r.bus.Send(sender, recipient, content, messageType); err != nil {
		r.logger.Warn("bus send failed",
			zap.String("sender", sender),
			zap.String("recipient", recipient),
			zap.Error(err))
		return
	}
	if _, err := r.store.SaveAgentMessage(context.Background(), projectID, sender, recipient, content, messageType); err != nil {
		r.logger.Warn("failed to archive agent message", zap.String("project_id", projectID), zap.Error(err))
	}
}

func (r *Runner) saveVersion(ctx context.Context, projectID string, contentType types.ContentType, content, createdBy string) (*store.Version, error) {
	version, err := r.store.SaveVersion(ctx, projectID, contentType, content, createdBy)
	if err != nil {
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.RecordVersionSaved(string(contentType))
	}
	return version, nil
}
