package workflow

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/paperflow/agent"
	"github.com/BaSui01/paperflow/comms"
	"github.com/BaSui01/paperflow/internal/database"
	"github.com/BaSui01/paperflow/llm"
	"github.com/BaSui01/paperflow/research"
	"github.com/BaSui01/paperflow/research/sources"
	"github.com/BaSui01/paperflow/store"
	"github.com/BaSui01/paperflow/testutil/mocks"
	"github.com/BaSui01/paperflow/types"
)

const revisedDraft = "# Revised Paper\n\nThe revised draft addresses the review feedback in full."

// routedProvider scripts one response per agent role, keyed off the system
// prompt. evalVerdicts are consumed one per feedback evaluation; writeErr,
// when set, fails every section generation call.
func routedProvider(evalVerdicts []string, writeErr error) *mocks.MockProvider {
	verdicts := append([]string(nil), evalVerdicts...)
	return mocks.NewMockProvider().WithCompletionFunc(
		func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			system := req.Messages[0].Content
			user := req.Messages[1].Content

			var content string
			switch {
			case strings.Contains(system, "supervisor agent coordinating"):
				if strings.Contains(user, "DECISION: ACCEPT or DECISION: REJECT") {
					content = "DECISION: COMPLETE"
					if len(verdicts) > 0 {
						content = verdicts[0]
						verdicts = verdicts[1:]
					}
				} else {
					content = "Detailed phase instructions."
				}
			case strings.Contains(system, "Extract exactly 3 key points"):
				content = `["k1","k2","k3"]`
			case strings.Contains(system, "concise literature summary"):
				content = "The literature on this topic is active and promising."
			case strings.Contains(system, "JSON object only"):
				content = `{"key_findings":["finding one"],"methodologies":["method one"],"research_gaps":["gap one"]}`
			case strings.Contains(system, "revising a paper based on review feedback"):
				content = revisedDraft
			case strings.Contains(system, "rigorous academic paper reviewer"):
				content = `["Add more citations","Tighten the methodology section"]`
			case strings.Contains(system, "expert academic writer"):
				if writeErr != nil {
					return nil, writeErr
				}
				content = "## Section\n\nParagraph content for this section of the paper."
			case strings.Contains(system, "communication specialist"):
				content = "Agents communicated effectively this iteration."
			default:
				content = "OK."
			}
			return &llm.ChatResponse{Model: "mock-model", Content: content}, nil
		})
}

type runnerFixture struct {
	runner   *Runner
	store    *store.Store
	bus      *comms.Bus
	activity *ActivityLog
	project  *store.Project
	arxiv    *mocks.MockSource
	pubmed   *mocks.MockSource
}

func newRunnerFixture(t *testing.T, provider llm.Provider, cfg Config) *runnerFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "runner_test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	pool, err := database.NewPoolManager(db, database.PoolConfig{
		MaxIdleConns:    2,
		MaxOpenConns:    4,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Hour,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	require.NoError(t, store.AutoMigrate(pool.DB()))

	st := store.New(pool, zap.NewNop())
	project, err := st.CreateProject(context.Background(), "quantum error correction", "mock", "arxiv")
	require.NoError(t, err)

	arxiv := mocks.NewMockSource(sources.NameArxiv).WithPapers(types.Paper{
		Title:    "Surface Codes in Practice",
		Authors:  []string{"A. Researcher"},
		Abstract: "This abstract describes the evaluation of surface codes. The results are encouraging overall.",
		Year:     "2025",
		Source:   sources.NameArxiv,
	})
	pubmed := mocks.NewMockSource(sources.NamePubMed).WithPapers(types.Paper{
		Title:    "Clinical Notes on Error Correction",
		Authors:  []string{"B. Scholar"},
		Abstract: "This abstract summarizes a clinical perspective on the topic. The observations are preliminary.",
		Year:     "2024",
		Source:   sources.NamePubMed,
	})
	aggregator := research.NewAggregator(
		[]sources.Source{arxiv, pubmed},
		research.NewSyntheticGenerator(provider, zap.NewNop()),
		research.NewKeyPointExtractor(provider, zap.NewNop()),
		research.DefaultConfig(), zap.NewNop())

	bus := comms.NewBus(provider, zap.NewNop())
	activity := NewActivityLog(zap.NewNop())
	runner := NewRunner(
		st,
		bus,
		activity,
		agent.NewSupervisor(provider, zap.NewNop()),
		agent.NewResearch(aggregator, provider, zap.NewNop()),
		agent.NewWriting(provider, zap.NewNop()),
		agent.NewReview(provider, zap.NewNop()),
		nil,
		cfg,
		zap.NewNop(),
	)
	return &runnerFixture{
		runner: runner, store: st, bus: bus, activity: activity,
		project: project, arxiv: arxiv, pubmed: pubmed,
	}
}

func TestRunner_CompleteDecisionPath(t *testing.T) {
	t.Parallel()

	// research -> write -> review -> evaluate(COMPLETE)
	provider := routedProvider([]string{"DECISION: COMPLETE"}, nil)
	f := newRunnerFixture(t, provider, Config{MaxIterations: 5, MaxErrors: 3})
	ctx := context.Background()

	require.NoError(t, f.runner.Run(ctx, f.project.ID))

	project, err := f.store.GetProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, project.Status)
	assert.True(t, project.ResearchCompleted)
	assert.True(t, project.WritingCompleted)
	assert.True(t, project.ReviewCompleted)

	finals, err := f.store.ListVersions(ctx, f.project.ID, types.ContentFinal)
	require.NoError(t, err)
	require.Len(t, finals, 1)

	// the final version is the latest draft, verbatim
	draft, err := f.store.LatestVersion(ctx, f.project.ID, types.ContentDraft)
	require.NoError(t, err)
	assert.Equal(t, draft.Content, finals[0].Content)
	assert.Contains(t, finals[0].Content, "## References")

	// phase handoffs left a message trail
	messages, err := f.store.ListAgentMessages(ctx, f.project.ID, time.Time{})
	require.NoError(t, err)
	assert.NotEmpty(t, messages)
	typesSeen := make(map[string]bool)
	for _, m := range messages {
		typesSeen[m.MessageType] = true
	}
	assert.True(t, typesSeen[comms.TypeTaskAssignment])
	assert.True(t, typesSeen[comms.TypeTaskCompletion])
	assert.True(t, typesSeen[comms.TypeReviewFeedback])
	assert.True(t, typesSeen[comms.TypeProjectCompletion])
}

func TestRunner_ProjectSourceSelectionRestrictsSearch(t *testing.T) {
	t.Parallel()

	// the fixture project requests "arxiv"; pubmed is registered but must stay idle
	provider := routedProvider([]string{"DECISION: COMPLETE"}, nil)
	f := newRunnerFixture(t, provider, Config{MaxIterations: 5, MaxErrors: 3})
	ctx := context.Background()

	require.NoError(t, f.runner.Run(ctx, f.project.ID))

	assert.Equal(t, 1, f.arxiv.CallCount())
	assert.Equal(t, 0, f.pubmed.CallCount(),
		"only the project's requested sources are queried")

	report, err := f.store.LatestVersion(ctx, f.project.ID, types.ContentResearch)
	require.NoError(t, err)
	assert.Contains(t, report.Content, "Surface Codes in Practice")
	assert.NotContains(t, report.Content, "Clinical Notes on Error Correction")
}

func TestRunner_AcceptedFeedbackTriggersRevision(t *testing.T) {
	t.Parallel()

	// research -> write -> review -> evaluate(ACCEPT) -> revise -> review -> forced completion
	provider := routedProvider([]string{"DECISION: ACCEPT"}, nil)
	f := newRunnerFixture(t, provider, Config{MaxIterations: 5, MaxErrors: 3})
	ctx := context.Background()

	require.NoError(t, f.runner.Run(ctx, f.project.ID))

	project, err := f.store.GetProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, project.Status)

	drafts, err := f.store.ListVersions(ctx, f.project.ID, types.ContentDraft)
	require.NoError(t, err)
	require.Len(t, drafts, 2, "original draft plus one revision")
	assert.Equal(t, revisedDraft, drafts[1].Content)

	// after a revision the feedback is consumed, so the revised draft gets re-reviewed
	reviews, err := f.store.ListVersions(ctx, f.project.ID, types.ContentReview)
	require.NoError(t, err)
	assert.Len(t, reviews, 2)

	final, err := f.store.LatestVersion(ctx, f.project.ID, types.ContentFinal)
	require.NoError(t, err)
	assert.Equal(t, revisedDraft, final.Content, "forced completion finalizes the revised draft")

	// revision request went over the bus
	messages, err := f.store.ListAgentMessages(ctx, f.project.ID, time.Time{})
	require.NoError(t, err)
	sawRevisionRequest := false
	for _, m := range messages {
		if m.MessageType == comms.TypeRevisionRequest {
			sawRevisionRequest = true
		}
	}
	assert.True(t, sawRevisionRequest)
}

func TestRunner_ErrorBudgetExhausted(t *testing.T) {
	t.Parallel()

	writeErr := types.NewError(types.ErrUpstreamError, "model backend down")
	provider := routedProvider(nil, writeErr)
	f := newRunnerFixture(t, provider, Config{MaxIterations: 10, MaxErrors: 3})
	ctx := context.Background()

	err := f.runner.Run(ctx, f.project.ID)
	require.Error(t, err)
	assert.Equal(t, types.ErrErrorBudget, types.GetErrorCode(err))

	project, gErr := f.store.GetProject(ctx, f.project.ID)
	require.NoError(t, gErr)
	assert.Equal(t, types.StatusError, project.Status)
	assert.True(t, project.ResearchCompleted, "research succeeded before writing started failing")
	assert.False(t, project.WritingCompleted)

	// the abort is archived as an error message
	messages, mErr := f.store.ListAgentMessages(ctx, f.project.ID, time.Time{})
	require.NoError(t, mErr)
	sawAbort := false
	for _, m := range messages {
		if m.MessageType == "error" && m.Sender == "system" {
			sawAbort = true
		}
	}
	assert.True(t, sawAbort)
}

func TestRunner_NoDraftAtIterationLimit(t *testing.T) {
	t.Parallel()

	writeErr := types.NewError(types.ErrUpstreamError, "model backend down")
	provider := routedProvider(nil, writeErr)
	// budget of 5 errors never trips with only 3 iterations
	f := newRunnerFixture(t, provider, Config{MaxIterations: 3, MaxErrors: 5})
	ctx := context.Background()

	err := f.runner.Run(ctx, f.project.ID)
	require.Error(t, err)
	assert.Equal(t, types.ErrNoDraft, types.GetErrorCode(err))

	project, gErr := f.store.GetProject(ctx, f.project.ID)
	require.NoError(t, gErr)
	assert.Equal(t, types.StatusError, project.Status)

	finals, vErr := f.store.ListVersions(ctx, f.project.ID, types.ContentFinal)
	require.NoError(t, vErr)
	assert.Empty(t, finals)
}

func TestRunner_UnknownProject(t *testing.T) {
	t.Parallel()

	provider := routedProvider(nil, nil)
	f := newRunnerFixture(t, provider, DefaultConfig())

	err := f.runner.Run(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.Equal(t, types.ErrProjectNotFound, types.GetErrorCode(err))
}
