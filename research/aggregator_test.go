package research

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/research/sources"
	"github.com/BaSui01/paperflow/testutil/mocks"
	"github.com/BaSui01/paperflow/types"
)

func newTestAggregator(cfg Config, srcs ...sources.Source) (*Aggregator, *[]time.Duration) {
	agg := NewAggregator(srcs,
		NewSyntheticGenerator(nil, zap.NewNop()),
		NewKeyPointExtractor(nil, zap.NewNop()),
		cfg, zap.NewNop())

	var sleeps []time.Duration
	agg.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return agg, &sleeps
}

func paper(title string) types.Paper {
	return types.Paper{
		Title:    title,
		Authors:  []string{"A. Researcher"},
		Abstract: "This abstract describes a reasonably detailed study. The study has interesting results.",
		Source:   "arxiv",
	}
}

func TestAggregator_ConcatenatesAllSuccessfulSources(t *testing.T) {
	t.Parallel()

	first := mocks.NewMockSource("arxiv").WithPapers(paper("From arXiv"))
	second := mocks.NewMockSource("pubmed").WithPapers(paper("From PubMed"))

	agg, _ := newTestAggregator(DefaultConfig(), first, second)
	result := agg.Search(context.Background(), "machine learning", nil)

	assert.Equal(t, 1, first.CallCount())
	assert.Equal(t, 1, second.CallCount(), "every configured source is queried")
	require.Len(t, result.Papers, 2)
	assert.Equal(t, "From arXiv", result.Papers[0].Title)
	assert.Equal(t, "From PubMed", result.Papers[1].Title, "results concatenate in source order")
	assert.Equal(t, []string{"arxiv", "pubmed"}, result.SuccessfulSources)
	assert.False(t, result.Fallback)
	assert.Empty(t, result.FailedSources)
}

func TestAggregator_PartialFailureKeepsOtherResults(t *testing.T) {
	t.Parallel()

	first := mocks.NewMockSource("arxiv").
		WithError(types.NewError(types.ErrTimeout, "timeout"))
	second := mocks.NewMockSource("pubmed").WithPapers(paper("From PubMed"))

	agg, _ := newTestAggregator(DefaultConfig(), first, second)
	result := agg.Search(context.Background(), "topic", nil)

	require.Len(t, result.Papers, 1)
	assert.Equal(t, "From PubMed", result.Papers[0].Title)
	assert.Equal(t, []string{"pubmed"}, result.SuccessfulSources)
	assert.Contains(t, result.FailedSources["arxiv"], "timeout")
	assert.False(t, result.Fallback, "one surviving source is enough to avoid the fallback")
}

func TestAggregator_PerCallSourceSelection(t *testing.T) {
	t.Parallel()

	arxiv := mocks.NewMockSource("arxiv").WithPapers(paper("From arXiv"))
	pubmed := mocks.NewMockSource("pubmed").WithPapers(paper("From PubMed"))

	agg, _ := newTestAggregator(DefaultConfig(), arxiv, pubmed)
	result := agg.Search(context.Background(), "topic", []string{"pubmed"})

	assert.Equal(t, 0, arxiv.CallCount(), "sources outside the requested list stay untouched")
	assert.Equal(t, 1, pubmed.CallCount())
	require.Len(t, result.Papers, 1)
	assert.Equal(t, "From PubMed", result.Papers[0].Title)
	assert.Equal(t, []string{"pubmed"}, result.SuccessfulSources)
}

func TestAggregator_SelectionOrderOverridesRegistration(t *testing.T) {
	t.Parallel()

	arxiv := mocks.NewMockSource("arxiv").WithPapers(paper("From arXiv"))
	pubmed := mocks.NewMockSource("pubmed").WithPapers(paper("From PubMed"))

	agg, _ := newTestAggregator(DefaultConfig(), arxiv, pubmed)
	result := agg.Search(context.Background(), "topic", []string{"pubmed", "arxiv"})

	assert.Equal(t, []string{"pubmed", "arxiv"}, result.SuccessfulSources)
	require.Len(t, result.Papers, 2)
	assert.Equal(t, "From PubMed", result.Papers[0].Title)
}

func TestAggregator_UnknownRequestedSource(t *testing.T) {
	t.Parallel()

	arxiv := mocks.NewMockSource("arxiv").WithPapers(paper("From arXiv"))

	agg, _ := newTestAggregator(DefaultConfig(), arxiv)
	result := agg.Search(context.Background(), "topic", []string{"google_scholar", "arxiv"})

	require.Len(t, result.Papers, 1)
	assert.Equal(t, "source not configured", result.FailedSources["google_scholar"])
	assert.Equal(t, []string{"arxiv"}, result.SuccessfulSources)
}

func TestAggregator_AnnotatesKeyPoints(t *testing.T) {
	t.Parallel()

	src := mocks.NewMockSource("arxiv").WithPapers(paper("Annotated"))
	agg, _ := newTestAggregator(DefaultConfig(), src)

	result := agg.Search(context.Background(), "topic", nil)
	require.Len(t, result.Papers, 1)
	assert.Len(t, result.Papers[0].KeyPoints, 3, "every paper carries exactly three key points")
}

func TestAggregator_RetriesWithExponentialBackoff(t *testing.T) {
	t.Parallel()

	flaky := mocks.NewMockSource("arxiv").WithOutcomes(
		mocks.SourceOutcome{Err: types.NewError(types.ErrRateLimited, "429").WithRetryable(true)},
		mocks.SourceOutcome{Err: types.NewError(types.ErrUpstreamError, "502").WithRetryable(true)},
		mocks.SourceOutcome{Papers: []types.Paper{paper("Third time lucky")}},
	)

	cfg := DefaultConfig()
	cfg.BaseDelay = 100 * time.Millisecond
	agg, sleeps := newTestAggregator(cfg, flaky)

	result := agg.Search(context.Background(), "topic", nil)

	require.Len(t, result.Papers, 1)
	assert.Equal(t, "Third time lucky", result.Papers[0].Title)
	assert.Equal(t, 3, flaky.CallCount())
	// backoff doubles per retry: base, then 2*base
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *sleeps)
}

func TestAggregator_NonRetryableErrorStopsRetrying(t *testing.T) {
	t.Parallel()

	src := mocks.NewMockSource("google_scholar").
		WithError(types.NewError(types.ErrAuthentication, "bad api key"))

	cfg := DefaultConfig()
	cfg.SourceRetries = nil // give it the full retry budget, the error class must stop it
	agg, sleeps := newTestAggregator(cfg, src)

	result := agg.Search(context.Background(), "topic", nil)

	assert.Equal(t, 1, src.CallCount())
	assert.Empty(t, *sleeps)
	assert.True(t, result.Fallback)
	assert.Contains(t, result.FailedSources["google_scholar"], "bad api key")
}

func TestAggregator_SourceRetryOverride(t *testing.T) {
	t.Parallel()

	src := mocks.NewMockSource("google_scholar").
		WithError(types.NewError(types.ErrUpstreamError, "500").WithRetryable(true))

	agg, _ := newTestAggregator(DefaultConfig(), src)
	agg.Search(context.Background(), "topic", nil)

	assert.Equal(t, 1, src.CallCount(), "scholar gets a single attempt by default")
}

func TestAggregator_EmptyResultsAreRetried(t *testing.T) {
	t.Parallel()

	src := mocks.NewMockSource("pubmed").WithOutcomes(
		mocks.SourceOutcome{},
		mocks.SourceOutcome{Papers: []types.Paper{paper("Eventually")}},
	)

	agg, _ := newTestAggregator(DefaultConfig(), src)
	result := agg.Search(context.Background(), "topic", nil)

	require.Len(t, result.Papers, 1)
	assert.Equal(t, 2, src.CallCount())
	assert.False(t, result.Fallback)
}

func TestAggregator_AllSourcesFailFallsBack(t *testing.T) {
	t.Parallel()

	first := mocks.NewMockSource("arxiv").
		WithError(types.NewError(types.ErrTimeout, "timeout"))
	second := mocks.NewMockSource("pubmed") // always empty

	agg, _ := newTestAggregator(DefaultConfig(), first, second)
	result := agg.Search(context.Background(), "graph neural networks", nil)

	assert.True(t, result.Fallback)
	assert.NotEmpty(t, result.Papers, "fallback guarantees a non-empty paper list")
	assert.Empty(t, result.SuccessfulSources)
	assert.Len(t, result.FailedSources, 2)
	assert.Equal(t, "no results", result.FailedSources["pubmed"])

	for _, p := range result.Papers {
		assert.NotEmpty(t, p.Title)
		assert.Len(t, p.KeyPoints, 3)
	}
}

func TestAggregator_NoSourcesAtAll(t *testing.T) {
	t.Parallel()

	agg, _ := newTestAggregator(DefaultConfig())
	result := agg.Search(context.Background(), "topic", nil)

	assert.True(t, result.Fallback)
	assert.NotEmpty(t, result.Papers)
}
