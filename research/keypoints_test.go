package research

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/testutil/mocks"
	"github.com/BaSui01/paperflow/types"
)

func TestKeyPointExtractor_AlwaysReturnsThree(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		abstract string
	}{
		{"empty abstract", ""},
		{"one usable sentence", "This sentence is long enough to qualify as a key point. No. Tiny."},
		{"many usable sentences", strings.Repeat("This sentence is long enough to qualify as a key point. ", 6)},
		{"only oversized sentences", strings.Repeat("x", 300) + "."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			k := NewKeyPointExtractor(nil, zap.NewNop())
			points := k.Extract(context.Background(), tt.abstract)
			assert.Len(t, points, 3)
		})
	}
}

func TestKeyPointExtractor_PadsWithPlaceholder(t *testing.T) {
	t.Parallel()

	k := NewKeyPointExtractor(nil, zap.NewNop())
	points := k.Extract(context.Background(), "This single sentence is long enough to qualify.")

	require.Len(t, points, 3)
	assert.Equal(t, "This single sentence is long enough to qualify", points[0])
	assert.Equal(t, keyPointPlaceholder, points[1])
	assert.Equal(t, keyPointPlaceholder, points[2])
}

func TestKeyPointExtractor_ModelOutputPreferred(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().
		WithResponse(`Sure! ["first point","second point","third point"]`)
	k := NewKeyPointExtractor(provider, zap.NewNop())

	points := k.Extract(context.Background(), "An abstract with enough substance to send to the model.")
	assert.Equal(t, []string{"first point", "second point", "third point"}, points)
}

func TestKeyPointExtractor_ModelFailureFallsBackToSentences(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().
		WithError(types.NewError(types.ErrUpstreamError, "down"))
	k := NewKeyPointExtractor(provider, zap.NewNop())

	points := k.Extract(context.Background(),
		"The heuristic splits on periods and keeps mid-length sentences. This second sentence also qualifies for extraction.")
	require.Len(t, points, 3)
	assert.Equal(t, "The heuristic splits on periods and keeps mid-length sentences", points[0])
}

func TestKeyPointExtractor_ShortModelOutputFallsBackToSentences(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponse(`["only one point"]`)
	k := NewKeyPointExtractor(provider, zap.NewNop())

	abstract := "The first sentence easily clears the length threshold. " +
		"The second sentence also clears the length threshold. " +
		"The third sentence clears the length threshold as well."
	points := k.Extract(context.Background(), abstract)

	require.Len(t, points, 3)
	assert.Equal(t, "The first sentence easily clears the length threshold", points[0])
	assert.NotContains(t, points, keyPointPlaceholder,
		"sentence heuristic runs before placeholder padding when the model comes up short")
}

func TestKeyPointExtractor_ShortModelOutputPadsWhenNoSentencesQualify(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().WithResponses(
		`["first point","second point"]`,
	)
	k := NewKeyPointExtractor(provider, zap.NewNop())

	points := k.Extract(context.Background(), "Too short. Tiny.")

	require.Len(t, points, 3)
	assert.Equal(t, []string{"first point", "second point", keyPointPlaceholder}, points)
}

func TestKeyPointExtractor_TruncatesModelOutput(t *testing.T) {
	t.Parallel()

	provider := mocks.NewMockProvider().
		WithResponse(`["one","two","three","four","five"]`)
	k := NewKeyPointExtractor(provider, zap.NewNop())

	points := k.Extract(context.Background(), "An abstract.")
	assert.Equal(t, []string{"one", "two", "three"}, points)
}

func TestKeyPointExtractor_AnnotateDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	k := NewKeyPointExtractor(nil, zap.NewNop())
	in := []types.Paper{{Title: "Paper", Abstract: "This abstract sentence is long enough to extract."}}

	out := k.Annotate(context.Background(), in)
	require.Len(t, out, 1)
	assert.Len(t, out[0].KeyPoints, 3)
	assert.Nil(t, in[0].KeyPoints)
}
