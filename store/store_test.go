package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"pgregory.net/rapid"

	"github.com/BaSui01/paperflow/internal/database"
	"github.com/BaSui01/paperflow/types"
)

func newTestStore(t testing.TB) *Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store_test.db")), &gorm.Config{
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

	require.NoError(t, AutoMigrate(pool.DB()))
	return New(pool, zap.NewNop())
}

func createTestProject(t *testing.T, s *Store) *Project {
	t.Helper()
	project, err := s.CreateProject(context.Background(), "quantum error correction", "siliconflow", "arxiv")
	require.NoError(t, err)
	return project
}

func TestStore_CreateProject(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	project := createTestProject(t, s)

	assert.NotEmpty(t, project.ID)
	assert.Equal(t, types.StatusCreated, project.Status)

	loaded, err := s.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, "quantum error correction", loaded.Topic)
	assert.Equal(t, "arxiv", loaded.ResearchSource)
}

func TestStore_CreateProjectEmptyTopic(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.CreateProject(context.Background(), "", "", "")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
}

func TestStore_GetProjectNotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.GetProject(context.Background(), "does-not-exist")
	require.Error(t, err)
	assert.Equal(t, types.ErrProjectNotFound, types.GetErrorCode(err))
}

func TestStore_UpdateProjectStatus(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	project := createTestProject(t, s)

	require.NoError(t, s.UpdateProjectStatus(context.Background(), project.ID, types.StatusProcessing))

	loaded, err := s.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusProcessing, loaded.Status)

	err = s.UpdateProjectStatus(context.Background(), "does-not-exist", types.StatusProcessing)
	require.Error(t, err)
	assert.Equal(t, types.ErrProjectNotFound, types.GetErrorCode(err))
}

func TestStore_MarkPhaseCompleted(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	project := createTestProject(t, s)
	ctx := context.Background()

	require.NoError(t, s.MarkPhaseCompleted(ctx, project.ID, types.ActionResearch))
	require.NoError(t, s.MarkPhaseCompleted(ctx, project.ID, types.ActionWrite))

	loaded, err := s.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.True(t, loaded.ResearchCompleted)
	assert.True(t, loaded.WritingCompleted)
	assert.False(t, loaded.ReviewCompleted)
}

func TestStore_SaveVersionSequentialNumbering(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	project := createTestProject(t, s)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		v, err := s.SaveVersion(ctx, project.ID, types.ContentDraft, fmt.Sprintf("draft %d", i), "writing_agent")
		require.NoError(t, err)
		assert.Equal(t, i, v.VersionNumber)
	}

	// numbering is independent per content type
	v, err := s.SaveVersion(ctx, project.ID, types.ContentResearch, "research", "research_agent")
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNumber)

	latest, err := s.LatestVersion(ctx, project.ID, types.ContentDraft)
	require.NoError(t, err)
	assert.Equal(t, 4, latest.VersionNumber)
	assert.Equal(t, "draft 4", latest.Content)
}

func TestStore_SaveVersionUnknownProject(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.SaveVersion(context.Background(), "does-not-exist", types.ContentDraft, "content", "writing_agent")
	require.Error(t, err)
	assert.Equal(t, types.ErrProjectNotFound, types.GetErrorCode(err))
}

func TestStore_SaveVersionConcurrentGapless(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	project := createTestProject(t, s)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.SaveVersion(ctx, project.ID, types.ContentDraft, fmt.Sprintf("draft from writer %d", n), "writing_agent")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	versions, err := s.ListVersions(ctx, project.ID, types.ContentDraft)
	require.NoError(t, err)
	require.Len(t, versions, writers)

	seen := make(map[int]bool)
	for _, v := range versions {
		seen[v.VersionNumber] = true
	}
	for n := 1; n <= writers; n++ {
		assert.True(t, seen[n], "version number %d missing, numbering must be gapless", n)
	}
}

func TestStore_GetVersion(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	project := createTestProject(t, s)
	ctx := context.Background()

	_, err := s.SaveVersion(ctx, project.ID, types.ContentReview, "first review", "review_agent")
	require.NoError(t, err)
	_, err = s.SaveVersion(ctx, project.ID, types.ContentReview, "second review", "review_agent")
	require.NoError(t, err)

	v, err := s.GetVersion(ctx, project.ID, types.ContentReview, 1)
	require.NoError(t, err)
	assert.Equal(t, "first review", v.Content)

	_, err = s.GetVersion(ctx, project.ID, types.ContentReview, 99)
	require.Error(t, err)
	assert.Equal(t, types.ErrVersionNotFound, types.GetErrorCode(err))

	_, err = s.LatestVersion(ctx, project.ID, types.ContentFinal)
	require.Error(t, err)
	assert.Equal(t, types.ErrVersionNotFound, types.GetErrorCode(err))
}

func TestStore_DeleteProjectCascades(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	project := createTestProject(t, s)
	ctx := context.Background()

	_, err := s.SaveVersion(ctx, project.ID, types.ContentDraft, "draft", "writing_agent")
	require.NoError(t, err)
	_, err = s.SaveAgentMessage(ctx, project.ID, "research_agent", "writing_agent", "hello", "information")
	require.NoError(t, err)

	require.NoError(t, s.DeleteProject(ctx, project.ID))

	_, err = s.GetProject(ctx, project.ID)
	assert.Equal(t, types.ErrProjectNotFound, types.GetErrorCode(err))

	versions, err := s.ListVersions(ctx, project.ID, types.ContentDraft)
	require.NoError(t, err)
	assert.Empty(t, versions)

	messages, err := s.ListAgentMessages(ctx, project.ID, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestStore_ListAgentMessagesSince(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	project := createTestProject(t, s)
	ctx := context.Background()

	_, err := s.SaveAgentMessage(ctx, project.ID, "supervisor_agent", "research_agent", "start", "task_assignment")
	require.NoError(t, err)

	cutoff := time.Now().Add(time.Second)

	all, err := s.ListAgentMessages(ctx, project.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "task_assignment", all[0].MessageType)

	after, err := s.ListAgentMessages(ctx, project.ID, cutoff)
	require.NoError(t, err)
	assert.Empty(t, after)
}

// TestStore_VersionNumberingProperty drives random interleavings of saves
// across content types and checks numbering stays dense per type.
func TestStore_VersionNumberingProperty(t *testing.T) {
	t.Parallel()

	contentTypes := []types.ContentType{
		types.ContentResearch, types.ContentDraft, types.ContentReview, types.ContentFinal,
	}

	rapid.Check(t, func(rt *rapid.T) {
		s := newTestStore(t)
		project, err := s.CreateProject(context.Background(), "property topic", "", "")
		if err != nil {
			rt.Fatalf("create project: %v", err)
		}

		counts := make(map[types.ContentType]int)
		steps := rapid.IntRange(1, 12).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			ct := contentTypes[rapid.IntRange(0, len(contentTypes)-1).Draw(rt, "ct")]
			v, err := s.SaveVersion(context.Background(), project.ID, ct, "content", "agent")
			if err != nil {
				rt.Fatalf("save version: %v", err)
			}
			counts[ct]++
			if v.VersionNumber != counts[ct] {
				rt.Fatalf("content type %s: got version %d, want %d", ct, v.VersionNumber, counts[ct])
			}
		}
	})
}
