package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/paperflow/types"
)

// waitIdle polls until the project has no active run.
func waitIdle(t *testing.T, m *Manager, projectID string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for m.Running(projectID) {
		if time.Now().After(deadline) {
			t.Fatal("run did not finish in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManager_StartRejectsDuplicateRun(t *testing.T) {
	t.Parallel()

	// a failing writing phase keeps the run alive for several iterations
	provider := routedProvider(nil, types.NewError(types.ErrUpstreamError, "down"))
	f := newRunnerFixture(t, provider, Config{MaxIterations: 3, MaxErrors: 5})
	m := NewManager(f.runner, nil)
	t.Cleanup(func() { m.Shutdown() })

	require.NoError(t, m.Start(f.project.ID))

	if err := m.Start(f.project.ID); err != nil {
		assert.Equal(t, types.ErrRunActive, types.GetErrorCode(err))
	}
	// else: the first run already finished, which is also a valid outcome

	waitIdle(t, m, f.project.ID)
	require.NoError(t, m.Shutdown())
}

func TestManager_RunFailureDoesNotPoisonSiblings(t *testing.T) {
	t.Parallel()

	provider := routedProvider([]string{"DECISION: COMPLETE"}, nil)
	f := newRunnerFixture(t, provider, Config{MaxIterations: 5, MaxErrors: 3})
	m := NewManager(f.runner, nil)

	// a run against a missing project fails internally but must not cancel the group
	require.NoError(t, m.Start("does-not-exist"))
	require.NoError(t, m.Start(f.project.ID))

	waitIdle(t, m, "does-not-exist")
	waitIdle(t, m, f.project.ID)
	require.NoError(t, m.Shutdown())

	project, err := f.store.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, project.Status)
}

func TestManager_RunningLifecycle(t *testing.T) {
	t.Parallel()

	provider := routedProvider([]string{"DECISION: COMPLETE"}, nil)
	f := newRunnerFixture(t, provider, Config{MaxIterations: 5, MaxErrors: 3})
	m := NewManager(f.runner, nil)

	assert.False(t, m.Running(f.project.ID))
	require.NoError(t, m.Start(f.project.ID))
	waitIdle(t, m, f.project.ID)
	require.NoError(t, m.Shutdown())
	assert.False(t, m.Running(f.project.ID))

	project, err := f.store.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, project.Status)
}
