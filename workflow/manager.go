package workflow

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/paperflow/types"
)

// Manager 异步启动工作流，同一项目同一时刻只允许一个运行。
// Shutdown 会取消派生上下文并等待所有在途运行退出。
type Manager struct {
	runner *Runner
	logger *zap.Logger

	mu     sync.Mutex
	active map[string]struct{}

	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager 创建运行管理器。
func NewManager(runner *Runner, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	return &Manager{
		runner: runner,
		logger: logger,
		active: make(map[string]struct{}),
		group:  group,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 异步启动项目工作流。项目已有在途运行时返回错误。
func (m *Manager) Start(projectID string) error {
	m.mu.Lock()
	if _, running := m.active[projectID]; running {
		m.mu.Unlock()
		return types.NewError(types.ErrRunActive, fmt.Sprintf("project %s already has an active run", projectID))
	}
	m.active[projectID] = struct{}{}
	m.mu.Unlock()

	m.group.Go(func() error {
		defer func() {
			m.mu.Lock()
			delete(m.active, projectID)
			m.mu.Unlock()
		}()

		if err := m.runner.Run(m.ctx, projectID); err != nil {
			// 运行失败已在 Runner 内落库留痕，这里只记日志，不放大成组错误
			m.logger.Error("workflow run failed",
				zap.String("project_id", projectID),
				zap.Error(err))
		}
		return nil
	})

	m.logger.Info("workflow run started", zap.String("project_id", projectID))
	return nil
}

// Running 报告项目是否有在途运行。
func (m *Manager) Running(projectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, running := m.active[projectID]
	return running
}

// Shutdown 取消所有在途运行并等待退出。
func (m *Manager) Shutdown() error {
	m.cancel()
	return m.group.Wait()
}
