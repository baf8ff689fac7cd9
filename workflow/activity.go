// Package workflow 编排论文生成主循环：
// 调度智能体决策、阶段执行、产物落库、消息留痕与迭代上限控制。
package workflow

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// 单项目活动日志上限，超出后丢最旧的。
const activityLogCap = 100

// ActivityEntry 是一条活动日志。
type ActivityEntry struct {
	Timestamp time.Time `json:"timestamp"`
	AgentType string    `json:"agent_type"`
	Activity  string    `json:"activity"`
	Details   string    `json:"details,omitempty"`
}

// ActivityLog 按项目保存环形活动日志，供前端轮询。
type ActivityLog struct {
	mu      sync.Mutex
	entries map[string][]ActivityEntry
	logger  *zap.Logger
	now     func() time.Time
}

// NewActivityLog 创建活动日志。
func NewActivityLog(logger *zap.Logger) *ActivityLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityLog{
		entries: make(map[string][]ActivityEntry),
		logger:  logger,
		now:     time.Now,
	}
}

// Record 追加一条活动日志并同步打到服务日志。
func (l *ActivityLog) Record(projectID, agentType, activity, details string) {
	l.mu.Lock()
	entries := append(l.entries[projectID], ActivityEntry{
		Timestamp: l.now(),
		AgentType: agentType,
		Activity:  activity,
		Details:   details,
	})
	if len(entries) > activityLogCap {
		entries = entries[len(entries)-activityLogCap:]
	}
	l.entries[projectID] = entries
	l.mu.Unlock()

	l.logger.Info("agent activity",
		zap.String("project_id", projectID),
		zap.String("agent_type", agentType),
		zap.String("activity", activity))
}

// Since 返回时间戳之后的日志，since 为零值时返回全部。
func (l *ActivityLog) Since(projectID string, since time.Time) []ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := l.entries[projectID]
	if since.IsZero() {
		out := make([]ActivityEntry, len(entries))
		copy(out, entries)
		return out
	}
	var out []ActivityEntry
	for _, e := range entries {
		if e.Timestamp.After(since) {
			out = append(out, e)
		}
	}
	return out
}
