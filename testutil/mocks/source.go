// MockSource 是检索数据源的测试模拟实现。
//
// 按调用次序脚本化每次 Search 的结果，用于验证聚合器的重试与回退逻辑。
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/paperflow/types"
)

// SourceOutcome 描述一次 Search 调用的脚本化结果
type SourceOutcome struct {
	Papers []types.Paper
	Err    error
}

// MockSource 是 sources.Source 的模拟实现
type MockSource struct {
	mu sync.Mutex

	name     string
	outcomes []SourceOutcome // 按调用次序消费，耗尽后重复最后一项

	callCount int
	queries   []string
}

// NewMockSource 创建新的 MockSource
func NewMockSource(name string) *MockSource {
	return &MockSource{name: name}
}

// WithPapers 设置固定成功结果
func (m *MockSource) WithPapers(papers ...types.Paper) *MockSource {
	return m.WithOutcomes(SourceOutcome{Papers: papers})
}

// WithError 设置固定错误结果
func (m *MockSource) WithError(err error) *MockSource {
	return m.WithOutcomes(SourceOutcome{Err: err})
}

// WithOutcomes 设置脚本化结果序列，第 i 次调用返回第 i 项，耗尽后重复最后一项
func (m *MockSource) WithOutcomes(outcomes ...SourceOutcome) *MockSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcomes...)
	return m
}

// --- sources.Source 接口实现 ---

// Name 实现 sources.Source 接口
func (m *MockSource) Name() string { return m.name }

// Search 实现 sources.Source 接口
func (m *MockSource) Search(ctx context.Context, query string, maxResults int) ([]types.Paper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	m.queries = append(m.queries, query)

	if len(m.outcomes) == 0 {
		return nil, nil
	}

	idx := m.callCount - 1
	if idx >= len(m.outcomes) {
		idx = len(m.outcomes) - 1
	}
	outcome := m.outcomes[idx]
	return outcome.Papers, outcome.Err
}

// --- 调用检查 ---

// CallCount 返回 Search 被调用的次数
func (m *MockSource) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Queries 返回所有查询词的快照
func (m *MockSource) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}
