package workflow

// State 是一次运行的内存态产物快照。
// 落库的是版本表；State 只在迭代之间传递最新内容，
// 字段为空表示该阶段尚未产出。
type State struct {
	Topic          string
	Sources        []string // 项目指定的数据源顺序，空用服务默认
	ResearchResult string
	Draft          string
	ReviewFeedback string
	Iteration      int
	ErrorCount     int
}
