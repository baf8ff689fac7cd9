// Package sources 提供学术检索数据源适配器。
// 每个适配器做一次单发查询；重试与退避由上层聚合器统一控制。
package sources

import (
	"context"

	"github.com/BaSui01/paperflow/types"
)

// 内置数据源名称。
const (
	NameArxiv   = "arxiv"
	NamePubMed  = "pubmed"
	NameScholar = "google_scholar"
)

// Source 是学术检索数据源的统一接口。
// Search 返回规范化论文记录；零结果不视为错误，由调用方判定。
type Source interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]types.Paper, error)
}
