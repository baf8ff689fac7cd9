package sources

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperflow/internal/tlsutil"
	"github.com/BaSui01/paperflow/types"
)

// ArxivConfig 配置 arXiv 数据源适配器。
type ArxivConfig struct {
	BaseURL    string        `json:"base_url" yaml:"base_url"`     // arXiv API base URL
	MaxResults int           `json:"max_results" yaml:"max_results"` // 单次查询最大结果数
	SortBy     string        `json:"sort_by" yaml:"sort_by"`       // "relevance", "lastUpdatedDate", "submittedDate"
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`       // HTTP request timeout
}

// DefaultArxivConfig 返回 arXiv 查询的合理默认值。
func DefaultArxivConfig() ArxivConfig {
	return ArxivConfig{
		BaseURL:    "http://export.arxiv.org/api/query",
		MaxResults: 10,
		SortBy:     "relevance",
		Timeout:    30 * time.Second,
	}
}

// ArxivSource 通过 arXiv Atom API 检索论文。
// 单发查询语义：重试由聚合器控制，本适配器不做重试。
type ArxivSource struct {
	config ArxivConfig
	client *http.Client
	logger *zap.Logger
}

// NewArxivSource 创建新的 arXiv 数据源适配器。
func NewArxivSource(config ArxivConfig, logger *zap.Logger) *ArxivSource {
	if config.BaseURL == "" {
		config.BaseURL = DefaultArxivConfig().BaseURL
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 10
	}
	if config.SortBy == "" {
		config.SortBy = "relevance"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArxivSource{
		config: config,
		client: tlsutil.SecureHTTPClient(config.Timeout),
		logger: logger,
	}
}

// Name 返回数据源名称。
func (a *ArxivSource) Name() string { return NameArxiv }

// Search 在 arXiv 检索匹配查询的论文。
func (a *ArxivSource) Search(ctx context.Context, query string, maxResults int) ([]types.Paper, error) {
	if maxResults <= 0 {
		maxResults = a.config.MaxResults
	}

	params := url.Values{
		"search_query": {fmt.Sprintf("all:%s", query)},
		"start":        {"0"},
		"max_results":  {fmt.Sprintf("%d", maxResults)},
		"sortBy":       {a.config.SortBy},
	}
	requestURL := fmt.Sprintf("%s?%s", a.config.BaseURL, params.Encode())

	a.logger.Debug("querying arXiv",
		zap.String("query", query),
		zap.Int("max_results", maxResults))

	body, err := a.doRequest(ctx, requestURL)
	if err != nil {
		return nil, err
	}

	papers, err := a.parseResponse(body)
	if err != nil {
		return nil, types.NewError(types.ErrParseError, fmt.Sprintf("arXiv response parse failed: %v", err)).
			WithProvider(NameArxiv).WithCause(err)
	}

	a.logger.Info("arXiv search completed",
		zap.String("query", query),
		zap.Int("results", len(papers)))

	return papers, nil
}

func (a *ArxivSource) doRequest(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to create arXiv request").WithCause(err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("arXiv request failed: %v", err)).
			WithProvider(NameArxiv).WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, types.NewError(types.ErrRateLimited, "arXiv rate limit reached").
			WithProvider(NameArxiv).WithRetryable(true)
	case resp.StatusCode >= 500:
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("arXiv server error %d", resp.StatusCode)).
			WithProvider(NameArxiv).WithRetryable(true)
	default:
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("arXiv API returned status %d", resp.StatusCode)).
			WithProvider(NameArxiv)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to read arXiv response body").
			WithProvider(NameArxiv).WithCause(err).WithRetryable(true)
	}
	return body, nil
}

// arxivFeed 对应 arXiv 的 Atom XML feed。
type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []arxivAuthor `xml:"author"`
	Links     []arxivLink   `xml:"link"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
}

// parseResponse 将 Atom XML 解析为规范化论文记录。
// 单个条目缺失必要字段时跳过该条目，不影响其余结果。
func (a *ArxivSource) parseResponse(body []byte) ([]types.Paper, error) {
	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("XML parse error: %w", err)
	}

	papers := make([]types.Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		title := strings.TrimSpace(entry.Title)
		if title == "" {
			a.logger.Warn("skipping arXiv entry without title", zap.String("id", entry.ID))
			continue
		}

		paper := types.Paper{
			Title:    title,
			Abstract: strings.TrimSpace(entry.Summary),
			Source:   NameArxiv,
		}

		for _, author := range entry.Authors {
			if name := strings.TrimSpace(author.Name); name != "" {
				paper.Authors = append(paper.Authors, name)
			}
		}

		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			paper.Published = t.Format("2006-01-02")
			paper.Year = t.Format("2006")
		}

		// 优先取 HTML 摘要页链接，其次从条目 ID 推导
		for _, link := range entry.Links {
			if link.Rel == "alternate" || link.Type == "text/html" {
				paper.URL = link.Href
				break
			}
		}
		if paper.URL == "" {
			paper.URL = entry.ID
		}

		papers = append(papers, paper)
	}

	return papers, nil
}
