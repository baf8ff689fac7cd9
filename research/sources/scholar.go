package sources

import (
	"context"
	"encoding/json"
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

// ScholarConfig 配置 Google Scholar（经 SerpAPI）数据源适配器。
type ScholarConfig struct {
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	APIKey     string        `json:"api_key" yaml:"api_key"` // SerpAPI key，必填
	MaxResults int           `json:"max_results" yaml:"max_results"`
	YearSpan   int           `json:"year_span" yaml:"year_span"` // 检索最近 N 年内的论文
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultScholarConfig 返回 Google Scholar 查询的合理默认值。
func DefaultScholarConfig() ScholarConfig {
	return ScholarConfig{
		BaseURL:    "https://serpapi.com/search",
		MaxResults: 10,
		YearSpan:   5,
		Timeout:    30 * time.Second,
	}
}

// ScholarSource 通过 SerpAPI 的 google_scholar 引擎检索论文。
// SerpAPI 按请求计费，聚合器对本数据源只做单次尝试。
type ScholarSource struct {
	config ScholarConfig
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewScholarSource 创建新的 Google Scholar 数据源适配器。
func NewScholarSource(config ScholarConfig, logger *zap.Logger) *ScholarSource {
	if config.BaseURL == "" {
		config.BaseURL = DefaultScholarConfig().BaseURL
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 10
	}
	if config.YearSpan <= 0 {
		config.YearSpan = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScholarSource{
		config: config,
		client: tlsutil.SecureHTTPClient(config.Timeout),
		logger: logger,
		now:    time.Now,
	}
}

// Name 返回数据源名称。
func (s *ScholarSource) Name() string { return NameScholar }

// serpResponse 对应 SerpAPI 的 JSON 响应（仅取 organic_results）。
type serpResponse struct {
	OrganicResults []serpResult `json:"organic_results"`
}

type serpResult struct {
	Title           string `json:"title"`
	Link            string `json:"link"`
	Snippet         string `json:"snippet"`
	PublicationInfo struct {
		Summary string `json:"summary"`
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
	} `json:"publication_info"`
}

// Search 在 Google Scholar 检索匹配查询的论文。
func (s *ScholarSource) Search(ctx context.Context, query string, maxResults int) ([]types.Paper, error) {
	if s.config.APIKey == "" {
		return nil, types.NewError(types.ErrAuthentication, "SerpAPI key is required for Google Scholar search").
			WithProvider(NameScholar)
	}
	if maxResults <= 0 {
		maxResults = s.config.MaxResults
	}
	if maxResults > 20 {
		maxResults = 20 // SerpAPI 单页上限
	}

	params := url.Values{
		"engine":  {"google_scholar"},
		"q":       {query},
		"api_key": {s.config.APIKey},
		"num":     {fmt.Sprintf("%d", maxResults)},
		"as_ylo":  {fmt.Sprintf("%d", s.now().Year()-s.config.YearSpan)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s?%s", s.config.BaseURL, params.Encode()), nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to create Google Scholar request").WithCause(err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("Google Scholar request failed: %v", err)).
			WithProvider(NameScholar).WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, types.NewError(types.ErrRateLimited, "SerpAPI rate limit reached").
			WithProvider(NameScholar).WithRetryable(true)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, types.NewError(types.ErrAuthentication, "SerpAPI authentication failed").
			WithProvider(NameScholar)
	default:
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("SerpAPI returned status %d", resp.StatusCode)).
			WithProvider(NameScholar).WithRetryable(resp.StatusCode >= 500)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to read SerpAPI response body").
			WithProvider(NameScholar).WithCause(err).WithRetryable(true)
	}

	var data serpResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, types.NewError(types.ErrParseError, "SerpAPI response parse failed").
			WithProvider(NameScholar).WithCause(err)
	}

	papers := make([]types.Paper, 0, len(data.OrganicResults))
	for _, result := range data.OrganicResults {
		title := strings.TrimSpace(result.Title)
		if title == "" {
			continue
		}
		paper := types.Paper{
			Title:    title,
			Abstract: strings.TrimSpace(result.Snippet),
			URL:      result.Link,
			Source:   NameScholar,
		}
		for _, author := range result.PublicationInfo.Authors {
			if name := strings.TrimSpace(author.Name); name != "" {
				paper.Authors = append(paper.Authors, name)
			}
		}
		// 作者缺失时退回 publication_info.summary 的逗号分段
		if len(paper.Authors) == 0 && strings.Contains(result.PublicationInfo.Summary, ",") {
			head := strings.SplitN(result.PublicationInfo.Summary, " - ", 2)[0]
			for _, part := range strings.Split(head, ",") {
				if name := strings.TrimSpace(part); name != "" {
					paper.Authors = append(paper.Authors, name)
				}
			}
		}
		papers = append(papers, paper)
	}

	s.logger.Info("Google Scholar search completed",
		zap.String("query", query),
		zap.Int("results", len(papers)))
	return papers, nil
}
