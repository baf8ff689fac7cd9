package sources

import (
	"context"
	"encoding/json"
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

// PubMedConfig 配置 PubMed E-utilities 数据源适配器。
type PubMedConfig struct {
	BaseURL    string        `json:"base_url" yaml:"base_url"` // E-utilities base URL
	MaxResults int           `json:"max_results" yaml:"max_results"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultPubMedConfig 返回 PubMed 查询的合理默认值。
func DefaultPubMedConfig() PubMedConfig {
	return PubMedConfig{
		BaseURL:    "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
		MaxResults: 10,
		Timeout:    30 * time.Second,
	}
}

// PubMedSource 通过 NCBI E-utilities 两段式检索论文：
// esearch 取 PMID 列表（JSON），efetch 取文章详情（XML）。
type PubMedSource struct {
	config PubMedConfig
	client *http.Client
	logger *zap.Logger
}

// NewPubMedSource 创建新的 PubMed 数据源适配器。
func NewPubMedSource(config PubMedConfig, logger *zap.Logger) *PubMedSource {
	if config.BaseURL == "" {
		config.BaseURL = DefaultPubMedConfig().BaseURL
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 10
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubMedSource{
		config: config,
		client: tlsutil.SecureHTTPClient(config.Timeout),
		logger: logger,
	}
}

// Name 返回数据源名称。
func (p *PubMedSource) Name() string { return NamePubMed }

// Search 在 PubMed 检索匹配查询的论文。
// 零命中返回空切片而非错误，交由聚合器判定是否降级。
func (p *PubMedSource) Search(ctx context.Context, query string, maxResults int) ([]types.Paper, error) {
	if maxResults <= 0 {
		maxResults = p.config.MaxResults
	}

	ids, err := p.searchIDs(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		p.logger.Debug("no PubMed IDs found", zap.String("query", query))
		return nil, nil
	}

	papers, err := p.fetchDetails(ctx, ids)
	if err != nil {
		return nil, err
	}

	p.logger.Info("PubMed search completed",
		zap.String("query", query),
		zap.Int("results", len(papers)))
	return papers, nil
}

// esearchResponse 对应 esearch.fcgi 的 JSON 响应。
type esearchResponse struct {
	ESearchResult struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

func (p *PubMedSource) searchIDs(ctx context.Context, query string, maxResults int) ([]string, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"term":    {query},
		"retmax":  {fmt.Sprintf("%d", maxResults)},
		"retmode": {"json"},
		"sort":    {"relevance"},
	}
	body, err := p.doRequest(ctx, fmt.Sprintf("%s/esearch.fcgi?%s", p.config.BaseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewError(types.ErrParseError, "PubMed esearch response parse failed").
			WithProvider(NamePubMed).WithCause(err)
	}
	return resp.ESearchResult.IDList, nil
}

// pubmedArticleSet 对应 efetch.fcgi 的 XML 响应。
type pubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	PMID    string `xml:"MedlineCitation>PMID"`
	Article struct {
		Title    string `xml:"ArticleTitle"`
		Abstract struct {
			Texts []string `xml:"AbstractText"`
		} `xml:"Abstract"`
		Journal struct {
			Title   string `xml:"Title"`
			PubDate struct {
				Year string `xml:"Year"`
			} `xml:"JournalIssue>PubDate"`
		} `xml:"Journal"`
		Authors []pubmedAuthor `xml:"AuthorList>Author"`
	} `xml:"MedlineCitation>Article"`
}

type pubmedAuthor struct {
	LastName string `xml:"LastName"`
	ForeName string `xml:"ForeName"`
}

func (p *PubMedSource) fetchDetails(ctx context.Context, ids []string) ([]types.Paper, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {strings.Join(ids, ",")},
		"retmode": {"xml"},
		"rettype": {"abstract"},
	}
	body, err := p.doRequest(ctx, fmt.Sprintf("%s/efetch.fcgi?%s", p.config.BaseURL, params.Encode()))
	if err != nil {
		return nil, err
	}

	var set pubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, types.NewError(types.ErrParseError, "PubMed efetch response parse failed").
			WithProvider(NamePubMed).WithCause(err)
	}

	papers := make([]types.Paper, 0, len(set.Articles))
	for _, article := range set.Articles {
		title := strings.TrimSpace(article.Article.Title)
		if title == "" {
			p.logger.Warn("skipping PubMed article without title", zap.String("pmid", article.PMID))
			continue
		}

		paper := types.Paper{
			Title:    title,
			Abstract: strings.TrimSpace(strings.Join(article.Article.Abstract.Texts, " ")),
			Journal:  strings.TrimSpace(article.Article.Journal.Title),
			Year:     strings.TrimSpace(article.Article.Journal.PubDate.Year),
			URL:      fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", article.PMID),
			Source:   NamePubMed,
		}
		for _, author := range article.Article.Authors {
			switch {
			case author.ForeName != "" && author.LastName != "":
				paper.Authors = append(paper.Authors, author.ForeName+" "+author.LastName)
			case author.LastName != "":
				paper.Authors = append(paper.Authors, author.LastName)
			}
		}
		papers = append(papers, paper)
	}
	return papers, nil
}

func (p *PubMedSource) doRequest(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to create PubMed request").WithCause(err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("PubMed request failed: %v", err)).
			WithProvider(NamePubMed).WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, types.NewError(types.ErrRateLimited, "PubMed rate limit reached").
			WithProvider(NamePubMed).WithRetryable(true)
	case resp.StatusCode >= 500:
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("PubMed server error %d", resp.StatusCode)).
			WithProvider(NamePubMed).WithRetryable(true)
	default:
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("PubMed API returned status %d", resp.StatusCode)).
			WithProvider(NamePubMed)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to read PubMed response body").
			WithProvider(NamePubMed).WithCause(err).WithRetryable(true)
	}
	return body, nil
}
