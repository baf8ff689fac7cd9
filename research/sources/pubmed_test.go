package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const pubmedEfetchFixture = `<?xml version="1.0"?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>12345678</PMID>
      <Article>
        <ArticleTitle>CRISPR Screening at Scale</ArticleTitle>
        <Abstract>
          <AbstractText>Background text.</AbstractText>
          <AbstractText>Results text.</AbstractText>
        </Abstract>
        <Journal>
          <Title>Nature Methods</Title>
          <JournalIssue><PubDate><Year>2024</Year></PubDate></JournalIssue>
        </Journal>
        <AuthorList>
          <Author><LastName>Curie</LastName><ForeName>Marie</ForeName></Author>
          <Author><LastName>Consortium</LastName></Author>
        </AuthorList>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func TestPubMedSource_Search(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "esearch.fcgi"):
			assert.Equal(t, "pubmed", r.URL.Query().Get("db"))
			assert.Equal(t, "crispr", r.URL.Query().Get("term"))
			w.Write([]byte(`{"esearchresult":{"idlist":["12345678"]}}`))
		case strings.Contains(r.URL.Path, "efetch.fcgi"):
			assert.Equal(t, "12345678", r.URL.Query().Get("id"))
			w.Write([]byte(pubmedEfetchFixture))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	t.Cleanup(server.Close)

	cfg := DefaultPubMedConfig()
	cfg.BaseURL = server.URL
	src := NewPubMedSource(cfg, zap.NewNop())

	papers, err := src.Search(context.Background(), "crispr", 5)
	require.NoError(t, err)
	require.Len(t, papers, 1)

	p := papers[0]
	assert.Equal(t, "CRISPR Screening at Scale", p.Title)
	assert.Equal(t, "Background text. Results text.", p.Abstract)
	assert.Equal(t, "Nature Methods", p.Journal)
	assert.Equal(t, "2024", p.Year)
	assert.Equal(t, []string{"Marie Curie", "Consortium"}, p.Authors)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/12345678/", p.URL)
	assert.Equal(t, NamePubMed, p.Source)
}

func TestPubMedSource_SearchNoHits(t *testing.T) {
	t.Parallel()

	fetched := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "efetch.fcgi") {
			fetched = true
		}
		w.Write([]byte(`{"esearchresult":{"idlist":[]}}`))
	}))
	t.Cleanup(server.Close)

	cfg := DefaultPubMedConfig()
	cfg.BaseURL = server.URL
	src := NewPubMedSource(cfg, zap.NewNop())

	papers, err := src.Search(context.Background(), "nothing matches this", 5)
	require.NoError(t, err, "zero hits is not an error")
	assert.Empty(t, papers)
	assert.False(t, fetched, "efetch must not run without IDs")
}
