package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/dshills/docindex-mcp/internal/config"
	"github.com/dshills/docindex-mcp/internal/embedder"
	"github.com/dshills/docindex-mcp/internal/searcher"
	"github.com/dshills/docindex-mcp/pkg/types"
)

// PipelineTestSuite runs the indexing and search pipeline end to end over
// the testdata fixtures
type PipelineTestSuite struct {
	suite.Suite
	app *App
	ctx context.Context
	dir string
}

func (s *PipelineTestSuite) SetupTest() {
	s.ctx = context.Background()

	cfg := config.Default()
	cfg.DataDir = filepath.Join(s.T().TempDir(), "bases")
	cfg.Embedding.Provider = embedder.ProviderLocal
	cfg.Chunking.ChunkSize = 40
	cfg.Chunking.Overlap = 8
	cfg.Workers = 2

	a, err := New(s.ctx, cfg)
	s.Require().NoError(err)
	s.app = a

	s.dir = a.Indexer.DocumentsDir("papers")
	s.Require().NoError(os.MkdirAll(s.dir, 0o755))
	for _, name := range []string{"transformers.md", "sourdough.txt", "corrupt.pdf"} {
		data, err := os.ReadFile(filepath.Join("testdata", name))
		s.Require().NoError(err)
		s.Require().NoError(os.WriteFile(filepath.Join(s.dir, name), data, 0o644))
	}
}

func (s *PipelineTestSuite) TearDownTest() {
	if s.app != nil {
		s.NoError(s.app.Close(s.ctx))
	}
}

func (s *PipelineTestSuite) search(query string, mode searcher.SearchMode) *searcher.SearchResponse {
	resp, err := s.app.Searcher.Search(s.ctx, searcher.SearchRequest{
		Base:  "papers",
		Query: query,
		Mode:  mode,
		Limit: 5,
	})
	s.Require().NoError(err)
	return resp
}

func (s *PipelineTestSuite) TestScanThenSearch() {
	result, err := s.app.Indexer.ScanFolder(s.ctx, "papers", nil)
	s.Require().NoError(err)

	s.Len(result.Documents, 2)
	s.Require().Len(result.Failures, 1)
	s.Equal("corrupt.pdf", filepath.Base(result.Failures[0].Path))
	s.ErrorIs(result.Failures[0].Err, types.ErrExtraction)

	for _, mode := range []searcher.SearchMode{searcher.SearchModeHybrid, searcher.SearchModeVector, searcher.SearchModeKeyword} {
		resp := s.search("sourdough starter yeast", mode)
		s.Require().NotEmpty(resp.Results, "mode %s", mode)
		top := resp.Results[0]
		s.Equal("sourdough.txt", top.Document.Filename, "mode %s", mode)
		s.NoError(top.Validate())
	}

	resp := s.search("scaled dot product attention", searcher.SearchModeHybrid)
	s.Require().NotEmpty(resp.Results)
	s.Equal("transformers.md", resp.Results[0].Document.Filename)
	s.Equal(1, resp.Results[0].Rank)
}

func (s *PipelineTestSuite) TestRescanIsIncremental() {
	_, err := s.app.Indexer.ScanFolder(s.ctx, "papers", nil)
	s.Require().NoError(err)
	before, err := s.app.Status(s.ctx, "papers")
	s.Require().NoError(err)

	result, err := s.app.Indexer.ScanFolder(s.ctx, "papers", nil)
	s.Require().NoError(err)
	s.Equal(2, result.Skipped)

	after, err := s.app.Status(s.ctx, "papers")
	s.Require().NoError(err)
	s.Equal(before.VectorCount, after.VectorCount)
	s.Equal(before.PagesCount, after.PagesCount)
}

func (s *PipelineTestSuite) TestEditReplacesContent() {
	_, err := s.app.Indexer.ScanFolder(s.ctx, "papers", nil)
	s.Require().NoError(err)
	s.NotEmpty(s.search("sourdough", searcher.SearchModeKeyword).Results)

	path := filepath.Join(s.dir, "sourdough.txt")
	s.Require().NoError(os.WriteFile(path, []byte("Focaccia uses olive oil and a long cold rise."), 0o644))

	result, err := s.app.Indexer.ScanFolder(s.ctx, "papers", nil)
	s.Require().NoError(err)
	s.Equal(1, result.Skipped)

	s.Empty(s.search("sourdough", searcher.SearchModeKeyword).Results)
	resp := s.search("focaccia olive oil", searcher.SearchModeHybrid)
	s.Require().NotEmpty(resp.Results)
	s.Equal("sourdough.txt", resp.Results[0].Document.Filename)
}

func (s *PipelineTestSuite) TestRemoveFile() {
	_, err := s.app.Indexer.ScanFolder(s.ctx, "papers", nil)
	s.Require().NoError(err)

	path := filepath.Join(s.dir, "transformers.md")
	s.Require().NoError(s.app.Indexer.RemoveFile(s.ctx, "papers", path))

	status, err := s.app.Status(s.ctx, "papers")
	s.Require().NoError(err)
	s.Equal(1, status.DocumentsCount)

	for _, r := range s.search("attention", searcher.SearchModeHybrid).Results {
		s.NotEqual("transformers.md", r.Document.Filename)
	}
}

func (s *PipelineTestSuite) TestStatusAfterScan() {
	_, err := s.app.Indexer.ScanFolder(s.ctx, "papers", nil)
	s.Require().NoError(err)

	status, err := s.app.Status(s.ctx, "papers")
	s.Require().NoError(err)
	s.Equal(2, status.DocumentsCount)
	s.Zero(status.PendingCount)
	s.Equal(3, status.FilesInFolder)
	s.Positive(status.VectorCount)
	s.Positive(status.TotalChars)
	s.True(status.DatabaseHealthy)
}

func TestPipelineTestSuite(t *testing.T) {
	suite.Run(t, new(PipelineTestSuite))
}
