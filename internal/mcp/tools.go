package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/logger"
	"github.com/dshills/docindex-mcp/internal/searcher"
	"github.com/dshills/docindex-mcp/internal/storage"
	"github.com/dshills/docindex-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound           = -32001 // File or knowledge base does not exist
	ErrorCodeIndexingInProgress = -32002 // A scan of the base is already running
	ErrorCodeUnsupportedType    = -32003 // File extension cannot be indexed
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// maxReportedFailures caps the per-file errors included in a scan response
const maxReportedFailures = 5

// handleIndexDocument handles the index_document tool invocation
func (s *Server) handleIndexDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err := validateFilePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	base, err := s.app.ResolveBase(getStringDefault(args, "base", ""))
	if err != nil {
		return nil, toMCPError("invalid base", err)
	}

	if getBoolDefault(args, "import", false) {
		if path, err = s.app.ImportFile(base, path); err != nil {
			return nil, toMCPError("import failed", err)
		}
	}

	start := time.Now()
	doc, err := s.app.Indexer.IndexFile(ctx, base, path, s.progressFunc(ctx, request))
	if err != nil {
		return nil, toMCPError("indexing failed", err)
	}

	response := map[string]interface{}{
		"indexed":     true,
		"skipped":     doc.IndexedAt.Before(start), // an unchanged file keeps its previous run time
		"base":        base,
		"document":    documentJSON(doc),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleScanKnowledgeBase handles the scan_knowledge_base tool invocation
func (s *Server) handleScanKnowledgeBase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	base, err := s.app.ResolveBase(getStringDefault(args, "base", ""))
	if err != nil {
		return nil, toMCPError("invalid base", err)
	}

	result, err := s.app.Indexer.ScanFolder(ctx, base, s.progressFunc(ctx, request))
	if err != nil {
		return nil, toMCPError("scan failed", err)
	}

	documents := make([]map[string]interface{}, len(result.Documents))
	for i, doc := range result.Documents {
		documents[i] = documentJSON(doc)
	}

	response := map[string]interface{}{
		"base":          base,
		"documents_dir": s.app.Indexer.DocumentsDir(base),
		"files_indexed": len(result.Documents) - result.Skipped,
		"files_skipped": result.Skipped,
		"files_failed":  len(result.Failures),
		"documents":     documents,
		"duration_ms":   result.Duration.Milliseconds(),
	}

	if n := len(result.Failures); n > 0 {
		errs := make([]string, 0, min(n, maxReportedFailures))
		for _, f := range result.Failures[:min(n, maxReportedFailures)] {
			errs = append(errs, fmt.Sprintf("%s: %v", filepath.Base(f.Path), f.Err))
		}
		response["errors"] = errs
		if n > maxReportedFailures {
			response["error_count"] = n
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchKnowledgeBase handles the search_knowledge_base tool invocation
func (s *Server) handleSearchKnowledgeBase(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	base, err := s.app.ResolveBase(getStringDefault(args, "base", ""))
	if err != nil {
		return nil, toMCPError("invalid base", err)
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	mode, err := searcher.ParseMode(getStringDefault(args, "search_mode", string(searcher.SearchModeHybrid)))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   args["search_mode"],
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	minScore := getFloatDefault(args, "min_score", 0)
	if minScore < 0 || minScore > 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "min_score must be between 0 and 1", map[string]interface{}{
			"param": "min_score",
			"value": minScore,
		})
	}

	resp, err := s.app.Searcher.Search(ctx, searcher.SearchRequest{
		Base:         base,
		Query:        query,
		Limit:        limit,
		Mode:         mode,
		DocumentPath: getStringDefault(args, "document_path", ""),
		MinScore:     minScore,
		UseCache:     true,
	})
	if err != nil {
		return nil, toMCPError("search failed", err)
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		item := map[string]interface{}{
			"rank":            r.Rank,
			"relevance_score": r.RelevanceScore,
			"source":          r.Source,
			"content":         r.Content,
		}
		if r.Document != nil {
			item["document"] = map[string]interface{}{
				"path":       r.Document.Path,
				"filename":   r.Document.Filename,
				"page_num":   r.Document.PageNum,
				"start_char": r.Document.StartChar,
				"end_char":   r.Document.EndChar,
			}
		}
		results[i] = item
	}

	response := map[string]interface{}{
		"base":           base,
		"query":          query,
		"search_mode":    string(resp.SearchMode),
		"total_results":  resp.TotalResults,
		"vector_results": resp.VectorResults,
		"text_results":   resp.TextResults,
		"cache_hit":      resp.CacheHit,
		"duration_ms":    resp.Duration.Milliseconds(),
		"results":        results,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := arguments(request)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	base, err := s.app.ResolveBase(getStringDefault(args, "base", ""))
	if err != nil {
		return nil, toMCPError("invalid base", err)
	}

	status, err := s.app.Status(ctx, base)
	if errors.Is(err, types.ErrNotFound) {
		response := map[string]interface{}{
			"indexed": false,
			"base":    base,
			"message": "Knowledge base not found. Use index_document or scan_knowledge_base to create it.",
		}
		return mcp.NewToolResultText(formatJSON(response)), nil
	}
	if err != nil {
		return nil, toMCPError("failed to get status", err)
	}

	lastIndexed := ""
	if !status.LastIndexedAt.IsZero() {
		lastIndexed = status.LastIndexedAt.Format(time.RFC3339)
	}

	response := map[string]interface{}{
		"indexed": status.DocumentsCount > 0,
		"base":    base,
		"statistics": map[string]interface{}{
			"documents_count": status.DocumentsCount,
			"pending_count":   status.PendingCount,
			"pages_count":     status.PagesCount,
			"total_chars":     status.TotalChars,
			"vectors_count":   status.VectorCount,
			"files_in_folder": status.FilesInFolder,
			"index_size_mb":   fmt.Sprintf("%.2f", status.DatabaseSizeMB),
			"last_indexed_at": lastIndexed,
			"schema_version":  status.SchemaVersion,
		},
		"embedding": map[string]interface{}{
			"provider":  status.EmbeddingProvider,
			"model":     status.EmbeddingModel,
			"dimension": status.Dimension,
		},
		"health": map[string]interface{}{
			"database_accessible": status.DatabaseHealthy,
			"fts_indexes_built":   status.FTSIndexesBuilt,
			"vector_backend":      status.VectorBackend,
		},
		"documents_dir": status.DocumentsDir,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListKnowledgeBases handles the list_knowledge_bases tool invocation
func (s *Server) handleListKnowledgeBases(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bases, err := s.app.ListBases()
	if err != nil {
		return nil, toMCPError("failed to list knowledge bases", err)
	}

	response := map[string]interface{}{
		"data_dir":     s.app.Config.DataDir,
		"default_base": s.app.Config.DefaultBase,
		"bases":        bases,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// progressFunc forwards indexing progress to the client as
// notifications/progress when the request carries a progress token
func (s *Server) progressFunc(ctx context.Context, request mcp.CallToolRequest) indexer.ProgressFunc {
	var token mcp.ProgressToken
	if request.Params.Meta != nil {
		token = request.Params.Meta.ProgressToken
	}
	srv := server.ServerFromContext(ctx)

	return func(e indexer.Event) {
		logger.Debug("progress", "message", e.Message, "fraction", e.Fraction)
		if token == nil || srv == nil {
			return
		}

		params := map[string]any{
			"progressToken": token,
			"message":       e.Message,
		}
		if e.Known {
			params["progress"] = e.Fraction
			params["total"] = 1.0
		}
		if err := srv.SendNotificationToClient(ctx, "notifications/progress", params); err != nil {
			logger.Debug("failed to send progress notification", "error", err)
		}
	}
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// toMCPError classifies a pipeline error
func toMCPError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrUnsupportedType):
		code = ErrorCodeUnsupportedType
	case errors.Is(err, types.ErrValidation):
		code = ErrorCodeInvalidParams
	case errors.Is(err, types.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		code = ErrorCodeNotFound
	case errors.Is(err, types.ErrIndexingInProgress):
		code = ErrorCodeIndexingInProgress
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	if data, ok := e.Data.(map[string]interface{}); ok {
		if detail, ok := data["error"].(string); ok {
			return fmt.Sprintf("MCP error %d: %s: %s", e.Code, e.Message, detail)
		}
	}
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validateFilePath checks that path names an existing regular file
func validateFilePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if info.IsDir() {
		return ErrIsDirectory
	}

	return nil
}

func documentJSON(doc *storage.Document) map[string]interface{} {
	out := map[string]interface{}{
		"id":         doc.ID,
		"filename":   doc.Filename,
		"path":       doc.Path,
		"file_hash":  doc.FileHash,
		"indexed_at": doc.IndexedAt.Format(time.RFC3339),
	}
	if doc.TotalPages != nil {
		out["total_pages"] = *doc.TotalPages
	}
	return out
}

// arguments returns the tool arguments; absent arguments are an empty map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, bool) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, true
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	return args, ok
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrIsDirectory     = errors.New("path is a directory, use scan_knowledge_base for folders")
)
