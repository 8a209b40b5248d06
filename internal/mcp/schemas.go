package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	ToolIndexDocument      = "index_document"
	ToolScanKnowledgeBase  = "scan_knowledge_base"
	ToolSearchKnowledge    = "search_knowledge_base"
	ToolGetStatus          = "get_status"
	ToolListKnowledgeBases = "list_knowledge_bases"
)

func baseProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Knowledge base name (letters, digits, '_', '.', '-'). Defaults to the configured base.",
	}
}

// indexDocumentTool returns the tool definition for index_document
func indexDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolIndexDocument,
		Description: "Index one PDF, text or markdown file into a knowledge base. Unchanged files are skipped.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the file to index",
				},
				"base": baseProperty(),
				"import": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, copy the file into the base's documents folder before indexing",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// scanKnowledgeBaseTool returns the tool definition for scan_knowledge_base
func scanKnowledgeBaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolScanKnowledgeBase,
		Description: "Index every file in a knowledge base's documents folder. Per-file failures are reported, not fatal.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"base": baseProperty(),
			},
		},
	}
}

// searchKnowledgeBaseTool returns the tool definition for search_knowledge_base
func searchKnowledgeBaseTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolSearchKnowledge,
		Description: "Search an indexed knowledge base with natural language or keyword queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"base": baseProperty(),
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Search strategy: hybrid (vector + keyword), vector (semantic only), or keyword (BM25 only)",
					"enum":        []string{"hybrid", "vector", "keyword"},
					"default":     "hybrid",
				},
				"document_path": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one indexed document",
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity for vector hits (0.0-1.0)",
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolGetStatus,
		Description: "Query indexing status and statistics for a knowledge base",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"base": baseProperty(),
			},
		},
	}
}

// listKnowledgeBasesTool returns the tool definition for list_knowledge_bases
func listKnowledgeBasesTool() mcp.Tool {
	return mcp.Tool{
		Name:        ToolListKnowledgeBases,
		Description: "List the knowledge bases in the data directory",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
