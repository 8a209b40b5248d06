// Package mcp implements the Model Context Protocol (MCP) server for
// docindex.
//
// The server exposes five tools to AI assistants:
//   - index_document: Index one PDF, text or markdown file
//   - scan_knowledge_base: Index every file in a base's documents folder
//   - search_knowledge_base: Hybrid, vector or keyword search over a base
//   - get_status: Counts and health for a base
//   - list_knowledge_bases: Bases present in the data directory
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started via the serve command:
//
//	docindex serve --base papers
//
// Every tool takes an optional "base" argument. When omitted the configured
// default base is used.
//
// # Tool: index_document
//
//	Request:
//	{
//	  "name": "index_document",
//	  "arguments": {
//	    "path": "/home/me/papers/attention.pdf",
//	    "base": "papers",
//	    "import": true
//	  }
//	}
//
//	Response:
//	{
//	  "indexed": true,
//	  "skipped": false,
//	  "base": "papers",
//	  "document": {
//	    "id": 3,
//	    "filename": "attention.pdf",
//	    "total_pages": 15
//	  },
//	  "duration_ms": 812
//	}
//
// With "import" the file is first copied into the base's documents folder so
// later scans pick it up. A file whose content hash is unchanged is reported
// with "skipped": true.
//
// # Tool: search_knowledge_base
//
//	Request:
//	{
//	  "name": "search_knowledge_base",
//	  "arguments": {
//	    "query": "scaled dot product attention",
//	    "limit": 5,
//	    "search_mode": "hybrid"
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "relevance_score": 0.92,
//	      "source": "hybrid",
//	      "document": {
//	        "path": "/data/bases/papers/documents/attention.pdf",
//	        "page_num": 4,
//	        "start_char": 120,
//	        "end_char": 980
//	      },
//	      "content": "..."
//	    }
//	  ]
//	}
//
// # Progress
//
// When a tools/call request carries _meta.progressToken, index_document and
// scan_knowledge_base emit notifications/progress messages with a fraction in
// [0, 1] and a human readable message.
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments, bad base name)
//   - -32603: Internal error (database, embedding provider, vector store)
//   - -32001: File or knowledge base not found
//   - -32002: A scan of the base is already running
//   - -32003: Unsupported file type
//   - -32004: Empty query
//
// # Logging
//
// The server logs to stderr through the logger package since stdout is
// reserved for the protocol:
//
//	DOCINDEX_LOG_LEVEL=debug docindex serve
package mcp
