// Package mcp implements the Model Context Protocol (MCP) server for job search.
//
// The server exposes the ranking engine and the job index as tools:
//   - rank_jobs: hybrid lexical and semantic ranking with chunk evidence
//   - filter_jobs: structured selection by tags, working hours and free text
//   - find_jobs: semantic-only similarity lookup
//   - get_job: fetch one posting by id
//   - index_jobs: ingest postings from a JSON file or inline
//   - get_status: index statistics and engine configuration
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio. stdout is reserved for protocol
// messages, so all logging goes to stderr.
//
// # Tool: rank_jobs
//
//	Request:
//	{
//	  "name": "rank_jobs",
//	  "arguments": {
//	    "query": "remote python backend",
//	    "limit": 10,
//	    "types": ["fulltime"],
//	    "working_hours": [30, 40]
//	  }
//	}
//
//	Response:
//	{
//	  "query": "remote python backend",
//	  "count": 1,
//	  "results": [
//	    {
//	      "job_id": "a",
//	      "title": "Remote Backend Engineer",
//	      "score": 1,
//	      "semantic_score": 0.91,
//	      "lexical_score": 0.72,
//	      "chunks": [{"field_type": "title", "score": 1.63, "channels": ["lexical", "semantic"]}]
//	    }
//	  ]
//	}
//
// Structured filter arguments are resolved first; their matches become the
// job allowlist for ranking. A filter that matches nothing yields no results
// rather than an unrestricted ranking.
//
// # Error Handling
//
// Failed calls return an MCPError whose code is one of:
//   - INVALID_PARAMS: missing or malformed arguments
//   - INDEX_UNAVAILABLE: both retrieval channels failed
//   - NOT_FOUND: unknown job id
//   - INGEST_IN_PROGRESS: another ingestion holds the lock
//   - INTERNAL_ERROR: anything else
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "jobsearch": {
//	      "command": "/usr/local/bin/jobsearch",
//	      "args": ["serve"],
//	      "env": {"JINA_API_KEY": "your-api-key"}
//	    }
//	  }
//	}
package mcp
