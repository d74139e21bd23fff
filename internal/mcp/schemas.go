package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/jobsearch-mcp/internal/ranker"
)

// Limits enforced by the tool handlers.
const (
	defaultRankLimit   = 10
	maxRankLimit       = 100
	defaultFilterLimit = 20
	maxFilterLimit     = 100
)

func stringArray(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": description,
		"items":       map[string]interface{}{"type": "string"},
	}
}

// filterProperties are shared by filter_jobs and rank_jobs.
func filterProperties() map[string]interface{} {
	return map[string]interface{}{
		"search": map[string]interface{}{
			"type":        "string",
			"description": "Free-text search over the job's indexed text",
		},
		"types":      stringArray("Allowed employment types (e.g. Vollzeit, Werkstudent, Praktikum); a job matches if it shares any"),
		"fields":     stringArray("Allowed occupational fields; a job matches if it shares any"),
		"domains":    stringArray("Allowed business domains; a job matches if it shares any"),
		"homeoffice": stringArray("Allowed home office tiers; a job matches if it shares any"),
		"working_hours": map[string]interface{}{
			"description": "Weekly hours as [min, max], or a single number meaning at least that many; jobs whose range overlaps match",
			"oneOf": []interface{}{
				map[string]interface{}{"type": "number", "minimum": 0},
				map[string]interface{}{
					"type":     "array",
					"items":    map[string]interface{}{"type": "number", "minimum": 0},
					"minItems": 2,
					"maxItems": 2,
				},
			},
		},
		"job_ids": stringArray("Restrict to these job ids"),
	}
}

// rankJobsTool returns the tool definition for rank_jobs
func rankJobsTool() mcp.Tool {
	props := filterProperties()
	props["query"] = map[string]interface{}{
		"type":        "string",
		"description": "What the user is looking for, in natural language or keywords",
	}
	props["limit"] = map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of jobs to return (1-100)",
		"default":     defaultRankLimit,
		"minimum":     1,
		"maximum":     maxRankLimit,
	}
	props["min_score"] = map[string]interface{}{
		"type":        "number",
		"description": "Drop jobs whose fused score is below this value (0.0-1.0)",
		"default":     0,
		"minimum":     0.0,
		"maximum":     1.0,
	}

	return mcp.Tool{
		Name: "rank_jobs",
		Description: "Rank indexed job postings by relevance to a query, combining keyword and semantic retrieval. " +
			"Optional filter fields narrow the candidate jobs first. Each result lists the text chunks that matched.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"query"},
		},
	}
}

// filterJobsTool returns the tool definition for filter_jobs
func filterJobsTool() mcp.Tool {
	props := filterProperties()
	props["limit"] = map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of jobs to return (1-100)",
		"default":     defaultFilterLimit,
		"minimum":     1,
		"maximum":     maxFilterLimit,
	}

	return mcp.Tool{
		Name: "filter_jobs",
		Description: "Select job postings by structured criteria. Results are ordered by search relevance when " +
			"search is given, otherwise by publication date (newest first).",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
		},
	}
}

// findJobsTool returns the tool definition for find_jobs
func findJobsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "find_jobs",
		Description: "Find jobs semantically similar to a description, using embeddings only",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Description of the job to look for",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of jobs to return (1-10)",
					"default":     ranker.DefaultSimilarLimit,
					"minimum":     1,
					"maximum":     ranker.MaxSimilarLimit,
				},
				"min_score": map[string]interface{}{
					"type":        "number",
					"description": "Minimum cosine similarity (0.0-1.0)",
					"default":     ranker.DefaultSimilarMinScore,
					"minimum":     0.0,
					"maximum":     1.0,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getJobTool returns the tool definition for get_job
func getJobTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_job",
		Description: "Fetch a single job posting with all its sections",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"job_id": map[string]interface{}{
					"type":        "string",
					"description": "Job id as returned by rank_jobs, filter_jobs or find_jobs",
				},
			},
			Required: []string{"job_id"},
		},
	}
}

// indexJobsTool returns the tool definition for index_jobs
func indexJobsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_jobs",
		Description: "Ingest job postings from a JSON file ({\"jobs\": [...]}) or inline. Jobs already indexed are skipped.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a JSON document of jobs",
				},
				"jobs": map[string]interface{}{
					"type":        "array",
					"description": "Job postings to ingest; used when path is not given",
					"items":       map[string]interface{}{"type": "object"},
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report index statistics and health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
