package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/jobsearch-mcp/internal/filter"
	"github.com/dshills/jobsearch-mcp/internal/indexer"
	"github.com/dshills/jobsearch-mcp/internal/ranker"
	"github.com/dshills/jobsearch-mcp/pkg/types"
)

// ErrorCode classifies a failed tool call for the client.
type ErrorCode string

// MCP error codes
const (
	ErrorCodeInvalidParams    ErrorCode = "INVALID_PARAMS"
	ErrorCodeIndexUnavailable ErrorCode = "INDEX_UNAVAILABLE"
	ErrorCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrorCodeIngestInProgress ErrorCode = "INGEST_IN_PROGRESS"
	ErrorCodeInternalError    ErrorCode = "INTERNAL_ERROR"
)

// maxReportedErrors caps the per-job errors echoed by index_jobs.
const maxReportedErrors = 5

// handleRankJobs handles the rank_jobs tool invocation
func (s *Server) handleRankJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, err := requiredString(args, "query")
	if err != nil {
		return nil, err
	}
	limit, err := intParam(args, "limit", defaultRankLimit, 1, maxRankLimit)
	if err != nil {
		return nil, err
	}
	minScore, err := floatParam(args, "min_score", 0)
	if err != nil {
		return nil, err
	}
	f, err := parseFilter(args)
	if err != nil {
		return nil, err
	}

	opts := ranker.RankOptions{Limit: limit, MinScore: minScore}
	ranked, err := s.app.RankFiltered(ctx, query, f, opts)
	if err != nil {
		return nil, s.toolError("rank_jobs", err)
	}

	resp := rankResponse{Query: query, Results: make([]rankedJob, 0, len(ranked))}
	for _, r := range ranked {
		job, err := s.app.Store.GetJob(ctx, r.JobID)
		if errors.Is(err, types.ErrNotFound) {
			continue // deleted since retrieval
		}
		if err != nil {
			return nil, s.toolError("rank_jobs", err)
		}
		resp.Results = append(resp.Results, rankedJob{
			jobSummary:    summarize(job),
			Score:         r.Score,
			SemanticScore: r.SemanticScore,
			LexicalScore:  r.LexicalScore,
			Chunks:        r.Chunks,
		})
	}
	resp.Count = len(resp.Results)
	return jsonResult(resp)
}

// handleFilterJobs handles the filter_jobs tool invocation
func (s *Server) handleFilterJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	limit, err := intParam(args, "limit", defaultFilterLimit, 1, maxFilterLimit)
	if err != nil {
		return nil, err
	}
	f, err := parseFilter(args)
	if err != nil {
		return nil, err
	}

	pred, err := filter.Build(f)
	if err != nil {
		return nil, s.toolError("filter_jobs", err)
	}
	matches, err := s.app.Store.SelectJobs(ctx, pred, limit)
	if err != nil {
		return nil, s.toolError("filter_jobs", err)
	}

	resp := filterResponse{Count: len(matches), Jobs: make([]filteredJob, len(matches))}
	for i, m := range matches {
		resp.Jobs[i] = filteredJob{jobSummary: summarize(m.Job)}
		if pred.Search() != "" {
			rel := m.Relevance
			resp.Jobs[i].Relevance = &rel
		}
	}
	return jsonResult(resp)
}

// handleFindJobs handles the find_jobs tool invocation
func (s *Server) handleFindJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, err := requiredString(args, "query")
	if err != nil {
		return nil, err
	}
	limit, err := intParam(args, "limit", ranker.DefaultSimilarLimit, 1, ranker.MaxSimilarLimit)
	if err != nil {
		return nil, err
	}
	minScore, err := floatParam(args, "min_score", ranker.DefaultSimilarMinScore)
	if err != nil {
		return nil, err
	}

	similar, err := s.app.Engine.Similar(ctx, query, limit, minScore)
	if err != nil {
		return nil, s.toolError("find_jobs", err)
	}

	resp := similarResponse{Query: query, Results: make([]similarJob, 0, len(similar))}
	for _, sim := range similar {
		job, err := s.app.Store.GetJob(ctx, sim.JobID)
		if errors.Is(err, types.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, s.toolError("find_jobs", err)
		}
		resp.Results = append(resp.Results, similarJob{jobSummary: summarize(job), Similarity: sim.Similarity})
	}
	resp.Count = len(resp.Results)
	return jsonResult(resp)
}

// handleGetJob handles the get_job tool invocation
func (s *Server) handleGetJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	jobID, err := requiredString(args, "job_id")
	if err != nil {
		return nil, err
	}

	job, err := s.app.Store.GetJob(ctx, jobID)
	if err != nil {
		return nil, s.toolError("get_job", err)
	}
	return jsonResult(job)
}

// handleIndexJobs handles the index_jobs tool invocation
func (s *Server) handleIndexJobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	var stats *indexer.Statistics
	switch path, _ := args["path"].(string); {
	case path != "":
		if err := validatePath(path); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
				"param":  "path",
				"reason": err.Error(),
			})
		}
		stats, err = s.app.Indexer.IngestFile(ctx, path)

	case args["jobs"] != nil:
		raw, merr := json.Marshal(map[string]interface{}{"jobs": args["jobs"]})
		if merr != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "jobs must be an array of objects", nil)
		}
		jobs, perr := indexer.ParseDocument(raw)
		if perr != nil {
			return nil, s.toolError("index_jobs", perr)
		}
		stats, err = s.app.Indexer.IngestJobs(ctx, jobs)

	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "either path or jobs is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	if err != nil {
		return nil, s.toolError("index_jobs", err)
	}

	if stats.JobsInserted > 0 {
		s.app.Engine.InvalidateCache()
	}

	response := map[string]interface{}{
		"jobs_inserted":  stats.JobsInserted,
		"jobs_skipped":   stats.JobsSkipped,
		"jobs_failed":    stats.JobsFailed,
		"chunks_created": stats.ChunksCreated,
		"duration_ms":    stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		if n > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = n
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}
	return jsonResult(response)
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.app.Store.Stats(ctx)
	if err != nil {
		return nil, s.toolError("get_status", err)
	}

	var lastPublished string
	if !st.LastPublishedAt.IsZero() {
		lastPublished = st.LastPublishedAt.Format(time.RFC3339)
	}

	fusion := s.app.Engine.Config()
	emb := s.app.Embedder
	response := map[string]interface{}{
		"backend":        st.Backend,
		"schema_version": st.SchemaVersion,
		"statistics": map[string]interface{}{
			"jobs_count":        st.Jobs,
			"chunks_count":      st.Chunks,
			"embeddings_count":  st.EmbeddedChunks,
			"chunks_by_field":   st.ChunksByField,
			"index_size_mb":     fmt.Sprintf("%.2f", st.IndexSizeMB),
			"last_published_at": lastPublished,
		},
		"health": map[string]interface{}{
			"database_accessible":  st.Health.DatabaseAccessible,
			"embeddings_available": st.Health.EmbeddingsAvailable,
			"vector_extension":     st.Health.VectorExtension,
		},
		"embedder": map[string]interface{}{
			"provider":  emb.Provider(),
			"model":     emb.Model(),
			"dimension": emb.Dimension(),
		},
		"ranking": map[string]interface{}{
			"semantic_ratio":     fusion.SemanticRatio,
			"min_chunk_score":    fusion.MinChunkScore,
			"max_chunks_per_job": fusion.MaxChunksPerJob,
			"window":             fusion.Window,
		},
	}
	return jsonResult(response)
}

// Response shapes

type jobSummary struct {
	JobID        string   `json:"job_id"`
	Title        string   `json:"title"`
	Company      string   `json:"company,omitempty"`
	Location     string   `json:"location,omitempty"`
	PublishedAt  string   `json:"published_at,omitempty"`
	WorkingHours [2]int   `json:"working_hours"`
	Types        []string `json:"types,omitempty"`
	Homeoffice   []string `json:"homeoffice,omitempty"`
}

func summarize(job *types.JobPosting) jobSummary {
	sum := jobSummary{
		JobID:        job.ID,
		Title:        job.Title,
		Company:      job.Company,
		Location:     job.Location,
		WorkingHours: [2]int{job.WorkingHoursMin, job.WorkingHoursMax},
		Types:        job.Types,
		Homeoffice:   job.Homeoffice,
	}
	if !job.PublishedAt.IsZero() {
		sum.PublishedAt = job.PublishedAt.Format(time.RFC3339)
	}
	return sum
}

type rankedJob struct {
	jobSummary
	Score         float64             `json:"score"`
	SemanticScore float64             `json:"semantic_score"`
	LexicalScore  float64             `json:"lexical_score"`
	Chunks        []types.ScoredChunk `json:"chunks"`
}

type rankResponse struct {
	Query   string      `json:"query"`
	Count   int         `json:"count"`
	Results []rankedJob `json:"results"`
}

type filteredJob struct {
	jobSummary
	Relevance *float64 `json:"relevance,omitempty"`
}

type filterResponse struct {
	Count int           `json:"count"`
	Jobs  []filteredJob `json:"jobs"`
}

type similarJob struct {
	jobSummary
	Similarity float64 `json:"similarity"`
}

type similarResponse struct {
	Query   string       `json:"query"`
	Count   int          `json:"count"`
	Results []similarJob `json:"results"`
}

// Errors

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    ErrorCode
	Message string
	Data    interface{}
	err     error
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *MCPError) Unwrap() error {
	return e.err
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code ErrorCode, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

// classify maps the error taxonomy onto tool error codes.
func classify(err error) ErrorCode {
	switch {
	case errors.Is(err, types.ErrValidation):
		return ErrorCodeInvalidParams
	case errors.Is(err, types.ErrIndexUnavailable):
		return ErrorCodeIndexUnavailable
	case errors.Is(err, types.ErrNotFound):
		return ErrorCodeNotFound
	case errors.Is(err, indexer.ErrIngestInProgress):
		return ErrorCodeIngestInProgress
	default:
		return ErrorCodeInternalError
	}
}

func (s *Server) toolError(tool string, err error) error {
	code := classify(err)
	if code == ErrorCodeInternalError || code == ErrorCodeIndexUnavailable {
		s.logger.Error("tool failed", zap.String("tool", tool), zap.Error(err))
	} else {
		s.logger.Debug("tool rejected", zap.String("tool", tool), zap.Error(err))
	}

	var data interface{}
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		data = map[string]interface{}{"param": verr.Field, "reason": verr.Message}
	}
	return &MCPError{Code: code, Message: err.Error(), Data: data, err: err}
}

// Parameter helpers

func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

func invalidParam(param string, value interface{}, reason string) error {
	return newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("%s %s", param, reason), map[string]interface{}{
		"param":  param,
		"value":  value,
		"reason": reason,
	})
}

func requiredString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required and cannot be empty", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return strings.TrimSpace(v), nil
}

// intParam extracts an integer parameter within [lo, hi] with a default value
func intParam(args map[string]interface{}, key string, def, lo, hi int) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}

	var n int
	switch v := raw.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, invalidParam(key, raw, "must be an integer")
		}
		n = int(v)
	case int:
		n = v
	default:
		return 0, invalidParam(key, raw, "must be an integer")
	}

	if n < lo || n > hi {
		return 0, invalidParam(key, n, fmt.Sprintf("must be between %d and %d", lo, hi))
	}
	return n, nil
}

// floatParam extracts a number within [0, 1] with a default value
func floatParam(args map[string]interface{}, key string, def float64) (float64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return def, nil
	}

	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	default:
		return 0, invalidParam(key, raw, "must be a number")
	}
	if f < 0 || f > 1 {
		return 0, invalidParam(key, f, "must be between 0 and 1")
	}
	return f, nil
}

func stringSlice(args map[string]interface{}, key string) ([]string, error) {
	switch v := args[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, invalidParam(key, args[key], "must be an array of strings")
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, invalidParam(key, args[key], "must be an array of strings")
	}
}

// parseWorkingHours accepts [min, max] or a single lower bound.
func parseWorkingHours(raw interface{}) (*[2]int, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		return types.HoursFrom(int(v)), nil
	case int:
		return types.HoursFrom(v), nil
	case []interface{}:
		if len(v) != 2 {
			return nil, invalidParam("working_hours", raw, "must be [min, max]")
		}
		var hours [2]int
		for i, item := range v {
			n, ok := item.(float64)
			if !ok {
				return nil, invalidParam("working_hours", raw, "must contain numbers")
			}
			hours[i] = int(n)
		}
		return &hours, nil
	default:
		return nil, invalidParam("working_hours", raw, "must be a number or [min, max]")
	}
}

func parseFilter(args map[string]interface{}) (types.Filter, error) {
	var (
		f   types.Filter
		err error
	)
	f.Search, _ = args["search"].(string)

	for key, dst := range map[string]*[]string{
		"types":      &f.Types,
		"fields":     &f.Fields,
		"domains":    &f.Domains,
		"homeoffice": &f.Homeoffice,
		"job_ids":    &f.JobIDs,
	} {
		if *dst, err = stringSlice(args, key); err != nil {
			return types.Filter{}, err
		}
	}

	if f.WorkingHours, err = parseWorkingHours(args["working_hours"]); err != nil {
		return types.Filter{}, err
	}
	return f, nil
}

// validatePath checks that path is an absolute, readable regular file
func validatePath(path string) error {
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

// jsonResult formats data as indented JSON text
func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to encode result", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(string(bytes)), nil
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrIsDirectory     = errors.New("path is a directory")
)
