package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/dshills/jobsearch-mcp/internal/vector"
	"golang.org/x/time/rate"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Environment variables
	EnvProvider     = "JOBSEARCH_EMBEDDING_PROVIDER"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultJinaURL     = "https://api.jina.ai/v1/embeddings"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 384

	// MaxBatchSize is the largest number of texts sent in one upstream call
	MaxBatchSize = 100

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0

	DefaultTimeout = 30 * time.Second
)

// JinaConfig configures a JinaProvider.
type JinaConfig struct {
	APIKey        string
	Model         string
	BaseURL       string
	Dimension     int
	Timeout       time.Duration
	RatePerSecond float64 // 0 disables throttling
	Retry         *RetryConfig
}

// JinaProvider implements Embedder using the Jina AI embeddings API.
type JinaProvider struct {
	apiKey     string
	model      string
	url        string
	dimension  int
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      RetryConfig
}

// NewJinaProvider creates a new Jina AI embedder
func NewJinaProvider(cfg JinaConfig) (*JinaProvider, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvJinaAPIKey)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultJinaModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultJinaURL
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = JinaDimension
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	p := &JinaProvider{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		url:        cfg.BaseURL,
		dimension:  cfg.Dimension,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      retry,
	}
	if cfg.RatePerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return p, nil
}

func (j *JinaProvider) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	if err := validateText(text, mode); err != nil {
		return nil, err
	}
	vectors, err := j.EmbedMany(ctx, []string{text}, mode)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (j *JinaProvider) EmbedMany(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if err := validateBatch(texts, mode); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		out, err := retryWithBackoff(ctx, j.retry, func(ctx context.Context) ([][]float32, error) {
			return j.callAPI(ctx, batch, mode)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		vectors = append(vectors, out...)
	}

	return vectors, nil
}

// jinaTask maps a mode onto the Jina v3 retrieval adapters.
func jinaTask(mode Mode) string {
	if mode == ModeQuery {
		return "retrieval.query"
	}
	return "retrieval.passage"
}

func (j *JinaProvider) callAPI(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if j.limiter != nil {
		if err := j.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":      j.model,
		"input":      texts,
		"task":       jinaTask(mode),
		"dimensions": j.dimension,
	})
	if err != nil {
		return nil, permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return nil, permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.apiKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, apiErr
		}
		return nil, permanent(apiErr)
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}

	sort.Slice(apiResp.Data, func(a, b int) bool {
		return apiResp.Data[a].Index < apiResp.Data[b].Index
	})

	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

func (j *JinaProvider) Dimension() int {
	return j.dimension
}

func (j *JinaProvider) Provider() string {
	return ProviderJina
}

func (j *JinaProvider) Model() string {
	return j.model
}

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider builds vectors by feature hashing word tokens. Texts that
// share words get similar vectors, which is enough for offline use and
// tests. The mode has no effect.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a local embedder. A dimension <= 0 selects LocalDimension.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{dimension: dimension}
}

func (l *LocalProvider) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	if err := validateText(text, mode); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return l.vector(text), nil
}

func (l *LocalProvider) EmbedMany(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if err := validateBatch(texts, mode); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		vectors[i] = l.vector(text)
	}
	return vectors, nil
}

func (l *LocalProvider) vector(text string) []float32 {
	v := make([]float32, l.dimension)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(tokens) == 0 {
		tokens = []string{text}
	}

	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()

		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		v[sum%uint64(l.dimension)] += sign
	}

	return vector.Normalize(v)
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return "local-hashing"
}

func (l *LocalProvider) Close() error {
	return nil
}
