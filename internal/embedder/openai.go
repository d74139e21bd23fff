package embedder

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig configures an OpenAIProvider. BaseURL selects any
// OpenAI-compatible endpoint; without an API key such endpoints are called
// with a placeholder token.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
	Retry     *RetryConfig
}

// OpenAIProvider implements Embedder on top of langchaingo's OpenAI client.
type OpenAIProvider struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	retry     RetryConfig
}

// NewOpenAIProvider creates a new OpenAI-compatible embedder
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = OpenAIDimension
	}

	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(MaxBatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	retry := DefaultRetryConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}

	return &OpenAIProvider{
		embedder:  emb,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		retry:     retry,
	}, nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, text string, mode Mode) ([]float32, error) {
	if err := validateText(text, mode); err != nil {
		return nil, err
	}

	vec, err := retryWithBackoff(ctx, o.retry, func(ctx context.Context) ([]float32, error) {
		if mode == ModeQuery {
			return o.embedder.EmbedQuery(ctx, text)
		}
		vectors, err := o.embedder.EmbedDocuments(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
		}
		return vectors[0], nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return vec, nil
}

func (o *OpenAIProvider) EmbedMany(ctx context.Context, texts []string, mode Mode) ([][]float32, error) {
	if err := validateBatch(texts, mode); err != nil {
		return nil, err
	}

	if mode == ModeQuery {
		vectors := make([][]float32, len(texts))
		for i, text := range texts {
			vec, err := o.Embed(ctx, text, mode)
			if err != nil {
				return nil, err
			}
			vectors[i] = vec
		}
		return vectors, nil
	}

	vectors, err := retryWithBackoff(ctx, o.retry, func(ctx context.Context) ([][]float32, error) {
		out, err := o.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out))
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	return vectors, nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}
