package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/hyperjump/logsentry/internal/config"
	"github.com/hyperjump/logsentry/internal/metrics"
	"github.com/hyperjump/logsentry/pkg/utils"
)

const maxBatch = 100

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint or an Azure OpenAI deployment.
type OpenAIEmbedder struct {
	provider  string
	apiKey    string
	model     string
	endpoint  string
	azure     bool
	dimension int
	client    *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model,omitempty"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// APIError is returned for non-2xx provider responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("embedding API error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func modelDimension(model string, configured int) int {
	if configured > 0 {
		return configured
	}
	switch model {
	case "text-embedding-3-large":
		return 3072
	default:
		return 1536
	}
}

// NewOpenAIEmbedder creates an embedder for cfg.BaseURL + "/embeddings" with Bearer auth.
// The API key is read from the environment variable named by cfg.APIKeyEnv.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
	}
	return &OpenAIEmbedder{
		provider:  "openai",
		apiKey:    apiKey,
		model:     cfg.Model,
		endpoint:  strings.TrimRight(cfg.BaseURL, "/") + "/embeddings",
		dimension: modelDimension(cfg.Model, cfg.Dimensions),
		client:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// NewAzureEmbedder creates an embedder for an Azure OpenAI embeddings deployment
// authenticated with the api-key header.
func NewAzureEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.AzureEndpoint == "" || cfg.AzureDeployment == "" {
		return nil, fmt.Errorf("azure provider requires azure_endpoint and azure_deployment")
	}
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", cfg.APIKeyEnv)
	}
	endpoint := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		strings.TrimRight(cfg.AzureEndpoint, "/"),
		url.PathEscape(cfg.AzureDeployment),
		url.QueryEscape(cfg.AzureAPIVersion))
	return &OpenAIEmbedder{
		provider:  "azure",
		apiKey:    apiKey,
		model:     cfg.AzureDeployment,
		endpoint:  endpoint,
		azure:     true,
		dimension: modelDimension(cfg.Model, cfg.Dimensions),
		client:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Embed returns the normalized embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in requests of up to 100 inputs, preserving order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += maxBatch {
		end := i + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := embeddingRequest{Input: texts}
	if !e.azure {
		reqBody.Model = e.model
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.azure {
		req.Header.Set("api-key", e.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, "error").Inc()
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, "error").Inc()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result embeddingResponse
	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, "error").Inc()
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &result) == nil && result.Error != nil {
			msg = result.Error.Message
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(body, &result); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, "error").Inc()
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(result.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, "error").Inc()
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	sort.Slice(result.Data, func(i, j int) bool { return result.Data[i].Index < result.Data[j].Index })
	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		if len(d.Embedding) != e.dimension {
			metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, "error").Inc()
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, expected %d", len(d.Embedding), e.dimension)
		}
		utils.NormalizeL2(d.Embedding)
		embeddings[i] = d.Embedding
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues(e.provider, "ok").Inc()
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimension
}

// Close releases idle connections.
func (e *OpenAIEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
