package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

type SiliconFlowEmbedder struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	model     string
	dimension int
}

type siliconFlowEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type siliconFlowEmbeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func NewSiliconFlowEmbedder(config Config) *SiliconFlowEmbedder {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("SILICONFLOW_BASE_URL")
		if baseURL == "" {
			baseURL = "https://api.siliconflow.cn"
		}
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("SILICONFLOW_API_KEY")
	}

	model := config.Model
	if model == "" {
		model = "BAAI/bge-large-en-v1.5"
	}

	dimension := config.Dimension
	if dimension <= 0 {
		dimension = 1024 // BAAI/bge-large-en-v1.5
	}

	return &SiliconFlowEmbedder{
		client:    &http.Client{Timeout: 30 * time.Second},
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		dimension: dimension,
	}
}

func (e *SiliconFlowEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, e.dimension), nil
	}

	resp, err := e.makeRequest(ctx, siliconFlowEmbeddingRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding data returned")
	}
	if len(resp.Data[0].Embedding) != e.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(resp.Data[0].Embedding), e.dimension)
	}
	return resp.Data[0].Embedding, nil
}

func (e *SiliconFlowEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		embedding, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text at index %d: %w", i, err)
		}
		result[i] = embedding
	}
	return result, nil
}

func (e *SiliconFlowEmbedder) makeRequest(ctx context.Context, req siliconFlowEmbeddingRequest) (*siliconFlowEmbeddingResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: API error %d: %s", ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	var embeddingResp siliconFlowEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &embeddingResp, nil
}

func (e *SiliconFlowEmbedder) Dimension() int {
	return e.dimension
}

func (e *SiliconFlowEmbedder) Provider() string {
	return "siliconflow"
}
