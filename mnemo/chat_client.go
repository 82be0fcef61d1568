package mnemo

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ChatClient is the text-generation collaborator boundary. The engine
// uses it only to distill facts and compress context, never to hold
// conversation state. Any error reads as "no output".
type ChatClient interface {
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAICompatOptions struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// OpenAICompatClient talks to any OpenAI-compatible chat completion
// endpoint.
type OpenAICompatClient struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

func NewOpenAICompatClient(opts OpenAICompatOptions) *OpenAICompatClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com"
	}
	model := opts.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	c := opts.HTTPClient
	if c == nil {
		c = &http.Client{Timeout: 60 * time.Second}
	}
	return &OpenAICompatClient{
		BaseURL:    base,
		APIKey:     opts.APIKey,
		Model:      model,
		HTTPClient: c,
	}
}

// NewOpenAIClient builds a client from OPENAI_API_KEY.
func NewOpenAIClient() *OpenAICompatClient {
	return NewOpenAICompatClient(OpenAICompatOptions{
		BaseURL: "https://api.openai.com",
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   os.Getenv("MNEMO_CHAT_MODEL"),
	})
}

type ChatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

// OpenAI-compatible (subset) response
type ChatCompletionsResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete satisfies ChatClient with a non-streaming call.
func (c *OpenAICompatClient) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	resp, err := c.ChatCompletionsCreate(ctx, ChatCompletionsRequest{
		Model:    c.Model,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAICompatClient) ChatCompletionsCreate(ctx context.Context, req ChatCompletionsRequest) (ChatCompletionsResponse, error) {
	var out ChatCompletionsResponse
	req.Stream = false
	if req.Model == "" {
		req.Model = c.Model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return out, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return out, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return out, fmt.Errorf("openai_compat http %d: %s", resp.StatusCode, string(b))
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

type StreamEvent struct {
	RawLine string
	Chunk   *ChatCompletionsResponse
	Done    bool
}

// ChatCompletionsStream implements SSE "data: {json}" streaming used by
// OpenAI-compatible providers. It returns a channel that yields chunks
// until [DONE] or context cancellation.
func (c *OpenAICompatClient) ChatCompletionsStream(ctx context.Context, req ChatCompletionsRequest) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent, 128)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		req.Stream = true
		if req.Model == "" {
			req.Model = c.Model
		}
		body, err := json.Marshal(req)
		if err != nil {
			errs <- err
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			errs <- err
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		if c.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
		}

		resp, err := c.HTTPClient.Do(httpReq)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			b, _ := io.ReadAll(resp.Body)
			errs <- fmt.Errorf("openai_compat http %d: %s", resp.StatusCode, string(b))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			// SSE can include empty lines / comments
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			raw := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if raw == "" {
				continue
			}
			if raw == "[DONE]" {
				events <- StreamEvent{RawLine: raw, Done: true}
				return
			}
			var chunk ChatCompletionsResponse
			if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
				events <- StreamEvent{RawLine: raw, Chunk: nil}
				continue
			}
			events <- StreamEvent{RawLine: raw, Chunk: &chunk}
		}
		if err := scanner.Err(); err != nil {
			errs <- err
			return
		}
	}()

	return events, errs
}
