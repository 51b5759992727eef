package providers

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

	"golang.org/x/time/rate"
)

const (
	defaultEmbedModel  = "text-embedding-3-small"
	defaultAnswerModel = "gpt-4o-mini"
)

const answerSystemPrompt = "You are a document assistant. Answer strictly from the provided context and name the documents you drew on. If the context does not cover the question, say so."

// OpenAIProvider talks to an OpenAI-compatible REST endpoint for embeddings
// and chat completions. Requests pass through a rate limiter so ingestion
// bursts do not trip the remote quota.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewOpenAIProvider(baseURL string, rps float64) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if rps <= 0 {
		rps = 5
	}
	return &OpenAIProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  os.Getenv("OPENAI_API_KEY"),
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Configured reports whether the remote provider has credentials at all.
// Without a key every call would fail with an auth error, so callers skip
// straight to the fallback.
func (o *OpenAIProvider) Configured() bool { return o.apiKey != "" }

func (o *OpenAIProvider) post(ctx context.Context, path string, payload any) ([]byte, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("openai: api key missing: unauthorized")
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, _ := json.Marshal(payload)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(body))
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai %s request failed: %w", path, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("openai %s error status %d: %s", path, resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	info := ProviderInfo{Name: "openai", Model: defaultEmbedModel}
	payload := map[string]any{"model": defaultEmbedModel, "input": req.Inputs}
	if req.Dimension > 0 {
		payload["dimensions"] = req.Dimension
	}
	body, err := o.post(ctx, "/embeddings", payload)
	if err != nil {
		return nil, info, err
	}
	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, info, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(req.Inputs) {
		return nil, info, fmt.Errorf("openai returned %d embeddings for %d inputs", len(parsed.Data), len(req.Inputs))
	}
	out := make([][]float32, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		out = append(out, d.Embedding)
	}
	return out, info, nil
}

func chatMessages(req GenerateRequest) []map[string]string {
	msgs := []map[string]string{{"role": "system", "content": answerSystemPrompt}}
	for _, m := range req.History {
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}
	var ctxText strings.Builder
	for _, c := range req.Context {
		fmt.Fprintf(&ctxText, "[%s]\n%s\n\n", c.DocumentName, c.Text)
	}
	user := req.Query
	if ctxText.Len() > 0 {
		user = "Context:\n" + ctxText.String() + "Question: " + req.Query
	}
	return append(msgs, map[string]string{"role": "user", "content": user})
}

func (o *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	info := ProviderInfo{Name: "openai", Model: defaultAnswerModel}
	body, err := o.post(ctx, "/chat/completions", map[string]any{
		"model":    defaultAnswerModel,
		"messages": chatMessages(req),
	})
	if err != nil {
		return GenerateResponse{}, info, err
	}
	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerateResponse{}, info, fmt.Errorf("decode generate response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return GenerateResponse{}, info, fmt.Errorf("openai returned empty choices")
	}
	return GenerateResponse{Text: parsed.Choices[0].Message.Content}, info, nil
}

// GenerateStream reads the server-sent event stream from the chat
// completions endpoint and forwards each content delta to emit.
func (o *OpenAIProvider) GenerateStream(ctx context.Context, req GenerateRequest, emit func(token string) error) (ProviderInfo, error) {
	info := ProviderInfo{Name: "openai", Model: defaultAnswerModel}
	if o.apiKey == "" {
		return info, fmt.Errorf("openai: api key missing: unauthorized")
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return info, err
	}
	payload, _ := json.Marshal(map[string]any{
		"model":    defaultAnswerModel,
		"messages": chatMessages(req),
		"stream":   true,
	})
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return info, fmt.Errorf("openai stream request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return info, fmt.Errorf("openai stream error status %d: %s", resp.StatusCode, string(body))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}
		var event struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		for _, c := range event.Choices {
			if c.Delta.Content == "" {
				continue
			}
			if err := emit(c.Delta.Content); err != nil {
				return info, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return info, fmt.Errorf("read openai stream: %w", err)
	}
	return info, nil
}
