package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/genai"
)

const (
	maxResponseBytes = 10 * 1024 * 1024
	anthropicVersion = "2023-06-01"
	systemPrompt     = "Return only JSON that matches the requested reply shape. Do not wrap JSON in markdown fences."
)

// execute sends one prompt to the configured provider and returns the reply text.
func execute(ctx context.Context, client *http.Client, cfg Config, promptText string) (string, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return executeOpenAICompatible(ctx, client, cfg, promptText)
	case ProviderAnthropic:
		return executeAnthropic(ctx, client, cfg, promptText)
	case ProviderGemini:
		return executeGemini(ctx, client, cfg, promptText)
	default:
		return "", fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}

type openAIChatCompletionsRequest struct {
	Model          string                `json:"model"`
	Messages       []chatMessage         `json:"messages"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
	Temperature    float64               `json:"temperature"`
	MaxTokens      int                   `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIChatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content any `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

func executeOpenAICompatible(ctx context.Context, client *http.Client, cfg Config, promptText string) (string, error) {
	reqBody := openAIChatCompletionsRequest{
		Model: cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: promptText},
		},
		ResponseFormat: &openAIResponseFormat{Type: "json_object"},
		Temperature:    cfg.Temperature,
		MaxTokens:      cfg.MaxTokens,
	}
	endpoint, err := joinURLPath(cfg.BaseURL, "/chat/completions")
	if err != nil {
		return "", err
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}
	respBody, err := postJSON(ctx, client, endpoint, reqBody, headers, cfg.Headers)
	if err != nil {
		return "", err
	}

	parsed := openAIChatCompletionsResponse{}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse ai response: %w", err)
	}
	if parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
		return "", fmt.Errorf("ai provider error: %s", strings.TrimSpace(parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("ai response has no choices")
	}
	content := extractMessageContent(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("ai response message content is empty")
	}
	return content, nil
}

type anthropicMessagesRequest struct {
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type anthropicMessagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func executeAnthropic(ctx context.Context, client *http.Client, cfg Config, promptText string) (string, error) {
	if cfg.APIKey == "" {
		return "", errors.New("anthropic api key is empty")
	}
	reqBody := anthropicMessagesRequest{
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		System:      systemPrompt,
		Messages:    []chatMessage{{Role: "user", Content: promptText}},
		Temperature: cfg.Temperature,
	}
	endpoint, err := joinURLPath(cfg.BaseURL, "/v1/messages")
	if err != nil {
		return "", err
	}
	headers := map[string]string{
		"x-api-key":         cfg.APIKey,
		"anthropic-version": anthropicVersion,
	}
	respBody, err := postJSON(ctx, client, endpoint, reqBody, headers, cfg.Headers)
	if err != nil {
		return "", err
	}

	parsed := anthropicMessagesResponse{}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse ai response: %w", err)
	}
	if parsed.Error != nil && strings.TrimSpace(parsed.Error.Message) != "" {
		return "", fmt.Errorf("ai provider error: %s", strings.TrimSpace(parsed.Error.Message))
	}
	var b strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "" || block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(b.String())
	if content == "" {
		return "", errors.New("ai response message content is empty")
	}
	return content, nil
}

func executeGemini(ctx context.Context, client *http.Client, cfg Config, promptText string) (string, error) {
	if cfg.APIKey == "" {
		return "", errors.New("gemini api key is empty")
	}
	httpClient := client
	if cfg.BaseURL != "" {
		httpClient = &http.Client{
			Transport: &baseURLTransport{BaseURL: cfg.BaseURL, RealTransport: client.Transport},
			Timeout:   client.Timeout,
		}
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return "", fmt.Errorf("create gemini client: %w", err)
	}

	temperature := float32(cfg.Temperature)
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
		Temperature:     &temperature,
		MaxOutputTokens: int32(cfg.MaxTokens),
	}
	result, err := gc.Models.GenerateContent(ctx, cfg.Model, genai.Text(promptText), config)
	if err != nil {
		return "", fmt.Errorf("execute gemini request: %w", err)
	}
	content := strings.TrimSpace(result.Text())
	if content == "" {
		return "", errors.New("ai response message content is empty")
	}
	return content, nil
}

// baseURLTransport points the Gemini SDK at a different host, e.g. a proxy or test server.
type baseURLTransport struct {
	BaseURL       string
	RealTransport http.RoundTripper
}

func (t *baseURLTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := url.Parse(t.BaseURL)
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = target.Scheme
	req.URL.Host = target.Host
	rt := t.RealTransport
	if rt == nil {
		rt = http.DefaultTransport
	}
	return rt.RoundTrip(req)
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, body any, headers, extra map[string]string) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal ai request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build ai request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range extra {
		httpReq.Header.Set(k, v)
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute ai request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read ai response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := strings.TrimSpace(string(respBody))
		if reason == "" {
			reason = "empty response body"
		}
		if len(reason) > 1000 {
			reason = reason[:1000] + "..."
		}
		return nil, fmt.Errorf("ai provider returned HTTP %d: %s", resp.StatusCode, reason)
	}
	return respBody, nil
}

func extractMessageContent(raw any) string {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		var b strings.Builder
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if txt, ok := obj["text"].(string); ok {
				b.WriteString(txt)
				continue
			}
			if txt, ok := obj["content"].(string); ok {
				b.WriteString(txt)
			}
		}
		return strings.TrimSpace(b.String())
	default:
		return ""
	}
}

// extractJSONObject strips markdown fences and returns the outermost {...} span.
func extractJSONObject(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty content")
	}

	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
			raw = strings.TrimSpace(raw[idx+1:])
		}
		raw = strings.TrimSuffix(raw, "```")
		raw = strings.TrimSpace(raw)
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < 0 || end < start {
		return "", errors.New("content does not contain a json object")
	}
	return raw[start : end+1], nil
}

func joinURLPath(base string, suffix string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", fmt.Errorf("ai base URL cannot be empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse ai base URL %q: %w", base, err)
	}
	suffix = "/" + strings.TrimLeft(strings.TrimSpace(suffix), "/")
	u.Path = strings.TrimRight(u.Path, "/") + suffix
	return u.String(), nil
}
