package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type OpenAICompatibleClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	singleShot map[string]struct{}
}

func NewOpenAICompatibleClient(baseURL, apiKey string, httpClient *http.Client, singleShotModels []string) *OpenAICompatibleClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OpenAICompatibleClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		singleShot: singleShotSet(singleShotModels),
	}
}

func (c *OpenAICompatibleClient) Complete(ctx context.Context, model string, messages []ChatMessage) (Envelope, error) {
	resp, err := c.postCompletion(ctx, model, messages, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, readBackendError(resp)
	}

	var env map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("parse llm json failed: %w", err)
	}
	return env, nil
}

func (c *OpenAICompatibleClient) StreamComplete(ctx context.Context, model string, messages []ChatMessage) (Stream, error) {
	if _, ok := c.singleShot[model]; ok {
		return nil, ErrStreamUnsupported
	}

	resp, err := c.postCompletion(ctx, model, messages, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotImplemented {
		resp.Body.Close()
		return nil, ErrStreamUnsupported
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, readBackendError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	return &sseStream{body: resp.Body, scanner: scanner}, nil
}

func (c *OpenAICompatibleClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build llm models request failed: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm models request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, readBackendError(resp)
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse llm models failed: %w", err)
	}
	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	return models, nil
}

func (c *OpenAICompatibleClient) postCompletion(ctx context.Context, model string, messages []ChatMessage, stream bool) (*http.Response, error) {
	reqBody := map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   stream,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal llm request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build llm request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm request failed: %w", err)
	}
	return resp, nil
}

func (c *OpenAICompatibleClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// sseStream yields the JSON payload of each "data:" line until [DONE].
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *sseStream) Recv() (Envelope, error) {
	for !s.done && s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			s.done = true
			break
		}

		var env map[string]any
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			continue
		}
		if e, ok := env["error"]; ok && e != nil {
			s.done = true
			return nil, &BackendError{Message: fmt.Sprint(errorMessage(e))}
		}
		return env, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan llm stream failed: %w", err)
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

func errorMessage(e any) any {
	if m, ok := e.(map[string]any); ok {
		if msg, ok := m["message"]; ok {
			return msg
		}
	}
	return e
}
