package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	singleShot map[string]struct{}
}

type ollamaChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

func NewOllamaClient(baseURL string, httpClient *http.Client, singleShotModels []string) *OllamaClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		singleShot: singleShotSet(singleShotModels),
	}
}

func (c *OllamaClient) Complete(ctx context.Context, model string, messages []ChatMessage) (Envelope, error) {
	resp, err := c.postChat(ctx, model, messages, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, readBackendError(resp)
	}

	var env map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("parse ollama response failed: %w", err)
	}
	if msg, ok := env["error"].(string); ok && msg != "" {
		return nil, &BackendError{Message: msg}
	}
	return env, nil
}

func (c *OllamaClient) StreamComplete(ctx context.Context, model string, messages []ChatMessage) (Stream, error) {
	if _, ok := c.singleShot[model]; ok {
		return nil, ErrStreamUnsupported
	}

	resp, err := c.postChat(ctx, model, messages, true)
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

	return &ndjsonStream{body: resp.Body, decoder: json.NewDecoder(resp.Body)}, nil
}

func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build ollama tags request failed: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, readBackendError(resp)
	}

	var parsed struct {
		Models []struct {
			Name  string `json:"name"`
			Model string `json:"model"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse ollama tags failed: %w", err)
	}

	models := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		id := m.Model
		if id == "" {
			id = m.Name
		}
		if id != "" {
			models = append(models, id)
		}
	}
	return models, nil
}

func (c *OllamaClient) postChat(ctx context.Context, model string, messages []ChatMessage, stream bool) (*http.Response, error) {
	bodyBytes, err := json.Marshal(ollamaChatRequest{Model: model, Messages: messages, Stream: stream})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build ollama request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	return resp, nil
}

// ndjsonStream decodes one JSON object per line. Ollama marks the last
// object with "done": true.
type ndjsonStream struct {
	body    io.ReadCloser
	decoder *json.Decoder
	done    bool
}

func (s *ndjsonStream) Recv() (Envelope, error) {
	if s.done {
		return nil, io.EOF
	}
	var env map[string]any
	if err := s.decoder.Decode(&env); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decode ollama stream failed: %w", err)
	}
	if msg, ok := env["error"].(string); ok && msg != "" {
		s.done = true
		return nil, &BackendError{Message: msg}
	}
	if done, _ := env["done"].(bool); done {
		s.done = true
	}
	return env, nil
}

func (s *ndjsonStream) Close() error {
	return s.body.Close()
}

func readBackendError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	var parsed struct {
		Error any `json:"error"`
	}
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
		switch e := parsed.Error.(type) {
		case string:
			msg = e
		case map[string]any:
			if m, ok := e["message"].(string); ok {
				msg = m
			}
		}
	}
	return &BackendError{StatusCode: resp.StatusCode, Message: msg}
}
