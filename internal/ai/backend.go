package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"chatrelay/internal/config"
)

// ErrStreamUnsupported means the backend cannot stream for the requested
// model. It is not a runtime failure; callers fall back to Complete.
var ErrStreamUnsupported = errors.New("incremental generation not supported")

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Envelope is one backend payload as decoded from the wire: usually a
// map[string]any, sometimes a bare string. See ExtractText.
type Envelope = any

// Stream is a lazily pulled fragment sequence. Recv returns io.EOF once the
// backend is done. Close abandons the sequence.
type Stream interface {
	Recv() (Envelope, error)
	Close() error
}

type Backend interface {
	Complete(ctx context.Context, model string, messages []ChatMessage) (Envelope, error)
	StreamComplete(ctx context.Context, model string, messages []ChatMessage) (Stream, error)
	ListModels(ctx context.Context) ([]string, error)
}

// BackendError carries a failure reported by the backend itself.
type BackendError struct {
	StatusCode int
	Message    string
}

func (e *BackendError) Error() string {
	if e.StatusCode == 0 {
		return "backend error: " + e.Message
	}
	return fmt.Sprintf("backend status %d: %s", e.StatusCode, e.Message)
}

func NewBackend(cfg config.LLMConfig) (Backend, error) {
	httpClient := &http.Client{}
	if cfg.TimeoutSeconds > 0 {
		httpClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	switch cfg.Provider {
	case "ollama":
		return NewOllamaClient(cfg.BaseURL, httpClient, cfg.SingleShotModels), nil
	case "openai":
		return NewOpenAICompatibleClient(cfg.BaseURL, cfg.APIKey, httpClient, cfg.SingleShotModels), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func singleShotSet(models []string) map[string]struct{} {
	set := make(map[string]struct{}, len(models))
	for _, m := range models {
		set[m] = struct{}{}
	}
	return set
}
