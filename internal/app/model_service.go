package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatrelay/internal/ai"
)

// ModelList is the answer to a model listing. Error is set when the backend
// could not be asked and Models holds the configured fallback.
type ModelList struct {
	Models []string `json:"models"`
	Error  string   `json:"error,omitempty"`
}

type ModelService struct {
	backend  ai.Backend
	fallback []string
	logger   *zap.Logger

	mu       sync.RWMutex
	models   []string
	cachedAt time.Time
	ttl      time.Duration
}

func NewModelService(backend ai.Backend, fallback []string, ttl time.Duration, logger *zap.Logger) *ModelService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelService{
		backend:  backend,
		fallback: append([]string(nil), fallback...),
		ttl:      ttl,
		logger:   logger,
	}
}

func (s *ModelService) List(ctx context.Context) ModelList {
	if cached := s.cached(); cached != nil {
		return ModelList{Models: cached}
	}

	models, err := s.backend.ListModels(ctx)
	if err != nil {
		s.logger.Warn("list backend models failed", zap.Error(err))
		return ModelList{Models: s.fallbackList(), Error: err.Error()}
	}
	if len(models) == 0 {
		return ModelList{Models: s.fallbackList()}
	}

	s.mu.Lock()
	s.models = models
	s.cachedAt = time.Now()
	s.mu.Unlock()
	return ModelList{Models: append([]string(nil), models...)}
}

func (s *ModelService) cached() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.models == nil || s.ttl <= 0 || time.Since(s.cachedAt) > s.ttl {
		return nil
	}
	return append([]string(nil), s.models...)
}

func (s *ModelService) fallbackList() []string {
	return append([]string{}, s.fallback...)
}
