package app

import (
	"context"

	"go.uber.org/zap"

	"chatrelay/internal/model"
	"chatrelay/internal/repository"
)

type HistoryService struct {
	messageRepo  *repository.MessageRepository
	historyCache HistoryCache
	logger       *zap.Logger
}

func NewHistoryService(messageRepo *repository.MessageRepository, historyCache HistoryCache, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{
		messageRepo:  messageRepo,
		historyCache: historyCache,
		logger:       logger,
	}
}

// Get returns the session's messages oldest first. A cached copy is served
// only while no write has marked the session dirty.
func (s *HistoryService) Get(ctx context.Context, sessionID string) ([]model.Message, error) {
	id, err := normalizeSessionID(sessionID)
	if err != nil {
		return nil, err
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, id)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, id); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, id); dirtyErr == nil && !dirty {
			if err := s.historyCache.SetHistory(ctx, id, messages); err != nil {
				s.logger.Debug("cache history failed", zap.String("session_id", id), zap.Error(err))
			}
		}
	}
	return messages, nil
}

// Clear deletes every message of the session. Clearing an empty session is
// not an error.
func (s *HistoryService) Clear(ctx context.Context, sessionID string) error {
	id, err := normalizeSessionID(sessionID)
	if err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, id)
	}
	removed, err := s.messageRepo.DeleteBySessionID(ctx, id)
	if err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(ctx, id)
	}
	s.logger.Info("history cleared", zap.String("session_id", id), zap.Int64("messages", removed))
	return nil
}
