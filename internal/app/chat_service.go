package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatrelay/internal/ai"
	"chatrelay/internal/model"
	"chatrelay/internal/repository"
)

// Sink receives the events of one streamed turn. Implementations frame them
// for a particular transport. An error from Chunk means the caller is gone.
type Sink interface {
	Chunk(text string) error
	Fail(message string) error
	Done() error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []model.Message) error
	DeleteHistory(ctx context.Context, sessionID string) error
	MarkDirty(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

type TurnPublisher interface {
	Publish(ctx context.Context, event model.TurnEvent) error
}

type ChatService struct {
	messageRepo  *repository.MessageRepository
	backend      ai.Backend
	historyCache HistoryCache
	publisher    TurnPublisher
	logger       *zap.Logger
	defaultModel string
	chunkDelay   time.Duration
}

type TurnInput struct {
	SessionID string
	Message   string
	ModelID   string
}

type TurnResult struct {
	Reply string `json:"reply"`
}

// turnOutcome records how a streamed turn ended.
type turnOutcome struct {
	reply        strings.Builder
	disconnected bool
	backendErr   error
}

func NewChatService(
	messageRepo *repository.MessageRepository,
	backend ai.Backend,
	historyCache HistoryCache,
	publisher TurnPublisher,
	logger *zap.Logger,
	defaultModel string,
	chunkDelay time.Duration,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		messageRepo:  messageRepo,
		backend:      backend,
		historyCache: historyCache,
		publisher:    publisher,
		logger:       logger,
		defaultModel: defaultModel,
		chunkDelay:   chunkDelay,
	}
}

// StreamTurn relays one chat turn to sink. The returned error is non-nil only
// when the turn was rejected before anything was streamed; backend failures
// are reported through sink.Fail.
func (s *ChatService) StreamTurn(ctx context.Context, input TurnInput, sink Sink) error {
	turn, err := s.begin(ctx, input)
	if err != nil {
		return err
	}

	out := &turnOutcome{}
	stream, err := s.backend.StreamComplete(ctx, turn.ModelID, promptFor(turn))
	switch {
	case errors.Is(err, ai.ErrStreamUnsupported):
		s.relaySingleShot(ctx, turn, sink, out)
	case err != nil && ctx.Err() != nil:
		out.disconnected = true
	case err != nil:
		out.backendErr = err
	default:
		s.relayStream(ctx, stream, sink, out)
		_ = stream.Close()
	}

	reply := out.reply.String()
	storeCtx := context.WithoutCancel(ctx)
	stored := s.finish(storeCtx, turn, reply)
	defer func() {
		if stored {
			s.afterTurn(storeCtx, turn, reply, out.disconnected || out.backendErr != nil, out.backendErr)
		}
	}()

	if out.disconnected {
		s.logger.Info("caller disconnected mid-turn",
			zap.String("session_id", turn.SessionID),
			zap.Int("partial_bytes", len(reply)),
		)
		return nil
	}
	if out.backendErr != nil {
		s.logger.Warn("backend failed during turn",
			zap.String("session_id", turn.SessionID),
			zap.String("model", turn.ModelID),
			zap.Error(out.backendErr),
		)
		if err := sink.Fail(out.backendErr.Error()); err != nil {
			return nil
		}
	}
	_ = sink.Done()
	return nil
}

// SendTurn runs a turn without incremental delivery.
func (s *ChatService) SendTurn(ctx context.Context, input TurnInput) (*TurnResult, error) {
	turn, err := s.begin(ctx, input)
	if err != nil {
		return nil, err
	}

	env, err := s.backend.Complete(ctx, turn.ModelID, promptFor(turn))
	if err != nil {
		s.logger.Warn("backend completion failed",
			zap.String("session_id", turn.SessionID),
			zap.String("model", turn.ModelID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrBackend, err)
	}
	reply, ok := ai.ExtractText(env)
	if !ok {
		s.logger.Warn("backend reply not recognized",
			zap.String("session_id", turn.SessionID),
			zap.String("model", turn.ModelID),
		)
		return nil, ErrUnrecognizedReply
	}

	if err := s.persistAssistant(ctx, turn.SessionID, reply); err != nil {
		return nil, err
	}
	s.afterTurn(ctx, turn, reply, false, nil)
	return &TurnResult{Reply: reply}, nil
}

// begin validates the request and stores the user message. Nothing is
// persisted when validation fails.
func (s *ChatService) begin(ctx context.Context, input TurnInput) (TurnInput, error) {
	sessionID, err := normalizeSessionID(input.SessionID)
	if err != nil {
		return TurnInput{}, err
	}
	if strings.TrimSpace(input.Message) == "" {
		return TurnInput{}, ErrMessageEmpty
	}
	content := input.Message
	modelID := strings.TrimSpace(input.ModelID)
	if modelID == "" {
		modelID = s.defaultModel
	}
	turn := TurnInput{SessionID: sessionID, Message: content, ModelID: modelID}

	if err := s.messageRepo.Create(ctx, &model.Message{
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   content,
	}); err != nil {
		return TurnInput{}, err
	}
	s.invalidateHistory(ctx, sessionID)
	return turn, nil
}

func (s *ChatService) relayStream(ctx context.Context, stream ai.Stream, sink Sink, out *turnOutcome) {
	for {
		if ctx.Err() != nil {
			out.disconnected = true
			return
		}
		env, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				out.disconnected = true
				return
			}
			out.backendErr = err
			return
		}

		text, ok := ai.ExtractText(env)
		if !ok || text == "" {
			continue
		}
		out.reply.WriteString(text)
		if err := sink.Chunk(text); err != nil {
			out.disconnected = true
			return
		}
		if !s.pace(ctx) {
			out.disconnected = true
			return
		}
	}
}

func (s *ChatService) relaySingleShot(ctx context.Context, turn TurnInput, sink Sink, out *turnOutcome) {
	env, err := s.backend.Complete(ctx, turn.ModelID, promptFor(turn))
	if err != nil {
		if ctx.Err() != nil {
			out.disconnected = true
			return
		}
		out.backendErr = err
		return
	}
	text, ok := ai.ExtractText(env)
	if !ok {
		out.backendErr = ErrUnrecognizedReply
		return
	}
	if text == "" {
		return
	}
	out.reply.WriteString(text)
	if err := sink.Chunk(text); err != nil {
		out.disconnected = true
	}
}

// pace waits chunkDelay between events. It reports false if ctx ended first.
func (s *ChatService) pace(ctx context.Context) bool {
	if s.chunkDelay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(s.chunkDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// finish stores whatever was accumulated and reports whether a reply was
// written. ctx must already be detached from the caller so a disconnect does
// not drop the partial reply.
func (s *ChatService) finish(ctx context.Context, turn TurnInput, reply string) bool {
	if reply == "" {
		return false
	}
	if err := s.persistAssistant(ctx, turn.SessionID, reply); err != nil {
		s.logger.Error("store assistant reply failed",
			zap.String("session_id", turn.SessionID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *ChatService) persistAssistant(ctx context.Context, sessionID, reply string) error {
	if err := s.messageRepo.Create(ctx, &model.Message{
		SessionID: sessionID,
		Role:      model.RoleAssistant,
		Content:   reply,
	}); err != nil {
		return err
	}
	s.invalidateHistory(ctx, sessionID)
	return nil
}

func (s *ChatService) afterTurn(ctx context.Context, turn TurnInput, reply string, partial bool, backendErr error) {
	if s.publisher == nil {
		return
	}
	event := model.TurnEvent{
		SessionID:   turn.SessionID,
		ModelID:     turn.ModelID,
		UserText:    turn.Message,
		Reply:       reply,
		Partial:     partial,
		CompletedAt: time.Now(),
	}
	if backendErr != nil {
		event.BackendErr = backendErr.Error()
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish turn event failed",
			zap.String("session_id", turn.SessionID),
			zap.Error(err),
		)
	}
}

func (s *ChatService) invalidateHistory(ctx context.Context, sessionID string) {
	if s.historyCache == nil {
		return
	}
	if err := s.historyCache.MarkDirty(ctx, sessionID); err != nil {
		s.logger.Debug("mark history dirty failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.historyCache.DeleteHistory(ctx, sessionID); err != nil {
		s.logger.Debug("drop cached history failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// promptFor builds the backend request. Only the current utterance is sent;
// prior turns are not replayed.
func promptFor(turn TurnInput) []ai.ChatMessage {
	return []ai.ChatMessage{{Role: string(model.RoleUser), Content: turn.Message}}
}
