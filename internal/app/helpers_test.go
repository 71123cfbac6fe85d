package app

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatrelay/internal/ai"
	"chatrelay/internal/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.Message{}, &model.FileRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// fakeBackend replays scripted envelopes.
type fakeBackend struct {
	fragments   []ai.Envelope
	streamErr   error
	midErr      error
	completeEnv ai.Envelope
	completeErr error
	models      []string
	modelsErr   error

	onStream func()

	mu         sync.Mutex
	lastModel  string
	received   int
	closed     bool
	listCalls  int
	lastPrompt []ai.ChatMessage
}

func (b *fakeBackend) Complete(_ context.Context, modelID string, msgs []ai.ChatMessage) (ai.Envelope, error) {
	b.mu.Lock()
	b.lastModel = modelID
	b.lastPrompt = msgs
	b.mu.Unlock()
	if b.completeErr != nil {
		return nil, b.completeErr
	}
	return b.completeEnv, nil
}

func (b *fakeBackend) StreamComplete(_ context.Context, modelID string, msgs []ai.ChatMessage) (ai.Stream, error) {
	b.mu.Lock()
	b.lastModel = modelID
	b.lastPrompt = msgs
	b.mu.Unlock()
	if b.onStream != nil {
		b.onStream()
	}
	if b.streamErr != nil {
		return nil, b.streamErr
	}
	return &fakeStream{backend: b}, nil
}

func (b *fakeBackend) ListModels(context.Context) ([]string, error) {
	b.mu.Lock()
	b.listCalls++
	b.mu.Unlock()
	return b.models, b.modelsErr
}

type fakeStream struct {
	backend *fakeBackend
	next    int
}

func (s *fakeStream) Recv() (ai.Envelope, error) {
	b := s.backend
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.next >= len(b.fragments) {
		if b.midErr != nil {
			return nil, b.midErr
		}
		return nil, io.EOF
	}
	env := b.fragments[s.next]
	s.next++
	b.received++
	return env, nil
}

func (s *fakeStream) Close() error {
	s.backend.mu.Lock()
	s.backend.closed = true
	s.backend.mu.Unlock()
	return nil
}

var errSinkClosed = errors.New("sink closed")

// recordingSink captures events. onChunk runs after each chunk is recorded.
type recordingSink struct {
	chunks  []string
	fails   []string
	done    int
	closed  bool
	onChunk func(text string)
}

func (s *recordingSink) Chunk(text string) error {
	if s.closed {
		return errSinkClosed
	}
	s.chunks = append(s.chunks, text)
	if s.onChunk != nil {
		s.onChunk(text)
	}
	return nil
}

func (s *recordingSink) Fail(message string) error {
	if s.closed {
		return errSinkClosed
	}
	s.fails = append(s.fails, message)
	return nil
}

func (s *recordingSink) Done() error {
	if s.closed {
		return errSinkClosed
	}
	s.done++
	return nil
}

type recordingPublisher struct {
	events    []model.TurnEvent
	err       error
	onPublish func()
}

func (p *recordingPublisher) Publish(_ context.Context, event model.TurnEvent) error {
	if p.onPublish != nil {
		p.onPublish()
	}
	p.events = append(p.events, event)
	return p.err
}

// memoryHistoryCache follows the dirty-marker protocol without expiry.
type memoryHistoryCache struct {
	mu      sync.Mutex
	history map[string][]model.Message
	dirty   map[string]bool
	sets    int
}

func newMemoryHistoryCache() *memoryHistoryCache {
	return &memoryHistoryCache{history: map[string][]model.Message{}, dirty: map[string]bool{}}
}

func (c *memoryHistoryCache) GetHistory(_ context.Context, id string) ([]model.Message, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, ok := c.history[id]
	return msgs, ok, nil
}

func (c *memoryHistoryCache) SetHistory(_ context.Context, id string, msgs []model.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[id] = msgs
	c.sets++
	return nil
}

func (c *memoryHistoryCache) DeleteHistory(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.history, id)
	return nil
}

func (c *memoryHistoryCache) MarkDirty(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[id] = true
	return nil
}

func (c *memoryHistoryCache) IsDirty(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty[id], nil
}

func (c *memoryHistoryCache) expireDirty(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.dirty, id)
}
