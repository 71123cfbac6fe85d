package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

const doneSentinel = "[DONE]"

type chunkFrame struct {
	Chunk string `json:"chunk"`
}

type errorFrame struct {
	Error string `json:"error"`
}

// sseSink frames turn events as "data: <json>\n\n". Headers are sent with the
// first event so a turn rejected up front can still answer with a JSON error.
type sseSink struct {
	c       *gin.Context
	started bool
}

func (s *sseSink) Chunk(text string) error {
	return s.writeJSON(chunkFrame{Chunk: text})
}

func (s *sseSink) Fail(message string) error {
	return s.writeJSON(errorFrame{Error: message})
}

func (s *sseSink) Done() error {
	return s.write([]byte(doneSentinel))
}

func (s *sseSink) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.write(payload)
}

func (s *sseSink) write(payload []byte) error {
	if !s.started {
		s.c.Header("Content-Type", "text/event-stream")
		s.c.Header("Cache-Control", "no-cache")
		s.c.Header("Connection", "keep-alive")
		s.c.Header("X-Accel-Buffering", "no")
		s.c.Status(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.c.Writer, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return s.c.Request.Context().Err()
}

// wsSink sends the same event vocabulary as WebSocket text messages.
type wsSink struct {
	ctx  context.Context
	conn *websocket.Conn
}

func (s *wsSink) Chunk(text string) error {
	return s.writeJSON(chunkFrame{Chunk: text})
}

func (s *wsSink) Fail(message string) error {
	return s.writeJSON(errorFrame{Error: message})
}

func (s *wsSink) Done() error {
	return s.conn.Write(s.ctx, websocket.MessageText, []byte(doneSentinel))
}

func (s *wsSink) writeJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.conn.Write(s.ctx, websocket.MessageText, payload)
}
