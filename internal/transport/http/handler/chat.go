package handler

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatrelay/internal/app"
	"chatrelay/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
	logger      *zap.Logger
}

type ChatRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Message   string `json:"message" binding:"required"`
	ModelID   string `json:"modelId"`
}

func (r ChatRequest) input() app.TurnInput {
	return app.TurnInput{SessionID: r.SessionID, Message: r.Message, ModelID: r.ModelID}
}

func NewChatHandler(chatService *app.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, logger: logger}
}

// Chat answers with an event stream when the caller accepts
// text/event-stream and with a single {reply} object otherwise.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request payload")
		return
	}

	if !wantsEventStream(c) {
		result, err := h.chatService.SendTurn(c.Request.Context(), req.input())
		if err != nil {
			writeServiceError(c, err, "chat failed")
			return
		}
		c.JSON(200, result)
		return
	}

	sink := &sseSink{c: c}
	if err := h.chatService.StreamTurn(c.Request.Context(), req.input(), sink); err != nil {
		if sink.started {
			return
		}
		writeServiceError(c, err, "chat failed")
	}
}

// ChatSocket runs one turn per connection. The first text message carries the
// chat request; events follow as text messages ending with [DONE].
func (h *ChatHandler) ChatSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx := c.Request.Context()
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	if typ != websocket.MessageText {
		conn.Close(websocket.StatusUnsupportedData, "unsupported data")
		return
	}

	var req ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"error":"invalid json"}`))
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid json")
		return
	}

	// CloseRead cancels ctx once the peer goes away.
	ctx = conn.CloseRead(ctx)
	sink := &wsSink{ctx: ctx, conn: conn}
	if err := h.chatService.StreamTurn(ctx, req.input(), sink); err != nil {
		_ = sink.Fail(err.Error())
		if errors.Is(err, app.ErrInvalidSessionID) || errors.Is(err, app.ErrMessageEmpty) {
			conn.Close(websocket.StatusPolicyViolation, "invalid request")
			return
		}
		conn.Close(websocket.StatusInternalError, "chat failed")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func wantsEventStream(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}
