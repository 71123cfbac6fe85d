package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/app"
	"chatrelay/internal/transport/http/response"
)

// writeServiceError maps service errors onto the error envelope. Anything
// unrecognized is reported as fallback so internals do not leak.
func writeServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput),
		errors.Is(err, app.ErrInvalidSessionID),
		errors.Is(err, app.ErrMessageEmpty):
		response.BadRequest(c, err.Error())
	case errors.Is(err, app.ErrFileTypeNotAllowed):
		response.Error(c, http.StatusBadRequest, response.CodeFileTypeNotAllowed, err.Error())
	case errors.Is(err, app.ErrFileTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, err.Error())
	case errors.Is(err, app.ErrFileNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
	case errors.Is(err, app.ErrBackend), errors.Is(err, app.ErrUnrecognizedReply):
		response.Error(c, http.StatusBadGateway, response.CodeBadGateway, err.Error())
	default:
		_ = c.Error(err)
		response.Internal(c, fallback)
	}
}
