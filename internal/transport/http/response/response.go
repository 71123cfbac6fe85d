package response

import "github.com/gin-gonic/gin"

const (
	CodeBadRequest         = 40000
	CodeFileTypeNotAllowed = 40001
	CodeNotFound           = 40400
	CodePayloadTooLarge    = 41300
	CodeInternalServer     = 50000
	CodeBadGateway         = 50200
)

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.AbortWithStatusJSON(httpStatus, APIError{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 400, CodeBadRequest, message)
}

func Internal(c *gin.Context, message string) {
	Error(c, 500, CodeInternalServer, message)
}
