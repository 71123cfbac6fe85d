package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatrelay/internal/app"
)

type ModelsHandler struct {
	modelService *app.ModelService
}

func NewModelsHandler(modelService *app.ModelService) *ModelsHandler {
	return &ModelsHandler{modelService: modelService}
}

// List never fails; an unreachable backend yields the fallback list.
func (h *ModelsHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.modelService.List(c.Request.Context()))
}
