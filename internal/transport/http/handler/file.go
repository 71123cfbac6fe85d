package handler

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatrelay/internal/app"
	"chatrelay/internal/model"
	"chatrelay/internal/transport/http/response"
)

type FileHandler struct {
	fileService     *app.FileService
	maxRequestBytes int64
	logger          *zap.Logger
}

type fileView struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type DeleteFilesRequest struct {
	SessionID string   `json:"sessionId" binding:"required"`
	Filenames []string `json:"filenames"`
	DeleteAll bool     `json:"deleteAll"`
}

func NewFileHandler(fileService *app.FileService, maxRequestBytes int64, logger *zap.Logger) *FileHandler {
	return &FileHandler{fileService: fileService, maxRequestBytes: maxRequestBytes, logger: logger}
}

func (h *FileHandler) Upload(c *gin.Context) {
	if h.maxRequestBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxRequestBytes)
	}
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, "request body too large")
			return
		}
		response.BadRequest(c, "invalid multipart form")
		return
	}
	defer func() { _ = form.RemoveAll() }()

	sessionID := firstValue(form.Value["sessionId"])
	headers := form.File["files"]
	if sessionID == "" || len(headers) == 0 {
		response.BadRequest(c, "sessionId and files are required")
		return
	}

	inputs := make([]app.UploadInput, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			response.BadRequest(c, "unreadable file part")
			closeAll(inputs)
			return
		}
		inputs = append(inputs, app.UploadInput{Filename: header.Filename, Content: f})
	}
	defer closeAll(inputs)

	saved, err := h.fileService.Upload(c.Request.Context(), sessionID, inputs)
	if err != nil {
		if len(saved) > 0 {
			h.logger.Info("upload stopped after partial success",
				zap.String("session_id", sessionID),
				zap.Int("saved", len(saved)),
				zap.Error(err),
			)
		}
		writeServiceError(c, err, "upload failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "files": saved})
}

func (h *FileHandler) List(c *gin.Context) {
	records, err := h.fileService.List(c.Request.Context(), c.Query("sessionId"))
	if err != nil {
		writeServiceError(c, err, "list files failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": toFileViews(records)})
}

func (h *FileHandler) Download(c *gin.Context) {
	rc, record, err := h.fileService.Open(c.Request.Context(), c.Query("sessionId"), c.Query("filename"))
	if err != nil {
		writeServiceError(c, err, "download failed")
		return
	}
	defer rc.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": record.Filename})
	c.DataFromReader(http.StatusOK, record.Size, "application/octet-stream", rc, map[string]string{
		"Content-Disposition": disposition,
	})
}

func (h *FileHandler) Delete(c *gin.Context) {
	var req DeleteFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request payload")
		return
	}

	outcome, err := h.fileService.Delete(c.Request.Context(), req.SessionID, req.Filenames, req.DeleteAll)
	if err != nil {
		writeServiceError(c, err, "delete files failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":                true,
		"deleted":                outcome.Deleted,
		"physicalDeleteFailures": outcome.PhysicalDeleteFailures,
	})
}

func toFileViews(records []model.FileRecord) []fileView {
	views := make([]fileView, 0, len(records))
	for _, r := range records {
		views = append(views, fileView{Name: r.Filename, Path: r.Filepath, Size: r.Size, UploadedAt: r.UploadedAt})
	}
	return views
}

func firstValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func closeAll(inputs []app.UploadInput) {
	for _, in := range inputs {
		if f, ok := in.Content.(multipart.File); ok {
			_ = f.Close()
		}
	}
}
