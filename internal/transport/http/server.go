package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "chatrelay/internal/app"
	"chatrelay/internal/bootstrap"
	"chatrelay/internal/cache"
	"chatrelay/internal/repository"
	"chatrelay/internal/transport/http/handler"
	"chatrelay/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	cfg := app.Config
	if cfg.App.GinMode != "" {
		gin.SetMode(cfg.App.GinMode)
	}
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Logger), middleware.Recovery(app.Logger), middleware.CORS())

	messageRepo := repository.NewMessageRepository(app.DB)
	fileRepo := repository.NewFileRepository(app.DB)

	var historyCache appsvc.HistoryCache
	if app.Redis != nil {
		historyCache = cache.NewHistoryCache(
			app.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
	}
	var publisher appsvc.TurnPublisher
	if app.TurnPublisher != nil {
		publisher = app.TurnPublisher
	}

	chatService := appsvc.NewChatService(
		messageRepo,
		app.Backend,
		historyCache,
		publisher,
		app.Logger.Named("chat"),
		cfg.LLM.DefaultModel,
		cfg.ChunkDelay(),
	)
	historyService := appsvc.NewHistoryService(messageRepo, historyCache, app.Logger.Named("history"))
	fileService := appsvc.NewFileService(
		fileRepo,
		app.Storage,
		app.Logger.Named("files"),
		cfg.Storage.MaxFileBytes,
		cfg.Storage.AllowedExtensions,
	)
	modelService := appsvc.NewModelService(
		app.Backend,
		cfg.LLM.FallbackModels,
		time.Duration(cfg.LLM.ModelsCacheTTLSeconds)*time.Second,
		app.Logger.Named("models"),
	)

	healthHandler := handler.NewHealthHandler(app)
	chatHandler := handler.NewChatHandler(chatService, app.Logger.Named("chat"))
	fileHandler := handler.NewFileHandler(fileService, cfg.Storage.MaxRequestBytes, app.Logger.Named("files"))
	historyHandler := handler.NewHistoryHandler(historyService)
	modelsHandler := handler.NewModelsHandler(modelService)

	router.GET("/", healthHandler.Root)
	router.GET("/healthz", healthHandler.Check)

	router.POST("/chat", chatHandler.Chat)
	router.GET("/chat/ws", chatHandler.ChatSocket)

	router.POST("/upload", fileHandler.Upload)
	router.GET("/files", fileHandler.List)
	router.GET("/files/download", fileHandler.Download)
	router.DELETE("/delete-file", fileHandler.Delete)

	router.GET("/history", historyHandler.Get)
	router.DELETE("/history", historyHandler.Clear)

	router.GET("/models", modelsHandler.List)

	return router
}
