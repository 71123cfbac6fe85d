package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"chatrelay/internal/ai"
	"chatrelay/internal/config"
	"chatrelay/internal/logging"
	"chatrelay/internal/platform/database"
	rabbitmqClient "chatrelay/internal/platform/rabbitmq"
	redisClient "chatrelay/internal/platform/redis"
	"chatrelay/internal/storage"
)

type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	DB            *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	TurnPublisher *rabbitmqClient.TurnPublisher
	Storage       storage.Store
	Backend       ai.Backend

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}

	app := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := app.connect(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		return err
	}
	a.DB = db
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.Redis = client
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = conn
		a.TurnPublisher = rabbitmqClient.NewTurnPublisher(conn, cfg.RabbitMQ.TurnEventQueue)
	}

	switch cfg.Storage.Driver {
	case "minio":
		store, err := storage.NewMinioStore(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		a.Storage = store
	default:
		store, err := storage.NewLocalStore(cfg.Storage.UploadDir)
		if err != nil {
			return err
		}
		a.Storage = store
	}

	backend, err := ai.NewBackend(cfg.LLM)
	if err != nil {
		return err
	}
	a.Backend = backend

	a.Logger.Info("dependencies ready",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("redis", a.Redis != nil),
		zap.Bool("rabbitmq", a.MQConn != nil),
	)
	return nil
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.TurnPublisher != nil {
		errs = append(errs, a.TurnPublisher.Close())
	}
	if a.MQConn != nil {
		errs = append(errs, a.MQConn.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
