package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"wisefido-oximetry/internal/config"
	"wisefido-oximetry/internal/consumer"
	"wisefido-oximetry/internal/database"
	"wisefido-oximetry/internal/mqtt"
	"wisefido-oximetry/internal/notifier"
	rediscommon "wisefido-oximetry/internal/redis"
	"wisefido-oximetry/internal/repository"
)

// OximetryService 血氧趋势服务（整合各层）
type OximetryService struct {
	config      *config.Config
	logger      *zap.Logger
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	tenantID    string

	// 各层组件
	seriesBuffer  *consumer.SeriesBuffer
	cacheManager  *consumer.CacheManager
	mqttConsumer  *consumer.MQTTConsumer
	trendConsumer *consumer.TrendConsumer
	trendService  *TrendService
}

// NewOximetryService 创建血氧趋势服务
func NewOximetryService(cfg *config.Config, logger *zap.Logger, tenantID string) (*OximetryService, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 3. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	// 4. 创建 Repository 层
	deviceRepo := repository.NewDeviceRepository(db, logger)
	trendRowsRepo := repository.NewTrendRowsRepository(db, logger)
	alarmEventsRepo := repository.NewAlarmEventsRepository(db, logger)
	alarmCloudRepo := repository.NewAlarmCloudRepository(db, logger)

	// 5. 创建 Consumer 层
	seriesBuffer := consumer.NewSeriesBuffer(cfg, redisClient, logger)
	cacheManager := consumer.NewCacheManager(cfg, redisClient, logger)
	mqttConsumer := consumer.NewMQTTConsumer(cfg, mqttClient, seriesBuffer, deviceRepo, logger)
	trendConsumer := consumer.NewTrendConsumer(cfg, seriesBuffer, logger, tenantID)

	// 6. 创建通知器与趋势评估服务
	webhookNotifier := notifier.NewWebhookNotifier(cfg.Oximetry.Webhook.URL, logger)
	trendService, err := NewTrendService(
		cfg,
		trendRowsRepo,
		alarmEventsRepo,
		alarmCloudRepo,
		deviceRepo,
		cacheManager,
		webhookNotifier,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create trend service: %w", err)
	}

	return &OximetryService{
		config:        cfg,
		logger:        logger,
		db:            db,
		redisClient:   redisClient,
		mqttClient:    mqttClient,
		tenantID:      tenantID,
		seriesBuffer:  seriesBuffer,
		cacheManager:  cacheManager,
		mqttConsumer:  mqttConsumer,
		trendConsumer: trendConsumer,
		trendService:  trendService,
	}, nil
}

// Start 启动服务（阻塞直到上下文取消或组件失败）
func (s *OximetryService) Start(ctx context.Context) error {
	s.logger.Info("Starting oximetry service components",
		zap.String("tenant_id", s.tenantID),
		zap.String("engine_mode", s.trendService.mode),
	)

	errChan := make(chan error, 2)

	// 启动 MQTT 消费者（采样写入序列缓冲）
	go func() {
		if err := s.mqttConsumer.Start(ctx); err != nil {
			errChan <- fmt.Errorf("mqtt consumer failed: %w", err)
		}
	}()

	// 启动趋势消费者（按分钟轮询评估）
	go func() {
		if err := s.trendConsumer.Start(ctx, s.trendService); err != nil {
			errChan <- fmt.Errorf("trend consumer failed: %w", err)
		}
	}()

	s.logger.Info("Oximetry service started successfully")

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

// Stop 停止服务
func (s *OximetryService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping oximetry service")

	// 停止Consumer
	if s.mqttConsumer != nil {
		if err := s.mqttConsumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping MQTT consumer", zap.Error(err))
		}
	}

	// 断开MQTT
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	// 关闭Redis
	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing redis", zap.Error(err))
		}
	}

	// 关闭数据库
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database", zap.Error(err))
		}
	}

	s.logger.Info("Oximetry service stopped")
	return nil
}
