package config

import (
	"fmt"
	"os"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config 血氧趋势服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 租户（单租户部署时固定；多租户时由网关注入）
	TenantID string

	// 血氧趋势服务特定配置
	Oximetry struct {
		Topics struct {
			Data string // 数据主题，如 "oximeter/+/data"
		}

		// 评估轮询间隔（秒），默认 60（设备按分钟上报）
		EvalInterval int

		// 分钟序列缓存配置
		Series struct {
			KeyPrefix   string // 序列键前缀，如 "oximetry:series:"
			IndexPrefix string // 活跃设备索引键前缀，如 "oximetry:series:index:"
			MaxPoints   int    // 滚动窗口长度（分钟），默认 100
			TTL         int    // 序列 TTL（秒），默认 4 小时
		}

		// 状态缓存配置（供卡片聚合读取）
		Cache struct {
			StatusKeyPrefix string // 状态键前缀，如 "oximetry:status:"
			StatusTTL       int    // 状态 TTL（秒），默认 600
		}

		// 规则引擎配置
		Engine struct {
			Mode string // "streak_hold" 或 "floor_window"
		}

		// 报警转换通知（为空则禁用）
		Webhook struct {
			URL string
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "owlrd")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-oximetry")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")

	cfg.TenantID = getEnv("TENANT_ID", "")

	// 血氧趋势服务配置
	cfg.Oximetry.Topics.Data = getEnv("OXI_TOPIC_DATA", "oximeter/+/data")
	cfg.Oximetry.EvalInterval = getEnvInt("OXI_EVAL_INTERVAL", 60)

	cfg.Oximetry.Series.KeyPrefix = getEnv("OXI_SERIES_PREFIX", "oximetry:series:")
	cfg.Oximetry.Series.IndexPrefix = getEnv("OXI_SERIES_INDEX_PREFIX", "oximetry:series:index:")
	cfg.Oximetry.Series.MaxPoints = getEnvInt("OXI_SERIES_MAX_POINTS", 100)
	cfg.Oximetry.Series.TTL = getEnvInt("OXI_SERIES_TTL", 14400)

	cfg.Oximetry.Cache.StatusKeyPrefix = getEnv("OXI_STATUS_PREFIX", "oximetry:status:")
	cfg.Oximetry.Cache.StatusTTL = getEnvInt("OXI_STATUS_CACHE_TTL", 600)

	cfg.Oximetry.Engine.Mode = getEnv("OXI_ENGINE_MODE", "streak_hold")

	cfg.Oximetry.Webhook.URL = getEnv("OXI_WEBHOOK_URL", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			return n
		}
	}
	return defaultValue
}
