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

// Config 姿态服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 姿态检测服务特定配置
	Posture struct {
		PoseTopic         string  // 姿态关键点输入主题（按用户通配，如 "neckcare/pose/+"）
		ControlTopic      string  // 测量控制主题（start/stop，如 "neckcare/control/+"）
		WarningStream     string  // 乌龟颈告警事件输出流
		RealtimeKeyPrefix string  // 实时状态缓存键前缀
		RealtimeSuffix    string  // 实时状态缓存键后缀
		RealtimeTTL       int     // 实时状态缓存 TTL（秒）
		SampleInterval    int     // 采样间隔（秒）
		FinalizeInterval  int     // 小时桶结算间隔（分钟）
		SummaryInterval   int     // 每日汇总上报间隔（分钟）
		ReferenceShoulderPx float64 // 基准双肩像素宽度（标定距离用，经验值）
		DefaultSensitivity  string  // 默认灵敏度档位：low/normal/high
	}

	// 云端汇总同步（App 后端，未配置 BaseURL 时关闭）
	Cloud struct {
		BaseURL string
		APIKey  string
		Timeout int // 秒
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
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "neckcare")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "neckcare-posture")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	// 姿态服务配置
	cfg.Posture.PoseTopic = getEnv("POSTURE_POSE_TOPIC", "neckcare/pose/+")
	cfg.Posture.ControlTopic = getEnv("POSTURE_CONTROL_TOPIC", "neckcare/control/+")
	cfg.Posture.WarningStream = getEnv("POSTURE_WARNING_STREAM", "posture:warning:stream")
	cfg.Posture.RealtimeKeyPrefix = getEnv("POSTURE_REALTIME_KEY_PREFIX", "neckcare:user:")
	cfg.Posture.RealtimeSuffix = getEnv("POSTURE_REALTIME_SUFFIX", ":posture:realtime")
	cfg.Posture.RealtimeTTL = getEnvInt("POSTURE_REALTIME_TTL", 30)
	cfg.Posture.SampleInterval = getEnvInt("POSTURE_SAMPLE_INTERVAL", 10)
	cfg.Posture.FinalizeInterval = getEnvInt("POSTURE_FINALIZE_INTERVAL", 60)
	cfg.Posture.SummaryInterval = getEnvInt("POSTURE_SUMMARY_INTERVAL", 10)
	cfg.Posture.ReferenceShoulderPx = getEnvFloat("POSTURE_REFERENCE_SHOULDER_PX", 280)
	cfg.Posture.DefaultSensitivity = getEnv("POSTURE_DEFAULT_SENSITIVITY", "normal")

	cfg.Cloud.BaseURL = getEnv("CLOUD_BASE_URL", "")
	cfg.Cloud.APIKey = getEnv("CLOUD_API_KEY", "")
	cfg.Cloud.Timeout = getEnvInt("CLOUD_TIMEOUT", 30)

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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}
