package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Security  SecurityConfig  `mapstructure:"security"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
}

type SecurityConfig struct {
	JWTSecret    string `mapstructure:"jwt_secret"`
	JWTPublicKey string `mapstructure:"jwt_public_key"`
	AdminAPIKey  string `mapstructure:"admin_api_key"`
}

type WebsocketConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	MessagesPerSecond float64       `mapstructure:"messages_per_second"`
	MessageBurst      int           `mapstructure:"message_burst"`
}

type DatabaseConfig struct {
	Path     string        `mapstructure:"path"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// KafkaConfig lists the broker topics carrying write-path domain events.
// An empty broker list disables the consumers.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	Topics  []string `mapstructure:"topics"`
}

var envBindings = map[string]string{
	"server.port":             "PORT",
	"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",
	"logging.directory":       "LOG_DIRECTORY",
	"logging.level":           "LOG_LEVEL",
	"logging.format":          "LOG_FORMAT",
	"security.jwt_secret":     "JWT_SECRET",
	"security.jwt_public_key": "JWT_PUBLIC_KEY",
	"security.admin_api_key":  "ADMIN_API_KEY",
	"database.path":           "DATABASE_PATH",
	"kafka.brokers":           "KAFKA_BROKERS",
	"kafka.group_id":          "KAFKA_GROUP_ID",
	"kafka.topics":            "KAFKA_TOPICS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("logging.directory", "./logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("websocket.heartbeat_interval", 10*time.Second)
	v.SetDefault("websocket.heartbeat_timeout", 30*time.Second)
	v.SetDefault("websocket.send_buffer", 32)
	v.SetDefault("websocket.read_limit", 1<<16)
	v.SetDefault("websocket.messages_per_second", 20)
	v.SetDefault("websocket.message_burst", 40)
	v.SetDefault("database.path", "./data/storeops.db")
	v.SetDefault("database.cache_ttl", 5*time.Minute)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.group_id", "storeops-realtime")
	v.SetDefault("kafka.topics", []string{
		"storeops.sales",
		"storeops.stores",
		"storeops.users",
		"storeops.exports",
		"storeops.system",
	})
}

// Load reads defaults, an optional config file and the environment, in
// increasing precedence. With an empty configPath a missing file is fine.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REALTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env, "REALTIME_"+env)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("realtime")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Kafka.Topics = splitList(cfg.Kafka.Topics)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Security.JWTSecret) == "" && strings.TrimSpace(c.Security.JWTPublicKey) == "" {
		return fmt.Errorf("jwt key is required (set JWT_SECRET or JWT_PUBLIC_KEY)")
	}
	if c.Websocket.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}
	if c.Websocket.HeartbeatTimeout <= c.Websocket.HeartbeatInterval {
		return fmt.Errorf("heartbeat_timeout (%s) must exceed heartbeat_interval (%s)", c.Websocket.HeartbeatTimeout, c.Websocket.HeartbeatInterval)
	}
	if c.Websocket.SendBuffer < 1 {
		return fmt.Errorf("send_buffer must be >= 1")
	}
	if c.Websocket.ReadLimit < 1 {
		return fmt.Errorf("read_limit must be >= 1")
	}
	if c.Websocket.MessagesPerSecond <= 0 || c.Websocket.MessageBurst < 1 {
		return fmt.Errorf("message rate limit must be positive")
	}
	if len(c.Kafka.Brokers) > 0 && len(c.Kafka.Topics) == 0 {
		return fmt.Errorf("kafka brokers configured without topics")
	}
	return nil
}

// splitList flattens comma separated entries, which is how list values
// arrive from the environment.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
