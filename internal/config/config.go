package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env      string
	Server   ServerConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Backend  BackendConfig
	Realtime RealtimeConfig
	Push     PushConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Port    string
	Timeout time.Duration
	// PushRateLimit is pushes per minute accepted from one client.
	PushRateLimit int `mapstructure:"push_rate_limit"`
}

type RabbitMQConfig struct {
	URL       string
	PushQueue string `mapstructure:"push_queue"`
	Exchange  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// BackendConfig points at the booking platform REST API.
type BackendConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout time.Duration
}

type RealtimeConfig struct {
	GatewayURL     string        `mapstructure:"gateway_url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	Locale         string
	Sound          bool
}

// PushConfig describes the agent side of push delivery: where the agent is
// reachable, which page origin notification URLs resolve against, and the
// icon/badge shown with system notifications.
type PushConfig struct {
	AgentURL        string `mapstructure:"agent_url"`
	AppURL          string `mapstructure:"app_url"`
	Icon            string
	Badge           string
	VAPIDPublicKey  string `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key"`
	Subscriber      string
}

type AuthConfig struct {
	Token string
}

// LoadConfigFrom reads the given file, or config.yaml from the usual search
// paths when file is empty.
func LoadConfigFrom(file string) (*Config, error) {
	v := viper.New()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Set defaults
	v.SetDefault("env", "development")
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.timeout", "10s")
	v.SetDefault("server.push_rate_limit", 120)
	v.SetDefault("rabbitmq.exchange", "notifications.direct")
	v.SetDefault("rabbitmq.push_queue", "push.queue")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("backend.base_url", "http://localhost:3000")
	v.SetDefault("backend.timeout", "5s")
	v.SetDefault("realtime.gateway_url", "ws://localhost:3000/ws")
	v.SetDefault("realtime.reconnect_delay", "2s")
	v.SetDefault("realtime.locale", "id-ID")
	v.SetDefault("realtime.sound", true)
	v.SetDefault("push.agent_url", "http://localhost:8090")
	v.SetDefault("push.app_url", "http://localhost:5173")
	v.SetDefault("push.icon", "/icons/icon-192.png")
	v.SetDefault("push.badge", "/icons/badge-72.png")
	v.SetDefault("push.subscriber", "ops@tourpush.local")

	// Read from environment, e.g. TOURPUSH_AUTH_TOKEN
	v.SetEnvPrefix("tourpush")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{"auth.token", "rabbitmq.url", "redis.password", "push.vapid_public_key", "push.vapid_private_key"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use environment variables
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
