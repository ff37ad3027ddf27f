package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Server    ServerConfig    `mapstructure:"server"`
	Client    ClientConfig    `mapstructure:"client"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type AppConfig struct {
	Env string `mapstructure:"env"` // e.g., "local", "prod"
}

type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	TickersPath       string        `mapstructure:"tickers_path"`
	QuoteInterval     time.Duration `mapstructure:"quote_interval"`
	SendDelay         time.Duration `mapstructure:"send_delay"`
	SendTimeout       time.Duration `mapstructure:"send_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	InboxSize         int           `mapstructure:"inbox_size"`
	ReaperInterval    time.Duration `mapstructure:"reaper_interval"`
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`
}

// ListenAddr is the control-plane bind address.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ClientConfig struct {
	ServerAddr  string `mapstructure:"server_addr"`
	UDPPort     int    `mapstructure:"udp_port"`
	TickersPath string `mapstructure:"tickers_path"`
}

type HeartbeatConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Window      time.Duration `mapstructure:"window"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // empty disables the endpoint
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"path":         "server.tickers_path",
	"metrics-addr": "metrics.addr",
	"server-addr":  "client.server_addr",
	"udp-port":     "client.udp_port",
	"tickers-path": "client.tickers_path",
	"log-level":    "logger.level",
}

// LoadConfig reads configuration from .env file, environment variables, flags and defaults.
// flags may be nil; only flags that were explicitly set override the other sources.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults
	v.SetDefault("app.env", "local")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.tickers_path", "tickers.txt")
	v.SetDefault("server.quote_interval", 500*time.Millisecond)
	v.SetDefault("server.send_delay", 100*time.Millisecond)
	v.SetDefault("server.send_timeout", 5*time.Second)
	v.SetDefault("server.poll_interval", 1*time.Second)
	v.SetDefault("server.inbox_size", 256)
	v.SetDefault("server.reaper_interval", 5*time.Second)
	v.SetDefault("server.inactivity_timeout", 5*time.Second)

	v.SetDefault("client.server_addr", "127.0.0.1:8080")
	v.SetDefault("client.udp_port", 34254)
	v.SetDefault("client.tickers_path", "")

	v.SetDefault("heartbeat.interval", 2*time.Second)
	v.SetDefault("heartbeat.window", 5*time.Second)
	v.SetDefault("heartbeat.read_timeout", 1*time.Second)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "prices.")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "market_ticks")

	v.SetDefault("metrics.addr", "")

	// 3. Configure Viper to read Environment Variables
	// This maps dot-notation to underscores (e.g., "server.port" -> "SERVER_PORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys
	bindEnv(v, "app.env", "logger.level", "logger.format")
	bindEnv(v, "server.host", "server.port", "server.tickers_path", "server.quote_interval",
		"server.send_delay", "server.send_timeout", "server.poll_interval", "server.inbox_size",
		"server.reaper_interval", "server.inactivity_timeout")
	bindEnv(v, "client.server_addr", "client.udp_port", "client.tickers_path")
	bindEnv(v, "heartbeat.interval", "heartbeat.window", "heartbeat.read_timeout")
	bindEnv(v, "redis.enabled", "redis.addr", "redis.password", "redis.db", "redis.channel_prefix")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic")
	bindEnv(v, "metrics.addr")

	// 5. Flags win over env and defaults
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("unable to bind flag %s: %w", name, err)
				}
			}
		}
	}

	// 6. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values the long-running loops cannot work with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	if c.Client.UDPPort < 0 || c.Client.UDPPort > 65535 {
		return fmt.Errorf("client udp port out of range: %d", c.Client.UDPPort)
	}

	durations := map[string]time.Duration{
		"server.quote_interval":     c.Server.QuoteInterval,
		"server.send_timeout":       c.Server.SendTimeout,
		"server.poll_interval":      c.Server.PollInterval,
		"server.reaper_interval":    c.Server.ReaperInterval,
		"server.inactivity_timeout": c.Server.InactivityTimeout,
		"heartbeat.interval":        c.Heartbeat.Interval,
		"heartbeat.window":          c.Heartbeat.Window,
		"heartbeat.read_timeout":    c.Heartbeat.ReadTimeout,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	if c.Server.SendDelay < 0 {
		return fmt.Errorf("server.send_delay cannot be negative")
	}
	if c.Server.InboxSize <= 0 {
		return fmt.Errorf("server.inbox_size must be positive")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}

	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
