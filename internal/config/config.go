// Package config loads server settings from defaults, an optional YAML file and
// SYNAPSE_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "SYNAPSE"

type Config struct {
	Server struct {
		Address        string   `mapstructure:"address"`
		AllowedOrigins []string `mapstructure:"allowedOrigins"`
	} `mapstructure:"server"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Room struct {
		GracePeriod  time.Duration `mapstructure:"gracePeriod"`
		HistoryLimit int           `mapstructure:"historyLimit"`
	} `mapstructure:"room"`
	WS struct {
		MaxMessageSize int64         `mapstructure:"maxMessageSize"`
		SendBuffer     int           `mapstructure:"sendBuffer"`
		PongWait       time.Duration `mapstructure:"pongWait"`
	} `mapstructure:"ws"`
	Directory struct {
		Path          string        `mapstructure:"path"`
		StaleAfter    time.Duration `mapstructure:"staleAfter"`
		SweepInterval time.Duration `mapstructure:"sweepInterval"`
	} `mapstructure:"directory"`
	API struct {
		RequestsPerSecond float64 `mapstructure:"requestsPerSecond"`
		Burst             int     `mapstructure:"burst"`
	} `mapstructure:"api"`
	Redis struct {
		Addrs     []string `mapstructure:"addrs"`
		Password  string   `mapstructure:"password"`
		KeyPrefix string   `mapstructure:"keyPrefix"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers   []string `mapstructure:"brokers"`
		Topic     string   `mapstructure:"topic"`
		Workers   int      `mapstructure:"workers"`
		QueueSize int      `mapstructure:"queueSize"`
		MaxRetry  int      `mapstructure:"maxRetry"`
	} `mapstructure:"kafka"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":3001")
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:3000"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("room.gracePeriod", "60s")
	v.SetDefault("room.historyLimit", 200)
	v.SetDefault("ws.maxMessageSize", 1<<20)
	v.SetDefault("ws.sendBuffer", 512)
	v.SetDefault("ws.pongWait", "60s")
	v.SetDefault("directory.path", ":memory:")
	v.SetDefault("directory.staleAfter", "24h")
	v.SetDefault("directory.sweepInterval", "10m")
	v.SetDefault("api.requestsPerSecond", 10)
	v.SetDefault("api.burst", 20)
	v.SetDefault("redis.addrs", []string{})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.keyPrefix", "synapse")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "diagram-events")
	v.SetDefault("kafka.workers", 2)
	v.SetDefault("kafka.queueSize", 10000)
	v.SetDefault("kafka.maxRetry", 3)
}

// Load reads the configuration. With an empty file it looks for synapse.yaml in the
// working directory and ./config, and a missing file is not an error. An explicit
// file must exist.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("synapse")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.File = v.ConfigFileUsed()
	return &cfg, nil
}
