package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type ClientConfig struct {
	Endpoint        string
	SyncInterval    time.Duration
	PollInterval    time.Duration
	PollMaxAttempts int
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type StorageConfig struct {
	// Driver selects the devserver backend: "memory" or "minio".
	Driver    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	// PublicBaseURL is where memory-backend presigned URLs point,
	// i.e. the externally reachable address of the devserver itself.
	PublicBaseURL string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type ModerationConfig struct {
	// AutoDelay is how long the simulated pipeline waits before
	// tagging an upload that carried classifier labels.
	AutoDelay time.Duration
	// SlotTTL is the presigned upload slot lifetime.
	SlotTTL time.Duration
}

type AppConfig struct {
	Environment      string
	Client           ClientConfig
	HTTP             HTTPConfig
	Storage          StorageConfig
	Redis            RedisConfig
	Moderation       ModerationConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("MOMOFEED")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("client.endpoint", "http://localhost:3000/api")
	v.SetDefault("client.syncinterval", "1s")
	v.SetDefault("client.pollinterval", "1s")
	v.SetDefault("client.pollmaxattempts", 60)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.bucket", "momofeed-images")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.publicbaseurl", "http://localhost:3000")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("moderation.autodelay", "2s")
	v.SetDefault("moderation.slotttl", "5m")
}
