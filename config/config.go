package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the tsmeta configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Parse      ParseConfig      `mapstructure:"parse"`
	Kubernetes KubernetesConfig `mapstructure:"kubernetes"`
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Development bool   `mapstructure:"development"`
}

// RedisConfig configures record broadcasting.
type RedisConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URI     string        `mapstructure:"uri"`
	Channel string        `mapstructure:"channel"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ParseConfig configures batch parsing and TS file discovery.
type ParseConfig struct {
	Concurrency int      `mapstructure:"concurrency"`
	SearchDirs  []string `mapstructure:"search_dirs"`
}

// KubernetesConfig configures reading TS files from a ConfigMap.
type KubernetesConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	ConfigMap string `mapstructure:"configmap"`
}

// Load reads tsmeta.yaml from path (or the working directory when path
// is empty) and TSMETA_* environment variables. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8090)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.development", false)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.uri", "localhost:6379")
	v.SetDefault("redis.channel", "tsmeta")
	v.SetDefault("redis.ttl", time.Minute)
	v.SetDefault("parse.concurrency", 4)
	v.SetDefault("parse.search_dirs", []string{".", "examples", "~"})
	v.SetDefault("kubernetes.enabled", false)
	v.SetDefault("kubernetes.namespace", "default")
	v.SetDefault("kubernetes.configmap", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tsmeta")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TSMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Parse.Concurrency < 1 {
		return fmt.Errorf("parse.concurrency must be positive, got %d", cfg.Parse.Concurrency)
	}
	if cfg.Kubernetes.Enabled && cfg.Kubernetes.ConfigMap == "" {
		return fmt.Errorf("kubernetes.configmap is required when kubernetes.enabled is set")
	}
	return nil
}
