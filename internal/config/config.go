package config

import (
	"fmt"
	"github.com/fsnotify/fsnotify"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/thushan/edgeproxy/internal/adapter/pool"
	"github.com/thushan/edgeproxy/internal/core/domain"
)

const (
	DefaultPort = 19841
	DefaultHost = "localhost"

	DefaultFileWriteDelay = 150 * time.Millisecond // Small delay to ensure file write is complete
)

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestLimits: ServerRequestLimits{
				MaxBodySize:   50 * 1024 * 1024,
				MaxHeaderSize: 1 * 1024 * 1024,
			},
		},
		Origins: []OriginConfig{
			{
				Name:                  "default",
				Host:                  "localhost",
				Port:                  11434,
				IdleTimeout:           90 * time.Second,
				MaxConnectionsPerHost: 100,
				PerServerWaterline:    32,
				ConnectTimeout:        30 * time.Second,
				KeepAlive:             30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Theme:      "default",
			LogDir:     "./logs",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			FileOutput: true,
			PrettyLogs: true,
		},
	}
}

// Load loads configuration from file and environment variables
func Load(onConfigChange func()) (*Config, error) {
	config := DefaultConfig()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.SetEnvPrefix("EDGEPROXY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Try to read config file
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, check if we have EDGEPROXY_CONFIG_FILE env var
		if configFile := os.Getenv("EDGEPROXY_CONFIG_FILE"); configFile != "" {
			viper.SetConfigFile(configFile)
			if err := viper.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Unmarshal only sees keys viper already knows, so apply env overrides explicitly.
	if v := os.Getenv("EDGEPROXY_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("EDGEPROXY_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("EDGEPROXY_LOGGING_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	viper.WatchConfig()

	if onConfigChange != nil {
		viper.OnConfigChange(func(e fsnotify.Event) {
			reloadMutex.Lock()
			defer reloadMutex.Unlock()

			// lame debounce to avoid rapid-fire reloads
			now := time.Now()
			if now.Sub(lastReload) < 500*time.Millisecond {
				return // Ignore miultiple rapid changes
			}
			lastReload = now

			// looks like on windows this event is triggered
			// before the file is fully written, not sure why
			time.Sleep(DefaultFileWriteDelay)
			onConfigChange()
		})
	}
	return config, nil
}

// Server builds the domain.Server this origin config describes.
func (o OriginConfig) Server() domain.Server {
	return domain.NewServer(o.Host, o.Port)
}

// PoolConfig builds the connection-pool tuning for this origin.
func (o OriginConfig) PoolConfig() domain.ConnectionPoolConfig {
	return domain.ConnectionPoolConfig{
		OriginName:            o.Name,
		IdleTimeout:           o.IdleTimeout,
		MaxConnectionsPerHost: o.MaxConnectionsPerHost,
		PerServerWaterline:    o.PerServerWaterline,
	}
}

// DialerConfig builds the dialer tuning for this origin's factory.
func (o OriginConfig) DialerConfig() pool.DialerConfig {
	cfg := pool.DefaultDialerConfig()
	if o.ConnectTimeout > 0 {
		cfg.ConnectTimeout = o.ConnectTimeout
	}
	if o.KeepAlive > 0 {
		cfg.KeepAlive = o.KeepAlive
	}
	return cfg
}
