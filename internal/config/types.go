package config

import "time"

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Origins []OriginConfig `yaml:"origins"`
	Logging LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the inbound HTTP listener configuration.
type ServerConfig struct {
	Host            string              `yaml:"host"`
	Port            int                 `yaml:"port"`
	ReadTimeout     time.Duration       `yaml:"read_timeout"`
	WriteTimeout    time.Duration       `yaml:"write_timeout"`
	ShutdownTimeout time.Duration       `yaml:"shutdown_timeout"`
	RequestLimits   ServerRequestLimits `yaml:"request_limits"`
}

// ServerRequestLimits defines request size validation limits.
type ServerRequestLimits struct {
	MaxBodySize   int64 `yaml:"max_body_size"`
	MaxHeaderSize int64 `yaml:"max_header_size"`
}

// OriginConfig describes one upstream origin and its outbound
// connection pool tuning.
type OriginConfig struct {
	Name                  string        `yaml:"name"`
	Host                  string        `yaml:"host"`
	Port                  int           `yaml:"port"`
	IdleTimeout           time.Duration `yaml:"idle_timeout"`
	MaxConnectionsPerHost int           `yaml:"max_connections_per_host"`
	PerServerWaterline    int           `yaml:"per_server_waterline"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
	KeepAlive             time.Duration `yaml:"keep_alive"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Theme      string `yaml:"theme"`
	LogDir     string `yaml:"log_dir"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	FileOutput bool   `yaml:"file_output"`
	PrettyLogs bool   `yaml:"pretty_logs"`
}
