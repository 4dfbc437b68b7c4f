package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 65432
	DefaultReadBudget = 1024
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig `yaml:"server"`
	Logging LogConfig    `yaml:"logging"`
}

// ServerConfig contains settings for the listener
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	ReadBudget  int    `yaml:"read_budget"`  // bytes taken from a connection in its single read
	ReadTimeout int    `yaml:"read_timeout"` // in milliseconds, 0 waits forever
}

// LogConfig contains settings for logging
type LogConfig struct {
	LogToFile   bool   `yaml:"log_to_file"`
	LogFilePath string `yaml:"log_file_path"`
	MaxSize     int    `yaml:"max_size"`    // maximum size in megabytes
	MaxBackups  int    `yaml:"max_backups"` // maximum number of old log files to retain
	MaxAge      int    `yaml:"max_age"`     // maximum number of days to retain old log files
	Compress    bool   `yaml:"compress"`    // compress rotated log files
}

// Addr joins host and port into a dialable address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Timeout returns the read timeout as a duration.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Millisecond
}

// LoadDefault returns a configuration with default values
func LoadDefault() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        DefaultHost,
			Port:        DefaultPort,
			ReadBudget:  DefaultReadBudget,
			ReadTimeout: 0,
		},
		Logging: LogConfig{
			LogToFile:   false,
			LogFilePath: "cannedhttp.log",
			MaxSize:     10,
			MaxBackups:  3,
			MaxAge:      28,
			Compress:    true,
		},
	}
}

// Load reads configuration from a file and merges it with default values
func Load(configPath string) (*Config, error) {
	cfg := LoadDefault()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// booleans that default to true need to tell "false" apart from "absent"
	var explicit struct {
		Logging struct {
			Compress *bool `yaml:"compress"`
		} `yaml:"logging"`
	}
	if err := yaml.Unmarshal(data, &explicit); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Merge server configuration
	if fileCfg.Server.Host != "" {
		cfg.Server.Host = fileCfg.Server.Host
	}
	if fileCfg.Server.Port != 0 {
		cfg.Server.Port = fileCfg.Server.Port
	}
	if fileCfg.Server.ReadBudget != 0 {
		cfg.Server.ReadBudget = fileCfg.Server.ReadBudget
	}
	if fileCfg.Server.ReadTimeout != 0 {
		cfg.Server.ReadTimeout = fileCfg.Server.ReadTimeout
	}

	// Merge logging configuration
	cfg.Logging.LogToFile = fileCfg.Logging.LogToFile
	if fileCfg.Logging.LogFilePath != "" {
		cfg.Logging.LogFilePath = fileCfg.Logging.LogFilePath
	}
	if fileCfg.Logging.MaxSize > 0 {
		cfg.Logging.MaxSize = fileCfg.Logging.MaxSize
	}
	if fileCfg.Logging.MaxBackups > 0 {
		cfg.Logging.MaxBackups = fileCfg.Logging.MaxBackups
	}
	if fileCfg.Logging.MaxAge > 0 {
		cfg.Logging.MaxAge = fileCfg.Logging.MaxAge
	}
	if explicit.Logging.Compress != nil {
		cfg.Logging.Compress = *explicit.Logging.Compress
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Host == "" {
		errs = append(errs, errors.New("server.host must not be empty"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range 0-65535", c.Server.Port))
	}
	if c.Server.ReadBudget <= 0 {
		errs = append(errs, fmt.Errorf("server.read_budget must be positive, got %d", c.Server.ReadBudget))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.read_timeout must not be negative, got %d", c.Server.ReadTimeout))
	}
	if c.Logging.LogToFile && c.Logging.LogFilePath == "" {
		errs = append(errs, errors.New("logging.log_file_path is required when log_to_file is set"))
	}
	return errors.Join(errs...)
}
