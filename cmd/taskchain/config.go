package main

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rendis/taskchain/internal/config"
	"github.com/rendis/taskchain/pkg/schema"
)

// Settings holds all CLI configuration.
// Priority: env vars > settings file > defaults.
type Settings struct {
	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogFormat string `yaml:"log_format" json:"log_format"`

	IPC           string `yaml:"ipc" json:"ipc"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix" json:"redis_prefix"`

	MetricsAddr string        `yaml:"metrics_addr" json:"metrics_addr"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`

	RegistrationCapacity          int `yaml:"registration_capacity" json:"registration_capacity"`
	MaxConcurrentActionExecutions int `yaml:"max_concurrent_action_executions" json:"max_concurrent_action_executions"`
	MaxFailureRetry               int `yaml:"max_failure_retry" json:"max_failure_retry"`
}

func defaultSettings() Settings {
	d := config.DefaultDesignConfig()
	return Settings{
		LogLevel:                      "info",
		LogFormat:                     "text",
		IPC:                           "local",
		RedisAddr:                     "localhost:6379",
		RedisPrefix:                   "taskchain:",
		Timeout:                       5 * time.Minute,
		RegistrationCapacity:          d.DBParams.RegistrationCapacity,
		MaxConcurrentActionExecutions: d.MaxConcurrentActionExecutions,
		MaxFailureRetry:               d.MaxFailureRetry,
	}
}

func taskchainDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskchain"
	}
	return filepath.Join(home, ".taskchain")
}

func settingsPath() string {
	return filepath.Join(taskchainDir(), "settings.yaml")
}

// loadSettings layers defaults, the settings file and the environment. An
// explicit path must exist; the default path is optional.
func loadSettings(path string, getenv func(string) string) (Settings, error) {
	s := defaultSettings()

	explicit := path != ""
	if !explicit {
		path = settingsPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, schema.NewErrorf(schema.ErrCodeValidation, "parse settings %s", path).WithCause(err)
		}
	case explicit || !os.IsNotExist(err):
		return s, schema.NewErrorf(schema.ErrCodeNotFound, "read settings %s", path).WithCause(err)
	}

	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("TASKCHAIN_LOG_LEVEL", &s.LogLevel)
	str("TASKCHAIN_LOG_FORMAT", &s.LogFormat)
	str("TASKCHAIN_IPC", &s.IPC)
	str("TASKCHAIN_REDIS_ADDR", &s.RedisAddr)
	str("TASKCHAIN_REDIS_PASSWORD", &s.RedisPassword)
	num("TASKCHAIN_REDIS_DB", &s.RedisDB)
	str("TASKCHAIN_REDIS_PREFIX", &s.RedisPrefix)
	str("TASKCHAIN_METRICS_ADDR", &s.MetricsAddr)
	num("TASKCHAIN_REGISTRATION_CAPACITY", &s.RegistrationCapacity)
	num("TASKCHAIN_MAX_CONCURRENT_ACTION_EXECUTIONS", &s.MaxConcurrentActionExecutions)
	num("TASKCHAIN_MAX_FAILURE_RETRY", &s.MaxFailureRetry)
	if v := getenv("TASKCHAIN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.Timeout = d
		}
	}

	return s, s.Validate()
}

// Validate rejects settings the CLI cannot run with.
func (s Settings) Validate() error {
	switch s.IPC {
	case "local", "stub", "redis":
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "ipc must be local, stub or redis, got %q", s.IPC)
	}
	if s.Timeout <= 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "timeout must be positive, got %s", s.Timeout)
	}
	return s.DesignConfig().Validate()
}

// DesignConfig returns the program build configuration.
func (s Settings) DesignConfig() config.DesignConfig {
	return config.DesignConfig{
		DBParams:                      config.DBParams{RegistrationCapacity: s.RegistrationCapacity},
		MaxConcurrentActionExecutions: s.MaxConcurrentActionExecutions,
		MaxFailureRetry:               s.MaxFailureRetry,
	}
}
