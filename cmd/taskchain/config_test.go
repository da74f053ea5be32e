package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rendis/taskchain/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSettings_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	s, err := loadSettings("", envFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, defaultSettings(), s)
	assert.Equal(t, 256, s.DesignConfig().DBParams.RegistrationCapacity)
	assert.Equal(t, 2, s.DesignConfig().MaxConcurrentActionExecutions)
}

func TestLoadSettings_FileThenEnv(t *testing.T) {
	path := writeSettings(t, `
log_level: debug
ipc: redis
redis_addr: cache:6379
timeout: 30s
max_concurrent_action_executions: 4
`)

	s, err := loadSettings(path, envFrom(map[string]string{
		"TASKCHAIN_REDIS_ADDR":                      "override:6380",
		"TASKCHAIN_REGISTRATION_CAPACITY":           "64",
		"TASKCHAIN_MAX_CONCURRENT_ACTION_EXECUTIONS": "not-a-number",
		"TASKCHAIN_TIMEOUT":                         "1m",
	}))
	require.NoError(t, err)

	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "redis", s.IPC)
	assert.Equal(t, "override:6380", s.RedisAddr)
	assert.Equal(t, time.Minute, s.Timeout)
	assert.Equal(t, 64, s.RegistrationCapacity)
	// Unparseable env values are ignored.
	assert.Equal(t, 4, s.MaxConcurrentActionExecutions)
	// Untouched keys keep their defaults.
	assert.Equal(t, "taskchain:", s.RedisPrefix)
}

func TestLoadSettings_JSONFile(t *testing.T) {
	path := writeSettings(t, `{"ipc": "stub", "metrics_addr": ":9090"}`)

	s, err := loadSettings(path, envFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, "stub", s.IPC)
	assert.Equal(t, ":9090", s.MetricsAddr)
}

func TestLoadSettings_Errors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := loadSettings(filepath.Join(t.TempDir(), "missing.yaml"), envFrom(nil))
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))

	_, err = loadSettings(writeSettings(t, "ipc: [x"), envFrom(nil))
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = loadSettings(writeSettings(t, "ipc: kafka"), envFrom(nil))
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	_, err = loadSettings("", envFrom(map[string]string{"TASKCHAIN_MAX_CONCURRENT_ACTION_EXECUTIONS": "0"}))
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}
