package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// setEnvVars устанавливает переменные окружения для теста и возвращает
// функцию очистки. Всегда вызывать defer cleanup().
func setEnvVars(t *testing.T, vars map[string]string) func() {
	t.Helper()

	// Сохраняем оригинальные значения
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for k := range vars {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
	}

	// Устанавливаем новые
	for k, v := range vars {
		os.Setenv(k, v)
	}

	return func() {
		for k := range vars {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// clearAllLGEnvVars очищает все переменные окружения LG_* для чистого теста.
func clearAllLGEnvVars(t *testing.T) func() {
	t.Helper()
	keys := []string{
		"LG_PORT", "LG_API_ID", "LG_API_HASH", "LG_BOT_TOKEN",
		"LG_SESSION_DIR", "LG_BASE_URL", "LG_MAX_FILE_SIZE", "LG_CHUNK_SIZE",
		"LG_TOKEN_TTL", "LG_SECRET_KEY", "LG_REDIS_ADDR",
		"LG_MAX_CONCURRENT_FETCHES", "LG_FETCH_WAIT_TIMEOUT",
		"LG_FETCH_RETRIES", "LG_FETCH_RETRY_BASE",
		"LG_HANDLE_CACHE_SIZE", "LG_HANDLE_CACHE_TTL", "LG_SWEEP_INTERVAL",
		"LG_REQUIRED_CHANNEL", "LG_MEDIA_GROUP_ID", "LG_JWKS_URL",
		"LG_LOG_LEVEL", "LG_LOG_FORMAT",
		"LG_DEPHEALTH_CHECK_INTERVAL", "LG_DEPHEALTH_GROUP",
		"LG_DEPHEALTH_DEP_NAME", "LG_DEPHEALTH_URL", "DEPHEALTH_NAME",
		"LG_SHUTDOWN_TIMEOUT",
		"LG_HTTP_READ_TIMEOUT", "LG_HTTP_WRITE_TIMEOUT", "LG_HTTP_IDLE_TIMEOUT",
	}
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// requiredEnvVars возвращает минимальный набор обязательных переменных.
func requiredEnvVars() map[string]string {
	return map[string]string{
		"LG_API_ID":    "12345",
		"LG_API_HASH":  "0123456789abcdef0123456789abcdef",
		"LG_BOT_TOKEN": "12345:AAAA-test-token",
		"LG_BASE_URL":  "https://dl.example.com",
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	cleanup := clearAllLGEnvVars(t)
	defer cleanup()

	cleanupVars := setEnvVars(t, requiredEnvVars())
	defer cleanupVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8080 {
		t.Errorf("Port: ожидалось 8080, получено %d", cfg.Port)
	}
	if cfg.SessionDir != "./session" {
		t.Errorf("SessionDir: ожидалось './session', получено %q", cfg.SessionDir)
	}
	if cfg.MaxFileSize != 4*1024*1024*1024 {
		t.Errorf("MaxFileSize: ожидалось 4294967296, получено %d", cfg.MaxFileSize)
	}
	if cfg.ChunkSize != 1048576 {
		t.Errorf("ChunkSize: ожидалось 1048576, получено %d", cfg.ChunkSize)
	}
	if cfg.TokenTTL != 0 {
		t.Errorf("TokenTTL: ожидалось 0 (бессрочно), получено %v", cfg.TokenTTL)
	}
	if cfg.MaxConcurrentFetches != 16 {
		t.Errorf("MaxConcurrentFetches: ожидалось 16, получено %d", cfg.MaxConcurrentFetches)
	}
	if cfg.FetchWaitTimeout != 5*time.Second {
		t.Errorf("FetchWaitTimeout: ожидалось 5s, получено %v", cfg.FetchWaitTimeout)
	}
	if cfg.FetchRetries != 3 {
		t.Errorf("FetchRetries: ожидалось 3, получено %d", cfg.FetchRetries)
	}
	if cfg.FetchRetryBase != 250*time.Millisecond {
		t.Errorf("FetchRetryBase: ожидалось 250ms, получено %v", cfg.FetchRetryBase)
	}
	if cfg.HandleCacheSize != 1024 {
		t.Errorf("HandleCacheSize: ожидалось 1024, получено %d", cfg.HandleCacheSize)
	}
	if cfg.HandleCacheTTL != 10*time.Minute {
		t.Errorf("HandleCacheTTL: ожидалось 10m, получено %v", cfg.HandleCacheTTL)
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("SweepInterval: ожидалось 1m, получено %v", cfg.SweepInterval)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel: ожидалось INFO, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat: ожидалось 'json', получено %q", cfg.LogFormat)
	}
	if cfg.DephealthCheckInterval != 15*time.Second {
		t.Errorf("DephealthCheckInterval: ожидалось 15s, получено %v", cfg.DephealthCheckInterval)
	}
	if cfg.DephealthGroup != "link-gateway" {
		t.Errorf("DephealthGroup: ожидалось 'link-gateway', получено %q", cfg.DephealthGroup)
	}
	if cfg.DephealthURL != "https://api.telegram.org" {
		t.Errorf("DephealthURL: ожидалось 'https://api.telegram.org', получено %q", cfg.DephealthURL)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 5s, получено %v", cfg.ShutdownTimeout)
	}
	if cfg.HTTPReadTimeout != 30*time.Second {
		t.Errorf("HTTPReadTimeout: ожидалось 30s, получено %v", cfg.HTTPReadTimeout)
	}
	if cfg.HTTPWriteTimeout != 0 {
		t.Errorf("HTTPWriteTimeout: ожидалось 0 (без ограничения), получено %v", cfg.HTTPWriteTimeout)
	}
	if cfg.HTTPIdleTimeout != 120*time.Second {
		t.Errorf("HTTPIdleTimeout: ожидалось 120s, получено %v", cfg.HTTPIdleTimeout)
	}
}

func TestLoad_AllCustomValues(t *testing.T) {
	cleanup := clearAllLGEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["LG_PORT"] = "9090"
	vars["LG_SESSION_DIR"] = "/var/lib/lg/session"
	vars["LG_BASE_URL"] = "https://dl.example.com/"
	vars["LG_MAX_FILE_SIZE"] = "2147483648"
	vars["LG_CHUNK_SIZE"] = "524288"
	vars["LG_TOKEN_TTL"] = "24h"
	vars["LG_SECRET_KEY"] = "super-secret"
	vars["LG_REDIS_ADDR"] = "redis:6379"
	vars["LG_MAX_CONCURRENT_FETCHES"] = "4"
	vars["LG_FETCH_WAIT_TIMEOUT"] = "2s"
	vars["LG_FETCH_RETRIES"] = "5"
	vars["LG_FETCH_RETRY_BASE"] = "100ms"
	vars["LG_HANDLE_CACHE_SIZE"] = "64"
	vars["LG_HANDLE_CACHE_TTL"] = "5m"
	vars["LG_SWEEP_INTERVAL"] = "30s"
	vars["LG_REQUIRED_CHANNEL"] = "@mychannel"
	vars["LG_MEDIA_GROUP_ID"] = "-1001234567890"
	vars["LG_LOG_LEVEL"] = "debug"
	vars["LG_LOG_FORMAT"] = "text"
	vars["LG_SHUTDOWN_TIMEOUT"] = "10s"
	vars["LG_HTTP_READ_TIMEOUT"] = "20s"
	vars["LG_HTTP_WRITE_TIMEOUT"] = "1h"
	vars["LG_HTTP_IDLE_TIMEOUT"] = "90s"

	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port: ожидалось 9090, получено %d", cfg.Port)
	}
	if cfg.APIID != 12345 {
		t.Errorf("APIID: ожидалось 12345, получено %d", cfg.APIID)
	}
	if cfg.SessionDir != "/var/lib/lg/session" {
		t.Errorf("SessionDir: ожидалось '/var/lib/lg/session', получено %q", cfg.SessionDir)
	}
	// Завершающий / отрезается
	if cfg.BaseURL != "https://dl.example.com" {
		t.Errorf("BaseURL: ожидалось 'https://dl.example.com', получено %q", cfg.BaseURL)
	}
	if cfg.MaxFileSize != 2147483648 {
		t.Errorf("MaxFileSize: ожидалось 2147483648, получено %d", cfg.MaxFileSize)
	}
	if cfg.ChunkSize != 524288 {
		t.Errorf("ChunkSize: ожидалось 524288, получено %d", cfg.ChunkSize)
	}
	if cfg.TokenTTL != 24*time.Hour {
		t.Errorf("TokenTTL: ожидалось 24h, получено %v", cfg.TokenTTL)
	}
	if cfg.SecretKey != "super-secret" {
		t.Errorf("SecretKey: ожидалось 'super-secret', получено %q", cfg.SecretKey)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Errorf("RedisAddr: ожидалось 'redis:6379', получено %q", cfg.RedisAddr)
	}
	if cfg.MaxConcurrentFetches != 4 {
		t.Errorf("MaxConcurrentFetches: ожидалось 4, получено %d", cfg.MaxConcurrentFetches)
	}
	if cfg.FetchWaitTimeout != 2*time.Second {
		t.Errorf("FetchWaitTimeout: ожидалось 2s, получено %v", cfg.FetchWaitTimeout)
	}
	if cfg.FetchRetries != 5 {
		t.Errorf("FetchRetries: ожидалось 5, получено %d", cfg.FetchRetries)
	}
	if cfg.FetchRetryBase != 100*time.Millisecond {
		t.Errorf("FetchRetryBase: ожидалось 100ms, получено %v", cfg.FetchRetryBase)
	}
	if cfg.HandleCacheSize != 64 {
		t.Errorf("HandleCacheSize: ожидалось 64, получено %d", cfg.HandleCacheSize)
	}
	if cfg.HandleCacheTTL != 5*time.Minute {
		t.Errorf("HandleCacheTTL: ожидалось 5m, получено %v", cfg.HandleCacheTTL)
	}
	if cfg.SweepInterval != 30*time.Second {
		t.Errorf("SweepInterval: ожидалось 30s, получено %v", cfg.SweepInterval)
	}
	if cfg.RequiredChannel != "@mychannel" {
		t.Errorf("RequiredChannel: ожидалось '@mychannel', получено %q", cfg.RequiredChannel)
	}
	if cfg.MediaGroupID != -1001234567890 {
		t.Errorf("MediaGroupID: ожидалось -1001234567890, получено %d", cfg.MediaGroupID)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel: ожидалось DEBUG, получено %v", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat: ожидалось 'text', получено %q", cfg.LogFormat)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout: ожидалось 10s, получено %v", cfg.ShutdownTimeout)
	}
	if cfg.HTTPReadTimeout != 20*time.Second {
		t.Errorf("HTTPReadTimeout: ожидалось 20s, получено %v", cfg.HTTPReadTimeout)
	}
	if cfg.HTTPWriteTimeout != time.Hour {
		t.Errorf("HTTPWriteTimeout: ожидалось 1h, получено %v", cfg.HTTPWriteTimeout)
	}
	if cfg.HTTPIdleTimeout != 90*time.Second {
		t.Errorf("HTTPIdleTimeout: ожидалось 90s, получено %v", cfg.HTTPIdleTimeout)
	}
}

func TestLoad_MissingRequiredVars(t *testing.T) {
	requiredKeys := []string{
		"LG_API_ID", "LG_API_HASH", "LG_BOT_TOKEN", "LG_BASE_URL",
	}

	for _, missing := range requiredKeys {
		t.Run(missing, func(t *testing.T) {
			cleanup := clearAllLGEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			delete(vars, missing)
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка при отсутствии %s", missing)
			}
		})
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"ноль", "0"},
		{"отрицательный", "-1"},
		{"выше диапазона", "70000"},
		{"не число", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllLGEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["LG_PORT"] = tt.value
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для LG_PORT=%s", tt.value)
			}
		})
	}
}

func TestLoad_InvalidBaseURL(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"без схемы", "dl.example.com"},
		{"мусор", "://::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllLGEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["LG_BASE_URL"] = tt.value
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для LG_BASE_URL=%q", tt.value)
			}
		})
	}
}

func TestLoad_InvalidChunkSize(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"не число", "abc"},
		{"нулевой", "0"},
		{"отрицательный", "-4096"},
		{"не кратен 4096", "5000"},
		{"не делит мегабайт", "12288"},
		{"больше мегабайта", "2097152"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllLGEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["LG_CHUNK_SIZE"] = tt.value
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для LG_CHUNK_SIZE=%s", tt.value)
			}
		})
	}
}

func TestLoad_ValidChunkSizes(t *testing.T) {
	// Все степени двойки от 4 KiB до 1 MiB кратны 4096 и делят 1 MiB
	sizes := []string{"4096", "65536", "131072", "262144", "524288", "1048576"}

	for _, size := range sizes {
		t.Run(size, func(t *testing.T) {
			cleanup := clearAllLGEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["LG_CHUNK_SIZE"] = size
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			if _, err := Load(); err != nil {
				t.Fatalf("неожиданная ошибка для LG_CHUNK_SIZE=%s: %v", size, err)
			}
		})
	}
}

func TestLoad_InvalidMaxFileSize(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"не число", "abc"},
		{"нулевое", "0"},
		{"отрицательное", "-100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup := clearAllLGEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["LG_MAX_FILE_SIZE"] = tt.value
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для LG_MAX_FILE_SIZE=%s", tt.value)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	durationVars := []string{
		"LG_TOKEN_TTL", "LG_FETCH_WAIT_TIMEOUT", "LG_FETCH_RETRY_BASE",
		"LG_HANDLE_CACHE_TTL", "LG_SWEEP_INTERVAL",
		"LG_DEPHEALTH_CHECK_INTERVAL", "LG_SHUTDOWN_TIMEOUT",
		"LG_HTTP_READ_TIMEOUT", "LG_HTTP_WRITE_TIMEOUT", "LG_HTTP_IDLE_TIMEOUT",
	}

	for _, varName := range durationVars {
		t.Run(varName, func(t *testing.T) {
			cleanup := clearAllLGEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars[varName] = "not-a-duration"
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			_, err := Load()
			if err == nil {
				t.Errorf("ожидалась ошибка для невалидного %s", varName)
			}
		})
	}
}

func TestLoad_NegativeTokenTTL(t *testing.T) {
	cleanup := clearAllLGEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["LG_TOKEN_TTL"] = "-1h"
	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	_, err := Load()
	if err == nil {
		t.Error("ожидалась ошибка для отрицательного LG_TOKEN_TTL")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	cleanup := clearAllLGEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["LG_LOG_LEVEL"] = "invalid"
	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	_, err := Load()
	if err == nil {
		t.Error("ожидалась ошибка для невалидного LG_LOG_LEVEL")
	}
}

func TestLoad_InvalidLogFormat(t *testing.T) {
	cleanup := clearAllLGEnvVars(t)
	defer cleanup()

	vars := requiredEnvVars()
	vars["LG_LOG_FORMAT"] = "yaml"
	cleanupVars := setEnvVars(t, vars)
	defer cleanupVars()

	_, err := Load()
	if err == nil {
		t.Error("ожидалась ошибка для невалидного LG_LOG_FORMAT")
	}
}

func TestLoad_ValidLogLevels(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cleanup := clearAllLGEnvVars(t)
			defer cleanup()

			vars := requiredEnvVars()
			vars["LG_LOG_LEVEL"] = tt.input
			cleanupVars := setEnvVars(t, vars)
			defer cleanupVars()

			cfg, err := Load()
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if cfg.LogLevel != tt.expected {
				t.Errorf("LogLevel: ожидалось %v, получено %v", tt.expected, cfg.LogLevel)
			}
		})
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"json", "json"},
		{"text", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				LogLevel:  slog.LevelInfo,
				LogFormat: tt.format,
			}
			logger := SetupLogger(cfg)
			if logger == nil {
				t.Fatal("SetupLogger вернул nil")
			}
		})
	}
}
