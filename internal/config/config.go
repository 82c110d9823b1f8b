// Пакет config — загрузка и валидация конфигурации Link Gateway
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// maxTelegramChunk — верхний предел limit в upload.getFile (1 MiB).
const maxTelegramChunk = 1048576

// Config содержит все параметры конфигурации Link Gateway.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Идентификатор Telegram-приложения (my.telegram.org)
	APIID int
	// Hash Telegram-приложения
	APIHash string
	// Токен бота от @BotFather
	BotToken string
	// Директория для хранения файла MTProto-сессии
	SessionDir string
	// Публичный базовый URL для построения ссылок (без завершающего /)
	BaseURL string
	// Максимальный размер файла в байтах
	MaxFileSize int64
	// Размер chunk при скачивании из Telegram (кратен 4096, делит 1 MiB)
	ChunkSize int64
	// Срок жизни токена (0 = без истечения)
	TokenTTL time.Duration
	// Секрет для детерминированной выдачи токенов (HMAC).
	// Пустой — токены генерируются случайно.
	SecretKey string
	// Адрес Redis для персистентного реестра токенов (опционально).
	// Пустой — используется in-memory реестр.
	RedisAddr string
	// Максимальное количество одновременных запросов upload.getFile
	MaxConcurrentFetches int64
	// Таймаут ожидания слота семафора перед отдачей 503
	FetchWaitTimeout time.Duration
	// Количество повторов при временных ошибках Telegram
	FetchRetries int
	// Базовая пауза exponential backoff между повторами
	FetchRetryBase time.Duration
	// Размер кэша живых file-ссылок
	HandleCacheSize int
	// TTL записи в кэше живых file-ссылок
	HandleCacheTTL time.Duration
	// Интервал фоновой очистки истёкших токенов (in-memory реестр)
	SweepInterval time.Duration
	// Канал, членство в котором обязательно для команд бота (опционально)
	RequiredChannel string
	// Чат для дублирования файлов со ссылками (0 = выключено)
	MediaGroupID int64
	// URL JWKS endpoint для защиты mint API (опционально)
	JWKSUrl string
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics (LG_DEPHEALTH_GROUP)
	DephealthGroup string
	// Имя зависимости (целевого сервиса) в метриках topologymetrics
	DephealthDepName string
	// URL зависимости для проверки (по умолчанию Telegram API)
	DephealthURL string
	// Имя владельца пода для метки name в topologymetrics (DEPHEALTH_NAME)
	DephealthName string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Таймаут чтения запроса HTTP-сервером
	HTTPReadTimeout time.Duration
	// Таймаут записи ответа. 0 = без ограничения: отдача больших файлов
	// клиентам с медленным каналом может занимать часы.
	HTTPWriteTimeout time.Duration
	// Таймаут keep-alive соединений
	HTTPIdleTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// LG_PORT — порт HTTP-сервера (по умолчанию 8080)
	port, err := getEnvInt("LG_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("LG_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("LG_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// LG_API_ID — обязательный
	apiID, err := getEnvIntRequired("LG_API_ID")
	if err != nil {
		return nil, err
	}
	cfg.APIID = apiID

	// LG_API_HASH — обязательный
	cfg.APIHash, err = getEnvRequired("LG_API_HASH")
	if err != nil {
		return nil, err
	}

	// LG_BOT_TOKEN — обязательный
	cfg.BotToken, err = getEnvRequired("LG_BOT_TOKEN")
	if err != nil {
		return nil, err
	}

	// LG_SESSION_DIR — директория MTProto-сессии (по умолчанию ./session)
	cfg.SessionDir = getEnvDefault("LG_SESSION_DIR", "./session")

	// LG_BASE_URL — обязательный, публичный адрес сервиса
	baseURL, err := getEnvRequired("LG_BASE_URL")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("LG_BASE_URL: некорректный URL %q", baseURL)
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")

	// LG_MAX_FILE_SIZE — максимальный размер файла (по умолчанию 4 GiB)
	maxFileSize, err := getEnvInt64("LG_MAX_FILE_SIZE", 4*1024*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("LG_MAX_FILE_SIZE: %w", err)
	}
	if maxFileSize <= 0 {
		return nil, fmt.Errorf("LG_MAX_FILE_SIZE: значение должно быть положительным")
	}
	cfg.MaxFileSize = maxFileSize

	// LG_CHUNK_SIZE — размер chunk (по умолчанию 1 MiB).
	// Telegram требует limit, кратный 4096 и делящий 1 MiB.
	chunkSize, err := getEnvInt64("LG_CHUNK_SIZE", maxTelegramChunk)
	if err != nil {
		return nil, fmt.Errorf("LG_CHUNK_SIZE: %w", err)
	}
	if chunkSize <= 0 || chunkSize%4096 != 0 || maxTelegramChunk%chunkSize != 0 {
		return nil, fmt.Errorf(
			"LG_CHUNK_SIZE: значение %d должно быть кратно 4096 и делить %d",
			chunkSize, maxTelegramChunk)
	}
	cfg.ChunkSize = chunkSize

	// LG_TOKEN_TTL — срок жизни токена (по умолчанию 0 = бессрочно)
	cfg.TokenTTL, err = getEnvDuration("LG_TOKEN_TTL", 0)
	if err != nil {
		return nil, fmt.Errorf("LG_TOKEN_TTL: %w", err)
	}
	if cfg.TokenTTL < 0 {
		return nil, fmt.Errorf("LG_TOKEN_TTL: значение не может быть отрицательным")
	}

	// LG_SECRET_KEY — секрет для детерминированных токенов (опционально)
	cfg.SecretKey = getEnvDefault("LG_SECRET_KEY", "")

	// LG_REDIS_ADDR — адрес Redis (опционально)
	cfg.RedisAddr = getEnvDefault("LG_REDIS_ADDR", "")

	// LG_MAX_CONCURRENT_FETCHES — лимит одновременных fetch (по умолчанию 16)
	maxFetches, err := getEnvInt64("LG_MAX_CONCURRENT_FETCHES", 16)
	if err != nil {
		return nil, fmt.Errorf("LG_MAX_CONCURRENT_FETCHES: %w", err)
	}
	if maxFetches <= 0 {
		return nil, fmt.Errorf("LG_MAX_CONCURRENT_FETCHES: значение должно быть положительным")
	}
	cfg.MaxConcurrentFetches = maxFetches

	// LG_FETCH_WAIT_TIMEOUT — ожидание слота семафора (по умолчанию 5s)
	cfg.FetchWaitTimeout, err = getEnvDuration("LG_FETCH_WAIT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_FETCH_WAIT_TIMEOUT: %w", err)
	}

	// LG_FETCH_RETRIES — количество повторов (по умолчанию 3)
	cfg.FetchRetries, err = getEnvInt("LG_FETCH_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("LG_FETCH_RETRIES: %w", err)
	}
	if cfg.FetchRetries < 0 {
		return nil, fmt.Errorf("LG_FETCH_RETRIES: значение не может быть отрицательным")
	}

	// LG_FETCH_RETRY_BASE — базовая пауза backoff (по умолчанию 250ms)
	cfg.FetchRetryBase, err = getEnvDuration("LG_FETCH_RETRY_BASE", 250*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("LG_FETCH_RETRY_BASE: %w", err)
	}

	// LG_HANDLE_CACHE_SIZE — размер кэша file-ссылок (по умолчанию 1024)
	cfg.HandleCacheSize, err = getEnvInt("LG_HANDLE_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("LG_HANDLE_CACHE_SIZE: %w", err)
	}
	if cfg.HandleCacheSize <= 0 {
		return nil, fmt.Errorf("LG_HANDLE_CACHE_SIZE: значение должно быть положительным")
	}

	// LG_HANDLE_CACHE_TTL — TTL кэша file-ссылок (по умолчанию 10m).
	// file_reference в Telegram живёт ограниченное время, длинный TTL
	// лишь увеличивает количество повторных resolve при истечении.
	cfg.HandleCacheTTL, err = getEnvDuration("LG_HANDLE_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("LG_HANDLE_CACHE_TTL: %w", err)
	}

	// LG_SWEEP_INTERVAL — интервал очистки истёкших токенов (по умолчанию 1m)
	cfg.SweepInterval, err = getEnvDuration("LG_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("LG_SWEEP_INTERVAL: %w", err)
	}

	// LG_REQUIRED_CHANNEL — обязательный канал для команд бота (опционально)
	cfg.RequiredChannel = getEnvDefault("LG_REQUIRED_CHANNEL", "")

	// LG_MEDIA_GROUP_ID — чат для дублирования файлов (опционально)
	cfg.MediaGroupID, err = getEnvInt64("LG_MEDIA_GROUP_ID", 0)
	if err != nil {
		return nil, fmt.Errorf("LG_MEDIA_GROUP_ID: %w", err)
	}

	// LG_JWKS_URL — защита mint API через JWT (опционально)
	cfg.JWKSUrl = getEnvDefault("LG_JWKS_URL", "")

	// LG_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("LG_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LG_LOG_LEVEL: %w", err)
	}

	// LG_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("LG_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LG_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// LG_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("LG_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// LG_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("LG_DEPHEALTH_GROUP", "link-gateway")

	// LG_DEPHEALTH_DEP_NAME — имя зависимости в метриках topologymetrics
	cfg.DephealthDepName = getEnvDefault("LG_DEPHEALTH_DEP_NAME", "telegram-api")

	// LG_DEPHEALTH_URL — URL зависимости для проверки
	cfg.DephealthURL = getEnvDefault("LG_DEPHEALTH_URL", "https://api.telegram.org")

	// DEPHEALTH_NAME — имя владельца пода для метки name в topologymetrics (без префикса модуля)
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	// LG_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("LG_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_SHUTDOWN_TIMEOUT: %w", err)
	}

	// LG_HTTP_READ_TIMEOUT — таймаут чтения запроса (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("LG_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_HTTP_READ_TIMEOUT: %w", err)
	}

	// LG_HTTP_WRITE_TIMEOUT — таймаут записи ответа (по умолчанию 0 = выключен).
	// Стриминг больших файлов медленным клиентам не укладывается
	// в фиксированный таймаут.
	cfg.HTTPWriteTimeout, err = getEnvDuration("LG_HTTP_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("LG_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// LG_HTTP_IDLE_TIMEOUT — таймаут keep-alive (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("LG_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LG_HTTP_IDLE_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvIntRequired возвращает обязательное целочисленное значение переменной окружения.
func getEnvIntRequired(key string) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return 0, fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: некорректное целое число: %q", key, val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
