// Пакет config — загрузка и валидация конфигурации Storage Server
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// maxDeleteDelay — верхняя граница задержки отложенного удаления.
// Задержка нужна только чтобы не обогнать отдачу тела ответа,
// поэтому значения больше нескольких секунд не имеют смысла.
const maxDeleteDelay = 10 * time.Second

// Config содержит все параметры конфигурации Storage Server.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Статический API-ключ для аутентификации клиентов
	APIKey string
	// Путь к директории хранения блобов
	DataDir string

	// Параметры подключения к PostgreSQL
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Автоматическое удаление блоба после скачивания
	AutoDelete bool
	// Задержка перед отложенным удалением скачанного блоба
	DeleteDelay time.Duration
	// Интервал фонового запуска cleanup (0 — только ручной запуск)
	CleanupInterval time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}

	// SS_PORT — порт HTTP-сервера (по умолчанию 8080)
	port, err := getEnvInt("SS_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SS_PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("SS_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// SS_API_KEY — обязательный
	cfg.APIKey, err = getEnvRequired("SS_API_KEY")
	if err != nil {
		return nil, err
	}

	// SS_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("SS_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// SS_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("SS_DB_HOST")
	if err != nil {
		return nil, err
	}

	// SS_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("SS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SS_DB_PORT: %w", err)
	}

	// SS_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("SS_DB_USER")
	if err != nil {
		return nil, err
	}

	// SS_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("SS_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// SS_DB_NAME — имя базы данных (по умолчанию "storage")
	cfg.DBName = getEnvDefault("SS_DB_NAME", "storage")

	// SS_DB_SSLMODE — режим SSL подключения (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("SS_DB_SSLMODE", "disable")

	// SS_AUTO_DELETE — удалять блоб после скачивания (по умолчанию true)
	cfg.AutoDelete, err = getEnvBool("SS_AUTO_DELETE", true)
	if err != nil {
		return nil, fmt.Errorf("SS_AUTO_DELETE: %w", err)
	}

	// SS_DELETE_DELAY — задержка отложенного удаления (по умолчанию 2s)
	cfg.DeleteDelay, err = getEnvDuration("SS_DELETE_DELAY", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SS_DELETE_DELAY: %w", err)
	}
	if cfg.DeleteDelay < 0 || cfg.DeleteDelay > maxDeleteDelay {
		return nil, fmt.Errorf("SS_DELETE_DELAY: значение %s вне допустимого диапазона 0-%s",
			cfg.DeleteDelay, maxDeleteDelay)
	}

	// SS_CLEANUP_INTERVAL — интервал фонового cleanup (по умолчанию 1h)
	cfg.CleanupInterval, err = getEnvDuration("SS_CLEANUP_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SS_CLEANUP_INTERVAL: %w", err)
	}
	if cfg.CleanupInterval < 0 {
		return nil, fmt.Errorf("SS_CLEANUP_INTERVAL: значение не может быть отрицательным")
	}

	// SS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SS_LOG_LEVEL: %w", err)
	}

	// SS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// SS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("SS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
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

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 2s, 1h)", val)
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
