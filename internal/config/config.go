// Пакет config — загрузка и валидация конфигурации Service Desk
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

// Config содержит все параметры конфигурации Service Desk.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	// Максимальный размер тела запроса в байтах
	HTTPMaxBodyBytes int64
	// Брать адрес клиента из X-Forwarded-For (только за доверенным прокси)
	TrustProxyHeaders bool

	// --- PostgreSQL ---

	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string
	// Размер пула подключений
	DBMaxConns int
	DBMinConns int

	// --- JWT ---

	// URL JWKS endpoint Identity Provider
	JWTJWKSURL string
	// Ожидаемый issuer JWT (пусто — не проверяется)
	JWTIssuer string
	// Допустимое отклонение часов при проверке exp/nbf
	JWTLeeway time.Duration
	// Интервал фонового обновления JWKS
	JWKSRefreshInterval time.Duration
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Путь к CA-сертификату для TLS-соединений с IdP (опционально)
	CACertPath string

	// --- Роли ---

	// Группы IdP, дающие роль admin (через запятую)
	RoleAdminGroups []string

	// --- Заявки ---

	// Размер страницы списка заявок по умолчанию
	PageSizeDefault int
	// Максимальный размер страницы списка заявок
	PageSizeMax int
	// Разрешить автору удалять собственную заявку в статусе pending
	DeleteAllowOwner bool
	// Префикс человекочитаемого кода заявки
	RequestCodePrefix string
	// Размер LRU-кэша скомпилированных шаблонов валидации
	RegexCacheSize int

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
//
//nolint:funlen,cyclop // линейная загрузка переменных
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SD_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("SD_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SD_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SD_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("SD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("SD_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("SD_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("SD_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("SD_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("SD_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("SD_HTTP_IDLE_TIMEOUT: %w", err)
	}
	maxBody, err := getEnvInt("SD_HTTP_MAX_BODY_BYTES", 1<<20)
	if err != nil {
		return nil, fmt.Errorf("SD_HTTP_MAX_BODY_BYTES: %w", err)
	}
	if maxBody < 1024 {
		return nil, fmt.Errorf("SD_HTTP_MAX_BODY_BYTES: значение %d меньше 1024", maxBody)
	}
	cfg.HTTPMaxBodyBytes = int64(maxBody)

	if cfg.TrustProxyHeaders, err = getEnvBool("SD_TRUST_PROXY_HEADERS", false); err != nil {
		return nil, fmt.Errorf("SD_TRUST_PROXY_HEADERS: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("SD_DB_HOST"); err != nil {
		return nil, err
	}
	cfg.DBPort, err = getEnvInt("SD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SD_DB_PORT: %w", err)
	}
	if cfg.DBName, err = getEnvRequired("SD_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("SD_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("SD_DB_PASSWORD"); err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("SD_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("SD_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	if cfg.DBMaxConns, err = getEnvInt("SD_DB_MAX_CONNS", 10); err != nil {
		return nil, fmt.Errorf("SD_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMinConns, err = getEnvInt("SD_DB_MIN_CONNS", 1); err != nil {
		return nil, fmt.Errorf("SD_DB_MIN_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("SD_DB_MAX_CONNS: значение должно быть положительным")
	}
	if cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return nil, fmt.Errorf("SD_DB_MIN_CONNS: значение %d вне допустимого диапазона 0-%d", cfg.DBMinConns, cfg.DBMaxConns)
	}

	// --- JWT ---

	// SD_JWT_JWKS_URL — обязательный, аутентификация выполняется внешним IdP
	if cfg.JWTJWKSURL, err = getEnvRequired("SD_JWT_JWKS_URL"); err != nil {
		return nil, err
	}
	cfg.JWTIssuer = getEnvDefault("SD_JWT_ISSUER", "")

	if cfg.JWTLeeway, err = getEnvDuration("SD_JWT_LEEWAY", 5*time.Second); err != nil {
		return nil, fmt.Errorf("SD_JWT_LEEWAY: %w", err)
	}
	if cfg.JWKSRefreshInterval, err = getEnvDuration("SD_JWKS_REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, fmt.Errorf("SD_JWKS_REFRESH_INTERVAL: %w", err)
	}
	if cfg.JWKSClientTimeout, err = getEnvDuration("SD_JWKS_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		return nil, fmt.Errorf("SD_JWKS_CLIENT_TIMEOUT: %w", err)
	}
	cfg.CACertPath = getEnvDefault("SD_CA_CERT_PATH", "")

	// --- Роли ---

	cfg.RoleAdminGroups = parseCSV(getEnvDefault("SD_ROLE_ADMIN_GROUPS", "servicedesk-admins"))

	// --- Заявки ---

	cfg.PageSizeDefault, err = getEnvInt("SD_PAGE_SIZE_DEFAULT", 15)
	if err != nil {
		return nil, fmt.Errorf("SD_PAGE_SIZE_DEFAULT: %w", err)
	}
	cfg.PageSizeMax, err = getEnvInt("SD_PAGE_SIZE_MAX", 100)
	if err != nil {
		return nil, fmt.Errorf("SD_PAGE_SIZE_MAX: %w", err)
	}
	if cfg.PageSizeMax < 1 || cfg.PageSizeMax > 1000 {
		return nil, fmt.Errorf("SD_PAGE_SIZE_MAX: значение %d вне допустимого диапазона 1-1000", cfg.PageSizeMax)
	}
	if cfg.PageSizeDefault < 1 || cfg.PageSizeDefault > cfg.PageSizeMax {
		return nil, fmt.Errorf("SD_PAGE_SIZE_DEFAULT: значение %d вне допустимого диапазона 1-%d", cfg.PageSizeDefault, cfg.PageSizeMax)
	}

	cfg.DeleteAllowOwner, err = getEnvBool("SD_DELETE_ALLOW_OWNER", false)
	if err != nil {
		return nil, fmt.Errorf("SD_DELETE_ALLOW_OWNER: %w", err)
	}

	cfg.RequestCodePrefix = strings.ToUpper(getEnvDefault("SD_REQUEST_CODE_PREFIX", "SOL"))
	if len(cfg.RequestCodePrefix) > 10 {
		return nil, fmt.Errorf("SD_REQUEST_CODE_PREFIX: длина %q превышает 10 символов", cfg.RequestCodePrefix)
	}

	cfg.RegexCacheSize, err = getEnvInt("SD_REGEX_CACHE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("SD_REGEX_CACHE_SIZE: %w", err)
	}
	if cfg.RegexCacheSize < 1 {
		return nil, fmt.Errorf("SD_REGEX_CACHE_SIZE: значение должно быть положительным")
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("SD_DEPHEALTH_GROUP", "servicedesk")
	if cfg.DephealthCheckInterval, err = getEnvDuration("SD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second); err != nil {
		return nil, fmt.Errorf("SD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	if cfg.ShutdownTimeout, err = getEnvDuration("SD_SHUTDOWN_TIMEOUT", 5*time.Second); err != nil {
		return nil, fmt.Errorf("SD_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL (формат key=value для pgxpool).
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для лейблов topologymetrics).
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(c.DBUser),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
}

// MigrateURL возвращает URL для golang-migrate (драйвер pgx5).
func (c *Config) MigrateURL() string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.DBSSLMode,
	}
	return u.String()
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

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

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

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное логическое значение: %q", val)
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
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
