package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	HTTP     ServerConfig
	MySQL    MySQLConfig
	Log      LogConfig
	Gateways GatewaysConfig
	Retry    RetryConfig
	Alerts   AlertsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type MercadoPagoConfig struct {
	WebhookSecret             string
	SignatureToleranceSeconds int64
}

type PagarmeConfig struct {
	WebhookSecret string
}

type AsaasConfig struct {
	AccessToken string
}

type GatewaysConfig struct {
	MercadoPago MercadoPagoConfig
	Pagarme     PagarmeConfig
	Asaas       AsaasConfig
}

type RetryConfig struct {
	MaxAttempts  int32
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	PollInterval time.Duration
	BatchSize    int32
}

type AlertsConfig struct {
	WebhookURL  string
	HTTPTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "reconciliation-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Gateways: GatewaysConfig{
			MercadoPago: MercadoPagoConfig{
				WebhookSecret:             getEnv("MERCADOPAGO_WEBHOOK_SECRET", ""),
				SignatureToleranceSeconds: int64(getIntEnv("MERCADOPAGO_SIGNATURE_TOLERANCE_SECONDS", 300)),
			},
			Pagarme: PagarmeConfig{
				WebhookSecret: getEnv("PAGARME_WEBHOOK_SECRET", ""),
			},
			Asaas: AsaasConfig{
				AccessToken: getEnv("ASAAS_ACCESS_TOKEN", ""),
			},
		},
		Retry: RetryConfig{
			MaxAttempts:  int32(getIntEnv("RETRY_MAX_ATTEMPTS", 5)),
			BackoffBase:  getSecondsEnv("RETRY_BACKOFF_BASE_SECONDS", time.Minute),
			BackoffCap:   getMinutesEnv("RETRY_BACKOFF_CAP_MINUTES", time.Hour),
			PollInterval: getSecondsEnv("RETRY_POLL_INTERVAL_SECONDS", 5*time.Second),
			BatchSize:    int32(getIntEnv("RETRY_BATCH_SIZE", 100)),
		},
		Alerts: AlertsConfig{
			WebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
			HTTPTimeout: getSecondsEnv("ALERT_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
