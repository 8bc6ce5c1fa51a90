package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	JWTSecret   string `env:"JWT_SECRET,required"`
	JWTExpiryH  int    `env:"JWT_EXPIRY_H" envDefault:"24"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	MercuryBaseURL    string `env:"MERCURY_BASE_URL" envDefault:"https://api.mercury.com"`
	MercuryAPIKey     string `env:"MERCURY_API_KEY"`
	CryptoMateBaseURL string `env:"CRYPTOMATE_BASE_URL" envDefault:"https://api.cryptomate.me"`
	CryptoMateAPIKey  string `env:"CRYPTOMATE_API_KEY"`

	ProviderTimeoutS int `env:"PROVIDER_TIMEOUT_S" envDefault:"10"`
	ProviderRetries  int `env:"PROVIDER_RETRIES" envDefault:"3"`

	SyncIntervalS   int `env:"SYNC_INTERVAL_S" envDefault:"300"`
	SyncWindowH     int `env:"SYNC_WINDOW_H" envDefault:"24"`
	ImportBatchSize int `env:"IMPORT_BATCH_SIZE" envDefault:"100"`
	ImportFanOut    int `env:"IMPORT_FAN_OUT" envDefault:"3"`
	WriteRetries    int `env:"WRITE_RETRIES" envDefault:"3"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
