package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string `env:"APP_PORT" envDefault:"8080"`
	DBDSN         string `env:"DB_DSN,required,notEmpty"`
	JWTSecret     string `env:"JWT_SECRET,required,notEmpty"`
	JWTExpiresMin int    `env:"JWT_EXPIRES_MIN" envDefault:"10080"`

	// empty RedisAddr keeps chat fan-out in-process
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	UploadDir   string `env:"UPLOAD_DIR" envDefault:"./uploads"`
	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"http://127.0.0.1:3000, http://localhost:3000"`
	BodyLimitMB int    `env:"BODY_LIMIT_MB" envDefault:"8"`

	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads configuration from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.UploadDir = strings.TrimRight(cfg.UploadDir, "/")
	if cfg.JWTExpiresMin <= 0 {
		return Config{}, fmt.Errorf("parse env: JWT_EXPIRES_MIN must be positive")
	}
	if cfg.BodyLimitMB <= 0 {
		cfg.BodyLimitMB = 8
	}
	return cfg, nil
}
