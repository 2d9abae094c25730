package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config collects everything the service reads from the environment.
type Config struct {
	Port       string
	CORSOrigin string

	EfiClientID        string
	EfiClientSecret    string
	EfiSandbox         bool
	EfiCertificatePath string
	EfiPixKey          string
	EfiTimeout         time.Duration

	WebhookSecret        string
	WebhookSkipSignature bool
	WebhookURL           string

	ExpirationSeconds int
	ProductPrice      float64
	MonitorInterval   time.Duration

	ReconcileWithGateway bool

	StoreDriver string // memory | sqlite | mysql
	DatabaseDSN string
}

// Load reads the configuration from environment variables. Missing EFI
// credentials are warned about, not fatal, so the service can still boot in
// local development against the sandbox.
func Load() *Config {
	cfg := &Config{
		Port:       envOr("PORT", "8080"),
		CORSOrigin: envOr("CORS_ORIGIN", "*"),

		EfiClientID:        os.Getenv("EFI_CLIENT_ID"),
		EfiClientSecret:    os.Getenv("EFI_CLIENT_SECRET"),
		EfiSandbox:         envBool("EFI_SANDBOX", true),
		EfiCertificatePath: os.Getenv("EFI_CERTIFICATE_PATH"),
		EfiPixKey:          os.Getenv("EFI_PIX_KEY"),
		EfiTimeout:         time.Duration(envInt("EFI_TIMEOUT_SECONDS", 30)) * time.Second,

		WebhookSecret:        os.Getenv("WEBHOOK_SECRET"),
		WebhookSkipSignature: envBool("WEBHOOK_SKIP_SIGNATURE", false),
		WebhookURL:           os.Getenv("WEBHOOK_URL"),

		ExpirationSeconds: envInt("CHARGE_EXPIRATION_SECONDS", 3600),
		ProductPrice:      envFloat("PRODUCT_PRICE", 1.00),
		MonitorInterval:   time.Duration(envInt("MONITOR_INTERVAL_SECONDS", 30)) * time.Second,

		ReconcileWithGateway: envBool("RECONCILE_WITH_GATEWAY", false),

		StoreDriver: envOr("STORE_DRIVER", "memory"),
		DatabaseDSN: os.Getenv("DATABASE_DSN"),
	}

	for _, required := range []string{"EFI_CLIENT_ID", "EFI_CLIENT_SECRET", "EFI_PIX_KEY"} {
		if os.Getenv(required) == "" {
			log.Printf("Warning: required environment variable %s is not set", required)
		}
	}

	return cfg
}

// InitDB opens the database backing the durable charge store. TranslateError
// is enabled so duplicate txids surface as gorm.ErrDuplicatedKey across
// drivers.
func InitDB(cfg *Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{TranslateError: true}

	switch cfg.StoreDriver {
	case "mysql":
		return gorm.Open(mysql.Open(cfg.DatabaseDSN), gormCfg)
	default:
		dsn := cfg.DatabaseDSN
		if dsn == "" {
			dsn = "pix_checkout.db"
		}
		return gorm.Open(sqlite.Open(dsn), gormCfg)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: invalid boolean for %s: %q, using %v", key, v, fallback)
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid integer for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return parsed
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("Warning: invalid number for %s: %q, using %.2f", key, v, fallback)
		return fallback
	}
	return parsed
}
