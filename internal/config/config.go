package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=restoran port=5432 sslmode=disable"

type Config struct {
	Env         string        `mapstructure:"APP_ENV"`
	HTTPPort    string        `mapstructure:"HTTP_PORT"`
	DatabaseDSN string        `mapstructure:"DATABASE_DSN"`
	JWTSecret   string        `mapstructure:"JWT_SECRET"`
	CORSOrigins string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LockTimeout time.Duration `mapstructure:"LOCK_TIMEOUT"` // Satır kilidi bekleme üst sınırı

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"` // Boşsa olay yayını kapalı
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	OtelEndpoint   string `mapstructure:"OTEL_ENDPOINT"` // Boşsa tracing kapalı
	MetricsEnabled bool   `mapstructure:"METRICS_ENABLED"`

	// Uyarılar Load sırasında toplanır, logger hazır olunca main basar
	Warnings []string `mapstructure:"-"`
}

// Load, ortam değişkenlerinden (ve varsa CONFIG_FILE'dan) ayarları okur.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("DATABASE_DSN", defaultDSN)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("LOCK_TIMEOUT", "5s")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "menu-events")
	v.SetDefault("OTEL_ENDPOINT", "")
	v.SetDefault("METRICS_ENABLED", true)
	v.AutomaticEnv()

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Production güvenlik kontrolleri
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET environment değişkeni tanımlanmamış")
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET en az 32 karakter olmalıdır")
	}
	if cfg.DatabaseDSN == defaultDSN {
		cfg.Warnings = append(cfg.Warnings, "DATABASE_DSN varsayılan değer kullanılıyor, production için mutlaka kendi Postgres bağlantı bilgisini tanımla.")
	}
	if cfg.CORSOrigins == "http://localhost:5173" {
		cfg.Warnings = append(cfg.Warnings, "CORS_ALLOWED_ORIGINS varsayılan değer kullanılıyor, production için mutlaka kendi domain'ini tanımla.")
	}

	return &cfg, nil
}

// Brokers: virgülle ayrılmış KAFKA_BROKERS listesini çözer.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
