package common

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultSecretKey     = "your-secret-key-change-this"
	DefaultAdminPassword = "admin123"
	ReservedAdminName    = "admin"
)

type Config struct {
	SecretKey      string
	DatabaseURL    string
	SqlitePath     string
	AdminPassword  string
	Port           string
	GinMode        string
	Timezone       string
	PreviewTimeout time.Duration
	NatsURL        string
	CorsOrigins    []string
	TrustedProxies []string
	DBLog          bool
}

// LoadConfig reads the environment, optionally seeded from a .env file.
func LoadConfig(envFiles ...string) *Config {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("no .env file loaded:", err)
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SECRET_KEY", DefaultSecretKey)
	v.SetDefault("SQLITE_DB", "sns.db")
	v.SetDefault("ADMIN_PASSWORD", DefaultAdminPassword)
	v.SetDefault("PORT", "5000")
	v.SetDefault("TIMEZONE", "Asia/Seoul")
	v.SetDefault("PREVIEW_TIMEOUT", "5s")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("DB_LOG", false)

	cfg := &Config{
		SecretKey:      v.GetString("SECRET_KEY"),
		DatabaseURL:    v.GetString("DATABASE_URL"),
		SqlitePath:     v.GetString("SQLITE_DB"),
		AdminPassword:  v.GetString("ADMIN_PASSWORD"),
		Port:           v.GetString("PORT"),
		GinMode:        v.GetString("GIN_MODE"),
		Timezone:       v.GetString("TIMEZONE"),
		PreviewTimeout: v.GetDuration("PREVIEW_TIMEOUT"),
		NatsURL:        v.GetString("NATS_URL"),
		CorsOrigins:    splitList(v.GetString("CORS_ORIGINS")),
		TrustedProxies: splitList(v.GetString("TRUSTED_PROXIES")),
		DBLog:          v.GetBool("DB_LOG"),
	}

	if cfg.SecretKey == DefaultSecretKey {
		log.Println("SECRET_KEY not set, using the built-in development key")
	}
	if cfg.PreviewTimeout <= 0 {
		cfg.PreviewTimeout = 5 * time.Second
	}
	return cfg
}

// Location returns the display time zone, KST when the name is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("unknown TIMEZONE %q, falling back to KST: %v", c.Timezone, err)
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
