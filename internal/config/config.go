package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port    string `mapstructure:"port"`
	SiteURL string `mapstructure:"site_url"`

	// backend REST API (tasks, categories, context entries)
	APIBaseURL string `mapstructure:"api_base_url"`

	// relay server as seen by clients (cmd/todoctl)
	RelayURL string `mapstructure:"relay_url"`

	AuthURL       string `mapstructure:"auth_url"`
	AuthAnonKey   string `mapstructure:"auth_anon_key"`
	AuthJWTSecret string `mapstructure:"auth_jwt_secret"`

	LLMBaseURL string `mapstructure:"llm_base_url"`
	LLMModel   string `mapstructure:"llm_model"`
	LLMAPIKey  string `mapstructure:"llm_api_key"`

	CalendarAPIURL   string `mapstructure:"calendar_api_url"`
	CalendarID       string `mapstructure:"calendar_id"`
	CalendarTimeZone string `mapstructure:"calendar_timezone"`

	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	StorageBackend string `mapstructure:"storage_backend"` // "memory" or "postgres"

	DBHost     string `mapstructure:"db_host"`
	DBPort     int    `mapstructure:"db_port"`
	DBUser     string `mapstructure:"db_user"`
	DBPassword string `mapstructure:"db_password"`
	DBName     string `mapstructure:"db_name"`

	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	ProfileRefreshAttempts int `mapstructure:"profile_refresh_attempts"`
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

// Load reads the environment and fills defaults for everything unset.
func Load() *Config {
	timeout, err := time.ParseDuration(os.Getenv("HTTP_TIMEOUT"))
	if err != nil || timeout <= 0 {
		timeout = 30 * time.Second
	}

	siteURL := strings.TrimRight(getEnv("SITE_URL", "http://localhost:3000"), "/")

	origins := splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if len(origins) == 0 {
		origins = []string{siteURL}
	}

	return &Config{
		Port:    getEnv("PORT", "8080"),
		SiteURL: siteURL,

		APIBaseURL: strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8000"), "/"),
		RelayURL:   strings.TrimRight(getEnv("RELAY_URL", "http://localhost:8080"), "/"),

		AuthURL:       strings.TrimRight(os.Getenv("AUTH_URL"), "/"),
		AuthAnonKey:   os.Getenv("AUTH_ANON_KEY"),
		AuthJWTSecret: os.Getenv("AUTH_JWT_SECRET"),

		LLMBaseURL: getEnv("LLM_BASE_URL", "http://localhost:1234/v1/"),
		LLMModel:   getEnv("LLM_MODEL", "local-model"),
		LLMAPIKey:  getEnv("LLM_API_KEY", "lm-studio"),

		CalendarAPIURL:   strings.TrimRight(getEnv("CALENDAR_API_URL", "https://www.googleapis.com/calendar/v3"), "/"),
		CalendarID:       getEnv("CALENDAR_ID", "primary"),
		CalendarTimeZone: os.Getenv("CALENDAR_TIMEZONE"),

		HTTPTimeout: timeout,

		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getIntEnv("DB_PORT", 5432),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		CORSAllowedOrigins: origins,

		ProfileRefreshAttempts: getIntEnv("PROFILE_REFRESH_ATTEMPTS", 3),
	}
}

// LoadFile overlays a YAML file on top of cfg. Keys missing from the file
// keep their current values.
func LoadFile(path string, cfg *Config) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return v.Unmarshal(cfg)
}

func (c *Config) ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
	)
}

// Location resolves CalendarTimeZone, falling back to the process zone.
func (c *Config) Location() *time.Location {
	if c.CalendarTimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.CalendarTimeZone)
	if err != nil {
		return time.Local
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
