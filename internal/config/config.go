package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	Storage        string        `mapstructure:"STORAGE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DBSchema       string        `mapstructure:"DB_SCHEMA"`
	JWTSecret      string        `mapstructure:"JWT_SECRET"`
	JWTIssuer      string        `mapstructure:"JWT_ISSUER"`
	JWTTTL         time.Duration `mapstructure:"JWT_TTL"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	UploadDir      string        `mapstructure:"UPLOAD_DIR"`
	MaxUploadSize  string        `mapstructure:"MAX_UPLOAD_SIZE"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	SchemaDir      string        `mapstructure:"SCHEMA_DIR"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	TimeZone       string        `mapstructure:"TIME_ZONE"`
}

var keys = []string{
	"PORT", "ENV", "STORAGE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "DB_SCHEMA",
	"JWT_SECRET", "JWT_ISSUER", "JWT_TTL", "CORS_ORIGINS", "UPLOAD_DIR", "MAX_UPLOAD_SIZE",
	"BODY_LIMIT", "REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "SCHEMA_DIR", "LOG_LEVEL",
	"TIME_ZONE",
}

// Load reads configuration from the environment. Variables from envFiles
// (default ".env") are added first without overriding the real environment;
// missing files are skipped.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("STORAGE", StoragePostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("JWT_ISSUER", "care-center")
	v.SetDefault("JWT_TTL", "12h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("UPLOAD_DIR", "./data/uploads")
	v.SetDefault("MAX_UPLOAD_SIZE", "10M")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TIME_ZONE", "UTC")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	return cfg, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// UploadLimit returns MAX_UPLOAD_SIZE in bytes.
func (c *Config) UploadLimit() int64 {
	n, _ := ParseSize(c.MaxUploadSize)
	return n
}

// BodyLimitBytes returns BODY_LIMIT in bytes.
func (c *Config) BodyLimitBytes() int64 {
	n, _ := ParseSize(c.BodyLimit)
	return n
}

// Location returns the TIME_ZONE location the calendar day is computed in.
// An empty or unknown zone is UTC.
func (c *Config) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate checks that the configuration is safe to run. Outside development
// a JWT_SECRET of at least 32 bytes is required; postgres storage requires
// DATABASE_URL.
func (c *Config) Validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE is %q", StoragePostgres)
		}
	case StorageMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORAGE %q is not allowed in production", StorageMemory)
		}
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage)
	}

	if !c.IsDev() && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET of at least 32 bytes is required when ENV is %q", c.Env)
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL)
	}
	if !identPattern.MatchString(c.DBSchema) {
		return fmt.Errorf("DB_SCHEMA %q is not a valid identifier", c.DBSchema)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := ParseSize(c.MaxUploadSize); err != nil {
		return fmt.Errorf("MAX_UPLOAD_SIZE: %w", err)
	}
	if _, err := ParseSize(c.BodyLimit); err != nil {
		return fmt.Errorf("BODY_LIMIT: %w", err)
	}
	if c.UploadDir == "" {
		return errors.New("UPLOAD_DIR is required")
	}
	if c.TimeZone != "" {
		if _, err := time.LoadLocation(c.TimeZone); err != nil {
			return fmt.Errorf("TIME_ZONE: %w", err)
		}
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// ParseSize parses a human-readable size such as "1M", "512K" or "10MB".
// A bare number is bytes.
func ParseSize(s string) (int64, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	u = strings.TrimSuffix(u, "B")
	var mult int64 = 1
	switch {
	case strings.HasSuffix(u, "G"):
		mult, u = 1<<30, strings.TrimSuffix(u, "G")
	case strings.HasSuffix(u, "M"):
		mult, u = 1<<20, strings.TrimSuffix(u, "M")
	case strings.HasSuffix(u, "K"):
		mult, u = 1<<10, strings.TrimSuffix(u, "K")
	}
	n, err := strconv.ParseInt(u, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * mult, nil
}
