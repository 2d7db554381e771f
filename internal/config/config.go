package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        int
	GinMode     string
	TLSCertFile string
	TLSKeyFile  string

	JWTSecret        string
	AdminTokenExpiry time.Duration
	// TokenTTL bounds the age of accepted Fernet tokens. Zero accepts any age.
	TokenTTL time.Duration

	StoreDriver string
	StateFile   string
	DataDir     string
	DatabaseURL string

	LogLevel  string
	LogFormat string

	AllowedOrigins  []string
	IngestRateLimit int
	ShutdownTimeout time.Duration

	// CreateUserAPIKey enables POST /create/new/user when set.
	CreateUserAPIKey string

	// BootstrapAdminUsername and BootstrapAdminPassword seed a superadmin
	// into a store that has no admins yet.
	BootstrapAdminUsername string
	BootstrapAdminPassword string
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Port:             10000,
		GinMode:          "release",
		AdminTokenExpiry: 24 * time.Hour,
		StoreDriver:      "memory",
		DataDir:          "./data",
		LogLevel:         "info",
		LogFormat:        "json",
		AllowedOrigins:   []string{"*"},
		IngestRateLimit:  120,
		ShutdownTimeout:  10 * time.Second,
	}

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}

	cfg.JWTSecret = env.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}

	if raw := env.Getenv("GIN_MODE"); raw != "" {
		cfg.GinMode = raw
	}

	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")

	var err error
	if cfg.AdminTokenExpiry, err = seconds(env, "ADMIN_TOKEN_EXPIRY_SECONDS", cfg.AdminTokenExpiry, false); err != nil {
		return Config{}, err
	}
	if cfg.TokenTTL, err = seconds(env, "TOKEN_TTL_SECONDS", 0, true); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = seconds(env, "SHUTDOWN_TIMEOUT_SECONDS", cfg.ShutdownTimeout, false); err != nil {
		return Config{}, err
	}

	if raw := env.Getenv("STORE_DRIVER"); raw != "" {
		cfg.StoreDriver = strings.ToLower(raw)
	}
	switch cfg.StoreDriver {
	case "memory", "badger":
	case "postgres":
		if env.Getenv("DATABASE_URL") == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return Config{}, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}
	cfg.StateFile = env.Getenv("STATE_FILE")
	if raw := env.Getenv("DATA_DIR"); raw != "" {
		cfg.DataDir = raw
	}
	cfg.DatabaseURL = env.Getenv("DATABASE_URL")

	if raw := env.Getenv("LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := env.Getenv("LOG_FORMAT"); raw != "" {
		cfg.LogFormat = raw
	}

	if raw := env.Getenv("ALLOWED_ORIGINS"); raw != "" {
		cfg.AllowedOrigins = nil
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if raw := env.Getenv("INGEST_RATE_LIMIT"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid INGEST_RATE_LIMIT")
		}
		cfg.IngestRateLimit = n
	}

	cfg.CreateUserAPIKey = env.Getenv("CREATE_USER_API_KEY")

	cfg.BootstrapAdminUsername = env.Getenv("ADMIN_BOOTSTRAP_USERNAME")
	cfg.BootstrapAdminPassword = env.Getenv("ADMIN_BOOTSTRAP_PASSWORD")
	if (cfg.BootstrapAdminUsername == "") != (cfg.BootstrapAdminPassword == "") {
		return Config{}, fmt.Errorf("ADMIN_BOOTSTRAP_USERNAME and ADMIN_BOOTSTRAP_PASSWORD must be set together")
	}
	if cfg.BootstrapAdminPassword != "" && len(cfg.BootstrapAdminPassword) < 8 {
		return Config{}, fmt.Errorf("ADMIN_BOOTSTRAP_PASSWORD must be at least 8 characters")
	}

	return cfg, nil
}

func seconds(env Env, key string, def time.Duration, allowZero bool) (time.Duration, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || (n == 0 && !allowZero) {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return time.Duration(n) * time.Second, nil
}

// TLSEnabled reports whether both certificate and key were configured.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
