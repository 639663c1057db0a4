package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names honored as overrides of the config file.
const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvMasterKey    = "MASTER_KEY"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// ErrMissingMasterKey indicates no credential master key is configured.
var ErrMissingMasterKey = errors.New("missing master key (set `master-key` in config file or env MASTER_KEY)")

// fileConfig maps the YAML fields of the config file.
type fileConfig struct {
	DatabaseDSN string `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	MasterKey string `yaml:"master-key"`
	JWT       struct {
		Secret string `yaml:"secret"`
		Expiry string `yaml:"expiry"` // Go duration string, e.g. "720h".
	} `yaml:"jwt"`
	Server Server `yaml:"server"`
}

// JWTConfig holds session-token secret and expiry settings.
type JWTConfig struct {
	Secret string
	Expiry time.Duration
}

// Server holds the service-level settings.
type Server struct {
	Port          int    `yaml:"port"`
	SweepSchedule string `yaml:"sweep-schedule"` // Cron spec for the reclamation sweep.
	RosterURL     string `yaml:"roster-url"`     // Contributor roster endpoint, optional.
	TOTPIssuer    string `yaml:"totp-issuer"`    // Issuer name in TOTP provisioning URIs.
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// defaultTOTPIssuer names this service in provisioning URIs when the
// config does not override it.
const defaultTOTPIssuer = "TeeAlloy"

// readFile parses the YAML config file; a missing file yields zero values.
func readFile(configPath string) (fileConfig, error) {
	var cfg fileConfig
	data, errRead := os.ReadFile(configPath)
	if errRead != nil {
		if os.IsNotExist(errRead) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return cfg, nil
}

// LoadDatabaseDSN reads the database DSN, env override first.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}
	cfg, err := readFile(configPath)
	if err != nil {
		return "", err
	}
	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// LoadMasterKey reads the credential master key, env override first.
func LoadMasterKey(configPath string) (string, error) {
	if key := strings.TrimSpace(os.Getenv(EnvMasterKey)); key != "" {
		return key, nil
	}
	cfg, err := readFile(configPath)
	if err != nil {
		return "", err
	}
	if key := strings.TrimSpace(cfg.MasterKey); key != "" {
		return key, nil
	}
	return "", ErrMissingMasterKey
}

// LoadJWTConfig loads session-token settings with defaults applied.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	result := JWTConfig{Expiry: defaultJWTExpiry}
	cfg, err := readFile(configPath)
	if err != nil {
		return result, err
	}
	if secret := strings.TrimSpace(cfg.JWT.Secret); secret != "" {
		result.Secret = secret
	}
	if raw := strings.TrimSpace(cfg.JWT.Expiry); raw != "" {
		if expiry, errParse := time.ParseDuration(raw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}
	if env := strings.TrimSpace(os.Getenv(EnvJWTSecret)); env != "" {
		result.Secret = env
	}
	if raw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); raw != "" {
		if expiry, errParse := time.ParseDuration(raw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}
	return result, nil
}

// LoadServer loads the service-level settings with defaults applied.
func LoadServer(configPath string) (Server, error) {
	cfg, err := readFile(configPath)
	if err != nil {
		return Server{}, err
	}
	server := cfg.Server
	if server.TOTPIssuer == "" {
		server.TOTPIssuer = defaultTOTPIssuer
	}
	return server, nil
}
