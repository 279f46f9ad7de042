package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig holds HTTP bind and transport settings.
type ServerConfig struct {
	Addr         string
	BasePath     string
	PreferIPv6   bool
	AuthFilePath string
	TLSCertPath  string
	TLSKeyPath   string
	TLSAutoGen   bool
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// RunnerConfig holds execution engine timing settings.
type RunnerConfig struct {
	TaskTimeout      time.Duration
	ConditionTimeout time.Duration
	ShutdownGrace    time.Duration
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server ServerConfig
	Log    LogConfig
	Runner RunnerConfig

	DBPath string
}

const (
	defaultAddr             = "0.0.0.0:7070"
	defaultLogLevel         = "info"
	defaultTaskTimeout      = 900 * time.Second
	defaultConditionTimeout = 60 * time.Second
	defaultShutdownGrace    = 30 * time.Second
)

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		lower := strings.ToLower(val)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse parses command line flags and environment variables into Config.
// Priority: CLI flags > Environment variables > .env file > defaults
func Parse() (*Config, error) {
	// Load .env file if exists (silent fail if not present)
	// Check multiple locations: current directory, then config directory
	envFiles := []string{".env"}
	if configDir, err := os.UserConfigDir(); err == nil {
		envFiles = append(envFiles, filepath.Join(configDir, "taskscheduler", ".env"))
	}
	_ = godotenv.Load(envFiles...) // Ignore error - file is optional

	dbPath, err := defaultDBPath()
	if err != nil {
		return nil, fmt.Errorf("resolve default db path: %w", err)
	}

	// Build config from environment variables with defaults
	cfg := &Config{
		Server: ServerConfig{
			Addr:         getEnvString("TASKSCHEDULER_ADDR", defaultAddr),
			BasePath:     getEnvString("TASKSCHEDULER_BASE_PATH", "/"),
			PreferIPv6:   getEnvBool("TASKSCHEDULER_IPV6", false),
			AuthFilePath: getEnvString("TASKSCHEDULER_AUTH_FILE", ""),
			TLSCertPath:  getEnvString("TASKSCHEDULER_TLS_CERT", ""),
			TLSKeyPath:   getEnvString("TASKSCHEDULER_TLS_KEY", ""),
			TLSAutoGen:   getEnvBool("TASKSCHEDULER_TLS_AUTOGEN", false),
		},
		Log: LogConfig{
			Level: getEnvString("TASKSCHEDULER_LOG_LEVEL", defaultLogLevel),
		},
		Runner: RunnerConfig{
			TaskTimeout:      getEnvDuration("TASKSCHEDULER_TASK_TIMEOUT", defaultTaskTimeout),
			ConditionTimeout: getEnvDuration("TASKSCHEDULER_CONDITION_TIMEOUT", defaultConditionTimeout),
			ShutdownGrace:    getEnvDuration("TASKSCHEDULER_SHUTDOWN_GRACE", defaultShutdownGrace),
		},
		DBPath: getEnvString("TASKSCHEDULER_DB_PATH", dbPath),
	}

	// Define CLI flags (these will override environment variables)
	var addr, logLevel, basePath, authFile, tlsCert, tlsKey, dbPathFlag string
	var preferIPv6, tlsAutoGen bool
	var taskTimeout, conditionTimeout, shutdownGrace time.Duration

	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides env)")
	flag.StringVar(&dbPathFlag, "db-path", "", "Path to the SQLite database file")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&basePath, "base-path", "", "URL prefix for the HTTP API")
	flag.BoolVar(&preferIPv6, "ipv6", false, "Prefer an IPv6 wildcard listen address")
	flag.StringVar(&authFile, "auth-file", "", "Path to a Basic Auth credentials file")
	flag.StringVar(&tlsCert, "tls-cert", "", "TLS certificate path")
	flag.StringVar(&tlsKey, "tls-key", "", "TLS key path")
	flag.BoolVar(&tlsAutoGen, "tls-autogen", false, "Auto-generate a self-signed TLS certificate")
	flag.DurationVar(&taskTimeout, "task-timeout", 0, "Wall-clock timeout for a task run")
	flag.DurationVar(&conditionTimeout, "condition-timeout", 0, "Wall-clock timeout for a condition probe")
	flag.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")

	flag.Parse()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if dbPathFlag != "" {
		cfg.DBPath = dbPathFlag
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if basePath != "" {
		cfg.Server.BasePath = basePath
	}
	if authFile != "" {
		cfg.Server.AuthFilePath = authFile
	}
	if tlsCert != "" {
		cfg.Server.TLSCertPath = tlsCert
	}
	if tlsKey != "" {
		cfg.Server.TLSKeyPath = tlsKey
	}
	if taskTimeout > 0 {
		cfg.Runner.TaskTimeout = taskTimeout
	}
	if conditionTimeout > 0 {
		cfg.Runner.ConditionTimeout = conditionTimeout
	}
	// Bool flags and shutdown-grace apply only when explicitly set (flag.Visit)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "ipv6":
			cfg.Server.PreferIPv6 = preferIPv6
		case "tls-autogen":
			cfg.Server.TLSAutoGen = tlsAutoGen
		case "shutdown-grace":
			cfg.Runner.ShutdownGrace = shutdownGrace
		}
	})

	return cfg, nil
}

// StateDir returns the directory holding the database, used as the
// default location for an auto-generated TLS certificate too.
func (c *Config) StateDir() string {
	return filepath.Dir(c.DBPath)
}

func defaultDBPath() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(baseDir, "taskscheduler")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "taskscheduler.db"), nil
}
