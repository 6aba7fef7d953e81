package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig holds base configuration shared by every service
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
	// MetricsAddr is the listen address for the Prometheus scrape endpoint
	// on headless services. Empty disables the listener; the API server
	// exposes /metrics on its own port instead.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// IntakeConfig holds bounded intake queue settings. LowWaterMark is the
// depth at which a paused fetcher is allowed to resume; it must be strictly
// below Capacity to provide hysteresis.
type IntakeConfig struct {
	Capacity     int `mapstructure:"capacity"`
	LowWaterMark int `mapstructure:"low_water_mark"`
}

// FetchConfig selects and tunes the active fetch strategy.
// Exactly one strategy runs per deployment.
type FetchConfig struct {
	Mode         string        `mapstructure:"mode"`       // "localfs" or "poll"
	InboxDir     string        `mapstructure:"inbox_dir"`  // localfs: watched directory
	ArchiveDir   string        `mapstructure:"archive_dir"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Facilities   []string      `mapstructure:"facilities"`
	FanOutLimit  int           `mapstructure:"fan_out_limit"`
}

// WorkerConfig holds ingestion worker settings
type WorkerConfig struct {
	Count          int           `mapstructure:"count"`
	DocumentBudget time.Duration `mapstructure:"document_budget"`
}

// AckConfig holds acknowledger settings. Disabled by default.
type AckConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxRetries int  `mapstructure:"max_retries"`
}

// NATSConfig holds NATS JetStream configuration for the acknowledger
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// RefreshConfig holds aggregate maintainer settings
type RefreshConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	CycleCap   int           `mapstructure:"cycle_cap"`
	MonthsBack int           `mapstructure:"months_back"`
	SampleSize int           `mapstructure:"sample_size"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// AuthConfig holds administrative surface authentication configuration
type AuthConfig struct {
	JWTPublicKey   string   `mapstructure:"jwt_public_key"`
	ReadAPIKeys    []string `mapstructure:"read_api_keys"`
	OperateAPIKeys []string `mapstructure:"operate_api_keys"`
	AdminAPIKeys   []string `mapstructure:"admin_api_keys"`
}

// IngestorConfig holds configuration for the ingestor service
type IngestorConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	Intake     IntakeConfig   `mapstructure:"intake"`
	Fetch      FetchConfig    `mapstructure:"fetch"`
	Worker     WorkerConfig   `mapstructure:"worker"`
	Ack        AckConfig      `mapstructure:"ack"`
	NATS       NATSConfig     `mapstructure:"nats"`
}

// RefresherConfig holds configuration for the aggregate refresher service
type RefresherConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	Refresh    RefreshConfig  `mapstructure:"refresh"`
}

// APIConfig holds configuration for the administrative API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	Server     ServerConfig   `mapstructure:"server"`
	Auth       AuthConfig     `mapstructure:"auth"`
	Refresh    RefreshConfig  `mapstructure:"refresh"`
}

// LoadIngestorConfig loads configuration for the ingestor service
func LoadIngestorConfig(configFile string, envPath string) (*IngestorConfig, error) {
	v := configureViper("ingestor", configFile, envPath)

	setDatabaseDefaults(v)
	v.SetDefault("intake.capacity", 256)
	v.SetDefault("intake.low_water_mark", 64)
	v.SetDefault("fetch.mode", "localfs")
	v.SetDefault("fetch.inbox_dir", "inbox")
	v.SetDefault("fetch.archive_dir", "archive")
	v.SetDefault("fetch.poll_interval", "1m")
	v.SetDefault("fetch.fan_out_limit", 4)
	v.SetDefault("worker.count", 8)
	v.SetDefault("worker.document_budget", "2m")
	v.SetDefault("ack.enabled", false)
	v.SetDefault("ack.max_retries", 3)
	v.SetDefault("nats.stream_name", "CLAIMS_ACKS")
	v.SetDefault("nats.subject_prefix", "claims.ack")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg IngestorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Intake.LowWaterMark >= cfg.Intake.Capacity {
		return nil, errors.New("intake.low_water_mark must be below intake.capacity")
	}

	return &cfg, nil
}

// LoadRefresherConfig loads configuration for the refresher service
func LoadRefresherConfig(configFile string, envPath string) (*RefresherConfig, error) {
	v := configureViper("refresher", configFile, envPath)

	setDatabaseDefaults(v)
	setRefreshDefaults(v)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg RefresherConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.Host == "" {
		return nil, errors.New("database.host is required")
	}
	if cfg.Database.DBName == "" {
		return nil, errors.New("database.dbname is required")
	}

	return &cfg, nil
}

// LoadAPIConfig loads configuration for the administrative API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	setDatabaseDefaults(v)
	setRefreshDefaults(v)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg APIConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDatabaseDefaults(v *viper.Viper) {
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "10m")
}

func setRefreshDefaults(v *viper.Viper) {
	v.SetDefault("refresh.interval", "15m")
	v.SetDefault("refresh.cycle_cap", 5)
	v.SetDefault("refresh.months_back", 3)
	v.SetDefault("refresh.sample_size", 25)
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// configureViper returns a viper instance with the config file and
// environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	loadEnv(envPath, service)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("CLAIMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables.
// Required for viper to map env vars to config struct fields when no
// config file exists.
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// Intake queue
		"intake.capacity",
		"intake.low_water_mark",
		// Fetch
		"fetch.mode",
		"fetch.inbox_dir",
		"fetch.archive_dir",
		"fetch.poll_interval",
		"fetch.facilities",
		"fetch.fan_out_limit",
		// Workers
		"worker.count",
		"worker.document_budget",
		// Acknowledger
		"ack.enabled",
		"ack.max_retries",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.subject_prefix",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Refresh
		"refresh.interval",
		"refresh.cycle_cap",
		"refresh.months_back",
		"refresh.sample_size",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Auth
		"auth.jwt_public_key",
		"auth.read_api_keys",
		"auth.operate_api_keys",
		"auth.admin_api_keys",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
