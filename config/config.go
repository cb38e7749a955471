// Package config loads vinledger settings from an optional YAML file, .env
// files and VINLEDGER_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/WilliamDuke02/databaseProject/pkg/database"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing"
	"github.com/WilliamDuke02/databaseProject/pkg/tracing/exporters"
)

const EnvPrefix = "VINLEDGER"

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// MigrationsPath loads migrations from disk instead of the embedded set.
	MigrationsPath   string `mapstructure:"migrations_path"`
	MigrationVersion uint   `mapstructure:"migration_version"`
	MigrationForce   int    `mapstructure:"migration_force"`
	AutoRollback     bool   `mapstructure:"auto_rollback"`
}

type PipelineConfig struct {
	SourcePath        string `mapstructure:"source_path"`
	DecoderPath       string `mapstructure:"decoder_path"`
	SourceEncoding    string `mapstructure:"source_encoding"`
	DecoderEncoding   string `mapstructure:"decoder_encoding"`
	WorkDir           string `mapstructure:"work_dir"`
	ExportDir         string `mapstructure:"export_dir"`
	Reset             bool   `mapstructure:"reset"`
	KeepIntermediates bool   `mapstructure:"keep_intermediates"`
	RemoveInputs      bool   `mapstructure:"remove_inputs"`
	CheckOffset       int    `mapstructure:"check_offset"`
	// Seed fixes the zip generator; 0 picks a random seed.
	Seed uint64 `mapstructure:"seed"`
}

type HTTPConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func (c HTTPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type TracingConfig struct {
	Enabled  bool                 `mapstructure:"enabled"`
	Exporter string               `mapstructure:"exporter"`
	OTLP     exporters.OTLPConfig `mapstructure:"otlp"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      string        `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	Compression  string        `mapstructure:"compression"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

var defaults = map[string]any{
	"app.name":        "vinledger",
	"app.environment": "development",

	"log.level":  "info",
	"log.pretty": false,

	"db.driver":            database.DriverSQLite,
	"db.dsn":               "data.db",
	"db.max_open_conns":    10,
	"db.max_idle_conns":    5,
	"db.conn_max_lifetime": "30m",
	"db.migrations_path":   "",
	"db.migration_version": 0,
	"db.migration_force":   0,
	"db.auto_rollback":     false,

	"pipeline.source_path":        "vins.csv",
	"pipeline.decoder_path":       "VIN_decoder.csv",
	"pipeline.source_encoding":    "utf-8",
	"pipeline.decoder_encoding":   "latin-1",
	"pipeline.work_dir":           "",
	"pipeline.export_dir":         ".",
	"pipeline.reset":              true,
	"pipeline.keep_intermediates": false,
	"pipeline.remove_inputs":      false,
	"pipeline.check_offset":       9,
	"pipeline.seed":               0,

	"http.host":             "0.0.0.0",
	"http.port":             8080,
	"http.read_timeout":     "15s",
	"http.write_timeout":    "60s",
	"http.shutdown_timeout": "10s",

	"tracing.enabled":       false,
	"tracing.exporter":      "log",
	"tracing.otlp.endpoint": "localhost:4317",
	"tracing.otlp.protocol": exporters.ProtocolGRPC,
	"tracing.otlp.insecure": true,
	"tracing.otlp.timeout":  "10s",

	"kafka.enabled":       false,
	"kafka.brokers":       "localhost:9092",
	"kafka.topic":         "vinledger.records",
	"kafka.batch_size":    100,
	"kafka.batch_timeout": "10ms",
	"kafka.required_acks": 1,
	"kafka.compression":   "snappy",

	"metrics.enabled": true,
	"metrics.path":    "/metrics",
}

// Load reads configFile (or vinledger.yaml in the working directory or
// config/ when empty) after loading .env files from envPath.
func Load(configFile, envPath string) (*Config, error) {
	v := New(configFile, envPath)
	if err := Read(v, configFile); err != nil {
		return nil, err
	}
	return Unmarshal(v)
}

// Read loads the config file into v. Only an explicitly named file has to
// exist.
func Read(v *viper.Viper, configFile string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// New returns a viper instance with defaults, env bindings and the config
// file location set. Callers may bind CLI flags before calling Unmarshal.
func New(configFile, envPath string) *viper.Viper {
	loadEnv(envPath)

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("vinledger")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows; defaults make every
	// key known so env vars work without a config file.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		return fmt.Errorf("db.driver must be %q or %q, got %q", database.DriverSQLite, database.DriverPostgres, c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Pipeline.CheckOffset < 0 {
		return fmt.Errorf("pipeline.check_offset must not be negative")
	}
	if c.Kafka.Enabled && (c.Kafka.Brokers == "" || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka.brokers and kafka.topic are required when kafka is enabled")
	}
	return nil
}

func (c *Config) Database() database.Config {
	return database.Config{
		Driver:          c.DB.Driver,
		DSN:             c.DB.DSN,
		MaxOpenConns:    c.DB.MaxOpenConns,
		MaxIdleConns:    c.DB.MaxIdleConns,
		ConnMaxLifetime: c.DB.ConnMaxLifetime,
	}
}

func (c *Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:     c.Tracing.Enabled,
		ServiceName: c.App.Name,
		Exporter:    c.Tracing.Exporter,
		OTLP:        c.Tracing.OTLP,
	}
}

// loadEnv applies .env then .env.local from envPath; later files win.
func loadEnv(envPath string) {
	for _, name := range []string{".env", ".env.local"} {
		_ = godotenv.Overload(filepath.Join(envPath, name))
	}
}
