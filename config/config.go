// Package config provides configuration management for the mentionkit CLI.
// It supports loading configuration from YAML files, environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// FetcherKind selects the backend that candidates are fetched from.
type FetcherKind string

const (
	// FetcherGRPC calls the mention service over gRPC.
	FetcherGRPC FetcherKind = "grpc"
	// FetcherPostgres queries the friendship tables directly.
	FetcherPostgres FetcherKind = "postgres"
	// FetcherFile reads a local YAML or JSON candidates file.
	FetcherFile FetcherKind = "file"
)

// Default configuration values.
const (
	DefaultServerAddress   = "localhost:50051"
	DefaultRPCMethod       = "/mentionkit.v1.MentionService/ListMentionCandidates"
	DefaultFetcher         = FetcherGRPC
	DefaultTimeout         = 10 * time.Second
	DefaultOutputFormat    = OutputFormatText
	DefaultConfigDir       = ".mentionkit"
	DefaultConfigFile      = "config.yaml"
	DefaultCertDir         = ".config/mentionkit/certs"
	DefaultRedisTTL        = 5 * time.Minute
	DefaultRedisKeyPrefix  = "mentionkit:candidates:"
	DefaultFallbackMessage = "Could not load people to mention"
)

// TLSConfig holds client TLS settings.
type TLSConfig struct {
	// Enabled indicates whether TLS should be used for connections.
	Enabled bool `yaml:"enabled"`

	// CACert is the path to the CA certificate for verifying the server.
	CACert string `yaml:"ca_cert,omitempty"`

	// ClientCert is the path to the client certificate for mTLS authentication.
	ClientCert string `yaml:"client_cert,omitempty"`

	// ClientKey is the path to the client private key for mTLS authentication.
	ClientKey string `yaml:"client_key,omitempty"`

	// CertDir is a directory containing ca.crt, client.crt, and client.key files.
	// If set, it provides default paths for CACert, ClientCert, and ClientKey.
	CertDir string `yaml:"cert_dir,omitempty"`

	// SkipVerify disables server certificate verification (insecure, for testing only).
	SkipVerify bool `yaml:"skip_verify,omitempty"`
}

// ResolvePaths expands ~ in paths and sets defaults from CertDir if configured.
func (c *TLSConfig) ResolvePaths() {
	if c.CertDir != "" {
		c.CertDir = expandPath(c.CertDir)
		if c.CACert == "" {
			c.CACert = filepath.Join(c.CertDir, "ca.crt")
		}
		if c.ClientCert == "" {
			c.ClientCert = filepath.Join(c.CertDir, "client.crt")
		}
		if c.ClientKey == "" {
			c.ClientKey = filepath.Join(c.CertDir, "client.key")
		}
	} else {
		c.CACert = expandPath(c.CACert)
		c.ClientCert = expandPath(c.ClientCert)
		c.ClientKey = expandPath(c.ClientKey)
	}
}

// HasClientCert reports whether a client certificate pair is configured.
func (c *TLSConfig) HasClientCert() bool {
	return c.ClientCert != "" && c.ClientKey != ""
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DatabaseConfig holds PostgreSQL settings shared by the postgres fetcher
// and the selection audit trail.
type DatabaseConfig struct {
	// URL is a full connection string. When set the other fields are ignored.
	URL string `yaml:"url,omitempty"`

	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Database string `yaml:"database,omitempty"`
	User     string `yaml:"user,omitempty"`

	// SSLMode is the SSL connection mode (disable, require, verify-ca, verify-full).
	SSLMode string `yaml:"sslmode,omitempty"`

	// SSLRootCert is the path to the SSL root certificate file.
	// Defaults to ~/.postgresql/root.crt if not specified and sslmode requires verification.
	SSLRootCert string `yaml:"sslrootcert,omitempty"`

	// MaxConns caps the pgx pool size. Zero uses the pool default.
	MaxConns int32 `yaml:"max_conns,omitempty"`
}

// ConnectionString returns the PostgreSQL connection string.
// Returns empty string if the database is not configured.
func (c *DatabaseConfig) ConnectionString() string {
	if c == nil {
		return ""
	}
	if c.URL != "" {
		return c.URL
	}
	if c.Host == "" || c.Database == "" || c.User == "" {
		return ""
	}

	port := c.Port
	if port == 0 {
		port = 5432
	}

	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "require"
	}

	connStr := fmt.Sprintf("host=%s port=%d dbname=%s user=%s sslmode=%s",
		c.Host, port, c.Database, c.User, sslmode)

	if sslmode == "verify-ca" || sslmode == "verify-full" {
		sslrootcert := c.SSLRootCert
		if sslrootcert == "" {
			if home, err := os.UserHomeDir(); err == nil {
				defaultCert := filepath.Join(home, ".postgresql", "root.crt")
				if _, err := os.Stat(defaultCert); err == nil {
					sslrootcert = defaultCert
				}
			}
		}
		if sslrootcert != "" {
			connStr += fmt.Sprintf(" sslrootcert=%s", expandPath(sslrootcert))
		}
	}

	return connStr
}

// IsConfigured returns true if a connection string can be built.
func (c *DatabaseConfig) IsConfigured() bool {
	return c.ConnectionString() != ""
}

// RedisConfig holds the candidate cache settings.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password,omitempty"`
	DB        int           `yaml:"db,omitempty"`
	TTL       time.Duration `yaml:"ttl,omitempty"`
	KeyPrefix string        `yaml:"key_prefix,omitempty"`
}

// IsConfigured returns true if a Redis address is set.
func (c *RedisConfig) IsConfigured() bool {
	return c != nil && c.Addr != ""
}

// GetTTL returns the cache TTL, defaulting to DefaultRedisTTL.
func (c *RedisConfig) GetTTL() time.Duration {
	if c == nil || c.TTL <= 0 {
		return DefaultRedisTTL
	}
	return c.TTL
}

// GetKeyPrefix returns the key prefix, defaulting to DefaultRedisKeyPrefix.
func (c *RedisConfig) GetKeyPrefix() string {
	if c == nil || c.KeyPrefix == "" {
		return DefaultRedisKeyPrefix
	}
	return c.KeyPrefix
}

// AuditConfig controls the selection audit trail.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// BufferSize is the number of selections held before a flush is forced.
	BufferSize int `yaml:"buffer_size,omitempty"`

	// SQLitePath stores the trail in a local SQLite file instead of the
	// Postgres database.
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// UsesSQLite reports whether the trail goes to a local SQLite file.
func (c *AuditConfig) UsesSQLite() bool {
	return c != nil && c.SQLitePath != ""
}

// CLIConfig holds the CLI configuration settings.
type CLIConfig struct {
	// Fetcher selects the candidate backend (grpc, postgres, file).
	Fetcher FetcherKind `yaml:"fetcher"`

	// ServerAddress is the address of the mention service (host:port).
	ServerAddress string `yaml:"server_address"`

	// RPCMethod is the full gRPC method name used to list candidates.
	RPCMethod string `yaml:"rpc_method,omitempty"`

	// Timeout bounds a single candidate fetch.
	Timeout time.Duration `yaml:"timeout"`

	// OutputFormat specifies the default output format for commands.
	OutputFormat OutputFormat `yaml:"output_format"`

	// FallbackMessage replaces empty fetch failure messages.
	FallbackMessage string `yaml:"fallback_message,omitempty"`

	// CandidatesFile is the YAML or JSON file read by the file fetcher.
	// Supports ~ for home directory expansion.
	CandidatesFile string `yaml:"candidates_file,omitempty"`

	// CandidatesWatch reloads CandidatesFile when it changes on disk.
	CandidatesWatch bool `yaml:"candidates_watch,omitempty"`

	// LogLevel sets the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level,omitempty"`

	// LogJSON switches log output to JSON.
	LogJSON bool `yaml:"log_json,omitempty"`

	// Debug enables verbose debug logging.
	Debug bool `yaml:"debug,omitempty"`

	// Insecure disables transport security (for development only).
	Insecure bool `yaml:"insecure,omitempty"`

	// Database holds PostgreSQL settings.
	Database *DatabaseConfig `yaml:"database,omitempty"`

	// Redis holds the optional candidate cache settings.
	Redis *RedisConfig `yaml:"redis,omitempty"`

	// Audit controls the selection audit trail.
	Audit *AuditConfig `yaml:"audit,omitempty"`

	// TLS contains the TLS/mTLS configuration settings.
	TLS TLSConfig `yaml:"tls"`
}

// DefaultConfig returns a CLIConfig with default values.
func DefaultConfig() *CLIConfig {
	return &CLIConfig{
		Fetcher:         DefaultFetcher,
		ServerAddress:   DefaultServerAddress,
		RPCMethod:       DefaultRPCMethod,
		Timeout:         DefaultTimeout,
		OutputFormat:    DefaultOutputFormat,
		FallbackMessage: DefaultFallbackMessage,
	}
}

// ConfigDir returns the configuration directory path.
// Uses $MENTIONKIT_CONFIG_DIR if set, otherwise ~/.mentionkit
func ConfigDir() (string, error) {
	if dir := os.Getenv("MENTIONKIT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads the CLI configuration from file and environment variables.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (~/.mentionkit/config.yaml or $MENTIONKIT_CONFIG_DIR/config.yaml)
// 3. Environment variables (MENTIONKIT_*)
func LoadConfig() (*CLIConfig, error) {
	cfg := DefaultConfig()

	configPath, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// configFile mirrors CLIConfig with durations as strings.
type configFile struct {
	Fetcher         FetcherKind     `yaml:"fetcher,omitempty"`
	ServerAddress   string          `yaml:"server_address,omitempty"`
	RPCMethod       string          `yaml:"rpc_method,omitempty"`
	Timeout         string          `yaml:"timeout,omitempty"`
	OutputFormat    OutputFormat    `yaml:"output_format,omitempty"`
	FallbackMessage string          `yaml:"fallback_message,omitempty"`
	CandidatesFile  string          `yaml:"candidates_file,omitempty"`
	CandidatesWatch bool            `yaml:"candidates_watch,omitempty"`
	LogLevel        string          `yaml:"log_level,omitempty"`
	LogJSON         bool            `yaml:"log_json,omitempty"`
	Debug           bool            `yaml:"debug,omitempty"`
	Insecure        bool            `yaml:"insecure,omitempty"`
	Database        *DatabaseConfig `yaml:"database,omitempty"`
	Redis           *redisFile      `yaml:"redis,omitempty"`
	Audit           *AuditConfig    `yaml:"audit,omitempty"`
	TLS             TLSConfig       `yaml:"tls,omitempty"`
}

type redisFile struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	TTL       string `yaml:"ttl,omitempty"`
	KeyPrefix string `yaml:"key_prefix,omitempty"`
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *CLIConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fileCfg configFile
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	if fileCfg.Fetcher != "" {
		cfg.Fetcher = fileCfg.Fetcher
	}
	if fileCfg.ServerAddress != "" {
		cfg.ServerAddress = fileCfg.ServerAddress
	}
	if fileCfg.RPCMethod != "" {
		cfg.RPCMethod = fileCfg.RPCMethod
	}
	if fileCfg.Timeout != "" {
		timeout, err := time.ParseDuration(fileCfg.Timeout)
		if err != nil {
			return fmt.Errorf("parsing timeout: %w", err)
		}
		cfg.Timeout = timeout
	}
	if fileCfg.OutputFormat != "" {
		cfg.OutputFormat = fileCfg.OutputFormat
	}
	if fileCfg.FallbackMessage != "" {
		cfg.FallbackMessage = fileCfg.FallbackMessage
	}
	if fileCfg.CandidatesFile != "" {
		cfg.CandidatesFile = fileCfg.CandidatesFile
	}
	cfg.CandidatesWatch = fileCfg.CandidatesWatch
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.Database != nil {
		cfg.Database = fileCfg.Database
	}
	if fileCfg.Redis != nil {
		r := &RedisConfig{
			Addr:      fileCfg.Redis.Addr,
			Password:  fileCfg.Redis.Password,
			DB:        fileCfg.Redis.DB,
			KeyPrefix: fileCfg.Redis.KeyPrefix,
		}
		if fileCfg.Redis.TTL != "" {
			ttl, err := time.ParseDuration(fileCfg.Redis.TTL)
			if err != nil {
				return fmt.Errorf("parsing redis ttl: %w", err)
			}
			r.TTL = ttl
		}
		cfg.Redis = r
	}
	if fileCfg.Audit != nil {
		cfg.Audit = fileCfg.Audit
	}
	cfg.LogJSON = fileCfg.LogJSON
	cfg.Debug = fileCfg.Debug
	cfg.Insecure = fileCfg.Insecure
	cfg.TLS = fileCfg.TLS

	return nil
}

func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "true" || v == "1"
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *CLIConfig) {
	if v := os.Getenv("MENTIONKIT_FETCHER"); v != "" {
		cfg.Fetcher = FetcherKind(v)
	}

	if v := os.Getenv("MENTIONKIT_SERVER_ADDRESS"); v != "" {
		cfg.ServerAddress = v
	}

	if v := os.Getenv("MENTIONKIT_RPC_METHOD"); v != "" {
		cfg.RPCMethod = v
	}

	if v := os.Getenv("MENTIONKIT_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = timeout
		}
	}

	if v := os.Getenv("MENTIONKIT_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}

	if v := os.Getenv("MENTIONKIT_CANDIDATES_FILE"); v != "" {
		cfg.CandidatesFile = v
	}

	if envBool("MENTIONKIT_CANDIDATES_WATCH") {
		cfg.CandidatesWatch = true
	}

	if v := os.Getenv("MENTIONKIT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if envBool("MENTIONKIT_LOG_JSON") {
		cfg.LogJSON = true
	}

	if envBool("MENTIONKIT_DEBUG") {
		cfg.Debug = true
	}

	if envBool("MENTIONKIT_INSECURE") {
		cfg.Insecure = true
	}

	if envBool("MENTIONKIT_TLS_ENABLED") {
		cfg.TLS.Enabled = true
	}
	if v := os.Getenv("MENTIONKIT_TLS_CA_CERT"); v != "" {
		cfg.TLS.CACert = v
	}
	if v := os.Getenv("MENTIONKIT_TLS_CLIENT_CERT"); v != "" {
		cfg.TLS.ClientCert = v
	}
	if v := os.Getenv("MENTIONKIT_TLS_CLIENT_KEY"); v != "" {
		cfg.TLS.ClientKey = v
	}
	if v := os.Getenv("MENTIONKIT_TLS_CERT_DIR"); v != "" {
		cfg.TLS.CertDir = v
	}
	if envBool("MENTIONKIT_TLS_SKIP_VERIFY") {
		cfg.TLS.SkipVerify = true
	}

	if v := os.Getenv("MENTIONKIT_DATABASE_URL"); v != "" {
		if cfg.Database == nil {
			cfg.Database = &DatabaseConfig{}
		}
		cfg.Database.URL = v
	}

	loadRedisFromEnv(cfg)

	if envBool("MENTIONKIT_AUDIT_ENABLED") {
		if cfg.Audit == nil {
			cfg.Audit = &AuditConfig{}
		}
		cfg.Audit.Enabled = true
	}
	if v := os.Getenv("MENTIONKIT_AUDIT_SQLITE"); v != "" {
		if cfg.Audit == nil {
			cfg.Audit = &AuditConfig{}
		}
		cfg.Audit.SQLitePath = v
	}
}

// loadRedisFromEnv overlays Redis environment variables.
func loadRedisFromEnv(cfg *CLIConfig) {
	addr := os.Getenv("MENTIONKIT_REDIS_ADDR")
	if addr == "" && cfg.Redis == nil {
		return
	}

	if cfg.Redis == nil {
		cfg.Redis = &RedisConfig{}
	}
	if addr != "" {
		cfg.Redis.Addr = addr
	}
	if v := os.Getenv("MENTIONKIT_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MENTIONKIT_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("MENTIONKIT_REDIS_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.Redis.TTL = ttl
		}
	}
}

// Validate checks that the configuration is valid.
func (c *CLIConfig) Validate() error {
	if !c.Fetcher.IsValid() {
		return fmt.Errorf("invalid fetcher: %q (must be grpc, postgres, or file)", c.Fetcher)
	}

	switch c.Fetcher {
	case FetcherGRPC:
		if c.ServerAddress == "" {
			return fmt.Errorf("server_address is required for the grpc fetcher")
		}
		if c.RPCMethod != "" && !strings.HasPrefix(c.RPCMethod, "/") {
			return fmt.Errorf("rpc_method must start with '/': %q", c.RPCMethod)
		}
	case FetcherFile:
		if c.CandidatesFile == "" {
			return fmt.Errorf("candidates_file is required for the file fetcher")
		}
	case FetcherPostgres:
		if !c.Database.IsConfigured() {
			return fmt.Errorf("database is required for the postgres fetcher")
		}
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}

	if c.Redis != nil && c.Redis.TTL < 0 {
		return fmt.Errorf("redis ttl must not be negative")
	}

	if c.Audit != nil && c.Audit.Enabled && !c.Audit.UsesSQLite() && !c.Database.IsConfigured() {
		return fmt.Errorf("audit requires database or audit.sqlite_path to be configured")
	}

	return nil
}

// IsValid checks if the fetcher kind is known.
func (k FetcherKind) IsValid() bool {
	switch k {
	case FetcherGRPC, FetcherPostgres, FetcherFile:
		return true
	default:
		return false
	}
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// toFile converts cfg to its on-disk shape.
func toFile(cfg *CLIConfig) configFile {
	fileCfg := configFile{
		Fetcher:         cfg.Fetcher,
		ServerAddress:   cfg.ServerAddress,
		RPCMethod:       cfg.RPCMethod,
		Timeout:         cfg.Timeout.String(),
		OutputFormat:    cfg.OutputFormat,
		FallbackMessage: cfg.FallbackMessage,
		CandidatesFile:  cfg.CandidatesFile,
		CandidatesWatch: cfg.CandidatesWatch,
		LogLevel:        cfg.LogLevel,
		LogJSON:         cfg.LogJSON,
		Debug:           cfg.Debug,
		Insecure:        cfg.Insecure,
		Database:        cfg.Database,
		Audit:           cfg.Audit,
		TLS:             cfg.TLS,
	}
	if cfg.Redis != nil {
		fileCfg.Redis = &redisFile{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}
		if cfg.Redis.TTL > 0 {
			fileCfg.Redis.TTL = cfg.Redis.TTL.String()
		}
	}
	return fileCfg
}

// Marshal renders cfg as it would be written to the config file.
func Marshal(cfg *CLIConfig) ([]byte, error) {
	fileCfg := toFile(cfg)
	data, err := yaml.Marshal(&fileCfg)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// SaveConfig saves the configuration to the config file.
func SaveConfig(cfg *CLIConfig) error {
	configDir, err := ConfigDir()
	if err != nil {
		return fmt.Errorf("getting config directory: %w", err)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, DefaultConfigFile)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
