// internal/config/file.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/askdba/dbquery-skill/internal/util"
)

// FileConfig represents the structure of a configuration file.
type FileConfig struct {
	// Database connections served by the in-process gateway
	Connections map[string]FileConnectionConfig `yaml:"connections" json:"connections"`

	// Remote gateway
	Gateway FileGatewayConfig `yaml:"gateway" json:"gateway"`

	// Admission policy
	Policy FilePolicyConfig `yaml:"policy" json:"policy"`

	// Per-skill limits
	Limits FileLimitsConfig `yaml:"limits" json:"limits"`

	// Connection pool settings
	Pool FilePoolConfig `yaml:"pool" json:"pool"`

	// Logging settings
	Logging FileLoggingConfig `yaml:"logging" json:"logging"`

	// HTTP/REST API settings
	HTTP FileHTTPConfig `yaml:"http" json:"http"`
}

// FileConnectionConfig represents a connection in the config file.
type FileConnectionConfig struct {
	Driver      string `yaml:"driver,omitempty" json:"driver,omitempty"`
	DSN         string `yaml:"dsn" json:"dsn"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	ReadOnly    bool   `yaml:"read_only" json:"read_only"`
	SSL         string `yaml:"ssl,omitempty" json:"ssl,omitempty"` // "true", "false", "skip-verify", "preferred"; MySQL only
}

// FileGatewayConfig points the skill at a remote gateway.
type FileGatewayConfig struct {
	URL      string `yaml:"url,omitempty" json:"url,omitempty"`
	TokenEnv string `yaml:"token_env,omitempty" json:"token_env,omitempty"`
}

// FilePolicyConfig represents admission settings in the config file.
type FilePolicyConfig struct {
	AllowedDatabases []string `yaml:"allowed_databases,omitempty" json:"allowed_databases,omitempty"`
	StrictParser     bool     `yaml:"strict_parser" json:"strict_parser"`
	CheckParams      bool     `yaml:"check_params" json:"check_params"`
}

// FileLimitsConfig represents per-skill limits in the config file.
type FileLimitsConfig struct {
	TimeoutMs  int     `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
	MaxRows    int     `yaml:"max_rows,omitempty" json:"max_rows,omitempty"`
	MaxCostUSD float64 `yaml:"max_cost_usd,omitempty" json:"max_cost_usd,omitempty"`
}

// FilePoolConfig tunes the database/sql pool of every connection.
type FilePoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes" json:"conn_max_lifetime_minutes"`
	ConnMaxIdleTimeMinutes int `yaml:"conn_max_idle_time_minutes" json:"conn_max_idle_time_minutes"`
	PingTimeoutSeconds     int `yaml:"ping_timeout_seconds" json:"ping_timeout_seconds"`
}

// FileLoggingConfig covers the process log, the audit trail and token
// accounting.
type FileLoggingConfig struct {
	JSONFormat    bool   `yaml:"json_format" json:"json_format"`
	AuditLogPath  string `yaml:"audit_log_path,omitempty" json:"audit_log_path,omitempty"`
	TokenTracking bool   `yaml:"token_tracking" json:"token_tracking"`
	TokenModel    string `yaml:"token_model,omitempty" json:"token_model,omitempty"`
}

// FileHTTPConfig configures the REST surface.
type FileHTTPConfig struct {
	Enabled               bool                `yaml:"enabled" json:"enabled"`
	Port                  int                 `yaml:"port" json:"port"`
	RequestTimeoutSeconds int                 `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
	RateLimit             FileRateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// FileRateLimitConfig is the per-client token bucket. RPS may be fractional.
type FileRateLimitConfig struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	RPS     float64 `yaml:"rps" json:"rps"`
	Burst   int     `yaml:"burst" json:"burst"`
}

// ConfigFilePath is set by the --config flag and wins over every other
// location.
var ConfigFilePath string

const appName = "dbquery-skill"

var configExtensions = []string{"yaml", "yml", "json"}

// configCandidates lists the places a config file may live, highest
// precedence first: --config, DBQUERY_CONFIG, the working directory, the
// user config directory and /etc.
func configCandidates() []string {
	if ConfigFilePath != "" {
		return []string{ConfigFilePath}
	}
	if envPath := os.Getenv("DBQUERY_CONFIG"); envPath != "" {
		return []string{envPath}
	}

	var out []string
	for _, ext := range configExtensions {
		out = append(out, appName+"."+ext)
	}
	dirs := []string{filepath.Join("/etc", appName)}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append([]string{filepath.Join(home, ".config", appName)}, dirs...)
	}
	for _, dir := range dirs {
		for _, ext := range configExtensions {
			out = append(out, filepath.Join(dir, "config."+ext))
		}
	}
	return out
}

// FindConfigFile returns the first config file that exists, or "". An
// explicit path (flag or env) is returned as given so a typo surfaces as a
// read error instead of silently falling back.
func FindConfigFile() string {
	candidates := configCandidates()
	if ConfigFilePath != "" || os.Getenv("DBQUERY_CONFIG") != "" {
		return candidates[0]
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

type decodeFunc func([]byte, interface{}) error

func decodersFor(path string) []decodeFunc {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return []decodeFunc{yaml.Unmarshal}
	case ".json":
		return []decodeFunc{json.Unmarshal}
	default:
		return []decodeFunc{yaml.Unmarshal, json.Unmarshal}
	}
}

// LoadConfigFile reads a YAML or JSON config file. Files without a known
// extension are tried as YAML, then JSON.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var lastErr error
	for _, decode := range decodersFor(path) {
		// Fresh target per attempt so a partial decode cannot leak.
		var fc FileConfig
		if lastErr = decode(data, &fc); lastErr == nil {
			return &fc, nil
		}
	}
	return nil, fmt.Errorf("failed to parse config file %s: %w", filepath.Base(path), lastErr)
}

// ValidateConfigFile checks a config file without opening any connection.
func ValidateConfigFile(path string) error {
	fc, err := LoadConfigFile(path)
	if err != nil {
		return err
	}
	if len(fc.Connections) == 0 && fc.Gateway.URL == "" {
		return fmt.Errorf("no connections or gateway url defined in config file")
	}
	if fc.Limits.TimeoutMs < 0 || fc.Limits.MaxRows < 0 || fc.Limits.MaxCostUSD < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	return fc.ToConfig().Validate()
}

// overrideInt copies v into dst when it is positive.
func overrideInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// overrideDuration copies n units into dst when n is positive.
func overrideDuration(dst *time.Duration, n int, unit time.Duration) {
	if n > 0 {
		*dst = time.Duration(n) * unit
	}
}

// connectionOrder sorts names with "default" first.
func connectionOrder(conns map[string]FileConnectionConfig) []string {
	names := make([]string, 0, len(conns))
	for name := range conns {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if (names[i] == "default") != (names[j] == "default") {
			return names[i] == "default"
		}
		return names[i] < names[j]
	})
	return names
}

// ToConfig layers the file over Default(). Environment variables are
// applied afterwards by Load.
func (fc *FileConfig) ToConfig() *Config {
	cfg := Default()

	cfg.GatewayURL = strings.TrimSpace(fc.Gateway.URL)
	if env := strings.TrimSpace(fc.Gateway.TokenEnv); env != "" {
		cfg.GatewayTokenEnv = env
	}

	cfg.AllowedDatabases = append([]string(nil), fc.Policy.AllowedDatabases...)
	cfg.StrictParser = fc.Policy.StrictParser
	cfg.CheckParams = fc.Policy.CheckParams

	cfg.TimeoutMs = fc.Limits.TimeoutMs
	cfg.MaxRows = fc.Limits.MaxRows
	cfg.MaxCostUSD = fc.Limits.MaxCostUSD

	overrideInt(&cfg.MaxOpenConns, fc.Pool.MaxOpenConns)
	overrideInt(&cfg.MaxIdleConns, fc.Pool.MaxIdleConns)
	overrideDuration(&cfg.ConnMaxLifetime, fc.Pool.ConnMaxLifetimeMinutes, time.Minute)
	overrideDuration(&cfg.ConnMaxIdleTime, fc.Pool.ConnMaxIdleTimeMinutes, time.Minute)
	overrideDuration(&cfg.PingTimeout, fc.Pool.PingTimeoutSeconds, time.Second)

	cfg.JSONLogging = fc.Logging.JSONFormat
	cfg.AuditLogPath = fc.Logging.AuditLogPath
	cfg.TokenTracking = fc.Logging.TokenTracking
	if m := strings.TrimSpace(fc.Logging.TokenModel); m != "" {
		cfg.TokenModel = m
	}

	cfg.HTTPMode = fc.HTTP.Enabled
	overrideInt(&cfg.HTTPPort, fc.HTTP.Port)
	overrideDuration(&cfg.HTTPRequestTimeout, fc.HTTP.RequestTimeoutSeconds, time.Second)
	cfg.RateLimitEnabled = fc.HTTP.RateLimit.Enabled
	if fc.HTTP.RateLimit.RPS > 0 {
		cfg.RateLimitRPS = fc.HTTP.RateLimit.RPS
	}
	overrideInt(&cfg.RateLimitBurst, fc.HTTP.RateLimit.Burst)

	for _, name := range connectionOrder(fc.Connections) {
		c := fc.Connections[name]
		cfg.Connections = append(cfg.Connections, ConnectionConfig{
			Name:        name,
			Driver:      c.Driver,
			DSN:         c.DSN,
			Description: c.Description,
			ReadOnly:    c.ReadOnly,
			SSL:         c.SSL,
		})
	}
	return cfg
}

// FromConfig is the inverse of ToConfig. DSN passwords are masked and the
// gateway token is never included, only the variable it is read from.
func FromConfig(cfg *Config) *FileConfig {
	fc := &FileConfig{
		Connections: make(map[string]FileConnectionConfig, len(cfg.Connections)),
		Gateway:     FileGatewayConfig{URL: cfg.GatewayURL, TokenEnv: cfg.GatewayTokenEnv},
		Policy: FilePolicyConfig{
			AllowedDatabases: cfg.AllowedDatabases,
			StrictParser:     cfg.StrictParser,
			CheckParams:      cfg.CheckParams,
		},
		Limits: FileLimitsConfig{TimeoutMs: cfg.TimeoutMs, MaxRows: cfg.MaxRows, MaxCostUSD: cfg.MaxCostUSD},
	}

	fc.Pool.MaxOpenConns = cfg.MaxOpenConns
	fc.Pool.MaxIdleConns = cfg.MaxIdleConns
	fc.Pool.ConnMaxLifetimeMinutes = int(cfg.ConnMaxLifetime / time.Minute)
	fc.Pool.ConnMaxIdleTimeMinutes = int(cfg.ConnMaxIdleTime / time.Minute)
	fc.Pool.PingTimeoutSeconds = int(cfg.PingTimeout / time.Second)

	fc.Logging.JSONFormat = cfg.JSONLogging
	fc.Logging.AuditLogPath = cfg.AuditLogPath
	fc.Logging.TokenTracking = cfg.TokenTracking
	fc.Logging.TokenModel = cfg.TokenModel

	fc.HTTP.Enabled = cfg.HTTPMode
	fc.HTTP.Port = cfg.HTTPPort
	fc.HTTP.RequestTimeoutSeconds = int(cfg.HTTPRequestTimeout / time.Second)
	fc.HTTP.RateLimit = FileRateLimitConfig{Enabled: cfg.RateLimitEnabled, RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst}

	for _, c := range cfg.Connections {
		fc.Connections[c.Name] = FileConnectionConfig{
			Driver:      c.Driver,
			DSN:         util.MaskDSN(c.DSN),
			Description: c.Description,
			ReadOnly:    c.ReadOnly,
			SSL:         c.SSL,
		}
	}
	return fc
}

// PrintConfig renders the effective configuration as YAML with secrets
// masked.
func PrintConfig(cfg *Config) string {
	data, err := yaml.Marshal(FromConfig(cfg))
	if err != nil {
		return fmt.Sprintf("# failed to render config: %v\n", err)
	}
	return string(data)
}

// tlsModes maps the ssl setting onto a go-sql-driver tls value. Empty means
// leave the DSN alone; unknown settings fall back to verified TLS.
var tlsModes = map[string]string{
	"":            "",
	"false":       "",
	"0":           "",
	"true":        "true",
	"1":           "true",
	"skip-verify": "skip-verify",
	"preferred":   "preferred",
}

// ApplySSLToDSN appends tls=<mode> to a MySQL DSN. A DSN whose query string
// already sets tls is returned unchanged.
func ApplySSLToDSN(dsn, ssl string) string {
	mode, known := tlsModes[strings.ToLower(strings.TrimSpace(ssl))]
	if !known {
		mode = "true"
	}
	if mode == "" {
		return dsn
	}

	sep := "?"
	if q := strings.Index(dsn, "?"); q >= 0 {
		// Only the query string counts; a password may contain "tls=".
		if strings.Contains(dsn[q:], "tls=") {
			return dsn
		}
		sep = "&"
	}
	return dsn + sep + "tls=" + mode
}
