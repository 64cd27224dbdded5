// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/askdba/dbquery-skill/internal/sqlgateway"
)

// Defaults for values not set by file or environment. Limit defaults live in
// the policy package; zero here means "use the policy default".
const (
	DefaultMaxOpenConns        = 10
	DefaultMaxIdleConns        = 5
	DefaultConnMaxLifetimeMins = 30
	DefaultConnMaxIdleTimeMins = 5
	DefaultPingTimeoutSecs     = 5
	DefaultHTTPPort            = 9306
	DefaultHTTPRequestTimeoutS = 60
	DefaultRateLimitRPS        = 100
	DefaultRateLimitBurst      = 200
	DefaultTokenModel          = "cl100k_base"
	DefaultGatewayTokenEnv     = "DBQUERY_GATEWAY_TOKEN"
)

// ConnectionConfig is a named database served by the in-process gateway.
type ConnectionConfig struct {
	Name        string `json:"name"`
	Driver      string `json:"driver,omitempty"`
	DSN         string `json:"dsn"`
	Description string `json:"description,omitempty"`
	ReadOnly    bool   `json:"read_only,omitempty"`
	SSL         string `json:"ssl,omitempty"`
}

// Config is the resolved runtime configuration.
type Config struct {
	Connections []ConnectionConfig

	// Remote gateway. When set it takes precedence over Connections.
	GatewayURL      string
	GatewayTokenEnv string
	GatewayToken    string

	AllowedDatabases []string
	StrictParser     bool
	CheckParams      bool

	TimeoutMs  int
	MaxRows    int
	MaxCostUSD float64

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration

	JSONLogging   bool
	AuditLogPath  string
	TokenTracking bool
	TokenModel    string

	HTTPMode           bool
	HTTPPort           int
	HTTPRequestTimeout time.Duration
	RateLimitEnabled   bool
	RateLimitRPS       float64
	RateLimitBurst     int
}

// Default returns a Config holding only defaults.
func Default() *Config {
	return &Config{
		GatewayTokenEnv:    DefaultGatewayTokenEnv,
		MaxOpenConns:       DefaultMaxOpenConns,
		MaxIdleConns:       DefaultMaxIdleConns,
		ConnMaxLifetime:    time.Duration(DefaultConnMaxLifetimeMins) * time.Minute,
		ConnMaxIdleTime:    time.Duration(DefaultConnMaxIdleTimeMins) * time.Minute,
		PingTimeout:        time.Duration(DefaultPingTimeoutSecs) * time.Second,
		TokenModel:         DefaultTokenModel,
		HTTPPort:           DefaultHTTPPort,
		HTTPRequestTimeout: time.Duration(DefaultHTTPRequestTimeoutS) * time.Second,
		RateLimitRPS:       DefaultRateLimitRPS,
		RateLimitBurst:     DefaultRateLimitBurst,
	}
}

// Load builds the configuration: defaults, then the config file if one is
// found, then DBQUERY_* environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := FindConfigFile(); path != "" {
		fc, err := LoadConfigFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fc.ToConfig()
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.GatewayToken = strings.TrimSpace(os.Getenv(cfg.GatewayTokenEnv))

	if len(cfg.AllowedDatabases) == 0 && cfg.GatewayURL == "" {
		for _, c := range cfg.Connections {
			cfg.AllowedDatabases = append(cfg.AllowedDatabases, c.Name)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	// DBQUERY_CONNECTIONS (JSON) replaces file connections; DBQUERY_DSN
	// replaces both with a single "default" connection.
	if raw := strings.TrimSpace(os.Getenv("DBQUERY_CONNECTIONS")); raw != "" {
		var conns []ConnectionConfig
		if err := json.Unmarshal([]byte(raw), &conns); err != nil {
			return fmt.Errorf("failed to parse DBQUERY_CONNECTIONS: %w", err)
		}
		cfg.Connections = conns
	}
	if dsn := strings.TrimSpace(os.Getenv("DBQUERY_DSN")); dsn != "" {
		cfg.Connections = []ConnectionConfig{{
			Name:   getEnvString("DBQUERY_DSN_NAME", "default"),
			Driver: strings.TrimSpace(os.Getenv("DBQUERY_DRIVER")),
			DSN:    dsn,
		}}
	}
	if ssl := strings.TrimSpace(os.Getenv("DBQUERY_SSL")); ssl != "" {
		for i := range cfg.Connections {
			if cfg.Connections[i].SSL == "" {
				cfg.Connections[i].SSL = ssl
			}
		}
	}

	cfg.GatewayURL = getEnvString("DBQUERY_GATEWAY_URL", cfg.GatewayURL)
	cfg.GatewayTokenEnv = getEnvString("DBQUERY_GATEWAY_TOKEN_ENV", cfg.GatewayTokenEnv)
	if list := os.Getenv("DBQUERY_ALLOWED_DATABASES"); strings.TrimSpace(list) != "" {
		cfg.AllowedDatabases = splitList(list)
	}
	cfg.StrictParser = getEnvBool("DBQUERY_STRICT_PARSER", cfg.StrictParser)
	cfg.CheckParams = getEnvBool("DBQUERY_CHECK_PARAMS", cfg.CheckParams)

	cfg.TimeoutMs = getEnvInt("DBQUERY_TIMEOUT_MS", cfg.TimeoutMs)
	cfg.MaxRows = getEnvInt("DBQUERY_MAX_ROWS", cfg.MaxRows)
	cfg.MaxCostUSD = getEnvFloat("DBQUERY_MAX_COST_USD", cfg.MaxCostUSD)

	cfg.MaxOpenConns = getEnvInt("DBQUERY_MAX_OPEN_CONNS", cfg.MaxOpenConns)
	cfg.MaxIdleConns = getEnvInt("DBQUERY_MAX_IDLE_CONNS", cfg.MaxIdleConns)
	if v := getEnvInt("DBQUERY_CONN_MAX_LIFETIME_MINUTES", 0); v > 0 {
		cfg.ConnMaxLifetime = time.Duration(v) * time.Minute
	}
	if v := getEnvInt("DBQUERY_CONN_MAX_IDLE_TIME_MINUTES", 0); v > 0 {
		cfg.ConnMaxIdleTime = time.Duration(v) * time.Minute
	}
	if v := getEnvInt("DBQUERY_PING_TIMEOUT_SECONDS", 0); v > 0 {
		cfg.PingTimeout = time.Duration(v) * time.Second
	}

	cfg.JSONLogging = getEnvBool("DBQUERY_JSON_LOGS", cfg.JSONLogging)
	cfg.AuditLogPath = getEnvString("DBQUERY_AUDIT_LOG", cfg.AuditLogPath)
	cfg.TokenTracking = getEnvBool("DBQUERY_TOKEN_TRACKING", cfg.TokenTracking)
	cfg.TokenModel = getEnvString("DBQUERY_TOKEN_MODEL", cfg.TokenModel)

	cfg.HTTPMode = getEnvBool("DBQUERY_HTTP", cfg.HTTPMode)
	cfg.HTTPPort = getEnvInt("DBQUERY_HTTP_PORT", cfg.HTTPPort)
	if v := getEnvInt("DBQUERY_HTTP_REQUEST_TIMEOUT_SECONDS", 0); v > 0 {
		cfg.HTTPRequestTimeout = time.Duration(v) * time.Second
	}
	cfg.RateLimitEnabled = getEnvBool("DBQUERY_RATE_LIMIT", cfg.RateLimitEnabled)
	cfg.RateLimitRPS = getEnvFloat("DBQUERY_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	cfg.RateLimitBurst = getEnvInt("DBQUERY_RATE_LIMIT_BURST", cfg.RateLimitBurst)
	return nil
}

// Validate checks that the configuration can serve requests.
func (c *Config) Validate() error {
	if c.GatewayURL == "" && len(c.Connections) == 0 {
		return fmt.Errorf("no database configured: set DBQUERY_DSN, DBQUERY_CONNECTIONS, DBQUERY_GATEWAY_URL or a config file")
	}
	seen := make(map[string]bool, len(c.Connections))
	for _, conn := range c.Connections {
		if strings.TrimSpace(conn.Name) == "" {
			return fmt.Errorf("connection with empty name")
		}
		if seen[conn.Name] {
			return fmt.Errorf("duplicate connection name %q", conn.Name)
		}
		seen[conn.Name] = true
		if strings.TrimSpace(conn.DSN) == "" {
			return fmt.Errorf("connection '%s' has empty DSN", conn.Name)
		}
		if _, err := sqlgateway.DialectFor(conn.Driver); err != nil {
			return fmt.Errorf("connection '%s': %w", conn.Name, err)
		}
	}
	return nil
}

// GatewayConnections converts Connections for the in-process gateway,
// applying the SSL setting to MySQL DSNs.
func (c *Config) GatewayConnections() []sqlgateway.ConnectionConfig {
	out := make([]sqlgateway.ConnectionConfig, 0, len(c.Connections))
	for _, conn := range c.Connections {
		dsn := conn.DSN
		if d, err := sqlgateway.DialectFor(conn.Driver); err == nil && d.Name == "mysql" {
			dsn = ApplySSLToDSN(dsn, conn.SSL)
		}
		out = append(out, sqlgateway.ConnectionConfig{
			Name:        conn.Name,
			Driver:      conn.Driver,
			DSN:         dsn,
			Description: conn.Description,
			ReadOnly:    conn.ReadOnly,
		})
	}
	return out
}

// Pool returns the connection pool settings.
func (c *Config) Pool() sqlgateway.PoolConfig {
	return sqlgateway.PoolConfig{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		PingTimeout:     c.PingTimeout,
	}
}

func getEnvString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func getEnvBool(key string, def bool) bool {
	val := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch val {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
