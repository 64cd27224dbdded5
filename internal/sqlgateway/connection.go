// internal/sqlgateway/connection.go
package sqlgateway

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/askdba/dbquery-skill/internal/util"
)

// ConnectionConfig describes one named database the gateway serves.
type ConnectionConfig struct {
	Name        string `json:"name" yaml:"name"`
	Driver      string `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN         string `json:"dsn" yaml:"dsn"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	ReadOnly    bool   `json:"read_only,omitempty" yaml:"read_only,omitempty"`
}

// PoolConfig holds database/sql pool settings. Zero values use defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
	defaultPingTimeout     = 5 * time.Second
)

func (p PoolConfig) withDefaults() PoolConfig {
	if p.MaxOpenConns <= 0 {
		p.MaxOpenConns = defaultMaxOpenConns
	}
	if p.MaxIdleConns <= 0 {
		p.MaxIdleConns = defaultMaxIdleConns
	}
	if p.ConnMaxLifetime <= 0 {
		p.ConnMaxLifetime = defaultConnMaxLifetime
	}
	if p.ConnMaxIdleTime <= 0 {
		p.ConnMaxIdleTime = defaultConnMaxIdleTime
	}
	if p.PingTimeout <= 0 {
		p.PingTimeout = defaultPingTimeout
	}
	return p
}

// Conn is a registered connection.
type Conn struct {
	DB      *sql.DB
	Config  ConnectionConfig
	Dialect Dialect
}

// Registry holds the named connections. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

// Open connects cfg, pings it and registers it under cfg.Name.
func (r *Registry) Open(ctx context.Context, cfg ConnectionConfig, pool PoolConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("connection name is required")
	}
	if cfg.DSN == "" {
		return fmt.Errorf("connection %s: dsn is required", cfg.Name)
	}
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return fmt.Errorf("connection %s: %w", cfg.Name, err)
	}

	db, err := sql.Open(dialect.DriverName, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open connection %s: %w", cfg.Name, err)
	}

	pool = pool.withDefaults()
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pool.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping connection %s: %w", cfg.Name, err)
	}

	return r.attach(cfg, db, dialect)
}

// Attach registers an already-open *sql.DB, e.g. a sqlmock handle.
func (r *Registry) Attach(cfg ConnectionConfig, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return err
	}
	return r.attach(cfg, db, dialect)
}

func (r *Registry) attach(cfg ConnectionConfig, db *sql.DB, dialect Dialect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.conns[cfg.Name]; exists {
		return fmt.Errorf("connection %q already registered", cfg.Name)
	}
	cfg.Driver = dialect.DriverName
	r.conns[cfg.Name] = &Conn{DB: db, Config: cfg, Dialect: dialect}
	return nil
}

// Get returns the connection registered as name.
func (r *Registry) Get(name string) (*Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[name]
	if !ok {
		return nil, fmt.Errorf("unknown database %q", name)
	}
	return c, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the connection configs with masked DSNs, sorted by name.
func (r *Registry) List() []ConnectionConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]ConnectionConfig, 0, len(r.conns))
	for _, c := range r.conns {
		masked := c.Config
		masked.DSN = util.MaskDSN(c.Config.DSN)
		list = append(list, masked)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Close closes every connection and empties the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for name, c := range r.conns {
		if err := c.DB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", name, err)
		}
		delete(r.conns, name)
	}
	return firstErr
}
