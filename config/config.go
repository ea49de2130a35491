// Package config loads the YAML settings shared by the tdsshim commands
// and turns them into clients, connections and loggers.
package config

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/tomyedwab/tdsshim/client"
	"github.com/tomyedwab/tdsshim/sqlproxy/remote"
	"github.com/tomyedwab/tdsshim/stmt"
)

// Underlying database/sql drivers the commands know how to open.
const (
	DriverSQLServer = "sqlserver"
	DriverTDS       = "tds"
	DriverSQLite    = "sqlite3"
)

// Config is the top-level settings file.
type Config struct {
	// Driver and DSN open a local connection. They are ignored when
	// ProxyURL is set.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// ProxyURL points at a `tdsshim serve` endpoint.
	ProxyURL string `yaml:"proxy_url"`

	UnicodeStrings bool          `yaml:"unicode_strings"`
	NamedPrefix    string        `yaml:"named_prefix"`
	Rowsets        RowsetsConfig `yaml:"rowsets"`
	FetchSize      int           `yaml:"fetch_size"`

	// Listen is the address `tdsshim serve` binds.
	Listen string    `yaml:"listen"`
	Log    LogConfig `yaml:"log"`
}

// RowsetsConfig maps onto stmt.RowsetPolicy.
type RowsetsConfig struct {
	DrainEmpty       bool `yaml:"drain_empty"`
	StopOnProbeError bool `yaml:"stop_on_probe_error"`
}

// LogConfig selects the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Driver:      DriverSQLServer,
		NamedPrefix: ":",
		FetchSize:   remote.DefaultFetchSize,
		Listen:      "127.0.0.1:8642",
		Log:         LogConfig{Level: "info"},
	}
}

// Load reads path on top of Default. Unknown keys are rejected. The result
// is not validated, so callers can apply overrides before calling Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return cfg, nil
}

// Validate checks that the settings can open a connection.
func (c *Config) Validate() error {
	if c.ProxyURL == "" {
		switch c.Driver {
		case DriverSQLServer, DriverTDS, DriverSQLite:
		default:
			return fmt.Errorf("driver must be one of %s, %s, %s (got %q)", DriverSQLServer, DriverTDS, DriverSQLite, c.Driver)
		}
		if c.DSN == "" {
			return fmt.Errorf("dsn is required unless proxy_url is set")
		}
	}

	if c.NamedPrefix != ":" && c.NamedPrefix != "@" {
		return fmt.Errorf("named_prefix must be \":\" or \"@\" (got %q)", c.NamedPrefix)
	}
	if c.FetchSize < 0 {
		return fmt.Errorf("fetch_size must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// RowsetPolicy returns the configured empty-rowset handling.
func (c *Config) RowsetPolicy() stmt.RowsetPolicy {
	return stmt.RowsetPolicy{
		DrainEmpty:       c.Rowsets.DrainEmpty,
		StopOnProbeError: c.Rowsets.StopOnProbeError,
	}
}

// Quoter returns the literal quoting rules.
func (c *Config) Quoter() client.Quoter {
	return client.Quoter{Unicode: c.UnicodeStrings}
}

// Logger builds the zap logger described by Log.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// OpenClient connects to the configured database, either directly or
// through the proxy.
func (c *Config) OpenClient(ctx context.Context) (client.Client, error) {
	if c.ProxyURL != "" {
		return remote.New(remote.HTTPCaller(c.ProxyURL, nil),
			remote.WithQuoter(c.Quoter()),
			remote.WithFetchSize(c.FetchSize),
		), nil
	}
	return client.Open(ctx, c.Driver, c.DSN, client.WithQuoter(c.Quoter()))
}

// OpenConn opens a client and wraps it in a statement connection. logger
// may be nil.
func (c *Config) OpenConn(ctx context.Context, logger *zap.Logger) (*stmt.Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl, err := c.OpenClient(ctx)
	if err != nil {
		return nil, err
	}
	return stmt.NewConn(cl,
		stmt.WithLogger(logger),
		stmt.WithRowsetPolicy(c.RowsetPolicy()),
		stmt.WithNamedPrefix(c.NamedPrefix),
	), nil
}
