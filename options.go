package kbvec

import (
	"github.com/vectorhaus/kbvec/domain/document"
	"github.com/vectorhaus/kbvec/internal/config"
	"github.com/vectorhaus/kbvec/internal/log"
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	cfg        config.AppConfig
	dbURL      string
	logger     *log.Logger
	resolver   document.CredentialResolver
	statusSink document.StatusSink
}

// newClientConfig creates a clientConfig with defaults from internal/config.
func newClientConfig() *clientConfig {
	return &clientConfig{
		cfg: config.NewAppConfig(),
	}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithConfig replaces the whole application configuration.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		c.cfg = cfg
	}
}

// WithSQLite configures SQLite as the database. Keyword search uses FTS5.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.dbURL = "sqlite:///" + path
	}
}

// WithPostgres configures PostgreSQL as the database. Keyword search is
// unavailable; keyword and hybrid queries return a validation error.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.dbURL = dsn
	}
}

// WithDatabaseURL configures the database from a full connection URL
// (sqlite:///path or postgres://...).
func WithDatabaseURL(url string) Option {
	return func(c *clientConfig) {
		c.dbURL = url
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithCredentialResolver sets a per-knowledge-base credential resolver,
// consulted before the configured default API key and the process
// environment.
func WithCredentialResolver(resolver document.CredentialResolver) Option {
	return func(c *clientConfig) {
		c.resolver = resolver
	}
}

// WithStatusSink forwards document indexing status transitions to an
// external system of record.
func WithStatusSink(sink document.StatusSink) Option {
	return func(c *clientConfig) {
		c.statusSink = sink
	}
}
