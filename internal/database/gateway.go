package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/rxtech-lab/pairs-ledger/internal/logger"
	"github.com/rxtech-lab/pairs-ledger/pkg/errors"
	"go.uber.org/zap"
)

// Runner is satisfied by both *sql.DB and *sql.Tx.
type Runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor is what repositories and queries run against: the gateway itself or a Session.
type Executor interface {
	Runner() Runner
	Builder() squirrel.StatementBuilderType
	Dialect() Dialect
	// Bound applies the configured per-call timeout to ctx.
	Bound(ctx context.Context) (context.Context, context.CancelFunc)
}

// Gateway owns the connection pool of one database.
type Gateway struct {
	db               *sql.DB
	dialect          Dialect
	sq               squirrel.StatementBuilderType
	logger           *logger.Logger
	queryTimeout     time.Duration
	maxOpenConns     int
	allowDestructive bool
	locks            *keyedLocks
}

type Option func(*Gateway)

// WithLogger sets the logger used for connection and liveness diagnostics.
func WithLogger(l *logger.Logger) Option {
	return func(g *Gateway) {
		g.logger = l.Named("database")
	}
}

// WithQueryTimeout bounds every call made through the gateway. Zero disables the bound.
func WithQueryTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.queryTimeout = timeout
	}
}

// WithMaxOpenConns limits the pool size. Zero keeps the driver default.
func WithMaxOpenConns(n int) Option {
	return func(g *Gateway) {
		g.maxOpenConns = n
	}
}

// WithDestructiveOperations allows DropSchema on this gateway.
func WithDestructiveOperations() Option {
	return func(g *Gateway) {
		g.allowDestructive = true
	}
}

// Connect opens a pool for uri and verifies the database answers before returning.
func Connect(ctx context.Context, uri string, opts ...Option) (*Gateway, error) {
	target, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		db:               nil,
		dialect:          target.Dialect,
		sq:               squirrel.StatementBuilder.PlaceholderFormat(target.Dialect.Placeholder),
		logger:           logger.NewNopLogger(),
		queryTimeout:     0,
		maxOpenConns:     0,
		allowDestructive: false,
		locks:            newKeyedLocks(),
	}

	for _, opt := range opts {
		opt(g)
	}

	db, err := sql.Open(target.Dialect.Driver, target.DSN)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeConnectionFailed, err, "failed to open %s database", target.Dialect.Name)
	}

	if g.maxOpenConns > 0 {
		db.SetMaxOpenConns(g.maxOpenConns)
	}

	g.db = db

	if err := g.verify(ctx); err != nil {
		_ = db.Close()

		return nil, errors.Wrapf(errors.ErrCodeConnectionFailed, err, "database %s is unreachable", redact(uri))
	}

	g.logger.Debug("Connected to database", zap.String("dialect", string(target.Dialect.Name)))

	return g, nil
}

func (g *Gateway) verify(ctx context.Context) error {
	ctx, cancel := g.Bound(ctx)
	defer cancel()

	if err := g.db.PingContext(ctx); err != nil {
		return err
	}

	var one int

	return g.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// IsAlive reports whether the database answers a trivial query. Failures are logged, never returned.
func (g *Gateway) IsAlive(ctx context.Context) bool {
	if err := g.verify(ctx); err != nil {
		g.logger.Warn("Database liveness check failed",
			zap.String("dialect", string(g.dialect.Name)),
			zap.Error(err),
		)

		return false
	}

	return true
}

// Tables lists the tables of the connected schema.
func (g *Gateway) Tables(ctx context.Context) ([]string, error) {
	ctx, cancel := g.Bound(ctx)
	defer cancel()

	rows, err := g.db.QueryContext(ctx, g.dialect.TablesQuery)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to list tables", err)
	}
	defer rows.Close()

	tables := []string{}

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan table name", err)
		}

		tables = append(tables, name)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to list tables", err)
	}

	return tables, nil
}

// Close releases the pool.
func (g *Gateway) Close() error {
	if g.db == nil {
		return nil
	}

	if err := g.db.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeConnectionFailed, "failed to close database", err)
	}

	return nil
}

func (g *Gateway) Runner() Runner {
	return g.db
}

func (g *Gateway) Builder() squirrel.StatementBuilderType {
	return g.sq
}

func (g *Gateway) Dialect() Dialect {
	return g.dialect
}

func (g *Gateway) Logger() *logger.Logger {
	return g.logger
}

func (g *Gateway) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.queryTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, g.queryTimeout)
}

// DB exposes the pool for collaborators that need raw access, such as exports.
func (g *Gateway) DB() *sql.DB {
	return g.db
}

var _ Executor = (*Gateway)(nil)
