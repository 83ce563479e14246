// Package repository is the Postgres persistence layer.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PoolOptions sizes the connection pool. Zero values keep the defaults
// (10 max, 2 min, 30m lifetime), and a pool_max_conns parameter in the URL
// wins over both.
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Repository implements every store interface the services depend on.
type Repository struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and verifies the connection.
func New(ctx context.Context, databaseURL string, opts ...PoolOptions) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	var o PoolOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if !strings.Contains(databaseURL, "pool_max_conns") {
		cfg.MaxConns = 10
		if o.MaxConns > 0 {
			cfg.MaxConns = o.MaxConns
		}
	}
	if !strings.Contains(databaseURL, "pool_min_conns") {
		cfg.MinConns = min(2, cfg.MaxConns)
		if o.MinConns > 0 {
			cfg.MinConns = min(o.MinConns, cfg.MaxConns)
		}
	}
	if o.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = o.MaxConnLifetime
	}
	cfg.ConnConfig.Tracer = queryTracer{tracer: otel.Tracer("github.com/agentdesk/agentdesk/internal/repository")}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Ping satisfies the readiness check.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool exposes the pool to migrations and test helpers.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// withTx runs fn in a transaction, committing on success.
func (r *Repository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// queryTracer opens one client span per statement. Arguments are never
// recorded since they carry password hashes and sealed tokens.
type queryTracer struct {
	tracer trace.Tracer
}

func (t queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx, _ = t.tracer.Start(ctx, "db.query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", statementVerb(data.SQL)),
		),
	)
	return ctx
}

func (t queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, pgCode(data.Err))
	} else {
		span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}
	span.End()
}

// statementVerb is the leading SQL keyword, upper-cased.
func statementVerb(sql string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	if i := strings.IndexAny(verb, "\n\t("); i >= 0 {
		verb = verb[:i]
	}
	return strings.ToUpper(verb)
}

// Postgres error codes the stores translate into sentinel errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

func isUniqueViolation(err error) bool     { return pgCode(err) == pgUniqueViolation }
func isForeignKeyViolation(err error) bool { return pgCode(err) == pgForeignKeyViolation }
func isCheckViolation(err error) bool      { return pgCode(err) == pgCheckViolation }

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
