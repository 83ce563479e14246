package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID serializes concurrent migration runs.
const migrationLockID int64 = 717171

// ErrMigrationMissing is returned when a migration lacks its up or down file.
var ErrMigrationMissing = errors.New("migration file missing")

// Migration is a numbered schema change.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// LoadMigrations reads NNNNNN_name.{up,down}.sql pairs from fsys in version order.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		base := strings.TrimSuffix(name, ".sql")
		var direction string
		switch {
		case strings.HasSuffix(base, ".up"):
			direction = "up"
		case strings.HasSuffix(base, ".down"):
			direction = "down"
		default:
			continue
		}
		base = strings.TrimSuffix(base, "."+direction)

		version, label, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("invalid migration name %q", name)
		}

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		m, exists := byVersion[version]
		if !exists {
			m = &Migration{Version: version, Name: label}
			byVersion[version] = m
		}
		if direction == "up" {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("%w: %s_%s", ErrMigrationMissing, m.Version, m.Name)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// MigrateUp applies every pending migration and returns the applied versions.
func (r *Repository) MigrateUp(ctx context.Context, migrations []Migration) ([]string, error) {
	var applied []string
	err := r.withMigrationLock(ctx, func(conn *pgxpool.Conn) error {
		done, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		for _, m := range migrations {
			if done[m.Version] {
				continue
			}
			err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
				if _, err := tx.Exec(ctx, m.Up); err != nil {
					return fmt.Errorf("apply %s_%s: %w", m.Version, m.Name, err)
				}
				_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
				return err
			})
			if err != nil {
				return err
			}
			applied = append(applied, m.Version)
		}
		return nil
	})
	return applied, err
}

// MigrateDown reverts up to steps of the most recently applied migrations.
func (r *Repository) MigrateDown(ctx context.Context, migrations []Migration, steps int) ([]string, error) {
	var reverted []string
	err := r.withMigrationLock(ctx, func(conn *pgxpool.Conn) error {
		done, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		for i := len(migrations) - 1; i >= 0 && len(reverted) < steps; i-- {
			m := migrations[i]
			if !done[m.Version] {
				continue
			}
			err := pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
				if _, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version); err != nil {
					return fmt.Errorf("unrecord %s: %w", m.Version, err)
				}
				if _, err := tx.Exec(ctx, m.Down); err != nil {
					return fmt.Errorf("revert %s_%s: %w", m.Version, m.Name, err)
				}
				return nil
			})
			if err != nil {
				return err
			}
			reverted = append(reverted, m.Version)
		}
		return nil
	})
	return reverted, err
}

func (r *Repository) withMigrationLock(ctx context.Context, fn func(conn *pgxpool.Conn) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockID)
	}()

	return fn(conn)
}

func appliedVersions(ctx context.Context, conn *pgxpool.Conn) (map[string]bool, error) {
	var exists bool
	if err := conn.QueryRow(ctx, `SELECT to_regclass('schema_migrations') IS NOT NULL`).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check schema_migrations: %w", err)
	}

	done := make(map[string]bool)
	if !exists {
		return done, nil
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan applied migrations: %w", err)
	}
	for _, v := range versions {
		done[v] = true
	}
	return done, nil
}
