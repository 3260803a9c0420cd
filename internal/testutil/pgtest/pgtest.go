// Package pgtest starts a throwaway PostgreSQL for integration tests and
// applies the repository migrations to it.
package pgtest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// DSNEnv reuses an existing database instead of starting a container.
const DSNEnv = "DISTRIBUTOR_TEST_PG_DSN"

var migrationsDir string

func init() {
	if _, file, _, ok := runtime.Caller(0); ok {
		migrationsDir = filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
	}
}

type Database struct {
	Pool      *pgxpool.Pool
	container *postgres.PostgresContainer
}

// Start returns a migrated database. It honours DSNEnv, otherwise it runs postgres:16
// through testcontainers.
func Start(ctx context.Context) (*Database, error) {
	dsn := os.Getenv(DSNEnv)
	var container *postgres.PostgresContainer

	if dsn == "" {
		c, err := postgres.Run(ctx,
			"postgres:16",
			postgres.WithDatabase("distributor"),
			postgres.WithUsername("distributor"),
			postgres.WithPassword("distributor"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			return nil, fmt.Errorf("starting postgres container: %w", err)
		}
		container = c

		dsn, err = c.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = c.Terminate(ctx)
			return nil, fmt.Errorf("container dsn: %w", err)
		}
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		if container != nil {
			_ = container.Terminate(ctx)
		}
		return nil, fmt.Errorf("connect pool: %w", err)
	}

	if err := execDir(ctx, pool, migrationsDir); err != nil {
		pool.Close()
		if container != nil {
			_ = container.Terminate(ctx)
		}
		return nil, err
	}

	return &Database{Pool: pool, container: container}, nil
}

// Truncate empties every table between specs.
func (d *Database) Truncate(ctx context.Context) error {
	_, err := d.Pool.Exec(ctx, `TRUNCATE signal, signal_events, account_balance, signal_audit, ceh_response_initial_event_id`)
	return err
}

func (d *Database) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
	if d.container != nil {
		return testcontainers.TerminateContainer(d.container)
	}
	return nil
}

func execDir(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Name(), err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply %s: %w", e.Name(), err)
		}
	}
	return nil
}
