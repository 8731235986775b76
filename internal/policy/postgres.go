package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLookup resuelve políticas desde un service registry en Postgres.
// Cada Policy es un SELECT: la frescura del contrato la da la base, no un cache.
type PostgresLookup struct {
	pool *pgxpool.Pool
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS delegation_policies (
	service_id          TEXT PRIMARY KEY,
	delegation_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
	allowed_providers   TEXT[] NOT NULL DEFAULT '{}',
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// NewPostgresLookup opens the pool and ensures the schema exists.
func NewPostgresLookup(ctx context.Context, dsn string) (*PostgresLookup, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("policy: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("policy: pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("policy: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("policy: ensure schema: %w", err)
	}
	return &PostgresLookup{pool: pool}, nil
}

// Policy fetches the current policy row for the service.
func (l *PostgresLookup) Policy(ctx context.Context, serviceID string) (*ServicePolicy, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT service_id, delegation_enabled, allowed_providers
		   FROM delegation_policies WHERE service_id = $1`, serviceID)

	var p ServicePolicy
	if err := row.Scan(&p.ServiceID, &p.DelegationEnabled, &p.AllowedProviders); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("policy: query: %w", err)
	}
	return &p, nil
}

// Upsert writes a policy row. Used by operational tooling and tests.
func (l *PostgresLookup) Upsert(ctx context.Context, p ServicePolicy) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO delegation_policies (service_id, delegation_enabled, allowed_providers, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (service_id) DO UPDATE
		 SET delegation_enabled = EXCLUDED.delegation_enabled,
		     allowed_providers  = EXCLUDED.allowed_providers,
		     updated_at         = now()`,
		p.ServiceID, p.DelegationEnabled, p.AllowedProviders)
	return err
}

// Close cierra el pool subyacente (idempotente).
func (l *PostgresLookup) Close() {
	if l != nil && l.pool != nil {
		l.pool.Close()
	}
}
