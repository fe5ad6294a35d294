package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/datalens/internal/domain"
)

// ConnectionRepository reads tenant data-source connections. The records are
// written by the connection manager; this service only reads them.
type ConnectionRepository struct {
	db dbtx
}

func NewConnectionRepository(pool *pgxpool.Pool) *ConnectionRepository {
	return &ConnectionRepository{db: pool}
}

func (r *ConnectionRepository) Get(ctx context.Context, tenantID, connectionID string) (*domain.Connection, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, name, dsn, schema_name, is_active, created_at, updated_at
		FROM connections
		WHERE tenant_id = $1 AND id = $2`,
		tenantID, connectionID,
	)
	c, err := scanConnection(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListActive returns the tenant's active connections, oldest first.
func (r *ConnectionRepository) ListActive(ctx context.Context, tenantID string) ([]*domain.Connection, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, name, dsn, schema_name, is_active, created_at, updated_at
		FROM connections
		WHERE tenant_id = $1 AND is_active
		ORDER BY created_at`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// ListAllActive returns active connections across tenants, used by the
// background catalog refresh.
func (r *ConnectionRepository) ListAllActive(ctx context.Context) ([]*domain.Connection, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, name, dsn, schema_name, is_active, created_at, updated_at
		FROM connections
		WHERE is_active
		ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func scanConnection(row pgx.Row) (*domain.Connection, error) {
	var c domain.Connection
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.DSN, &c.SchemaName,
		&c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
