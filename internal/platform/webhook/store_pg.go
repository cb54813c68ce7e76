package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/hl7bridge/internal/platform/db"
)

// PGStore keeps endpoints and deliveries in the tenant's schema.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func qualified(tenantID, table string) (string, error) {
	if !db.ValidTenantID(tenantID) {
		return "", fmt.Errorf("webhook: invalid tenant %q", tenantID)
	}
	return db.SchemaName(tenantID) + "." + table, nil
}

const endpointCols = `id, tenant_id, url, secret, events, status, created_at`

func scanEndpoint(row pgx.Row) (*Endpoint, error) {
	var ep Endpoint
	err := row.Scan(&ep.ID, &ep.TenantID, &ep.URL, &ep.Secret, &ep.Events, &ep.Status, &ep.CreatedAt)
	return &ep, err
}

func (s *PGStore) CreateEndpoint(ctx context.Context, ep *Endpoint) error {
	tbl, err := qualified(ep.TenantID, "webhook_endpoint")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7)`, tbl, endpointCols),
		ep.ID, ep.TenantID, ep.URL, ep.Secret, ep.Events, ep.Status, ep.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

func (s *PGStore) GetEndpoint(ctx context.Context, tenantID, id string) (*Endpoint, error) {
	tbl, err := qualified(tenantID, "webhook_endpoint")
	if err != nil {
		return nil, err
	}
	ep, err := scanEndpoint(s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, endpointCols, tbl), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ep, err
}

func (s *PGStore) ListEndpoints(ctx context.Context, tenantID string, limit, offset int) ([]*Endpoint, int, error) {
	tbl, err := qualified(tenantID, "webhook_endpoint")
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tbl)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count webhook endpoints: %w", err)
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at LIMIT $1 OFFSET $2`, endpointCols, tbl), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()

	eps := []*Endpoint{}
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, 0, err
		}
		eps = append(eps, ep)
	}
	return eps, total, rows.Err()
}

func (s *PGStore) DeleteEndpoint(ctx context.Context, tenantID, id string) error {
	tbl, err := qualified(tenantID, "webhook_endpoint")
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, tbl), id)
	if err != nil {
		return fmt.Errorf("delete webhook endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const deliveryCols = `id, endpoint_id, event_type, event_id, status_code, attempts, status, error, duration_ms, created_at`

func (s *PGStore) RecordDelivery(ctx context.Context, tenantID string, a *DeliveryAttempt) error {
	tbl, err := qualified(tenantID, "webhook_delivery")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, tbl, deliveryCols),
		a.ID, a.EndpointID, a.EventType, a.EventID, a.StatusCode, a.Attempts, a.Status, a.Error,
		a.Duration.Milliseconds(), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

func (s *PGStore) ListDeliveries(ctx context.Context, tenantID, endpointID string, limit, offset int) ([]*DeliveryAttempt, int, error) {
	tbl, err := qualified(tenantID, "webhook_delivery")
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE endpoint_id = $1`, tbl), endpointID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count webhook deliveries: %w", err)
	}
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE endpoint_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, deliveryCols, tbl),
		endpointID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list webhook deliveries: %w", err)
	}
	defer rows.Close()

	out := []*DeliveryAttempt{}
	for rows.Next() {
		var a DeliveryAttempt
		var ms int64
		if err := rows.Scan(&a.ID, &a.EndpointID, &a.EventType, &a.EventID, &a.StatusCode, &a.Attempts,
			&a.Status, &a.Error, &ms, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		a.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, &a)
	}
	return out, total, rows.Err()
}
