package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/hl7bridge/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// table qualifies the table with the tenant's schema so callers without a
// tenant-scoped connection (queue workers, MLLP) reach the right rows.
func table(tenantID string) (string, error) {
	if !db.ValidTenantID(tenantID) {
		return "", fmt.Errorf("transaction: invalid tenant %q", tenantID)
	}
	return db.SchemaName(tenantID) + ".conversion_transaction", nil
}

const txCols = `id, tenant_id, transaction_id, direction, message_type, status, source,
	request_id, success_count, fail_count, error_count, warning_count, issues,
	duration_ms, created_at`

func scanTx(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(
		&t.ID, &t.TenantID, &t.TransactionID, &t.Direction, &t.MessageType, &t.Status, &t.Source,
		&t.RequestID, &t.SuccessCount, &t.FailCount, &t.ErrorCount, &t.WarningCount, &t.Issues,
		&t.DurationMS, &t.CreatedAt,
	)
	return &t, err
}

func (r *RepoPG) Create(ctx context.Context, t *Transaction) error {
	tbl, err := table(t.TenantID)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (%s)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`, tbl, txCols)
	_, err = r.conn(ctx).Exec(ctx, q,
		t.ID, t.TenantID, t.TransactionID, t.Direction, t.MessageType, t.Status, t.Source,
		t.RequestID, t.SuccessCount, t.FailCount, t.ErrorCount, t.WarningCount, t.Issues,
		t.DurationMS, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Transaction, error) {
	tbl, err := table(tenantID)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", txCols, tbl)
	t, err := scanTx(r.conn(ctx).QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *RepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Transaction, int, error) {
	tbl, err := table(f.TenantID)
	if err != nil {
		return nil, 0, err
	}

	where := []string{}
	args := []interface{}{}
	idx := 1
	for _, cond := range []struct{ col, val string }{
		{"direction", f.Direction},
		{"status", f.Status},
		{"message_type", f.MessageType},
	} {
		if cond.val == "" {
			continue
		}
		where = append(where, fmt.Sprintf("%s = $%d", cond.col, idx))
		args = append(args, cond.val)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", tbl, whereClause)
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM %s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		txCols, tbl, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	items := []*Transaction{}
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}
