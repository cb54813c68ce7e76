package transaction

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Transaction) error
	GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*Transaction, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Transaction, int, error)
}
