package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/hl7bridge/internal/mapping/convert"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Record stores the audit row for r. A storage failure is logged and
// returned; it never changes the conversion outcome.
func (s *Service) Record(ctx context.Context, tenantID, source, requestID string, r *convert.Result, dur time.Duration) (*Transaction, error) {
	t := FromResult(tenantID, source, r, dur)
	t.RequestID = requestID
	if err := s.repo.Create(ctx, t); err != nil {
		s.logger.Error().Err(err).
			Str("tenant_id", tenantID).
			Str("transaction_id", r.TransactionID).
			Msg("failed to record transaction")
		return nil, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, tenantID string, id uuid.UUID) (*Transaction, error) {
	return s.repo.GetByID(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Transaction, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}
