package repository

import (
	"context"
	"sync/atomic"
	"time"

	"studiobook/internal/domain"
	"studiobook/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStateRepository serves from the primary (Redis) until it errors,
// then falls back to memory and probes the primary again after a recovery
// window.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

const recoveryWindow = time.Minute

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStateRepository) shouldProbe() bool {
	return r.isDown.Load() && time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryWindow
}

func (r *FailoverStateRepository) GetSaga(ctx context.Context, sagaID string) (*models.SagaRecord, error) {
	if !r.isDown.Load() {
		rec, err := r.primary.GetSaga(ctx, sagaID)
		if err == nil {
			return rec, nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		rec, err := r.primary.GetSaga(ctx, sagaID)
		if err == nil {
			r.isDown.Store(false)
			return rec, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetSaga(ctx, sagaID)
}

func (r *FailoverStateRepository) SaveSaga(ctx context.Context, rec *models.SagaRecord) error {
	if !r.isDown.Load() {
		err := r.primary.SaveSaga(ctx, rec)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		if err := r.primary.SaveSaga(ctx, rec); err == nil {
			r.isDown.Store(false)
			return nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.SaveSaga(ctx, rec)
}

func (r *FailoverStateRepository) ClearSaga(ctx context.Context, sagaID string) error {
	if !r.isDown.Load() {
		err := r.primary.ClearSaga(ctx, sagaID)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.ClearSaga(ctx, sagaID)
}

func (r *FailoverStateRepository) SetLastCompleted(ctx context.Context, rec *models.AuditRecord) error {
	if !r.isDown.Load() {
		err := r.primary.SetLastCompleted(ctx, rec)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetLastCompleted(ctx, rec)
}

func (r *FailoverStateRepository) GetLastCompleted(ctx context.Context) (*models.AuditRecord, error) {
	if !r.isDown.Load() {
		rec, err := r.primary.GetLastCompleted(ctx)
		if err == nil {
			return rec, nil
		}
		r.markDown(err)
	}

	return r.fallback.GetLastCompleted(ctx)
}

func (r *FailoverStateRepository) SetLastReceipt(ctx context.Context, url string) error {
	if !r.isDown.Load() {
		err := r.primary.SetLastReceipt(ctx, url)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetLastReceipt(ctx, url)
}

func (r *FailoverStateRepository) GetLastReceipt(ctx context.Context) (string, error) {
	if !r.isDown.Load() {
		url, err := r.primary.GetLastReceipt(ctx)
		if err == nil {
			return url, nil
		}
		r.markDown(err)
	}

	return r.fallback.GetLastReceipt(ctx)
}
