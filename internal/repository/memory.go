package repository

import (
	"context"
	"sync"

	"studiobook/internal/models"
)

// MemoryStateRepository is the in-process fallback behind the failover
// wrapper. Snapshots do not survive a restart, which is acceptable for the
// fallback role; Redis is the durable tier.
type MemoryStateRepository struct {
	sagas sync.Map

	mu            sync.RWMutex
	lastCompleted *models.AuditRecord
	lastReceipt   string
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{}
}

func (r *MemoryStateRepository) GetSaga(ctx context.Context, sagaID string) (*models.SagaRecord, error) {
	val, ok := r.sagas.Load(sagaID)
	if !ok {
		return nil, nil
	}
	return val.(*models.SagaRecord), nil
}

func (r *MemoryStateRepository) SaveSaga(ctx context.Context, rec *models.SagaRecord) error {
	r.sagas.Store(rec.SagaID, rec)
	return nil
}

func (r *MemoryStateRepository) ClearSaga(ctx context.Context, sagaID string) error {
	r.sagas.Delete(sagaID)
	return nil
}

func (r *MemoryStateRepository) SetLastCompleted(ctx context.Context, rec *models.AuditRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastCompleted = rec
	return nil
}

func (r *MemoryStateRepository) GetLastCompleted(ctx context.Context) (*models.AuditRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastCompleted, nil
}

func (r *MemoryStateRepository) SetLastReceipt(ctx context.Context, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastReceipt = url
	return nil
}

func (r *MemoryStateRepository) GetLastReceipt(ctx context.Context) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastReceipt, nil
}
