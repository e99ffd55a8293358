package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"studiobook/internal/models"
	"studiobook/internal/retry"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AuditStore is the durable destination for audit records.
type AuditStore interface {
	Insert(ctx context.Context, rec models.AuditRecord) error
}

// AuditWorker drains enqueued audit records into the store off the saga's
// critical path. A redis list carries records across restarts; an in-memory
// channel takes over when redis is missing or down. Records that keep
// failing to insert land on a dead-letter key instead of blocking the queue.
type AuditWorker struct {
	store         AuditStore
	redis         *redis.Client
	retryPolicy   retry.Policy
	queue         chan models.AuditRecord
	redisQueueKey string
	deadLetterKey string
	idleInterval  time.Duration
	logger        *zerolog.Logger
}

// NewAuditWorker builds a worker with sane defaults.
func NewAuditWorker(store AuditStore, redisClient *redis.Client, policy retry.Policy, logger *zerolog.Logger) *AuditWorker {
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = 5
	}
	if policy.InitialDelay == 0 {
		policy.InitialDelay = 2 * time.Second
	}
	if policy.MaxDelay == 0 {
		policy.MaxDelay = time.Minute
	}
	if policy.BackoffFactor == 0 {
		policy.BackoffFactor = 2
	}

	return &AuditWorker{
		store:         store,
		redis:         redisClient,
		retryPolicy:   policy,
		queue:         make(chan models.AuditRecord, 128),
		redisQueueKey: "audit:queue",
		deadLetterKey: "audit:deadletter",
		idleInterval:  time.Second,
		logger:        logger,
	}
}

// Enqueue schedules a record for insertion. Redis is tried first for
// durability; the in-memory queue absorbs the record when redis is
// unavailable. Enqueue never blocks the caller.
func (w *AuditWorker) Enqueue(ctx context.Context, rec models.AuditRecord) error {
	if rec.BookingRef == "" {
		return errors.New("booking ref is required")
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, rec); err != nil {
			w.logger.Warn().Err(err).Msg("audit_worker: redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- rec:
		return nil
	default:
		return errors.New("audit queue is full")
	}
}

// Start launches the drain loop; stops when ctx is done.
func (w *AuditWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("audit_worker: started")
	defer w.logger.Info().Msg("audit_worker: stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if rec, ok := w.tryLocalQueue(); ok {
			w.processRecord(ctx, rec)
			continue
		}

		if rec, ok := w.tryRedis(ctx); ok {
			w.processRecord(ctx, rec)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.idleInterval):
		}
	}
}

func (w *AuditWorker) tryLocalQueue() (models.AuditRecord, bool) {
	select {
	case rec := <-w.queue:
		return rec, true
	default:
		return models.AuditRecord{}, false
	}
}

func (w *AuditWorker) tryRedis(ctx context.Context) (models.AuditRecord, bool) {
	if w.redis == nil {
		return models.AuditRecord{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.AuditRecord{}, false
		}
		w.logger.Warn().Err(err).Msg("audit_worker: redis BRPOP error")
		return models.AuditRecord{}, false
	}
	if len(res) != 2 {
		return models.AuditRecord{}, false
	}
	var rec models.AuditRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		w.logger.Error().Err(err).Msg("audit_worker: decode redis record")
		return models.AuditRecord{}, false
	}
	return rec, true
}

func (w *AuditWorker) processRecord(ctx context.Context, rec models.AuditRecord) {
	err := retry.Do(ctx, w.retryPolicy, func(ctx context.Context) error {
		return w.store.Insert(ctx, rec)
	})
	if err != nil {
		w.logger.Error().Err(err).Str("booking_ref", rec.BookingRef).Msg("audit_worker: insert failed, dead-lettering")
		w.pushDeadLetter(ctx, rec)
		return
	}

	w.logger.Debug().Str("booking_ref", rec.BookingRef).Str("status", rec.Status).Msg("audit_worker: record stored")
}

func (w *AuditWorker) pushRedis(ctx context.Context, rec models.AuditRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *AuditWorker) pushDeadLetter(ctx context.Context, rec models.AuditRecord) {
	if w.redis == nil {
		w.logger.Error().Str("booking_ref", rec.BookingRef).Msg("audit_worker: record lost, no dead-letter store")
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		w.logger.Error().Err(err).Str("booking_ref", rec.BookingRef).Msg("audit_worker: encode deadletter")
		return
	}
	if err := w.redis.LPush(context.WithoutCancel(ctx), w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Str("booking_ref", rec.BookingRef).Msg("audit_worker: deadletter push")
	}
}
