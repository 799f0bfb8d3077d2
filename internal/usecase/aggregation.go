package usecase

import (
	"context"
	"sync"
	"time"

	"dispatch-service/internal/domain"

	"go.uber.org/zap"
)

// AggregationWindow is the rolling window during which related field changes
// merge into one digest. The first change opens the window; merging does not
// extend it, which bounds worst-case latency.
const AggregationWindow = 5 * time.Minute

// EntityRef identifies the entity a change set belongs to.
type EntityRef struct {
	Type string
	ID   string
}

// FieldGate checks whether the recipient wants notifications for a field.
// A lookup error defaults to allow: a transient failure must never swallow a
// legitimate change.
type FieldGate func(ctx context.Context, userID, field string) (bool, error)

// AggregatedFlush is one synthesized digest handed to the sink.
type AggregatedFlush struct {
	Entity  EntityRef
	UserID  string
	ActorID string
	Changes []domain.FieldChange
}

// FlushSink receives flushed buckets; the dispatcher implements it.
type FlushSink interface {
	FlushAggregated(ctx context.Context, f AggregatedFlush) error
}

type bucket struct {
	entity    EntityRef
	userID    string
	actorID   string
	changes   []domain.FieldChange
	timer     *time.Timer
	flushed   bool
	createdAt time.Time
}

// AggregationBuffer collapses bursts of field-change notifications about the
// same (entity, recipient) into one digest. Buckets flush on window expiry,
// on the immediate flag, or on forced Cleanup at shutdown.
type AggregationBuffer struct {
	window time.Duration
	gate   FieldGate
	sink   FlushSink
	logger *zap.Logger

	mu      sync.Mutex
	buckets map[string]*bucket

	now func() time.Time
}

func NewAggregationBuffer(window time.Duration, gate FieldGate, sink FlushSink, logger *zap.Logger) *AggregationBuffer {
	if window <= 0 {
		window = AggregationWindow
	}
	return &AggregationBuffer{
		window:  window,
		gate:    gate,
		sink:    sink,
		logger:  logger,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func bucketKey(entity EntityRef, userID string) string {
	return entity.Type + ":" + entity.ID + "|" + userID
}

// Add buffers changes for (entity, recipient). With immediate set the buffer
// is bypassed and the change set flushes on its own, without touching any
// pending bucket. The returned bool reports whether the changes were
// buffered (false for immediate sends and fully filtered sets).
func (ab *AggregationBuffer) Add(ctx context.Context, entity EntityRef, changes []domain.FieldChange, recipientID, actorID string, immediate bool) (bool, error) {
	kept := ab.filterChanges(ctx, recipientID, changes)
	if len(kept) == 0 {
		return false, nil
	}

	if immediate {
		return false, ab.sink.FlushAggregated(ctx, AggregatedFlush{
			Entity:  entity,
			UserID:  recipientID,
			ActorID: actorID,
			Changes: kept,
		})
	}

	key := bucketKey(entity, recipientID)

	ab.mu.Lock()
	defer ab.mu.Unlock()

	if b, ok := ab.buckets[key]; ok && !b.flushed {
		// Merge; the window timer keeps running from the first change.
		b.changes = append(b.changes, kept...)
		return true, nil
	}

	b := &bucket{
		entity:    entity,
		userID:    recipientID,
		actorID:   actorID,
		changes:   kept,
		createdAt: ab.now(),
	}
	b.timer = time.AfterFunc(ab.window, func() {
		ab.flush(key)
	})
	ab.buckets[key] = b
	return true, nil
}

func (ab *AggregationBuffer) filterChanges(ctx context.Context, userID string, changes []domain.FieldChange) []domain.FieldChange {
	if ab.gate == nil {
		return changes
	}
	var kept []domain.FieldChange
	for _, c := range changes {
		want, err := ab.gate(ctx, userID, c.Field)
		if err != nil {
			// Fail open.
			ab.logger.Warn("field preference lookup failed, keeping change",
				zap.String("user_id", userID),
				zap.String("field", c.Field),
				zap.Error(err))
			kept = append(kept, c)
			continue
		}
		if want {
			kept = append(kept, c)
		}
	}
	return kept
}

// flush is the only path that retires a bucket.
func (ab *AggregationBuffer) flush(key string) {
	ab.mu.Lock()
	b, ok := ab.buckets[key]
	if !ok || b.flushed {
		ab.mu.Unlock()
		return
	}
	b.flushed = true
	b.timer.Stop()
	delete(ab.buckets, key)
	ab.mu.Unlock()

	ab.deliver(b)
}

func (ab *AggregationBuffer) deliver(b *bucket) {
	if len(b.changes) == 0 {
		return
	}
	err := ab.sink.FlushAggregated(context.Background(), AggregatedFlush{
		Entity:  b.entity,
		UserID:  b.userID,
		ActorID: b.actorID,
		Changes: b.changes,
	})
	if err != nil {
		ab.logger.Error("aggregation flush failed",
			zap.String("entity_type", b.entity.Type),
			zap.String("entity_id", b.entity.ID),
			zap.String("user_id", b.userID),
			zap.Int("changes", len(b.changes)),
			zap.Error(err))
	}
}

// PendingBuckets reports how many buckets are waiting on their window.
func (ab *AggregationBuffer) PendingBuckets() int {
	ab.mu.Lock()
	defer ab.mu.Unlock()
	return len(ab.buckets)
}

// Cleanup force-flushes every pending bucket. Called at shutdown so no
// buffered change is silently lost.
func (ab *AggregationBuffer) Cleanup() {
	ab.mu.Lock()
	pending := make([]*bucket, 0, len(ab.buckets))
	for key, b := range ab.buckets {
		if b.flushed {
			continue
		}
		b.flushed = true
		b.timer.Stop()
		delete(ab.buckets, key)
		pending = append(pending, b)
	}
	ab.mu.Unlock()

	for _, b := range pending {
		ab.deliver(b)
	}
}
