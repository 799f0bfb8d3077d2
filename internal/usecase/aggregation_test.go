package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"dispatch-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

type fakeSink struct {
	mu      sync.Mutex
	flushes []AggregatedFlush
	err     error
}

func (s *fakeSink) FlushAggregated(_ context.Context, f AggregatedFlush) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.flushes = append(s.flushes, f)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flushes)
}

func (s *fakeSink) last() AggregatedFlush {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes[len(s.flushes)-1]
}

func change(field, msg string) domain.FieldChange {
	return domain.FieldChange{Field: field, Message: msg}
}

var taskEntity = EntityRef{Type: "task", ID: "t-1"}

func TestAggregationMergesSameEntityAndUser(t *testing.T) {
	sink := &fakeSink{}
	ab := NewAggregationBuffer(time.Hour, nil, sink, zap.NewNop())
	ctx := context.Background()

	buffered, err := ab.Add(ctx, taskEntity, []domain.FieldChange{change("status", "Status changed")}, "u1", "actor", false)
	require.NoError(t, err)
	assert.True(t, buffered)

	buffered, err = ab.Add(ctx, taskEntity, []domain.FieldChange{change("due_date", "Due date moved")}, "u1", "actor", false)
	require.NoError(t, err)
	assert.True(t, buffered)

	assert.Equal(t, 1, ab.PendingBuckets())
	assert.Equal(t, 0, sink.count(), "nothing flushes before the window closes")

	ab.Cleanup()
	require.Equal(t, 1, sink.count())
	f := sink.last()
	assert.Len(t, f.Changes, 2)
	assert.Equal(t, "u1", f.UserID)
	assert.Equal(t, "actor", f.ActorID)
}

func TestAggregationSeparateBucketsPerRecipient(t *testing.T) {
	sink := &fakeSink{}
	ab := NewAggregationBuffer(time.Hour, nil, sink, zap.NewNop())
	ctx := context.Background()

	_, _ = ab.Add(ctx, taskEntity, []domain.FieldChange{change("status", "")}, "u1", "", false)
	_, _ = ab.Add(ctx, taskEntity, []domain.FieldChange{change("status", "")}, "u2", "", false)
	_, _ = ab.Add(ctx, EntityRef{Type: "order", ID: "o-9"}, []domain.FieldChange{change("total", "")}, "u1", "", false)

	assert.Equal(t, 3, ab.PendingBuckets())
}

func TestAggregationImmediateBypassesBuffer(t *testing.T) {
	sink := &fakeSink{}
	ab := NewAggregationBuffer(time.Hour, nil, sink, zap.NewNop())
	ctx := context.Background()

	// Something already pending for the same key must stay pending.
	_, _ = ab.Add(ctx, taskEntity, []domain.FieldChange{change("status", "")}, "u1", "", false)

	buffered, err := ab.Add(ctx, taskEntity, []domain.FieldChange{change("priority", "Priority raised")}, "u1", "actor", true)
	require.NoError(t, err)
	assert.False(t, buffered)

	require.Equal(t, 1, sink.count(), "immediate changes flush on their own")
	assert.Equal(t, "priority", sink.last().Changes[0].Field)
	assert.Equal(t, 1, ab.PendingBuckets(), "the pending bucket is untouched")
}

func TestAggregationWindowExpiryFlushes(t *testing.T) {
	sink := &fakeSink{}
	ab := NewAggregationBuffer(20*time.Millisecond, nil, sink, zap.NewNop())

	_, err := ab.Add(context.Background(), taskEntity, []domain.FieldChange{change("status", "")}, "u1", "", false)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, ab.PendingBuckets())
}

func TestAggregationFieldGateFiltersChanges(t *testing.T) {
	gate := func(_ context.Context, _, field string) (bool, error) {
		return field != "muted_field", nil
	}
	sink := &fakeSink{}
	ab := NewAggregationBuffer(time.Hour, gate, sink, zap.NewNop())
	ctx := context.Background()

	buffered, err := ab.Add(ctx, taskEntity, []domain.FieldChange{change("muted_field", "")}, "u1", "", false)
	require.NoError(t, err)
	assert.False(t, buffered, "a fully filtered change set is dropped silently")
	assert.Equal(t, 0, ab.PendingBuckets())

	buffered, err = ab.Add(ctx, taskEntity, []domain.FieldChange{
		change("muted_field", ""),
		change("status", ""),
	}, "u1", "", false)
	require.NoError(t, err)
	assert.True(t, buffered)

	ab.Cleanup()
	require.Equal(t, 1, sink.count())
	require.Len(t, sink.last().Changes, 1)
	assert.Equal(t, "status", sink.last().Changes[0].Field)
}

func TestAggregationFieldGateErrorKeepsChange(t *testing.T) {
	gate := func(_ context.Context, _, _ string) (bool, error) {
		return false, assert.AnError
	}
	sink := &fakeSink{}
	ab := NewAggregationBuffer(time.Hour, gate, sink, zap.NewNop())

	buffered, err := ab.Add(context.Background(), taskEntity, []domain.FieldChange{change("status", "")}, "u1", "", false)
	require.NoError(t, err)
	assert.True(t, buffered, "gate failures must not swallow changes")
}

func TestAggregationCleanupFlushesEverything(t *testing.T) {
	sink := &fakeSink{}
	ab := NewAggregationBuffer(time.Hour, nil, sink, zap.NewNop())
	ctx := context.Background()

	_, _ = ab.Add(ctx, taskEntity, []domain.FieldChange{change("a", "")}, "u1", "", false)
	_, _ = ab.Add(ctx, taskEntity, []domain.FieldChange{change("b", "")}, "u2", "", false)

	ab.Cleanup()
	assert.Equal(t, 2, sink.count())
	assert.Equal(t, 0, ab.PendingBuckets())

	// Idempotent.
	ab.Cleanup()
	assert.Equal(t, 2, sink.count())
}
