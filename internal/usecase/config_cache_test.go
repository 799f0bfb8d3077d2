package usecase

import (
	"context"
	"testing"
	"time"

	"dispatch-service/internal/domain"
	"dispatch-service/pkg/xerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

func seedConfig(repo *fakeRepo, key string) *domain.NotificationConfig {
	cfg := &domain.NotificationConfig{
		Key:             key,
		Type:            string(domain.TaskAssigned),
		DefaultChannels: []string{domain.ChannelInApp},
		Enabled:         true,
	}
	created, _ := repo.CreateConfig(context.Background(), cfg)
	return created
}

func TestConfigStoreCachesWithinTTL(t *testing.T) {
	repo := newFakeRepo()
	seedConfig(repo, "task.assigned")
	store := NewConfigStore(repo, zap.NewNop())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		cfg, err := store.Get(ctx, "task.assigned")
		require.NoError(t, err)
		require.NotNil(t, cfg)
	}
	assert.Equal(t, 1, repo.configGets, "repeated reads inside the TTL must hit the cache")
}

func TestConfigStoreExpiresAfterTTL(t *testing.T) {
	repo := newFakeRepo()
	seedConfig(repo, "task.assigned")
	store := NewConfigStore(repo, zap.NewNop())

	base := time.Now()
	store.now = func() time.Time { return base }

	ctx := context.Background()
	_, err := store.Get(ctx, "task.assigned")
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(ConfigCacheTTL + time.Second) }
	_, err = store.Get(ctx, "task.assigned")
	require.NoError(t, err)

	assert.Equal(t, 2, repo.configGets)
}

func TestConfigStoreMissingKeyIsNotAnError(t *testing.T) {
	store := NewConfigStore(newFakeRepo(), zap.NewNop())

	cfg, err := store.Get(context.Background(), "no.such.key")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestConfigStoreBackingErrorPropagates(t *testing.T) {
	repo := newFakeRepo()
	repo.configErr = assert.AnError
	store := NewConfigStore(repo, zap.NewNop())

	_, err := store.Get(context.Background(), "task.assigned")
	assert.Error(t, err)
}

func TestConfigStoreUpdateInvalidatesCache(t *testing.T) {
	repo := newFakeRepo()
	created := seedConfig(repo, "task.assigned")
	store := NewConfigStore(repo, zap.NewNop())

	ctx := context.Background()
	cfg, err := store.Get(ctx, "task.assigned")
	require.NoError(t, err)
	require.True(t, cfg.Enabled)

	created.Enabled = false
	_, err = store.UpdateConfig(ctx, created)
	require.NoError(t, err)

	cfg, err = store.Get(ctx, "task.assigned")
	require.NoError(t, err)
	assert.False(t, cfg.Enabled, "update must be visible immediately, not after TTL")
}

func TestConfigValidation(t *testing.T) {
	store := NewConfigStore(newFakeRepo(), zap.NewNop())
	ctx := context.Background()

	bad := &domain.NotificationConfig{
		Key:             "bad.channel",
		Type:            string(domain.General),
		DefaultChannels: []string{"carrier_pigeon"},
	}
	_, err := store.CreateConfig(ctx, bad)
	assert.ErrorIs(t, err, xerrors.ErrInvalidChannel)

	zero := 0
	badCap := &domain.NotificationConfig{
		Key:             "bad.cap",
		Type:            string(domain.General),
		DefaultChannels: []string{domain.ChannelInApp},
		MaxPerDay:       &zero,
	}
	_, err = store.CreateConfig(ctx, badCap)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}
