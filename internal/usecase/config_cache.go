package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dispatch-service/internal/domain"
	"dispatch-service/internal/repository"
	"dispatch-service/pkg/xerrors"

	"go.uber.org/zap"
)

// ConfigCacheTTL bounds how stale a cached configuration may get before the
// next read reloads it.
const ConfigCacheTTL = 5 * time.Minute

type cachedConfig struct {
	cfg       *domain.NotificationConfig
	expiresAt time.Time
}

// ConfigStore resolves notification configurations by key through a
// TTL-bounded in-memory cache. Admin mutations go through this store so the
// cache is invalidated in the same place the data changes.
type ConfigStore struct {
	repo   repository.ConfigRepository
	ttl    time.Duration
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]cachedConfig

	now func() time.Time
}

func NewConfigStore(repo repository.ConfigRepository, logger *zap.Logger) *ConfigStore {
	return &ConfigStore{
		repo:    repo,
		ttl:     ConfigCacheTTL,
		logger:  logger,
		entries: make(map[string]cachedConfig),
		now:     time.Now,
	}
}

// Get returns the configuration for key, or (nil, nil) when none exists.
// A failing backing load propagates; no default configuration is fabricated.
func (s *ConfigStore) Get(ctx context.Context, key string) (*domain.NotificationConfig, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if ok && s.now().Before(entry.expiresAt) {
		return entry.cfg, nil
	}

	cfg, err := s.repo.GetConfigByKey(ctx, key)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load config %q: %w", key, err)
	}

	s.mu.Lock()
	s.entries[key] = cachedConfig{cfg: cfg, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return cfg, nil
}

// Invalidate removes one cached entry.
func (s *ConfigStore) Invalidate(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// InvalidateAll clears the whole cache.
func (s *ConfigStore) InvalidateAll() {
	s.mu.Lock()
	s.entries = make(map[string]cachedConfig)
	s.mu.Unlock()
}

// -----------------------------
// Admin operations
// -----------------------------

func (s *ConfigStore) CreateConfig(ctx context.Context, cfg *domain.NotificationConfig) (*domain.NotificationConfig, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	created, err := s.repo.CreateConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.Invalidate(created.Key)
	s.logger.Info("notification config created", zap.String("key", created.Key))
	return created, nil
}

func (s *ConfigStore) UpdateConfig(ctx context.Context, cfg *domain.NotificationConfig) (*domain.NotificationConfig, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	updated, err := s.repo.UpdateConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.Invalidate(updated.Key)
	s.logger.Info("notification config updated", zap.String("key", updated.Key))
	return updated, nil
}

func (s *ConfigStore) DeleteConfig(ctx context.Context, key string) error {
	if err := s.repo.DeleteConfig(ctx, key); err != nil {
		return err
	}
	s.Invalidate(key)
	s.logger.Info("notification config deleted", zap.String("key", key))
	return nil
}

func (s *ConfigStore) ListConfigs(ctx context.Context) ([]*domain.NotificationConfig, error) {
	return s.repo.ListConfigs(ctx)
}

// validateConfig rejects invalid channel/type values before any mutation.
func validateConfig(cfg *domain.NotificationConfig) error {
	if cfg.Key == "" || cfg.Type == "" {
		return xerrors.ErrInvalidInput
	}
	for _, ch := range cfg.DefaultChannels {
		if !domain.ValidChannel(ch) {
			return fmt.Errorf("default channel %q: %w", ch, xerrors.ErrInvalidChannel)
		}
	}
	for _, ch := range cfg.MandatoryChannels {
		if !domain.ValidChannel(ch) {
			return fmt.Errorf("mandatory channel %q: %w", ch, xerrors.ErrInvalidChannel)
		}
	}
	for ch := range cfg.Templates {
		if !domain.ValidChannel(ch) {
			return fmt.Errorf("template channel %q: %w", ch, xerrors.ErrInvalidChannel)
		}
	}
	if cfg.MaxPerDay != nil && *cfg.MaxPerDay <= 0 {
		return xerrors.ErrInvalidInput
	}
	if cfg.DedupWindowMinutes != nil && *cfg.DedupWindowMinutes <= 0 {
		return xerrors.ErrInvalidInput
	}
	return nil
}
