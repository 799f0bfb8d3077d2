package usecase

import (
	"context"
	"errors"

	"dispatch-service/internal/domain"
	"dispatch-service/internal/repository"
	"dispatch-service/pkg/xerrors"

	"go.uber.org/zap"
)

// ChannelResolver merges mandatory, default and user-preferred channels and
// filters them by contactability.
type ChannelResolver struct {
	prefs  repository.PreferenceRepository
	logger *zap.Logger
}

func NewChannelResolver(prefs repository.PreferenceRepository, logger *zap.Logger) *ChannelResolver {
	return &ChannelResolver{prefs: prefs, logger: logger}
}

// ResolveChannelsForUser returns the channel set for one user under cfg.
// Mandatory channels are always included; the user's preference (when the
// row exists and is enabled) or the configuration defaults supply the rest.
// A disabled preference contributes nothing beyond mandatory channels.
func (cr *ChannelResolver) ResolveChannelsForUser(ctx context.Context, cfg *domain.NotificationConfig, user *domain.User) ([]string, error) {
	if cfg == nil {
		return nil, xerrors.ErrConfigNotFound
	}

	selected := make(map[string]struct{})
	for _, ch := range cfg.MandatoryChannels {
		selected[ch] = struct{}{}
	}

	pref, err := cr.loadPreference(ctx, cfg, user)
	switch {
	case err != nil:
		// Transient preference-store failure: fall back to the configuration
		// defaults rather than silently under-delivering.
		cr.logger.Warn("preference lookup failed, using config defaults",
			zap.String("user_id", user.ID),
			zap.String("config_key", cfg.Key),
			zap.Error(err))
		for _, ch := range cfg.DefaultChannels {
			selected[ch] = struct{}{}
		}
	case pref == nil:
		for _, ch := range cfg.DefaultChannels {
			selected[ch] = struct{}{}
		}
	case pref.Enabled:
		for _, ch := range pref.Channels {
			selected[ch] = struct{}{}
		}
	}

	// Stable channel order, filtered by contactability.
	var out []string
	for _, ch := range domain.AllChannels {
		if _, ok := selected[ch]; !ok {
			continue
		}
		if !Contactable(user, ch) {
			continue
		}
		out = append(out, ch)
	}
	return out, nil
}

// loadPreference reads the user's preference row, lazily seeding it from the
// static default table on first access. Returns nil when the user has no
// preference and no default exists for the type.
func (cr *ChannelResolver) loadPreference(ctx context.Context, cfg *domain.NotificationConfig, user *domain.User) (*domain.NotificationPreference, error) {
	pref, err := cr.prefs.GetPreference(ctx, user.ID, cfg.Type, cfg.EventType)
	if err == nil {
		return pref, nil
	}
	if !errors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	def, ok := domain.DefaultPreferences[cfg.Type]
	if !ok {
		return nil, nil
	}

	seeded := &domain.NotificationPreference{
		UserID:    user.ID,
		Type:      cfg.Type,
		EventType: cfg.EventType,
		Enabled:   def.Enabled,
		Channels:  def.Channels,
		Mandatory: def.Mandatory,
	}
	created, err := cr.prefs.UpsertPreference(ctx, seeded)
	if err != nil {
		// Seeding is best effort; resolution proceeds on the in-memory copy.
		cr.logger.Warn("failed to seed default preference",
			zap.String("user_id", user.ID),
			zap.String("type", cfg.Type),
			zap.Error(err))
		return seeded, nil
	}
	return created, nil
}

// Contactable reports whether the user is reachable on ch at this layer.
// In-app and push are always assumed deliverable.
func Contactable(user *domain.User, ch string) bool {
	switch ch {
	case domain.ChannelEmail:
		return user.Email != ""
	case domain.ChannelSMS, domain.ChannelWhatsApp:
		return user.Phone != ""
	default:
		return true
	}
}

// AddressFor returns the delivery address the channel transport needs.
func AddressFor(user *domain.User, ch string) string {
	switch ch {
	case domain.ChannelEmail:
		return user.Email
	case domain.ChannelSMS, domain.ChannelWhatsApp:
		return user.Phone
	default:
		return ""
	}
}
