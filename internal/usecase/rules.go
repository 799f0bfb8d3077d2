package usecase

import (
	"fmt"
	"math"
	"sync"
	"time"

	"dispatch-service/internal/domain"

	"go.uber.org/zap"
)

// RuleContext carries the per-dispatch inputs to a business-rule check.
type RuleContext struct {
	UserID string
}

// RuleEngine evaluates the configured business rules in fixed order:
// enabled, work-schedule gate, frequency cap, deduplication window. The
// first failing check short-circuits. Frequency and dedup state live in
// per-process maps; a user with no tracked state always passes (fail open).
type RuleEngine struct {
	schedule WorkSchedule
	logger   *zap.Logger

	mu       sync.Mutex
	sends    map[string][]time.Time // userID|configKey -> send timestamps today
	lastSend map[string]time.Time   // userID|configKey -> last allowed send

	now func() time.Time
}

func NewRuleEngine(schedule WorkSchedule, logger *zap.Logger) *RuleEngine {
	return &RuleEngine{
		schedule: schedule,
		logger:   logger,
		sends:    make(map[string][]time.Time),
		lastSend: make(map[string]time.Time),
		now:      time.Now,
	}
}

func trackerKey(userID, configKey string) string {
	return userID + "|" + configKey
}

// CheckBusinessRules never errors; tracker state is in-memory and a missing
// entry means "allow".
func (re *RuleEngine) CheckBusinessRules(cfg *domain.NotificationConfig, rctx RuleContext) domain.RuleCheckResult {
	if cfg == nil {
		return domain.RuleCheckResult{Allowed: true}
	}

	// 1. Enabled check
	if !cfg.Enabled {
		return domain.RuleCheckResult{Allowed: false, Reason: "notification disabled by configuration"}
	}

	now := re.now()

	// 2. Work-schedule gate
	if cfg.RespectWorkHours && re.schedule != nil && !re.schedule.CanSendNow(now) {
		return domain.RuleCheckResult{
			Allowed:          false,
			Reason:           "outside work hours",
			ShouldReschedule: true,
			RescheduleAt:     re.schedule.NextSendableTime(now),
		}
	}

	// 3. Frequency cap
	if cfg.MaxPerDay != nil && rctx.UserID != "" {
		if res := re.checkFrequency(cfg, rctx.UserID, now); !res.Allowed {
			return res
		}
	}

	// 4. Deduplication window
	if cfg.DedupWindowMinutes != nil && rctx.UserID != "" {
		if res := re.checkDedup(cfg, rctx.UserID, now); !res.Allowed {
			return res
		}
	}

	return domain.RuleCheckResult{Allowed: true}
}

func (re *RuleEngine) checkFrequency(cfg *domain.NotificationConfig, userID string, now time.Time) domain.RuleCheckResult {
	key := trackerKey(userID, cfg.Key)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	re.mu.Lock()
	defer re.mu.Unlock()

	kept := re.sends[key][:0]
	for _, ts := range re.sends[key] {
		if !ts.Before(dayStart) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= *cfg.MaxPerDay {
		re.sends[key] = kept
		re.logger.Debug("frequency cap reached",
			zap.String("user_id", userID),
			zap.String("config_key", cfg.Key),
			zap.Int("max_per_day", *cfg.MaxPerDay))
		return domain.RuleCheckResult{
			Allowed: false,
			Reason:  fmt.Sprintf("max per day reached (%d)", *cfg.MaxPerDay),
		}
	}

	re.sends[key] = append(kept, now)
	return domain.RuleCheckResult{Allowed: true}
}

func (re *RuleEngine) checkDedup(cfg *domain.NotificationConfig, userID string, now time.Time) domain.RuleCheckResult {
	key := trackerKey(userID, cfg.Key)
	window := time.Duration(*cfg.DedupWindowMinutes) * time.Minute

	re.mu.Lock()
	defer re.mu.Unlock()

	if last, ok := re.lastSend[key]; ok {
		since := now.Sub(last)
		if since < window {
			remaining := int(math.Ceil((window - since).Minutes()))
			return domain.RuleCheckResult{
				Allowed: false,
				Reason:  fmt.Sprintf("sent recently, wait %d minutes", remaining),
			}
		}
	}

	re.lastSend[key] = now
	return domain.RuleCheckResult{Allowed: true}
}
