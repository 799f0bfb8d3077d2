package usecase

import (
	"testing"
	"time"

	"dispatch-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap"
)

func enabledConfig(key string) *domain.NotificationConfig {
	return &domain.NotificationConfig{Key: key, Type: string(domain.General), Enabled: true}
}

func TestRulesNilConfigAllows(t *testing.T) {
	re := NewRuleEngine(openSchedule{}, zap.NewNop())
	res := re.CheckBusinessRules(nil, RuleContext{UserID: "u1"})
	assert.True(t, res.Allowed)
}

func TestRulesDisabledConfigDenies(t *testing.T) {
	re := NewRuleEngine(openSchedule{}, zap.NewNop())
	cfg := enabledConfig("k")
	cfg.Enabled = false

	res := re.CheckBusinessRules(cfg, RuleContext{UserID: "u1"})
	assert.False(t, res.Allowed)
	assert.Equal(t, "notification disabled by configuration", res.Reason)
	assert.False(t, res.ShouldReschedule)
}

func TestRulesOutsideWorkHoursReschedules(t *testing.T) {
	next := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	re := NewRuleEngine(closedSchedule{next: next}, zap.NewNop())
	cfg := enabledConfig("k")
	cfg.RespectWorkHours = true

	res := re.CheckBusinessRules(cfg, RuleContext{UserID: "u1"})
	require.False(t, res.Allowed)
	assert.True(t, res.ShouldReschedule)
	assert.Equal(t, next, res.RescheduleAt)
}

func TestRulesWorkHoursIgnoredWhenConfigDoesNotCare(t *testing.T) {
	re := NewRuleEngine(closedSchedule{}, zap.NewNop())
	cfg := enabledConfig("k")

	res := re.CheckBusinessRules(cfg, RuleContext{UserID: "u1"})
	assert.True(t, res.Allowed)
}

func TestRulesFrequencyCapBoundary(t *testing.T) {
	re := NewRuleEngine(openSchedule{}, zap.NewNop())
	maxPerDay := 3
	cfg := enabledConfig("stock.low")
	cfg.MaxPerDay = &maxPerDay

	for i := 0; i < 3; i++ {
		res := re.CheckBusinessRules(cfg, RuleContext{UserID: "u1"})
		require.True(t, res.Allowed, "send %d should pass", i+1)
	}

	res := re.CheckBusinessRules(cfg, RuleContext{UserID: "u1"})
	require.False(t, res.Allowed)
	assert.Equal(t, "max per day reached (3)", res.Reason)

	// Another user's counter is independent.
	res = re.CheckBusinessRules(cfg, RuleContext{UserID: "u2"})
	assert.True(t, res.Allowed)
}

func TestRulesFrequencyCapResetsAtMidnight(t *testing.T) {
	re := NewRuleEngine(openSchedule{}, zap.NewNop())
	maxPerDay := 1
	cfg := enabledConfig("k")
	cfg.MaxPerDay = &maxPerDay

	base := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	re.now = func() time.Time { return base }

	require.True(t, re.CheckBusinessRules(cfg, RuleContext{UserID: "u1"}).Allowed)
	require.False(t, re.CheckBusinessRules(cfg, RuleContext{UserID: "u1"}).Allowed)

	re.now = func() time.Time { return base.Add(2 * time.Hour) } // next day
	assert.True(t, re.CheckBusinessRules(cfg, RuleContext{UserID: "u1"}).Allowed)
}

func TestRulesDedupWindow(t *testing.T) {
	re := NewRuleEngine(openSchedule{}, zap.NewNop())
	window := 30
	cfg := enabledConfig("task.comment")
	cfg.DedupWindowMinutes = &window

	base := time.Now()
	re.now = func() time.Time { return base }

	require.True(t, re.CheckBusinessRules(cfg, RuleContext{UserID: "u1"}).Allowed)

	re.now = func() time.Time { return base.Add(10 * time.Minute) }
	res := re.CheckBusinessRules(cfg, RuleContext{UserID: "u1"})
	require.False(t, res.Allowed)
	assert.Equal(t, "sent recently, wait 20 minutes", res.Reason)

	re.now = func() time.Time { return base.Add(31 * time.Minute) }
	assert.True(t, re.CheckBusinessRules(cfg, RuleContext{UserID: "u1"}).Allowed)
}

func TestRulesDedupIsPerConfigKey(t *testing.T) {
	re := NewRuleEngine(openSchedule{}, zap.NewNop())
	window := 30

	a := enabledConfig("key.a")
	a.DedupWindowMinutes = &window
	b := enabledConfig("key.b")
	b.DedupWindowMinutes = &window

	require.True(t, re.CheckBusinessRules(a, RuleContext{UserID: "u1"}).Allowed)
	assert.True(t, re.CheckBusinessRules(b, RuleContext{UserID: "u1"}).Allowed)
}

func TestOfficeHours(t *testing.T) {
	oh := NewOfficeHours(8, 18, time.UTC)

	mondayNoon := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	assert.True(t, oh.CanSendNow(mondayNoon))

	mondayNight := time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)
	assert.False(t, oh.CanSendNow(mondayNight))
	// After close, the next window opens tomorrow morning.
	assert.Equal(t, time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC), oh.NextSendableTime(mondayNight))

	mondayEarly := time.Date(2026, 3, 2, 6, 30, 0, 0, time.UTC)
	assert.False(t, oh.CanSendNow(mondayEarly))
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), oh.NextSendableTime(mondayEarly))

	saturday := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	assert.False(t, oh.CanSendNow(saturday))
	assert.Equal(t, time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC), oh.NextSendableTime(saturday))

	oh.AddHoliday(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC), oh.NextSendableTime(mondayNight))
}
