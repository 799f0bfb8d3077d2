package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dispatch-service/internal/domain"
	"dispatch-service/pkg/notifier"
	ws "dispatch-service/pkg/notifier/ws"
	"dispatch-service/pkg/template"
	"dispatch-service/pkg/xerrors"

	"go.uber.org/zap"
)

// fakeRepo is an in-memory repository.Repository used across the usecase
// tests. Mutations hold the same lock the reads do, so concurrent dispatch
// paths can run against it.
type fakeRepo struct {
	mu            sync.Mutex
	notifications map[int64]*domain.Notification
	deliveries    map[int64]*domain.Delivery
	configs       map[string]*domain.NotificationConfig
	prefs         map[string]*domain.NotificationPreference
	users         map[string]*domain.User
	nextID        int64

	configGets int
	configErr  error
	prefErr    error
	userErr    error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		notifications: make(map[int64]*domain.Notification),
		deliveries:    make(map[int64]*domain.Delivery),
		configs:       make(map[string]*domain.NotificationConfig),
		prefs:         make(map[string]*domain.NotificationPreference),
		users:         make(map[string]*domain.User),
	}
}

func (f *fakeRepo) id() int64 {
	f.nextID++
	return f.nextID
}

func prefKey(userID, ptype, eventType string) string {
	return userID + "|" + ptype + "|" + eventType
}

// --- NotificationRepository ---

func (f *fakeRepo) CreateNotification(_ context.Context, n *domain.Notification) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *n
	cp.ID = f.id()
	if cp.RequestID == "" {
		cp.RequestID = fmt.Sprintf("req-%d", cp.ID)
	}
	if cp.Status == "" {
		cp.Status = domain.NotificationPending
	}
	cp.CreatedAt = time.Now()
	f.notifications[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeRepo) GetNotificationByID(_ context.Context, id int64) (*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (f *fakeRepo) ListNotificationsByUser(_ context.Context, userID string, _, _ int) ([]*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Notification
	for _, n := range f.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListUnreadNotifications(_ context.Context, userID string, _, _ int) ([]*domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Notification
	for _, n := range f.notifications {
		if n.UserID == userID && n.ReadAt == nil && n.VisibleInApp {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	items, _ := f.ListUnreadNotifications(ctx, userID, 0, 0)
	return len(items), nil
}

func (f *fakeRepo) MarkNotificationAsRead(_ context.Context, id int64, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.UserID != userID {
		return xerrors.ErrNotFound
	}
	now := time.Now()
	n.ReadAt = &now
	return nil
}

func (f *fakeRepo) HideNotification(_ context.Context, id int64, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.UserID != userID {
		return xerrors.ErrNotFound
	}
	n.VisibleInApp = false
	return nil
}

func (f *fakeRepo) UpdateNotificationStatus(_ context.Context, id int64, status string, sentAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	n.Status = status
	if sentAt != nil {
		n.SentAt = sentAt
	}
	return nil
}

func (f *fakeRepo) RescheduleNotification(_ context.Context, id int64, scheduledAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	n.Status = domain.NotificationScheduled
	n.ScheduledAt = &scheduledAt
	return nil
}

// --- DeliveryRepository ---

func (f *fakeRepo) CreateDelivery(_ context.Context, d *domain.Delivery) (*domain.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	cp.ID = f.id()
	if cp.Status == "" {
		cp.Status = domain.DeliveryPending
	}
	cp.CreatedAt = time.Now()
	f.deliveries[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (f *fakeRepo) GetDeliveryByID(_ context.Context, id int64) (*domain.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeRepo) MarkDeliveryProcessing(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	d.Status = domain.DeliveryProcessing
	if d.SentAt == nil {
		now := time.Now()
		d.SentAt = &now
	}
	return nil
}

func (f *fakeRepo) MarkDeliveryDelivered(_ context.Context, id int64, externalID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	d.Status = domain.DeliveryDelivered
	d.ExternalID = externalID
	now := time.Now()
	d.DeliveredAt = &now
	return nil
}

func (f *fakeRepo) MarkDeliveryFailed(_ context.Context, id int64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	d.Status = domain.DeliveryFailed
	d.LastError = &errMsg
	now := time.Now()
	d.FailedAt = &now
	return nil
}

func (f *fakeRepo) MarkDeliveryRetrying(_ context.Context, id int64, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deliveries[id]
	if !ok {
		return xerrors.ErrNotFound
	}
	d.Status = domain.DeliveryRetrying
	d.AttemptCount++
	d.LastError = &lastError
	return nil
}

func (f *fakeRepo) ListDeliveriesByNotification(_ context.Context, notificationID int64) ([]*domain.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Delivery
	for _, d := range f.deliveries {
		if d.NotificationID == notificationID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountDeliveriesByStatus(_ context.Context, notificationID int64) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int)
	for _, d := range f.deliveries {
		if d.NotificationID == notificationID {
			counts[d.Status]++
		}
	}
	return counts, nil
}

func (f *fakeRepo) ListStuckDeliveries(_ context.Context, olderThan time.Duration, limit int) ([]*domain.Delivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var out []*domain.Delivery
	for _, d := range f.deliveries {
		stuck := d.Status == domain.DeliveryProcessing && d.SentAt != nil && d.SentAt.Before(cutoff)
		retryable := d.Status == domain.DeliveryFailed && d.AttemptCount < domain.MaxDeliveryRetries &&
			d.FailedAt != nil && d.FailedAt.Before(cutoff)
		if stuck || retryable {
			cp := *d
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// --- ConfigRepository ---

func (f *fakeRepo) GetConfigByKey(_ context.Context, key string) (*domain.NotificationConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configGets++
	if f.configErr != nil {
		return nil, f.configErr
	}
	c, ok := f.configs[key]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRepo) CreateConfig(_ context.Context, c *domain.NotificationConfig) (*domain.NotificationConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	cp.ID = f.id()
	f.configs[cp.Key] = &cp
	return &cp, nil
}

func (f *fakeRepo) UpdateConfig(_ context.Context, c *domain.NotificationConfig) (*domain.NotificationConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[c.Key]; !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *c
	f.configs[cp.Key] = &cp
	return &cp, nil
}

func (f *fakeRepo) DeleteConfig(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[key]; !ok {
		return xerrors.ErrNotFound
	}
	delete(f.configs, key)
	return nil
}

func (f *fakeRepo) ListConfigs(_ context.Context) ([]*domain.NotificationConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.NotificationConfig
	for _, c := range f.configs {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

// --- PreferenceRepository ---

func (f *fakeRepo) GetPreference(_ context.Context, userID, ptype, eventType string) (*domain.NotificationPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prefErr != nil {
		return nil, f.prefErr
	}
	p, ok := f.prefs[prefKey(userID, ptype, eventType)]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeRepo) UpsertPreference(_ context.Context, p *domain.NotificationPreference) (*domain.NotificationPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	if cp.ID == 0 {
		cp.ID = f.id()
	}
	f.prefs[prefKey(cp.UserID, cp.Type, cp.EventType)] = &cp
	return &cp, nil
}

func (f *fakeRepo) ListPreferencesByUser(_ context.Context, userID string) ([]*domain.NotificationPreference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.NotificationPreference
	for _, p := range f.prefs {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) DeletePreference(_ context.Context, userID, ptype, eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := prefKey(userID, ptype, eventType)
	if _, ok := f.prefs[key]; !ok {
		return xerrors.ErrNotFound
	}
	delete(f.prefs, key)
	return nil
}

// --- UserRepository ---

func (f *fakeRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return nil, f.userErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, xerrors.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) ListActiveUsers(_ context.Context) ([]*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.User
	for _, u := range f.users {
		if u.Active {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListUsersBySectors(_ context.Context, sectors []string) ([]*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.User
	for _, u := range f.users {
		if !u.Active {
			continue
		}
		for _, s := range sectors {
			if u.Sector == s {
				cp := *u
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) addUser(u *domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
}

// fakeQueue records queued channel jobs.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []*domain.ChannelJob
	err  error
}

func (q *fakeQueue) PublishChannelJob(job *domain.ChannelJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *fakeQueue) last() *domain.ChannelJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return nil
	}
	return q.jobs[len(q.jobs)-1]
}

// fakeEvents records lifecycle events.
type fakeEvents struct {
	mu     sync.Mutex
	events []*domain.LifecycleEvent
}

func (e *fakeEvents) PublishLifecycle(ev *domain.LifecycleEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *fakeEvents) kinds() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Kind)
	}
	return out
}

// openSchedule always allows sending.
type openSchedule struct{}

func (openSchedule) CanSendNow(time.Time) bool              { return true }
func (openSchedule) NextSendableTime(t time.Time) time.Time { return t }

// closedSchedule never allows sending; next window is fixed.
type closedSchedule struct {
	next time.Time
}

func (closedSchedule) CanSendNow(time.Time) bool              { return false }
func (s closedSchedule) NextSendableTime(time.Time) time.Time { return s.next }

type testEnv struct {
	repo   *fakeRepo
	queue  *fakeQueue
	events *fakeEvents
	disp   *Dispatcher
}

func newTestEnv(schedule WorkSchedule) *testEnv {
	repo := newFakeRepo()
	queue := &fakeQueue{}
	events := &fakeEvents{}
	logger := zap.NewNop()

	notif := notifier.NewNotifier(ws.NewManager(), queue, logger)
	disp := NewDispatcher(
		repo,
		NewConfigStore(repo, logger),
		NewRuleEngine(schedule, logger),
		NewRecipientResolver(repo, logger),
		NewChannelResolver(repo, logger),
		template.NewEngine(),
		notif,
		events,
		schedule,
		logger,
	)
	return &testEnv{repo: repo, queue: queue, events: events, disp: disp}
}
