package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dispatch-service/internal/domain"
	"dispatch-service/internal/repository"
	"dispatch-service/pkg/notifier"
	"dispatch-service/pkg/template"
	"dispatch-service/pkg/xerrors"

	"go.uber.org/zap"
)

// EventPublisher is the fire-and-forget lifecycle event sink.
type EventPublisher interface {
	PublishLifecycle(ev *domain.LifecycleEvent)
}

// Dispatcher is the top-level per-notification workflow: gating, recipient
// and channel resolution, fan-out, delivery bookkeeping, finalization.
type Dispatcher struct {
	repo       repository.Repository
	configs    *ConfigStore
	rules      *RuleEngine
	recipients *RecipientResolver
	channels   *ChannelResolver
	templates  *template.Engine
	notifier   *notifier.Notifier
	events     EventPublisher
	schedule   WorkSchedule
	agg        *AggregationBuffer
	logger     *zap.Logger

	now func() time.Time
}

func NewDispatcher(
	repo repository.Repository,
	configs *ConfigStore,
	rules *RuleEngine,
	recipients *RecipientResolver,
	channels *ChannelResolver,
	templates *template.Engine,
	notif *notifier.Notifier,
	events EventPublisher,
	schedule WorkSchedule,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:       repo,
		configs:    configs,
		rules:      rules,
		recipients: recipients,
		channels:   channels,
		templates:  templates,
		notifier:   notif,
		events:     events,
		schedule:   schedule,
		logger:     logger,
		now:        time.Now,
	}
}

// AttachAggregator wires the aggregation buffer. Done after construction
// because the buffer flushes back through the dispatcher.
func (d *Dispatcher) AttachAggregator(agg *AggregationBuffer) {
	d.agg = agg
}

// -----------------------------
// Notifications
// -----------------------------

// CreateNotification validates and persists a new notification. Dispatch is
// a separate step.
func (d *Dispatcher) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if n.Type == "" {
		return nil, xerrors.ErrInvalidType
	}
	for _, ch := range n.ChannelHint {
		if !domain.ValidChannel(ch) {
			return nil, fmt.Errorf("channel hint %q: %w", ch, xerrors.ErrInvalidChannel)
		}
	}
	created, err := d.repo.CreateNotification(ctx, n)
	if err != nil {
		return nil, err
	}
	d.publish(&domain.LifecycleEvent{Kind: domain.EventCreated, NotificationID: created.ID, UserID: created.UserID})
	return created, nil
}

// Dispatch runs the full delivery workflow for one notification id.
func (d *Dispatcher) Dispatch(ctx context.Context, id int64) error {
	n, err := d.repo.GetNotificationByID(ctx, id)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return xerrors.ErrNotificationNotFound
		}
		d.failDispatch(id, err)
		return fmt.Errorf("load notification %d: %w", id, err)
	}

	now := d.now()

	// Already sent, or not due yet.
	if n.IsSent() {
		return nil
	}
	if n.ScheduledAt != nil && n.ScheduledAt.After(now) {
		return nil
	}

	cfg, err := d.configs.Get(ctx, d.configKey(n))
	if err != nil {
		d.failDispatch(id, err)
		return err
	}

	// A late-arriving dispatch for a configuration disabled in the meantime
	// must not fire.
	if cfg != nil && !cfg.Enabled {
		d.logger.Info("dispatch skipped, configuration disabled",
			zap.Int64("notification_id", id),
			zap.String("config_key", cfg.Key))
		return nil
	}

	// Work-schedule gate, applied directly on the notification.
	if cfg != nil && cfg.RespectWorkHours && d.schedule != nil && !d.schedule.CanSendNow(now) {
		if n.MetaBool(domain.MetaNoReschedule) {
			d.logger.Info("dispatch dropped outside work hours",
				zap.Int64("notification_id", id))
			return d.repo.UpdateNotificationStatus(ctx, id, domain.NotificationProcessed, nil)
		}
		next := d.schedule.NextSendableTime(now)
		if err := d.repo.RescheduleNotification(ctx, id, next); err != nil {
			return err
		}
		d.logger.Info("dispatch rescheduled",
			zap.Int64("notification_id", id),
			zap.Time("scheduled_at", next))
		return nil
	}

	// Frequency cap and dedup window apply to user-scoped notifications.
	if cfg != nil && n.UserID != "" {
		if res := d.rules.CheckBusinessRules(cfg, RuleContext{UserID: n.UserID}); !res.Allowed {
			d.logger.Info("dispatch suppressed by business rules",
				zap.Int64("notification_id", id),
				zap.String("reason", res.Reason))
			return d.repo.UpdateNotificationStatus(ctx, id, domain.NotificationProcessed, nil)
		}
	}

	recipients, err := d.recipients.Resolve(ctx, n, cfg)
	if err != nil {
		d.failDispatch(id, err)
		return fmt.Errorf("resolve recipients for %d: %w", id, err)
	}
	if len(recipients) == 0 {
		// Processed, not sent: zero targets is a terminal, successful outcome.
		return d.repo.UpdateNotificationStatus(ctx, id, domain.NotificationProcessed, nil)
	}

	var (
		mu        sync.Mutex
		attempts  int
		delivered bool
		wg        sync.WaitGroup
	)
	for _, u := range recipients {
		wg.Add(1)
		go func(u *domain.User) {
			defer wg.Done()
			att, ok := d.deliverToUser(ctx, n, cfg, u)
			mu.Lock()
			attempts += att
			if ok {
				delivered = true
			}
			mu.Unlock()
		}(u)
	}
	wg.Wait()

	if delivered {
		sentAt := d.now()
		if err := d.repo.UpdateNotificationStatus(ctx, id, domain.NotificationSent, &sentAt); err != nil {
			d.logger.Error("failed to mark notification sent",
				zap.Int64("notification_id", id), zap.Error(err))
		}
	} else if attempts == 0 {
		// Every recipient resolved to zero channels (opted out, nothing
		// mandatory, not contactable). Terminal like the zero-recipient case,
		// so the notification is not picked up again.
		if err := d.repo.UpdateNotificationStatus(ctx, id, domain.NotificationProcessed, nil); err != nil {
			d.logger.Error("failed to mark notification processed",
				zap.Int64("notification_id", id), zap.Error(err))
		}
	}
	// Otherwise sentAt stays unset: async outcomes arrive through
	// HandleDeliveryResult, and a fully failed dispatch stays
	// re-dispatchable.

	d.publish(&domain.LifecycleEvent{Kind: domain.EventDispatched, NotificationID: id, UserID: n.UserID})
	return nil
}

// deliverToUser resolves channels and attempts delivery on each, reporting
// how many attempts it made and whether one succeeded synchronously. A
// failure for one user never aborts the others (fail open per recipient).
func (d *Dispatcher) deliverToUser(ctx context.Context, n *domain.Notification, cfg *domain.NotificationConfig, u *domain.User) (attempts int, delivered bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("recipient delivery panicked",
				zap.Int64("notification_id", n.ID),
				zap.String("user_id", u.ID),
				zap.Any("panic", r))
			delivered = false
		}
	}()

	var chs []string
	if len(n.ChannelHint) > 0 {
		// Explicit override bypasses preference resolution; contactability
		// still applies.
		for _, ch := range n.ChannelHint {
			if domain.ValidChannel(ch) && Contactable(u, ch) {
				chs = append(chs, ch)
			}
		}
	} else if cfg == nil {
		// No configuration to resolve against: the in-app row still lands.
		chs = []string{domain.ChannelInApp}
	} else {
		var err error
		chs, err = d.channels.ResolveChannelsForUser(ctx, cfg, u)
		if err != nil {
			d.logger.Warn("channel resolution failed",
				zap.Int64("notification_id", n.ID),
				zap.String("user_id", u.ID),
				zap.Error(err))
			return 0, false
		}
	}

	for _, ch := range chs {
		attempts++
		if d.deliverChannel(ctx, n, cfg, u, ch) {
			delivered = true
		}
	}
	return attempts, delivered
}

// deliverChannel performs one isolated delivery attempt. Every error is
// caught here, recorded on the delivery record, and never propagates past
// the per-channel loop.
func (d *Dispatcher) deliverChannel(ctx context.Context, n *domain.Notification, cfg *domain.NotificationConfig, u *domain.User, ch string) (ok bool) {
	var del *domain.Delivery
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("channel delivery panicked",
				zap.Int64("notification_id", n.ID),
				zap.String("channel", ch),
				zap.Any("panic", r))
			if del != nil {
				d.recordDeliveryFailure(ctx, del, fmt.Sprintf("panic: %v", r))
			}
			ok = false
		}
	}()

	del, err := d.repo.CreateDelivery(ctx, &domain.Delivery{
		NotificationID: n.ID,
		UserID:         u.ID,
		Channel:        ch,
		Recipient:      AddressFor(u, ch),
	})
	if err != nil {
		d.logger.Error("failed to create delivery record",
			zap.Int64("notification_id", n.ID),
			zap.String("channel", ch),
			zap.Error(err))
		return false
	}
	if err := d.repo.MarkDeliveryProcessing(ctx, del.ID); err != nil {
		d.logger.Warn("failed to mark delivery processing",
			zap.Int64("delivery_id", del.ID), zap.Error(err))
	}

	title, body, html := d.renderFor(n, cfg, ch, u)

	if ch == domain.ChannelInApp {
		msg := &domain.WSMessage{
			UserID:   u.ID,
			Title:    title,
			Body:     body,
			Type:     n.Type,
			Priority: n.Priority,
			Metadata: n.Metadata,
		}
		if err := d.notifier.SendInApp(u.ID, msg); err != nil {
			d.recordDeliveryFailure(ctx, del, err.Error())
			return false
		}
		if err := d.repo.MarkDeliveryDelivered(ctx, del.ID, nil); err != nil {
			d.logger.Warn("failed to mark delivery delivered",
				zap.Int64("delivery_id", del.ID), zap.Error(err))
		}
		d.publish(&domain.LifecycleEvent{
			Kind:           domain.EventDelivered,
			NotificationID: n.ID,
			DeliveryID:     del.ID,
			UserID:         u.ID,
			Channel:        ch,
		})
		return true
	}

	job := &domain.ChannelJob{
		NotificationID: n.ID,
		DeliveryID:     del.ID,
		Channel:        ch,
		UserID:         u.ID,
		Recipient:      del.Recipient,
		Title:          title,
		Body:           body,
		HTML:           html,
		Attempt:        del.AttemptCount,
	}
	if err := d.notifier.QueueChannelJob(job); err != nil {
		d.recordDeliveryFailure(ctx, del, err.Error())
		return false
	}
	// Async: the record stays PROCESSING until the transport reports back.
	return false
}

func (d *Dispatcher) recordDeliveryFailure(ctx context.Context, del *domain.Delivery, errMsg string) {
	if err := d.repo.MarkDeliveryFailed(ctx, del.ID, errMsg); err != nil {
		d.logger.Error("failed to mark delivery failed",
			zap.Int64("delivery_id", del.ID), zap.Error(err))
	}
	d.publish(&domain.LifecycleEvent{
		Kind:           domain.EventDeliveryFailed,
		NotificationID: del.NotificationID,
		DeliveryID:     del.ID,
		UserID:         del.UserID,
		Channel:        del.Channel,
		Reason:         errMsg,
	})
}

// renderFor produces the channel content, falling back to the notification's
// own title/body with literal substitution when no template is configured.
func (d *Dispatcher) renderFor(n *domain.Notification, cfg *domain.NotificationConfig, ch string, u *domain.User) (title, body, html string) {
	vars := make(map[string]interface{}, len(n.Payload)+2)
	for k, v := range n.Payload {
		vars[k] = v
	}
	vars["UserName"] = u.FullName()
	vars["FirstName"] = template.FirstName(u.FullName())

	title, body = n.Title, n.Body
	if cfg != nil && len(cfg.Templates) > 0 {
		if r, err := d.templates.RenderChannel(cfg.Templates, ch, vars); err == nil {
			if r.Title != "" {
				title = r.Title
			}
			if r.Body != "" {
				body = r.Body
			}
			html = r.HTML
			return title, body, html
		}
	}
	return template.Substitute(title, vars), template.Substitute(body, vars), ""
}

func (d *Dispatcher) configKey(n *domain.Notification) string {
	if n.ConfigKey != "" {
		return n.ConfigKey
	}
	return n.Type
}

func (d *Dispatcher) failDispatch(id int64, err error) {
	d.publish(&domain.LifecycleEvent{
		Kind:           domain.EventDispatchFailed,
		NotificationID: id,
		Reason:         err.Error(),
	})
}

func (d *Dispatcher) publish(ev *domain.LifecycleEvent) {
	if d.events == nil {
		return
	}
	ev.At = d.now()
	d.events.PublishLifecycle(ev)
}

// -----------------------------
// Bulk dispatch
// -----------------------------

type BulkError struct {
	NotificationID int64  `json:"notification_id"`
	Error          string `json:"error"`
}

type BulkResult struct {
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Errors  []BulkError `json:"errors,omitempty"`
}

// DispatchBulk dispatches every id concurrently and settles all of them;
// one failure never short-circuits the rest.
func (d *Dispatcher) DispatchBulk(ctx context.Context, ids []int64) *BulkResult {
	var (
		mu  sync.Mutex
		res BulkResult
		wg  sync.WaitGroup
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			err := d.Dispatch(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				res.Errors = append(res.Errors, BulkError{NotificationID: id, Error: err.Error()})
				return
			}
			res.Success++
		}(id)
	}
	wg.Wait()
	return &res
}

// -----------------------------
// Delivery results and retries
// -----------------------------

// HandleDeliveryResult is the callback transports report into. It drives the
// asynchronous half of the delivery state machine, including retries.
func (d *Dispatcher) HandleDeliveryResult(ctx context.Context, deliveryID int64, success bool, errMsg, externalID string) error {
	del, err := d.repo.GetDeliveryByID(ctx, deliveryID)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return xerrors.ErrDeliveryNotFound
		}
		return err
	}

	if success {
		var ext *string
		if externalID != "" {
			ext = &externalID
		}
		if err := d.repo.MarkDeliveryDelivered(ctx, del.ID, ext); err != nil {
			return err
		}
		d.publish(&domain.LifecycleEvent{
			Kind:           domain.EventDelivered,
			NotificationID: del.NotificationID,
			DeliveryID:     del.ID,
			UserID:         del.UserID,
			Channel:        del.Channel,
		})
		// First confirmed delivery marks the notification sent.
		if n, err := d.repo.GetNotificationByID(ctx, del.NotificationID); err == nil && !n.IsSent() {
			sentAt := d.now()
			if err := d.repo.UpdateNotificationStatus(ctx, n.ID, domain.NotificationSent, &sentAt); err != nil {
				d.logger.Warn("failed to mark notification sent",
					zap.Int64("notification_id", n.ID), zap.Error(err))
			}
		}
		return nil
	}

	if err := d.repo.MarkDeliveryFailed(ctx, del.ID, errMsg); err != nil {
		return err
	}
	d.publish(&domain.LifecycleEvent{
		Kind:           domain.EventDeliveryFailed,
		NotificationID: del.NotificationID,
		DeliveryID:     del.ID,
		UserID:         del.UserID,
		Channel:        del.Channel,
		Reason:         errMsg,
	})

	if del.AttemptCount >= domain.MaxDeliveryRetries {
		d.logger.Warn("delivery retry cap exhausted",
			zap.Int64("delivery_id", del.ID),
			zap.Int("attempts", del.AttemptCount))
		d.publish(&domain.LifecycleEvent{
			Kind:           domain.EventDeliveryDropped,
			NotificationID: del.NotificationID,
			DeliveryID:     del.ID,
			UserID:         del.UserID,
			Channel:        del.Channel,
			Reason:         errMsg,
		})
		return nil
	}

	if err := d.repo.MarkDeliveryRetrying(ctx, del.ID, errMsg); err != nil {
		return err
	}
	return d.RequeueDelivery(ctx, del.ID)
}

// RequeueDelivery rebuilds the channel job for a delivery and puts it back
// on the queue. Shared by the retry path and the redelivery worker.
func (d *Dispatcher) RequeueDelivery(ctx context.Context, deliveryID int64) error {
	del, err := d.repo.GetDeliveryByID(ctx, deliveryID)
	if err != nil {
		return err
	}
	// A failed enqueue leaves the row FAILED without the transport ever
	// seeing it. Those rows re-enter the retry loop here, consuming an
	// attempt like any other retry.
	if del.Status == domain.DeliveryFailed {
		if del.AttemptCount >= domain.MaxDeliveryRetries {
			return nil
		}
		lastErr := ""
		if del.LastError != nil {
			lastErr = *del.LastError
		}
		if err := d.repo.MarkDeliveryRetrying(ctx, del.ID, lastErr); err != nil {
			return err
		}
		del.AttemptCount++
	}
	n, err := d.repo.GetNotificationByID(ctx, del.NotificationID)
	if err != nil {
		return err
	}
	cfg, err := d.configs.Get(ctx, d.configKey(n))
	if err != nil {
		d.logger.Warn("config load failed on requeue, rendering without template",
			zap.Int64("delivery_id", del.ID), zap.Error(err))
	}

	u, err := d.repo.GetUserByID(ctx, del.UserID)
	if err != nil {
		u = &domain.User{ID: del.UserID}
	}
	title, body, html := d.renderFor(n, cfg, del.Channel, u)

	if err := d.repo.MarkDeliveryProcessing(ctx, del.ID); err != nil {
		return err
	}
	job := &domain.ChannelJob{
		NotificationID: del.NotificationID,
		DeliveryID:     del.ID,
		Channel:        del.Channel,
		UserID:         del.UserID,
		Recipient:      del.Recipient,
		Title:          title,
		Body:           body,
		HTML:           html,
		Attempt:        del.AttemptCount,
	}
	if err := d.notifier.QueueChannelJob(job); err != nil {
		d.recordDeliveryFailure(ctx, del, err.Error())
		return fmt.Errorf("requeue delivery %d: %w", del.ID, xerrors.ErrQueueUnavailable)
	}
	return nil
}

// GetDeliveryStats aggregates per-status delivery counts for a notification.
func (d *Dispatcher) GetDeliveryStats(ctx context.Context, notificationID int64) (*domain.DeliveryStats, error) {
	if _, err := d.repo.GetNotificationByID(ctx, notificationID); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.ErrNotificationNotFound
		}
		return nil, err
	}
	counts, err := d.repo.CountDeliveriesByStatus(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	return &domain.DeliveryStats{
		NotificationID: notificationID,
		Total:          total,
		ByStatus:       counts,
	}, nil
}
