package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dispatch-service/internal/domain"
	"dispatch-service/pkg/template"
	"dispatch-service/pkg/xerrors"
)

const metaImmediate = "immediate"
const metaChanges = "changes"

// DispatchWithAggregation routes entity-update notifications through the
// aggregation buffer when they qualify; everything else dispatches directly.
// Returns true when the notification was absorbed by the buffer.
func (d *Dispatcher) DispatchWithAggregation(ctx context.Context, id int64) (bool, error) {
	n, err := d.repo.GetNotificationByID(ctx, id)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return false, xerrors.ErrNotificationNotFound
		}
		return false, err
	}

	changes := parseFieldChanges(n)
	aggregatable := d.agg != nil &&
		n.Type == string(domain.EntityUpdated) &&
		len(changes) > 0 &&
		n.UserID != "" &&
		n.EntityID != "" &&
		!n.MetaBool(metaImmediate)

	if !aggregatable {
		return false, d.Dispatch(ctx, id)
	}

	entity := EntityRef{Type: n.EntityType, ID: n.EntityID}
	actor := d.recipients.ActorID(n)
	if _, err := d.agg.Add(ctx, entity, changes, n.UserID, actor, false); err != nil {
		return false, err
	}
	// The buffered digest supersedes the original row; it must not be
	// re-dispatched on its own.
	if err := d.repo.UpdateNotificationStatus(ctx, id, domain.NotificationProcessed, nil); err != nil {
		return true, err
	}
	return true, nil
}

// FlushAggregated implements FlushSink: a flushed bucket becomes a single
// digest notification that goes through the normal dispatch workflow.
func (d *Dispatcher) FlushAggregated(ctx context.Context, f AggregatedFlush) error {
	if len(f.Changes) == 0 {
		return nil
	}

	label := entityLabel(f.Entity)
	var title, body string
	meta := map[string]interface{}{}
	if f.ActorID != "" {
		meta[domain.MetaActorID] = f.ActorID
	}

	if len(f.Changes) == 1 {
		c := f.Changes[0]
		title = fmt.Sprintf("%s updated", label)
		body = c.Message
		if body == "" {
			body = fmt.Sprintf("%s changed from %q to %q", c.Field, c.OldValue, c.NewValue)
		}
	} else {
		title = fmt.Sprintf("%s updated (%s)", label, template.Pluralize(len(f.Changes), "change", "changes"))
		lines := make([]string, 0, len(f.Changes))
		for _, c := range f.Changes {
			if c.Message != "" {
				lines = append(lines, c.Message)
				continue
			}
			lines = append(lines, fmt.Sprintf("%s changed from %q to %q", c.Field, c.OldValue, c.NewValue))
		}
		body = strings.Join(lines, "\n")
		meta[domain.MetaAggregated] = true
		meta[domain.MetaChangeCount] = len(f.Changes)
	}

	n := &domain.Notification{
		UserID:       f.UserID,
		Type:         string(domain.EntityUpdated),
		ConfigKey:    "entity.updated",
		Title:        title,
		Body:         body,
		EntityType:   f.Entity.Type,
		EntityID:     f.Entity.ID,
		VisibleInApp: true,
		Metadata:     meta,
	}

	created, err := d.CreateNotification(ctx, n)
	if err != nil {
		return fmt.Errorf("create aggregated notification: %w", err)
	}
	return d.Dispatch(ctx, created.ID)
}

func entityLabel(e EntityRef) string {
	if e.Type == "" {
		return "Record"
	}
	t := strings.ReplaceAll(strings.ToLower(e.Type), "_", " ")
	t = strings.ToUpper(t[:1]) + t[1:]
	if e.ID != "" {
		return fmt.Sprintf("%s %s", t, e.ID)
	}
	return t
}

// parseFieldChanges reads field changes out of notification metadata.
// Metadata arrives as decoded jsonb, so the list is untyped.
func parseFieldChanges(n *domain.Notification) []domain.FieldChange {
	raw, ok := n.Metadata[metaChanges]
	if !ok {
		return nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]domain.FieldChange, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		c := domain.FieldChange{
			Field:    str(m["field"]),
			OldValue: str(m["old_value"]),
			NewValue: str(m["new_value"]),
			Message:  str(m["message"]),
		}
		if c.Field == "" && c.Message == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}
