package usecase

import (
	"context"
	"errors"

	"dispatch-service/internal/domain"
	"dispatch-service/internal/repository"
	"dispatch-service/pkg/xerrors"

	"go.uber.org/zap"
)

// EligibilityRule is one type-specific recipient predicate.
type EligibilityRule interface {
	Eligible(u *domain.User, n *domain.Notification) bool
}

// assignedUserRule matches the user the underlying entity is assigned to.
type assignedUserRule struct{}

func (assignedUserRule) Eligible(u *domain.User, n *domain.Notification) bool {
	return n.MetaString("assignedTo") == u.ID
}

// entitySectorRule matches users in the entity's sector.
type entitySectorRule struct{}

func (entitySectorRule) Eligible(u *domain.User, n *domain.Notification) bool {
	return n.MetaString("entitySector") != "" && n.MetaString("entitySector") == u.Sector
}

// supervisorRule matches the supervisor named on the notification, or the
// supervisor of the assigned user when only that is known.
type supervisorRule struct{}

func (supervisorRule) Eligible(u *domain.User, n *domain.Notification) bool {
	return n.MetaString("supervisorId") == u.ID
}

// taskPartyRule matches anyone with a stake in a task: assignee, the task's
// sector, or the named supervisor.
type taskPartyRule struct{}

func (taskPartyRule) Eligible(u *domain.User, n *domain.Notification) bool {
	return assignedUserRule{}.Eligible(u, n) ||
		entitySectorRule{}.Eligible(u, n) ||
		supervisorRule{}.Eligible(u, n)
}

// mentionedRule matches the mentioned user.
type mentionedRule struct{}

func (mentionedRule) Eligible(u *domain.User, n *domain.Notification) bool {
	return n.MetaString("mentionedId") == u.ID
}

// predicateRegistry resolves the custom predicate names a configuration's
// target rule may reference.
var predicateRegistry = map[string]EligibilityRule{
	"assigned_user": assignedUserRule{},
	"entity_sector": entitySectorRule{},
	"supervisor":    supervisorRule{},
	"task_party":    taskPartyRule{},
	"mentioned":     mentionedRule{},
}

// TypeFilter is the per-notification-type recipient filter: allowed sectors
// (empty = unrestricted), a minimum privilege level, and an optional
// custom predicate. All declared constraints must pass.
type TypeFilter struct {
	AllowedSectors []string
	MinPrivilege   int
	ExcludeOnLeave bool
	Predicate      EligibilityRule
}

// defaultTypeFilters is the built-in registry, one variant per notification
// type, consulted when the configuration carries no target rule.
var defaultTypeFilters = map[string]TypeFilter{
	string(domain.TaskAssigned): {Predicate: assignedUserRule{}},
	string(domain.TaskStatus):   {Predicate: taskPartyRule{}},
	string(domain.TaskComment):  {Predicate: taskPartyRule{}},
	string(domain.OrderCreated): {AllowedSectors: []string{"SALES", "FINANCE"}},
	string(domain.OrderStatus):  {AllowedSectors: []string{"SALES"}},
	string(domain.StockLow):     {AllowedSectors: []string{"WAREHOUSE", "PURCHASING"}, MinPrivilege: 1},
	string(domain.UserMention):  {Predicate: mentionedRule{}},
	// ENTITY_UPDATED digests are built per recipient, so no predicate here.
	string(domain.EntityUpdated): {},
}

// actorMetaKeys are checked in order to find who triggered the event.
// Target-denoting keys (assignedTo, mentionedId, ...) are deliberately
// absent: excluding the target would drop legitimate recipients.
var actorMetaKeys = []string{
	domain.MetaActorID,
	domain.MetaChangedBy,
	domain.MetaTriggeredBy,
	domain.MetaCreatedBy,
	domain.MetaReportedBy,
}

// RecipientResolver computes the set of users eligible to receive a
// notification.
type RecipientResolver struct {
	users  repository.UserRepository
	logger *zap.Logger
}

func NewRecipientResolver(users repository.UserRepository, logger *zap.Logger) *RecipientResolver {
	return &RecipientResolver{users: users, logger: logger}
}

// Resolve returns the recipients for n. The configuration may narrow the
// broadcast audience through its target rule; cfg may be nil.
func (rr *RecipientResolver) Resolve(ctx context.Context, n *domain.Notification, cfg *domain.NotificationConfig) ([]*domain.User, error) {
	if n.UserID != "" {
		u, err := rr.users.GetUserByID(ctx, n.UserID)
		if err != nil {
			if errors.Is(err, xerrors.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		if !rr.IsEligible(u, n, cfg) {
			return nil, nil
		}
		return []*domain.User{u}, nil
	}

	filter := rr.filterFor(n, cfg)

	var candidates []*domain.User
	var err error
	if len(filter.AllowedSectors) > 0 {
		candidates, err = rr.users.ListUsersBySectors(ctx, filter.AllowedSectors)
	} else {
		candidates, err = rr.users.ListActiveUsers(ctx)
	}
	if err != nil {
		return nil, err
	}

	actorID := rr.ActorID(n)

	var recipients []*domain.User
	for _, u := range candidates {
		if u.ID == actorID {
			continue
		}
		if rr.IsEligible(u, n, cfg) {
			recipients = append(recipients, u)
		}
	}
	return recipients, nil
}

// ActorID derives the user who triggered the underlying event, checking the
// known metadata keys in order.
func (rr *RecipientResolver) ActorID(n *domain.Notification) string {
	for _, key := range actorMetaKeys {
		if id := n.MetaString(key); id != "" {
			return id
		}
	}
	return ""
}

// IsEligible applies the eligibility chain: active, admin override, scope
// check, then the type filter. A panic inside a predicate counts as not
// eligible; only the dispatch loop itself is fail-open per recipient.
func (rr *RecipientResolver) IsEligible(u *domain.User, n *domain.Notification, cfg *domain.NotificationConfig) (eligible bool) {
	defer func() {
		if r := recover(); r != nil {
			rr.logger.Warn("eligibility check panicked, treating user as not eligible",
				zap.String("user_id", u.ID),
				zap.Any("panic", r))
			eligible = false
		}
	}()

	if !u.Active {
		return false
	}
	if u.IsAdmin {
		return true
	}
	if n.UserID != "" && n.UserID != u.ID {
		return false
	}

	filter := rr.filterFor(n, cfg)

	if len(filter.AllowedSectors) > 0 && !containsString(filter.AllowedSectors, u.Sector) {
		return false
	}
	if u.Privilege < filter.MinPrivilege {
		return false
	}
	if filter.ExcludeOnLeave && u.OnLeave {
		return false
	}
	if filter.Predicate != nil {
		return filter.Predicate.Eligible(u, n)
	}
	return true
}

// filterFor picks the configuration's embedded target rule when present,
// falling back to the built-in per-type registry.
func (rr *RecipientResolver) filterFor(n *domain.Notification, cfg *domain.NotificationConfig) TypeFilter {
	if cfg != nil && cfg.Target != nil {
		f := TypeFilter{
			AllowedSectors: cfg.Target.AllowedSectors,
			MinPrivilege:   cfg.Target.MinPrivilege,
			ExcludeOnLeave: cfg.Target.ExcludeOnLeave,
		}
		if cfg.Target.Predicate != "" {
			f.Predicate = predicateRegistry[cfg.Target.Predicate]
		}
		return f
	}
	return defaultTypeFilters[n.Type]
}

func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
