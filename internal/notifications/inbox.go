package notifications

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// InboxConfig describes the dependencies of the inbox.
type InboxConfig struct {
	Store  *Store
	Logger *zap.Logger
}

// Inbox exposes the store scoped to the authenticated caller.
type Inbox struct {
	store  *Store
	logger *zap.Logger
}

// NewInbox constructs a caller-scoped view over the store.
func NewInbox(cfg InboxConfig) (*Inbox, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opInboxNew, "missing_store", errMissingStore)
	}
	return &Inbox{store: cfg.Store, logger: loggerOrDefault(cfg.Logger)}, nil
}

// List returns the caller's notifications, newest first.
func (i *Inbox) List(ctx context.Context, callerID uint) ([]Notification, error) {
	return i.store.ListByUser(ctx, callerID)
}

// Unread returns the caller's unread notifications, newest first.
func (i *Inbox) Unread(ctx context.Context, callerID uint) ([]Notification, error) {
	return i.store.ListUnreadByUser(ctx, callerID)
}

// ByType returns the caller's notifications with the given type tag.
func (i *Inbox) ByType(ctx context.Context, callerID uint, notificationType string) ([]Notification, error) {
	return i.store.ListByUserAndType(ctx, callerID, notificationType)
}

// ByTeam returns the caller's notifications about a team.
func (i *Inbox) ByTeam(ctx context.Context, callerID, teamID uint) ([]Notification, error) {
	return i.store.ListByUserAndTeam(ctx, callerID, teamID)
}

// ByActivity returns the caller's notifications about an activity.
func (i *Inbox) ByActivity(ctx context.Context, callerID, activityID uint) ([]Notification, error) {
	return i.store.ListByUserAndActivity(ctx, callerID, activityID)
}

// Counts returns the caller's total and unread totals.
func (i *Inbox) Counts(ctx context.Context, callerID uint) (Counts, error) {
	total, err := i.store.CountByUser(ctx, callerID)
	if err != nil {
		return Counts{}, err
	}
	unread, err := i.store.CountUnreadByUser(ctx, callerID)
	if err != nil {
		return Counts{}, err
	}
	return Counts{Total: total, Unread: unread}, nil
}

// MarkRead flags one of the caller's notifications as read.
func (i *Inbox) MarkRead(ctx context.Context, id, callerID uint) (Notification, error) {
	if _, err := i.owned(ctx, opInboxMarkRead, id, callerID); err != nil {
		return Notification{}, err
	}
	return i.store.MarkRead(ctx, id)
}

// MarkAllRead flags every unread notification of the caller as read.
func (i *Inbox) MarkAllRead(ctx context.Context, callerID uint) (int64, error) {
	return i.store.MarkAllReadForUser(ctx, callerID)
}

// Delete removes one of the caller's notifications. It reports false when the notification does not exist.
func (i *Inbox) Delete(ctx context.Context, id, callerID uint) (bool, error) {
	if _, err := i.owned(ctx, opInboxDelete, id, callerID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := i.store.Delete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func (i *Inbox) owned(ctx context.Context, operation string, id, callerID uint) (Notification, error) {
	record, err := i.store.Get(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if record.UserID != callerID {
		i.logger.Warn("notification access denied",
			zap.String("operation", operation),
			zap.Uint("notification_id", id),
			zap.Uint("user_id", callerID))
		return Notification{}, newServiceError(operation, reasonAccessDenied, ErrAccessDenied)
	}
	return record, nil
}
