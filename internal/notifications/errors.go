package notifications

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrUnknownUser indicates the addressee does not resolve to an account.
	ErrUnknownUser = errors.New("notifications: unknown user")
	// ErrNotFound indicates no notification exists for the identifier.
	ErrNotFound = errors.New("notifications: notification not found")
	// ErrAccessDenied indicates the notification is addressed to another user.
	ErrAccessDenied = errors.New("notifications: access denied")
	// ErrInvalidNotification indicates the record is missing required fields.
	ErrInvalidNotification = errors.New("notifications: invalid notification")

	errMissingDatabase = errors.New("database handle is required")
	errMissingStore    = errors.New("notification store is required")
	errMissingUsers    = errors.New("user directory is required")
	errMissingEnforcer = errors.New("retention enforcer is required")
	noOpLogger         = zap.NewNop()
)

const (
	opStoreNew            = "notifications.store.new"
	opCreate              = "notifications.create"
	opList                = "notifications.list"
	opCount               = "notifications.count"
	opGet                 = "notifications.get"
	opMarkRead            = "notifications.mark_read"
	opMarkAllRead         = "notifications.mark_all_read"
	opDelete              = "notifications.delete"
	opDeleteOldest        = "notifications.delete_oldest"
	opDeleteByRelated     = "notifications.delete_by_related"
	opDeleteOlderThan     = "notifications.delete_older_than"
	opListUsers           = "notifications.list_users"
	opEnforce             = "notifications.retention.enforce"
	opSweep               = "notifications.retention.sweep"
	opSweepAll            = "notifications.retention.sweep_all"
	opDispatcherNew       = "notifications.dispatcher.new"
	opDispatch            = "notifications.dispatch"
	opDispatchBulk        = "notifications.dispatch_bulk"
	opInboxNew            = "notifications.inbox.new"
	opInboxMarkRead       = "notifications.inbox.mark_read"
	opInboxDelete         = "notifications.inbox.delete"
	reasonUnknownUser     = "unknown_user"
	reasonQueryFailed     = "query_failed"
	reasonNotFound        = "not_found"
	reasonAccessDenied    = "access_denied"
	reasonMissingDatabase = "missing_database"
)

// ServiceError carries a stable code of the form "<operation>.<reason>".
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

func loggerOrDefault(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return noOpLogger
	}
	return logger
}

func logError(logger *zap.Logger, operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	loggerOrDefault(logger).Error("notifications error", attrs...)
}
