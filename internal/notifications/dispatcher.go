package notifications

import (
	"context"

	"go.uber.org/zap"
)

const (
	envelopeTypeNotification = "notification"

	testTitle   = "Test Notification"
	testMessage = "This is a test notification to verify the real-time notification system is working correctly."
)

// Deliverer pushes a payload to the user's live connection, if any.
type Deliverer interface {
	Send(userID uint, payload any) bool
}

// Envelope is the live-channel frame carrying a persisted notification.
type Envelope struct {
	Type string       `json:"type"`
	Data Notification `json:"data"`
}

// DispatcherConfig describes the dependencies of the dispatcher.
type DispatcherConfig struct {
	Store     *Store
	Retention *RetentionEnforcer
	Users     UserDirectory
	Deliverer Deliverer
	Logger    *zap.Logger
}

// Dispatcher originates notifications: validate, enforce retention, persist, deliver.
type Dispatcher struct {
	store     *Store
	retention *RetentionEnforcer
	users     UserDirectory
	deliverer Deliverer
	logger    *zap.Logger
}

// NewDispatcher validates the configuration and constructs a dispatcher.
// A nil Deliverer disables live delivery.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opDispatcherNew, "missing_store", errMissingStore)
	}
	if cfg.Retention == nil {
		return nil, newServiceError(opDispatcherNew, "missing_enforcer", errMissingEnforcer)
	}
	if cfg.Users == nil {
		return nil, newServiceError(opDispatcherNew, "missing_users", errMissingUsers)
	}
	return &Dispatcher{
		store:     cfg.Store,
		retention: cfg.Retention,
		users:     cfg.Users,
		deliverer: cfg.Deliverer,
		logger:    loggerOrDefault(cfg.Logger),
	}, nil
}

// Create persists the notification and attempts live delivery.
// Only an unknown user or a persistence failure is returned; delivery outcome is logged.
func (d *Dispatcher) Create(ctx context.Context, request CreateRequest) (Notification, error) {
	exists, err := d.users.Exists(ctx, request.UserID)
	if err != nil {
		logError(d.logger, opDispatch, "user_lookup_failed", err, zap.Uint("user_id", request.UserID))
		return Notification{}, newServiceError(opDispatch, "user_lookup_failed", err)
	}
	if !exists {
		return Notification{}, newServiceError(opDispatch, reasonUnknownUser, ErrUnknownUser)
	}

	d.retention.EnforceBeforeCreate(ctx, request.UserID)

	record, err := d.store.Create(ctx, request)
	if err != nil {
		return Notification{}, err
	}

	d.deliver(record)
	return record, nil
}

func (d *Dispatcher) deliver(record Notification) {
	if d.deliverer == nil {
		return
	}
	delivered := d.deliverer.Send(record.UserID, Envelope{Type: envelopeTypeNotification, Data: record})
	d.logger.Debug("notification dispatched",
		zap.Uint("user_id", record.UserID),
		zap.Uint("notification_id", record.ID),
		zap.Bool("delivered", delivered))
}

// CreateBulk creates one notification per distinct user id. Per-user failures
// are logged and skipped; the successfully persisted records are returned.
func (d *Dispatcher) CreateBulk(ctx context.Context, userIDs []uint, template Template) []Notification {
	created := make([]Notification, 0, len(userIDs))
	seen := make(map[uint]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, duplicate := seen[userID]; duplicate {
			continue
		}
		seen[userID] = struct{}{}

		record, err := d.Create(ctx, template.For(userID))
		if err != nil {
			d.logger.Warn("bulk notification skipped",
				zap.String("operation", opDispatchBulk),
				zap.Uint("user_id", userID),
				zap.Error(err))
			continue
		}
		created = append(created, record)
	}
	return created
}

// SendTest creates the TEST notification used to verify the live channel.
func (d *Dispatcher) SendTest(ctx context.Context, userID uint) (Notification, error) {
	return d.Create(ctx, CreateRequest{
		UserID:  userID,
		Title:   testTitle,
		Message: testMessage,
		Type:    TypeTest,
	})
}
