package notifications

import (
	"context"

	"go.uber.org/zap"
)

// RetentionStore is the subset of Store the retention enforcer relies on.
type RetentionStore interface {
	CountByUser(ctx context.Context, userID uint) (int64, error)
	DeleteOldestForUser(ctx context.Context, userID uint, count int) ([]uint, error)
	AllUserIDsWithNotifications(ctx context.Context) ([]uint, error)
}

// RetentionConfig describes the dependencies of the retention enforcer.
type RetentionConfig struct {
	Store      RetentionStore
	MaxPerUser int
	Logger     *zap.Logger
}

// RetentionEnforcer keeps per-user notification counts at or below a soft cap.
//
// EnforceBeforeCreate reads the count and deletes in separate statements from
// the insert that follows it, so concurrent creates for one user can overshoot
// the cap by a few rows. Sweep brings the user back within the cap.
type RetentionEnforcer struct {
	store      RetentionStore
	maxPerUser int
	logger     *zap.Logger
}

// SweepSummary reports the outcome of an all-users sweep.
type SweepSummary struct {
	Users   int
	Deleted int
	Failed  int
}

// NewRetentionEnforcer constructs the enforcer. A non-positive cap falls back to DefaultMaxPerUser.
func NewRetentionEnforcer(cfg RetentionConfig) (*RetentionEnforcer, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opEnforce, "missing_store", errMissingStore)
	}
	maxPerUser := cfg.MaxPerUser
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxPerUser
	}
	return &RetentionEnforcer{
		store:      cfg.Store,
		maxPerUser: maxPerUser,
		logger:     loggerOrDefault(cfg.Logger),
	}, nil
}

// MaxPerUser returns the configured cap.
func (r *RetentionEnforcer) MaxPerUser() int {
	return r.maxPerUser
}

// EnforceBeforeCreate makes room for exactly one more notification for the user.
// Store failures are logged and swallowed so the create path is never blocked.
func (r *RetentionEnforcer) EnforceBeforeCreate(ctx context.Context, userID uint) {
	current, err := r.store.CountByUser(ctx, userID)
	if err != nil {
		r.logger.Warn("retention count failed",
			zap.String("operation", opEnforce),
			zap.Uint("user_id", userID),
			zap.Error(err))
		return
	}
	if current < int64(r.maxPerUser) {
		return
	}

	excess := int(current) - r.maxPerUser + 1
	deleted, err := r.store.DeleteOldestForUser(ctx, userID, excess)
	if err != nil {
		r.logger.Warn("retention delete failed",
			zap.String("operation", opEnforce),
			zap.Uint("user_id", userID),
			zap.Int("requested", excess),
			zap.Error(err))
		return
	}
	r.logger.Debug("retention enforced before create",
		zap.Uint("user_id", userID),
		zap.Int64("current", current),
		zap.Int("deleted", len(deleted)))
}

// Sweep deletes the user's oldest notifications beyond the cap and reports how many were removed.
func (r *RetentionEnforcer) Sweep(ctx context.Context, userID uint) (int, error) {
	current, err := r.store.CountByUser(ctx, userID)
	if err != nil {
		return 0, newServiceError(opSweep, "count_failed", err)
	}
	if current <= int64(r.maxPerUser) {
		return 0, nil
	}

	deleted, err := r.store.DeleteOldestForUser(ctx, userID, int(current)-r.maxPerUser)
	if err != nil {
		return 0, newServiceError(opSweep, "delete_failed", err)
	}
	return len(deleted), nil
}

// SweepAllUsers sweeps every user with stored notifications. A failure for one
// user is logged and counted; the remaining users are still swept.
func (r *RetentionEnforcer) SweepAllUsers(ctx context.Context) (SweepSummary, error) {
	userIDs, err := r.store.AllUserIDsWithNotifications(ctx)
	if err != nil {
		return SweepSummary{}, newServiceError(opSweepAll, "list_users_failed", err)
	}

	summary := SweepSummary{Users: len(userIDs)}
	for _, userID := range userIDs {
		deleted, err := r.Sweep(ctx, userID)
		if err != nil {
			summary.Failed++
			r.logger.Warn("retention sweep failed for user",
				zap.String("operation", opSweepAll),
				zap.Uint("user_id", userID),
				zap.Error(err))
			continue
		}
		summary.Deleted += deleted
	}
	return summary, nil
}
