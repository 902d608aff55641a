package notifications

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	orderNewestFirst = "created_at DESC, id DESC"
	orderOldestFirst = "created_at ASC, id ASC"

	// unreadCondition is written as a literal so SQLite can match the partial unread index.
	unreadCondition = "is_read = 0"
)

// UserDirectory resolves whether an addressee exists.
type UserDirectory interface {
	Exists(ctx context.Context, userID uint) (bool, error)
}

// StoreConfig describes the dependencies of the notification store.
type StoreConfig struct {
	Database *gorm.DB
	// Users, when set, is consulted by Create to reject unknown addressees.
	Users  UserDirectory
	Clock  func() time.Time
	Logger *zap.Logger
}

// Store is the persistence surface over notification records.
type Store struct {
	db     *gorm.DB
	users  UserDirectory
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore constructs the notification store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opStoreNew, reasonMissingDatabase, errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		db:     cfg.Database,
		users:  cfg.Users,
		clock:  clock,
		logger: loggerOrDefault(cfg.Logger),
	}, nil
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// Create persists a notification with store-assigned id and timestamps.
func (s *Store) Create(ctx context.Context, request CreateRequest) (Notification, error) {
	request = request.normalized()
	if request.UserID == 0 || request.Title == "" {
		return Notification{}, newServiceError(opCreate, "invalid_request", ErrInvalidNotification)
	}
	if s.users != nil {
		exists, err := s.users.Exists(ctx, request.UserID)
		if err != nil {
			logError(s.logger, opCreate, "user_lookup_failed", err, zap.Uint("user_id", request.UserID))
			return Notification{}, newServiceError(opCreate, "user_lookup_failed", err)
		}
		if !exists {
			return Notification{}, newServiceError(opCreate, reasonUnknownUser, ErrUnknownUser)
		}
	}

	createdAt := s.now()
	record := Notification{
		UserID:            request.UserID,
		Title:             request.Title,
		Message:           request.Message,
		Type:              request.Type,
		IsRead:            false,
		RelatedTeamID:     request.RelatedTeamID,
		RelatedActivityID: request.RelatedActivityID,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		logError(s.logger, opCreate, "insert_failed", err, zap.Uint("user_id", request.UserID))
		return Notification{}, newServiceError(opCreate, "insert_failed", err)
	}
	return record, nil
}

// ListByUser returns every notification addressed to the user, newest first.
func (s *Store) ListByUser(ctx context.Context, userID uint) ([]Notification, error) {
	return s.list(ctx, userID, nil)
}

// ListUnreadByUser returns the user's unread notifications, newest first.
func (s *Store) ListUnreadByUser(ctx context.Context, userID uint) ([]Notification, error) {
	return s.list(ctx, userID, func(query *gorm.DB) *gorm.DB {
		return query.Where(unreadCondition)
	})
}

// ListByUserAndType returns the user's notifications with the given type tag.
func (s *Store) ListByUserAndType(ctx context.Context, userID uint, notificationType string) ([]Notification, error) {
	return s.list(ctx, userID, func(query *gorm.DB) *gorm.DB {
		return query.Where("type = ?", notificationType)
	})
}

// ListByUserAndTeam returns the user's notifications referencing the team.
func (s *Store) ListByUserAndTeam(ctx context.Context, userID, teamID uint) ([]Notification, error) {
	return s.list(ctx, userID, func(query *gorm.DB) *gorm.DB {
		return query.Where("related_team_id = ?", teamID)
	})
}

// ListByUserAndActivity returns the user's notifications referencing the activity.
func (s *Store) ListByUserAndActivity(ctx context.Context, userID, activityID uint) ([]Notification, error) {
	return s.list(ctx, userID, func(query *gorm.DB) *gorm.DB {
		return query.Where("related_activity_id = ?", activityID)
	})
}

func (s *Store) list(ctx context.Context, userID uint, filter func(*gorm.DB) *gorm.DB) ([]Notification, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if filter != nil {
		query = filter(query)
	}
	records := make([]Notification, 0)
	if err := query.Order(orderNewestFirst).Find(&records).Error; err != nil {
		logError(s.logger, opList, reasonQueryFailed, err, zap.Uint("user_id", userID))
		return nil, newServiceError(opList, reasonQueryFailed, err)
	}
	return records, nil
}

// CountByUser returns how many notifications are stored for the user.
func (s *Store) CountByUser(ctx context.Context, userID uint) (int64, error) {
	return s.count(s.db.WithContext(ctx).Model(&Notification{}).Where("user_id = ?", userID), userID)
}

// CountUnreadByUser returns how many of the user's notifications are unread.
func (s *Store) CountUnreadByUser(ctx context.Context, userID uint) (int64, error) {
	return s.count(s.db.WithContext(ctx).Model(&Notification{}).Where("user_id = ?", userID).Where(unreadCondition), userID)
}

func (s *Store) count(query *gorm.DB, userID uint) (int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		logError(s.logger, opCount, reasonQueryFailed, err, zap.Uint("user_id", userID))
		return 0, newServiceError(opCount, reasonQueryFailed, err)
	}
	return total, nil
}

// Get loads a single notification.
func (s *Store) Get(ctx context.Context, id uint) (Notification, error) {
	var record Notification
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Notification{}, newServiceError(opGet, reasonNotFound, ErrNotFound)
	}
	if err != nil {
		logError(s.logger, opGet, reasonQueryFailed, err, zap.Uint("notification_id", id))
		return Notification{}, newServiceError(opGet, reasonQueryFailed, err)
	}
	return record, nil
}

// MarkRead flags the notification as read. Marking an already-read record succeeds.
func (s *Store) MarkRead(ctx context.Context, id uint) (Notification, error) {
	var record Notification
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&record).Error; err != nil {
			return err
		}
		updatedAt := s.now()
		if err := tx.Model(&Notification{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"is_read": true, "updated_at": updatedAt}).Error; err != nil {
			return err
		}
		record.IsRead = true
		record.UpdatedAt = updatedAt
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Notification{}, newServiceError(opMarkRead, reasonNotFound, ErrNotFound)
	}
	if err != nil {
		logError(s.logger, opMarkRead, reasonQueryFailed, err, zap.Uint("notification_id", id))
		return Notification{}, newServiceError(opMarkRead, reasonQueryFailed, err)
	}
	return record, nil
}

// MarkAllReadForUser flags every notification unread at call time as read.
func (s *Store) MarkAllReadForUser(ctx context.Context, userID uint) (int64, error) {
	result := s.db.WithContext(ctx).Model(&Notification{}).
		Where("user_id = ?", userID).
		Where(unreadCondition).
		Updates(map[string]interface{}{"is_read": true, "updated_at": s.now()})
	if result.Error != nil {
		logError(s.logger, opMarkAllRead, reasonQueryFailed, result.Error, zap.Uint("user_id", userID))
		return 0, newServiceError(opMarkAllRead, reasonQueryFailed, result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes the notification. Deleting an absent record is a no-op.
func (s *Store) Delete(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&Notification{}).Error; err != nil {
		logError(s.logger, opDelete, reasonQueryFailed, err, zap.Uint("notification_id", id))
		return newServiceError(opDelete, reasonQueryFailed, err)
	}
	return nil
}

// DeleteOldestForUser removes up to count of the user's oldest notifications
// and returns the identifiers actually removed.
func (s *Store) DeleteOldestForUser(ctx context.Context, userID uint, count int) ([]uint, error) {
	if count <= 0 {
		return nil, nil
	}
	var ids []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Notification{}).
			Where("user_id = ?", userID).
			Order(orderOldestFirst).
			Limit(count).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Where("id IN ?", ids).Delete(&Notification{}).Error
	})
	if err != nil {
		logError(s.logger, opDeleteOldest, reasonQueryFailed, err,
			zap.Uint("user_id", userID),
			zap.Int("count", count))
		return nil, newServiceError(opDeleteOldest, reasonQueryFailed, err)
	}
	return ids, nil
}

// DeleteByRelatedTeam purges every notification referencing the team.
func (s *Store) DeleteByRelatedTeam(ctx context.Context, teamID uint) (int64, error) {
	return s.deleteWhere(ctx, opDeleteByRelated, "related_team_id = ?", teamID)
}

// DeleteByRelatedActivity purges every notification referencing the activity.
func (s *Store) DeleteByRelatedActivity(ctx context.Context, activityID uint) (int64, error) {
	return s.deleteWhere(ctx, opDeleteByRelated, "related_activity_id = ?", activityID)
}

// DeleteOlderThan purges notifications created strictly before the cutoff.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.deleteWhere(ctx, opDeleteOlderThan, "created_at < ?", cutoff.UTC())
}

func (s *Store) deleteWhere(ctx context.Context, operation, condition string, value interface{}) (int64, error) {
	result := s.db.WithContext(ctx).Where(condition, value).Delete(&Notification{})
	if result.Error != nil {
		logError(s.logger, operation, reasonQueryFailed, result.Error, zap.String("condition", condition))
		return 0, newServiceError(operation, reasonQueryFailed, result.Error)
	}
	return result.RowsAffected, nil
}

// AllUserIDsWithNotifications returns the distinct addressees with stored notifications.
func (s *Store) AllUserIDsWithNotifications(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&Notification{}).
		Distinct("user_id").
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		logError(s.logger, opListUsers, reasonQueryFailed, err)
		return nil, newServiceError(opListUsers, reasonQueryFailed, err)
	}
	return ids, nil
}
