package notifications

import (
	"strings"
	"time"
)

// Well-known notification type tags. The store accepts any string.
const (
	TypeInfo                  = "info"
	TypeSuccess               = "success"
	TypeWarning               = "warning"
	TypeError                 = "error"
	TypeTest                  = "TEST"
	TypeActivityAssigned      = "ACTIVITY_ASSIGNED"
	TypeActivityUpdated       = "ACTIVITY_UPDATED"
	TypeActivityStatusChanged = "ACTIVITY_STATUS_CHANGED"
	TypeActivityRemarkAdded   = "ACTIVITY_REMARK_ADDED"
	TypeActivityRemarkUpdated = "ACTIVITY_REMARK_UPDATED"
	TypeTeamMemberAdded       = "TEAM_MEMBER_ADDED"
	TypeTeamMemberRemoved     = "TEAM_MEMBER_REMOVED"
)

// DefaultMaxPerUser is the retention cap applied when none is configured.
const DefaultMaxPerUser = 50

// MaxAgeDays is the largest age accepted by age-based purges.
const MaxAgeDays = 36500

// AgeCutoff returns the instant the given number of calendar days before now, in UTC.
func AgeCutoff(now time.Time, days int) time.Time {
	return now.UTC().AddDate(0, 0, -days)
}

// Notification is a persisted, user-addressed record of an event.
type Notification struct {
	ID                uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID            uint      `gorm:"column:user_id;not null;index:idx_notifications_user_created,priority:1" json:"userId"`
	Title             string    `gorm:"column:title;size:255;not null" json:"title"`
	Message           string    `gorm:"column:message;type:text" json:"message"`
	Type              string    `gorm:"column:type;size:64;not null" json:"type"`
	IsRead            bool      `gorm:"column:is_read;not null;default:false" json:"isRead"`
	RelatedTeamID     *uint     `gorm:"column:related_team_id;index" json:"relatedTeamId"`
	RelatedActivityID *uint     `gorm:"column:related_activity_id;index" json:"relatedActivityId"`
	CreatedAt         time.Time `gorm:"column:created_at;not null;index:idx_notifications_user_created,priority:2;index:idx_notifications_created" json:"createdAt"`
	UpdatedAt         time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Notification) TableName() string {
	return "notifications"
}

// CreateRequest describes a notification to originate.
type CreateRequest struct {
	UserID            uint
	Title             string
	Message           string
	Type              string
	RelatedTeamID     *uint
	RelatedActivityID *uint
}

// Template is the user-independent part of a CreateRequest, used for fan-out.
type Template struct {
	Title             string
	Message           string
	Type              string
	RelatedTeamID     *uint
	RelatedActivityID *uint
}

// For binds the template to a single addressee.
func (t Template) For(userID uint) CreateRequest {
	return CreateRequest{
		UserID:            userID,
		Title:             t.Title,
		Message:           t.Message,
		Type:              t.Type,
		RelatedTeamID:     t.RelatedTeamID,
		RelatedActivityID: t.RelatedActivityID,
	}
}

func (r CreateRequest) normalized() CreateRequest {
	r.Title = strings.TrimSpace(r.Title)
	r.Type = strings.TrimSpace(r.Type)
	if r.Type == "" {
		r.Type = TypeInfo
	}
	return r
}

// Ref returns a pointer to a copy of id, for the optional related references.
func Ref(id uint) *uint {
	return &id
}

// Counts summarises a user's inbox.
type Counts struct {
	Total  int64 `json:"total"`
	Unread int64 `json:"unread"`
}
