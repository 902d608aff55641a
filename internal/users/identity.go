package users

import (
	"strings"
	"time"
)

const (
	// RoleUser is assigned to accounts without elevated privileges.
	RoleUser = "user"
	// RoleAdmin grants access to the administrative notification surface.
	RoleAdmin = "admin"
)

// User is the account record owned by the surrounding task-management backend.
// The notification subsystem only reads it to validate addressees.
type User struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	EmpID     string    `gorm:"column:emp_id;size:64;not null;uniqueIndex"`
	Name      string    `gorm:"column:name;size:190;not null"`
	Role      string    `gorm:"column:role;size:32;not null;default:user"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
