package users

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

var (
	// ErrUserNotFound indicates no account exists for the identifier.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidUser indicates the account payload is missing required fields.
	ErrInvalidUser = errors.New("users: invalid user")
)

// ServiceConfig describes the dependencies required for user lookups.
type ServiceConfig struct {
	Database *gorm.DB
}

// Service resolves user accounts. Positive lookups are cached because
// accounts are never deleted while notifications reference them.
type Service struct {
	db    *gorm.DB
	cache sync.Map
}

// NewService constructs the user directory.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	return &Service{
		db:    cfg.Database,
		cache: sync.Map{},
	}, nil
}

// Exists reports whether an account with the identifier is present.
func (s *Service) Exists(ctx context.Context, userID uint) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	if _, ok := s.cache.Load(userID); ok {
		return true, nil
	}
	_, err := s.Lookup(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Lookup loads the account for the identifier.
func (s *Service) Lookup(ctx context.Context, userID uint) (User, error) {
	if cached, ok := s.cache.Load(userID); ok {
		if user, ok := cached.(User); ok {
			return user, nil
		}
	}

	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}

	s.cache.Store(user.ID, user)
	return user, nil
}

// Create inserts a new account and returns it with its assigned identifier.
func (s *Service) Create(ctx context.Context, empID, name, role string) (User, error) {
	user := User{
		EmpID: normalize(empID),
		Name:  normalize(name),
		Role:  normalize(role),
	}
	if user.EmpID == "" || user.Name == "" {
		return User{}, ErrInvalidUser
	}
	if user.Role == "" {
		user.Role = RoleUser
	}
	if user.Role != RoleUser && user.Role != RoleAdmin {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, user.Role)
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, err
	}
	s.cache.Store(user.ID, user)
	return user, nil
}
