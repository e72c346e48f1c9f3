package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidUserID indicates the bootstrap identifier is not positive.
var ErrInvalidUserID = errors.New("users: invalid user id")

// ServiceConfig describes the dependencies required for account bootstrap.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages user accounts.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// EnsureUser creates the account when absent and leaves an existing row
// untouched. It is idempotent and safe to call on every application start.
func (s *Service) EnsureUser(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidUserID, id)
	}

	now := s.now().UTC()
	account := User{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&account).Error
}

// GetUser loads an account by identifier.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	var account User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&account).Error
	if err != nil {
		return User{}, err
	}
	return account, nil
}
