package users

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound indicates no account matched the lookup key.
var ErrNotFound = errors.New("users: not found")

// Repository provides account persistence on top of gorm.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an account repository.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	return &Repository{db: db}, nil
}

// FindByID loads an account by its primary key.
func (r *Repository) FindByID(ctx context.Context, id int64) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByLogin loads an account by its unique login.
func (r *Repository) FindByLogin(ctx context.Context, login string) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Where("login = ?", login).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail loads an account by its unique email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Where("email = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByExternalID loads the account bound to a VK user identifier.
func (r *Repository) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	var user User
	err := r.db.WithContext(ctx).Where("vk_user_id = ?", externalID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsByLoginOrEmail reports whether either value is already taken.
// Registration must fail when only one of the two collides.
func (r *Repository) ExistsByLoginOrEmail(ctx context.Context, login, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&User{}).
		Where("login = ? OR email = ?", login, email).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create persists a new account and backfills its generated id.
func (r *Repository) Create(ctx context.Context, user *User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// Save writes the full account row back.
func (r *Repository) Save(ctx context.Context, user *User) error {
	return r.db.WithContext(ctx).Save(user).Error
}
