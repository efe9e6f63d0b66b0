package auth

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenPair is the most recently issued (access, refresh) tuple for a user.
// At most one row per user id; issuing new tokens overwrites, it never
// appends. The row exists only so logout and refresh can revoke by
// replacement, not for verification.
type TokenPair struct {
	UserID       int64  `gorm:"column:user_id;primaryKey"`
	AccessToken  string `gorm:"column:access_token;not null"`
	RefreshToken string `gorm:"column:refresh_token;not null"`
}

// TableName exposes the table backing issued token pairs.
func (TokenPair) TableName() string {
	return "token_pairs"
}

// TokenStore persists the latest issued pair per user.
type TokenStore interface {
	Upsert(ctx context.Context, userID int64, accessToken, refreshToken string) error
	DeleteByUserID(ctx context.Context, userID int64) error
}

// GormTokenStore is the gorm-backed TokenStore. Concurrent writes for one
// user resolve last-write-wins; there is no version column.
type GormTokenStore struct {
	db *gorm.DB
}

// NewGormTokenStore constructs a token store on the provided connection.
func NewGormTokenStore(db *gorm.DB) (*GormTokenStore, error) {
	if db == nil {
		return nil, fmt.Errorf("auth: database connection required")
	}
	return &GormTokenStore{db: db}, nil
}

// Upsert replaces the stored pair for the user, inserting when absent.
func (s *GormTokenStore) Upsert(ctx context.Context, userID int64, accessToken, refreshToken string) error {
	pair := TokenPair{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(&pair).Error
}

// DeleteByUserID removes the stored pair. Deleting a missing row is not an
// error.
func (s *GormTokenStore) DeleteByUserID(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Delete(&TokenPair{}, "user_id = ?", userID).Error
}
