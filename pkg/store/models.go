package store

import "time"

// GORM models used for persistence.
//
// Membership rows reference a catalog item through exactly one of
// movie_id/series_id. The composite unique indexes pair user_id with each
// nullable column; Postgres treats NULLs as distinct, so a movie row never
// collides with a series row and concurrent duplicate adds resolve through
// ON CONFLICT instead of racing a lookup.
type UserModel struct {
	ID           uint      `gorm:"primaryKey"`
	Username     string    `gorm:"size:64;uniqueIndex;not null"`
	Email        string    `gorm:"size:120;uniqueIndex;not null"`
	PasswordHash string    `gorm:"size:128;not null"`
	Role         string    `gorm:"size:20;not null;default:user"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type FavoriteModel struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   uint   `gorm:"not null;uniqueIndex:uniq_favorites_movie;uniqueIndex:uniq_favorites_series"`
	MovieID  *int64 `gorm:"uniqueIndex:uniq_favorites_movie"`
	SeriesID *int64 `gorm:"uniqueIndex:uniq_favorites_series"`
}

func (FavoriteModel) TableName() string { return "favorites" }

type PendingModel struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   uint   `gorm:"not null;uniqueIndex:uniq_pending_movie;uniqueIndex:uniq_pending_series"`
	MovieID  *int64 `gorm:"uniqueIndex:uniq_pending_movie"`
	SeriesID *int64 `gorm:"uniqueIndex:uniq_pending_series"`
}

func (PendingModel) TableName() string { return "pending" }

type ViewedModel struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   uint   `gorm:"not null;uniqueIndex:uniq_viewed_movie;uniqueIndex:uniq_viewed_series"`
	MovieID  *int64 `gorm:"uniqueIndex:uniq_viewed_movie"`
	SeriesID *int64 `gorm:"uniqueIndex:uniq_viewed_series"`
}

func (ViewedModel) TableName() string { return "viewed" }

// ConfigurationModel is a single-row table; the row always has ID 1 so
// bootstrap and updates can upsert against it.
type ConfigurationModel struct {
	ID         uint   `gorm:"primaryKey"`
	TMDBAPIKey string `gorm:"column:themoviedb_api_key;size:128;not null"`
}

func (ConfigurationModel) TableName() string { return "configuration" }
