package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/alvarodevlabs/DisfrutaTV/pkg/domain"
)

// GormStore implements Store and ConfigurationStore using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return newGormStore(db)
}

// NewGormStoreWithDB wraps an already-open GORM connection. Tests use this
// with the sqlite driver.
func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	return newGormStore(db)
}

func newGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&UserModel{},
		&FavoriteModel{},
		&PendingModel{},
		&ViewedModel{},
		&ConfigurationModel{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// CreateUser inserts a user and returns it with the assigned ID.
func (s *GormStore) CreateUser(u domain.User) (domain.User, error) {
	model := userToModel(u)
	if err := s.db.Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.User{}, s.resolveDuplicate(u)
		}
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

// UpdateUser overwrites the stored user row.
func (s *GormStore) UpdateUser(u domain.User) error {
	model := userToModel(u)
	err := s.db.Model(&UserModel{}).Where("id = ?", u.ID).Updates(map[string]any{
		"username":      model.Username,
		"email":         model.Email,
		"password_hash": model.PasswordHash,
		"role":          model.Role,
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.resolveDuplicate(u)
	}
	return err
}

// resolveDuplicate reports which unique constraint a rejected write hit.
// The driver's duplicated-key error does not name the index, so the
// conflicting row is looked up instead.
func (s *GormStore) resolveDuplicate(u domain.User) error {
	var count int64
	err := s.db.Model(&UserModel{}).
		Where("email = ? AND id <> ?", u.Email, u.ID).
		Count(&count).Error
	if err == nil && count > 0 {
		return ErrDuplicateEmail
	}
	return ErrDuplicateUsername
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// HasUsername checks if username exists.
func (s *GormStore) HasUsername(username string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id uint) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users ordered by creation.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// AddListEntry inserts a membership row unless it already exists. The
// conflict target is the (user_id, movie_id) or (user_id, series_id)
// unique index, so concurrent duplicate adds collapse into one row.
// Returns false when the entry was already present.
func (s *GormStore) AddListEntry(userID uint, list domain.ListType, kind domain.MediaKind, itemID int64) (bool, error) {
	conflict := clause.OnConflict{
		Columns:   conflictColumns(kind),
		DoNothing: true,
	}
	var res *gorm.DB
	switch list {
	case domain.ListFavorites:
		row := FavoriteModel{UserID: userID}
		setItemID(&row.MovieID, &row.SeriesID, kind, itemID)
		res = s.db.Clauses(conflict).Create(&row)
	case domain.ListPending:
		row := PendingModel{UserID: userID}
		setItemID(&row.MovieID, &row.SeriesID, kind, itemID)
		res = s.db.Clauses(conflict).Create(&row)
	case domain.ListViewed:
		row := ViewedModel{UserID: userID}
		setItemID(&row.MovieID, &row.SeriesID, kind, itemID)
		res = s.db.Clauses(conflict).Create(&row)
	default:
		return false, fmt.Errorf("unknown list type %q", list)
	}
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RemoveListEntry deletes a membership row. Returns false when no row
// matched.
func (s *GormStore) RemoveListEntry(userID uint, list domain.ListType, kind domain.MediaKind, itemID int64) (bool, error) {
	model, err := listModel(list)
	if err != nil {
		return false, err
	}
	res := s.db.Where(fmt.Sprintf("user_id = ? AND %s = ?", itemColumn(kind)), userID, itemID).Delete(model)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type membershipRow struct {
	MovieID  *int64
	SeriesID *int64
}

// ListEntries returns the user's entries for one list in insertion order.
func (s *GormStore) ListEntries(userID uint, list domain.ListType) ([]domain.ListEntry, error) {
	model, err := listModel(list)
	if err != nil {
		return nil, err
	}
	var rows []membershipRow
	if err := s.db.Model(model).
		Select("movie_id", "series_id").
		Where("user_id = ?", userID).
		Order("id ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	entries := make([]domain.ListEntry, 0, len(rows))
	for _, r := range rows {
		switch {
		case r.MovieID != nil:
			entries = append(entries, domain.ListEntry{ID: *r.MovieID, Kind: domain.KindMovie})
		case r.SeriesID != nil:
			entries = append(entries, domain.ListEntry{ID: *r.SeriesID, Kind: domain.KindSeries})
		}
	}
	return entries, nil
}

// ListStats returns the six per-list, per-kind membership counts.
func (s *GormStore) ListStats(userID uint) (domain.ListStats, error) {
	var stats domain.ListStats
	counts := []struct {
		model any
		kind  domain.MediaKind
		dst   *int64
	}{
		{&FavoriteModel{}, domain.KindMovie, &stats.FavoriteMovies},
		{&FavoriteModel{}, domain.KindSeries, &stats.FavoriteSeries},
		{&PendingModel{}, domain.KindMovie, &stats.PendingMovies},
		{&PendingModel{}, domain.KindSeries, &stats.PendingSeries},
		{&ViewedModel{}, domain.KindMovie, &stats.ViewedMovies},
		{&ViewedModel{}, domain.KindSeries, &stats.ViewedSeries},
	}
	for _, c := range counts {
		if err := s.db.Model(c.model).
			Where(fmt.Sprintf("user_id = ? AND %s IS NOT NULL", itemColumn(c.kind)), userID).
			Count(c.dst).Error; err != nil {
			return domain.ListStats{}, err
		}
	}
	return stats, nil
}

// GetConfiguration reads the singleton configuration row.
func (s *GormStore) GetConfiguration() (domain.Configuration, bool, error) {
	var model ConfigurationModel
	if err := s.db.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Configuration{}, false, nil
		}
		return domain.Configuration{}, false, err
	}
	return domain.Configuration{TMDBAPIKey: model.TMDBAPIKey}, true, nil
}

// SaveConfiguration upserts the singleton row. The fixed primary key makes
// the first-startup create path idempotent under concurrency.
func (s *GormStore) SaveConfiguration(cfg domain.Configuration) error {
	model := ConfigurationModel{ID: 1, TMDBAPIKey: cfg.TMDBAPIKey}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"themoviedb_api_key"}),
	}).Create(&model).Error
}

func listModel(list domain.ListType) (any, error) {
	switch list {
	case domain.ListFavorites:
		return &FavoriteModel{}, nil
	case domain.ListPending:
		return &PendingModel{}, nil
	case domain.ListViewed:
		return &ViewedModel{}, nil
	default:
		return nil, fmt.Errorf("unknown list type %q", list)
	}
}

func itemColumn(kind domain.MediaKind) string {
	if kind == domain.KindSeries {
		return "series_id"
	}
	return "movie_id"
}

func conflictColumns(kind domain.MediaKind) []clause.Column {
	return []clause.Column{{Name: "user_id"}, {Name: itemColumn(kind)}}
}

func setItemID(movieID, seriesID **int64, kind domain.MediaKind, itemID int64) {
	if kind == domain.KindSeries {
		*seriesID = &itemID
		return
	}
	*movieID = &itemID
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	role := domain.UserRole(m.Role)
	if role == "" {
		role = domain.RoleUser
	}
	return domain.User{
		ID:           m.ID,
		Username:     m.Username,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Role:         role,
		CreatedAt:    m.CreatedAt,
	}
}
