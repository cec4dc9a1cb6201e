package store

import (
	"errors"

	"github.com/alvarodevlabs/DisfrutaTV/pkg/domain"
)

var (
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrDuplicateUsername indicates the username is already taken.
	ErrDuplicateUsername = errors.New("username already taken")
)

// Store defines persistence operations for users and membership lists.
type Store interface {
	// users
	CreateUser(u domain.User) (domain.User, error)
	UpdateUser(u domain.User) error
	HasUserEmail(email string) (bool, error)
	HasUsername(username string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id uint) (domain.User, bool, error)
	ListUsers() ([]domain.User, error)
	UserCount() (int, error)

	// membership lists
	AddListEntry(userID uint, list domain.ListType, kind domain.MediaKind, itemID int64) (added bool, err error)
	RemoveListEntry(userID uint, list domain.ListType, kind domain.MediaKind, itemID int64) (removed bool, err error)
	ListEntries(userID uint, list domain.ListType) ([]domain.ListEntry, error)
	ListStats(userID uint) (domain.ListStats, error)
}

// ConfigurationStore persists the process-wide configuration singleton.
type ConfigurationStore interface {
	GetConfiguration() (domain.Configuration, bool, error)
	// SaveConfiguration upserts the singleton row.
	SaveConfiguration(cfg domain.Configuration) error
}
