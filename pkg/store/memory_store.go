package store

import (
	"fmt"
	"sync"

	"github.com/alvarodevlabs/DisfrutaTV/pkg/domain"
)

type memoryEntry struct {
	kind   domain.MediaKind
	itemID int64
}

// MemoryStore keeps users, lists, and configuration in-process. It backs
// tests and local development; the interface semantics mirror GormStore,
// including insertion-order list reads.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID uint
	users  map[uint]domain.User
	email  map[string]uint
	uname  map[string]uint
	lists  map[domain.ListType]map[uint][]memoryEntry
	config *domain.Configuration
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		users:  make(map[uint]domain.User),
		email:  make(map[string]uint),
		uname:  make(map[string]uint),
		lists: map[domain.ListType]map[uint][]memoryEntry{
			domain.ListFavorites: {},
			domain.ListPending:   {},
			domain.ListViewed:    {},
		},
	}
}

// CreateUser registers a user and assigns the next ID.
func (m *MemoryStore) CreateUser(u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.email[u.Email]; exists {
		return domain.User{}, ErrDuplicateEmail
	}
	if _, exists := m.uname[u.Username]; exists {
		return domain.User{}, ErrDuplicateUsername
	}
	u.ID = m.nextID
	m.nextID++
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	m.uname[u.Username] = u.ID
	return u, nil
}

// UpdateUser overwrites a stored user.
func (m *MemoryStore) UpdateUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.users[u.ID]
	if !ok {
		return nil
	}
	if id, exists := m.email[u.Email]; exists && id != u.ID {
		return ErrDuplicateEmail
	}
	if id, exists := m.uname[u.Username]; exists && id != u.ID {
		return ErrDuplicateUsername
	}
	delete(m.email, prev.Email)
	delete(m.uname, prev.Username)
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	m.uname[u.Username] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// HasUsername checks if username exists.
func (m *MemoryStore) HasUsername(username string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.uname[username]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id uint) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// ListUsers returns users ordered by ID.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.users))
	for id := uint(1); id < m.nextID; id++ {
		if u, ok := m.users[id]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

// UserCount returns number of users.
func (m *MemoryStore) UserCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// AddListEntry appends an entry unless it is already present.
func (m *MemoryStore) AddListEntry(userID uint, list domain.ListType, kind domain.MediaKind, itemID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser, ok := m.lists[list]
	if !ok {
		return false, fmt.Errorf("unknown list type %q", list)
	}
	for _, e := range byUser[userID] {
		if e.kind == kind && e.itemID == itemID {
			return false, nil
		}
	}
	byUser[userID] = append(byUser[userID], memoryEntry{kind: kind, itemID: itemID})
	return true, nil
}

// RemoveListEntry deletes an entry if present.
func (m *MemoryStore) RemoveListEntry(userID uint, list domain.ListType, kind domain.MediaKind, itemID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUser, ok := m.lists[list]
	if !ok {
		return false, fmt.Errorf("unknown list type %q", list)
	}
	entries := byUser[userID]
	for i, e := range entries {
		if e.kind == kind && e.itemID == itemID {
			byUser[userID] = append(entries[:i], entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// ListEntries returns the user's entries in insertion order.
func (m *MemoryStore) ListEntries(userID uint, list domain.ListType) ([]domain.ListEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byUser, ok := m.lists[list]
	if !ok {
		return nil, fmt.Errorf("unknown list type %q", list)
	}
	entries := make([]domain.ListEntry, 0, len(byUser[userID]))
	for _, e := range byUser[userID] {
		entries = append(entries, domain.ListEntry{ID: e.itemID, Kind: e.kind})
	}
	return entries, nil
}

// ListStats returns the six membership counts.
func (m *MemoryStore) ListStats(userID uint) (domain.ListStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats domain.ListStats
	count := func(list domain.ListType, kind domain.MediaKind) int64 {
		var n int64
		for _, e := range m.lists[list][userID] {
			if e.kind == kind {
				n++
			}
		}
		return n
	}
	stats.FavoriteMovies = count(domain.ListFavorites, domain.KindMovie)
	stats.FavoriteSeries = count(domain.ListFavorites, domain.KindSeries)
	stats.PendingMovies = count(domain.ListPending, domain.KindMovie)
	stats.PendingSeries = count(domain.ListPending, domain.KindSeries)
	stats.ViewedMovies = count(domain.ListViewed, domain.KindMovie)
	stats.ViewedSeries = count(domain.ListViewed, domain.KindSeries)
	return stats, nil
}

// GetConfiguration reads the configuration singleton.
func (m *MemoryStore) GetConfiguration() (domain.Configuration, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return domain.Configuration{}, false, nil
	}
	return *m.config, true, nil
}

// SaveConfiguration upserts the configuration singleton.
func (m *MemoryStore) SaveConfiguration(cfg domain.Configuration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = &cfg
	return nil
}
