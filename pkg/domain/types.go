package domain

import "time"

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// ListType names one of the three per-user membership lists.
type ListType string

const (
	ListFavorites ListType = "favorites"
	ListPending   ListType = "pending"
	ListViewed    ListType = "viewed"
)

// MediaKind distinguishes catalog item references. The wire value for
// series is "tv" to match the upstream catalog's naming.
type MediaKind string

const (
	KindMovie  MediaKind = "movie"
	KindSeries MediaKind = "tv"
)

type User struct {
	ID           uint      `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the snapshot of a user embedded in a session token. It is
// captured at issuance and not refreshed on profile edits; a username or
// email change keeps serving stale values until the next login.
type Identity struct {
	UserID   uint     `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
}

// ListEntry is one catalog item reference inside a membership list.
type ListEntry struct {
	ID   int64     `json:"id"`
	Kind MediaKind `json:"type"`
}

// ListStats carries the six per-user membership counts.
type ListStats struct {
	FavoriteMovies int64 `json:"favoriteMoviesCount"`
	FavoriteSeries int64 `json:"favoriteSeriesCount"`
	PendingMovies  int64 `json:"pendingMoviesCount"`
	PendingSeries  int64 `json:"pendingSeriesCount"`
	ViewedMovies   int64 `json:"viewedMoviesCount"`
	ViewedSeries   int64 `json:"viewedSeriesCount"`
}

// Configuration is the process-wide settings row. Only the upstream
// catalog API key lives here today.
type Configuration struct {
	TMDBAPIKey string `json:"themdb_api_key"`
}
