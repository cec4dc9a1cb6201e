package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alvarodevlabs/DisfrutaTV/internal/mail"
	"github.com/alvarodevlabs/DisfrutaTV/pkg/auth"
	"github.com/alvarodevlabs/DisfrutaTV/pkg/domain"
	"github.com/alvarodevlabs/DisfrutaTV/pkg/store"
)

// Catalog fetches popular items from the upstream catalog. The API key is
// passed per call because it lives in the configuration row, not in
// process config.
type Catalog interface {
	Popular(ctx context.Context, apiKey string, kind domain.MediaKind, page int) (json.RawMessage, error)
}

// Config wires required dependencies for the core application.
type Config struct {
	Store         store.Store
	ConfigStore   store.ConfigurationStore
	Sessions      *store.SessionTokens
	ResetTokens   *store.ResetTokens
	Mailer        mail.Mailer
	Catalog       Catalog
	ResetLinkBase string
}

// App is the core application service wiring storage, tokens, lists, and
// the catalog proxy together.
type App struct {
	store         store.Store
	configStore   store.ConfigurationStore
	sessions      *store.SessionTokens
	resetTokens   *store.ResetTokens
	mailer        mail.Mailer
	catalog       Catalog
	resetLinkBase string
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.ConfigStore == nil {
		return nil, errors.New("configuration store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session token service is required")
	}
	if cfg.ResetTokens == nil {
		return nil, errors.New("reset token service is required")
	}
	mailer := cfg.Mailer
	if mailer == nil {
		mailer = mail.NewLogMailer()
	}
	return &App{
		store:         cfg.Store,
		configStore:   cfg.ConfigStore,
		sessions:      cfg.Sessions,
		resetTokens:   cfg.ResetTokens,
		mailer:        mailer,
		catalog:       cfg.Catalog,
		resetLinkBase: strings.TrimRight(cfg.ResetLinkBase, "/"),
	}, nil
}

// SeedConfiguration creates the configuration singleton with the bootstrap
// key when no row exists yet. Safe to call on every startup.
func (a *App) SeedConfiguration(bootstrapKey string) error {
	bootstrapKey = strings.TrimSpace(bootstrapKey)
	if bootstrapKey == "" {
		return nil
	}
	_, ok, err := a.configStore.GetConfiguration()
	if err != nil {
		return fmt.Errorf("read configuration: %w", err)
	}
	if ok {
		return nil
	}
	return a.configStore.SaveConfiguration(domain.Configuration{TMDBAPIKey: bootstrapKey})
}

// Register creates a user account with the default role. The first account
// in an empty store becomes admin.
func (a *App) Register(username, email, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	if username == "" || email == "" || password == "" {
		return domain.User{}, ErrMissingFields
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailAlreadyExists
	}
	exists, err = a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.User{}, ErrUsernameAlreadyExists
	}
	role := domain.RoleUser
	count, err := a.store.UserCount()
	if err != nil {
		return domain.User{}, fmt.Errorf("count users: %w", err)
	}
	if count == 0 {
		role = domain.RoleAdmin
	}
	return a.createUser(username, email, password, role)
}

// CreateUser adds an account on behalf of an admin. Same checks as
// Register, always role user.
func (a *App) CreateUser(username, email, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = normalizeEmail(email)
	if username == "" || email == "" || password == "" {
		return domain.User{}, ErrMissingFields
	}
	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, ErrEmailAlreadyExists
	}
	exists, err = a.store.HasUsername(username)
	if err != nil {
		return domain.User{}, fmt.Errorf("check username: %w", err)
	}
	if exists {
		return domain.User{}, ErrUsernameAlreadyExists
	}
	return a.createUser(username, email, password, domain.RoleUser)
}

func (a *App) createUser(username, email, password string, role domain.UserRole) (domain.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := a.store.CreateUser(domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		// The unique indexes back up the checks above under concurrency.
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			return domain.User{}, ErrEmailAlreadyExists
		case errors.Is(err, store.ErrDuplicateUsername):
			return domain.User{}, ErrUsernameAlreadyExists
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Login validates credentials and issues a session token carrying the
// identity snapshot.
func (a *App) Login(email, password string) (string, error) {
	user, ok, err := a.store.GetUserByEmail(normalizeEmail(email))
	if err != nil {
		return "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	token, err := a.sessions.Issue(user)
	if err != nil {
		return "", fmt.Errorf("issue session token: %w", err)
	}
	return token, nil
}

// VerifyToken resolves a session token into the identity it was issued for.
func (a *App) VerifyToken(token string) (domain.Identity, error) {
	return a.sessions.Verify(token)
}

// Logout adds the token's jti to the revocation set.
func (a *App) Logout(token string) error {
	return a.sessions.Revoke(token)
}

// RequestPasswordReset sends a reset link when the email belongs to an
// account. It reports success either way; a delivery failure is only
// logged so responses stay uniform.
func (a *App) RequestPasswordReset(ctx context.Context, email string) {
	user, ok, err := a.store.GetUserByEmail(normalizeEmail(email))
	if err != nil {
		slog.Error("password reset lookup failed", "err", err)
		return
	}
	if !ok {
		return
	}
	token, err := a.resetTokens.Issue(user.ID)
	if err != nil {
		slog.Error("issue reset token failed", "err", err, "user", user.ID)
		return
	}
	link := a.resetLinkBase + "/reset-password/" + token
	body := fmt.Sprintf(
		"To reset your password, visit the following link:\n%s\n\nIf you did not make this request, simply ignore this email.\n",
		link,
	)
	if err := a.mailer.Send(ctx, user.Email, "Reset your password", body); err != nil {
		slog.Error("send reset email failed", "err", err, "user", user.ID)
	}
}

// ResetPassword verifies a reset token and replaces the user's password.
func (a *App) ResetPassword(token, newPassword string) error {
	userID, ok := a.resetTokens.Verify(token)
	if !ok {
		return ErrInvalidResetToken
	}
	if newPassword == "" {
		return ErrPasswordRequired
	}
	user, found, err := a.store.GetUserByID(userID)
	if err != nil {
		return fmt.Errorf("fetch user: %w", err)
	}
	if !found {
		return ErrInvalidResetToken
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	if err := a.store.UpdateUser(user); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// AddToList records a catalog item in one of the user's lists. Returns
// true when the item was already present; both outcomes are success.
func (a *App) AddToList(userID uint, list domain.ListType, kind domain.MediaKind, itemID int64) (alreadyPresent bool, err error) {
	added, err := a.store.AddListEntry(userID, list, kind, itemID)
	if err != nil {
		return false, fmt.Errorf("add list entry: %w", err)
	}
	return !added, nil
}

// RemoveFromList deletes a catalog item from one of the user's lists.
func (a *App) RemoveFromList(userID uint, list domain.ListType, kind domain.MediaKind, itemID int64) error {
	removed, err := a.store.RemoveListEntry(userID, list, kind, itemID)
	if err != nil {
		return fmt.Errorf("remove list entry: %w", err)
	}
	if !removed {
		return ErrNotInList
	}
	return nil
}

// ListEntries returns the user's entries for one list in insertion order.
func (a *App) ListEntries(userID uint, list domain.ListType) ([]domain.ListEntry, error) {
	return a.store.ListEntries(userID, list)
}

// Statistics returns the six per-list, per-kind counts.
func (a *App) Statistics(userID uint) (domain.ListStats, error) {
	return a.store.ListStats(userID)
}

// ListUsers returns all accounts (admin use only).
func (a *App) ListUsers() ([]domain.User, error) {
	return a.store.ListUsers()
}

// Profile returns the current state of a user row.
func (a *App) Profile(userID uint) (domain.User, error) {
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile applies a partial update to username/email/password.
// Empty fields keep their stored values. The active session token keeps
// serving the old identity snapshot until the next login.
func (a *App) UpdateProfile(userID uint, username, email, password string) (domain.User, error) {
	user, err := a.Profile(userID)
	if err != nil {
		return domain.User{}, err
	}
	if username = strings.TrimSpace(username); username != "" && username != user.Username {
		exists, err := a.store.HasUsername(username)
		if err != nil {
			return domain.User{}, fmt.Errorf("check username: %w", err)
		}
		if exists {
			return domain.User{}, ErrUsernameAlreadyExists
		}
		user.Username = username
	}
	if email = normalizeEmail(email); email != "" && email != user.Email {
		exists, err := a.store.HasUserEmail(email)
		if err != nil {
			return domain.User{}, fmt.Errorf("check email: %w", err)
		}
		if exists {
			return domain.User{}, ErrEmailAlreadyExists
		}
		user.Email = email
	}
	if password != "" {
		hash, err := auth.HashPassword(password)
		if err != nil {
			return domain.User{}, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = hash
	}
	if err := a.store.UpdateUser(user); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			return domain.User{}, ErrEmailAlreadyExists
		case errors.Is(err, store.ErrDuplicateUsername):
			return domain.User{}, ErrUsernameAlreadyExists
		}
		return domain.User{}, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// PopularCatalog proxies one page of popular movies or series from the
// upstream catalog, using the stored API key. The upstream envelope is
// unwrapped; only the results array is returned.
func (a *App) PopularCatalog(ctx context.Context, kind domain.MediaKind, page int) (json.RawMessage, error) {
	if a.catalog == nil {
		return nil, ErrConfigurationMissing
	}
	cfg, ok, err := a.configStore.GetConfiguration()
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	if !ok || strings.TrimSpace(cfg.TMDBAPIKey) == "" {
		return nil, ErrConfigurationMissing
	}
	results, err := a.catalog.Popular(ctx, cfg.TMDBAPIKey, kind, page)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return results, nil
}

// Configuration returns the stored configuration row.
func (a *App) Configuration() (domain.Configuration, error) {
	cfg, ok, err := a.configStore.GetConfiguration()
	if err != nil {
		return domain.Configuration{}, fmt.Errorf("read configuration: %w", err)
	}
	if !ok {
		return domain.Configuration{}, ErrConfigurationMissing
	}
	return cfg, nil
}

// UpdateConfiguration replaces the stored API key, creating the singleton
// row when none exists.
func (a *App) UpdateConfiguration(apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ErrAPIKeyRequired
	}
	if err := a.configStore.SaveConfiguration(domain.Configuration{TMDBAPIKey: apiKey}); err != nil {
		return fmt.Errorf("save configuration: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
