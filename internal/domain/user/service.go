package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// ErrInvalidCredentials is returned for an unknown user, a wrong password or
// a deactivated account alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

// dummyHash is compared against when the username is unknown so a failed
// login takes as long either way.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

type Service struct {
	*crud.Resource[User]
	repo        Repository
	issuer      *auth.Issuer
	revocations *auth.TokenRevocationStore
	cost        int
	now         func() time.Time
	log         zerolog.Logger
}

// NewService returns the user service. revocations may be nil, in which case
// password and role changes do not end existing sessions.
func NewService(repo Repository, issuer *auth.Issuer, revocations *auth.TokenRevocationStore, log zerolog.Logger) *Service {
	s := &Service{
		Resource:    crud.NewResource[User](Definition, repo, log),
		repo:        repo,
		issuer:      issuer,
		revocations: revocations,
		cost:        bcrypt.DefaultCost,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log.With().Str("component", "users").Logger(),
	}
	s.Resource.BeforeSave = s.beforeSave
	s.Resource.BeforeDelete = s.beforeDelete
	return s
}

func (s *Service) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func (s *Service) beforeSave(ctx context.Context, row, prev *User) error {
	row.Username = strings.ToLower(row.Username)
	row.Roles = dedupe(row.Roles)
	if row.Password != "" {
		h, err := s.hash(row.Password)
		if err != nil {
			return err
		}
		row.PasswordHash = h
		row.Password = ""
	}
	if row.PasswordHash == "" {
		return formschema.FieldError("password", "is required")
	}
	if prev != nil && isActiveAdmin(prev) && !isActiveAdmin(row) {
		return s.ensureOtherAdmin(ctx, row.ID)
	}
	return nil
}

func (s *Service) beforeDelete(ctx context.Context, row *User) error {
	if auth.UserIDFromContext(ctx) == row.ID.String() {
		return crud.Conflictf("you cannot delete your own account")
	}
	if isActiveAdmin(row) {
		return s.ensureOtherAdmin(ctx, row.ID)
	}
	return nil
}

// ensureOtherAdmin fails unless an active admin other than id exists.
func (s *Service) ensureOtherAdmin(ctx context.Context, id uuid.UUID) error {
	admins, err := s.repo.FindBy(ctx, map[string]any{"active": true})
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}
	for _, u := range admins {
		if u.ID != id && u.HasRole(auth.RoleAdmin) {
			return nil
		}
	}
	return crud.Conflictf("at least one active administrator must remain")
}

func isActiveAdmin(u *User) bool {
	return u.Active && u.HasRole(auth.RoleAdmin)
}

func dedupe(roles []string) []string {
	seen := make(map[string]bool, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

// Update changes an account. Changing the password, roles or active flag
// revokes every token issued to the user so far.
func (s *Service) Update(ctx context.Context, id uuid.UUID, values formschema.Values) (*User, error) {
	u, err := s.Resource.Update(ctx, id, values)
	if err != nil {
		return nil, err
	}
	for _, key := range []string{"password", "roles", "active"} {
		if _, ok := values[key]; ok {
			s.revokeUser(id)
			break
		}
	}
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.Resource.Delete(ctx, id); err != nil {
		return err
	}
	s.revokeUser(id)
	return nil
}

func (s *Service) revokeUser(id uuid.UUID) {
	if s.revocations == nil {
		return
	}
	s.revocations.RevokeUser(id.String(), s.now(), s.issuer.TTL())
	s.log.Info().Str("user_id", id.String()).Msg("existing sessions revoked")
}

func (s *Service) findByUsername(ctx context.Context, username string) (*User, error) {
	users, err := s.repo.FindBy(ctx, map[string]any{"username": strings.ToLower(strings.TrimSpace(username))})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, crud.ErrNotFound
	}
	return users[0], nil
}

// Login checks the credentials and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (auth.Token, *User, error) {
	u, err := s.findByUsername(ctx, username)
	if errors.Is(err, crud.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return auth.Token{}, nil, ErrInvalidCredentials
	}
	if err != nil {
		return auth.Token{}, nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil || !u.Active {
		s.log.Warn().Str("username", u.Username).Msg("failed login")
		return auth.Token{}, nil, ErrInvalidCredentials
	}

	now := s.now()
	u.LastLoginAt = &now
	if err := s.repo.Update(ctx, u); err != nil {
		return auth.Token{}, nil, fmt.Errorf("record login: %w", err)
	}
	tok, err := s.issuer.Issue(u.ID.String(), u.Username, u.Roles)
	if err != nil {
		return auth.Token{}, nil, err
	}
	s.log.Info().Str("user_id", u.ID.String()).Str("username", u.Username).Msg("user logged in")
	return tok, u, nil
}

// Logout revokes the token described by claims.
func (s *Service) Logout(claims *auth.Claims) {
	if s.revocations == nil || claims == nil || claims.ID == "" {
		return
	}
	exp := s.now().Add(s.issuer.TTL())
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	s.revocations.Revoke(claims.ID, exp)
}

// Me returns the account of the authenticated caller.
func (s *Service) Me(ctx context.Context) (*User, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return nil, crud.ErrNotFound
	}
	return s.repo.GetByID(ctx, id)
}

// ChangePassword replaces the caller's password after checking the current
// one. Other sessions are revoked and a fresh token is returned.
func (s *Service) ChangePassword(ctx context.Context, current, next string) (auth.Token, error) {
	u, err := s.Me(ctx)
	if err != nil {
		return auth.Token{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return auth.Token{}, formschema.FieldError("current_password", "is incorrect")
	}
	if len(next) < MinPasswordLength {
		return auth.Token{}, formschema.FieldError("new_password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	if u.PasswordHash, err = s.hash(next); err != nil {
		return auth.Token{}, err
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return auth.Token{}, err
	}
	s.revokeUser(u.ID)
	return s.issuer.Issue(u.ID.String(), u.Username, u.Roles)
}

// Bootstrap creates an administrator when no account exists yet. It
// reports whether an account was created.
func (s *Service) Bootstrap(ctx context.Context, username, password string) (bool, error) {
	n, err := s.repo.Count(ctx, crud.ListParams{})
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	_, err = s.Create(ctx, formschema.Values{
		"username":  username,
		"full_name": "Administrator",
		"roles":     []string{auth.RoleAdmin},
		"active":    true,
		"password":  password,
	})
	if err != nil {
		return false, fmt.Errorf("bootstrap administrator: %w", err)
	}
	s.log.Info().Str("username", username).Msg("bootstrap administrator created")
	return true, nil
}
