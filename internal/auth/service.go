package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"clinic-admin-api/internal/model"
	"clinic-admin-api/internal/store"
	"clinic-admin-api/internal/validate"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrUserExists         = errors.New("username already exists")
	ErrResetTokenInvalid  = errors.New("reset link is invalid")
	ErrResetTokenExpired  = errors.New("reset link has expired")
)

const (
	DefaultTokenTTL = 8 * time.Hour
	resetTTL        = time.Hour
)

// role -> roles it may act as
var hierarchy = map[model.Role][]model.Role{
	model.RoleAdmin:        {model.RoleAdmin, model.RoleDoctor, model.RoleReceptionist, model.RolePharmacist},
	model.RoleDoctor:       {model.RoleDoctor, model.RoleReceptionist},
	model.RoleReceptionist: {model.RoleReceptionist},
	model.RolePharmacist:   {model.RolePharmacist},
}

// CheckPermission reports whether a user holding userRole may perform an
// action that requires the required role.
func CheckPermission(required, userRole model.Role) bool {
	return slices.Contains(hierarchy[userRole], required)
}

// fields a user may not set on their own profile
var protected = []string{"id", "role", "status", "password", "username", "created_at", "created_by"}

type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      model.Record `json:"user"`
}

type Service struct {
	store  *store.Store
	secret string
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> token expiry
}

func New(st *store.Store, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{
		store:   st,
		secret:  secret,
		ttl:     ttl,
		logger:  st.Logger(),
		revoked: make(map[string]time.Time),
	}
}

// DefaultSeed is the content of a fresh store: one admin and default settings.
func DefaultSeed() (store.Seed, error) {
	hash, err := HashPassword("admin123")
	if err != nil {
		return store.Seed{}, err
	}
	return store.Seed{
		Users: []model.Record{{
			"id":       float64(1),
			"username": "admin",
			"password": hash,
			"name":     "System Administrator",
			"role":     string(model.RoleAdmin),
			"email":    "admin@clinic.com",
			"phone":    "0512345678",
			"status":   model.StatusActive,
		}},
		Settings: store.DefaultSettings(),
	}, nil
}

// PublicUser drops the password hash.
func PublicUser(u model.Record) model.Record {
	out := u.Clone()
	delete(out, "password")
	return out
}

func (s *Service) logActivity(ctx context.Context, uid int64, action, desc string) {
	if _, err := s.store.LogActivity(ctx, uid, action, desc); err != nil {
		s.logger.WarnContext(ctx, "log activity failed", "action", action, "err", err)
	}
}

func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	u, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if u.String("status") != model.StatusActive || !CheckPassword(u.String("password"), password) {
		return Session{}, ErrInvalidCredentials
	}
	tok, exp, err := MakeToken(u, s.secret, s.ttl, s.store.Now())
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	s.logActivity(ctx, u.ID(), "login", "Signed in")
	return Session{Token: tok, ExpiresAt: exp, User: PublicUser(u)}, nil
}

// CheckAuth verifies a token and that its user still exists and is active.
func (s *Service) CheckAuth(ctx context.Context, raw string) (*Claims, error) {
	now := s.store.Now()
	c, err := ParseToken(raw, s.secret, now)
	if err != nil {
		return nil, err
	}
	if s.isRevoked(c.ID, now) {
		return nil, ErrBadToken
	}
	u, err := s.store.UserByID(ctx, c.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBadToken
	}
	if err != nil {
		return nil, err
	}
	if u.String("status") != model.StatusActive {
		return nil, ErrBadToken
	}
	// role changes apply without a new login
	c.Role = model.Role(u.String("role"))
	return c, nil
}

func (s *Service) isRevoked(jti string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, id)
		}
	}
	_, ok := s.revoked[jti]
	return ok
}

// Logout revokes the caller's token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context, c *Claims) error {
	if c.ExpiresAt != nil {
		s.mu.Lock()
		s.revoked[c.ID] = c.ExpiresAt.Time
		s.mu.Unlock()
	}
	s.logActivity(ctx, c.UserID, "logout", "Signed out")
	return nil
}

func (s *Service) Me(ctx context.Context, c *Claims) (model.Record, error) {
	u, err := s.store.UserByID(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	return PublicUser(u), nil
}

func (s *Service) UpdatePassword(ctx context.Context, c *Claims, current, next string) error {
	u, err := s.store.UserByID(ctx, c.UserID)
	if err != nil {
		return err
	}
	if !CheckPassword(u.String("password"), current) {
		return fmt.Errorf("%w: current password is wrong", ErrInvalidCredentials)
	}
	if err := s.setPassword(ctx, u.ID(), next); err != nil {
		return err
	}
	s.logActivity(ctx, u.ID(), "password_change", "Changed password")
	return nil
}

func (s *Service) setPassword(ctx context.Context, uid int64, pw string) error {
	if err := validate.NewPassword(pw, ""); err != nil {
		return err
	}
	hash, err := HashPassword(pw)
	if err != nil {
		return err
	}
	_, err = s.store.Update(ctx, model.Users, uid, map[string]any{"password": hash})
	return err
}

// ResetPassword opens a one hour reset window for the account behind email
// and returns the raw token to deliver. Only its hash is stored.
func (s *Service) ResetPassword(ctx context.Context, email string) (string, error) {
	u, err := s.store.UserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", err
	}
	raw, hash, err := GenerateResetToken()
	if err != nil {
		return "", err
	}
	if _, err := s.store.CreatePasswordReset(ctx, u.ID(), hash, s.store.Now().Add(resetTTL)); err != nil {
		return "", err
	}
	s.logActivity(ctx, u.ID(), "password_reset_request", "Requested password reset")
	return raw, nil
}

// VerifyResetToken returns the user a reset token belongs to.
func (s *Service) VerifyResetToken(ctx context.Context, token string) (int64, error) {
	_, uid, err := s.resetFor(ctx, token)
	return uid, err
}

func (s *Service) resetFor(ctx context.Context, token string) (model.Record, int64, error) {
	r, err := s.store.PasswordResetByHash(ctx, HashResetToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return nil, 0, ErrResetTokenInvalid
	}
	if err != nil {
		return nil, 0, err
	}
	exp, ok := r.Time("expires_at")
	if !ok || exp.Before(s.store.Now()) {
		return nil, 0, ErrResetTokenExpired
	}
	uid, _ := model.Int(r["user_id"])
	return r, uid, nil
}

func (s *Service) UpdatePasswordWithToken(ctx context.Context, token, next string) error {
	r, uid, err := s.resetFor(ctx, token)
	if err != nil {
		return err
	}
	if err := s.setPassword(ctx, uid, next); err != nil {
		return err
	}
	if err := s.store.MarkPasswordResetUsed(ctx, r.ID()); err != nil {
		return err
	}
	s.logActivity(ctx, uid, "password_reset", "Reset password")
	return nil
}

// UpdateProfile changes the caller's own account. Role, status, username and
// password are left alone.
func (s *Service) UpdateProfile(ctx context.Context, c *Claims, fields map[string]any) (model.Record, error) {
	patch := make(map[string]any, len(fields))
	for k, v := range fields {
		if !slices.Contains(protected, k) {
			patch[k] = v
		}
	}
	u, err := s.store.UserByID(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	if err := validate.User(merged(u, patch), validate.Env{Now: s.store.Now()}); err != nil {
		return nil, err
	}
	out, err := s.store.Update(ctx, model.Users, c.UserID, patch)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, c.UserID, "profile_update", "Updated profile")
	return PublicUser(out), nil
}

func requireAdmin(c *Claims) error {
	if c == nil || !CheckPermission(model.RoleAdmin, c.Role) {
		return ErrPermissionDenied
	}
	return nil
}

func (s *Service) AddUser(ctx context.Context, c *Claims, fields map[string]any) (model.Record, error) {
	if err := requireAdmin(c); err != nil {
		return nil, err
	}
	rec := model.Record(fields).Clone()
	rec["status"] = model.StatusActive
	rec["created_by"] = c.UserID
	if err := validate.User(rec, validate.Env{Now: s.store.Now(), New: true}); err != nil {
		return nil, err
	}
	pw, _ := rec["password"].(string)
	if err := validate.NewPassword(pw, ""); err != nil {
		return nil, err
	}
	if err := s.usernameFree(ctx, rec.String("username"), 0); err != nil {
		return nil, err
	}
	hash, err := HashPassword(pw)
	if err != nil {
		return nil, err
	}
	rec["password"] = hash
	u, err := s.store.Add(ctx, model.Users, rec)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, c.UserID, "user_add", "Added user: "+u.String("name"))
	return PublicUser(u), nil
}

func (s *Service) usernameFree(ctx context.Context, username string, self int64) error {
	u, err := s.store.UserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if u.ID() != self {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}
	return nil
}

func (s *Service) UpdateUser(ctx context.Context, c *Claims, id int64, fields map[string]any) (model.Record, error) {
	if err := requireAdmin(c); err != nil {
		return nil, err
	}
	cur, err := s.store.UserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patch := model.Record(fields).Clone()
	if err := validate.User(merged(cur, patch), validate.Env{Now: s.store.Now()}); err != nil {
		return nil, err
	}
	if name, ok := patch["username"].(string); ok && name != cur.String("username") {
		if err := s.usernameFree(ctx, name, id); err != nil {
			return nil, err
		}
	}
	if pw, ok := patch["password"].(string); ok {
		if err := validate.NewPassword(pw, ""); err != nil {
			return nil, err
		}
		if patch["password"], err = HashPassword(pw); err != nil {
			return nil, err
		}
	}
	u, err := s.store.Update(ctx, model.Users, id, patch)
	if err != nil {
		return nil, err
	}
	s.logActivity(ctx, c.UserID, "user_update", fmt.Sprintf("Updated user: %d", id))
	return PublicUser(u), nil
}

func (s *Service) DeleteUser(ctx context.Context, c *Claims, id int64) error {
	if err := requireAdmin(c); err != nil {
		return err
	}
	if id == c.UserID {
		return fmt.Errorf("%w: cannot delete your own account", ErrPermissionDenied)
	}
	if err := s.store.Delete(ctx, model.Users, id); err != nil {
		return err
	}
	if err := s.store.RevokePasswordResets(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "revoke password resets failed", "user", id, "err", err)
	}
	s.logActivity(ctx, c.UserID, "user_delete", fmt.Sprintf("Deleted user: %d", id))
	return nil
}

func (s *Service) Users(ctx context.Context, c *Claims, filters store.Filters) ([]model.Record, error) {
	if err := requireAdmin(c); err != nil {
		return nil, err
	}
	us, err := s.store.List(ctx, model.Users, filters)
	if err != nil {
		return nil, err
	}
	out := make([]model.Record, 0, len(us))
	for _, u := range us {
		out = append(out, PublicUser(u))
	}
	return out, nil
}

func merged(base model.Record, patch map[string]any) model.Record {
	out := base.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}
