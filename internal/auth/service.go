package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/toollender/toollender/internal/domain"
	domainerrors "github.com/toollender/toollender/internal/errors"
	"github.com/toollender/toollender/internal/id"
	"github.com/toollender/toollender/internal/localstore"
	"github.com/toollender/toollender/internal/refresh"
	"github.com/toollender/toollender/internal/remote"
	"github.com/toollender/toollender/internal/repository"
	"github.com/toollender/toollender/internal/validation"
)

// CollectionAccounts holds one document per account, unique by email.
const CollectionAccounts = "accounts"

const (
	fieldEmail        = "email"
	fieldPasswordHash = "passwordHash"
	fieldCreatedAt    = "createdAt"
)

// Profiles creates and removes the public profile that belongs to an
// account.
type Profiles interface {
	Create(ctx context.Context, id string, n domain.NewUserProfile) (domain.UserProfile, error)
	FetchOne(ctx context.Context, id string, policy repository.ReadPolicy) (domain.UserProfile, error)
	Delete(ctx context.Context, id string) error
}

// SignUpRequest carries the account credentials and the initial profile.
type SignUpRequest struct {
	Email         string `json:"email" validate:"required,email"`
	Password      string `json:"password" validate:"min=8,max=1024"`
	Name          string `json:"name" validate:"notblank,max=200"`
	PhoneNumber   string `json:"phone_number,omitempty" validate:"max=40"`
	Address       string `json:"address,omitempty" validate:"max=300"`
	AssociationID string `json:"association_id,omitempty"`
}

// SignInRequest carries credentials.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=1024"`
}

// Result is returned by SignUp and SignIn.
type Result struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	Subject   domain.Subject     `json:"-"`
	Profile   domain.UserProfile `json:"profile"`
}

// Service is the identity provider.
type Service struct {
	remote    remote.Store
	sessions  *localstore.Collection[domain.Session]
	profiles  Profiles
	tokens    *TokenService
	validator *validation.Validator
	params    Argon2Params
	logger    *slog.Logger
	now       func() time.Time
}

// Config wires a Service.
type Config struct {
	Remote    remote.Store
	Local     *localstore.Store
	Profiles  Profiles
	Tokens    *TokenService
	Validator *validation.Validator
	Params    Argon2Params // zero value means DefaultArgon2Params
	Logger    *slog.Logger
}

// NewService creates the identity provider.
func NewService(cfg Config) *Service {
	params := cfg.Params
	if params.KeyLength == 0 {
		params = DefaultArgon2Params
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		remote:    cfg.Remote,
		sessions:  localstore.NewCollection(cfg.Local, "sessions", func(s *domain.Session) string { return s.ID }),
		profiles:  cfg.Profiles,
		tokens:    cfg.Tokens,
		validator: cfg.Validator,
		params:    params,
		logger:    logger,
		now:       time.Now,
	}
}

// SignUp creates an account and its profile and signs the new member in.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*Result, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password, s.params)
	if err != nil {
		return nil, domainerrors.Validation(err.Error())
	}
	now := s.now().UTC()
	accountID, err := s.remote.AddUnique(ctx, CollectionAccounts, req.Email, remote.Fields{
		fieldEmail:        req.Email,
		fieldPasswordHash: hash,
		fieldCreatedAt:    now.Format(time.RFC3339Nano),
	})
	if err != nil {
		if errors.Is(err, remote.ErrConflict) {
			return nil, domainerrors.AlreadyExistsf("an account with email %s already exists", req.Email)
		}
		return nil, remoteError(err, "create account")
	}
	account := domain.Account{ID: accountID, Email: req.Email, PasswordHash: hash, CreatedAt: now}

	profile, err := s.profiles.Create(ctx, accountID, domain.NewUserProfile{
		Name:          req.Name,
		Email:         req.Email,
		PhoneNumber:   req.PhoneNumber,
		Address:       req.Address,
		AssociationID: req.AssociationID,
	})
	if err != nil {
		// An account without a profile cannot sign in meaningfully.
		if delErr := s.remote.Delete(context.WithoutCancel(ctx), CollectionAccounts, accountID); delErr != nil {
			s.logger.Error("failed to roll back account", "account_id", accountID, "error", delErr)
		}
		return nil, err
	}

	s.logger.Info("account created", "account_id", accountID)
	return s.startSession(ctx, account, profile)
}

// SignIn verifies credentials against the remote accounts collection.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*Result, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	account, err := s.findAccount(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if account == nil || !CheckPassword(account.PasswordHash, req.Password) {
		return nil, domainerrors.InvalidCredentials("invalid email or password")
	}

	// Profiles degrade to the default rather than fail, so this only errors
	// on a missing profile.
	profile, err := s.profiles.FetchOne(ctx, account.ID, repository.CacheFirst)
	if err != nil {
		s.logger.Warn("signed in without profile", "account_id", account.ID, "error", err)
		profile = domain.DefaultProfile(account.ID)
		profile.Email = account.Email
	}
	return s.startSession(ctx, *account, profile)
}

// SignOut removes the caller's session. Its token stops working at once.
func (s *Service) SignOut(ctx context.Context, subject domain.Subject) error {
	if err := s.sessions.Remove(ctx, subject.SessionID); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	s.logger.Info("signed out", "account_id", subject.ID, "session_id", subject.SessionID)
	return nil
}

// DeleteCurrent deletes the caller's account, profile and sessions. Tools
// the member listed are left in place.
func (s *Service) DeleteCurrent(ctx context.Context, subject domain.Subject) error {
	if err := s.remote.Delete(ctx, CollectionAccounts, subject.ID); err != nil {
		return remoteError(err, "delete account")
	}
	if err := s.profiles.Delete(ctx, subject.ID); err != nil {
		s.logger.Warn("account deleted but profile remains", "account_id", subject.ID, "error", err)
	}
	removed, err := s.removeSessions(ctx, subject.ID)
	if err != nil {
		return err
	}
	s.logger.Info("account deleted", "account_id", subject.ID, "sessions", removed)
	return nil
}

// Authenticate resolves a bearer token to its subject. The session must still
// exist locally and be unexpired.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.Subject, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return domain.Subject{}, domainerrors.Unauthorized("invalid or expired token")
	}

	rec, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		if localstore.IsMiss(err) {
			return domain.Subject{}, domainerrors.Unauthorized("session has ended")
		}
		return domain.Subject{}, fmt.Errorf("load session: %w", err)
	}
	session := rec.Value
	if session.AccountID != claims.AccountID || session.IsExpired(s.now()) {
		return domain.Subject{}, domainerrors.Unauthorized("session has ended")
	}
	return domain.Subject{ID: claims.AccountID, Email: claims.Email, SessionID: session.ID}, nil
}

// PruneSessions removes expired sessions and returns how many were removed.
func (s *Service) PruneSessions(ctx context.Context) (int, error) {
	now := s.now()
	var expired []string
	for sess, err := range s.sessions.All(ctx) {
		if err != nil {
			return 0, err
		}
		if sess.IsExpired(now) {
			expired = append(expired, sess.ID)
		}
	}
	for _, sid := range expired {
		if err := s.sessions.Remove(ctx, sid); err != nil {
			return 0, err
		}
	}
	return len(expired), nil
}

func (s *Service) startSession(ctx context.Context, account domain.Account, profile domain.UserProfile) (*Result, error) {
	sid, err := id.Generate(id.PrefixSession)
	if err != nil {
		return nil, err
	}
	now := s.now()
	session := domain.Session{
		ID:        sid,
		AccountID: account.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokens.TTL()),
	}
	if _, err := s.sessions.Put(ctx, session, now, id.StampAt(now)); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	token, err := s.tokens.Issue(account, session)
	if err != nil {
		return nil, err
	}
	return &Result{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		Subject:   domain.Subject{ID: account.ID, Email: account.Email, SessionID: sid},
		Profile:   profile,
	}, nil
}

func (s *Service) findAccount(ctx context.Context, email string) (*domain.Account, error) {
	docs, err := s.remote.Query(ctx, CollectionAccounts, remote.Where(fieldEmail, email), remote.ModeServer)
	if err != nil {
		return nil, remoteError(err, "look up account")
	}
	if len(docs) == 0 {
		return nil, nil
	}
	doc := docs[0]
	hash, _ := doc.Fields[fieldPasswordHash].(string)
	return &domain.Account{ID: doc.ID, Email: email, PasswordHash: hash, CreatedAt: doc.CreateTime}, nil
}

func (s *Service) removeSessions(ctx context.Context, accountID string) (int, error) {
	var ids []string
	for sess, err := range s.sessions.All(ctx) {
		if err != nil {
			return 0, err
		}
		if sess.AccountID == accountID {
			ids = append(ids, sess.ID)
		}
	}
	for _, sid := range ids {
		if err := s.sessions.Remove(ctx, sid); err != nil {
			return 0, fmt.Errorf("remove session: %w", err)
		}
	}
	return len(ids), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func remoteError(err error, what string) error {
	switch {
	case errors.Is(err, remote.ErrUnavailable), errors.Is(err, refresh.ErrShuttingDown),
		errors.Is(err, context.DeadlineExceeded):
		return domainerrors.RemoteUnavailable(err)
	case errors.Is(err, remote.ErrNotFound):
		return domainerrors.NotFoundf("account not found")
	default:
		return domainerrors.Wrapf(err, domainerrors.CodeInternal, "%s", what)
	}
}
