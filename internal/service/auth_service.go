package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SP23-BSE-106/grain/internal/auth"
	"github.com/SP23-BSE-106/grain/internal/domain"
	"github.com/SP23-BSE-106/grain/internal/events"
	"github.com/SP23-BSE-106/grain/internal/repository"
	apperrors "github.com/SP23-BSE-106/grain/pkg/util"
)

const (
	minPasswordLength = 8
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
)

// Session is the credential pair handed to a client after login or refresh.
type Session struct {
	User             *domain.User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// AuthService coordinates registration, login and the refresh exchange.
type AuthService struct {
	users      repository.UserRepository
	sessions   repository.SessionRepository
	keys       *auth.Keyring
	hasher     *auth.Hasher
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	UserRepo    repository.UserRepository
	SessionRepo repository.SessionRepository
	Keyring     *auth.Keyring
	Hasher      *auth.Hasher
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		users:      deps.UserRepo,
		sessions:   deps.SessionRepo,
		keys:       deps.Keyring,
		hasher:     deps.Hasher,
		dispatcher: deps.Dispatcher,
		logger:     logger.Named("auth_service"),
		now:        now,
	}
}

// Register creates a user account with the user role. It does not log in.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	name = strings.Clone(strings.TrimSpace(name))
	email = normalizeEmail(email)

	details := map[string]any{}
	if name == "" {
		details["name"] = "required"
	}
	if email == "" {
		details["email"] = "required"
	} else if _, err := mail.ParseAddress(email); err != nil {
		details["email"] = "invalid"
	}
	switch {
	case password == "":
		details["password"] = "required"
	case len(password) < minPasswordLength:
		details["password"] = "too short"
	case len(password) > maxPasswordLength:
		details["password"] = "too long"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid registration", details)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, apperrors.NewConflict("user already exists", nil)
		}
		return nil, apperrors.NewStorageUnavailable(err)
	}

	s.publish(ctx, events.EventUserRegistered, user.ID, events.Actor{UserID: user.ID, Role: user.Role},
		events.UserRegisteredPayload{Email: user.Email})
	return user, nil
}

// Login checks the password and, when requestedRole is set, that the account
// holds that role. Unknown email and wrong password are indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string, requestedRole domain.Role) (*Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("email and password are required", nil)
	}
	if requestedRole != "" && !requestedRole.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(requestedRole)})
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.hasher.CompareDummy(password)
			return nil, apperrors.NewInvalidCredential(nil)
		}
		return nil, apperrors.NewStorageUnavailable(err)
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewInvalidCredential(nil)
	}
	if requestedRole != "" && user.Role != requestedRole {
		s.logger.Info("login role mismatch",
			zap.String("user_id", user.ID),
			zap.String("role", string(user.Role)),
			zap.String("requested_role", string(requestedRole)))
		return nil, apperrors.NewInsufficientRole()
	}

	session, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventUserLoggedIn, user.ID, events.Actor{UserID: user.ID, Role: user.Role},
		events.SessionPayload{SessionID: session.refreshID, Role: user.Role})
	return session.Session, nil
}

// Refresh exchanges a live refresh credential for a new pair. The presented
// credential is consumed; presenting it again revokes every session of the
// account. Every failure is INVALID_CREDENTIAL.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, apperrors.NewInvalidCredential(nil)
	}
	principal, err := s.keys.Refresh.Verify(refreshToken)
	if err != nil {
		return nil, apperrors.NewInvalidCredential(err)
	}

	stored, err := s.sessions.Consume(ctx, principal.TokenID)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		s.logger.Warn("refresh credential reused or revoked; revoking all sessions",
			zap.String("user_id", principal.SubjectID))
		if _, revokeErr := s.sessions.RevokeAllForUser(ctx, principal.SubjectID); revokeErr != nil {
			s.logger.Warn("session revocation failed", zap.String("user_id", principal.SubjectID), zap.Error(revokeErr))
		}
		return nil, apperrors.NewInvalidCredential(err)
	case err != nil:
		s.logger.Warn("session store unavailable during refresh", zap.Error(err))
		return nil, apperrors.NewInvalidCredential(apperrors.NewStorageUnavailable(err))
	case stored.UserID != principal.SubjectID:
		s.logger.Warn("refresh session subject mismatch", zap.String("user_id", principal.SubjectID))
		return nil, apperrors.NewInvalidCredential(nil)
	}

	user, err := s.users.GetByID(ctx, principal.SubjectID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Warn("user lookup failed during refresh", zap.String("user_id", principal.SubjectID), zap.Error(err))
		}
		return nil, apperrors.NewInvalidCredential(err)
	}

	session, err := s.startSession(ctx, user)
	if err != nil {
		return nil, apperrors.NewInvalidCredential(err)
	}

	s.publish(ctx, events.EventSessionRefreshed, user.ID, events.Actor{UserID: user.ID, Role: user.Role},
		events.SessionPayload{SessionID: session.refreshID, Role: user.Role, PreviousSessionID: principal.TokenID})
	return session.Session, nil
}

// Logout revokes the refresh session if one is presented. It never fails.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	principal, err := s.keys.Refresh.Verify(refreshToken)
	if err != nil {
		return
	}
	if err := s.sessions.Delete(ctx, principal.TokenID); err != nil {
		s.logger.Warn("session revocation failed on logout", zap.String("user_id", principal.SubjectID), zap.Error(err))
		return
	}
	s.publish(ctx, events.EventUserLoggedOut, principal.SubjectID, events.Actor{UserID: principal.SubjectID},
		events.SessionPayload{SessionID: principal.TokenID})
}

// VerifyAccess checks an access credential without touching storage.
func (s *AuthService) VerifyAccess(token string) (domain.Principal, error) {
	principal, err := s.keys.Access.Verify(token)
	if err != nil {
		return domain.Principal{}, apperrors.NewInvalidCredential(err)
	}
	return principal, nil
}

// CurrentUser re-reads the principal's account. A missing account or an
// unreachable store both deny.
func (s *AuthService) CurrentUser(ctx context.Context, principal *domain.Principal) (*domain.User, error) {
	if principal == nil {
		return nil, apperrors.NewInvalidCredential(nil)
	}
	user, err := s.users.GetByID(ctx, principal.SubjectID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Warn("user lookup failed", zap.String("user_id", principal.SubjectID), zap.Error(err))
			return nil, apperrors.NewInvalidCredential(apperrors.NewStorageUnavailable(err))
		}
		return nil, apperrors.NewInvalidCredential(err)
	}
	return user, nil
}

// ListUsers returns accounts for the admin surface.
func (s *AuthService) ListUsers(ctx context.Context, filter repository.UserFilter) ([]domain.User, error) {
	if filter.Role != nil && !filter.Role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(*filter.Role)})
	}
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewStorageUnavailable(err)
	}
	return users, nil
}

// ChangeRole sets a user's role and revokes their refresh sessions, so the
// new role is in force once the current access credential expires. The role
// change stands even when revocation fails; refresh re-reads the role from
// storage either way.
func (s *AuthService) ChangeRole(ctx context.Context, actor *domain.Principal, userID string, role domain.Role) (*domain.User, error) {
	if !role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": string(role)})
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
	}
	if actor != nil && actor.SubjectID == userID {
		return nil, apperrors.NewValidationError("cannot change own role", nil)
	}

	before, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return nil, apperrors.NewStorageUnavailable(err)
	}

	updated, err := s.users.UpdateRole(ctx, userID, role)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": userID})
		}
		return nil, apperrors.NewStorageUnavailable(err)
	}

	revoked, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		s.logger.Error("session revocation failed after role change", zap.String("user_id", userID), zap.Error(err))
		revoked = 0
	}

	actorRef := events.Actor{}
	if actor != nil {
		actorRef = events.Actor{UserID: actor.SubjectID, Role: actor.Role}
	}
	s.publish(ctx, events.EventUserRoleChanged, userID, actorRef, events.UserRoleChangedPayload{
		OldRole:         before.Role,
		NewRole:         updated.Role,
		RevokedSessions: revoked,
	})
	return updated, nil
}

type issuedSession struct {
	*Session
	refreshID string
}

func (s *AuthService) startSession(ctx context.Context, user *domain.User) (*issuedSession, error) {
	access, accessPrincipal, err := s.keys.Access.Issue(user.ID, user.Role, 0)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	refresh, refreshPrincipal, err := s.keys.Refresh.Issue(user.ID, user.Role, 0)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	if err := s.sessions.Save(ctx, domain.RefreshSession{
		TokenID:   refreshPrincipal.TokenID,
		UserID:    user.ID,
		ExpiresAt: refreshPrincipal.ExpiresAt,
	}); err != nil {
		return nil, apperrors.NewStorageUnavailable(err)
	}

	return &issuedSession{
		Session: &Session{
			User:             user,
			AccessToken:      access,
			AccessExpiresAt:  accessPrincipal.ExpiresAt,
			RefreshToken:     refresh,
			RefreshExpiresAt: refreshPrincipal.ExpiresAt,
		},
		refreshID: refreshPrincipal.TokenID,
	}, nil
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, userID string, actor events.Actor, payload any) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.NewEvent(eventType, userID, actor, s.now(), payload))
}

// normalizeEmail returns a copy; callers may pass strings backed by a
// reused request buffer.
func normalizeEmail(email string) string {
	return strings.Clone(strings.ToLower(strings.TrimSpace(email)))
}
