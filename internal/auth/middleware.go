package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/SP23-BSE-106/grain/internal/config"
	"github.com/SP23-BSE-106/grain/internal/domain"
	apperrors "github.com/SP23-BSE-106/grain/pkg/util"
)

const principalKey = "auth_principal"

const (
	loginPath = "/login"
	homePath  = "/"
)

// Verifier validates an access credential.
type Verifier interface {
	Verify(token string) (domain.Principal, error)
}

// UserLookup re-reads an account when the role is taken from storage.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// DecisionRecorder counts guard outcomes.
type DecisionRecorder interface {
	RecordGuardDecision(sensitivity, outcome string)
}

// GuardConfig bundles guard dependencies.
type GuardConfig struct {
	Verifier Verifier
	Policy   *RoutePolicy
	Source   config.PrincipalSource
	// Users is required when Source is storage.
	Users   UserLookup
	Metrics DecisionRecorder
	Logger  *zap.Logger
}

// Guard classifies every request, resolves the caller and enforces the
// route's sensitivity before any handler runs.
type Guard struct {
	verifier Verifier
	policy   *RoutePolicy
	source   config.PrincipalSource
	users    UserLookup
	metrics  DecisionRecorder
	logger   *zap.Logger
}

// NewGuard validates cfg and builds the guard.
func NewGuard(cfg GuardConfig) (*Guard, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("auth: guard requires a verifier")
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultRoutePolicy()
	}
	if cfg.Source == "" {
		cfg.Source = config.PrincipalSourceToken
	}
	if cfg.Source == config.PrincipalSourceStorage && cfg.Users == nil {
		return nil, errors.New("auth: storage principal source requires a user lookup")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Guard{
		verifier: cfg.Verifier,
		policy:   cfg.Policy,
		source:   cfg.Source,
		users:    cfg.Users,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.Named("guard"),
	}, nil
}

// Handle is the fiber middleware.
func (g *Guard) Handle(c *fiber.Ctx) error {
	sensitivity := g.policy.Classify(c.Path())
	principal, verifyErr := g.resolve(c)
	decision := Decide(sensitivity, principal, verifyErr)

	if g.metrics != nil {
		g.metrics.RecordGuardDecision(sensitivity.String(), string(decision.Outcome))
	}

	switch decision.Outcome {
	case OutcomeProceed:
		c.Locals(principalKey, decision.Principal)
		return c.Next()
	case OutcomeProceedAnonymous:
		return c.Next()
	case OutcomeForbidden:
		g.logger.Info("access denied",
			zap.String("path", c.Path()),
			zap.String("subject", principal.SubjectID),
			zap.String("role", string(principal.Role)),
		)
		if wantsHTML(c) {
			return c.Redirect(homePath, fiber.StatusFound)
		}
		return apperrors.NewInsufficientRole()
	default:
		if wantsHTML(c) {
			return c.Redirect(LoginRedirect(c.OriginalURL()), fiber.StatusFound)
		}
		return apperrors.NewInvalidCredential(verifyErr)
	}
}

// resolve returns (nil, nil) when no credential was presented.
func (g *Guard) resolve(c *fiber.Ctx) (*domain.Principal, error) {
	token, _ := ExtractCredential(c.Cookies(AccessCookieName), c.Get(fiber.HeaderAuthorization))
	if token == "" {
		return nil, nil
	}

	principal, err := g.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	if g.source == config.PrincipalSourceStorage {
		user, err := g.users.GetByID(c.UserContext(), principal.SubjectID)
		if err != nil {
			if !errors.Is(err, domain.ErrUserNotFound) {
				g.logger.Warn("principal lookup failed", zap.String("subject", principal.SubjectID), zap.Error(err))
			}
			return nil, ErrInvalidCredential
		}
		principal.Role = user.Role
	}
	return &principal, nil
}

// PrincipalFromContext returns the principal attached by the guard.
func PrincipalFromContext(c *fiber.Ctx) (*domain.Principal, bool) {
	principal, ok := c.Locals(principalKey).(*domain.Principal)
	return principal, ok && principal != nil
}

// RequireAuthenticated re-checks that the guard attached a principal.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewInvalidCredential(nil)
		}
		return c.Next()
	}
}

// RequireRole re-checks the attached principal's role.
func RequireRole(role domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewInvalidCredential(nil)
		}
		if principal.Role != role {
			return apperrors.NewInsufficientRole()
		}
		return c.Next()
	}
}

// LoginRedirect builds the login URL, keeping target only when it is a local path.
func LoginRedirect(target string) string {
	if !isLocalPath(target) {
		return loginPath
	}
	return loginPath + "?next=" + url.QueryEscape(target)
}

func isLocalPath(target string) bool {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	u, err := url.Parse(target)
	return err == nil && u.Scheme == "" && u.Host == ""
}

func wantsHTML(c *fiber.Ctx) bool {
	if c.Method() != fiber.MethodGet && c.Method() != fiber.MethodHead {
		return false
	}
	return strings.Contains(strings.ToLower(c.Get(fiber.HeaderAccept)), fiber.MIMETextHTML)
}
