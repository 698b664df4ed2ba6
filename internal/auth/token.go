package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/SP23-BSE-106/grain/internal/domain"
)

var (
	// ErrMissingSecret is returned when a manager is built without a signing key.
	ErrMissingSecret = errors.New("auth: signing secret is empty")
	// ErrInvalidCredential is the only error Verify returns.
	ErrInvalidCredential = errors.New("auth: invalid credential")
)

const defaultIssuer = "storefront"

// TokenManager issues and verifies one kind of credential with its own key.
type TokenManager struct {
	kind   domain.TokenKind
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes a TokenManager.
type Option func(*TokenManager)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(tm *TokenManager) {
		if now != nil {
			tm.now = now
		}
	}
}

// WithIssuer sets the iss claim written and required by the manager.
func WithIssuer(issuer string) Option {
	return func(tm *TokenManager) {
		if issuer != "" {
			tm.issuer = issuer
		}
	}
}

// WithLogger sets the logger used to record why a credential was rejected.
func WithLogger(logger *zap.Logger) Option {
	return func(tm *TokenManager) {
		if logger != nil {
			tm.logger = logger
		}
	}
}

// NewTokenManager builds a manager for kind. The secret is copied.
func NewTokenManager(kind domain.TokenKind, secret []byte, ttl time.Duration, opts ...Option) (*TokenManager, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("auth: %s ttl must be positive", kind)
	}
	key := make([]byte, len(secret))
	copy(key, secret)

	tm := &TokenManager{
		kind:   kind,
		secret: key,
		ttl:    ttl,
		issuer: defaultIssuer,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(tm)
	}
	tm.logger = tm.logger.With(zap.String("token_kind", string(kind)))
	return tm, nil
}

// Claims describes the JWT payload.
type Claims struct {
	Role domain.Role      `json:"role"`
	Kind domain.TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// Kind returns the credential kind handled by the manager.
func (tm *TokenManager) Kind() domain.TokenKind {
	return tm.kind
}

// TTL returns the default lifetime for credentials of this kind.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

// Issue signs a credential for subjectID. A zero ttl selects the manager's default.
func (tm *TokenManager) Issue(subjectID string, role domain.Role, ttl time.Duration) (string, domain.Principal, error) {
	if subjectID == "" {
		return "", domain.Principal{}, errors.New("auth: subject id is required")
	}
	if !role.Valid() {
		return "", domain.Principal{}, fmt.Errorf("auth: unknown role %q", role)
	}
	if ttl == 0 {
		ttl = tm.ttl
	}
	if ttl < time.Second {
		return "", domain.Principal{}, fmt.Errorf("auth: ttl %s below one second", ttl)
	}

	// NumericDate has second precision; align iat so exp is exactly iat+ttl.
	issuedAt := tm.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl.Truncate(time.Second))

	claims := &Claims{
		Role: role,
		Kind: tm.kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tm.issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", domain.Principal{}, err
	}

	return tokenString, domain.Principal{
		SubjectID: subjectID,
		Role:      role,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		TokenID:   claims.ID,
	}, nil
}

// Verify validates tokenStr and returns the embedded principal. Every failure
// yields ErrInvalidCredential; the concrete reason is only logged.
func (tm *TokenManager) Verify(tokenStr string) (domain.Principal, error) {
	if tokenStr == "" {
		return tm.reject("empty", nil)
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(tm.issuer),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(tm.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return tm.reject("expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return tm.reject("signature", err)
	case err != nil:
		return tm.reject("malformed", err)
	case !parsed.Valid:
		return tm.reject("invalid", nil)
	}

	if claims.Kind != tm.kind {
		return tm.reject("wrong_kind", nil)
	}
	if claims.Subject == "" || !claims.Role.Valid() || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return tm.reject("claims", nil)
	}

	return domain.Principal{
		SubjectID: claims.Subject,
		Role:      claims.Role,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		TokenID:   claims.ID,
	}, nil
}

func (tm *TokenManager) reject(reason string, err error) (domain.Principal, error) {
	fields := []zap.Field{zap.String("reason", reason)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	tm.logger.Debug("credential rejected", fields...)
	return domain.Principal{}, ErrInvalidCredential
}

// Keyring holds the access and refresh managers built from distinct secrets.
type Keyring struct {
	Access  *TokenManager
	Refresh *TokenManager
}

// NewKeyring builds both managers. Identical secrets are refused.
func NewKeyring(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration, opts ...Option) (*Keyring, error) {
	if len(accessSecret) > 0 && string(accessSecret) == string(refreshSecret) {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	access, err := NewTokenManager(domain.TokenKindAccess, accessSecret, accessTTL, opts...)
	if err != nil {
		return nil, fmt.Errorf("access manager: %w", err)
	}
	refresh, err := NewTokenManager(domain.TokenKindRefresh, refreshSecret, refreshTTL, opts...)
	if err != nil {
		return nil, fmt.Errorf("refresh manager: %w", err)
	}
	return &Keyring{Access: access, Refresh: refresh}, nil
}
