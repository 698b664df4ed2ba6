package auth

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/SP23-BSE-106/grain/internal/config"
	"github.com/SP23-BSE-106/grain/internal/domain"
)

const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"

	accessCookiePath = "/"
	// The refresh credential is only ever read by /api/auth/refresh and logout.
	refreshCookiePath = "/api/auth"
)

// CookieEnv is the deployment topology cookie attributes derive from.
type CookieEnv struct {
	Environment config.Environment
	Domain      string
	CrossSite   bool
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
}

// NewCookieEnv derives the cookie topology from configuration.
func NewCookieEnv(cfg *config.Config) CookieEnv {
	return CookieEnv{
		Environment: cfg.App.Env,
		Domain:      cfg.Cookie.Domain,
		CrossSite:   cfg.Cookie.CrossSite,
		AccessTTL:   cfg.AccessTTL(),
		RefreshTTL:  cfg.RefreshTTL(),
	}
}

// CookieOptions are the attributes of one credential cookie.
type CookieOptions struct {
	Name     string
	HTTPOnly bool
	Secure   bool
	SameSite string
	Domain   string
	Path     string
	MaxAge   int
}

// CookieOptionsFor is the only place cookie attributes are decided.
func CookieOptionsFor(env CookieEnv, kind domain.TokenKind) CookieOptions {
	opts := CookieOptions{
		HTTPOnly: true,
		Secure:   env.Environment != config.EnvDevelopment,
		Domain:   env.Domain,
	}

	switch kind {
	case domain.TokenKindRefresh:
		opts.Name = RefreshCookieName
		opts.Path = refreshCookiePath
		opts.SameSite = fiber.CookieSameSiteStrictMode
		opts.MaxAge = int(env.RefreshTTL / time.Second)
	default:
		opts.Name = AccessCookieName
		opts.Path = accessCookiePath
		opts.SameSite = fiber.CookieSameSiteLaxMode
		opts.MaxAge = int(env.AccessTTL / time.Second)
	}

	// Browsers drop SameSite=None cookies that are not Secure.
	if env.CrossSite {
		opts.SameSite = fiber.CookieSameSiteNoneMode
		opts.Secure = true
	}
	return opts
}

func (o CookieOptions) cookie(value string, expires time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     o.Name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   o.MaxAge,
		Expires:  expires,
		Secure:   o.Secure,
		HTTPOnly: o.HTTPOnly,
		SameSite: o.SameSite,
	}
}

// SetSessionCookies writes the access and refresh cookies.
func SetSessionCookies(c *fiber.Ctx, env CookieEnv, access, refresh string, accessExp, refreshExp time.Time) {
	c.Cookie(CookieOptionsFor(env, domain.TokenKindAccess).cookie(access, accessExp))
	if refresh != "" {
		c.Cookie(CookieOptionsFor(env, domain.TokenKindRefresh).cookie(refresh, refreshExp))
	}
}

// ClearSessionCookies expires both cookies using the exact attributes they
// were set with; fiber's ClearCookie drops path and domain.
func ClearSessionCookies(c *fiber.Ctx, env CookieEnv) {
	for _, kind := range []domain.TokenKind{domain.TokenKindAccess, domain.TokenKindRefresh} {
		opts := CookieOptionsFor(env, kind)
		opts.MaxAge = -1
		c.Cookie(opts.cookie("", time.Unix(0, 0)))
	}
}
