package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/SP23-BSE-106/grain/internal/api/dto"
	"github.com/SP23-BSE-106/grain/internal/auth"
	"github.com/SP23-BSE-106/grain/internal/service"
	apperrors "github.com/SP23-BSE-106/grain/pkg/util"
)

// AuthHandler exposes signup, login, logout, refresh and verification.
type AuthHandler struct {
	auth    *service.AuthService
	cookies auth.CookieEnv
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, cookies auth.CookieEnv) *AuthHandler {
	return &AuthHandler{auth: authService, cookies: cookies}
}

// Signup handles POST /api/auth/signup.
func (h *AuthHandler) Signup(c *fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	user, err := h.auth.Register(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": dto.NewUserResponse(user)})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	session, err := h.auth.Login(c.UserContext(), req.Email, req.Password, req.Role)
	if err != nil {
		return err
	}
	return h.writeSession(c, session)
}

// Refresh handles POST /api/auth/refresh using the refresh cookie.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	session, err := h.auth.Refresh(c.UserContext(), c.Cookies(auth.RefreshCookieName))
	if err != nil {
		auth.ClearSessionCookies(c, h.cookies)
		return err
	}
	return h.writeSession(c, session)
}

// Logout handles POST /api/auth/logout. It always succeeds.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	h.auth.Logout(c.UserContext(), c.Cookies(auth.RefreshCookieName))
	auth.ClearSessionCookies(c, h.cookies)
	return c.JSON(dto.MessageResponse{Message: "logged out"})
}

// Verify handles POST /api/auth/verify.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req dto.VerifyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.VerifyResponse{Valid: false})
		}
	}
	token := req.Token
	if token == "" {
		token, _ = auth.ExtractCredential(c.Cookies(auth.AccessCookieName), c.Get(fiber.HeaderAuthorization))
	}
	if token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.VerifyResponse{Valid: false})
	}

	principal, err := h.auth.VerifyAccess(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.VerifyResponse{Valid: false})
	}
	user, err := h.auth.CurrentUser(c.UserContext(), &principal)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.VerifyResponse{Valid: false})
	}

	resp := dto.NewUserResponse(user)
	return c.JSON(dto.VerifyResponse{Valid: true, User: &resp})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewInvalidCredential(nil)
	}
	user, err := h.auth.CurrentUser(c.UserContext(), principal)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": dto.NewUserResponse(user)})
}

func (h *AuthHandler) writeSession(c *fiber.Ctx, session *service.Session) error {
	auth.SetSessionCookies(c, h.cookies,
		session.AccessToken, session.RefreshToken,
		session.AccessExpiresAt, session.RefreshExpiresAt)
	return c.JSON(dto.SessionResponse{
		User:        dto.NewUserResponse(session.User),
		AccessToken: session.AccessToken,
		ExpiresAt:   session.AccessExpiresAt,
	})
}
