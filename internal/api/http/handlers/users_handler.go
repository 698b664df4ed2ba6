package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/SP23-BSE-106/grain/internal/api/dto"
	"github.com/SP23-BSE-106/grain/internal/auth"
	"github.com/SP23-BSE-106/grain/internal/domain"
	"github.com/SP23-BSE-106/grain/internal/repository"
	"github.com/SP23-BSE-106/grain/internal/service"
	apperrors "github.com/SP23-BSE-106/grain/pkg/util"
)

// UsersHandler exposes the admin user-management endpoints.
type UsersHandler struct {
	auth *service.AuthService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(authService *service.AuthService) *UsersHandler {
	return &UsersHandler{auth: authService}
}

// List handles GET /api/users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	filter := repository.UserFilter{
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if role := c.Query("role"); role != "" {
		r := domain.Role(role)
		filter.Role = &r
	}

	users, err := h.auth.ListUsers(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"users": dto.NewUserListResponse(users)})
}

// ChangeRole handles PATCH /api/users/:id/role.
func (h *UsersHandler) ChangeRole(c *fiber.Ctx) error {
	var req dto.ChangeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	actor, _ := auth.PrincipalFromContext(c)

	user, err := h.auth.ChangeRole(c.UserContext(), actor, c.Params("id"), req.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": dto.NewUserResponse(user)})
}
