package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/SP23-BSE-106/grain/internal/auth"
	apperrors "github.com/SP23-BSE-106/grain/pkg/util"
)

// PagesHandler serves the guarded storefront page shells. The page
// content itself is rendered by the front end.
type PagesHandler struct{}

// NewPagesHandler constructs handler.
func NewPagesHandler() *PagesHandler {
	return &PagesHandler{}
}

// Profile handles GET /profile.
func (h *PagesHandler) Profile(c *fiber.Ctx) error {
	return h.page(c, "profile")
}

// Admin handles GET /admin.
func (h *PagesHandler) Admin(c *fiber.Ctx) error {
	return h.page(c, "admin")
}

func (h *PagesHandler) page(c *fiber.Ctx, name string) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewInvalidCredential(nil)
	}
	return c.JSON(fiber.Map{
		"page": name,
		"principal": fiber.Map{
			"id":   principal.SubjectID,
			"role": principal.Role,
		},
	})
}
