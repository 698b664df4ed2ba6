package dto

import (
	"time"

	"github.com/SP23-BSE-106/grain/internal/domain"
)

// UserResponse is the public view of an account. It never carries the hash.
type UserResponse struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      domain.Role `json:"role"`
	CreatedAt *time.Time  `json:"createdAt,omitempty"`
}

// NewUserResponse maps a domain user.
func NewUserResponse(u *domain.User) UserResponse {
	resp := UserResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
	if !u.CreatedAt.IsZero() {
		created := u.CreatedAt
		resp.CreatedAt = &created
	}
	return resp
}

// NewUserListResponse maps a slice of users.
func NewUserListResponse(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, NewUserResponse(&users[i]))
	}
	return out
}

// ChangeRoleRequest payload for PATCH /api/users/:id/role.
type ChangeRoleRequest struct {
	Role domain.Role `json:"role"`
}
