package dto

import (
	"time"

	"github.com/SP23-BSE-106/grain/internal/domain"
)

// SignupRequest payload for new users.
type SignupRequest struct {
	Name     string `json:"name" form:"name"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// LoginRequest payload for login. Role is optional; when present the
// account must hold it.
type LoginRequest struct {
	Email    string      `json:"email" form:"email"`
	Password string      `json:"password" form:"password"`
	Role     domain.Role `json:"role,omitempty" form:"role"`
}

// SessionResponse is returned by login and refresh. The refresh credential
// only travels in its cookie.
type SessionResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
}

// VerifyRequest payload for POST /api/auth/verify.
type VerifyRequest struct {
	Token string `json:"token"`
}

// VerifyResponse reports whether a credential is valid.
type VerifyResponse struct {
	Valid bool          `json:"valid"`
	User  *UserResponse `json:"user,omitempty"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}
