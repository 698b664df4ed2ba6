package domain

import "time"

// TokenKind separates short-lived access credentials from refresh credentials.
type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// Principal is the verified identity recovered from a credential. It is
// rebuilt on every verification and never persisted.
type Principal struct {
	SubjectID string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
	// TokenID is the credential's jti; refresh sessions are keyed by it.
	TokenID string
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// RefreshSession is the server-side record of an issued refresh credential.
type RefreshSession struct {
	TokenID   string
	UserID    string
	ExpiresAt time.Time
}
