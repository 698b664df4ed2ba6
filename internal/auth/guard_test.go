package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SP23-BSE-106/grain/internal/domain"
)

func TestDecide(t *testing.T) {
	user := &domain.Principal{SubjectID: "u1", Role: domain.RoleUser}
	admin := &domain.Principal{SubjectID: "a1", Role: domain.RoleAdmin}

	tests := []struct {
		name        string
		sensitivity Sensitivity
		principal   *domain.Principal
		verifyErr   error
		want        Outcome
		state       State
	}{
		{name: "public anonymous", sensitivity: SensitivityPublic, want: OutcomeProceedAnonymous, state: StateUnauthenticated},
		{name: "public invalid credential", sensitivity: SensitivityPublic, verifyErr: ErrInvalidCredential, want: OutcomeProceedAnonymous, state: StateUnauthenticated},
		{name: "public with user", sensitivity: SensitivityPublic, principal: user, want: OutcomeProceed, state: StateAuthenticated},
		{name: "authenticated absent", sensitivity: SensitivityAuthenticated, want: OutcomeUnauthenticated, state: StateDenied},
		{name: "authenticated invalid", sensitivity: SensitivityAuthenticated, principal: user, verifyErr: ErrInvalidCredential, want: OutcomeUnauthenticated, state: StateDenied},
		{name: "authenticated user", sensitivity: SensitivityAuthenticated, principal: user, want: OutcomeProceed, state: StateAuthenticated},
		{name: "privileged absent", sensitivity: SensitivityPrivileged, want: OutcomeUnauthenticated, state: StateDenied},
		{name: "privileged user", sensitivity: SensitivityPrivileged, principal: user, want: OutcomeForbidden, state: StateDenied},
		{name: "privileged admin", sensitivity: SensitivityPrivileged, principal: admin, want: OutcomeProceed, state: StateAuthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.sensitivity, tt.principal, tt.verifyErr)
			assert.Equal(t, tt.want, d.Outcome)
			assert.Equal(t, tt.state, d.State)
			if d.Outcome == OutcomeProceed {
				assert.Same(t, tt.principal, d.Principal)
			} else {
				assert.Nil(t, d.Principal)
			}
		})
	}
}

func TestRoutePolicy_Classify(t *testing.T) {
	policy := DefaultRoutePolicy()

	tests := []struct {
		path string
		want Sensitivity
	}{
		{"/", SensitivityPublic},
		{"/products/42", SensitivityPublic},
		{"/login", SensitivityPublic},
		{"/api/auth/login", SensitivityPublic},
		{"/profile", SensitivityAuthenticated},
		{"/profile/", SensitivityAuthenticated},
		{"/orders/17?tab=items", SensitivityAuthenticated},
		{"/api/auth/me", SensitivityAuthenticated},
		{"/admin", SensitivityPrivileged},
		{"/ADMIN/products", SensitivityPrivileged},
		{"//admin", SensitivityPrivileged},
		{"/administrator", SensitivityPublic},
		{"/api/users/7/role", SensitivityPrivileged},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Classify(tt.path))
		})
	}
}

func TestRoutePolicy_LongestPrefixWins(t *testing.T) {
	policy := NewRoutePolicy(
		RouteRule{Prefix: "/shop", Sensitivity: SensitivityAuthenticated},
		RouteRule{Prefix: "/shop/manage/", Sensitivity: SensitivityPrivileged},
	)

	assert.Equal(t, SensitivityAuthenticated, policy.Classify("/shop/items"))
	assert.Equal(t, SensitivityPrivileged, policy.Classify("/shop/manage/items"))
	assert.Equal(t, "/shop/manage", policy.Rules()[0].Prefix)
}

func TestExtractCredential(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		header string
		want   string
		source CredentialSource
	}{
		{name: "none", want: "", source: SourceNone},
		{name: "cookie only", cookie: "c.c.c", want: "c.c.c", source: SourceCookie},
		{name: "header only", header: "Bearer h.h.h", want: "h.h.h", source: SourceHeader},
		{name: "lowercase scheme", header: "bearer h.h.h", want: "h.h.h", source: SourceHeader},
		{name: "cookie wins", cookie: "c.c.c", header: "Bearer h.h.h", want: "c.c.c", source: SourceCookie},
		{name: "basic scheme ignored", header: "Basic dXNlcjpwYXNz", want: "", source: SourceNone},
		{name: "empty bearer", header: "Bearer   ", want: "", source: SourceNone},
		{name: "blank cookie falls back", cookie: "  ", header: "Bearer h.h.h", want: "h.h.h", source: SourceHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := ExtractCredential(tt.cookie, tt.header)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.source, source)
		})
	}
}

func TestLoginRedirect(t *testing.T) {
	assert.Equal(t, "/login?next=%2Fprofile", LoginRedirect("/profile"))
	assert.Equal(t, "/login?next=%2Forders%3Fpage%3D2", LoginRedirect("/orders?page=2"))
	assert.Equal(t, "/login", LoginRedirect("//evil.example/phish"))
	assert.Equal(t, "/login", LoginRedirect("https://evil.example/"))
	assert.Equal(t, "/login", LoginRedirect("/\\evil.example"))
}
