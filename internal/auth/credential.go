package auth

import "strings"

// CredentialSource names the carrier a credential was read from.
type CredentialSource string

const (
	SourceNone   CredentialSource = ""
	SourceCookie CredentialSource = "cookie"
	SourceHeader CredentialSource = "header"
)

// ExtractCredential applies the single precedence rule used everywhere: the
// access cookie wins, the Authorization Bearer header is the fallback.
func ExtractCredential(cookieValue, authorizationHeader string) (string, CredentialSource) {
	if v := strings.TrimSpace(cookieValue); v != "" {
		return v, SourceCookie
	}

	parts := strings.SplitN(strings.TrimSpace(authorizationHeader), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", SourceNone
	}
	if v := strings.TrimSpace(parts[1]); v != "" {
		return v, SourceHeader
	}
	return "", SourceNone
}
