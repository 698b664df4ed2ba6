package auth

import "github.com/SP23-BSE-106/grain/internal/domain"

// State is the per-request authentication state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateDenied:
		return "denied"
	default:
		return "unauthenticated"
	}
}

// Outcome is the terminal result of a guard decision.
type Outcome string

const (
	// OutcomeProceed runs the handler with the principal attached.
	OutcomeProceed Outcome = "proceed"
	// OutcomeProceedAnonymous runs a public handler without a principal.
	OutcomeProceedAnonymous Outcome = "proceed_anonymous"
	// OutcomeUnauthenticated denies for a missing or invalid credential.
	OutcomeUnauthenticated Outcome = "invalid_credential"
	// OutcomeForbidden denies a valid credential lacking the admin role.
	OutcomeForbidden Outcome = "insufficient_role"
)

// Decision is what the guard concluded for one request.
type Decision struct {
	State     State
	Outcome   Outcome
	Principal *domain.Principal
}

// Allowed reports whether the handler may run.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeProceed || d.Outcome == OutcomeProceedAnonymous
}

// Decide is the guard's state machine. principal is only consulted when
// verifyErr is nil; a nil principal with a nil error means no credential.
func Decide(sensitivity Sensitivity, principal *domain.Principal, verifyErr error) Decision {
	authenticated := verifyErr == nil && principal != nil

	if !authenticated {
		if sensitivity == SensitivityPublic {
			return Decision{State: StateUnauthenticated, Outcome: OutcomeProceedAnonymous}
		}
		return Decision{State: StateDenied, Outcome: OutcomeUnauthenticated}
	}

	if sensitivity == SensitivityPrivileged && principal.Role != domain.RoleAdmin {
		return Decision{State: StateDenied, Outcome: OutcomeForbidden}
	}
	return Decision{State: StateAuthenticated, Outcome: OutcomeProceed, Principal: principal}
}
