package domain

// OutcomeKind classifies the identity provider's answer to a password grant.
type OutcomeKind int

const (
	OutcomeAccepted OutcomeKind = iota
	OutcomeBadPassword
	OutcomeSetupIncomplete
	OutcomeUnknownRealm
	OutcomeOther
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeBadPassword:
		return "rejected-bad-password"
	case OutcomeSetupIncomplete:
		return "rejected-setup-incomplete"
	case OutcomeUnknownRealm:
		return "rejected-unknown-realm"
	default:
		return "rejected-other"
	}
}

// LoginOutcome is the classified result of a primary credential check.
type LoginOutcome struct {
	Kind OutcomeKind

	// ProviderError and ProviderDescription echo the provider's OAuth error
	// pair when the grant was refused.
	ProviderError       string
	ProviderDescription string

	// PendingActions lists the account's outstanding required actions when
	// Kind is OutcomeSetupIncomplete.
	PendingActions []string
}

// Proceeds reports whether the outcome lets the login continue to a second factor.
func (o LoginOutcome) Proceeds() bool {
	return o.Kind == OutcomeAccepted || o.Kind == OutcomeSetupIncomplete
}
