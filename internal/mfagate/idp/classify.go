package idp

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/mfagate/internal/mfagate/domain"
)

// Provider phrases that distinguish the invalid_grant refusals. Keycloak
// reports both with the same error code; only the description differs.
const (
	phraseSetupIncomplete = "account is not fully set up"
	phraseBadCredentials  = "invalid user credentials"
)

// ClassifyError maps the result of a password grant to a LoginOutcome. A nil
// error is acceptance; anything but a token endpoint refusal is OutcomeOther.
func ClassifyError(err error) domain.LoginOutcome {
	if err == nil {
		return domain.LoginOutcome{Kind: domain.OutcomeAccepted}
	}
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return domain.LoginOutcome{Kind: domain.OutcomeOther}
	}
	return Classify(re.Response.StatusCode, re.ErrorCode, re.ErrorDescription)
}

// Classify maps a token endpoint status and OAuth 2.0 error fields to a
// LoginOutcome. It is the only place that inspects provider error text.
func Classify(status int, code, description string) domain.LoginOutcome {
	if status >= 200 && status < 300 {
		return domain.LoginOutcome{Kind: domain.OutcomeAccepted}
	}

	out := domain.LoginOutcome{
		Kind:                domain.OutcomeOther,
		ProviderError:       code,
		ProviderDescription: description,
	}

	if status == http.StatusNotFound {
		out.Kind = domain.OutcomeUnknownRealm
		return out
	}

	refused := status == http.StatusBadRequest || status == http.StatusUnauthorized
	if refused && code == "invalid_grant" {
		switch {
		case containsFold(description, phraseSetupIncomplete):
			out.Kind = domain.OutcomeSetupIncomplete
		case containsFold(description, phraseBadCredentials):
			out.Kind = domain.OutcomeBadPassword
		}
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), substr)
}
