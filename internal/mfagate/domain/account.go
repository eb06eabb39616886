package domain

import "strings"

// Required action names understood by the identity provider.
const (
	ActionVerifyEmail   = "VERIFY_EMAIL"
	ActionConfigureTOTP = "CONFIGURE_TOTP"
)

// Method is a second factor offered to the client.
type Method string

const (
	MethodEmail Method = "email"
	MethodTOTP  Method = "totp"
	MethodSMS   Method = "sms"
)

// AccountState is the externally fetched view of an account that decides
// which second factors it can use.
type AccountState struct {
	ID              string
	Username        string
	Email           string
	EmailVerified   bool
	HasTOTP         bool
	Phone           string // first value of the phone_number attribute
	RequiredActions []string
}

// HasEmail reports a non-blank email address.
func (s AccountState) HasEmail() bool {
	return strings.TrimSpace(s.Email) != ""
}

// SMSPhone returns the trimmed phone number if it is in E.164 form.
func (s AccountState) SMSPhone() (string, bool) {
	p := strings.TrimSpace(s.Phone)
	return p, strings.HasPrefix(p, "+")
}

// HasRequiredAction reports whether action is pending on the account.
func (s AccountState) HasRequiredAction(action string) bool {
	for _, a := range s.RequiredActions {
		if strings.EqualFold(a, action) {
			return true
		}
	}
	return false
}

// CapabilitySet is computed from AccountState, never stored.
type CapabilitySet struct {
	EmailAvailable         bool
	TOTPConfigured         bool
	SMSAvailable           bool
	NeedsEmail             bool
	NeedsEmailVerification bool
	NeedsTOTPSetup         bool
}

// Methods lists the offered second factors in display order.
func (c CapabilitySet) Methods() []Method {
	methods := make([]Method, 0, 3)
	if c.EmailAvailable {
		methods = append(methods, MethodEmail)
	}
	methods = append(methods, MethodTOTP)
	if c.SMSAvailable {
		methods = append(methods, MethodSMS)
	}
	return methods
}

// Needs are advisory account-completion prompts returned with a login.
type Needs struct {
	EmailMissing  bool `json:"emailMissing"`
	VerifyEmail   bool `json:"verifyEmail"`
	ConfigureTOTP bool `json:"configureTotp"`
}

// Needs projects the capability flags into the login response shape.
func (c CapabilitySet) Needs() Needs {
	return Needs{
		EmailMissing:  c.NeedsEmail,
		VerifyEmail:   c.NeedsEmailVerification,
		ConfigureTOTP: c.NeedsTOTPSetup,
	}
}
