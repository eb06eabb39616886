package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
)

// ErrSMSUnavailable is returned when no SMS provider is configured.
var ErrSMSUnavailable = errors.New("notify: sms verification not configured")

// statusApproved is the Verify status of an accepted code.
const statusApproved = "approved"

// verifyAPI is the slice of the Twilio Verify v2 client used here.
type verifyAPI interface {
	CreateVerification(serviceSid string, params *verify.CreateVerificationParams) (*verify.VerifyV2Verification, error)
	CreateVerificationCheck(serviceSid string, params *verify.CreateVerificationCheckParams) (*verify.VerifyV2VerificationCheck, error)
}

// TwilioVerifier sends and checks SMS codes with Twilio Verify. Code
// generation and storage stay with Twilio.
type TwilioVerifier struct {
	api        verifyAPI
	serviceSID string
	timeout    time.Duration
}

func NewTwilioVerifier(accountSID, authToken, serviceSID string, timeout time.Duration) *TwilioVerifier {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &TwilioVerifier{api: client.VerifyV2, serviceSID: serviceSID, timeout: timeout}
}

// Send starts an SMS verification to phone.
func (v *TwilioVerifier) Send(ctx context.Context, phone string) error {
	params := &verify.CreateVerificationParams{}
	params.SetTo(phone)
	params.SetChannel("sms")

	return v.do(ctx, func() error {
		_, err := v.api.CreateVerification(v.serviceSID, params)
		return err
	})
}

// Check reports whether code is the pending code for phone.
func (v *TwilioVerifier) Check(ctx context.Context, phone, code string) (bool, error) {
	params := &verify.CreateVerificationCheckParams{}
	params.SetTo(phone)
	params.SetCode(code)

	var status string
	err := v.do(ctx, func() error {
		res, err := v.api.CreateVerificationCheck(v.serviceSID, params)
		if err != nil {
			return err
		}
		if res != nil && res.Status != nil {
			status = *res.Status
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return strings.EqualFold(status, statusApproved), nil
}

// do runs a blocking client call so that ctx can abandon it.
func (v *TwilioVerifier) do(ctx context.Context, fn func() error) error {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("twilio verify: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("twilio verify: %w", ctx.Err())
	}
}

// NoSMS rejects every request. It is used when Twilio is not configured.
type NoSMS struct{}

func (NoSMS) Send(context.Context, string) error { return ErrSMSUnavailable }

func (NoSMS) Check(context.Context, string, string) (bool, error) { return false, ErrSMSUnavailable }
