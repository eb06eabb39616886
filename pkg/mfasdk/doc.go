/*
Package mfasdk is a client for the mfagate login API.

# SDKClient vs Session

  - SDKClient drives a login attempt: password first, then one second factor.
  - Session wraps the final token and calls endpoints that require it.

A typical email-code login:

	client := mfasdk.NewSDKClient("https://login.example.com")

	challenge, err := client.StartLogin(ctx, "acme", "alice", password)
	if err != nil {
		return err
	}

	if err := client.SendEmailOTP(ctx, challenge.LoginAttemptID); err != nil {
		return err
	}

	// code is whatever the user typed from their inbox
	session, err := client.VerifyEmailOTP(ctx, challenge.LoginAttemptID, code)
	if err != nil {
		return err
	}

	pong, err := session.Ping(ctx)

# Errors

Every non-2xx response becomes an *APIError carrying the server's error
code. Use errors.As, or the IsCode helper:

	if mfasdk.IsCode(err, mfasdk.CodeInvalidOrExpiredOTP) {
		// ask for the code again
	}

A login attempt is unusable once it expires or completes; CodeInvalidAttempt
means the user has to start over with StartLogin.
*/
package mfasdk
