// Package idp talks to the Keycloak identity provider: the admin REST API,
// the password grant used for primary credential checks, and the browser
// authorization-code flow used for TOTP enrollment.
package idp

import "errors"

var (
	ErrRealmNotFound = errors.New("idp: realm not found")
	ErrUserNotFound  = errors.New("idp: user not found")

	// ErrProvider wraps any other failure talking to the provider.
	ErrProvider = errors.New("idp: provider request failed")
)

// RealmURL returns the base URL of a realm on the provider.
func RealmURL(baseURL, realm string) string {
	return baseURL + "/realms/" + realm
}

// OIDCURL returns an OpenID Connect endpoint of a realm, e.g. "token".
func OIDCURL(baseURL, realm, endpoint string) string {
	return RealmURL(baseURL, realm) + "/protocol/openid-connect/" + endpoint
}
