package jwtx

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
)

// EdDSASigner signs completed-login tokens with an Ed25519 key whose public
// half is published in the JWKS.
type EdDSASigner struct {
	kid string
	key ed25519.PrivateKey
	pub ed25519.PublicKey
}

// newEdDSASigner loads a PKCS8 PEM Ed25519 key. An empty kid is replaced by
// the key's RFC 7638 thumbprint.
func newEdDSASigner(kid string, pemKey []byte) (*EdDSASigner, error) {
	key, err := cryptox.ParseEd25519Key(pemKey)
	if err != nil {
		return nil, fmt.Errorf("jwtx: %w", err)
	}

	pub := key.Public().(ed25519.PublicKey)
	if kid == "" {
		kid = Ed25519Thumbprint(pub)
	}

	s := &EdDSASigner{kid: kid, key: key, pub: pub}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Ed25519Thumbprint is the base64url SHA-256 thumbprint of the key's
// required JWK members, in lexicographic order.
func Ed25519Thumbprint(pub ed25519.PublicKey) string {
	x := base64.RawURLEncoding.EncodeToString(pub)
	sum := sha256.Sum256([]byte(`{"crv":"Ed25519","kty":"OKP","x":"` + x + `"}`))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func (s *EdDSASigner) Alg() string { return jwt.SigningMethodEdDSA.Alg() }
func (s *EdDSASigner) KID() string { return s.kid }

func (s *EdDSASigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// PublicJWK returns the verification key served at /.well-known/jwks.json.
func (s *EdDSASigner) PublicJWK() JWK {
	return NewEd25519JWK(s.kid, "sig", s.Alg(), s.pub)
}

func (s *EdDSASigner) Validate() error {
	if len(s.key) != ed25519.PrivateKeySize || len(s.pub) != ed25519.PublicKeySize {
		return fmt.Errorf("jwtx: invalid Ed25519 key size")
	}
	if s.kid == "" {
		return fmt.Errorf("jwtx: key id must not be empty")
	}
	return nil
}
