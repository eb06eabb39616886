package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/aussiebroadwan/mfagate/pkg/jwtx"
)

// tokenKeys holds what is needed to issue and check final tokens. keys is
// nil for HS256, which has nothing to publish.
type tokenKeys struct {
	signer   jwtx.Signer
	verifier jwtx.Verifier
	keys     *jwtx.KeySet
}

// initTokenKeys builds the final-token signer for the configured algorithm.
//
// Supported algorithms:
//   - "HS256": shared secret from TOKEN_SECRET, for resource servers that
//     hold the same secret.
//   - "EdDSA": Ed25519 key from TOKEN_PRIVATE_KEY_FILE, published at
//     /.well-known/jwks.json. Without a key file an ephemeral key is
//     generated and every token becomes invalid on restart.
func initTokenKeys(cfg Config, logger *slog.Logger) (*tokenKeys, error) {
	switch cfg.TokenAlgorithm {
	case "EdDSA":
		pemKey, err := loadOrGenerateEd25519(cfg.TokenPrivateKeyFile, logger)
		if err != nil {
			return nil, err
		}

		signer, err := jwtx.NewSignerEdDSA("mfagate-1", pemKey)
		if err != nil {
			return nil, fmt.Errorf("invalid EdDSA signing key: %w", err)
		}
		keys := jwtx.NewKeySet()
		if err := keys.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("failed to publish signing key: %w", err)
		}

		logger.Info("token signing initialised", "algorithm", signer.Alg(), "kid", signer.KID())
		return &tokenKeys{
			signer:   signer,
			verifier: jwtx.NewVerifierEdDSA(keys, cfg.TokenIssuer),
			keys:     keys,
		}, nil

	default:
		signer, err := jwtx.NewSignerHS256("", cfg.TokenSecret)
		if err != nil {
			return nil, fmt.Errorf("invalid TOKEN_SECRET: %w", err)
		}

		logger.Info("token signing initialised", "algorithm", signer.Alg())
		return &tokenKeys{
			signer:   signer,
			verifier: jwtx.NewVerifierHS256(cfg.TokenSecret, cfg.TokenIssuer),
		}, nil
	}
}

func loadOrGenerateEd25519(path string, logger *slog.Logger) ([]byte, error) {
	if path == "" {
		logger.Warn("TOKEN_PRIVATE_KEY_FILE not set, generating ephemeral signing key")
		pemKey, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		return pemKey, nil
	}

	pemKey, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	return pemKey, nil
}
