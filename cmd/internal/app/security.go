package app

import (
	"errors"
	"fmt"

	"logvault/cmd/security/token"
)

// loadTokenManager builds the token manager from the environment and refuses
// to start without a usable signing secret. There is no built-in fallback.
func loadTokenManager() (*token.Manager, error) {
	cfg, err := token.ConfigFromEnv()
	if err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMissing):
			return nil, fmt.Errorf("security policy: %s must be set", token.SecretEnvKey)
		case errors.Is(err, token.ErrSecretTooShort):
			return nil, fmt.Errorf("security policy: %s is too short (min %d bytes)", token.SecretEnvKey, token.MinSecretBytes)
		default:
			return nil, fmt.Errorf("token config: %w", err)
		}
	}
	return token.NewManager(cfg)
}
