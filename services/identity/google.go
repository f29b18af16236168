package identitysvc

import (
	"context"
	"strings"

	googleAuthIDTokenVerifier "github.com/futurenda/google-auth-id-token-verifier"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/auth"
)

// GoogleProvider treats the handle as a Google ID token issued to the configured client.
type GoogleProvider struct {
	clientID string
	verifier googleAuthIDTokenVerifier.Verifier
	logger   core.Logger
}

var _ auth.IdentityProvider = (*GoogleProvider)(nil)

func NewGoogleProvider(conf *core.Config, logger core.Logger) *GoogleProvider {
	return &GoogleProvider{
		clientID: conf.Identity.GoogleClientID,
		logger:   logger,
	}
}

func (p *GoogleProvider) Resolve(_ context.Context, handle string) (auth.Identity, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return auth.Identity{}, auth.ErrInvalidExternalSession
	}
	if err := p.verifier.VerifyIDToken(handle, []string{p.clientID}); err != nil {
		p.logger.Info("google id token rejected", err)
		return auth.Identity{}, auth.ErrInvalidExternalSession
	}
	claims, err := googleAuthIDTokenVerifier.Decode(handle)
	if err != nil {
		return auth.Identity{}, auth.ErrIdentityUnavailable
	}
	return auth.Identity{Email: claims.Email, Subject: claims.Sub}, nil
}

// NewProvider returns the adapter selected by the configuration.
func NewProvider(conf *core.Config, logger core.Logger) auth.IdentityProvider {
	if conf.Identity.Provider == "google" {
		return NewGoogleProvider(conf, logger)
	}
	return NewSessionProvider(conf, logger)
}
