// Package identitysvc holds the external identity provider adapters.
package identitysvc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/imusici/accademia/core"
	"github.com/imusici/accademia/core/auth"
)

const SessionHeader = "X-Session-ID"

// SessionProvider exchanges a provider session id against the provider's session-data endpoint.
type SessionProvider struct {
	url    string
	client *http.Client
	logger core.Logger
}

var _ auth.IdentityProvider = (*SessionProvider)(nil)

func NewSessionProvider(conf *core.Config, logger core.Logger) *SessionProvider {
	timeout := conf.Identity.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SessionProvider{
		url:    conf.Identity.SessionDataURL,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

func (p *SessionProvider) Resolve(ctx context.Context, handle string) (auth.Identity, error) {
	if strings.TrimSpace(handle) == "" {
		return auth.Identity{}, auth.ErrInvalidExternalSession
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return auth.Identity{}, errors.Wrap(err, "building session-data request")
	}
	req.Header.Set(SessionHeader, handle)
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn(fmt.Sprintf("identity provider: %v", err), err)
		return auth.Identity{}, auth.ErrIdentityUnavailable
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, res.Body)
		return auth.Identity{}, auth.ErrInvalidExternalSession
	}

	var ident auth.Identity
	if err = json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&ident); err != nil {
		p.logger.Warn(fmt.Sprintf("identity provider: decoding session data: %v", err), err)
		return auth.Identity{}, auth.ErrIdentityUnavailable
	}
	if ident.Email == "" {
		return auth.Identity{}, auth.ErrIdentityUnavailable
	}
	return ident, nil
}
