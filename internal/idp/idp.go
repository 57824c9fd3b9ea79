// Package idp introspects upstream OAuth bearer tokens against a
// configured provider registry.
package idp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/empowerID/RealTimeAuth/internal/config"
	"github.com/empowerID/RealTimeAuth/internal/rtaerrors"
	"github.com/sirupsen/logrus"
)

// IntrospectionResult carries the advisory fields parsed from the IdP's
// response body, used only to derive context bytes and for logging; the
// HTTP status code alone decides Valid.
type IntrospectionResult struct {
	Valid  bool
	Active bool
	Scope  string
	Sub    string
}

// Adapter introspects bearer tokens through the configured provider
// registry.
type Adapter struct {
	providers config.IdpProviders
	client    *http.Client
	log       *logrus.Entry
}

// New builds an Adapter with a bounded HTTP client, matching the 3s
// introspection deadline recommended for the exchange endpoint.
func New(providers config.IdpProviders, log *logrus.Entry) *Adapter {
	return &Adapter{
		providers: providers,
		client:    &http.Client{Timeout: 3 * time.Second},
		log:       log,
	}
}

// Introspect resolves providerKey against the registry (falling back to the
// configured default), POSTs the token to the provider's introspection
// endpoint, and returns whether the upstream considers it valid. The HTTP
// status code is authoritative; the response body is parsed best-effort for
// logging and context derivation only.
func (a *Adapter) Introspect(ctx context.Context, oauthToken, providerKey string) (IntrospectionResult, error) {
	provider, ok := a.providers.Resolve(providerKey)
	if !ok {
		return IntrospectionResult{}, rtaerrors.New(rtaerrors.CodeUnknownProvider, "unknown IdP provider: "+providerKey).WithSource(rtaerrors.SourceIdp)
	}

	form := url.Values{}
	form.Set("token", oauthToken)
	form.Set("client_id", provider.ClientID)
	form.Set("client_secret", provider.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.IntrospectionURL, strings.NewReader(form.Encode()))
	if err != nil {
		return IntrospectionResult{}, rtaerrors.New(rtaerrors.CodeIdpUnreachable, "building introspection request").WithSource(rtaerrors.SourceIdp).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return IntrospectionResult{}, rtaerrors.New(rtaerrors.CodeIdpUnreachable, "introspection request failed").WithSource(rtaerrors.SourceIdp).WithCause(err)
	}
	defer resp.Body.Close()

	result := IntrospectionResult{Valid: resp.StatusCode >= 200 && resp.StatusCode < 300}

	var body struct {
		Active bool   `json:"active"`
		Scope  string `json:"scope"`
		Sub    string `json:"sub"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		result.Active = body.Active
		result.Scope = body.Scope
		result.Sub = body.Sub
	}

	if a.log != nil {
		a.log.WithFields(logrus.Fields{
			"provider":   providerKey,
			"status":     resp.StatusCode,
			"rfc7662_ok": result.Active,
		}).Debug("introspection completed")
	}

	if !result.Valid {
		return result, rtaerrors.New(rtaerrors.CodeIntrospectionFailed, "introspection returned non-2xx status").WithSource(rtaerrors.SourceIdp)
	}

	return result, nil
}
