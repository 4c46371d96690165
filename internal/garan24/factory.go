package garan24

import (
	"log/slog"
	"net/http"
)

// Factory builds API clients for a set of credentials. Credentials differ
// per country and gateway, so clients are created per call.
type Factory interface {
	Legacy(creds Credentials, testMode bool) LegacyAPI
	Rest(creds Credentials, country string, testMode bool) RestAPI
}

// ClientFactory creates HTTP clients sharing one transport and logger.
type ClientFactory struct {
	Endpoints  Endpoints
	HTTPClient *http.Client
	Logger     *slog.Logger
	Debug      bool
}

// Legacy returns a legacy API client.
func (f *ClientFactory) Legacy(creds Credentials, testMode bool) LegacyAPI {
	return NewLegacy(Config{
		BaseURL:     f.Endpoints.Legacy(testMode),
		Credentials: creds,
		HTTPClient:  f.HTTPClient,
		Logger:      f.Logger,
		Debug:       f.Debug,
	})
}

// Rest returns a REST API client for the region serving country.
func (f *ClientFactory) Rest(creds Credentials, country string, testMode bool) RestAPI {
	return NewRest(Config{
		BaseURL:     f.Endpoints.Rest(country, testMode),
		Credentials: creds,
		HTTPClient:  f.HTTPClient,
		Logger:      f.Logger,
		Debug:       f.Debug,
	})
}

var _ Factory = (*ClientFactory)(nil)
