// Package garan24 is the client for the Garan24 payment APIs: the legacy
// checkout with its KPM RPC methods, and the REST checkout / order
// management API used for GB and US.
package garan24

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"garan24-bridge/internal/model"
)

// userAgent identifies the bridge to Garan24.
const userAgent = "Garan24-Bridge/1.0 (+https://github.com/garan24/garan24-bridge)"

// Default base URLs.
const (
	DefaultLegacyTestURL = "https://payment.testdrive.garan24.com"
	DefaultLegacyLiveURL = "https://payment.garan24.com"
	DefaultEUTestURL     = "https://api-test.garan24.com"
	DefaultEULiveURL     = "https://api.garan24.com"
	DefaultNATestURL     = "https://api-na-test.garan24.com"
	DefaultNALiveURL     = "https://api-na.garan24.com"
)

// Credentials are the merchant id (eid) and shared secret for one country.
type Credentials struct {
	EID    string
	Secret string
}

// Endpoints holds the base URL for every API and mode.
type Endpoints struct {
	LegacyTest string
	LegacyLive string
	EUTest     string
	EULive     string
	NATest     string
	NALive     string
}

// DefaultEndpoints returns the production Garan24 hosts.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		LegacyTest: DefaultLegacyTestURL,
		LegacyLive: DefaultLegacyLiveURL,
		EUTest:     DefaultEUTestURL,
		EULive:     DefaultEULiveURL,
		NATest:     DefaultNATestURL,
		NALive:     DefaultNALiveURL,
	}
}

// Merge returns e with every empty field taken from the defaults.
func (e Endpoints) Merge(def Endpoints) Endpoints {
	pick := func(v, d string) string {
		if v != "" {
			return strings.TrimSuffix(v, "/")
		}
		return d
	}
	return Endpoints{
		LegacyTest: pick(e.LegacyTest, def.LegacyTest),
		LegacyLive: pick(e.LegacyLive, def.LegacyLive),
		EUTest:     pick(e.EUTest, def.EUTest),
		EULive:     pick(e.EULive, def.EULive),
		NATest:     pick(e.NATest, def.NATest),
		NALive:     pick(e.NALive, def.NALive),
	}
}

// Legacy returns the legacy checkout / KPM base URL.
func (e Endpoints) Legacy(testMode bool) string {
	if testMode {
		return e.LegacyTest
	}
	return e.LegacyLive
}

// Rest returns the REST base URL for a purchase country. US orders go to
// the North American region, everything else to the EU region.
func (e Endpoints) Rest(country string, testMode bool) string {
	if strings.EqualFold(country, "US") {
		if testMode {
			return e.NATest
		}
		return e.NALive
	}
	if testMode {
		return e.EUTest
	}
	return e.EULive
}

// Config configures a Legacy or Rest client.
type Config struct {
	BaseURL     string
	Credentials Credentials
	HTTPClient  *http.Client
	Logger      *slog.Logger
	// Debug logs request and response bodies at Info instead of Debug.
	Debug bool
}

// client is the HTTP plumbing shared by both APIs.
type client struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger
	logLevel   slog.Level
	authorize  func(req *http.Request, body []byte)
}

func newClient(cfg Config) client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelDebug
	if cfg.Debug {
		level = slog.LevelInfo
	}
	return client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		creds:      cfg.Credentials,
		httpClient: httpClient,
		logger:     logger,
		logLevel:   level,
	}
}

// personalNumber matches the national id fields of logged bodies.
var personalNumber = regexp.MustCompile(`("(?:pno|national_identification_number)"\s*:\s*)"[^"]*"`)

// redact masks personal numbers in a request or response body.
func redact(body []byte) string {
	return string(personalNumber.ReplaceAll(body, []byte(`${1}"[REDACTED]"`)))
}

// digest computes the legacy shared-secret signature:
// base64(sha256(body + secret)).
func digest(body []byte, secret string) string {
	h := sha256.New()
	h.Write(body)
	h.Write([]byte(secret))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// do sends a JSON request and decodes a JSON response into out (when non-nil
// and the response has a body). Non-2xx responses become *Error.
func (c *client) do(ctx context.Context, method, path string, body, out any) (http.Header, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.authorize != nil {
		c.authorize(req, payload)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewUpstreamError("Garan24", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.Log(ctx, c.logLevel, "garan24 request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"request", redact(payload),
		"response", redact(respBody),
	)

	if resp.StatusCode >= 400 {
		gErr := parseError(resp.StatusCode, respBody)
		if gErr.CorrelationID == "" {
			gErr.CorrelationID = resp.Header.Get("Correlation-Id")
		}
		return resp.Header, gErr
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp.Header, fmt.Errorf("parsing response: %w", err)
		}
	}
	return resp.Header, nil
}

// idFromLocation returns the last path segment of a Location header.
func idFromLocation(h http.Header) string {
	loc := strings.TrimSuffix(h.Get("Location"), "/")
	if i := strings.LastIndex(loc, "/"); i >= 0 {
		return loc[i+1:]
	}
	return loc
}
