package garan24

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"garan24-bridge/internal/model"
)

// Error is a failed Garan24 call. Code is the provider error code and
// Messages the human readable details.
type Error struct {
	Status        int      `json:"-"`
	Code          string   `json:"error_code"`
	Messages      []string `json:"error_messages"`
	CorrelationID string   `json:"correlation_id"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("garan24: status %d: %s: %s", e.Status, e.Code, strings.Join(e.Messages, "; "))
}

// Note formats the error the way it is written to order notes.
func (e *Error) Note() string {
	return fmt.Sprintf("Error code %s. Error message %s", e.Code, strings.Join(e.Messages, ", "))
}

// Unwrap maps the provider status onto the shared sentinel errors so callers
// can use errors.Is(err, model.ErrNotFound) without knowing the provider.
func (e *Error) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return model.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return model.ErrUnauthorized
	case http.StatusTooManyRequests:
		return model.ErrRateLimited
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return model.ErrInvalidRequest
	}
	return model.ErrUpstreamError
}

// parseError builds an Error from a non-2xx response body. Unparseable
// bodies keep the status and a truncated raw message.
func parseError(status int, body []byte) *Error {
	e := &Error{Status: status}
	if err := json.Unmarshal(body, e); err != nil || e.Code == "" {
		e.Code = http.StatusText(status)
		if msg := strings.TrimSpace(string(body)); msg != "" {
			if len(msg) > 200 {
				msg = msg[:200]
			}
			e.Messages = []string{msg}
		}
	}
	return e
}

// NoteFor renders any error for an order note. Provider errors keep their
// code; everything else uses the plain message.
func NoteFor(err error) string {
	var gErr *Error
	if errors.As(err, &gErr) {
		return gErr.Note()
	}
	return "Error message " + err.Error()
}

// ToAPIError converts a provider failure into the structured API error
// returned by HTTP handlers.
func ToAPIError(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	var gErr *Error
	if !errors.As(err, &gErr) {
		return model.NewUpstreamError("Garan24", err)
	}
	switch gErr.Status {
	case http.StatusNotFound:
		return model.NewNotFoundError("garan24 order")
	case http.StatusTooManyRequests:
		return model.NewRateLimitError("Garan24")
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return model.NewValidationError(gErr.Code, strings.Join(gErr.Messages, ", "))
	}
	return model.NewUpstreamError("Garan24", gErr)
}
