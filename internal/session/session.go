// Package session keeps the per-visitor checkout state that WooCommerce
// would hold in its own session: the Store API cart token, the provider
// checkout in progress and the ongoing incomplete order.
package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"garan24-bridge/internal/model"
)

// CookieName is the cookie carrying the session id.
const CookieName = "garan24_session"

// TTL is how long an idle session is kept.
const TTL = 48 * time.Hour

// Session is one visitor's checkout state.
type Session struct {
	ID              string `json:"-"`
	CartToken       string `json:"cart_token,omitempty"`
	CheckoutID      string `json:"garan24_checkout,omitempty"`
	CheckoutCountry string `json:"garan24_checkout_country,omitempty"`
	EuroCountry     string `json:"garan24_euro_country,omitempty"`
	OngoingOrderID  int64  `json:"ongoing_garan24_order,omitempty"`
	OrderNote       string `json:"garan24_order_note,omitempty"`
	CustomerEmail   string `json:"customer_email,omitempty"`
	Locale          string `json:"locale,omitempty"`
}

// ClearCheckout forgets the provider checkout so the next page load
// creates a fresh one.
func (s *Session) ClearCheckout() {
	s.CheckoutID = ""
	s.CheckoutCountry = ""
}

// Store persists sessions. Claim is a short-lived atomic marker used to
// drop duplicate provider pushes.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

func sessionNotFound() error {
	return model.NewNotFoundError("session")
}

// Manager binds sessions to the request cookie.
type Manager struct {
	Store  Store
	Secure bool
}

// FromRequest loads the visitor's session or starts a new one. A new
// session id is written to the response cookie; the session itself is
// only stored on Save.
func (m *Manager) FromRequest(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		s, err := m.Store.Load(r.Context(), c.Value)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}

	s := &Session{ID: uuid.NewString()}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.ID,
		Path:     "/",
		MaxAge:   int(TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return s, nil
}

// Load returns a stored session by id, as the push listener does with the
// sid it gets back from the provider.
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	return m.Store.Load(ctx, id)
}

// Save stores the session.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	return m.Store.Save(ctx, s)
}
