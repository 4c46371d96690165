package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"garan24-bridge/internal/model"
)

func runStoreContract(t *testing.T, st Store) {
	ctx := context.Background()

	t.Run("save and load", func(t *testing.T) {
		s := &Session{ID: "s1", CartToken: "tok", CheckoutID: "chk", OngoingOrderID: 7, Locale: "sv_SE"}
		if err := st.Save(ctx, s); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
		got, err := st.Load(ctx, "s1")
		if err != nil {
			t.Fatalf("Load() error: %v", err)
		}
		if *got != *s {
			t.Errorf("Load() = %+v, want %+v", got, s)
		}
	})

	t.Run("load missing", func(t *testing.T) {
		if _, err := st.Load(ctx, "nope"); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("Load() err = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		st.Save(ctx, &Session{ID: "s2"})
		if err := st.Delete(ctx, "s2"); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if _, err := st.Load(ctx, "s2"); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("Load() after delete err = %v, want ErrNotFound", err)
		}
	})

	t.Run("claim once", func(t *testing.T) {
		ok, err := st.Claim(ctx, "garan24:push:abc", time.Minute)
		if err != nil || !ok {
			t.Fatalf("first Claim() = %v, %v; want true, nil", ok, err)
		}
		ok, err = st.Claim(ctx, "garan24:push:abc", time.Minute)
		if err != nil || ok {
			t.Fatalf("second Claim() = %v, %v; want false, nil", ok, err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemory())
}

func TestMemoryExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.Now = func() time.Time { return now }
	ctx := context.Background()

	m.Save(ctx, &Session{ID: "s"})
	m.Claim(ctx, "k", time.Minute)

	now = now.Add(TTL + time.Second)
	if _, err := m.Load(ctx, "s"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Load() after TTL err = %v, want ErrNotFound", err)
	}
	if ok, _ := m.Claim(ctx, "k", time.Minute); !ok {
		t.Error("expired claim should be claimable again")
	}
}

func TestClearCheckout(t *testing.T) {
	s := &Session{CheckoutID: "c", CheckoutCountry: "SE", EuroCountry: "DE", CartToken: "t"}
	s.ClearCheckout()
	if s.CheckoutID != "" || s.CheckoutCountry != "" {
		t.Errorf("checkout not cleared: %+v", s)
	}
	if s.EuroCountry != "DE" || s.CartToken != "t" {
		t.Errorf("unrelated fields changed: %+v", s)
	}
}

func TestManagerFromRequest(t *testing.T) {
	store := NewMemory()
	m := &Manager{Store: store}

	t.Run("new visitor gets a cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/checkout", nil)

		s, err := m.FromRequest(rec, req)
		if err != nil {
			t.Fatalf("FromRequest() error: %v", err)
		}
		if s.ID == "" {
			t.Fatal("session id is empty")
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Name != CookieName || cookies[0].Value != s.ID {
			t.Errorf("cookies = %+v", cookies)
		}
	})

	t.Run("known cookie loads the session", func(t *testing.T) {
		store.Save(context.Background(), &Session{ID: "known", CartToken: "tok"})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/checkout", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: "known"})

		s, err := m.FromRequest(rec, req)
		if err != nil {
			t.Fatalf("FromRequest() error: %v", err)
		}
		if s.ID != "known" || s.CartToken != "tok" {
			t.Errorf("session = %+v", s)
		}
		if len(rec.Result().Cookies()) != 0 {
			t.Error("cookie should not be reissued")
		}
	})

	t.Run("stale cookie starts over", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/checkout", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: "gone"})

		s, err := m.FromRequest(rec, req)
		if err != nil {
			t.Fatalf("FromRequest() error: %v", err)
		}
		if s.ID == "gone" {
			t.Error("stale id reused")
		}
	})
}

func TestNonces(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	n := NewNonces("secret")
	n.Now = func() time.Time { return now }

	nonce := n.Create("garan24_checkout_nonce", "sess")
	if len(nonce) != 10 {
		t.Errorf("len(nonce) = %d, want 10", len(nonce))
	}

	tests := []struct {
		name    string
		nonce   string
		action  string
		session string
		after   time.Duration
		want    bool
	}{
		{"same tick", nonce, "garan24_checkout_nonce", "sess", 0, true},
		{"next tick", nonce, "garan24_checkout_nonce", "sess", 12 * time.Hour, true},
		{"expired", nonce, "garan24_checkout_nonce", "sess", 25 * time.Hour, false},
		{"other action", nonce, "other", "sess", 0, false},
		{"other session", nonce, "garan24_checkout_nonce", "x", 0, false},
		{"empty", "", "garan24_checkout_nonce", "sess", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n.Now = func() time.Time { return now.Add(tt.after) }
			if got := n.Verify(tt.nonce, tt.action, tt.session); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNoncesDifferBySecret(t *testing.T) {
	a := NewNonces("a").Create("act", "s")
	b := NewNonces("b").Create("act", "s")
	if a == b {
		t.Error("nonces from different secrets should differ")
	}
}
