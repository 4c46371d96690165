package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClientPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	tests := []struct {
		name string
		opts Options
	}{
		{"default transport", Options{Timeout: 5 * time.Second, Name: "test"}},
		{"fingerprint falls back to http/1.1", Options{Timeout: 5 * time.Second, Fingerprint: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.opts)
			resp, err := client.Get(srv.URL)
			if err != nil {
				t.Fatalf("Get() error: %v", err)
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if string(body) != "ok" {
				t.Errorf("body = %q, want ok", body)
			}
		})
	}
}

func TestNewClientDefaultTimeout(t *testing.T) {
	if got := NewClient(Options{}).Timeout; got != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", got)
	}
}
