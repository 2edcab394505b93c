package ngrok

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPublicURL(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tunnels" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			_, _ = w.Write([]byte(`{"tunnels":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"tunnels":[
			{"public_url":"https://other.ngrok.app","proto":"https","config":{"addr":"http://localhost:8080"}},
			{"public_url":"http://kiosk.ngrok.app","proto":"http","config":{"addr":"http://localhost:3000"}},
			{"public_url":"https://kiosk.ngrok.app","proto":"https","config":{"addr":"http://localhost:3000"}}
		]}`))
	}))
	defer srv.Close()

	cfg := &Config{APIURL: srv.URL, Attempts: 5, Interval: time.Millisecond}
	got, err := PublicURL(context.Background(), cfg, "3000")
	if err != nil {
		t.Fatalf("PublicURL() err = %v", err)
	}
	if got != "https://kiosk.ngrok.app" {
		t.Fatalf("PublicURL() = %q; want https tunnel", got)
	}

	if _, err := PublicURL(context.Background(), cfg, "9999"); err == nil {
		t.Fatalf("PublicURL() for unknown port err = nil; want error")
	}
}

func TestTunnelPort(t *testing.T) {
	tests := map[string]string{
		"http://localhost:3000": "3000",
		"localhost:3000":        "3000",
		"3000":                  "3000",
	}
	for in, want := range tests {
		if got := tunnelPort(in); got != want {
			t.Fatalf("tunnelPort(%q) = %q; want %q", in, got, want)
		}
	}
}
