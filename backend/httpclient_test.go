package backend

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewHTTPClient_Default(t *testing.T) {
	client, err := NewHTTPClient(30*time.Second, "")
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	if client == nil {
		t.Fatal("expected non-nil client")
	}
	if client.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", client.Timeout)
	}
}

func TestNewHTTPClient_ZeroTimeout(t *testing.T) {
	client, err := NewHTTPClient(0, "")
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	if client.Timeout != 0 {
		t.Errorf("expected 0 timeout, got %v", client.Timeout)
	}
}

func TestNewHTTPClient_InvalidProxy(t *testing.T) {
	_, err := NewHTTPClient(10*time.Second, "://invalid")
	if err == nil {
		t.Error("expected error for invalid proxy URL")
	}
}

func TestNewHTTPClient_UnsupportedScheme(t *testing.T) {
	_, err := NewHTTPClient(10*time.Second, "ftp://localhost:21")
	if err == nil {
		t.Error("expected error for unsupported proxy scheme")
	}
}

func TestNewHTTPClient_HTTPProxy(t *testing.T) {
	// Create a test proxy server (just to verify the config path)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	client, err := NewHTTPClient(10*time.Second, srv.URL)
	if err != nil {
		t.Fatalf("NewHTTPClient with http proxy failed: %v", err)
	}
	if client == nil {
		t.Fatal("expected non-nil client")
	}
}

func TestNewNoRedirectClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/start" {
			http.Redirect(w, r, "/end", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewNoRedirectClient(5*time.Second, "")
	if err != nil {
		t.Fatalf("NewNoRedirectClient failed: %v", err)
	}
	resp, err := client.Get(srv.URL + "/start")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("expected the 302 to be returned as-is, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/end" {
		t.Errorf("Location = %q, want /end", loc)
	}
}

func TestNewHTTPClient_SOCKS5Proxy(t *testing.T) {
	client, err := NewHTTPClient(10*time.Second, "socks5://127.0.0.1:1080")
	if err != nil {
		t.Fatalf("NewHTTPClient with socks5 proxy failed: %v", err)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("unexpected transport type %T", client.Transport)
	}
	if transport.DialContext == nil {
		t.Error("expected a SOCKS5 dialer to be installed")
	}
}
