package oauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"secopsmcp/internal/auth"
	"secopsmcp/internal/domain"
	"secopsmcp/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newAuthenticator(url, id, secret string) *Authenticator {
	client := transport.New(transport.Options{
		BaseURL:    url,
		HTTPClient: transport.NewHTTPClient(5*time.Second, false),
		Logger:     testLogger(),
	})
	return NewAuthenticator(client, id, secret, testLogger())
}

func TestAuthenticate_Success(t *testing.T) {
	var form string
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != TokenPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		contentType = r.Header.Get("Content-Type")
		r.ParseForm()
		form = r.PostForm.Get("client_id") + ":" + r.PostForm.Get("client_secret")
		io.WriteString(w, `{"access_token":"abc","expires_in":1799}`)
	}))
	defer srv.Close()

	s, err := newAuthenticator(srv.URL, "id", "secret").Authenticate(context.Background())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if s.Scheme() != auth.SchemeBearer || !s.Valid() {
		t.Fatalf("expected valid bearer session, got %+v", s)
	}
	if form != "id:secret" {
		t.Fatalf("unexpected form %q", form)
	}
	if contentType != "application/x-www-form-urlencoded" {
		t.Fatalf("expected form encoding, got %q", contentType)
	}
}

func TestAuthenticate_MissingTokenIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"meta":{},"errors":[]}`)
	}))
	defer srv.Close()

	_, err := newAuthenticator(srv.URL, "id", "secret").Authenticate(context.Background())
	if domain.KindOf(err) != domain.AuthenticationExpired {
		t.Fatalf("expected AuthenticationExpired, got %v", err)
	}
}

func TestAuthenticate_RejectedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"errors":[{"code":400,"message":"invalid client"}]}`)
	}))
	defer srv.Close()

	_, err := newAuthenticator(srv.URL, "id", "wrong").Authenticate(context.Background())
	if domain.KindOf(err) != domain.AuthenticationExpired {
		t.Fatalf("expected AuthenticationExpired, got %v", err)
	}
}

func TestAuthenticate_NonJSONPageIsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html>login</html>`)
	}))
	defer srv.Close()

	_, err := newAuthenticator(srv.URL, "id", "secret").Authenticate(context.Background())
	if domain.KindOf(err) != domain.AuthenticationExpired {
		t.Fatalf("expected AuthenticationExpired, got %v", err)
	}
	var de *domain.Error
	if !errors.As(err, &de) || de.Raw == nil {
		t.Fatalf("raw response must be kept, got %#v", err)
	}
}

func TestAuthenticate_UnreachableKeepsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newAuthenticator(url, "id", "secret").Authenticate(context.Background())
	if domain.KindOf(err) != domain.TransportError {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestAuthenticate_NotConfigured(t *testing.T) {
	_, err := newAuthenticator("http://127.0.0.1:1", "", "").Authenticate(context.Background())
	if domain.KindOf(err) != domain.ConfigurationMissing {
		t.Fatalf("expected ConfigurationMissing, got %v", err)
	}
}
