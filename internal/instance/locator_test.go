package instance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"secopsmcp/internal/domain"
	"secopsmcp/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newLocator(t *testing.T, status int, body string) (*Locator, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("$select") != "identifier" {
			t.Errorf("missing $select, got %q", r.URL.RawQuery)
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	client := transport.New(transport.Options{BaseURL: srv.URL, Logger: testLogger()})
	return NewLocator(client, testLogger()), &calls
}

func TestLocate_FirstActiveWins(t *testing.T) {
	l, _ := newLocator(t, 200, `{"integration_instances":[
		{"identifier":"inactive","isActive":false},
		{"identifier":"first"},
		{"identifier":"second","isActive":true}]}`)

	inst, err := l.Locate(context.Background(), "VirusTotalV3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.Identifier != "first" || inst.ProductName != "VirusTotalV3" || !inst.IsActive {
		t.Fatalf("unexpected instance %+v", inst)
	}
}

func TestLocate_EmptyList(t *testing.T) {
	l, _ := newLocator(t, 200, `{"integration_instances":[]}`)
	_, err := l.Locate(context.Background(), "Okta")
	if domain.KindOf(err) != domain.InstanceNotFound {
		t.Fatalf("expected InstanceNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "No active instance found") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestLocate_NoneActive(t *testing.T) {
	l, _ := newLocator(t, 200, `{"integration_instances":[{"identifier":"a","isActive":false}]}`)
	_, err := l.Locate(context.Background(), "Okta")
	if domain.KindOf(err) != domain.InstanceNotFound {
		t.Fatalf("expected InstanceNotFound, got %v", err)
	}
}

func TestLocate_MissingIdentifier(t *testing.T) {
	l, _ := newLocator(t, 200, `{"integration_instances":[{"isActive":true}]}`)
	_, err := l.Locate(context.Background(), "Okta")
	if domain.KindOf(err) != domain.InstanceMisconfigured {
		t.Fatalf("expected InstanceMisconfigured, got %v", err)
	}
	if domain.AsError(err).Detail != "Instance found but identifier is missing." {
		t.Fatalf("unexpected detail %q", domain.AsError(err).Detail)
	}
}

func TestLocate_WrongShape(t *testing.T) {
	l, _ := newLocator(t, 200, `{"integration_instances":"nope"}`)
	_, err := l.Locate(context.Background(), "Okta")
	if domain.KindOf(err) != domain.UpstreamMalformedResponse {
		t.Fatalf("expected UpstreamMalformedResponse, got %v", err)
	}
}

func TestLocate_UpstreamErrorPropagates(t *testing.T) {
	l, calls := newLocator(t, 403, `{"message":"nope"}`)
	_, err := l.Locate(context.Background(), "Okta")
	if domain.KindOf(err) != domain.AuthenticationExpired {
		t.Fatalf("expected AuthenticationExpired, got %v", err)
	}
	if *calls != 1 {
		t.Fatalf("expected one call, got %d", *calls)
	}
}

func TestLocate_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := transport.New(transport.Options{BaseURL: url, Logger: testLogger()})
	_, err := NewLocator(client, testLogger()).Locate(context.Background(), "Okta")
	if domain.KindOf(err) != domain.TransportError {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if domain.AsError(err).Detail == "" {
		t.Fatal("transport message must be preserved")
	}
}

func TestPath_EscapesProduct(t *testing.T) {
	got := Path("Google Chronicle")
	want := "/api/1p/external/v1/integrations/Google%20Chronicle/integrationInstances"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}
