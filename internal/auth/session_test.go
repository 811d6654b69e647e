package auth

import (
	"context"
	"net/http"
	"testing"
)

func TestAppKeySession_Apply(t *testing.T) {
	h := http.Header{}
	AppKeySession("k-123").Apply(h)
	if got := h.Get("AppKey"); got != "k-123" {
		t.Fatalf("expected AppKey header, got %q", got)
	}
	if h.Get("Authorization") != "" {
		t.Fatal("app key session must not set Authorization")
	}
}

func TestBearerSession_Apply(t *testing.T) {
	h := http.Header{}
	BearerSession("tok").Apply(h)
	if got := h.Get("Authorization"); got != "Bearer tok" {
		t.Fatalf("expected bearer header, got %q", got)
	}
}

func TestNilSession_ApplyIsNoop(t *testing.T) {
	var s *Session
	h := http.Header{}
	s.Apply(h)
	if len(h) != 0 {
		t.Fatalf("expected no headers, got %v", h)
	}
	if s.Valid() {
		t.Fatal("nil session must not be valid")
	}
}

func TestStore_BindSnapshotsSession(t *testing.T) {
	st := NewStore(BearerSession("first"))
	ctx := st.Bind(context.Background())

	st.Replace(BearerSession("second"))

	h := http.Header{}
	FromContext(ctx).Apply(h)
	if got := h.Get("Authorization"); got != "Bearer first" {
		t.Fatalf("bound context should keep the first session, got %q", got)
	}
	if st.Current() == nil {
		t.Fatal("expected current session after replace")
	}
}

func TestStore_Clear(t *testing.T) {
	st := NewStore(AppKeySession("k"))
	st.Clear()
	if st.Current() != nil {
		t.Fatal("expected nil session after clear")
	}
	if FromContext(st.Bind(context.Background())) != nil {
		t.Fatal("expected no session in bound context")
	}
}
