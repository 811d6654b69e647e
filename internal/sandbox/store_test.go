package sandbox

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigratesFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sandbox.db")
	s, err := Open(path, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	version, err := GetSchemaVersion(s.db)
	if err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, version)
	}
	s.Close()

	// Reopening must not re-apply migrations.
	s, err = Open(path, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if err := RunMigrations(s.db, testLogger()); err != nil {
		t.Fatalf("idempotent migration failed: %v", err)
	}
}

func TestInstances_InsertionOrderAndCase(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.AddInstance(ctx, Instance{Identifier: "b", Integration: "Okta", IsActive: false})
	s.AddInstance(ctx, Instance{Identifier: "a", Integration: "Okta", IsActive: true})
	s.AddInstance(ctx, Instance{Identifier: "c", Integration: "Slack", IsActive: true})

	got, err := s.Instances(ctx, "okta")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Identifier != "b" || got[1].Identifier != "a" {
		t.Fatalf("unexpected instances %+v", got)
	}
	if got[0].IsActive || !got[1].IsActive {
		t.Fatalf("active flags lost: %+v", got)
	}
	if got[0].Environment != "Default Environment" {
		t.Fatalf("expected default environment, got %q", got[0].Environment)
	}
}

func TestCases_CommentsAndPriority(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	c, err := s.AddCase(ctx, "Phishing", "")
	if err != nil {
		t.Fatal(err)
	}
	if c.Priority != "PriorityMedium" {
		t.Fatalf("expected default priority, got %q", c.Priority)
	}
	if _, err := s.AddComment(ctx, c.ID, "first"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPriority(ctx, c.ID, "PriorityCritical"); err != nil {
		t.Fatal(err)
	}

	got, _ := s.Case(ctx, c.ID)
	if got.Priority != "PriorityCritical" {
		t.Fatalf("priority not updated: %+v", got)
	}
	comments, _ := s.Comments(ctx, c.ID)
	if len(comments) != 1 || comments[0].Comment != "first" {
		t.Fatalf("unexpected comments %+v", comments)
	}

	if _, err := s.Case(ctx, 999); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.AddComment(ctx, 999, "x"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for comment on unknown case, got %v", err)
	}
}

func TestTokens(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	tok, err := s.IssueToken(ctx, "client", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.TokenValid(ctx, tok); !ok {
		t.Fatal("fresh token should be valid")
	}
	if ok, _ := s.TokenValid(ctx, "unknown"); ok {
		t.Fatal("unknown token should be invalid")
	}

	expired, _ := s.IssueToken(ctx, "client", -time.Minute)
	if ok, _ := s.TokenValid(ctx, expired); ok {
		t.Fatal("expired token should be invalid")
	}

	s.ExpireTokens(ctx)
	if ok, _ := s.TokenValid(ctx, tok); ok {
		t.Fatal("token should be gone after ExpireTokens")
	}
}

func TestSeed_FalconAlerts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	if err := s.Seed(ctx, []string{"Okta"}); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	ids, err := s.FalconAlertIDs(ctx, "WS-0042")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 new alerts for WS-0042 in either case, got %v", ids)
	}

	docs, err := s.FalconAlerts(ctx, append(ids, "missing"))
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0]["composite_id"] != ids[0] {
		t.Fatalf("unexpected docs %v", docs)
	}

	scopes, _ := s.Scopes(ctx)
	if len(scopes) != len(DefaultScopes) {
		t.Fatalf("expected %d scopes, got %d", len(DefaultScopes), len(scopes))
	}
	insts, _ := s.Instances(ctx, "Okta")
	if len(insts) != 1 || !insts[0].IsActive {
		t.Fatalf("expected one active Okta instance, got %+v", insts)
	}
}
