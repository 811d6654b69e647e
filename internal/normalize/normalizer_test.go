package normalize

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"secopsmcp/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	ps, err := DefaultProfiles()
	if err != nil {
		t.Fatalf("default profiles: %v", err)
	}
	return New(ps, testLogger())
}

func TestNormalize_GenericSuccess(t *testing.T) {
	n := newNormalizer(t)
	payload := map[string]any{"id": "x"}
	env := n.Normalize("okta_ping", domain.Succeed(payload))

	if env.IsError || env.Message != "okta_ping Succeeded" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Data.(map[string]any)["id"] != "x" {
		t.Fatalf("payload must be passed through, got %v", env.Data)
	}
	if env.Kind != "" {
		t.Fatalf("success must not carry a kind, got %q", env.Kind)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	n := newNormalizer(t)
	payload := map[string]any{"b": 1, "a": []any{"x", map[string]any{"z": true, "y": nil}}}

	first, _ := json.Marshal(n.Normalize("t", domain.Succeed(payload)))
	second, _ := json.Marshal(n.Normalize("t", domain.Succeed(payload)))
	if !bytes.Equal(first, second) {
		t.Fatalf("envelopes differ:\n%s\n%s", first, second)
	}

	fail := domain.Fail(domain.UpstreamHTTPError, "upstream returned HTTP 500", map[string]any{"message": "boom"})
	first, _ = json.Marshal(n.Normalize("t", fail))
	second, _ = json.Marshal(n.Normalize("t", fail))
	if !bytes.Equal(first, second) {
		t.Fatalf("failure envelopes differ:\n%s\n%s", first, second)
	}
}

func TestNormalize_ProfileCountsResources(t *testing.T) {
	n := newNormalizer(t)
	if err := n.Bind("crowd_strike_falcon_list_hosts", "resources"); err != nil {
		t.Fatalf("bind: %v", err)
	}
	env := n.Normalize("crowd_strike_falcon_list_hosts", domain.Succeed(map[string]any{"resources": []any{"id1", "id2"}}))

	if env.IsError {
		t.Fatalf("unexpected error envelope %+v", env)
	}
	if !strings.Contains(env.Message, "Found 2") {
		t.Fatalf("unexpected message %q", env.Message)
	}
	list := env.Data.([]any)
	if len(list) != 2 || list[0] != "id1" || list[1] != "id2" {
		t.Fatalf("unexpected data %v", env.Data)
	}
}

func TestNormalize_ProfileMissingContainer(t *testing.T) {
	n := newNormalizer(t)
	for _, payload := range []any{
		map[string]any{"meta": map[string]any{}},
		map[string]any{"resources": "not a list"},
		[]any{"x"},
	} {
		env := n.Normalize("falcon_fetch_alert_ids", domain.Succeed(payload))
		if !env.IsError {
			t.Fatalf("payload %v: expected error envelope", payload)
		}
		if env.Message != "falcon_fetch_alert_ids Failed: Unexpected response format received." {
			t.Fatalf("unexpected message %q", env.Message)
		}
		if env.Kind != "UpstreamMalformedResponse" {
			t.Fatalf("unexpected kind %q", env.Kind)
		}
	}
}

func TestNormalize_ProjectionKeepsRecordsWithMissingFields(t *testing.T) {
	n := newNormalizer(t)
	payload := map[string]any{"resources": []any{
		map[string]any{
			"description":   "Suspicious process",
			"severity_name": "High",
			"device":        map[string]any{"hostname": "WS-01", "os_version": "Windows 11", "agent_id": "drop-me"},
			"noise":         "drop-me",
		},
		map[string]any{"status": "new"},
		"not an object",
	}}
	env := n.Normalize("falcon_fetch_alert_details", domain.Succeed(payload))
	if env.IsError {
		t.Fatalf("unexpected error %+v", env)
	}
	if env.Message != "falcon_fetch_alert_details Succeeded: Extracted details for 2 alerts" {
		t.Fatalf("unexpected message %q", env.Message)
	}

	rows := env.Data.([]any)
	first := rows[0].(map[string]any)
	if first["device_hostname"] != "WS-01" || first["device_os_version"] != "Windows 11" {
		t.Fatalf("nested fields not projected: %v", first)
	}
	if _, ok := first["noise"]; ok {
		t.Fatal("non-whitelisted field leaked")
	}
	if len(first) != 10 {
		t.Fatalf("expected 10 projected fields, got %d", len(first))
	}

	second := rows[1].(map[string]any)
	if second["status"] != "new" {
		t.Fatalf("unexpected second row %v", second)
	}
	if v, ok := second["device_hostname"]; !ok || v != nil {
		t.Fatalf("missing nested field must be null, got %v (present=%v)", v, ok)
	}
}

func TestNormalize_FailureMessages(t *testing.T) {
	n := newNormalizer(t)
	tests := []struct {
		name string
		err  *domain.Error
		want string
	}{
		{
			name: "auth",
			err: &domain.Error{Kind: domain.AuthenticationExpired, Detail: "x", Raw: map[string]any{
				"error": "AuthenticationError", "status_code": 403,
				"detail": "Invalid or expired token, or insufficient permissions. Please re-authenticate.",
			}},
			want: "t Failed: AuthenticationError: Invalid or expired token, or insufficient permissions. Please re-authenticate.",
		},
		{
			name: "description wins over message",
			err:  &domain.Error{Kind: domain.UpstreamHTTPError, Raw: map[string]any{"message": "m", "error_description": "d"}},
			want: "t Failed: HTTPStatusError: d",
		},
		{
			name: "errors list",
			err:  &domain.Error{Kind: domain.UpstreamHTTPError, Raw: map[string]any{"errors": []any{map[string]any{"code": 400, "message": "bad filter"}}}},
			want: "t Failed: HTTPStatusError: bad filter",
		},
		{
			name: "error code only",
			err:  &domain.Error{Kind: domain.UpstreamHTTPError, Raw: map[string]any{"error": "invalid_client"}},
			want: "t Failed: HTTPStatusError: invalid_client",
		},
		{
			name: "falls back to detail",
			err:  &domain.Error{Kind: domain.InstanceNotFound, Detail: "No active instance found for integration Okta."},
			want: "t Failed: InstanceNotFound: No active instance found for integration Okta.",
		},
		{
			name: "falls back to raw",
			err:  &domain.Error{Kind: domain.UpstreamHTTPError, Raw: []any{"a"}},
			want: "t Failed: HTTPStatusError: [a]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := n.Normalize("t", domain.ActionResult{Err: tt.err})
			if !env.IsError || env.Message != tt.want {
				t.Fatalf("got %q, want %q", env.Message, tt.want)
			}
			if env.Kind != tt.err.Kind.String() {
				t.Fatalf("unexpected kind %q", env.Kind)
			}
		})
	}
}

func TestNormalize_FailureDataWithoutRaw(t *testing.T) {
	env := newNormalizer(t).Normalize("t", domain.Fail(domain.ConfigurationMissing, "SOAR URL is not set", nil))
	data := env.Data.(map[string]any)
	if data["error"] != "ConfigurationMissing" || data["detail"] != "SOAR URL is not set" {
		t.Fatalf("unexpected data %v", data)
	}
}

func TestNormalize_UnserialisablePayload(t *testing.T) {
	env := newNormalizer(t).Normalize("t", domain.Succeed(map[string]any{"ch": make(chan int)}))
	if !env.IsError || env.Kind != "Unexpected" {
		t.Fatalf("expected Unexpected envelope, got %+v", env)
	}
}

func TestNormalize_RecoversFromPanic(t *testing.T) {
	n := newNormalizer(t)
	n.extractors = []Extractor{{Name: "boom", Extract: func(any) (string, bool) { panic("boom") }}}

	env := n.Normalize("t", domain.Fail(domain.UpstreamHTTPError, "x", map[string]any{}))
	if !env.IsError || env.Kind != "Unexpected" {
		t.Fatalf("expected Unexpected envelope, got %+v", env)
	}
}

func TestDefaultExtractorsOrder(t *testing.T) {
	var names []string
	for _, e := range DefaultExtractors() {
		names = append(names, e.Name)
	}
	if got := strings.Join(names, ","); got != "description,detail,message,errors,error" {
		t.Fatalf("unexpected order %s", got)
	}
}

func TestParseProfiles_RejectsDeepPaths(t *testing.T) {
	_, err := ParseProfiles([]byte("profiles:\n  - name: x\n    fields:\n      - {name: a, path: b.c.d}\n"))
	if err == nil {
		t.Fatal("expected error for three-segment path")
	}
}

func TestLoadProfileDir_OverridesBuiltins(t *testing.T) {
	dir := t.TempDir()
	doc := "profiles:\n  - name: resources\n    container: items\n    message: \"{count} items\"\n"
	if err := os.WriteFile(filepath.Join(dir, "custom.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644)

	extra, err := LoadProfileDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	builtin, _ := DefaultProfiles()
	n := New(append(builtin, extra...), testLogger())
	if err := n.Bind("x", "resources"); err != nil {
		t.Fatal(err)
	}
	env := n.Normalize("x", domain.Succeed(map[string]any{"items": []any{1}}))
	if env.Message != "x Succeeded: 1 items" {
		t.Fatalf("override not applied: %q", env.Message)
	}
}

func TestLoadProfileDir_OverridesToolBoundBuiltin(t *testing.T) {
	dir := t.TempDir()
	doc := "profiles:\n  - name: alert_ids\n    container: items\n"
	if err := os.WriteFile(filepath.Join(dir, "alerts.yaml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	extra, err := LoadProfileDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	builtin, _ := DefaultProfiles()
	n := New(append(builtin, extra...), testLogger())

	env := n.Normalize("falcon_fetch_alert_ids", domain.Succeed(map[string]any{"items": []any{"a"}}))
	if env.IsError {
		t.Fatalf("override not reached through the built-in tool binding: %+v", env)
	}
	data, ok := env.Data.([]any)
	if !ok || len(data) != 1 || data[0] != "a" {
		t.Fatalf("unexpected data %v", env.Data)
	}
}

func TestBind_UnknownProfile(t *testing.T) {
	if err := newNormalizer(t).Bind("x", "nope"); err == nil {
		t.Fatal("expected error")
	}
}
