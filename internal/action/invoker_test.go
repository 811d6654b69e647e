package action

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"secopsmcp/internal/auth"
	"secopsmcp/internal/domain"
	"secopsmcp/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleRequest(scope domain.ScopeSpecifier) domain.ActionRequest {
	return domain.ActionRequest{
		CaseID:        "1234",
		AlertGroupIDs: []string{"grp-1"},
		Instance:      domain.IntegrationInstance{Identifier: "inst-9", ProductName: "VirusTotalV3", IsActive: true},
		Scope:         scope,
		ActionName:    "VirusTotalV3_Add Comment To Entity",
		Parameters:    map[string]any{"Comment": "seen before"},
	}
}

func decode(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func TestBuildEnvelope_NamedScope(t *testing.T) {
	env, err := BuildEnvelope(sampleRequest(domain.NamedScope("All entities")))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	m := decode(t, env)

	if m["scope"] != "All entities" || m["isPredefinedScope"] != true {
		t.Fatalf("unexpected scope fields: %v / %v", m["scope"], m["isPredefinedScope"])
	}
	if ents, ok := m["targetEntities"].([]any); !ok || len(ents) != 0 {
		t.Fatalf("targetEntities must be an empty list, got %#v", m["targetEntities"])
	}
	if m["caseId"] != float64(1234) {
		t.Fatalf("caseId must be numeric, got %#v", m["caseId"])
	}
	if m["actionProvider"] != DefaultProvider {
		t.Fatalf("unexpected provider %v", m["actionProvider"])
	}

	props := m["properties"].(map[string]any)
	if props["ScriptName"] != m["actionName"] {
		t.Fatalf("ScriptName %v must equal actionName %v", props["ScriptName"], m["actionName"])
	}
	if props["IntegrationInstance"] != "inst-9" {
		t.Fatalf("unexpected instance %v", props["IntegrationInstance"])
	}
	blob, ok := props["ScriptParametersEntityFields"].(string)
	if !ok {
		t.Fatalf("parameters must be a JSON string, got %T", props["ScriptParametersEntityFields"])
	}
	var params map[string]any
	if err := json.Unmarshal([]byte(blob), &params); err != nil {
		t.Fatalf("parameter blob is not JSON: %v", err)
	}
	if params["Comment"] != "seen before" {
		t.Fatalf("unexpected params %v", params)
	}
}

func TestBuildEnvelope_ExplicitEntities(t *testing.T) {
	scope := domain.ExplicitEntities([]domain.TargetEntity{{Identifier: "8.8.8.8", EntityType: domain.EntityAddress}})
	m := decode(t, mustBuild(t, sampleRequest(scope)))

	if m["scope"] != nil {
		t.Fatalf("scope must be null for explicit entities, got %v", m["scope"])
	}
	if m["isPredefinedScope"] != false {
		t.Fatal("explicit entities are not a predefined scope")
	}
	ents := m["targetEntities"].([]any)
	first := ents[0].(map[string]any)
	if first["Identifier"] != "8.8.8.8" || first["EntityType"] != "ADDRESS" {
		t.Fatalf("unexpected entity %v", first)
	}
}

func TestBuildEnvelope_NonNumericCaseAndDefaults(t *testing.T) {
	req := sampleRequest(domain.NamedScope("All entities"))
	req.CaseID = "case-abc"
	req.AlertGroupIDs = nil
	req.Parameters = nil
	req.ActionProvider = "Custom"

	m := decode(t, mustBuild(t, req))
	if m["caseId"] != "case-abc" {
		t.Fatalf("unexpected caseId %#v", m["caseId"])
	}
	if groups, ok := m["alertGroupIdentifiers"].([]any); !ok || len(groups) != 0 {
		t.Fatalf("alertGroupIdentifiers must be an empty list, got %#v", m["alertGroupIdentifiers"])
	}
	if m["actionProvider"] != "Custom" {
		t.Fatalf("unexpected provider %v", m["actionProvider"])
	}
	if m["properties"].(map[string]any)["ScriptParametersEntityFields"] != "{}" {
		t.Fatal("empty parameters must encode as {}")
	}
}

func mustBuild(t *testing.T, req domain.ActionRequest) Envelope {
	t.Helper()
	env, err := BuildEnvelope(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return env
}

func TestInvoke_PostsEnvelopeWithSession(t *testing.T) {
	var got map[string]any
	var appKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != ExecutePath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		appKey = r.Header.Get("AppKey")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		io.WriteString(w, `{"resources":["id1","id2"]}`)
	}))
	defer srv.Close()

	inv := NewInvoker(transport.New(transport.Options{BaseURL: srv.URL, Logger: testLogger()}), testLogger())
	ctx := auth.WithSession(context.Background(), auth.AppKeySession("k-1"))
	res := inv.Invoke(ctx, sampleRequest(domain.NamedScope("All entities")))

	if !res.OK() {
		t.Fatalf("unexpected failure: %v", res.Err)
	}
	if appKey != "k-1" {
		t.Fatalf("AppKey header not applied, got %q", appKey)
	}
	if got["actionName"] != "VirusTotalV3_Add Comment To Entity" {
		t.Fatalf("unexpected body %v", got)
	}
}

func TestInvoke_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	inv := NewInvoker(transport.New(transport.Options{BaseURL: srv.URL, Logger: testLogger()}), testLogger())
	res := inv.Invoke(context.Background(), sampleRequest(domain.NamedScope("All entities")))
	if !res.OK() {
		t.Fatalf("204 must succeed, got %v", res.Err)
	}
	if res.Payload.(map[string]any)["status"] != "success" {
		t.Fatalf("unexpected payload %v", res.Payload)
	}
}

func TestInvoke_NotConfigured(t *testing.T) {
	inv := NewInvoker(transport.New(transport.Options{Logger: testLogger()}), testLogger())
	res := inv.Invoke(context.Background(), sampleRequest(domain.NamedScope("All entities")))
	if res.OK() || res.Err.Kind != domain.ConfigurationMissing {
		t.Fatalf("expected ConfigurationMissing, got %+v", res)
	}
}
