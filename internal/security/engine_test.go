package security

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"strings"
	"testing"

	"secopsmcp/internal/config"
	"secopsmcp/internal/domain"
	"secopsmcp/internal/normalize"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func defaultTestCfg() config.SecurityConfig {
	return config.SecurityConfig{
		DefaultPolicy:   "allow",
		Blacklist:       []string{"siemplify_"},
		Whitelist:       []string{`^(list|get)_`, "_ping"},
		ConfirmPatterns: []string{"disable_user", "isolate"},
	}
}

func mustEngine(t *testing.T, cfg config.SecurityConfig) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, normalize.New(nil, testLogger()), testLogger())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// recordingTool remembers the arguments of its last call.
type recordingTool struct {
	name string
	args map[string]any
}

func (r *recordingTool) Name() string        { return r.name }
func (r *recordingTool) Description() string { return "does things." }
func (r *recordingTool) Kind() string        { return "action" }
func (r *recordingTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"user": map[string]any{"type": "string"}},
		"required":   []string{"user"},
	}
}
func (r *recordingTool) Execute(ctx context.Context, args map[string]any) domain.Envelope {
	r.args = args
	return domain.Envelope{Message: r.name + " Succeeded", Data: args}
}

// --- Check ---

func TestCheck_BlacklistBlocks(t *testing.T) {
	e := mustEngine(t, defaultTestCfg())
	if got := e.Check("siemplify_ping"); got != domain.ActionBlock {
		t.Fatalf("blacklist should beat whitelist, got %v", got)
	}
}

func TestCheck_WhitelistAllows(t *testing.T) {
	e := mustEngine(t, defaultTestCfg())
	if got := e.Check("list_cases"); got != domain.ActionAllow {
		t.Fatalf("expected allow, got %v", got)
	}
}

func TestCheck_ConfirmPatternIsCaseInsensitive(t *testing.T) {
	e := mustEngine(t, defaultTestCfg())
	if got := e.Check("Okta_Disable_User"); got != domain.ActionConfirm {
		t.Fatalf("expected confirm, got %v", got)
	}
}

func TestCheck_DefaultPolicies(t *testing.T) {
	for policy, want := range map[string]domain.SecurityAction{
		"allow":   domain.ActionAllow,
		"deny":    domain.ActionBlock,
		"confirm": domain.ActionConfirm,
	} {
		cfg := defaultTestCfg()
		cfg.DefaultPolicy = policy
		e := mustEngine(t, cfg)
		if got := e.Check("slack_send_message"); got != want {
			t.Errorf("policy %s: expected %v, got %v", policy, want, got)
		}
	}
}

func TestNewEngine_InvalidPattern(t *testing.T) {
	cfg := defaultTestCfg()
	cfg.Whitelist = []string{"(unclosed"}
	if _, err := NewEngine(cfg, normalize.New(nil, testLogger()), testLogger()); err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

// --- Gate ---

func TestGate(t *testing.T) {
	e := mustEngine(t, defaultTestCfg())

	if e.Gate(&recordingTool{name: "siemplify_ping"}) != nil {
		t.Fatal("blocked tool should be dropped")
	}
	plain := &recordingTool{name: "list_cases"}
	if e.Gate(plain) != plain {
		t.Fatal("allowed tool should be returned unchanged")
	}
}

func TestGuarded_RequiresConfirm(t *testing.T) {
	e := mustEngine(t, defaultTestCfg())
	inner := &recordingTool{name: "okta_disable_user"}
	g := e.Gate(inner)

	schema := g.Parameters()
	if !slices.Contains(schema["required"].([]string), ConfirmArg) {
		t.Fatalf("confirm should be required: %v", schema["required"])
	}
	if _, ok := schema["properties"].(map[string]any)[ConfirmArg]; !ok {
		t.Fatal("confirm property missing")
	}
	if _, ok := inner.Parameters()["properties"].(map[string]any)[ConfirmArg]; ok {
		t.Fatal("inner schema must not be modified")
	}

	env := g.Execute(context.Background(), map[string]any{"user": "bob"})
	if !env.IsError || !strings.Contains(env.Message, "confirm=true") {
		t.Fatalf("expected refusal, got %+v", env)
	}
	if inner.args != nil {
		t.Fatal("inner tool must not run without confirmation")
	}

	env = g.Execute(context.Background(), map[string]any{"user": "bob", ConfirmArg: true})
	if env.IsError {
		t.Fatalf("confirmed call failed: %+v", env)
	}
	if _, leaked := inner.args[ConfirmArg]; leaked || inner.args["user"] != "bob" {
		t.Fatalf("unexpected inner args %v", inner.args)
	}
	if g.(interface{ Kind() string }).Kind() != "action" {
		t.Fatal("kind should pass through")
	}
}
