package catalog

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"CrowdStrikeFalcon", "crowd_strike_falcon"},
		{"Add Comment to Detection", "add_comment_to_detection"},
		{"URLs", "ur_ls"},
		{"User IDs Or Logins", "user_i_ds_or_logins"},
		{"VirusTotalV3", "virus_total_v3"},
		{"IPAddress", "ip_address"},
		{"MicrosoftDefenderATP", "microsoft_defender_atp"},
		{"Get Host (Legacy)", "get_host_legacy"},
		{"Source -> Target", "source_to_target"},
		{"3rd Party", "_3rd_party"},
		{"Max Hosts To Return?", "max_hosts_to_return"},
		{"", "_unnamed_parameter"},
		{"()", "_unnamed_parameter"},
	}
	for _, tt := range tests {
		if got := ToSnakeCase(tt.in); got != tt.want {
			t.Errorf("ToSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestToolAndScriptName(t *testing.T) {
	if got := ToolName("CrowdStrikeFalcon", "Add Comment to Detection"); got != "crowd_strike_falcon_add_comment_to_detection" {
		t.Errorf("unexpected tool name %s", got)
	}
	if got := ScriptName("Okta", "Disable User"); got != "Okta_Disable User" {
		t.Errorf("unexpected script name %s", got)
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("Crowd Strike/Falcon"); got != "crowdstrikefalcon" {
		t.Errorf("unexpected %s", got)
	}
}

func TestBuiltin(t *testing.T) {
	all, err := Builtin()
	if err != nil {
		t.Fatalf("builtin: %v", err)
	}
	if len(all) < 5 {
		t.Fatalf("expected several integrations, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Name > all[i].Name {
			t.Fatalf("catalog not sorted: %s before %s", all[i-1].Name, all[i].Name)
		}
	}

	var found bool
	for _, in := range all {
		for _, a := range in.Actions {
			if ToolName(in.Name, a.Name) == "crowd_strike_falcon_add_comment_to_detection" {
				found = true
				if len(a.Parameters) != 2 || !a.Parameters[0].Required {
					t.Fatalf("unexpected parameters %+v", a.Parameters)
				}
			}
		}
	}
	if !found {
		t.Fatal("expected CrowdStrikeFalcon Add Comment to Detection in the catalog")
	}
}

func TestParse_Validation(t *testing.T) {
	if _, err := Parse([]byte("actions: []")); err == nil {
		t.Error("expected error for missing integration name")
	}
	dup := "integration: X\nactions:\n  - name: Ping\n  - name: ping\n"
	if _, err := Parse([]byte(dup)); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate error, got %v", err)
	}
	bad := "integration: X\nactions:\n  - name: Ping\n    parameters:\n      - {name: A, type: blob}\n"
	if _, err := Parse([]byte(bad)); err == nil {
		t.Error("expected unknown type error")
	}
	in, err := Parse([]byte("integration: X\nactions:\n  - name: Ping\n    parameters:\n      - {name: Host Name}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p := in.Actions[0].Parameters[0]; p.Type != TypeString || p.Key() != "host_name" {
		t.Errorf("unexpected parameter %+v key=%s", p, p.Key())
	}
}

func TestFilter(t *testing.T) {
	all := []Integration{{Name: "CrowdStrikeFalcon"}, {Name: "Okta"}, {Name: "VirusTotalV3"}}

	got, unknown := Filter(all, ParseSelection(" okta , Crowd Strike Falcon,Nope,"))
	if len(got) != 2 || got[0].Name != "CrowdStrikeFalcon" || got[1].Name != "Okta" {
		t.Fatalf("unexpected selection %+v", got)
	}
	if len(unknown) != 1 || unknown[0] != "Nope" {
		t.Fatalf("unexpected unknown %v", unknown)
	}

	if got, _ := Filter(all, nil); len(got) != 0 {
		t.Fatalf("empty selection must select nothing, got %+v", got)
	}
}

func TestLoadFromDirectoryAndMerge(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "okta.yaml"), []byte("integration: Okta\nactions:\n  - name: Custom Ping\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("integration: [\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644)

	extra, err := LoadFromDirectory(dir, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(extra) != 1 {
		t.Fatalf("expected 1 loaded integration, got %d", len(extra))
	}

	base := []Integration{{Name: "CSV"}, {Name: "Okta", Actions: []Action{{Name: "Ping"}}}}
	merged := Merge(base, append(extra, Integration{Name: "Zeta"}))
	if len(merged) != 3 {
		t.Fatalf("unexpected merged catalog %+v", merged)
	}
	if merged[1].Name != "Okta" || merged[1].Actions[0].Name != "Custom Ping" {
		t.Fatalf("override not applied: %+v", merged[1])
	}

	missing, err := LoadFromDirectory(filepath.Join(dir, "absent"), testLogger())
	if err != nil || missing != nil {
		t.Fatalf("missing dir must be skipped, got %v %v", missing, err)
	}
}

func TestParse_RejectsClashingParameters(t *testing.T) {
	doc := "integration: X\nactions:\n  - name: Ping\n    parameters:\n      - {name: Scope}\n"
	if _, err := Parse([]byte(doc)); err == nil {
		t.Error("expected clash with reserved argument")
	}
	doc = "integration: X\nactions:\n  - name: Ping\n    parameters:\n      - {name: Host Name}\n      - {name: HostName}\n"
	if _, err := Parse([]byte(doc)); err == nil {
		t.Error("expected clash between parameters")
	}
}
