package sandbox

import (
	"context"
	"fmt"
)

// DefaultScopes mirrors the predefined scopes of a stock SOAR installation.
var DefaultScopes = []string{
	"All entities",
	"All hostnames",
	"All IP addresses",
	"All Users",
	"All URLs",
	"All file hashes",
	"Suspicious entities",
	"Internal entities",
	"External entities",
}

// Seed loads demo data: the default scopes, one active instance for each of
// integrations, a case with two alerts, and endpoint alerts for host WS-0042.
// It is meant for a fresh database.
func (s *Store) Seed(ctx context.Context, integrations []string) error {
	for _, sc := range DefaultScopes {
		if err := s.AddScope(ctx, sc); err != nil {
			return fmt.Errorf("seed scope %q: %w", sc, err)
		}
	}

	for _, name := range integrations {
		if _, err := s.AddInstance(ctx, Instance{Integration: name, IsActive: true}); err != nil {
			return fmt.Errorf("seed instance for %s: %w", name, err)
		}
	}

	c, err := s.AddCase(ctx, "Suspicious PowerShell on WS-0042", "PriorityHigh")
	if err != nil {
		return fmt.Errorf("seed case: %w", err)
	}
	for _, a := range [][2]string{
		{"8f7e2b1c-0042-4a10-9d5e-powershell", "SUSPICIOUS_POWERSHELL"},
		{"8f7e2b1c-0042-4a10-9d5e-credential", "CREDENTIAL_DUMPING"},
	} {
		if _, err := s.AddAlert(ctx, c.ID, a[0], a[1]); err != nil {
			return fmt.Errorf("seed alert: %w", err)
		}
	}
	if _, err := s.AddComment(ctx, c.ID, "Case opened from endpoint detection."); err != nil {
		return fmt.Errorf("seed comment: %w", err)
	}

	alerts := []map[string]any{
		{
			"description":   "A process attempted to dump credentials from LSASS memory.",
			"severity_name": "Critical",
			"tactic":        "Credential Access",
			"tactic_id":     "TA0006",
			"technique":     "OS Credential Dumping",
			"technique_id":  "T1003",
			"user_name":     "jdoe",
			"device":        map[string]any{"hostname": "WS-0042", "os_version": "Windows 11"},
		},
		{
			"description":   "Encoded PowerShell command line.",
			"severity_name": "High",
			"tactic":        "Execution",
			"tactic_id":     "TA0002",
			"technique":     "PowerShell",
			"technique_id":  "T1059.001",
			"user_name":     "jdoe",
			"device":        map[string]any{"hostname": "ws-0042", "os_version": "Windows 11"},
		},
		{
			"description":   "Known malware blocked.",
			"severity_name": "Medium",
			"status":        "closed",
			"tactic":        "Execution",
			"tactic_id":     "TA0002",
			"technique":     "User Execution",
			"technique_id":  "T1204",
			"user_name":     "asmith",
			"device":        map[string]any{"hostname": "SRV-DB01", "os_version": "Windows Server 2022"},
		},
	}
	for i, doc := range alerts {
		id := fmt.Sprintf("cid:ind:%032x:%d", i+1, 1000+i)
		if err := s.AddFalconAlert(ctx, id, doc); err != nil {
			return fmt.Errorf("seed falcon alert: %w", err)
		}
	}

	s.logger.Info("sandbox seeded", "integrations", len(integrations), "case", c.ID)
	return nil
}
