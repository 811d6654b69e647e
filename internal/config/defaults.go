package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		SOAR: SOARConfig{
			DefaultScope: "All entities",
		},
		Transport: TransportConfig{
			TimeoutSeconds: 60,
			MaxRetries:     2,
			KeepAlive:      false,
		},
		Security: SecurityConfig{
			DefaultPolicy:   "allow",
			Blacklist:       nil,
			Whitelist:       defaultWhitelist(),
			ConfirmPatterns: defaultConfirmPatterns(),
		},
		Server: ServerConfig{
			Transport: "stdio",
			Addr:      "127.0.0.1:8808",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
		Sandbox: SandboxConfig{
			DBPath:       "~/.secopsmcp/sandbox.db",
			Addr:         "127.0.0.1:8809",
			AppKey:       "sandbox-app-key",
			ClientID:     "sandbox-client",
			ClientSecret: "sandbox-secret",
		},
	}
}

// Read-only tools never need confirmation.
func defaultWhitelist() []string {
	return []string{
		`^(list|get|search)_`,
		`_(get|list|search|enrich)_`,
		`_ping$`,
		`^falcon_(authenticate|fetch_)`,
	}
}

// Containment and account actions change state outside the SOAR platform.
func defaultConfirmPatterns() []string {
	return []string{
		"isolate", "quarantine", "disable_user", "suspend_user",
		"delete", "block_", "contain", "reset_password",
	}
}
