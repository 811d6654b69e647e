package tool

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"secopsmcp/internal/auth"
	"secopsmcp/internal/domain"
	"secopsmcp/internal/normalize"
	"secopsmcp/internal/oauth"
	"secopsmcp/internal/transport"
)

// Falcon alert endpoints.
const (
	AlertQueryPath    = "/alerts/queries/alerts/v2"
	AlertEntitiesPath = "/alerts/entities/alerts/v2"
)

// Falcon bundles the OAuth2-fronted endpoint tools. The bearer session lives
// in Sessions and is only replaced by falcon_authenticate.
type Falcon struct {
	Client     *transport.Client
	Sessions   *auth.Store
	Auth       *oauth.Authenticator
	Normalizer *normalize.Normalizer
	Logger     *slog.Logger
}

// AlertFilter builds the FQL filter for new endpoint alerts on hostname,
// matching both upper- and lower-case spellings.
func AlertFilter(hostname string) string {
	return fmt.Sprintf(`status:"new"+product:"epp"+(device.hostname:*"*%s*",device.hostname:*"*%s*")`,
		strings.ToUpper(hostname), strings.ToLower(hostname))
}

type falconTool struct {
	f           *Falcon
	name        string
	description string
	schema      map[string]any
	run         func(ctx context.Context, args map[string]any) domain.ActionResult
}

func (t *falconTool) Name() string               { return t.name }
func (t *falconTool) Description() string        { return t.description }
func (t *falconTool) Parameters() map[string]any { return t.schema }
func (t *falconTool) Kind() string               { return KindFalcon }

// Execute requires a prior falcon_authenticate in this process. A 401/403
// later surfaces as AuthenticationExpired; no silent re-authentication.
func (t *falconTool) Execute(ctx context.Context, args map[string]any) domain.Envelope {
	if !t.f.Client.Configured() {
		return t.f.Normalizer.Normalize(t.name, domain.Fail(domain.ConfigurationMissing, "API Base URL not configured.", nil))
	}
	ctx = t.f.Sessions.Bind(ctx)
	if !auth.FromContext(ctx).Valid() {
		return t.f.Normalizer.Normalize(t.name, domain.Fail(domain.AuthenticationExpired,
			"Authentication required. Please run 'falcon_authenticate' first.", nil))
	}
	return t.f.Normalizer.Normalize(t.name, t.run(ctx, args))
}

type authenticateTool struct{ f *Falcon }

func (t *authenticateTool) Name() string { return "falcon_authenticate" }
func (t *authenticateTool) Kind() string { return KindFalcon }
func (t *authenticateTool) Description() string {
	return "Authenticate against the Falcon API with the configured client id and secret. Run before the other falcon tools and again after an AuthenticationError."
}
func (t *authenticateTool) Parameters() map[string]any { return ToolParameters(map[string]Param{}, nil) }

func (t *authenticateTool) Execute(ctx context.Context, _ map[string]any) domain.Envelope {
	s, err := t.f.Auth.Authenticate(ctx)
	if err != nil {
		t.f.Sessions.Clear()
		return t.f.Normalizer.Normalize(t.Name(), domain.FailWith(err))
	}
	t.f.Sessions.Replace(s)
	return t.f.Normalizer.Normalize(t.Name(), domain.Succeed(map[string]any{
		"status": "success",
		"detail": "Token received and stored for use by other tools.",
	}))
}

// FalconTools returns the direct Falcon alert tools.
func FalconTools(f *Falcon) []domain.Tool {
	c := f.Client
	return []domain.Tool{
		&authenticateTool{f: f},
		&falconTool{
			f: f, name: "falcon_fetch_alert_ids",
			description: "Fetch the composite IDs of the latest new endpoint detection alerts for a hostname.",
			schema: ToolParameters(map[string]Param{
				"hostname": {Type: "string", Description: "The hostname to filter alerts for."},
			}, []string{"hostname"}),
			run: func(ctx context.Context, args map[string]any) domain.ActionResult {
				host, err := RequireString(args, "hostname")
				if err != nil {
					return domain.FailWith(err)
				}
				return c.Get(ctx, AlertQueryPath, url.Values{
					"include_hidden": {"true"},
					"filter":         {AlertFilter(host)},
				})
			},
		},
		&falconTool{
			f: f, name: "falcon_fetch_alert_details",
			description: "Fetch the details of alerts by composite ID, typically from falcon_fetch_alert_ids.",
			schema: ToolParameters(map[string]Param{
				"composite_ids": {Type: "array", Description: "Alert composite IDs.", Items: map[string]any{"type": "string"}},
			}, []string{"composite_ids"}),
			run: func(ctx context.Context, args map[string]any) domain.ActionResult {
				ids, err := ArgsStringSlice(args, "composite_ids")
				if err != nil {
					return domain.FailWith(err)
				}
				if len(ids) == 0 {
					return domain.FailWith(argError("Input 'composite_ids' must be a non-empty list of strings."))
				}
				return c.Do(ctx, transport.Request{
					Method: http.MethodPost,
					Path:   AlertEntitiesPath,
					Query:  url.Values{"include_hidden": {"true"}},
					JSON:   map[string]any{"composite_ids": ids},
				})
			},
		},
	}
}
