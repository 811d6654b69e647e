package tool

import (
	"context"
	"log/slog"

	"secopsmcp/internal/action"
	"secopsmcp/internal/auth"
	"secopsmcp/internal/domain"
	"secopsmcp/internal/instance"
	"secopsmcp/internal/normalize"
	"secopsmcp/internal/scope"
	"secopsmcp/internal/transport"
)

// SOAR bundles the collaborators shared by every tool that talks to the SOAR
// backend. It is built once at startup and read-only afterwards.
type SOAR struct {
	Client       *transport.Client
	Sessions     *auth.Store
	Scopes       *scope.Resolver
	Locator      *instance.Locator
	Invoker      *action.Invoker
	Normalizer   *normalize.Normalizer
	DefaultScope string
	Logger       *slog.Logger
}

// NewSOAR wires the locator and invoker onto client.
func NewSOAR(client *transport.Client, sessions *auth.Store, scopes *scope.Resolver, n *normalize.Normalizer, logger *slog.Logger) *SOAR {
	return &SOAR{
		Client:       client,
		Sessions:     sessions,
		Scopes:       scopes,
		Locator:      instance.NewLocator(client, logger),
		Invoker:      action.NewInvoker(client, logger),
		Normalizer:   n,
		DefaultScope: scope.DefaultScope,
		Logger:       logger,
	}
}

// begin snapshots the session into ctx and fails fast when the process was
// started without SOAR configuration.
func (s *SOAR) begin(ctx context.Context) (context.Context, error) {
	ctx = s.Sessions.Bind(ctx)
	if !s.Client.Configured() || !auth.FromContext(ctx).Valid() {
		return ctx, domain.Errorf(domain.ConfigurationMissing,
			"SOAR configuration (SOAR_URL, SOAR_APP_KEY) is not set.")
	}
	return ctx, nil
}

// fail normalizes err for tool.
func (s *SOAR) fail(tool string, err error) domain.Envelope {
	return s.Normalizer.Normalize(tool, domain.FailWith(err))
}
