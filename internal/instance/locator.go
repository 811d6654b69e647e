// Package instance finds the active backend instance for an integration.
package instance

import (
	"context"
	"log/slog"
	"net/url"

	"secopsmcp/internal/domain"
	"secopsmcp/internal/transport"
)

// Locator resolves a product name to one active instance. Lookups are never
// cached since instances may be reconfigured between calls.
type Locator struct {
	client *transport.Client
	logger *slog.Logger
}

func NewLocator(client *transport.Client, logger *slog.Logger) *Locator {
	return &Locator{client: client, logger: logger}
}

// Path returns the listing path for product.
func Path(product string) string {
	return "/api/1p/external/v1/integrations/" + url.PathEscape(product) + "/integrationInstances"
}

// Locate issues one listing call and returns the first active instance in the
// order the backend returned them.
func (l *Locator) Locate(ctx context.Context, product string) (domain.IntegrationInstance, error) {
	res := l.client.Get(ctx, Path(product), url.Values{"$select": {"identifier"}})
	if !res.OK() {
		return domain.IntegrationInstance{}, res.Err
	}
	inst, err := pick(product, res.Payload)
	if err != nil {
		l.logger.Debug("instance lookup failed", "product", product, "kind", domain.KindOf(err))
		return domain.IntegrationInstance{}, err
	}
	l.logger.Debug("instance located", "product", product, "instance", inst.Identifier)
	return inst, nil
}

func pick(product string, payload any) (domain.IntegrationInstance, error) {
	body, ok := payload.(map[string]any)
	if !ok {
		return domain.IntegrationInstance{}, malformed(payload)
	}
	raw, present := body["integration_instances"]
	if !present || raw == nil {
		return domain.IntegrationInstance{}, notFound(product)
	}
	list, ok := raw.([]any)
	if !ok {
		return domain.IntegrationInstance{}, malformed(payload)
	}

	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if !active(entry) {
			continue
		}
		id, _ := entry["identifier"].(string)
		if id == "" {
			return domain.IntegrationInstance{}, &domain.Error{
				Kind:   domain.InstanceMisconfigured,
				Detail: "Instance found but identifier is missing.",
				Raw:    entry,
			}
		}
		return domain.IntegrationInstance{Identifier: id, ProductName: product, IsActive: true}, nil
	}
	return domain.IntegrationInstance{}, notFound(product)
}

// active treats a missing isActive field as active; listings filtered with
// $select omit it.
func active(entry map[string]any) bool {
	v, ok := entry["isActive"]
	if !ok || v == nil {
		return true
	}
	b, ok := v.(bool)
	return !ok || b
}

func notFound(product string) error {
	return domain.Errorf(domain.InstanceNotFound, "No active instance found for integration %s.", product)
}

func malformed(payload any) error {
	return &domain.Error{
		Kind:   domain.UpstreamMalformedResponse,
		Detail: "Unexpected instance listing format received.",
		Raw:    payload,
	}
}
