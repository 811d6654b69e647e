// Package action builds and sends manual action executions.
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"secopsmcp/internal/domain"
	"secopsmcp/internal/transport"
)

// ExecutePath is the generic action execution endpoint.
const ExecutePath = "/api/external/v1/cases/ExecuteManualAction"

// DefaultProvider is the action provider used by integration scripts.
const DefaultProvider = "Scripts"

// Properties is the instance and script section of an execution envelope.
type Properties struct {
	IntegrationInstance          string `json:"IntegrationInstance"`
	ScriptName                   string `json:"ScriptName"`
	ScriptParametersEntityFields string `json:"ScriptParametersEntityFields"`
}

// Envelope is the JSON body accepted by the execution endpoint.
type Envelope struct {
	AlertGroupIdentifiers []string              `json:"alertGroupIdentifiers"`
	CaseID                any                   `json:"caseId"`
	TargetEntities        []domain.TargetEntity `json:"targetEntities"`
	Scope                 *string               `json:"scope"`
	IsPredefinedScope     bool                  `json:"isPredefinedScope"`
	ActionProvider        string                `json:"actionProvider"`
	ActionName            string                `json:"actionName"`
	Properties            Properties            `json:"properties"`
}

// BuildEnvelope serialises req into the execution body. Parameters are JSON
// encoded into a string nested inside the outer JSON document.
func BuildEnvelope(req domain.ActionRequest) (Envelope, error) {
	params := req.Parameters
	if params == nil {
		params = map[string]any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode action parameters: %w", err)
	}

	provider := req.ActionProvider
	if provider == "" {
		provider = DefaultProvider
	}
	groups := req.AlertGroupIDs
	if groups == nil {
		groups = []string{}
	}

	env := Envelope{
		AlertGroupIdentifiers: groups,
		CaseID:                caseID(req.CaseID),
		TargetEntities:        req.Scope.Entities(),
		IsPredefinedScope:     req.Scope.IsPredefined(),
		ActionProvider:        provider,
		ActionName:            req.ActionName,
		Properties: Properties{
			IntegrationInstance:          req.Instance.Identifier,
			ScriptName:                   req.ActionName,
			ScriptParametersEntityFields: string(encoded),
		},
	}
	if req.Scope.IsPredefined() {
		name := req.Scope.Name()
		env.Scope = &name
	}
	return env, nil
}

// caseID keeps integer case ids numeric on the wire.
func caseID(id string) any {
	if id == "" {
		return nil
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// Invoker sends action requests through a shared transport.
type Invoker struct {
	client *transport.Client
	logger *slog.Logger
}

func NewInvoker(client *transport.Client, logger *slog.Logger) *Invoker {
	return &Invoker{client: client, logger: logger}
}

// Invoke performs one POST to the execution endpoint. The raw upstream payload
// or a classified failure is returned.
func (inv *Invoker) Invoke(ctx context.Context, req domain.ActionRequest) domain.ActionResult {
	env, err := BuildEnvelope(req)
	if err != nil {
		return domain.Fail(domain.Unexpected, err.Error(), nil)
	}

	start := time.Now()
	res := inv.client.Do(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   ExecutePath,
		JSON:   env,
	})

	attrs := []any{
		"action", req.ActionName,
		"instance", req.Instance.Identifier,
		"predefined_scope", env.IsPredefinedScope,
		"elapsed", time.Since(start),
	}
	if res.OK() {
		inv.logger.Info("action executed", attrs...)
	} else {
		inv.logger.Warn("action failed", append(attrs, "kind", res.Err.Kind, "detail", res.Err.Detail)...)
	}
	return res
}
