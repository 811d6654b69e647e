package tool

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"secopsmcp/internal/catalog"
	"secopsmcp/internal/domain"
)

// Arguments every action tool accepts besides its script parameters.
const (
	argCaseID      = "case_id"
	argAlertGroups = "alert_group_identifiers"
	argEntities    = "target_entities"
	argScope       = "scope"
)

// ActionTool exposes one catalog action. It only marshals arguments; scope,
// instance, invocation and normalization are delegated.
type ActionTool struct {
	soar        *SOAR
	integration string
	action      catalog.Action
	name        string
	schema      map[string]any
}

func NewActionTool(soar *SOAR, integration string, a catalog.Action) *ActionTool {
	t := &ActionTool{
		soar:        soar,
		integration: integration,
		action:      a,
		name:        catalog.ToolName(integration, a.Name),
	}
	t.schema = t.buildSchema()
	return t
}

func (t *ActionTool) Name() string { return t.name }
func (t *ActionTool) Kind() string { return KindAction }

func (t *ActionTool) Description() string {
	if t.action.Description != "" {
		return t.action.Description
	}
	return fmt.Sprintf("Run the %s action of the %s integration.", t.action.Name, t.integration)
}

func (t *ActionTool) Parameters() map[string]any { return t.schema }

func (t *ActionTool) buildSchema() map[string]any {
	props := map[string]Param{
		argCaseID:      {Type: "string", Description: "The ID of the case."},
		argAlertGroups: {Type: "array", Description: "Identifiers for the alert groups.", Items: map[string]any{"type": "string"}},
		argEntities: {Type: "array", Items: entitySchema,
			Description: "Optional list of specific target entities (Identifier, EntityType) to run the action on."},
		argScope: {Type: "string", Default: t.soar.DefaultScope,
			Description: "Defines the scope for the action. Ignored when target_entities is given."},
	}
	required := []string{argCaseID, argAlertGroups}
	for _, p := range t.action.Parameters {
		props[p.Key()] = Param{Type: p.Type, Description: p.Description}
		if p.Required {
			required = append(required, p.Key())
		}
	}
	return ToolParameters(props, required)
}

func (t *ActionTool) Execute(ctx context.Context, args map[string]any) domain.Envelope {
	ctx, err := t.soar.begin(ctx)
	if err != nil {
		return t.soar.fail(t.name, err)
	}

	req, err := t.request(args)
	if err != nil {
		return t.soar.fail(t.name, err)
	}

	req.Instance, err = t.soar.Locator.Locate(ctx, t.integration)
	if err != nil {
		return t.soar.fail(t.name, err)
	}

	return t.soar.Normalizer.Normalize(t.name, t.soar.Invoker.Invoke(ctx, req))
}

// request validates arguments and resolves the scope. No network I/O happens
// here, so bad input fails before the instance lookup.
func (t *ActionTool) request(args map[string]any) (domain.ActionRequest, error) {
	if err := t.rejectUnknown(args); err != nil {
		return domain.ActionRequest{}, err
	}
	caseID, err := RequireString(args, argCaseID)
	if err != nil {
		return domain.ActionRequest{}, err
	}
	if !ArgsPresent(args, argAlertGroups) {
		return domain.ActionRequest{}, argError("missing required argument %q", argAlertGroups)
	}
	groups, err := ArgsStringSlice(args, argAlertGroups)
	if err != nil {
		return domain.ActionRequest{}, err
	}
	entities, err := ArgsEntities(args, argEntities)
	if err != nil {
		return domain.ActionRequest{}, err
	}
	named := t.soar.DefaultScope
	if ArgsPresent(args, argScope) {
		named = ArgsString(args, argScope)
	}
	sc, err := t.soar.Scopes.Resolve(entities, named)
	if err != nil {
		return domain.ActionRequest{}, err
	}
	params, err := t.scriptParameters(args)
	if err != nil {
		return domain.ActionRequest{}, err
	}

	return domain.ActionRequest{
		CaseID:         caseID,
		AlertGroupIDs:  groups,
		Scope:          sc,
		ActionProvider: t.action.Provider,
		ActionName:     catalog.ScriptName(t.integration, t.action.Name),
		Parameters:     params,
	}, nil
}

// rejectUnknown fails on argument names outside the tool schema, so a
// misspelled parameter cannot silently run the action without it.
func (t *ActionTool) rejectUnknown(args map[string]any) error {
	props, _ := t.schema["properties"].(map[string]any)
	var unknown []string
	for k := range args {
		if _, ok := props[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	return argError("unknown argument(s) %s", strings.Join(unknown, ", "))
}

// scriptParameters maps supplied arguments to script parameter names. Optional
// parameters that were not supplied are left out entirely.
func (t *ActionTool) scriptParameters(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(t.action.Parameters))
	for _, p := range t.action.Parameters {
		key := p.Key()
		if !ArgsPresent(args, key) {
			if p.Required {
				return nil, argError("missing required argument %q", key)
			}
			continue
		}
		var (
			v   any
			err error
		)
		switch p.Type {
		case catalog.TypeBoolean:
			v, err = ArgsBool(args, key)
		case catalog.TypeInteger:
			v, err = ArgsInt(args, key)
		case catalog.TypeNumber:
			v, err = ArgsNumber(args, key)
		case catalog.TypeArray:
			v = args[key]
			if s, ok := v.(string); ok {
				v = []any{s}
			}
		default:
			v = ArgsString(args, key)
		}
		if err != nil {
			return nil, err
		}
		out[p.Name] = v
	}
	return out, nil
}

// RegisterCatalog registers one ActionTool per catalog action and binds any
// extraction profile the action names.
func RegisterCatalog(reg *Registry, soar *SOAR, integrations []catalog.Integration) (int, error) {
	n := 0
	for _, in := range integrations {
		for _, a := range in.Actions {
			t := NewActionTool(soar, in.Name, a)
			if a.Profile != "" {
				if err := soar.Normalizer.Bind(t.Name(), a.Profile); err != nil {
					return n, fmt.Errorf("%s: %w", t.Name(), err)
				}
			}
			reg.Register(t)
			n++
		}
	}
	return n, nil
}
