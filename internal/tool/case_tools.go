package tool

import (
	"context"
	"net/http"
	"net/url"

	"secopsmcp/internal/domain"
	"secopsmcp/internal/transport"

	"golang.org/x/sync/errgroup"
)

// SOAR case management endpoints.
const (
	CasesPath         = "/api/1p/external/v1/cases"
	caseAlertsPath    = "/api/1p/external/v1.0/cases/"
	entityDataPath    = "/api/external/v1/entities/GetEntityData"
	alertEntitiesPath = "/api/external/v1/case-overview/GetAlertsEntities"
	entitySearchPath  = "/api/external/v1.0/entity-search/entities"
)

const (
	argNextPageToken   = "next_page_token"
	nextPageTokenDescr = "The nextPageToken to fetch the next page of results."
)

// CasePriorities are the values accepted by change_case_priority.
var CasePriorities = []string{
	"PriorityUnspecified",
	"PriorityInfo",
	"PriorityLow",
	"PriorityMedium",
	"PriorityHigh",
	"PriorityCritical",
}

func casePath(caseID string) string { return CasesPath + "/" + url.PathEscape(caseID) }

func caseAlerts(caseID string) string {
	return caseAlertsPath + url.PathEscape(caseID) + "/caseAlerts"
}

func involvedEvents(caseID, alertID string) string {
	return caseAlertsPath + url.PathEscape(caseID) + "/alerts/" + url.PathEscape(alertID) + "/involvedEvents"
}

// caseTool is a SOAR pass-through tool: validate arguments, make one or more
// backend calls, normalize.
type caseTool struct {
	soar        *SOAR
	name        string
	description string
	schema      map[string]any
	run         func(ctx context.Context, args map[string]any) domain.ActionResult
}

func (t *caseTool) Name() string               { return t.name }
func (t *caseTool) Description() string        { return t.description }
func (t *caseTool) Parameters() map[string]any { return t.schema }
func (t *caseTool) Kind() string               { return KindCase }

func (t *caseTool) Execute(ctx context.Context, args map[string]any) domain.Envelope {
	ctx, err := t.soar.begin(ctx)
	if err != nil {
		return t.soar.fail(t.name, err)
	}
	return t.soar.Normalizer.Normalize(t.name, t.run(ctx, args))
}

func pageQuery(args map[string]any, extra url.Values) url.Values {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	if tok := ArgsString(args, argNextPageToken); tok != "" {
		q.Set("pageToken", tok)
	}
	return q
}

// CaseTools returns the case management tools.
func CaseTools(soar *SOAR) []domain.Tool {
	c := soar.Client
	return []domain.Tool{
		&caseTool{
			soar: soar, name: "list_cases",
			description: "List cases available in the SOAR platform. A case groups the alerts and response actions of one security incident.",
			schema: ToolParameters(map[string]Param{
				argNextPageToken: {Type: "string", Description: nextPageTokenDescr},
			}, nil),
			run: func(ctx context.Context, args map[string]any) domain.ActionResult {
				var q url.Values
				if ArgsString(args, argNextPageToken) != "" {
					q = pageQuery(args, url.Values{"$expand": {"tags"}})
				}
				return c.Get(ctx, CasesPath, q)
			},
		},
		&caseTool{
			soar: soar, name: "get_case_full_details",
			description: "Get a case together with its alerts and comments.",
			schema: ToolParameters(map[string]Param{
				argCaseID: {Type: "string", Description: "The ID of the case."},
			}, []string{argCaseID}),
			run: func(ctx context.Context, args map[string]any) domain.ActionResult {
				id, err := RequireString(args, argCaseID)
				if err != nil {
					return domain.FailWith(err)
				}
				return fullCaseDetails(ctx, c, id)
			},
		},
		&caseTool{
			soar: soar, name: "post_case_comment",
			description: "Post a comment to a case to document findings or actions taken.",
			schema: ToolParameters(map[string]Param{
				argCaseID: {Type: "string", Description: "The ID of the case."},
				"comment": {Type: "string", Description: "The comment text to add."},
			}, []string{argCaseID, "comment"}),
			run: func(ctx context.Context, args map[string]any) domain.ActionResult {
				id, err := RequireString(args, argCaseID)
				if err != nil {
					return domain.FailWith(err)
				}
				comment, err := RequireString(args, "comment")
				if err != nil {
					return domain.FailWith(err)
				}
				return c.Do(ctx, transport.Request{
					Method: http.MethodPost,
					Path:   casePath(id) + "/comments",
					JSON:   map[string]any{"Comment": comment},
				})
			},
		},
		&caseTool{
			soar: soar, name: "list_alerts_by_case",
			description: "List the security alerts associated with a case.",
			schema: ToolParameters(map[string]Param{
				argCaseID:        {Type: "string", Description: "The ID of the case."},
				argNextPageToken: {Type: "string", Description: nextPageTokenDescr},
			}, []string{argCaseID}),
			run: func(ctx context.Context, args map[string]any) domain.ActionResult {
				id, err := RequireString(args, argCaseID)
				if err != nil {
					return domain.FailWith(err)
				}
				return c.Get(ctx, caseAlerts(id), pageQuery(args, nil))
			},
		},
		&caseTool{
			soar: soar, name: "list_alert_group_identifiers_by_case",
			description: "List the alert group identifiers of a case.",
			schema: ToolParameters(map[string]Param{
				argCaseID:        {Type: "string", Description: "The ID of the case."},
				argNextPageToken: {Type: "string", Description: nextPageTokenDescr},
			}, []string{argCaseID}),
			run: func(ctx context.Context, args map[string]any) domain.ActionResult {
				id, err := RequireString(args, argCaseID)
				if err != nil {
					return domain.FailWith(err)
				}
				return c.Get(ctx, caseAlerts(id), pageQuery(args, url.Values{"$select": {"alertGroupIdentifier"}}))
			},
		},
		&caseTool{
			soar: soar, name: "list_events_by_alert",
			description: "List the raw events involved in an alert of a case.",
			schema: ToolParameters(map[string]Param{
				argCaseID:        {Type: "string", Description: "The ID of the case."},
				"alert_id":       {Type: "string", Description: "The ID of the alert."},
				argNextPageToken: {Type: "string", Description: nextPageTokenDescr},
			}, []string{argCaseID, "alert_id"}),
			run: func(ctx context.Context, args map[string]any) domain.ActionResult {
				id, err := RequireString(args, argCaseID)
				if err != nil {
					return domain.FailWith(err)
				}
				alertID, err := RequireString(args, "alert_id")
				if err != nil {
					return domain.FailWith(err)
				}
				return c.Get(ctx, involvedEvents(id, alertID), pageQuery(args, nil))
			},
		},
		&caseTool{
			soar: soar, name: "change_case_priority",
			description: "Change the priority level of a case.",
			schema: ToolParameters(map[string]Param{
				argCaseID:       {Type: "string", Description: "The ID of the case."},
				"case_priority": {Type: "string", Description: "The priority of the case.", Enum: CasePriorities},
			}, []string{argCaseID, "case_priority"}),
			run: func(ctx context.Context, args map[string]any) domain.ActionResult {
				id, err := RequireString(args, argCaseID)
				if err != nil {
					return domain.FailWith(err)
				}
				prio, err := RequireString(args, "case_priority")
				if err != nil {
					return domain.FailWith(err)
				}
				if !validPriority(prio) {
					return domain.FailWith(argError("invalid case_priority %q", prio))
				}
				return c.Do(ctx, transport.Request{
					Method: http.MethodPatch,
					Path:   casePath(id),
					JSON:   map[string]any{"Priority": prio},
				})
			},
		},
		&caseTool{
			soar: soar, name: "get_entities_by_alert_group_identifiers",
			description: "List the entities involved in the given alert groups of a case.",
			schema: ToolParameters(map[string]Param{
				argCaseID:      {Type: "string", Description: "The ID of the case."},
				argAlertGroups: {Type: "array", Description: "Identifiers for the alert groups.", Items: map[string]any{"type": "string"}},
			}, []string{argCaseID, argAlertGroups}),
			run: func(ctx context.Context, args map[string]any) domain.ActionResult {
				id, err := RequireString(args, argCaseID)
				if err != nil {
					return domain.FailWith(err)
				}
				groups, err := ArgsStringSlice(args, argAlertGroups)
				if err != nil {
					return domain.FailWith(err)
				}
				if len(groups) == 0 {
					return domain.FailWith(argError("missing required argument %q", argAlertGroups))
				}
				return c.Do(ctx, transport.Request{
					Method: http.MethodPost,
					Path:   alertEntitiesPath,
					JSON:   map[string]any{"caseId": id, "alertGroupIdentifiers": groups},
				})
			},
		},
		&caseTool{
			soar: soar, name: "search_entity",
			description: "Search the entities known to the SOAR platform by term, type, suspicion, asset, enrichment, network or environment. " +
				"Follow up with get_entity_details on interesting results.",
			schema: ToolParameters(map[string]Param{
				"term":              {Type: "string", Description: "Text to match against entity identifiers, e.g. part of a hostname or IP."},
				"type":              {Type: "array", Description: "Entity types to include, e.g. ['ADDRESS', 'HOSTNAME'].", Items: map[string]any{"type": "string"}},
				"is_suspicious":     {Type: "boolean", Description: "Only entities marked suspicious."},
				"is_internal_asset": {Type: "boolean", Description: "Only internal assets."},
				"is_enriched":       {Type: "boolean", Description: "Only enriched entities."},
				"network_name":      {Type: "array", Description: "Networks to include.", Items: map[string]any{"type": "string"}},
				"environment_name":  {Type: "array", Description: "Environments to include.", Items: map[string]any{"type": "string"}},
			}, nil),
			run: func(ctx context.Context, args map[string]any) domain.ActionResult {
				body, err := entitySearchBody(args)
				if err != nil {
					return domain.FailWith(err)
				}
				return c.Do(ctx, transport.Request{Method: http.MethodPost, Path: entitySearchPath, JSON: body})
			},
		},
		&caseTool{
			soar: soar, name: "get_entity_details",
			description: "Fetch detailed information about an entity known to the SOAR platform.",
			schema: ToolParameters(map[string]Param{
				"entity_identifier":  {Type: "string", Description: "The identifier of the entity."},
				"entity_type":        {Type: "string", Description: "The type of the entity."},
				"entity_environment": {Type: "string", Description: "The environment of the entity."},
			}, []string{"entity_identifier", "entity_type", "entity_environment"}),
			run: func(ctx context.Context, args map[string]any) domain.ActionResult {
				body := map[string]any{"LastCaseType": 0, "CaseDistributionType": 0}
				for _, f := range [][2]string{
					{"entity_identifier", "EntityIdentifier"},
					{"entity_type", "EntityType"},
					{"entity_environment", "EntityEnvironment"},
				} {
					v, err := RequireString(args, f[0])
					if err != nil {
						return domain.FailWith(err)
					}
					body[f[1]] = v
				}
				return c.Do(ctx, transport.Request{Method: http.MethodPost, Path: entityDataPath, JSON: body})
			},
		},
	}
}

// entitySearchBody sends every filter; unset ones go out as null.
func entitySearchBody(args map[string]any) (map[string]any, error) {
	body := map[string]any{"Term": nil}
	if ArgsPresent(args, "term") {
		body["Term"] = ArgsString(args, "term")
	}
	for _, f := range [][2]string{{"type", "Type"}, {"network_name", "NetworkName"}, {"environment_name", "EnvironmentName"}} {
		list, err := ArgsStringSlice(args, f[0])
		if err != nil {
			return nil, err
		}
		if list == nil {
			body[f[1]] = nil
			continue
		}
		body[f[1]] = list
	}
	for _, f := range [][2]string{{"is_suspicious", "IsSuspicious"}, {"is_internal_asset", "IsInternalAsset"}, {"is_enriched", "IsEnriched"}} {
		body[f[1]] = nil
		if !ArgsPresent(args, f[0]) {
			continue
		}
		b, err := ArgsBool(args, f[0])
		if err != nil {
			return nil, err
		}
		body[f[1]] = b
	}
	return body, nil
}

func validPriority(p string) bool {
	for _, v := range CasePriorities {
		if v == p {
			return true
		}
	}
	return false
}

// fullCaseDetails fetches the case, its alerts and its comments concurrently.
// The first failure wins and cancels the other calls.
func fullCaseDetails(ctx context.Context, c *transport.Client, id string) domain.ActionResult {
	g, gctx := errgroup.WithContext(ctx)
	paths := []string{casePath(id), caseAlerts(id), casePath(id) + "/comments"}
	results := make([]any, len(paths))
	for i, p := range paths {
		g.Go(func() error {
			res := c.Get(gctx, p, nil)
			if !res.OK() {
				return res.Err
			}
			results[i] = res.Payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.FailWith(err)
	}
	return domain.Succeed(map[string]any{
		"case_details":  results[0],
		"case_alerts":   results[1],
		"case_comments": results[2],
	})
}
