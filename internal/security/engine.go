// Package security decides which tools are exposed and which must be
// confirmed by the caller before they change state outside the platform.
package security

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"

	"secopsmcp/internal/config"
	"secopsmcp/internal/domain"
	"secopsmcp/internal/normalize"
)

// ConfirmArg is the boolean argument a guarded tool requires.
const ConfirmArg = "confirm"

// Engine matches tool names against blacklist/whitelist/confirm patterns.
type Engine struct {
	cfg        config.SecurityConfig
	normalizer *normalize.Normalizer
	logger     *slog.Logger

	blacklistRe []*regexp.Regexp
	whitelistRe []*regexp.Regexp
	confirmRe   []*regexp.Regexp
}

func NewEngine(cfg config.SecurityConfig, n *normalize.Normalizer, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		cfg:        cfg,
		normalizer: n,
		logger:     logger,
	}

	var err error
	e.blacklistRe, err = compilePatterns(cfg.Blacklist)
	if err != nil {
		return nil, fmt.Errorf("invalid blacklist pattern: %w", err)
	}

	e.whitelistRe, err = compilePatterns(cfg.Whitelist)
	if err != nil {
		return nil, fmt.Errorf("invalid whitelist pattern: %w", err)
	}

	e.confirmRe, err = compilePatterns(cfg.ConfirmPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid confirm pattern: %w", err)
	}

	return e, nil
}

// Check classifies a tool name. Blacklist beats whitelist, whitelist beats
// confirm patterns, and the default policy decides the rest.
func (e *Engine) Check(toolName string) domain.SecurityAction {
	for _, re := range e.blacklistRe {
		if re.MatchString(toolName) {
			e.logger.Info("tool blocked by blacklist", "tool", toolName, "pattern", re.String())
			return domain.ActionBlock
		}
	}

	for _, re := range e.whitelistRe {
		if re.MatchString(toolName) {
			return domain.ActionAllow
		}
	}

	for _, re := range e.confirmRe {
		if re.MatchString(toolName) {
			return domain.ActionConfirm
		}
	}

	switch e.cfg.DefaultPolicy {
	case "deny":
		return domain.ActionBlock
	case "confirm":
		return domain.ActionConfirm
	default:
		return domain.ActionAllow
	}
}

// Gate applies Check to t: blocked tools yield nil, tools needing
// confirmation come back wrapped. Suitable for tool.Registry.Filter.
func (e *Engine) Gate(t domain.Tool) domain.Tool {
	switch e.Check(t.Name()) {
	case domain.ActionBlock:
		return nil
	case domain.ActionConfirm:
		return &guarded{inner: t, engine: e}
	default:
		return t
	}
}

// guarded refuses to run its tool unless the caller passes confirm=true.
type guarded struct {
	inner  domain.Tool
	engine *Engine
}

func (g *guarded) Name() string { return g.inner.Name() }

func (g *guarded) Description() string {
	return g.inner.Description() + " Requires confirm=true because it changes state outside the SOAR platform."
}

func (g *guarded) Kind() string {
	if k, ok := g.inner.(interface{ Kind() string }); ok {
		return k.Kind()
	}
	return "builtin"
}

func (g *guarded) Parameters() map[string]any {
	schema := maps.Clone(g.inner.Parameters())
	props, _ := schema["properties"].(map[string]any)
	props = maps.Clone(props)
	if props == nil {
		props = map[string]any{}
	}
	props[ConfirmArg] = map[string]any{
		"type":        "boolean",
		"description": "Must be true to run this action.",
	}
	schema["properties"] = props

	required, _ := schema["required"].([]string)
	schema["required"] = append(slices.Clone(required), ConfirmArg)
	return schema
}

func (g *guarded) Execute(ctx context.Context, args map[string]any) domain.Envelope {
	if ok, _ := args[ConfirmArg].(bool); !ok {
		g.engine.logger.Warn("unconfirmed call refused", "tool", g.Name())
		return g.engine.normalizer.Normalize(g.Name(), domain.Fail(domain.Unexpected,
			"confirmation required: call again with confirm=true", nil))
	}
	rest := maps.Clone(args)
	delete(rest, ConfirmArg)
	g.engine.logger.Info("confirmed call", "tool", g.Name())
	return g.inner.Execute(ctx, rest)
}

// Simple strings are converted to substring-match patterns.
func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		var re *regexp.Regexp
		var err error
		if isRegex(p) {
			re, err = regexp.Compile(p)
		} else {
			re, err = regexp.Compile(`(?i)` + regexp.QuoteMeta(p))
		}
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func isRegex(s string) bool {
	for _, c := range s {
		switch c {
		case '(', ')', '[', ']', '{', '}', '|', '^', '$', '.', '*', '+', '?', '\\':
			return true
		}
	}
	return false
}
