// Package normalize turns action results into the uniform tool envelope.
package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"secopsmcp/internal/domain"
)

// Normalizer maps results to envelopes. Profiles are bound to tool names at
// startup; Normalize itself is safe for concurrent use.
type Normalizer struct {
	mu         sync.RWMutex
	profiles   map[string]*Profile
	byTool     map[string]string // tool -> profile name
	extractors []Extractor
	logger     *slog.Logger
}

// New builds a normalizer from profiles. Later profiles with the same name
// replace earlier ones, so a profile directory can override built-ins. Tool
// bindings follow the name, not the replaced profile.
func New(profiles []Profile, logger *slog.Logger) *Normalizer {
	n := &Normalizer{
		profiles:   make(map[string]*Profile),
		byTool:     make(map[string]string),
		extractors: DefaultExtractors(),
		logger:     logger,
	}
	for i := range profiles {
		p := profiles[i]
		n.profiles[p.Name] = &p
		for _, t := range p.Tools {
			n.byTool[t] = p.Name
		}
	}
	return n
}

// Bind attaches the named profile to tool.
func (n *Normalizer) Bind(tool, profile string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.profiles[profile]; !ok {
		return fmt.Errorf("unknown extraction profile %q", profile)
	}
	n.byTool[tool] = profile
	return nil
}

// bound resolves the profile for tool; the caller holds n.mu.
func (n *Normalizer) bound(tool string) *Profile {
	name, ok := n.byTool[tool]
	if !ok {
		return nil
	}
	return n.profiles[name]
}

// Profile returns the profile bound to tool, if any.
func (n *Normalizer) Profile(tool string) (Profile, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p := n.bound(tool)
	if p == nil {
		return Profile{}, false
	}
	return *p, true
}

// Normalize never panics; internal faults become Unexpected envelopes.
func (n *Normalizer) Normalize(tool string, r domain.ActionResult) (env domain.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			n.logger.Error("normalize panic", "tool", tool, "panic", rec)
			detail := fmt.Sprintf("internal error while normalizing response: %v", rec)
			env = domain.Envelope{
				IsError: true,
				Message: fmt.Sprintf("%s Failed: %s: %s", tool, domain.Unexpected.Code(), detail),
				Data:    map[string]any{"error": domain.Unexpected.Code(), "detail": detail},
				Kind:    domain.Unexpected.String(),
			}
		}
	}()

	if !r.OK() {
		return n.failure(tool, r.Err)
	}

	n.mu.RLock()
	p := n.bound(tool)
	n.mu.RUnlock()

	if p != nil {
		return n.profiled(tool, p, r.Payload)
	}
	if _, err := json.Marshal(r.Payload); err != nil {
		return n.failure(tool, &domain.Error{
			Kind:   domain.Unexpected,
			Detail: "response payload cannot be serialised: " + err.Error(),
		})
	}
	return domain.Envelope{
		Message: tool + " Succeeded",
		Data:    r.Payload,
	}
}

func (n *Normalizer) profiled(tool string, p *Profile, payload any) domain.Envelope {
	records, ok := container(p, payload)
	if !ok {
		return domain.Envelope{
			IsError: true,
			Message: tool + " Failed: Unexpected response format received.",
			Data:    payload,
			Kind:    domain.UpstreamMalformedResponse.String(),
		}
	}
	data := p.project(records)
	return domain.Envelope{
		Message: tool + " Succeeded: " + p.message(len(data)),
		Data:    data,
	}
}

func container(p *Profile, payload any) ([]any, bool) {
	v := payload
	if p.Container != "" {
		m, ok := payload.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = m[p.Container]; !ok {
			return nil, false
		}
	}
	list, ok := v.([]any)
	return list, ok
}

func (n *Normalizer) failure(tool string, e *domain.Error) domain.Envelope {
	if e == nil {
		e = &domain.Error{Kind: domain.Unexpected, Detail: "missing failure detail"}
	}
	text, ok := Describe(n.extractors, e.Raw)
	if !ok {
		switch {
		case e.Detail != "":
			text = e.Detail
		case e.Raw != nil:
			text = fmt.Sprint(e.Raw)
		default:
			text = "unknown error"
		}
	}

	data := e.Raw
	if data == nil {
		data = map[string]any{"error": e.Kind.Code(), "detail": e.Detail}
	}
	return domain.Envelope{
		IsError: true,
		Message: fmt.Sprintf("%s Failed: %s: %s", tool, e.Kind.Code(), text),
		Data:    data,
		Kind:    e.Kind.String(),
	}
}
