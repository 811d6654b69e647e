package domain

// EntityType classifies a target entity. Values are backend-defined; the
// constants below are the ones the SOAR platform ships with.
type EntityType string

const (
	EntityAddress    EntityType = "ADDRESS"
	EntityHostname   EntityType = "HOSTNAME"
	EntityURL        EntityType = "DestinationURL"
	EntityFileHash   EntityType = "FILEHASH"
	EntityUser       EntityType = "USERUNIQNAME"
	EntityEmail      EntityType = "EMAILSUBJECT"
	EntityDomain     EntityType = "DOMAIN"
	EntityProcess    EntityType = "PROCESS"
	EntityThreatSign EntityType = "THREATSIGNATURE"
)

// TargetEntity is a single addressable object an action operates on.
type TargetEntity struct {
	Identifier string     `json:"Identifier"`
	EntityType EntityType `json:"EntityType"`
}

// IntegrationInstance is a configured deployment of a vendor product.
type IntegrationInstance struct {
	Identifier  string `json:"identifier"`
	ProductName string `json:"productName"`
	IsActive    bool   `json:"isActive"`
}

// ScopeSpecifier says what an action applies to: either an explicit, non-empty
// entity list or a predefined scope name. Never both.
type ScopeSpecifier struct {
	entities []TargetEntity
	named    string
}

// ExplicitEntities builds a scope from caller-supplied entities.
func ExplicitEntities(entities []TargetEntity) ScopeSpecifier {
	cp := make([]TargetEntity, len(entities))
	copy(cp, entities)
	return ScopeSpecifier{entities: cp}
}

// NamedScope builds a predefined scope.
func NamedScope(name string) ScopeSpecifier {
	return ScopeSpecifier{named: name}
}

// IsPredefined reports whether the scope is a named (predefined) scope.
func (s ScopeSpecifier) IsPredefined() bool { return len(s.entities) == 0 }

// Entities returns the explicit entities. Empty for named scopes.
func (s ScopeSpecifier) Entities() []TargetEntity {
	if s.entities == nil {
		return []TargetEntity{}
	}
	cp := make([]TargetEntity, len(s.entities))
	copy(cp, s.entities)
	return cp
}

// Name returns the predefined scope name. Empty for explicit scopes.
func (s ScopeSpecifier) Name() string {
	if !s.IsPredefined() {
		return ""
	}
	return s.named
}

// ActionRequest is everything needed to run one manual action on the backend.
// Built fresh for every invocation.
type ActionRequest struct {
	CaseID         string
	AlertGroupIDs  []string
	Instance       IntegrationInstance
	Scope          ScopeSpecifier
	ActionProvider string
	ActionName     string
	Parameters     map[string]any
}
