package catalog

import (
	"regexp"
	"strings"
)

var (
	separators   = regexp.MustCompile(`[\s\-./\\]+`)
	capitalWord  = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	lowerUpper   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	acronymWord  = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	underscores  = regexp.MustCompile(`_+`)
	trailingJunk = regexp.MustCompile(`[^a-z0-9_]+$`)

	stripper = strings.NewReplacer("(", "", ")", "", "|", "", "'", "", "`", "", "’", "", `"`, "", "->", "to")
)

// unnamed is returned for names that reduce to nothing.
const unnamed = "_unnamed_parameter"

// ToSnakeCase converts display names like "CrowdStrikeFalcon" or
// "Add Comment to Detection" into identifier form. Acronyms split the way the
// published tool names expect: "URLs" becomes "ur_ls".
func ToSnakeCase(name string) string {
	if name == "" {
		return unnamed
	}
	name = stripper.Replace(name)
	name = separators.ReplaceAllString(name, "_")
	name = capitalWord.ReplaceAllString(name, "${1}_${2}")
	name = lowerUpper.ReplaceAllString(name, "${1}_${2}")
	name = acronymWord.ReplaceAllString(name, "${1}_${2}")
	name = strings.ToLower(name)
	name = strings.Trim(name, "_")
	name = underscores.ReplaceAllString(name, "_")
	if name == "" {
		return unnamed
	}
	if c := name[0]; !(c >= 'a' && c <= 'z') && c != '_' {
		name = "_" + name
	}
	return trailingJunk.ReplaceAllString(name, "")
}

// NormalizeName folds an integration name for matching against the
// --integrations filter: spaces and slashes removed, lower-cased.
func NormalizeName(name string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "/", "").Replace(name))
}

// ToolName is the registered tool name for an integration action.
func ToolName(integration, action string) string {
	return ToSnakeCase(integration) + "_" + ToSnakeCase(action)
}

// ScriptName is the backend action name, e.g. "Okta_Disable User".
func ScriptName(integration, action string) string {
	return integration + "_" + action
}
