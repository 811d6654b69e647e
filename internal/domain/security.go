package domain

// SecurityAction is the exposure decision for one tool.
type SecurityAction string

const (
	ActionAllow   SecurityAction = "allow"
	ActionBlock   SecurityAction = "block"
	ActionConfirm SecurityAction = "confirm"
)
