package sigma

// Match records a Sigma rule hit against a normalized artifact.
type Match struct {
	Source    string         `json:"source"`
	RuleTitle string         `json:"rule_title"`
	RuleID    string         `json:"rule_id,omitempty"`
	Level     string         `json:"level"` // informational | low | medium | high | critical
	Event     map[string]any `json:"event"` // matched artifact fields for evidence
}
