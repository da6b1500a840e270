package domain

// LabelRule defines one boolean labeling rule used to derive the
// training target. Rules are CEL expressions over the feature row,
// evaluated in ascending priority order; the first rule that evaluates
// true labels the row 1.
type LabelRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Priority orders evaluation; lower runs first.
	Priority int `json:"priority"`

	// Expression is a CEL expression that must evaluate to bool.
	Expression string `json:"expression"`

	Enabled bool `json:"enabled"`
}
