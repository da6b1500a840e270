package rules

import "github.com/opensource-finance/payrisk/internal/domain"

// DefaultLabelRules returns the built-in failure labeling rules,
// in priority order. Used when no custom rules are configured.
func DefaultLabelRules() []*domain.LabelRule {
	return []*domain.LabelRule{
		{
			ID:          "unverified-cash",
			Name:        "Unverified cash sender",
			Description: "Cash payments from senders without verified identity",
			Priority:    1,
			Expression:  `id_verified == 0 && source_of_funds == "Cash"`,
			Enabled:     true,
		},
		{
			ID:          "cross-border-cash",
			Name:        "Cross-border cash payment",
			Description: "Cash payments where birth and receiver country differ",
			Priority:    2,
			Expression:  `cross_border == 1 && source_of_funds == "Cash"`,
			Enabled:     true,
		},
		{
			ID:          "unverified-worker",
			Name:        "Unverified worker",
			Description: "Unverified senders with worker occupation",
			Priority:    3,
			Expression:  `occupation == "worker" && id_verified == 0`,
			Enabled:     true,
		},
	}
}
