package core

import (
	"context"
	"fmt"
	"labcore/pkg/domain"
)

// AttributeIdentityRule reports embedded attributes without an id or sharing
// an id with another attribute of the same entity.
func AttributeIdentityRule() domain.Rule {
	return attributeIdentityRule{}
}

type attributeIdentityRule struct{}

func (attributeIdentityRule) Name() string { return "attribute_identity" }

func (attributeIdentityRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	res := domain.Result{}
	for _, e := range view.ListEntities() {
		seen := make(map[string]struct{}, len(e.Attributes))
		for i, a := range e.Attributes {
			var msg string
			if a.ID == "" {
				msg = fmt.Sprintf("entity %s attribute %d has no id", e.ID, i)
			} else if _, dup := seen[a.ID]; dup {
				msg = fmt.Sprintf("entity %s has duplicate attribute id %s", e.ID, a.ID)
			}
			seen[a.ID] = struct{}{}
			if msg != "" {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "attribute_identity",
					Severity: domain.SeverityBlock,
					Message:  msg,
					Kind:     domain.KindEntity,
					ID:       e.ID,
				})
			}
		}
	}
	return res, nil
}
