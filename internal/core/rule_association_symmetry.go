package core

import (
	"context"
	"fmt"
	"labcore/pkg/domain"
)

const associationSymmetryRuleName = "association_symmetry"

// AssociationSymmetryRule reports origin and product references that are not
// mirrored on the referenced entity, or that point at no entity at all.
func AssociationSymmetryRule() domain.Rule {
	return associationSymmetryRule{}
}

type associationSymmetryRule struct{}

func (associationSymmetryRule) Name() string { return associationSymmetryRuleName }

func (associationSymmetryRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	res := domain.Result{}
	for _, e := range view.ListEntities() {
		for _, rel := range []domain.Relation{domain.RelationOrigins, domain.RelationProducts} {
			seen := make(map[string]struct{})
			for _, ref := range e.Associations.References(rel) {
				if ref.ID == e.ID {
					res.Violations = append(res.Violations, symmetryViolation(e.ID, rel, ref.ID, domain.SeverityBlock,
						fmt.Sprintf("entity %s lists itself in %s", e.ID, rel)))
					continue
				}
				if _, dup := seen[ref.ID]; dup {
					res.Violations = append(res.Violations, symmetryViolation(e.ID, rel, ref.ID, domain.SeverityBlock,
						fmt.Sprintf("entity %s lists %s in %s more than once", e.ID, ref.ID, rel)))
					continue
				}
				seen[ref.ID] = struct{}{}
				other, ok := view.FindEntity(ref.ID)
				if !ok {
					res.Violations = append(res.Violations, symmetryViolation(e.ID, rel, ref.ID, domain.SeverityWarn,
						fmt.Sprintf("entity %s lists missing entity %s in %s", e.ID, ref.ID, rel)))
					continue
				}
				if !containsRef(other.Associations.References(rel.Inverse()), e.ID) {
					res.Violations = append(res.Violations, symmetryViolation(e.ID, rel, ref.ID, domain.SeverityWarn,
						fmt.Sprintf("entity %s lists %s in %s but %s does not list it in %s", e.ID, ref.ID, rel, ref.ID, rel.Inverse())))
				}
			}
		}
	}
	return res, nil
}

func symmetryViolation(id string, rel domain.Relation, target string, sev domain.Severity, msg string) domain.Violation {
	return domain.Violation{
		Rule:     associationSymmetryRuleName,
		Severity: sev,
		Message:  msg,
		Kind:     domain.KindEntity,
		ID:       id,
		Relation: rel,
		TargetID: target,
	}
}
