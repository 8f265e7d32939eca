package core

import (
	"context"
	"fmt"
	"labcore/pkg/domain"
	"slices"
)

const collectionMembershipRuleName = "collection_membership"

// CollectionMembershipRule reports membership recorded on only one side of an
// entity/collection pair.
func CollectionMembershipRule() domain.Rule {
	return collectionMembershipRule{}
}

type collectionMembershipRule struct{}

func (collectionMembershipRule) Name() string { return collectionMembershipRuleName }

func (collectionMembershipRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	res := domain.Result{}
	for _, e := range view.ListEntities() {
		for _, cid := range e.Collections {
			c, ok := view.FindCollection(cid)
			switch {
			case !ok:
				res.Violations = append(res.Violations, membershipViolation(domain.KindEntity, e.ID, domain.RelationCollections, cid,
					fmt.Sprintf("entity %s is in missing collection %s", e.ID, cid)))
			case !slices.Contains(c.Entities, e.ID):
				res.Violations = append(res.Violations, membershipViolation(domain.KindEntity, e.ID, domain.RelationCollections, cid,
					fmt.Sprintf("entity %s lists collection %s which does not list it", e.ID, cid)))
			}
		}
	}
	for _, c := range view.ListCollections() {
		for _, eid := range c.Entities {
			e, ok := view.FindEntity(eid)
			switch {
			case !ok:
				res.Violations = append(res.Violations, membershipViolation(domain.KindCollection, c.ID, domain.RelationEntities, eid,
					fmt.Sprintf("collection %s lists missing entity %s", c.ID, eid)))
			case !slices.Contains(e.Collections, c.ID):
				res.Violations = append(res.Violations, membershipViolation(domain.KindCollection, c.ID, domain.RelationEntities, eid,
					fmt.Sprintf("collection %s lists entity %s which does not list it", c.ID, eid)))
			}
		}
	}
	return res, nil
}

func membershipViolation(kind domain.Kind, id string, rel domain.Relation, target, msg string) domain.Violation {
	return domain.Violation{
		Rule:     collectionMembershipRuleName,
		Severity: domain.SeverityWarn,
		Message:  msg,
		Kind:     kind,
		ID:       id,
		Relation: rel,
		TargetID: target,
	}
}
