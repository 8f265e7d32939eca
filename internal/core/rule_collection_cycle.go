package core

import (
	"context"
	"fmt"
	"labcore/pkg/domain"
	"sort"
)

const collectionCycleRuleName = "collection_cycle"

// CollectionCycleRule reports collections that are their own descendant and,
// at log severity, child links to collections that no longer exist.
func CollectionCycleRule() domain.Rule {
	return collectionCycleRule{}
}

type collectionCycleRule struct{}

func (collectionCycleRule) Name() string { return collectionCycleRuleName }

func (collectionCycleRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	res := domain.Result{}
	const (
		unvisited = iota
		active
		done
	)
	state := make(map[string]int)
	reported := make(map[string]struct{})
	var visit func(id string, path []string)
	visit = func(id string, path []string) {
		state[id] = active
		c, _ := view.FindCollection(id)
		for _, child := range c.Collections {
			if _, ok := view.FindCollection(child); !ok {
				continue
			}
			switch state[child] {
			case active:
				cycle := cycleFrom(append(path, id), child)
				key := cycleKey(cycle)
				if _, seen := reported[key]; !seen {
					reported[key] = struct{}{}
					res.Violations = append(res.Violations, domain.Violation{
						Rule:     collectionCycleRuleName,
						Severity: domain.SeverityBlock,
						Message:  fmt.Sprintf("collection nesting forms a cycle: %v", append(cycle, child)),
						Kind:     domain.KindCollection,
						ID:       child,
					})
				}
			case unvisited:
				visit(child, append(path, id))
			}
		}
		state[id] = done
	}
	for _, c := range view.ListCollections() {
		for _, child := range c.Collections {
			if _, ok := view.FindCollection(child); !ok {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     collectionCycleRuleName,
					Severity: domain.SeverityLog,
					Message:  fmt.Sprintf("collection %s nests missing collection %s", c.ID, child),
					Kind:     domain.KindCollection,
					ID:       c.ID,
					TargetID: child,
				})
			}
		}
		if state[c.ID] == unvisited {
			visit(c.ID, nil)
		}
	}
	return res, nil
}

// cycleFrom returns the suffix of path starting at id.
func cycleFrom(path []string, id string) []string {
	for i, p := range path {
		if p == id {
			return append([]string(nil), path[i:]...)
		}
	}
	return append([]string(nil), path...)
}

func cycleKey(cycle []string) string {
	sorted := append([]string(nil), cycle...)
	sort.Strings(sorted)
	return fmt.Sprint(sorted)
}
