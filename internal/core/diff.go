package core

import (
	"labcore/pkg/domain"
	"slices"
)

// IDDiff is the outcome of comparing two id lists by identity.
type IDDiff struct {
	Add    []string
	Remove []string
	Keep   []string
}

// Empty reports whether the lists hold the same ids.
func (d IDDiff) Empty() bool { return len(d.Add) == 0 && len(d.Remove) == 0 }

// Result returns the list that replaces current: kept ids in current order
// followed by added ids in desired order.
func (d IDDiff) Result() []string {
	out := make([]string, 0, len(d.Keep)+len(d.Add))
	out = append(out, d.Keep...)
	return append(out, d.Add...)
}

// DiffIDs compares current against desired. Duplicates in either input are
// ignored.
func DiffIDs(current, desired []string) IDDiff {
	current, desired = uniqueIDs(current), uniqueIDs(desired)
	var d IDDiff
	for _, id := range current {
		if slices.Contains(desired, id) {
			d.Keep = append(d.Keep, id)
		} else {
			d.Remove = append(d.Remove, id)
		}
	}
	for _, id := range desired {
		if !slices.Contains(current, id) {
			d.Add = append(d.Add, id)
		}
	}
	return d
}

// RefDiff is the outcome of comparing two reference lists by id.
type RefDiff struct {
	Add    []domain.Reference
	Remove []domain.Reference
	Keep   []domain.Reference
}

// Empty reports whether the lists reference the same ids.
func (d RefDiff) Empty() bool { return len(d.Add) == 0 && len(d.Remove) == 0 }

// Result returns the list that replaces current. Kept references retain the
// name stored in current.
func (d RefDiff) Result() []domain.Reference {
	out := make([]domain.Reference, 0, len(d.Keep)+len(d.Add))
	out = append(out, d.Keep...)
	return append(out, d.Add...)
}

// DiffReferences compares current against desired by id only; a renamed
// reference is kept, not removed and re-added.
func DiffReferences(current, desired []domain.Reference) RefDiff {
	current, desired = uniqueRefs(current), uniqueRefs(desired)
	var d RefDiff
	for _, ref := range current {
		if containsRef(desired, ref.ID) {
			d.Keep = append(d.Keep, ref)
		} else {
			d.Remove = append(d.Remove, ref)
		}
	}
	for _, ref := range desired {
		if !containsRef(current, ref.ID) {
			d.Add = append(d.Add, ref)
		}
	}
	return d
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func uniqueRefs(refs []domain.Reference) []domain.Reference {
	out := make([]domain.Reference, 0, len(refs))
	for _, ref := range refs {
		if ref.ID != "" && !containsRef(out, ref.ID) {
			out = append(out, ref)
		}
	}
	return out
}

func containsRef(refs []domain.Reference, id string) bool {
	return slices.ContainsFunc(refs, func(r domain.Reference) bool { return r.ID == id })
}

func withID(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return slices.Clone(ids)
	}
	return append(slices.Clone(ids), id)
}

func withoutID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func withRef(refs []domain.Reference, ref domain.Reference) []domain.Reference {
	if containsRef(refs, ref.ID) {
		return slices.Clone(refs)
	}
	return append(slices.Clone(refs), ref)
}

func withoutRef(refs []domain.Reference, id string) []domain.Reference {
	out := make([]domain.Reference, 0, len(refs))
	for _, r := range refs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
