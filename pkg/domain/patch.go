package domain

import (
	"encoding/json"
	"reflect"
	"slices"
)

// Patch describes a partial update of a document. Apply is used by stores that
// rewrite whole documents; Fields lists the same change as dotted document
// paths for stores that update fields natively.
type Patch[T any] interface {
	Apply(T) T
	Fields() map[string]any
}

// EntityPatch sets the non-nil fields of an entity.
type EntityPatch struct {
	Name        *string
	Description *string
	Deleted     *bool
	Locked      *bool
	Collections *[]string
	Origins     *[]Reference
	Products    *[]Reference
	Attributes  *[]Attribute
	Attachments *[]Reference
	History     *[]EntityHistory
}

// SetReferences stages list as the new value of rel, which must be
// RelationOrigins or RelationProducts.
func (p *EntityPatch) SetReferences(rel Relation, list []Reference) {
	if rel == RelationProducts {
		p.Products = &list
		return
	}
	p.Origins = &list
}

// Empty reports whether p changes nothing.
func (p EntityPatch) Empty() bool {
	return len(p.Fields()) == 0
}

// Apply returns a copy of e with the patch applied.
func (p EntityPatch) Apply(e Entity) Entity {
	out := e.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Deleted != nil {
		out.Deleted = *p.Deleted
	}
	if p.Locked != nil {
		out.Locked = *p.Locked
	}
	if p.Collections != nil {
		out.Collections = slices.Clone(*p.Collections)
	}
	if p.Origins != nil {
		out.Associations.Origins = slices.Clone(*p.Origins)
	}
	if p.Products != nil {
		out.Associations.Products = slices.Clone(*p.Products)
	}
	if p.Attributes != nil {
		out.Attributes = cloneAttributes(*p.Attributes)
	}
	if p.Attachments != nil {
		out.Attachments = slices.Clone(*p.Attachments)
	}
	if p.History != nil {
		out.History = Entity{History: *p.History}.Clone().History
	}
	return out
}

// Fields returns the patch keyed by document field path.
func (p EntityPatch) Fields() map[string]any {
	fields := make(map[string]any)
	setField(fields, "name", p.Name)
	setField(fields, "description", p.Description)
	setField(fields, "deleted", p.Deleted)
	setField(fields, "locked", p.Locked)
	setField(fields, "collections", p.Collections)
	setField(fields, "associations.origins", p.Origins)
	setField(fields, "associations.products", p.Products)
	setField(fields, "attributes", p.Attributes)
	setField(fields, "attachments", p.Attachments)
	setField(fields, "history", p.History)
	return fields
}

// CollectionPatch sets the non-nil fields of a collection.
type CollectionPatch struct {
	Name        *string
	Type        *CollectionType
	Description *string
	Entities    *[]string
	Collections *[]string
	History     *[]CollectionHistory
}

// Apply returns a copy of c with the patch applied.
func (p CollectionPatch) Apply(c Collection) Collection {
	out := c.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Type != nil {
		out.Type = *p.Type
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Entities != nil {
		out.Entities = slices.Clone(*p.Entities)
	}
	if p.Collections != nil {
		out.Collections = slices.Clone(*p.Collections)
	}
	if p.History != nil {
		out.History = Collection{History: *p.History}.Clone().History
	}
	return out
}

// Fields returns the patch keyed by document field path.
func (p CollectionPatch) Fields() map[string]any {
	fields := make(map[string]any)
	setField(fields, "name", p.Name)
	setField(fields, "type", p.Type)
	setField(fields, "description", p.Description)
	setField(fields, "entities", p.Entities)
	setField(fields, "collections", p.Collections)
	setField(fields, "history", p.History)
	return fields
}

// AttributePatch sets the non-nil fields of an attribute template.
type AttributePatch struct {
	Name        *string
	Description *string
	Archived    *bool
	Values      *[]Value
}

// Apply returns a copy of a with the patch applied.
func (p AttributePatch) Apply(a Attribute) Attribute {
	out := a.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Archived != nil {
		out.Archived = *p.Archived
	}
	if p.Values != nil {
		out.Values = Attribute{Values: *p.Values}.Clone().Values
	}
	return out
}

// Fields returns the patch keyed by document field path.
func (p AttributePatch) Fields() map[string]any {
	fields := make(map[string]any)
	setField(fields, "name", p.Name)
	setField(fields, "description", p.Description)
	setField(fields, "archived", p.Archived)
	setField(fields, "values", p.Values)
	return fields
}

func setField[V any](fields map[string]any, path string, v *V) {
	if v != nil {
		fields[path] = *v
	}
}

// SameDocument reports whether a and b have identical stored representations.
// Empty and nil lists are considered equal.
func SameDocument(a, b any) bool {
	ca, err := canonical(a)
	if err != nil {
		return false
	}
	cb, err := canonical(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(ca, cb)
}

func canonical(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return dropEmpty(out), nil
}

func dropEmpty(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if val == nil {
				delete(t, k)
				continue
			}
			if list, ok := val.([]any); ok && len(list) == 0 {
				delete(t, k)
				continue
			}
			t[k] = dropEmpty(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = dropEmpty(t[i])
		}
		return t
	default:
		return v
	}
}
