package domain

import "slices"

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	if sel, ok := v.Data.(SelectData); ok {
		sel.Options = slices.Clone(sel.Options)
		v.Data = sel
	}
	return v
}

// Clone returns a deep copy of a.
func (a Attribute) Clone() Attribute {
	if a.Values != nil {
		values := make([]Value, len(a.Values))
		for i, v := range a.Values {
			values[i] = v.Clone()
		}
		a.Values = values
	}
	return a
}

// Clone returns a deep copy of a.
func (a Associations) Clone() Associations {
	return Associations{Origins: slices.Clone(a.Origins), Products: slices.Clone(a.Products)}
}

func cloneAttributes(in []Attribute) []Attribute {
	if in == nil {
		return nil
	}
	out := make([]Attribute, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

// Clone returns a deep copy of h.
func (h EntityHistory) Clone() EntityHistory {
	h.Collections = slices.Clone(h.Collections)
	h.Associations = h.Associations.Clone()
	h.Attributes = cloneAttributes(h.Attributes)
	h.Attachments = slices.Clone(h.Attachments)
	return h
}

// Clone returns a deep copy of e.
func (e Entity) Clone() Entity {
	e.Collections = slices.Clone(e.Collections)
	e.Associations = e.Associations.Clone()
	e.Attributes = cloneAttributes(e.Attributes)
	e.Attachments = slices.Clone(e.Attachments)
	if e.History != nil {
		history := make([]EntityHistory, len(e.History))
		for i, h := range e.History {
			history[i] = h.Clone()
		}
		e.History = history
	}
	return e
}

// Clone returns a deep copy of c.
func (c Collection) Clone() Collection {
	c.Entities = slices.Clone(c.Entities)
	c.Collections = slices.Clone(c.Collections)
	if c.History != nil {
		history := make([]CollectionHistory, len(c.History))
		for i, h := range c.History {
			h.Entities = slices.Clone(h.Entities)
			h.Collections = slices.Clone(h.Collections)
			history[i] = h
		}
		c.History = history
	}
	return c
}

// Clone returns a copy of a. Activity has no shared state.
func (a Activity) Clone() Activity { return a }

// Clone returns a copy of p. PendingWrite has no shared state.
func (p PendingWrite) Clone() PendingWrite { return p }
