package cli

import (
	"fmt"
	"labcore/pkg/domain"
	"strconv"
	"strings"
	"time"
)

// parseValue reads a "name=type:data" flag, e.g. "cycles=number:40" or
// "machine=text:QS5". The type defaults to text.
func parseValue(s string) (domain.Value, error) {
	name, raw, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return domain.Value{}, fmt.Errorf("value %q: want name=type:data", s)
	}
	kind, data, ok := strings.Cut(raw, ":")
	if !ok {
		kind, data = string(domain.ValueText), raw
	}
	v := domain.Value{Identifier: name, Name: name}
	switch domain.ValueType(kind) {
	case domain.ValueNumber:
		n, err := strconv.ParseFloat(data, 64)
		if err != nil {
			return domain.Value{}, fmt.Errorf("value %q: %w", s, err)
		}
		v.Data = domain.NumberData(n)
	case domain.ValueText:
		v.Data = domain.TextData(data)
	case domain.ValueURL:
		v.Data = domain.URLData(data)
	case domain.ValueDate:
		t, err := time.Parse(time.DateOnly, data)
		if err != nil {
			if t, err = time.Parse(time.RFC3339, data); err != nil {
				return domain.Value{}, fmt.Errorf("value %q: date must be YYYY-MM-DD or RFC 3339", s)
			}
		}
		v.Data = domain.DateData(t.UTC())
	case domain.ValueEntity:
		v.Data = domain.EntityData(domain.Reference{ID: data})
	case domain.ValueSelect:
		options := strings.Split(data, "|")
		v.Data = domain.SelectData{Selected: options[0], Options: options}
	default:
		// Not a known type, so the colon belongs to the text.
		v.Data = domain.TextData(raw)
	}
	return v, nil
}

func parseValues(flags []string) ([]domain.Value, error) {
	values := make([]domain.Value, 0, len(flags))
	for _, f := range flags {
		v, err := parseValue(f)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func references(ids []string) []domain.Reference {
	refs := make([]domain.Reference, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, domain.Reference{ID: id})
	}
	return refs
}
