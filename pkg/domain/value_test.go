package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func sampleValues() []Value {
	return []Value{
		{Identifier: "v1", Name: "Mass", Data: NumberData(12.5)},
		{Identifier: "v2", Name: "Notes", Data: TextData("thawed twice")},
		{Identifier: "v3", Name: "Protocol", Data: URLData("https://example.org/p/1")},
		{Identifier: "v4", Name: "Collected", Data: DateData(time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))},
		{Identifier: "v5", Name: "Parent", Data: EntityData{ID: "e1", Name: "Stock"}},
		{Identifier: "v6", Name: "Tissue", Data: SelectData{Selected: "liver", Options: []string{"liver", "heart"}}},
	}
}

func TestValueJSONCarriesTypeTag(t *testing.T) {
	raw, err := json.Marshal(Value{Identifier: "v1", Name: "Mass", Data: NumberData(3)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if wire["type"] != "number" || wire["data"] != float64(3) || wire["identifier"] != "v1" {
		t.Fatalf("unexpected wire form %s", raw)
	}
}

func TestValueCodecsPreserveVariants(t *testing.T) {
	attr := Attribute{ID: "a1", Name: "Sample", Values: sampleValues()}

	raw, err := json.Marshal(attr)
	if err != nil {
		t.Fatalf("json marshal: %v", err)
	}
	var fromJSON Attribute
	if err := json.Unmarshal(raw, &fromJSON); err != nil {
		t.Fatalf("json unmarshal: %v", err)
	}

	doc, err := bson.Marshal(attr)
	if err != nil {
		t.Fatalf("bson marshal: %v", err)
	}
	var fromBSON Attribute
	if err := bson.Unmarshal(doc, &fromBSON); err != nil {
		t.Fatalf("bson unmarshal: %v", err)
	}

	for name, decoded := range map[string]Attribute{"json": fromJSON, "bson": fromBSON} {
		if len(decoded.Values) != len(attr.Values) {
			t.Fatalf("%s: expected %d values, got %d", name, len(attr.Values), len(decoded.Values))
		}
		for i, want := range attr.Values {
			got := decoded.Values[i]
			if got.Type() != want.Type() || got.Identifier != want.Identifier {
				t.Fatalf("%s: value %d mismatch: %+v vs %+v", name, i, got, want)
			}
		}
		when := time.Time(decoded.Values[3].Data.(DateData))
		if !when.Equal(time.Time(attr.Values[3].Data.(DateData))) {
			t.Fatalf("%s: date drifted to %v", name, when)
		}
		sel := decoded.Values[5].Data.(SelectData)
		if sel.Selected != "liver" || len(sel.Options) != 2 {
			t.Fatalf("%s: select lost data: %+v", name, sel)
		}
		if ref := decoded.Values[4].Data.(EntityData); ref.ID != "e1" {
			t.Fatalf("%s: entity reference lost: %+v", name, ref)
		}
	}
}

func TestValueRejectsUnknownType(t *testing.T) {
	var v Value
	err := json.Unmarshal([]byte(`{"identifier":"x","name":"x","type":"colour","data":"red"}`), &v)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestValueCloneCopiesOptions(t *testing.T) {
	v := Value{Identifier: "s", Data: SelectData{Selected: "a", Options: []string{"a", "b"}}}
	c := v.Clone()
	c.Data.(SelectData).Options[0] = "z"
	if v.Data.(SelectData).Options[0] != "a" {
		t.Fatalf("clone shares options with original")
	}
}
