package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// ValueType tags the shape of a Value's data.
type ValueType string

// Supported value types.
const (
	ValueNumber ValueType = "number"
	ValueText   ValueType = "text"
	ValueURL    ValueType = "url"
	ValueDate   ValueType = "date"
	ValueEntity ValueType = "entity"
	ValueSelect ValueType = "select"
)

// ValueData is the payload of a Value. The set of implementations is closed.
type ValueData interface {
	ValueType() ValueType
	valueData()
}

// NumberData is a numeric value.
type NumberData float64

// TextData is free text.
type TextData string

// URLData is a link.
type URLData string

// DateData is a calendar timestamp.
type DateData time.Time

// EntityData points at another entity.
type EntityData Reference

// SelectData is a choice among fixed options.
type SelectData struct {
	Selected string   `json:"selected" bson:"selected"`
	Options  []string `json:"options" bson:"options"`
}

func (NumberData) ValueType() ValueType { return ValueNumber }
func (TextData) ValueType() ValueType   { return ValueText }
func (URLData) ValueType() ValueType    { return ValueURL }
func (DateData) ValueType() ValueType   { return ValueDate }
func (EntityData) ValueType() ValueType { return ValueEntity }
func (SelectData) ValueType() ValueType { return ValueSelect }

func (NumberData) valueData() {}
func (TextData) valueData()   {}
func (URLData) valueData()    {}
func (DateData) valueData()   {}
func (EntityData) valueData() {}
func (SelectData) valueData() {}

// Value is one typed datum inside an attribute.
type Value struct {
	Identifier string
	Name       string
	Data       ValueData
}

// Type returns the tag of v's data, or "" when v carries none.
func (v Value) Type() ValueType {
	if v.Data == nil {
		return ""
	}
	return v.Data.ValueType()
}

type valueJSON struct {
	Identifier string          `json:"identifier"`
	Name       string          `json:"name"`
	Type       ValueType       `json:"type"`
	Data       json.RawMessage `json:"data"`
}

type valueBSON struct {
	Identifier string        `bson:"identifier"`
	Name       string        `bson:"name"`
	Type       ValueType     `bson:"type"`
	Data       bson.RawValue `bson:"data"`
}

// plain converts data into the natural Go value used by both codecs.
func plain(data ValueData) any {
	switch d := data.(type) {
	case NumberData:
		return float64(d)
	case TextData:
		return string(d)
	case URLData:
		return string(d)
	case DateData:
		return time.Time(d).UTC()
	case EntityData:
		return Reference(d)
	case SelectData:
		return d
	default:
		return nil
	}
}

// decodeData builds typed data for t by letting decode fill the natural Go value.
func decodeData(t ValueType, decode func(any) error) (ValueData, error) {
	switch t {
	case "":
		return nil, nil
	case ValueNumber:
		var n float64
		if err := decode(&n); err != nil {
			return nil, err
		}
		return NumberData(n), nil
	case ValueText, ValueURL:
		var s string
		if err := decode(&s); err != nil {
			return nil, err
		}
		if t == ValueURL {
			return URLData(s), nil
		}
		return TextData(s), nil
	case ValueDate:
		var ts time.Time
		if err := decode(&ts); err != nil {
			return nil, err
		}
		return DateData(ts), nil
	case ValueEntity:
		var ref Reference
		if err := decode(&ref); err != nil {
			return nil, err
		}
		return EntityData(ref), nil
	case ValueSelect:
		var sel SelectData
		if err := decode(&sel); err != nil {
			return nil, err
		}
		return sel, nil
	default:
		return nil, fmt.Errorf("%w: unknown value type %q", ErrInvalid, t)
	}
}

// MarshalJSON encodes v as {identifier, name, type, data}.
func (v Value) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(plain(v.Data))
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Identifier: v.Identifier, Name: v.Name, Type: v.Type(), Data: data})
}

// UnmarshalJSON decodes the tagged wire form.
func (v *Value) UnmarshalJSON(b []byte) error {
	var wire valueJSON
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	data, err := decodeData(wire.Type, func(dst any) error {
		if len(wire.Data) == 0 || string(wire.Data) == "null" {
			return fmt.Errorf("%w: value %q has no data", ErrInvalid, wire.Identifier)
		}
		return json.Unmarshal(wire.Data, dst)
	})
	if err != nil {
		return fmt.Errorf("decode value %q: %w", wire.Identifier, err)
	}
	*v = Value{Identifier: wire.Identifier, Name: wire.Name, Data: data}
	return nil
}

// MarshalBSON encodes v as a document with the same layout as the JSON form.
func (v Value) MarshalBSON() ([]byte, error) {
	return bson.Marshal(struct {
		Identifier string    `bson:"identifier"`
		Name       string    `bson:"name"`
		Type       ValueType `bson:"type"`
		Data       any       `bson:"data"`
	}{v.Identifier, v.Name, v.Type(), plain(v.Data)})
}

// UnmarshalBSON decodes the tagged document form.
func (v *Value) UnmarshalBSON(b []byte) error {
	var wire valueBSON
	if err := bson.Unmarshal(b, &wire); err != nil {
		return err
	}
	data, err := decodeData(wire.Type, wire.Data.Unmarshal)
	if err != nil {
		return fmt.Errorf("decode value %q: %w", wire.Identifier, err)
	}
	*v = Value{Identifier: wire.Identifier, Name: wire.Name, Data: data}
	return nil
}
