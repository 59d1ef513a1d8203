// Package payload models provider JSON as a closed set of value types and
// decrypts the individually encrypted leaves PrivatBank sends.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is one of String, Number, Bool, List, Map or Null.
type Value interface {
	isValue()
}

type (
	String string
	Number json.Number
	Bool   bool
	List   []Value
	Map    map[string]Value
	Null   struct{}
)

func (String) isValue() {}
func (Number) isValue() {}
func (Bool) isValue()   {}
func (List) isValue()   {}
func (Map) isValue()    {}
func (Null) isValue()   {}

// Decode parses JSON into a Value, keeping numbers as json.Number.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromJSON(raw)
}

// FromJSON converts the output of encoding/json into a Value.
func FromJSON(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null{}, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case float64:
		return Number(json.Number(fmt.Sprint(t))), nil
	case []any:
		out := make(List, 0, len(t))
		for _, e := range t {
			ev, err := FromJSON(e)
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
		return out, nil
	case map[string]any:
		out := make(Map, len(t))
		for k, e := range t {
			ev, err := FromJSON(e)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	default:
		return nil, fmt.Errorf("payload: unsupported json type %T", v)
	}
}

// ToJSON converts a Value back into plain Go values.
func ToJSON(v Value) any {
	switch t := v.(type) {
	case String:
		return string(t)
	case Number:
		return json.Number(t)
	case Bool:
		return bool(t)
	case List:
		out := make([]any, 0, len(t))
		for _, e := range t {
			out = append(out, ToJSON(e))
		}
		return out
	case Map:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = ToJSON(e)
		}
		return out
	default:
		return nil
	}
}

// StringAt returns the string stored under key, if it is a String.
func (m Map) StringAt(key string) (string, bool) {
	s, ok := m[key].(String)
	return string(s), ok
}

// MapAt returns the nested map stored under key.
func (m Map) MapAt(key string) (Map, bool) {
	n, ok := m[key].(Map)
	return n, ok
}

// ListAt returns the list stored under key.
func (m Map) ListAt(key string) (List, bool) {
	l, ok := m[key].(List)
	return l, ok
}

// Has reports whether key is present, whatever its value.
func (m Map) Has(key string) bool {
	_, ok := m[key]
	return ok
}
