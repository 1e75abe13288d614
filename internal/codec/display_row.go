package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DisplayRow is a flat, ordered row: metadata keys carry an underscore prefix, data keys are
// the column element keys. Key order is kept through JSON encoding and decoding.
type DisplayRow struct {
	keys   []string
	values map[string]any
}

// NewDisplayRow returns an empty row.
func NewDisplayRow() *DisplayRow {
	return &DisplayRow{values: map[string]any{}}
}

// Set stores value under key. New keys are appended; existing keys keep their position.
func (r *DisplayRow) Set(key string, value any) {
	if r.values == nil {
		r.values = map[string]any{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value of key and whether it is present.
func (r *DisplayRow) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// String returns the value of key formatted as text, "" when absent or null.
func (r *DisplayRow) String(key string) string {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Keys returns the keys in display order.
func (r *DisplayRow) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

// Len returns the number of keys.
func (r *DisplayRow) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// ID returns the row id (_id).
func (r *DisplayRow) ID() string {
	return r.String(KeyID)
}

// Clone returns a shallow copy; values are shared.
func (r *DisplayRow) Clone() *DisplayRow {
	if r == nil {
		return nil
	}
	out := &DisplayRow{keys: append([]string(nil), r.keys...), values: make(map[string]any, len(r.values))}
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// MarshalJSON writes the row as an object in key order.
func (r *DisplayRow) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, fmt.Errorf("failed to encode column '%s': %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping the order in which keys appear.
func (r *DisplayRow) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("display row must be a JSON object")
	}
	*r = DisplayRow{values: map[string]any{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in display row", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("failed to decode column '%s': %w", key, err)
		}
		r.Set(key, value)
	}
	_, err = dec.Token()
	return err
}
