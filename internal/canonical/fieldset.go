package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FieldSet is an insertion-ordered set of named values.
//
// A key that was never set, or was set to nil (including a nil pointer),
// is absent. Zero values such as 0, "" and false are present, and so is
// Null.
type FieldSet struct {
	keys   []string
	values map[string]any
}

// Null is a JSON null received from the gateway. It is present and renders
// as an empty value.
type Null struct{}

func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

func NewFieldSet() *FieldSet {
	return &FieldSet{values: make(map[string]any)}
}

// Set stores v under key. Re-setting a key keeps its original position.
// Setting nil removes the key.
func (f *FieldSet) Set(key string, v any) *FieldSet {
	v, ok := normalize(v)
	if !ok {
		f.Delete(key)
		return f
	}
	if _, exists := f.values[key]; !exists {
		f.keys = append(f.keys, key)
	}
	f.values[key] = v
	return f
}

func (f *FieldSet) Get(key string) (any, bool) {
	v, ok := f.values[key]
	return v, ok
}

// String returns the rendered value of key, or "" when absent.
func (f *FieldSet) String(key string) string {
	v, ok := f.values[key]
	if !ok {
		return ""
	}
	s, _ := render(v)
	return s
}

func (f *FieldSet) Has(key string) bool {
	_, ok := f.values[key]
	return ok
}

func (f *FieldSet) Delete(key string) {
	if _, ok := f.values[key]; !ok {
		return
	}
	delete(f.values, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i:i], f.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (f *FieldSet) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

func (f *FieldSet) Len() int {
	return len(f.keys)
}

// Clone returns a shallow copy.
func (f *FieldSet) Clone() *FieldSet {
	c := NewFieldSet()
	for _, k := range f.keys {
		c.keys = append(c.keys, k)
		c.values[k] = f.values[k]
	}
	return c
}

// Without returns a copy with the given keys removed.
func (f *FieldSet) Without(keys ...string) *FieldSet {
	c := f.Clone()
	for _, k := range keys {
		c.Delete(k)
	}
	return c
}

// Pick returns a copy holding only the given keys, in f's order.
func (f *FieldSet) Pick(keys ...string) *FieldSet {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}
	c := NewFieldSet()
	for _, k := range f.keys {
		if _, ok := allowed[k]; ok {
			c.Set(k, f.values[k])
		}
	}
	return c
}

// Merge sets every field of other on f, in other's order.
func (f *FieldSet) Merge(other *FieldSet) *FieldSet {
	if other == nil {
		return f
	}
	for _, k := range other.keys {
		f.Set(k, other.values[k])
	}
	return f
}

// Decode copies the fields into v through their JSON form.
func (f *FieldSet) Decode(v any) error {
	b, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding fields: %w", err)
	}
	return nil
}

// MarshalJSON writes the fields as a JSON object in insertion order.
func (f *FieldSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(f.values[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object keeping key order. Numbers are kept as
// json.Number so their text is canonicalized exactly as received; JSON null
// becomes Null.
func (f *FieldSet) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	parsed, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

func decodeObject(dec *json.Decoder) (*FieldSet, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading object: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}
	f := NewFieldSet()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		f.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("closing object: %w", err)
	}
	return f, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	if !dec.More() {
		return nil, fmt.Errorf("unexpected end of value")
	}
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}
	if bytes.Equal(raw, []byte("null")) {
		return Null{}, nil
	}
	switch raw[0] {
	case '{':
		inner := json.NewDecoder(bytes.NewReader(raw))
		inner.UseNumber()
		return decodeObject(inner)
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			inner := json.NewDecoder(bytes.NewReader(item))
			inner.UseNumber()
			v, err := decodeValue(inner)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		var v any
		inner := json.NewDecoder(bytes.NewReader(raw))
		inner.UseNumber()
		if err := inner.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	}
}
