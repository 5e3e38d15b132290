package domain

import (
	"bytes"
	"encoding/json"
)

var jsonNull = []byte("null")

// Field holds one raw JSON member of a request body.
// The zero value means the member was absent.
type Field struct {
	Present bool
	Raw     json.RawMessage
}

// UnmarshalJSON is also called for an explicit null, which is how presence is tracked.
func (f *Field) UnmarshalJSON(b []byte) error {
	f.Present = true
	f.Raw = append(f.Raw[:0], b...)
	return nil
}

// IsNull reports an explicit JSON null.
func (f Field) IsNull() bool {
	return f.Present && bytes.Equal(bytes.TrimSpace(f.Raw), jsonNull)
}

// Missing reports an absent or null member.
func (f Field) Missing() bool {
	return !f.Present || f.IsNull()
}

// Text decodes the member as a JSON string.
func (f Field) Text() (string, bool) {
	if f.Missing() {
		return "", false
	}
	var s string
	if err := json.Unmarshal(f.Raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Int decodes the member as a JSON integer. Fractions and strings are rejected.
func (f Field) Int() (int, bool) {
	if f.Missing() {
		return 0, false
	}
	dec := json.NewDecoder(bytes.NewReader(f.Raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	i, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return int(i), true
}

// StringField builds a present field holding s. Handy for callers that
// assemble inputs in code rather than decoding them.
func StringField(s string) Field {
	raw, _ := json.Marshal(s)
	return Field{Present: true, Raw: raw}
}

// IntField builds a present field holding n.
func IntField(n int) Field {
	raw, _ := json.Marshal(n)
	return Field{Present: true, Raw: raw}
}

// NullField builds an explicit null.
func NullField() Field {
	return Field{Present: true, Raw: append(json.RawMessage(nil), jsonNull...)}
}
