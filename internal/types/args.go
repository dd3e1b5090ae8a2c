package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Args holds a tool call's arguments in the order the model produced them.
// Standard map decoding would lose that order, and policy previews render
// arguments in their natural order, so decoding goes through the token
// stream instead.
type Args struct {
	pairs []Pair
	index map[string]int
}

// Pair is a single named argument.
type Pair struct {
	Key   string
	Value any
}

// NewArgs builds Args from ordered pairs. Later duplicates overwrite
// earlier values but keep the original position.
func NewArgs(pairs ...Pair) Args {
	a := Args{index: make(map[string]int, len(pairs))}
	for _, p := range pairs {
		a.Set(p.Key, p.Value)
	}
	return a
}

// Set inserts or overwrites a value, preserving first-insertion order.
func (a *Args) Set(key string, value any) {
	if a.index == nil {
		a.index = make(map[string]int)
	}
	if i, ok := a.index[key]; ok {
		a.pairs[i].Value = value
		return
	}
	a.index[key] = len(a.pairs)
	a.pairs = append(a.pairs, Pair{Key: key, Value: value})
}

// Get returns the value for key.
func (a Args) Get(key string) (any, bool) {
	i, ok := a.index[key]
	if !ok {
		return nil, false
	}
	return a.pairs[i].Value, true
}

// String returns the value for key if it is a string.
func (a Args) String(key string) (string, bool) {
	v, ok := a.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Pairs returns the arguments in insertion order.
func (a Args) Pairs() []Pair { return a.pairs }

// Len returns the number of arguments.
func (a Args) Len() int { return len(a.pairs) }

// Map returns an order-less copy for callers that only need lookup.
func (a Args) Map() map[string]any {
	m := make(map[string]any, len(a.pairs))
	for _, p := range a.pairs {
		m[p.Key] = p.Value
	}
	return m
}

// UnmarshalJSON decodes a JSON object preserving key order.
func (a *Args) UnmarshalJSON(data []byte) error {
	*a = Args{index: make(map[string]int)}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("args: expected JSON object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("args: expected object key, got %v", keyTok)
		}
		var val any
		if err := dec.Decode(&val); err != nil {
			return err
		}
		a.Set(key, normalizeNumbers(val))
	}

	// Consume closing brace.
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalJSON encodes the arguments as a JSON object in insertion order.
func (a Args) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range a.pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// normalizeNumbers converts json.Number values back to float64 so argument
// values compare naturally, while nested containers keep their structure.
func normalizeNumbers(v any) any {
	switch n := v.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case []any:
		for i, e := range n {
			n[i] = normalizeNumbers(e)
		}
		return n
	case map[string]any:
		for k, e := range n {
			n[k] = normalizeNumbers(e)
		}
		return n
	default:
		return v
	}
}
