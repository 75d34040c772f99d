package document

import (
	"encoding/json"
	"fmt"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Sequence
	Mapping
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Sequence:
		return "sequence"
	case Mapping:
		return "mapping"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is one node of a document tree.
//
// The zero Value is null. Values are not safe for concurrent mutation.
type Value struct {
	kind Kind
	b    bool
	n    json.Number
	s    string
	seq  []*Value
	obj  *orderedmap.OrderedMap[string, *Value]
}

// NewNull returns a null value.
func NewNull() *Value {
	return &Value{}
}

// NewBool returns a boolean value.
func NewBool(b bool) *Value {
	return &Value{kind: Bool, b: b}
}

// NewNumber returns a number value holding the literal n.
func NewNumber(n json.Number) *Value {
	return &Value{kind: Number, n: n}
}

// NewInt returns a number value holding i.
func NewInt(i int64) *Value {
	return &Value{kind: Number, n: json.Number(strconv.FormatInt(i, 10))}
}

// NewString returns a string value.
func NewString(s string) *Value {
	return &Value{kind: String, s: s}
}

// NewSequence returns a sequence holding elems.
func NewSequence(elems ...*Value) *Value {
	if elems == nil {
		elems = []*Value{}
	}
	return &Value{kind: Sequence, seq: elems}
}

// NewMapping returns an empty mapping.
func NewMapping() *Value {
	return &Value{kind: Mapping, obj: orderedmap.New[string, *Value]()}
}

// Kind returns the variant held by v.
func (v *Value) Kind() Kind {
	return v.kind
}

// IsNull reports whether v is null.
func (v *Value) IsNull() bool {
	return v.kind == Null
}

// Bool returns the boolean held by v.
func (v *Value) Bool() (bool, bool) {
	return v.b, v.kind == Bool
}

// Number returns the number literal held by v.
func (v *Value) Number() (json.Number, bool) {
	return v.n, v.kind == Number
}

// Int returns the number held by v when it is an integer that fits in int64.
func (v *Value) Int() (int64, bool) {
	if v.kind != Number {
		return 0, false
	}
	i, err := strconv.ParseInt(string(v.n), 10, 64)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Float returns the number held by v as a float64.
func (v *Value) Float() (float64, bool) {
	if v.kind != Number {
		return 0, false
	}
	f, err := v.n.Float64()
	if err != nil {
		return 0, false
	}
	return f, true
}

// Str returns the string held by v.
func (v *Value) Str() (string, bool) {
	return v.s, v.kind == String
}

// Len returns the number of elements of a sequence or entries of a mapping.
func (v *Value) Len() int {
	switch v.kind {
	case Sequence:
		return len(v.seq)
	case Mapping:
		return v.obj.Len()
	default:
		return 0
	}
}

// Elements returns the elements of a sequence, or nil.
//
// The returned slice aliases the sequence; modifying its elements modifies v.
func (v *Value) Elements() []*Value {
	if v.kind != Sequence {
		return nil
	}
	return v.seq
}

// Keys returns the keys of a mapping in insertion order.
func (v *Value) Keys() []string {
	if v.kind != Mapping {
		return nil
	}
	keys := make([]string, 0, v.obj.Len())
	for p := v.obj.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Get returns the child of a mapping stored under key.
func (v *Value) Get(key string) (*Value, bool) {
	if v.kind != Mapping {
		return nil, false
	}
	return v.obj.Get(key)
}

// Set stores child under key. An existing key keeps its position.
func (v *Value) Set(key string, child *Value) error {
	if v.kind != Mapping {
		return fmt.Errorf("cannot set key %q on %s", key, v.kind)
	}
	v.obj.Set(key, child)
	return nil
}

// Delete removes key from a mapping and reports whether it was present.
func (v *Value) Delete(key string) bool {
	if v.kind != Mapping {
		return false
	}
	_, ok := v.obj.Delete(key)
	return ok
}

// Append adds child at the end of a sequence.
func (v *Value) Append(child *Value) error {
	if v.kind != Sequence {
		return fmt.Errorf("cannot append to %s", v.kind)
	}
	v.seq = append(v.seq, child)
	return nil
}

// RemoveAt removes the element at position i of a sequence.
func (v *Value) RemoveAt(i int) error {
	if v.kind != Sequence {
		return fmt.Errorf("cannot remove index from %s", v.kind)
	}
	if i < 0 || i >= len(v.seq) {
		return fmt.Errorf("index %d out of range [0,%d)", i, len(v.seq))
	}
	v.seq = append(v.seq[:i], v.seq[i+1:]...)
	return nil
}

// Replace overwrites v in place with the content of other.
//
// Handles pointing at v observe the new content. other must not be used
// afterwards since v now shares its children.
func (v *Value) Replace(other *Value) {
	*v = *other
}

// Clone returns a deep copy of v.
func (v *Value) Clone() *Value {
	switch v.kind {
	case Sequence:
		seq := make([]*Value, len(v.seq))
		for i, e := range v.seq {
			seq[i] = e.Clone()
		}
		return &Value{kind: Sequence, seq: seq}
	case Mapping:
		c := NewMapping()
		for p := v.obj.Oldest(); p != nil; p = p.Next() {
			c.obj.Set(p.Key, p.Value.Clone())
		}
		return c
	default:
		c := *v
		return &c
	}
}

// Equal reports whether a and b are structurally equal.
//
// Mapping key order is not significant. Numbers compare equal when their
// literals match or when both parse to the same float64.
func Equal(a, b *Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Number:
		if a.n == b.n {
			return true
		}
		fa, erra := a.n.Float64()
		fb, errb := b.n.Float64()
		return erra == nil && errb == nil && fa == fb
	case String:
		return a.s == b.s
	case Sequence:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case Mapping:
		if a.obj.Len() != b.obj.Len() {
			return false
		}
		for p := a.obj.Oldest(); p != nil; p = p.Next() {
			o, ok := b.obj.Get(p.Key)
			if !ok || !Equal(p.Value, o) {
				return false
			}
		}
		return true
	}
	return false
}
