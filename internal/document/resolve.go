package document

import (
	"errors"
	"fmt"
	"strconv"
)

// IDField is the mapping key holding a sequence element's logical id.
const IDField = "id"

// ErrNotFound matches every *NotFoundError with errors.Is.
var ErrNotFound = errors.New("not found")

// NotFoundError reports the path segment that did not resolve.
type NotFoundError struct {
	Segment string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("path segment %q not found", e.Segment)
}

// Is makes errors.Is(err, ErrNotFound) succeed.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Resolve returns the node designated by path starting at v.
//
// An empty path designates v itself. path is not modified.
func Resolve(v *Value, path []string) (*Value, error) {
	if len(path) == 0 {
		return v, nil
	}
	seg := path[0]
	child, ok := v.child(seg)
	if !ok {
		return nil, &NotFoundError{Segment: seg}
	}
	return Resolve(child, path[1:])
}

// child returns the direct child of v addressed by seg.
func (v *Value) child(seg string) (*Value, bool) {
	switch v.kind {
	case Sequence:
		id, ok := ParseID(seg)
		if !ok {
			return nil, false
		}
		i, ok := FindID(v.seq, id)
		if !ok {
			return nil, false
		}
		return v.seq[i], true
	case Mapping:
		return v.obj.Get(seg)
	default:
		return nil, false
	}
}

// ParseID parses a path segment as a base 10 logical id.
//
// ok is false when seg is not an integer; such a segment matches no element,
// including one whose id is negative.
func ParseID(seg string) (id int64, ok bool) {
	id, err := strconv.ParseInt(seg, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ElementID returns the logical id of a sequence element.
//
// ok is false when e is not a mapping or has no integral "id" field.
func ElementID(e *Value) (int64, bool) {
	f, ok := e.Get(IDField)
	if !ok {
		return 0, false
	}
	return f.Int()
}

// FindID returns the position of the first element of seq whose logical id
// equals id. Elements without a usable id are skipped.
func FindID(seq []*Value, id int64) (int, bool) {
	for i, e := range seq {
		if got, ok := ElementID(e); ok && got == id {
			return i, true
		}
	}
	return -1, false
}

// NextID returns one more than the largest logical id in seq, or 1.
func NextID(seq []*Value) int64 {
	var next int64 = 1
	for _, e := range seq {
		if id, ok := ElementID(e); ok && id >= next {
			next = id + 1
		}
	}
	return next
}

// Remove deletes the child of parent addressed by seg: a key of a mapping or
// the element of a sequence with the matching logical id.
func Remove(parent *Value, seg string) error {
	switch parent.kind {
	case Sequence:
		if id, ok := ParseID(seg); ok {
			if i, ok := FindID(parent.seq, id); ok {
				return parent.RemoveAt(i)
			}
		}
	case Mapping:
		if parent.Delete(seg) {
			return nil
		}
	default:
	}
	return &NotFoundError{Segment: seg}
}

// MergePatch applies an RFC 7396 merge patch to target in place.
//
// Existing keys keep their position; new keys are appended in patch order.
func MergePatch(target, patch *Value) {
	if patch.kind != Mapping {
		target.Replace(patch.Clone())
		return
	}
	if target.kind != Mapping {
		target.Replace(NewMapping())
	}
	for p := patch.obj.Oldest(); p != nil; p = p.Next() {
		if p.Value.kind == Null {
			target.obj.Delete(p.Key)
			continue
		}
		cur, ok := target.obj.Get(p.Key)
		if !ok {
			cur = NewNull()
			target.obj.Set(p.Key, cur)
		}
		MergePatch(cur, p.Value)
	}
}
