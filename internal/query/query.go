// Package query filters, sorts, paginates and projects collections.
//
// Parameters follow the usual mock REST API conventions:
//
//	?author=typicode           equality, repeated keys are OR-ed
//	?views_gte=10&views_lt=20  _ne _gt _gte _lt _lte _like suffixes
//	?_sort=author,-views       sort keys, "-" for descending
//	?_offset=10&_limit=5       pagination
//	?_fields=id,title          projection
//
// Field names may be dotted to reach into nested mappings ("author.name").
package query

import (
	"cmp"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/maruel/mockdb/internal/document"
)

// Op is a filter comparison operator.
type Op string

const (
	Eq   Op = "eq"
	Ne   Op = "ne"
	Gt   Op = "gt"
	Gte  Op = "gte"
	Lt   Op = "lt"
	Lte  Op = "lte"
	Like Op = "like"
)

var suffixes = []Op{Ne, Gte, Gt, Lte, Lt, Like}

// Filter keeps elements whose field satisfies Op against any of Values.
// For Ne the field must differ from all Values.
type Filter struct {
	Field  string
	Op     Op
	Values []string
}

// SortKey orders elements by a field.
type SortKey struct {
	Field string
	Desc  bool
}

// Query is a parsed set of collection parameters.
type Query struct {
	Filters []Filter
	Sort    []SortKey
	Offset  int
	// Limit is the maximum number of elements returned; -1 means all.
	Limit  int
	Fields []string
}

// Parse builds a Query from URL parameters.
func Parse(values url.Values) (*Query, error) {
	q := &Query{Limit: -1}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		vals := values[k]
		last := vals[len(vals)-1]
		switch k {
		case "_sort":
			for _, f := range splitList(last) {
				key := SortKey{Field: f}
				if name, ok := strings.CutPrefix(f, "-"); ok {
					key = SortKey{Field: name, Desc: true}
				}
				if key.Field == "" {
					return nil, fmt.Errorf("invalid _sort %q", last)
				}
				q.Sort = append(q.Sort, key)
			}
		case "_offset":
			n, err := strconv.Atoi(last)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid _offset %q", last)
			}
			q.Offset = n
		case "_limit":
			n, err := strconv.Atoi(last)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid _limit %q", last)
			}
			q.Limit = n
		case "_fields":
			q.Fields = splitList(last)
		default:
			if strings.HasPrefix(k, "_") {
				// Reserved for future parameters and cache busters.
				continue
			}
			q.Filters = append(q.Filters, parseFilter(k, vals))
		}
	}
	return q, nil
}

func parseFilter(key string, vals []string) Filter {
	for _, op := range suffixes {
		if field, ok := strings.CutSuffix(key, "_"+string(op)); ok && field != "" {
			return Filter{Field: field, Op: op, Values: vals}
		}
	}
	return Filter{Field: key, Op: Eq, Values: vals}
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsZero reports whether q changes nothing.
func (q *Query) IsZero() bool {
	return len(q.Filters) == 0 && len(q.Sort) == 0 && q.Offset == 0 && q.Limit < 0 && len(q.Fields) == 0
}

// Apply returns the view of v selected by q and, for sequences, the number of
// matching elements before pagination. total is -1 for other kinds.
//
// The result shares nodes with v and must not be mutated.
func (q *Query) Apply(v *document.Value) (result *document.Value, total int) {
	switch v.Kind() {
	case document.Sequence:
		var elems []*document.Value
		for _, e := range v.Elements() {
			if q.match(e) {
				elems = append(elems, e)
			}
		}
		if len(q.Sort) != 0 {
			slices.SortStableFunc(elems, q.compare)
		}
		total = len(elems)
		elems = paginate(elems, q.Offset, q.Limit)
		if len(q.Fields) != 0 {
			for i, e := range elems {
				elems[i] = project(e, q.Fields)
			}
		}
		return document.NewSequence(elems...), total
	case document.Mapping:
		if len(q.Fields) != 0 {
			return project(v, q.Fields), -1
		}
		return v, -1
	default:
		return v, -1
	}
}

func paginate(elems []*document.Value, offset, limit int) []*document.Value {
	if offset >= len(elems) {
		return nil
	}
	elems = elems[offset:]
	if limit >= 0 && limit < len(elems) {
		elems = elems[:limit]
	}
	return elems
}

func project(v *document.Value, fields []string) *document.Value {
	if v.Kind() != document.Mapping {
		return v
	}
	out := document.NewMapping()
	for _, f := range fields {
		if c, ok := v.Get(f); ok {
			_ = out.Set(f, c)
		}
	}
	return out
}

func (q *Query) match(e *document.Value) bool {
	if len(q.Filters) != 0 && e.Kind() != document.Mapping {
		return false
	}
	for _, f := range q.Filters {
		if !f.match(lookup(e, f.Field)) {
			return false
		}
	}
	return true
}

func (f *Filter) match(v *document.Value) bool {
	if f.Op == Ne {
		if v == nil {
			return true
		}
		for _, want := range f.Values {
			if equalScalar(v, want) {
				return false
			}
		}
		return true
	}
	if v == nil {
		return false
	}
	for _, want := range f.Values {
		if f.test(v, want) {
			return true
		}
	}
	return false
}

func (f *Filter) test(v *document.Value, want string) bool {
	switch f.Op {
	case Eq:
		return equalScalar(v, want)
	case Like:
		s, ok := render(v)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(want))
	case Gt, Gte, Lt, Lte:
		c, ok := compareScalar(v, want)
		if !ok {
			return false
		}
		switch f.Op {
		case Gt:
			return c > 0
		case Gte:
			return c >= 0
		case Lt:
			return c < 0
		default:
			return c <= 0
		}
	default:
		return false
	}
}

// lookup follows a dotted field name through nested mappings.
func lookup(v *document.Value, field string) *document.Value {
	for name := range strings.SplitSeq(field, ".") {
		c, ok := v.Get(name)
		if !ok {
			return nil
		}
		v = c
	}
	return v
}

// render returns the textual form of a scalar as it appears in a URL.
func render(v *document.Value) (string, bool) {
	switch v.Kind() {
	case document.Null:
		return "null", true
	case document.Bool:
		b, _ := v.Bool()
		return strconv.FormatBool(b), true
	case document.Number:
		n, _ := v.Number()
		return n.String(), true
	case document.String:
		s, _ := v.Str()
		return s, true
	default:
		return "", false
	}
}

func equalScalar(v *document.Value, want string) bool {
	s, ok := render(v)
	if !ok {
		return false
	}
	if s == want {
		return true
	}
	if f, ok := v.Float(); ok {
		w, err := strconv.ParseFloat(want, 64)
		return err == nil && f == w
	}
	return false
}

func compareScalar(v *document.Value, want string) (int, bool) {
	if f, ok := v.Float(); ok {
		w, err := strconv.ParseFloat(want, 64)
		if err != nil {
			return 0, false
		}
		return cmp.Compare(f, w), true
	}
	if s, ok := v.Str(); ok {
		return strings.Compare(s, want), true
	}
	return 0, false
}

func (q *Query) compare(a, b *document.Value) int {
	for _, k := range q.Sort {
		c := compareValues(lookup(a, k.Field), lookup(b, k.Field))
		if k.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// compareValues orders missing fields first, then by kind, then by value.
func compareValues(a, b *document.Value) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if c := cmp.Compare(a.Kind(), b.Kind()); c != 0 {
		return c
	}
	switch a.Kind() {
	case document.Bool:
		x, _ := a.Bool()
		y, _ := b.Bool()
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case document.Number:
		x, _ := a.Float()
		y, _ := b.Float()
		return cmp.Compare(x, y)
	case document.String:
		x, _ := a.Str()
		y, _ := b.Str()
		return strings.Compare(x, y)
	default:
		return 0
	}
}
