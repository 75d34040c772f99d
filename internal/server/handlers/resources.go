package handlers

import (
	"context"
	"fmt"
	"mime"
	"net/http"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/maruel/mockdb/internal/document"
	apierrors "github.com/maruel/mockdb/internal/errors"
	"github.com/maruel/mockdb/internal/jsondb"
	"github.com/maruel/mockdb/internal/query"
)

const (
	contentTypeJSON       = "application/json"
	contentTypeMergePatch = "application/merge-patch+json"
	contentTypeJSONPatch  = "application/json-patch+json"
)

// Resources serves reads and writes on any node of the document.
type Resources struct {
	db *jsondb.Database
}

// NewResources returns handlers backed by db.
func NewResources(db *jsondb.Database) *Resources {
	return &Resources{db: db}
}

// Read returns the node at the request path, filtered by the query API when
// the node is a collection.
func (h *Resources) Read(ctx context.Context, req *Request) (*Response, error) {
	q, err := query.Parse(req.Query)
	if err != nil {
		return nil, apierrors.BadRequest(err.Error())
	}
	resp := &Response{Status: http.StatusOK, TotalCount: -1}
	err = h.db.View(req.Segments, func(v *document.Value) error {
		result, total := q.Apply(v)
		b, err := result.MarshalJSON()
		if err != nil {
			return err
		}
		resp.Body = b
		resp.TotalCount = total
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Create inserts the body into the collection or object at the request path.
//
// Objects appended to a collection get the next free id when they carry none.
// Inserting an id or key that already exists is a conflict.
func (h *Resources) Create(ctx context.Context, req *Request) (*Response, error) {
	body, err := parseBody(req.Body)
	if err != nil {
		return nil, err
	}
	if body.Kind() != document.Mapping {
		return nil, apierrors.BadRequest("body must be an object")
	}
	var out []byte
	err = h.db.Modify(ctx, req.Segments, func(target *document.Value) error {
		switch target.Kind() {
		case document.Sequence:
			if f, ok := body.Get(document.IDField); ok {
				id, ok := f.Int()
				if !ok {
					return apierrors.BadRequest("id must be an integer")
				}
				if _, exists := document.FindID(target.Elements(), id); exists {
					return apierrors.Conflict(fmt.Sprintf("id %d already exists", id)).WithDetail("id", id)
				}
			} else {
				body = withID(body, document.NextID(target.Elements()))
			}
			if out, err = body.MarshalJSON(); err != nil {
				return err
			}
			return target.Append(body)
		case document.Mapping:
			for _, k := range body.Keys() {
				if _, exists := target.Get(k); exists {
					return apierrors.Conflict(fmt.Sprintf("key %q already exists", k)).WithDetail("key", k)
				}
			}
			if out, err = body.MarshalJSON(); err != nil {
				return err
			}
			for _, k := range body.Keys() {
				c, _ := body.Get(k)
				_ = target.Set(k, c)
			}
			return nil
		default:
			return apierrors.BadRequest(fmt.Sprintf("cannot insert into %s", target.Kind()))
		}
	})
	if err != nil {
		return nil, err
	}
	return &Response{Status: http.StatusCreated, Body: out, TotalCount: -1}, nil
}

// Replace overwrites the node at the request path with the body.
//
// A collection element keeps its id.
func (h *Resources) Replace(ctx context.Context, req *Request) (*Response, error) {
	body, err := parseBody(req.Body)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = h.modifyNode(ctx, req.Segments, func(target *document.Value, id int64, inSeq bool) error {
		if inSeq {
			if body.Kind() != document.Mapping {
				return apierrors.BadRequest("collection elements must be objects")
			}
			body = withID(body, id)
		}
		if out, err = body.MarshalJSON(); err != nil {
			return err
		}
		target.Replace(body)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Response{Status: http.StatusOK, Body: out, TotalCount: -1}, nil
}

// Patch applies a merge patch or a JSON patch to the node at the request
// path, depending on the content type.
//
// A collection element keeps its id.
func (h *Resources) Patch(ctx context.Context, req *Request) (*Response, error) {
	apply, err := patcher(req.ContentType, req.Body)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = h.modifyNode(ctx, req.Segments, func(target *document.Value, id int64, inSeq bool) error {
		patched, err := apply(target)
		if err != nil {
			return err
		}
		if inSeq {
			if patched.Kind() != document.Mapping {
				return apierrors.BadRequest("collection elements must be objects")
			}
			patched = withID(patched, id)
		}
		if out, err = patched.MarshalJSON(); err != nil {
			return err
		}
		target.Replace(patched)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Response{Status: http.StatusOK, Body: out, TotalCount: -1}, nil
}

// Delete removes the node at the request path from its parent.
func (h *Resources) Delete(ctx context.Context, req *Request) (*Response, error) {
	if err := h.db.Remove(ctx, req.Segments); err != nil {
		return nil, err
	}
	return &Response{Status: http.StatusNoContent, TotalCount: -1}, nil
}

// modifyNode resolves the node at path under the store lock and calls fn with
// it. When the node is an element of a collection, inSeq is true and id is its
// logical id. The document is flushed when fn succeeds.
func (h *Resources) modifyNode(ctx context.Context, path []string, fn func(target *document.Value, id int64, inSeq bool) error) error {
	if len(path) == 0 {
		return h.db.Modify(ctx, nil, func(root *document.Value) error {
			return fn(root, 0, false)
		})
	}
	last := path[len(path)-1]
	return h.db.Modify(ctx, path[:len(path)-1], func(parent *document.Value) error {
		target, err := document.Resolve(parent, []string{last})
		if err != nil {
			return err
		}
		if parent.Kind() == document.Sequence {
			id, _ := document.ElementID(target)
			return fn(target, id, true)
		}
		return fn(target, 0, false)
	})
}

// patcher returns a function computing the patched copy of a node.
func patcher(contentType string, body []byte) (func(*document.Value) (*document.Value, error), error) {
	mt := contentTypeJSON
	if contentType != "" {
		var err error
		if mt, _, err = mime.ParseMediaType(contentType); err != nil {
			return nil, apierrors.UnsupportedMediaType(contentType)
		}
	}
	switch mt {
	case contentTypeJSON, contentTypeMergePatch:
		patch, err := parseBody(body)
		if err != nil {
			return nil, err
		}
		return func(target *document.Value) (*document.Value, error) {
			v := target.Clone()
			document.MergePatch(v, patch)
			return v, nil
		}, nil
	case contentTypeJSONPatch:
		patch, err := jsonpatch.DecodePatch(body)
		if err != nil {
			return nil, apierrors.InvalidBody(err)
		}
		return func(target *document.Value) (*document.Value, error) {
			src, err := target.MarshalJSON()
			if err != nil {
				return nil, err
			}
			dst, err := patch.Apply(src)
			if err != nil {
				return nil, apierrors.BadRequest("failed to apply patch").Wrap(err)
			}
			return document.Parse(dst)
		}, nil
	default:
		return nil, apierrors.UnsupportedMediaType(contentType)
	}
}

func parseBody(b []byte) (*document.Value, error) {
	v, err := document.Parse(b)
	if err != nil {
		return nil, apierrors.InvalidBody(err)
	}
	return v, nil
}

// withID returns m with its id set to id. An existing id keeps its position,
// otherwise the id comes first.
func withID(m *document.Value, id int64) *document.Value {
	if _, ok := m.Get(document.IDField); ok {
		_ = m.Set(document.IDField, document.NewInt(id))
		return m
	}
	out := document.NewMapping()
	_ = out.Set(document.IDField, document.NewInt(id))
	for _, k := range m.Keys() {
		c, _ := m.Get(k)
		_ = out.Set(k, c)
	}
	return out
}
