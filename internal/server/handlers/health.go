package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	apierrors "github.com/maruel/mockdb/internal/errors"
	"github.com/maruel/mockdb/internal/jsondb"
)

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

// Health reports whether the database holds a document.
type Health struct {
	db *jsondb.Database
}

// NewHealth returns a health handler for db.
func NewHealth(db *jsondb.Database) *Health {
	return &Health{db: db}
}

// Check returns 200 when the database is loaded and 503 otherwise.
func (h *Health) Check(ctx context.Context, req *Request) (*Response, error) {
	state, err := h.db.State()
	if state != jsondb.Loaded {
		e := apierrors.NotReady().WithDetail("state", state.String())
		if err != nil {
			e = e.Wrap(err)
		}
		return nil, e
	}
	b, err := json.Marshal(&HealthResponse{Status: "ok", Path: h.db.Path()})
	if err != nil {
		return nil, err
	}
	return &Response{Status: http.StatusOK, Body: b, TotalCount: -1}, nil
}
