package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/maruel/mockdb/internal/config"
	"github.com/maruel/mockdb/internal/jsondb"
	"github.com/maruel/mockdb/internal/server/ratelimit"
)

const testDoc = `{"posts":[{"id":1,"title":"a","views":10},{"id":2,"title":"b","views":5}],"profile":{"name":"typicode"},"a b":1}`

type testEnv struct {
	server *httptest.Server
	db     *jsondb.Database
	path   string
}

func setupTestEnv(t *testing.T, cfg config.Server) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.json")
	if err := os.WriteFile(path, []byte(testDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := jsondb.New(logger)
	if err := db.Load(t.Context(), config.Database{Path: path}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	tiers := ratelimit.NewTiers(cfg.RateLimits)
	t.Cleanup(tiers.Close)
	srv := httptest.NewServer(NewRouter(logger, db, &cfg, tiers))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, db: db, path: path}
}

type result struct {
	status int
	header http.Header
	body   string
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string) result {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), method, e.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return result{status: resp.StatusCode, header: resp.Header, body: string(b)}
}

func (e *testEnv) file(t *testing.T) string {
	t.Helper()
	b, err := os.ReadFile(e.path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Details map[string]any `json:"details"`
}

func decodeError(t *testing.T, r result) errorBody {
	t.Helper()
	var e errorBody
	if err := json.Unmarshal([]byte(r.body), &e); err != nil {
		t.Fatalf("invalid error body %q: %v", r.body, err)
	}
	return e
}

func TestRead(t *testing.T) {
	env := setupTestEnv(t, config.Server{})
	tests := []struct {
		path string
		want string
	}{
		{"/posts/2/title", `"b"`},
		{"/posts/1", `{"id":1,"title":"a","views":10}`},
		{"/profile", `{"name":"typicode"}`},
		{"/a%20b", `1`},
		{"/", testDoc},
		{"/posts/?title=a", `[{"id":1,"title":"a","views":10}]`},
		{"/posts?_sort=views&_fields=id", `[{"id":2},{"id":1}]`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r := env.do(t, "GET", tt.path, "", "")
			if r.status != http.StatusOK {
				t.Fatalf("status = %d, body %s", r.status, r.body)
			}
			if diff := cmp.Diff(tt.want, r.body); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
			if r.header.Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
		})
	}
}

func TestReadPagination(t *testing.T) {
	env := setupTestEnv(t, config.Server{})
	r := env.do(t, "GET", "/posts?_sort=-id&_limit=1", "", "")
	if r.status != http.StatusOK {
		t.Fatalf("status = %d", r.status)
	}
	if r.body != `[{"id":2,"title":"b","views":5}]` {
		t.Errorf("body = %s", r.body)
	}
	if got := r.header.Get("X-Total-Count"); got != "2" {
		t.Errorf("X-Total-Count = %q", got)
	}
	r = env.do(t, "GET", "/posts?_limit=x", "", "")
	if r.status != http.StatusBadRequest {
		t.Errorf("status = %d", r.status)
	}
}

func TestReadNotFound(t *testing.T) {
	env := setupTestEnv(t, config.Server{})
	tests := []struct {
		path    string
		segment string
	}{
		{"/posts/3/title", "3"},
		{"/posts/x", "x"},
		{"/comments", "comments"},
		{"/profile/name/first", "first"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r := env.do(t, "GET", tt.path, "", "")
			if r.status != http.StatusNotFound {
				t.Fatalf("status = %d", r.status)
			}
			e := decodeError(t, r)
			if e.Error.Code != "NOT_FOUND" || e.Details["segment"] != tt.segment {
				t.Errorf("error = %+v", e)
			}
		})
	}
}

func TestCreate(t *testing.T) {
	env := setupTestEnv(t, config.Server{})
	r := env.do(t, "POST", "/posts", "application/json", `{"title":"c"}`)
	if r.status != http.StatusCreated {
		t.Fatalf("status = %d, body %s", r.status, r.body)
	}
	if r.body != `{"id":3,"title":"c"}` {
		t.Errorf("body = %s", r.body)
	}
	if !strings.Contains(env.file(t), `{"id":3,"title":"c"}]`) {
		t.Errorf("not flushed: %s", env.file(t))
	}

	r = env.do(t, "POST", "/posts", "application/json", `{"id":2,"title":"dup"}`)
	if r.status != http.StatusConflict {
		t.Errorf("duplicate id status = %d", r.status)
	}
	r = env.do(t, "POST", "/profile", "application/json", `{"email":"x@example.com"}`)
	if r.status != http.StatusCreated {
		t.Errorf("add key status = %d", r.status)
	}
	r = env.do(t, "POST", "/profile", "application/json", `{"name":"other"}`)
	if r.status != http.StatusConflict {
		t.Errorf("duplicate key status = %d", r.status)
	}
	r = env.do(t, "POST", "/posts/1/title", "application/json", `{"x":1}`)
	if r.status != http.StatusBadRequest {
		t.Errorf("insert into string status = %d", r.status)
	}
	r = env.do(t, "POST", "/posts", "application/json", `{"title":`)
	if e := decodeError(t, r); r.status != http.StatusBadRequest || e.Error.Code != "INVALID_FORMAT" {
		t.Errorf("truncated body: %d %+v", r.status, e)
	}
}

func TestReplace(t *testing.T) {
	env := setupTestEnv(t, config.Server{})
	r := env.do(t, "PUT", "/posts/1", "application/json", `{"id":9,"title":"z"}`)
	if r.status != http.StatusOK {
		t.Fatalf("status = %d, body %s", r.status, r.body)
	}
	if r.body != `{"id":1,"title":"z"}` {
		t.Errorf("body = %s", r.body)
	}
	r = env.do(t, "PUT", "/profile/name", "application/json", `"octocat"`)
	if r.status != http.StatusOK {
		t.Fatalf("status = %d", r.status)
	}
	want := `{"posts":[{"id":1,"title":"z"},{"id":2,"title":"b","views":5}],"profile":{"name":"octocat"},"a b":1}`
	if diff := cmp.Diff(want, env.file(t)); diff != "" {
		t.Errorf("file mismatch (-want +got):\n%s", diff)
	}
	r = env.do(t, "PUT", "/posts/2", "application/json", `[1]`)
	if r.status != http.StatusBadRequest {
		t.Errorf("non-object element status = %d", r.status)
	}
}

func TestPatch(t *testing.T) {
	env := setupTestEnv(t, config.Server{})
	r := env.do(t, "PATCH", "/posts/1", "application/merge-patch+json", `{"views":null,"draft":true,"id":7}`)
	if r.status != http.StatusOK {
		t.Fatalf("status = %d, body %s", r.status, r.body)
	}
	if r.body != `{"id":1,"title":"a","draft":true}` {
		t.Errorf("merge patch body = %s", r.body)
	}

	r = env.do(t, "PATCH", "/profile", "application/json-patch+json", `[{"op":"replace","path":"/name","value":"octocat"}]`)
	if r.status != http.StatusOK {
		t.Fatalf("status = %d, body %s", r.status, r.body)
	}
	if r.body != `{"name":"octocat"}` {
		t.Errorf("json patch body = %s", r.body)
	}

	r = env.do(t, "PATCH", "/profile", "application/json-patch+json", `[{"op":"test","path":"/name","value":"nope"}]`)
	if r.status != http.StatusBadRequest {
		t.Errorf("failed json patch status = %d", r.status)
	}
	r = env.do(t, "PATCH", "/profile", "text/plain", `x`)
	if r.status != http.StatusUnsupportedMediaType {
		t.Errorf("unsupported type status = %d", r.status)
	}
}

func TestDelete(t *testing.T) {
	env := setupTestEnv(t, config.Server{})
	r := env.do(t, "DELETE", "/posts/1", "", "")
	if r.status != http.StatusNoContent {
		t.Fatalf("status = %d, body %s", r.status, r.body)
	}
	if r = env.do(t, "GET", "/posts/1", "", ""); r.status != http.StatusNotFound {
		t.Errorf("deleted element still readable: %d", r.status)
	}
	if r = env.do(t, "DELETE", "/posts/1", "", ""); r.status != http.StatusNotFound {
		t.Errorf("second delete status = %d", r.status)
	}
	if r = env.do(t, "DELETE", "/", "", ""); r.status != http.StatusBadRequest {
		t.Errorf("root delete status = %d", r.status)
	}
	if strings.Contains(env.file(t), `"id":1`) {
		t.Errorf("not flushed: %s", env.file(t))
	}
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t, config.Server{})
	r := env.do(t, "GET", "/_health", "", "")
	if r.status != http.StatusOK || !strings.Contains(r.body, `"status":"ok"`) {
		t.Errorf("health = %d %s", r.status, r.body)
	}

	srv := httptest.NewServer(NewRouter(nil, jsondb.New(nil), &config.Server{}, nil))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/_health")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unloaded health = %d", resp.StatusCode)
	}
}

func TestNotReady(t *testing.T) {
	srv := httptest.NewServer(NewRouter(nil, jsondb.New(nil), &config.Server{}, nil))
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/posts")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestBodyLimit(t *testing.T) {
	env := setupTestEnv(t, config.Server{MaxBodyBytes: 16})
	r := env.do(t, "POST", "/posts", "application/json", `{"title":"`+strings.Repeat("x", 64)+`"}`)
	if r.status != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, body %s", r.status, r.body)
	}
}

func TestRateLimit(t *testing.T) {
	// Burst is a sixth of the per-minute budget.
	env := setupTestEnv(t, config.Server{RateLimits: config.RateLimits{WritePerMin: 6}})
	if r := env.do(t, "DELETE", "/posts/1", "", ""); r.status != http.StatusNoContent {
		t.Fatalf("first write status = %d", r.status)
	}
	r := env.do(t, "DELETE", "/posts/2", "", "")
	if r.status != http.StatusTooManyRequests {
		t.Fatalf("second write status = %d", r.status)
	}
	if r.header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if r = env.do(t, "GET", "/posts/2", "", ""); r.status != http.StatusOK {
		t.Errorf("reads are unlimited, got %d", r.status)
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"/", nil},
		{"/posts/2/title", []string{"posts", "2", "title"}},
		{"//posts//2/", []string{"posts", "2"}},
		{"/a%2Fb/c%20d", []string{"a/b", "c d"}},
	}
	for _, tt := range tests {
		got, err := splitPath(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("splitPath(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
	if _, err := splitPath("/%zz"); err == nil {
		t.Error("expected error")
	}
}
