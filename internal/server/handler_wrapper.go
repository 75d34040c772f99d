// Provides middleware for standardizing HTTP handlers.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	apierrors "github.com/maruel/mockdb/internal/errors"
	"github.com/maruel/mockdb/internal/server/handlers"
	"github.com/maruel/mockdb/internal/server/ratelimit"
	"github.com/maruel/mockdb/internal/server/reqctx"
)

// HandlerFunc serves one decoded request.
type HandlerFunc func(context.Context, *handlers.Request) (*handlers.Response, error)

// Wrap adapts fn to an http.Handler.
//
// It applies the rate limit tier matching the request, reads the body up to
// maxBody bytes (0 means unlimited), decodes the path into segments and
// writes fn's response or its error as JSON.
func Wrap(fn HandlerFunc, tiers *ratelimit.Tiers, maxBody int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if tiers != nil {
			if tier := tiers.Match(r.Method, r.URL.Path); tier != nil {
				if !checkRateLimit(w, tier, reqctx.ClientIP(ctx)) {
					return
				}
			}
		}

		segments, err := splitPath(r.URL.EscapedPath())
		if err != nil {
			writeError(ctx, w, apierrors.BadRequest("invalid path").Wrap(err))
			return
		}
		req := &handlers.Request{
			Segments:    segments,
			Query:       r.URL.Query(),
			ContentType: r.Header.Get("Content-Type"),
		}
		if req.Body, err = readBody(w, r, maxBody); err != nil {
			writeError(ctx, w, err)
			return
		}

		resp, err := fn(ctx, req)
		if err != nil {
			writeError(ctx, w, err)
			return
		}
		writeResponse(ctx, w, resp)
	})
}

// splitPath turns an escaped URL path into percent-decoded segments,
// dropping empty ones.
func splitPath(escaped string) ([]string, error) {
	var segments []string
	for s := range strings.SplitSeq(escaped, "/") {
		if s == "" {
			continue
		}
		u, err := url.PathUnescape(s)
		if err != nil {
			return nil, err
		}
		segments = append(segments, u)
	}
	return segments, nil
}

func readBody(w http.ResponseWriter, r *http.Request, maxBody int64) ([]byte, error) {
	if maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	}
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, apierrors.PayloadTooLarge(maxBytesErr.Limit)
		}
		return nil, apierrors.BadRequest("Failed to read request body").Wrap(err)
	}
	return body, nil
}

// checkRateLimit consumes a token and writes the rate limit headers.
// It returns false after writing a 429 when the client is over budget.
func checkRateLimit(w http.ResponseWriter, tier *ratelimit.Tier, ip string) bool {
	result := tier.Limiter.Allow(ratelimit.BuildKey(ip, tier.Name))
	ratelimit.WriteHeaders(w, result)
	if !result.Allowed {
		e := apierrors.RateLimited().WithDetail("retry_after", int(result.RetryAfter.Seconds()))
		writeErrorResponseWithCode(w, e.StatusCode(), e.Code(), e.Error(), e.Details())
		return false
	}
	return true
}

func writeResponse(ctx context.Context, w http.ResponseWriter, resp *handlers.Response) {
	if resp.TotalCount >= 0 {
		w.Header().Set("X-Total-Count", strconv.Itoa(resp.TotalCount))
	}
	if resp.Body == nil {
		w.WriteHeader(resp.Status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	if _, err := w.Write(resp.Body); err != nil {
		slog.ErrorContext(ctx, "Failed to write response", "err", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	e := apierrors.FromStore(err)
	statusCode := e.StatusCode()
	if statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "Handler error", "err", err, "statusCode", statusCode, "code", e.Code())
	} else {
		slog.DebugContext(ctx, "Handler error", "err", err, "statusCode", statusCode, "code", e.Code())
	}
	writeErrorResponseWithCode(w, statusCode, e.Code(), e.Error(), e.Details())
}

// writeErrorResponseWithCode writes a detailed error response as JSON with code and details.
func writeErrorResponseWithCode(w http.ResponseWriter, statusCode int, code apierrors.ErrorCode, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	if len(details) > 0 {
		response["details"] = details
	}
	_ = json.NewEncoder(w).Encode(response)
}
