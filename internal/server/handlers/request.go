// Package handlers implements the HTTP resource handlers.
package handlers

import "net/url"

// Request is a decoded request on a document node.
type Request struct {
	// Segments is the resolver path, one percent-decoded element per URL
	// path segment.
	Segments    []string
	Query       url.Values
	Body        []byte
	ContentType string
}

// Response is a pre-serialized JSON response.
type Response struct {
	Status int
	// Body is compact JSON; nil means no body.
	Body []byte
	// TotalCount is reported as X-Total-Count when non-negative.
	TotalCount int
}
