// Package router implements the Request Router (spec §4.5): two transport
// listeners sharing one route table, with provider-scoped sub-dispatch and
// wallet-signature authentication enforced by the transport before a
// handler ever sees a request.
package router

import (
	"context"
	"encoding/json"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/daemonerr"
)

// Method enumerates the four verbs the spec's envelope supports.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// PipeRequest is the transport-neutral envelope handlers receive (spec
// §4.5). By the time a handler sees one, the transport has already
// verified the requester's signature — handlers trust Requester.
type PipeRequest struct {
	ID         string
	Requester  chainiface.Address
	Path       string
	PathParams map[string]string
	Params     map[string]string
	Body       json.RawMessage
}

// BodyField extracts a top-level field from the request body, falling back
// to Params, mirroring the spec's "read providerId from body or params"
// sub-dispatch rule (spec §4.5).
func (r *PipeRequest) BodyField(name string) (string, bool) {
	fromParams := func() (string, bool) {
		v, ok := r.Params[name]
		return v, ok && v != ""
	}
	if len(r.Body) == 0 {
		return fromParams()
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(r.Body, &m); err != nil {
		return fromParams()
	}
	raw, ok := m[name]
	if !ok {
		return fromParams()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return fromParams()
}

// Response is the transport-neutral reply (spec §6: {code, body}).
type Response struct {
	Code daemonerr.Code
	Body any
}

// OK builds a 200 response.
func OK(body any) *Response { return &Response{Code: daemonerr.CodeOK, Body: body} }

// Handler processes one PipeRequest and returns a Response, or an error
// that the dispatcher converts to a Response per spec §4.5's error policy.
type Handler func(ctx context.Context, req *PipeRequest) (*Response, error)

// RouteRegistrar is the capability a ServiceBackend's RequestRouterExtender
// receives to register its own provider-scoped routes (spec §4.3 item 5).
// *Table satisfies this.
type RouteRegistrar interface {
	RegisterProviderRoute(method Method, path string, ownerProviderID int64, virtualChildIDs []int64, h Handler)
}
