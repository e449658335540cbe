package router

import (
	"context"
	"strconv"

	"github.com/R3E-Network/provider-daemon/internal/daemonerr"
	"github.com/R3E-Network/provider-daemon/internal/logging"
)

// Router owns the route Table and converts handler results/errors into
// responses, shared by both transports (spec §4.5: "Two transports share
// the same route table").
type Router struct {
	Table  *Table
	logger *logging.Logger
}

func New(logger *logging.Logger) *Router {
	return &Router{Table: NewTable(), logger: logger}
}

// Dispatch routes one request: operator-level routes are tried first, then
// provider sub-dispatch reading providerId from body or params (spec
// §4.5). Errors from handlers are converted to Responses; panics are not
// recovered here — that is the transport's responsibility, matching the
// teacher's httprouter boundary of "recover at the edge, not per handler".
func (rt *Router) Dispatch(ctx context.Context, method Method, path string, req *PipeRequest) *Response {
	req.Path = path

	if h, ok := rt.Table.lookupOperator(method, path); ok {
		return rt.invoke(ctx, req, h)
	}

	providerIDStr, ok := req.BodyField("providerId")
	if !ok {
		return errorResponse(errProviderIDRequired)
	}
	providerID, err := strconv.ParseInt(providerIDStr, 10, 64)
	if err != nil {
		return errorResponse(daemonerr.Validation("providerId must be numeric"))
	}

	h, ok := rt.Table.lookupProvider(method, providerID, path)
	if !ok {
		return errorResponse(daemonerr.NotFound("no handler registered for this route"))
	}
	return rt.invoke(ctx, req, h)
}

func (rt *Router) invoke(ctx context.Context, req *PipeRequest, h Handler) *Response {
	resp, err := h(ctx, req)
	if err != nil {
		rt.logger.WithError(err).Warnf("request %s failed", req.ID)
		return errorResponse(err)
	}
	rt.logger.Debugf("request %s completed", req.ID)
	if resp == nil {
		return OK(nil)
	}
	return resp
}

// errorResponse converts a handler error into a response: a *daemonerr.Error
// yields exactly its Code/Message; anything else yields a generic
// INTERNAL_SERVER_ERROR, per spec §4.5.
func errorResponse(err error) *Response {
	if de, ok := daemonerr.As(err); ok {
		return &Response{Code: de.Code(), Body: map[string]string{"error": de.Message}}
	}
	return &Response{Code: daemonerr.CodeInternalServerError, Body: map[string]string{"error": "internal server error"}}
}
