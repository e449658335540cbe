package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/provider-daemon/internal/middleware"
)

// offerIDTemplate is the one operator route with a dynamic path segment
// (spec §4.6's GET|PATCH /virtual-provider-configurations/:offerId). The
// route table itself stores handlers keyed by literal strings, so the
// HTTP transport is responsible for recognizing this one shape and
// rewriting the incoming path to the table's template key.
const offerIDPrefix = "/virtual-provider-configurations/"
const offerIDTemplate = "/virtual-provider-configurations/:offerId"

// HTTPTransport is the operator-pipe HTTP listener (spec §4.5): one of the
// two transports sharing a Router's Table.
type HTTPTransport struct {
	rt     *Router
	server *http.Server
}

// NewHTTPTransport builds the mux.Router-backed operator-pipe HTTP server,
// chaining the same middleware stack the teacher's service layer uses for
// its own HTTP surfaces (CORS, rate limiting, tracing, metrics, auth).
func NewHTTPTransport(addr string, rt *Router, auth *middleware.WalletAuthMiddleware, limiter *middleware.RateLimiter, tracer *middleware.TracingMiddleware, cors *middleware.CORSMiddleware, metricsMw mux.MiddlewareFunc) *HTTPTransport {
	m := mux.NewRouter()
	m.PathPrefix("/").HandlerFunc(rt.serveHTTP)

	// Auth runs before the rate limiter so requests are throttled per
	// wallet address rather than per remote addr.
	var handler http.Handler = m
	handler = limiter.Handler(handler)
	handler = auth.Handler(handler)
	handler = tracer.Handler(handler)
	handler = cors.Handler(handler)
	m.Use(metricsMw)

	return &HTTPTransport{
		rt: rt,
		server: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
	}
}

// ListenAndServe blocks serving the operator pipe until the server is
// shut down.
func (t *HTTPTransport) ListenAndServe() error {
	err := t.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests (spec §5's shutdown hooks).
func (t *HTTPTransport) Shutdown() error {
	return t.server.Shutdown(context.Background())
}

// serveHTTP adapts one *http.Request into a PipeRequest, dispatches it
// through the shared Table, and writes the Response back as JSON.
func (rt *Router) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeResponse(w, &Response{Code: 400, Body: map[string]string{"error": "failed to read body"}})
		return
	}

	path, pathParams := canonicalizePath(r.URL.Path)

	params := map[string]string{}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	req := &PipeRequest{
		ID:         r.Header.Get("X-Request-ID"),
		Requester:  middleware.Requester(r.Context()),
		PathParams: pathParams,
		Params:     params,
		Body:       json.RawMessage(body),
	}

	resp := rt.Dispatch(r.Context(), Method(r.Method), path, req)
	writeResponse(w, resp)
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(int(resp.Code))
	_ = json.NewEncoder(w).Encode(resp.Body)
}

// canonicalizePath rewrites the one templated operator route to its table
// key, extracting the dynamic segment into pathParams. Every other path
// passes through unchanged.
func canonicalizePath(raw string) (string, map[string]string) {
	if strings.HasPrefix(raw, offerIDPrefix) {
		offerID := strings.TrimPrefix(raw, offerIDPrefix)
		if offerID != "" && !strings.Contains(offerID, "/") {
			return offerIDTemplate, map[string]string{"offerId": offerID}
		}
	}
	return raw, nil
}
