package router

import (
	"sync"

	"github.com/R3E-Network/provider-daemon/internal/daemonerr"
)

// routeKey identifies one entry of the provider sub-dispatch table (spec
// §4.5: "(method, providerId, path) → handler").
type routeKey struct {
	Method     Method
	ProviderID int64
	Path       string
}

type operatorKey struct {
	Method Method
	Path   string
}

// Table is the ambient mutable route table described in spec §9: owned by
// a long-lived aggregate (the Router), registered at startup, read
// concurrently by every inbound request thereafter. It is not a package
// global — each Router instance owns its own Table.
type Table struct {
	mu             sync.RWMutex
	operatorRoutes map[operatorKey]Handler
	providerRoutes map[routeKey]Handler

	// providerTemplates records every RegisterProviderRoute call a gateway
	// provider has made, keyed by its own id, so that a virtual child
	// accepted later (spec §4.6) can be wired to the same handlers without
	// the backend re-registering anything.
	providerTemplates map[int64][]registeredProviderRoute
}

type registeredProviderRoute struct {
	Method  Method
	Path    string
	Handler Handler
}

func NewTable() *Table {
	return &Table{
		operatorRoutes:    map[operatorKey]Handler{},
		providerRoutes:    map[routeKey]Handler{},
		providerTemplates: map[int64][]registeredProviderRoute{},
	}
}

// RegisterOperatorRoute wires an operator-level route (spec §4.3 item 4).
func (t *Table) RegisterOperatorRoute(method Method, path string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.operatorRoutes[operatorKey{method, path}] = h
}

// RegisterProviderRoute wires a provider-scoped route under ownerProviderID
// and replays it under every id currently in virtualChildIDs — "each
// physical provider registers its handler under its own id and under each
// of its virtual children's ids" (spec §4.5).
func (t *Table) RegisterProviderRoute(method Method, path string, ownerProviderID int64, virtualChildIDs []int64, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.providerTemplates[ownerProviderID] = append(t.providerTemplates[ownerProviderID], registeredProviderRoute{method, path, h})

	t.providerRoutes[routeKey{method, ownerProviderID, path}] = h
	for _, childID := range virtualChildIDs {
		t.providerRoutes[routeKey{method, childID, path}] = h
	}
}

// AdoptVirtualChild replays every route template already registered for
// gatewayProviderID onto childID — called when a new virtual provider is
// accepted at runtime (spec §4.6's POST /virtual-providers), so existing
// provider-scoped routes become addressable under the new child's id
// without the backend doing anything further.
func (t *Table) AdoptVirtualChild(gatewayProviderID, childID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tmpl := range t.providerTemplates[gatewayProviderID] {
		t.providerRoutes[routeKey{tmpl.Method, childID, tmpl.Path}] = tmpl.Handler
	}
}

func (t *Table) lookupOperator(method Method, path string) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.operatorRoutes[operatorKey{method, path}]
	return h, ok
}

func (t *Table) lookupProvider(method Method, providerID int64, path string) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.providerRoutes[routeKey{method, providerID, path}]
	return h, ok
}

// errProviderIDRequired is the exact validation failure spec §4.5's
// sub-dispatch boundary case calls for: providerId absent from a
// provider-scoped request is BAD_REQUEST, not NOT_FOUND.
var errProviderIDRequired = daemonerr.Validation("providerId is required")
