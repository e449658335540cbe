// Package backend collapses the teacher's AbstractProvider → BaseXService
// → Concrete inheritance chain into an interface plus optional capability
// interfaces, per spec §9's explicit design note. A concrete ServiceBackend
// (e.g. an LLM completions forwarder) is an external collaborator per spec
// §1; this package owns only the contract the Provider Runtime wires
// against.
package backend

import (
	"context"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/resource"
	"github.com/R3E-Network/provider-daemon/internal/router"
)

// Result is what Create/GetDetails return: a status, an optional name, and
// free-form details. The reconciler strips {name, status} before persisting
// Details (spec §4.4.1: "details = returned \ {name, status}").
type Result struct {
	Name    string
	Status  resource.DeploymentStatus
	Details map[string]any
}

// ServiceBackend is the lifecycle interface every concrete backend
// implements (spec §4.3's "public contract exposed to backends").
type ServiceBackend interface {
	// Create provisions a new resource for agreement/offer. The reconciler
	// only calls this when no local row exists — retries after a crash are
	// not attempted (spec §4.3).
	Create(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer) (Result, error)

	// GetDetails is polled by the Resource Watcher for a not-yet-Running
	// resource (spec §4.7).
	GetDetails(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer, res *resource.Resource) (Result, error)

	// Delete tears the resource down on AgreementClosed (spec §4.4.2).
	Delete(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer, res *resource.Resource) error
}

// ConfigField describes one field of a vPROV offer configuration schema
// (spec §4.6: "mapping of field-name → {example, format, description,
// required?, default?}").
type ConfigField struct {
	Example     any    `json:"example"`
	Format      string `json:"format,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// GatewayConfigProvider is an optional capability: a backend that supports
// virtual-provider gateways declares its per-offer configuration schema
// through it (spec §4.6's GET /virtual-provider-configurations).
type GatewayConfigProvider interface {
	ConfigurationSchema() map[string]ConfigField
}

// ResourceAuthorizer is the Provider Runtime capability exposed to
// provider-scoped route handlers (spec §4.3's authorizeAndLoadResource):
// load a resource and its agreement, enforcing ownership.
type ResourceAuthorizer interface {
	AuthorizeAndLoadResource(ctx context.Context, id int64, protocolAddr chainiface.Address, requester chainiface.Address) (*resource.Resource, *chainiface.Agreement, error)
}

// RequestRouterExtender is an optional capability: a backend that needs
// its own provider-scoped routes implements Init and registers them
// through reg (spec §4.3 item 5).
type RequestRouterExtender interface {
	Init(reg router.RouteRegistrar, auth ResourceAuthorizer)
}

// Wire is the "base convenience layer" spec §9 calls for: it takes a
// ServiceBackend and performs whatever registration its optional
// capabilities ask for, without the backend needing to inherit from any
// base type.
func Wire(b ServiceBackend, reg router.RouteRegistrar, auth ResourceAuthorizer) {
	if ext, ok := b.(RequestRouterExtender); ok {
		ext.Init(reg, auth)
	}
}
