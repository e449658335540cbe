// Package provider implements the Provider Runtime (spec §4.3): one
// Runtime per physical provider identity, holding a roster of virtual
// children under the same operator — directly modeled on
// coordinator/core.Coordinator's map of sibling Marble instances sharing
// one control plane, generalized from SGX attestation to on-chain actor
// verification.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/R3E-Network/provider-daemon/internal/backend"
	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/daemonerr"
	"github.com/R3E-Network/provider-daemon/internal/details"
	"github.com/R3E-Network/provider-daemon/internal/health"
	"github.com/R3E-Network/provider-daemon/internal/logging"
	"github.com/R3E-Network/provider-daemon/internal/resource"
	"github.com/R3E-Network/provider-daemon/internal/router"
	"github.com/R3E-Network/provider-daemon/internal/store"
)

// ChildState is one roster entry — the gateway itself counts as a member
// with IsVirtual=false.
type ChildState struct {
	ID           int64
	OwnerAddress chainiface.Address
	IsVirtual    bool
}

// Runtime is the per-operator-identity control plane: a physical provider
// plus, if it is a gateway, its accepted virtual children.
type Runtime struct {
	mu sync.RWMutex

	ID              int64
	OwnerAddress    chainiface.Address
	OperatorAddress chainiface.Address
	Endpoint        string
	IsGateway       bool
	ProtocolAddress chainiface.Address
	ProtocolID      int64

	children map[int64]*ChildState

	dataDir string

	chain   chainiface.Client
	st      store.Store
	reg     *details.Registry
	backend backend.ServiceBackend
	table   *router.Table
	logger  *logging.Logger
	health  *health.Tracker
}

// Config is what the daemon's per-provider environment scope (spec §6)
// resolves to before startup validation runs.
type Config struct {
	OwnerAddress    chainiface.Address
	OperatorAddress chainiface.Address
	Endpoint        string
	Gateway         bool
	ProtocolAddress chainiface.Address // may be zero; resolved from chain if so
	DataDir         string             // defaults to "data" (spec §6)
}

// New runs startup validation (spec §4.3 item 1-2) and returns a ready
// Runtime, or a fatal error if this provider cannot start.
func New(ctx context.Context, cfg Config, chain chainiface.Client, st store.Store, reg *details.Registry, be backend.ServiceBackend, table *router.Table, logger *logging.Logger) (*Runtime, error) {
	actor, err := chain.GetActor(ctx, cfg.OwnerAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve owner actor %s: %w", cfg.OwnerAddress, err)
	}

	if err := validateDetails(ctx, reg, actor.DetailsCID); err != nil {
		return nil, fmt.Errorf("provider %s details: %w", cfg.OwnerAddress, err)
	}

	protocolAddr := cfg.ProtocolAddress
	if protocolAddr.IsZero() {
		protocols, err := chain.GetRegisteredProtocolsOf(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve protocols for provider %d: %w", actor.ID, err)
		}
		if len(protocols) == 0 {
			return nil, fmt.Errorf("provider %d has no registered protocols and none configured", actor.ID)
		}
		protocolAddr = protocols[0]
		logger.Warnf("no PROTOCOL_ADDRESS configured for provider %d, using first registered protocol %s", actor.ID, protocolAddr)
	}

	protocolRow, err := st.GetOrCreateProtocol(ctx, protocolAddr, "")
	if err != nil {
		return nil, fmt.Errorf("resolve protocol row for %s: %w", protocolAddr, err)
	}

	offers, err := chain.GetAllProviderOffers(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list offers for provider %d: %w", actor.ID, err)
	}
	for _, offer := range offers {
		if err := validateDetails(ctx, reg, offer.DetailsCID); err != nil {
			return nil, fmt.Errorf("provider %d offer %d details: %w", actor.ID, offer.ID, err)
		}
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}

	rt := &Runtime{
		ID:              actor.ID,
		OwnerAddress:    cfg.OwnerAddress,
		OperatorAddress: cfg.OperatorAddress,
		Endpoint:        cfg.Endpoint,
		IsGateway:       cfg.Gateway,
		ProtocolAddress: protocolAddr,
		ProtocolID:      protocolRow.ID,
		children:        map[int64]*ChildState{},
		dataDir:         dataDir,
		chain:           chain,
		st:              st,
		reg:             reg,
		backend:         be,
		table:           table,
		logger:          logger.With(map[string]any{"providerId": actor.ID}),
	}

	rejected := 0
	if rt.IsGateway {
		rejected = rt.loadVirtualRoster(ctx)
	}

	rt.registerOperatorRoutes()
	backend.Wire(be, table, rt)

	accepted := len(rt.children)
	rt.logger.Infof("provider runtime started: gateway=%v offers=%d virtualChildrenAccepted=%d virtualChildrenRejected=%d",
		rt.IsGateway, len(offers), accepted, rejected)

	return rt, nil
}

func validateDetails(ctx context.Context, reg *details.Registry, cid string) error {
	if cid == "" {
		return fmt.Errorf("missing detailsLink")
	}
	content, ok, err := reg.Resolve(ctx, cid)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("detailsLink %s not found in Detail Registry", cid)
	}
	if err := validateDetailsContent(content); err != nil {
		return fmt.Errorf("detailsLink %s: %w", cid, err)
	}
	return nil
}

// validateDetailsContent checks the provider-details schema (spec §4.3
// item 1: "name required; description/homepage optional") against raw
// JSON, for both registry-resolved content and freshly-submitted
// virtual-provider content that has not been registered yet.
func validateDetailsContent(content []byte) error {
	var parsed struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(content, &parsed); err != nil {
		return fmt.Errorf("does not parse as JSON: %w", err)
	}
	if parsed.Name == "" {
		return fmt.Errorf("missing required field \"name\"")
	}
	return nil
}

// loadVirtualRoster validates every stored virtual child (spec §4.3 item 2).
// A child's failure is a warning — it is skipped, the gateway continues.
// Returns the count of rejected children for the boot summary line.
func (rt *Runtime) loadVirtualRoster(ctx context.Context) int {
	children, err := rt.st.ListVirtualChildren(ctx, rt.ID)
	if err != nil {
		rt.logger.WithError(err).Warnf("failed to load virtual children")
		return 0
	}

	rejected := 0
	for _, child := range children {
		if err := rt.validateVirtualChild(ctx, child); err != nil {
			rt.logger.WithError(err).Warnf("rejecting virtual child %s at boot", child.OwnerAddress)
			rejected++
			continue
		}
		rt.addChild(child.ID, child.OwnerAddress)
	}
	return rejected
}

func (rt *Runtime) validateVirtualChild(ctx context.Context, child *store.ProviderRow) error {
	if !chainiface.AddressEqual(child.OperatorAddress, rt.OperatorAddress) || child.Endpoint != rt.Endpoint {
		return fmt.Errorf("operator/endpoint mismatch with gateway")
	}

	actor, err := rt.chain.GetActor(ctx, child.OwnerAddress)
	if err != nil {
		return fmt.Errorf("chain actor not found: %w", err)
	}
	if err := validateDetails(ctx, rt.reg, actor.DetailsCID); err != nil {
		return err
	}

	offers, err := rt.chain.GetAllProviderOffers(ctx, actor.ID)
	if err != nil {
		return fmt.Errorf("list offers: %w", err)
	}
	for _, offer := range offers {
		if err := validateDetails(ctx, rt.reg, offer.DetailsCID); err != nil {
			return fmt.Errorf("offer %d: %w", offer.ID, err)
		}
	}
	return nil
}

// ProviderIDs returns this runtime's own id plus every accepted virtual
// child's id, for route registration (spec §4.5).
func (rt *Runtime) ProviderIDs() []int64 {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	ids := make([]int64, 0, len(rt.children)+1)
	ids = append(ids, rt.ID)
	for id := range rt.children {
		ids = append(ids, id)
	}
	return ids
}

// Owns reports whether providerID belongs to this runtime (itself or a
// virtual child) — the "not owned by one of the runtime's providers" check
// in spec §4.3's authorizeAndLoadResource.
func (rt *Runtime) Owns(providerID int64) bool {
	if providerID == rt.ID {
		return true
	}
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	_, ok := rt.children[providerID]
	return ok
}

// childByOwner finds the accepted virtual child whose owner address is
// requester, used by §4.6's "requester is a known virtual child of this
// gateway" authorization rule.
func (rt *Runtime) childByOwner(requester chainiface.Address) (*ChildState, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	for _, c := range rt.children {
		if chainiface.AddressEqual(c.OwnerAddress, requester) {
			return c, true
		}
	}
	return nil, false
}

// addChild registers a newly-accepted virtual provider in both the
// in-memory roster and the route table, so provider-scoped routes become
// immediately addressable under its id (spec §4.6).
func (rt *Runtime) addChild(id int64, owner chainiface.Address) {
	rt.mu.Lock()
	rt.children[id] = &ChildState{ID: id, OwnerAddress: owner, IsVirtual: true}
	rt.mu.Unlock()
	rt.table.AdoptVirtualChild(rt.ID, id)
}

// Backend returns the wired ServiceBackend, for the reconciler and watcher
// to call Create/GetDetails/Delete against (spec §4.4, §4.7).
func (rt *Runtime) Backend() backend.ServiceBackend {
	return rt.backend
}

// SetHealthTracker wires the shared liveness Tracker the daemon's
// Reconciler and Balance Sweeper report into, so the GET /providers route
// can surface last-tick/last-sweep timestamps. Optional: a Runtime with no
// tracker reports zero times.
func (rt *Runtime) SetHealthTracker(tracker *health.Tracker) {
	rt.health = tracker
}

// ResolveActor finds which provider identity owned by this runtime — itself
// or a virtual child — corresponds to an on-chain owner address, per spec
// §4.4 item 3 ("the provider itself iff event.providerAddress ==
// provider.owner; else its matching virtual child").
func (rt *Runtime) ResolveActor(ownerAddress chainiface.Address) (int64, bool) {
	if chainiface.AddressEqual(rt.OwnerAddress, ownerAddress) {
		return rt.ID, true
	}
	if child, ok := rt.childByOwner(ownerAddress); ok {
		return child.ID, true
	}
	return 0, false
}

// Actors returns this runtime's own identity plus every accepted virtual
// child, for the Balance Sweeper's per-actor agreement listing (spec §4.8:
// "for itself and for each virtual child").
func (rt *Runtime) Actors() []ChildState {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	actors := make([]ChildState, 0, len(rt.children)+1)
	actors = append(actors, ChildState{ID: rt.ID, OwnerAddress: rt.OwnerAddress, IsVirtual: false})
	for _, c := range rt.children {
		actors = append(actors, *c)
	}
	return actors
}

// AuthorizeAndLoadResource implements backend.ResourceAuthorizer (spec
// §4.3): NotFound if missing, inactive, not owned by requester, or whose
// providerId doesn't belong to this runtime.
func (rt *Runtime) AuthorizeAndLoadResource(ctx context.Context, id int64, protocolAddr chainiface.Address, requester chainiface.Address) (*resource.Resource, *chainiface.Agreement, error) {
	res, err := rt.st.GetResource(ctx, id, requester, protocolAddr)
	if err != nil {
		return nil, nil, daemonerr.NotFound("resource not found")
	}
	if !res.IsActive {
		return nil, nil, daemonerr.NotFound("resource is not active")
	}
	if !rt.Owns(res.ProviderID) {
		return nil, nil, daemonerr.NotFound("resource does not belong to this provider")
	}

	agreement, err := rt.chain.GetAgreement(ctx, id)
	if err != nil {
		return nil, nil, daemonerr.Domain("load agreement", err)
	}
	return res, agreement, nil
}
