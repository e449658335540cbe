package provider

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/daemonerr"
	"github.com/R3E-Network/provider-daemon/internal/resource"
	"github.com/R3E-Network/provider-daemon/internal/router"
)

// specCandidates is the lookup order spec §4.5's GET /spec follows.
var specCandidates = []string{"spec.yaml", "spec.json", "oas.yaml", "oas.json"}

// registerOperatorRoutes wires spec §4.3 item 4's fixed operator routes,
// plus the gateway-only virtual-provider management routes for gateway
// providers.
func (rt *Runtime) registerOperatorRoutes() {
	rt.table.RegisterOperatorRoute(router.MethodGet, "/spec", rt.handleGetSpec)
	rt.table.RegisterOperatorRoute(router.MethodGet, "/details", rt.handleGetDetails)
	rt.table.RegisterOperatorRoute(router.MethodGet, "/resources", rt.handleGetResources)
	rt.table.RegisterOperatorRoute(router.MethodGet, "/providers", rt.handleGetProviders)

	if !rt.IsGateway {
		return
	}
	rt.table.RegisterOperatorRoute(router.MethodPost, "/virtual-providers", rt.handleRegisterVirtualProvider)
	rt.table.RegisterOperatorRoute(router.MethodPost, "/virtual-providers/offers", rt.handleRegisterVirtualProviderOffer)
	rt.table.RegisterOperatorRoute(router.MethodGet, "/virtual-provider-configurations", rt.handleGetConfigurationSchema)
	rt.table.RegisterOperatorRoute(router.MethodGet, "/virtual-provider-configurations/:offerId", rt.handleGetOfferConfiguration)
	rt.table.RegisterOperatorRoute(router.MethodPatch, "/virtual-provider-configurations/:offerId", rt.handleSetOfferConfiguration)
}

func (rt *Runtime) handleGetSpec(ctx context.Context, req *router.PipeRequest) (*router.Response, error) {
	for _, name := range specCandidates {
		content, err := os.ReadFile(filepath.Join(rt.dataDir, name))
		if err == nil {
			return router.OK(string(content)), nil
		}
	}
	return nil, daemonerr.NotFound("no spec document published")
}

// handleGetDetails implements spec §4.5's GET /details: body or
// params.cids; returns raw contents; 404 if none match.
func (rt *Runtime) handleGetDetails(ctx context.Context, req *router.PipeRequest) (*router.Response, error) {
	cids := requestCIDs(req)
	if len(cids) == 0 {
		return nil, daemonerr.Validation("cids is required")
	}

	contents, err := rt.reg.ResolveMany(ctx, cids)
	if err != nil {
		return nil, daemonerr.Domain("resolve details", err)
	}
	if len(contents) == 0 {
		return nil, daemonerr.NotFound("no matching detail content")
	}

	out := make(map[string]string, len(contents))
	for cid, content := range contents {
		out[cid] = string(content)
	}
	return router.OK(out), nil
}

func requestCIDs(req *router.PipeRequest) []string {
	if v, ok := req.BodyField("cids"); ok && v != "" {
		return []string{v}
	}
	var body struct {
		CIDs []string `json:"cids"`
	}
	if len(req.Body) > 0 {
		_ = json.Unmarshal(req.Body, &body)
	}
	return body.CIDs
}

// handleGetResources implements spec §4.5's GET /resources: all resources
// owned by req.requester if id or pt are absent, else the single resource,
// stripping private (_-prefixed) detail keys in both cases.
func (rt *Runtime) handleGetResources(ctx context.Context, req *router.PipeRequest) (*router.Response, error) {
	idStr, hasID := req.BodyField("id")
	ptStr, hasPt := req.BodyField("pt")

	if !hasID || !hasPt {
		resources, err := rt.st.ListResourcesByOwner(ctx, req.Requester)
		if err != nil {
			return nil, daemonerr.Domain("list resources", err)
		}
		views := make([]map[string]any, 0, len(resources))
		for _, r := range resources {
			views = append(views, resourceView(r))
		}
		return router.OK(views), nil
	}

	protocolAddr, err := chainiface.ParseAddress(ptStr)
	if err != nil {
		return nil, daemonerr.Validation("pt must be a valid address")
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, daemonerr.Validation("id must be numeric")
	}

	res, err := rt.st.GetResource(ctx, id, req.Requester, protocolAddr)
	if err != nil {
		return nil, daemonerr.NotFound("resource not found")
	}
	return router.OK(resourceView(res)), nil
}

// handleGetProviders reports this runtime's own identity plus its virtual
// roster, along with background-loop liveness: last reconciler tick and
// last sweep completion, for operators polling whether this daemon is
// actually making progress rather than just answering HTTP.
func (rt *Runtime) handleGetProviders(ctx context.Context, req *router.PipeRequest) (*router.Response, error) {
	lastTick, lastSweep := rt.health.Snapshot()

	actors := rt.Actors()
	views := make([]map[string]any, 0, len(actors))
	for _, a := range actors {
		views = append(views, map[string]any{
			"id":           a.ID,
			"ownerAddress": a.OwnerAddress.String(),
			"isVirtual":    a.IsVirtual,
		})
	}

	return router.OK(map[string]any{
		"gateway":            rt.IsGateway,
		"providers":          views,
		"lastReconcilerTick": lastTick,
		"lastSweep":          lastSweep,
	}), nil
}

func resourceView(r *resource.Resource) map[string]any {
	return map[string]any{
		"id":               r.ID,
		"protocolId":       r.ProtocolID,
		"name":             r.Name,
		"offerId":          r.OfferID,
		"providerId":       r.ProviderID,
		"deploymentStatus": r.DeploymentStatus,
		"details":          resource.FilterPrivate(r.Details),
		"isActive":         r.IsActive,
	}
}
