package provider

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/R3E-Network/provider-daemon/internal/backend"
	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/daemonerr"
	"github.com/R3E-Network/provider-daemon/internal/details"
	"github.com/R3E-Network/provider-daemon/internal/router"
	"github.com/R3E-Network/provider-daemon/internal/store"
)

// requireKnownChild enforces spec §4.6's blanket rule: "if the requester
// is not a known virtual child of this gateway → NOT_AUTHORIZED", shared
// by every virtual-provider-configuration endpoint.
func (rt *Runtime) requireKnownChild(requester chainiface.Address) (*ChildState, error) {
	child, ok := rt.childByOwner(requester)
	if !ok {
		return nil, daemonerr.Authorization("requester is not a known virtual child of this gateway")
	}
	return child, nil
}

type registerVirtualProviderBody struct {
	DetailsFile string `json:"detailsFile"`
}

// handleRegisterVirtualProvider implements spec §4.6's POST
// /virtual-providers.
func (rt *Runtime) handleRegisterVirtualProvider(ctx context.Context, req *router.PipeRequest) (*router.Response, error) {
	var body registerVirtualProviderBody
	if err := json.Unmarshal(req.Body, &body); err != nil || body.DetailsFile == "" {
		return nil, daemonerr.Validation("detailsFile is required")
	}
	content := []byte(body.DetailsFile)

	if existing, err := rt.st.GetProviderByOwner(ctx, req.Requester); err == nil && existing != nil {
		return nil, daemonerr.Validation("a provider already exists for this address")
	}

	if err := validateDetailsContent(content); err != nil {
		return nil, daemonerr.Validationf("detailsFile invalid: %v", err)
	}

	actor, err := rt.chain.GetActor(ctx, req.Requester)
	if err != nil {
		return nil, daemonerr.Domain("requester is not registered on-chain as a provider", err)
	}
	if !chainiface.AddressEqual(actor.OperatorAddress, rt.OperatorAddress) || actor.Endpoint != rt.Endpoint {
		return nil, daemonerr.Validation("operator/endpoint do not match this gateway")
	}

	cid, err := rt.chain.GenerateCID(ctx, content)
	if err != nil {
		return nil, daemonerr.Domain("generate detailsFile CID", err)
	}
	if actor.DetailsCID != cid {
		return nil, daemonerr.Validation("submitted content does not match the on-chain detailsLink")
	}

	filename := details.VProvDetailsFilename(strings.ToLower(req.Requester.String()), cid)
	if err := details.WriteBack(rt.dataDir+"/details", filename, content); err != nil {
		return nil, daemonerr.Domain("write detail file", err)
	}
	if err := rt.st.PutDetailContent(ctx, cid, content); err != nil {
		return nil, daemonerr.Domain("persist detail blob", err)
	}

	row, err := rt.st.UpsertProvider(ctx, store.ProviderRow{
		OwnerAddress:      req.Requester,
		OperatorAddress:   rt.OperatorAddress,
		Endpoint:          rt.Endpoint,
		IsVirtual:         true,
		GatewayProviderID: &rt.ID,
	})
	if err != nil {
		return nil, daemonerr.Domain("persist virtual provider", err)
	}

	rt.addChild(row.ID, row.OwnerAddress)

	return router.OK(map[string]any{"id": row.ID, "ownerAddress": row.OwnerAddress.String(), "gatewayProviderId": rt.ID}), nil
}

type registerOfferBody struct {
	DetailsFile     string         `json:"detailsFile"`
	Fee             string         `json:"fee"`
	Configuration   map[string]any `json:"configuration"`
	StockAmount     *int64         `json:"stockAmount"`
	ExistingOfferID *int64         `json:"existingOfferId"`
}

// handleRegisterVirtualProviderOffer implements spec §4.6's POST
// /virtual-providers/offers.
func (rt *Runtime) handleRegisterVirtualProviderOffer(ctx context.Context, req *router.PipeRequest) (*router.Response, error) {
	if _, err := rt.requireKnownChild(req.Requester); err != nil {
		return nil, err
	}

	var body registerOfferBody
	if err := json.Unmarshal(req.Body, &body); err != nil || body.DetailsFile == "" {
		return nil, daemonerr.Validation("detailsFile is required")
	}
	content := []byte(body.DetailsFile)
	cid, err := rt.chain.GenerateCID(ctx, content)
	if err != nil {
		return nil, daemonerr.Domain("generate offer detailsFile CID", err)
	}
	if err := rt.st.PutDetailContent(ctx, cid, content); err != nil {
		return nil, daemonerr.Domain("persist offer detail blob", err)
	}

	var offerID int64
	if body.ExistingOfferID != nil {
		offer, err := rt.chain.GetOffer(ctx, *body.ExistingOfferID)
		if err != nil {
			return nil, daemonerr.Domain("existingOfferId does not exist on-chain", err)
		}
		offerID = offer.ID
	} else {
		fee, ok := new(big.Int).SetString(body.Fee, 10)
		if !ok {
			return nil, daemonerr.Validation("fee must be a base-10 integer string")
		}
		stock := int64(1000)
		if body.StockAmount != nil {
			stock = *body.StockAmount
		}
		id, err := rt.chain.RegisterOffer(ctx, chainiface.RegisterOfferParams{
			ProviderOwnerAddress: req.Requester,
			DetailsLink:          cid,
			Fee:                  fee,
			StockAmount:          stock,
		})
		if err != nil {
			return nil, daemonerr.Domain("register offer on-chain", err)
		}
		offerID = id
	}

	filename := details.VProvOfferFilename(strings.ToLower(req.Requester.String()), offerID, rt.ProtocolAddress.String(), cid)
	if err := details.WriteBack(rt.dataDir+"/details", filename, content); err != nil {
		return nil, daemonerr.Domain("write offer detail file", err)
	}

	if err := rt.st.SetVProvOfferConfig(ctx, store.VProvOfferConfig{
		OfferID:       offerID,
		ProtocolID:    rt.ProtocolID,
		Configuration: body.Configuration,
	}); err != nil {
		return nil, daemonerr.Domain("persist offer configuration", err)
	}

	return router.OK(map[string]any{"offerId": offerID, "detailsCID": cid}), nil
}

// handleGetConfigurationSchema implements spec §4.6's GET
// /virtual-provider-configurations.
func (rt *Runtime) handleGetConfigurationSchema(ctx context.Context, req *router.PipeRequest) (*router.Response, error) {
	if _, err := rt.requireKnownChild(req.Requester); err != nil {
		return nil, err
	}

	provider, ok := rt.backend.(backend.GatewayConfigProvider)
	if !ok {
		return nil, daemonerr.Domain("backend has not declared a configuration schema", nil)
	}
	return router.OK(provider.ConfigurationSchema()), nil
}

func offerIDFromRequest(req *router.PipeRequest) (int64, bool) {
	v, ok := req.PathParams["offerId"]
	if !ok {
		v, ok = req.BodyField("offerId")
	}
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// handleGetOfferConfiguration and handleSetOfferConfiguration implement
// spec §4.6's GET|PATCH /virtual-provider-configurations/:offerId: both
// require the offer to be owned by the requester's address on-chain.
func (rt *Runtime) handleGetOfferConfiguration(ctx context.Context, req *router.PipeRequest) (*router.Response, error) {
	if _, err := rt.requireKnownChild(req.Requester); err != nil {
		return nil, err
	}
	offerID, ok := offerIDFromRequest(req)
	if !ok {
		return nil, daemonerr.Validation("offerId is required")
	}
	if err := rt.verifyOfferOwnership(ctx, offerID, req.Requester); err != nil {
		return nil, err
	}

	cfg, err := rt.st.GetVProvOfferConfig(ctx, offerID, rt.ProtocolID)
	if err != nil {
		return nil, daemonerr.NotFound("no configuration found for this offer")
	}
	if cfg == nil {
		return nil, daemonerr.NotFound("no configuration found for this offer")
	}
	return router.OK(cfg.Configuration), nil
}

func (rt *Runtime) handleSetOfferConfiguration(ctx context.Context, req *router.PipeRequest) (*router.Response, error) {
	if _, err := rt.requireKnownChild(req.Requester); err != nil {
		return nil, err
	}
	offerID, ok := offerIDFromRequest(req)
	if !ok {
		return nil, daemonerr.Validation("offerId is required")
	}
	if err := rt.verifyOfferOwnership(ctx, offerID, req.Requester); err != nil {
		return nil, err
	}

	var configuration map[string]any
	if err := json.Unmarshal(req.Body, &configuration); err != nil {
		return nil, daemonerr.Validation("body must be a JSON object")
	}

	if err := rt.st.SetVProvOfferConfig(ctx, store.VProvOfferConfig{
		OfferID:       offerID,
		ProtocolID:    rt.ProtocolID,
		Configuration: configuration,
	}); err != nil {
		return nil, daemonerr.Domain("persist offer configuration", err)
	}
	return router.OK(configuration), nil
}

func (rt *Runtime) verifyOfferOwnership(ctx context.Context, offerID int64, requester chainiface.Address) error {
	offer, err := rt.chain.GetOffer(ctx, offerID)
	if err != nil {
		return daemonerr.NotFound("offer not found")
	}
	if !chainiface.AddressEqual(offer.OwnerAddress, requester) {
		return daemonerr.Authorization("offer is not owned by the requester")
	}
	return nil
}
