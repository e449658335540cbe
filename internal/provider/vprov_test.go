package provider

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/provider-daemon/internal/backend"
	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/daemonerr"
	"github.com/R3E-Network/provider-daemon/internal/details"
	"github.com/R3E-Network/provider-daemon/internal/logging"
	"github.com/R3E-Network/provider-daemon/internal/router"
	"github.com/R3E-Network/provider-daemon/internal/store"
)

type configurableBackend struct {
	fakeBackend
	schema map[string]backend.ConfigField
}

func (b configurableBackend) ConfigurationSchema() map[string]backend.ConfigField {
	return b.schema
}

func newGatewayRuntime(t *testing.T, be backend.ServiceBackend) (*Runtime, *chainiface.Fake) {
	t.Helper()

	ownerAddress, err := chainiface.ParseAddress("0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	operatorAddress, err := chainiface.ParseAddress("0x2222222222222222222222222222222222222222")
	require.NoError(t, err)
	protocolAddress, err := chainiface.ParseAddress("0x3333333333333333333333333333333333333333")
	require.NoError(t, err)

	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.PutDetailContent(ctx, "d1", []byte(`{"name":"svc"}`)))

	chain := chainiface.NewFake()
	chain.Providers[1] = &chainiface.Provider{ID: 1, OwnerAddress: ownerAddress, OperatorAddress: operatorAddress, Endpoint: "http://gateway.test", DetailsCID: "d1"}

	reg := details.NewRegistry(st)
	rt := router.New(logging.New("test", "error"))

	runtime, err := New(ctx, Config{
		OwnerAddress:    ownerAddress,
		OperatorAddress: operatorAddress,
		Endpoint:        "http://gateway.test",
		Gateway:         true,
		ProtocolAddress: protocolAddress,
		DataDir:         t.TempDir(),
	}, chain, st, reg, be, rt.Table, logging.New("test", "error"))
	require.NoError(t, err)
	return runtime, chain
}

func errKind(t *testing.T, err error) daemonerr.Kind {
	t.Helper()
	derr, ok := err.(*daemonerr.Error)
	require.True(t, ok, "expected *daemonerr.Error, got %T", err)
	return derr.Kind
}

func registerChild(t *testing.T, rt *Runtime, chain *chainiface.Fake, childOwner chainiface.Address, content []byte) *router.Response {
	t.Helper()

	cid, err := chain.GenerateCID(context.Background(), content)
	require.NoError(t, err)
	chain.Providers[2] = &chainiface.Provider{
		ID:              2,
		OwnerAddress:    childOwner,
		OperatorAddress: rt.OperatorAddress,
		Endpoint:        rt.Endpoint,
		DetailsCID:      cid,
	}

	body, err := json.Marshal(map[string]string{"detailsFile": string(content)})
	require.NoError(t, err)

	resp, err := rt.handleRegisterVirtualProvider(context.Background(), &router.PipeRequest{
		Requester: childOwner,
		Body:      body,
	})
	require.NoError(t, err)
	return resp
}

func TestHandleRegisterVirtualProvider_HappyPath(t *testing.T) {
	rt, chain := newGatewayRuntime(t, fakeBackend{})
	childOwner, err := chainiface.ParseAddress("0x4444444444444444444444444444444444444444")
	require.NoError(t, err)

	resp := registerChild(t, rt, chain, childOwner, []byte(`{"name":"child-svc"}`))

	body, ok := resp.Body.(map[string]any)
	require.True(t, ok)
	require.Equal(t, childOwner.String(), body["ownerAddress"])

	child, ok := rt.childByOwner(childOwner)
	require.True(t, ok)
	require.True(t, child.IsVirtual)
}

func TestHandleRegisterVirtualProvider_RejectsOperatorMismatch(t *testing.T) {
	rt, chain := newGatewayRuntime(t, fakeBackend{})
	childOwner, err := chainiface.ParseAddress("0x4444444444444444444444444444444444444444")
	require.NoError(t, err)
	otherOperator, err := chainiface.ParseAddress("0x5555555555555555555555555555555555555555")
	require.NoError(t, err)

	content := []byte(`{"name":"child-svc"}`)
	cid, err := chain.GenerateCID(context.Background(), content)
	require.NoError(t, err)
	chain.Providers[2] = &chainiface.Provider{
		ID:              2,
		OwnerAddress:    childOwner,
		OperatorAddress: otherOperator,
		Endpoint:        rt.Endpoint,
		DetailsCID:      cid,
	}

	body, err := json.Marshal(map[string]string{"detailsFile": string(content)})
	require.NoError(t, err)

	_, err = rt.handleRegisterVirtualProvider(context.Background(), &router.PipeRequest{
		Requester: childOwner,
		Body:      body,
	})
	require.Error(t, err)
	require.Equal(t, daemonerr.KindValidation, errKind(t, err))
}

func TestHandleRegisterVirtualProvider_RejectsContentMismatch(t *testing.T) {
	rt, chain := newGatewayRuntime(t, fakeBackend{})
	childOwner, err := chainiface.ParseAddress("0x4444444444444444444444444444444444444444")
	require.NoError(t, err)

	chain.Providers[2] = &chainiface.Provider{
		ID:              2,
		OwnerAddress:    childOwner,
		OperatorAddress: rt.OperatorAddress,
		Endpoint:        rt.Endpoint,
		DetailsCID:      "some-other-cid",
	}

	body, err := json.Marshal(map[string]string{"detailsFile": `{"name":"child-svc"}`})
	require.NoError(t, err)

	_, err = rt.handleRegisterVirtualProvider(context.Background(), &router.PipeRequest{
		Requester: childOwner,
		Body:      body,
	})
	require.Error(t, err)
	require.Equal(t, daemonerr.KindValidation, errKind(t, err))
}

func TestHandleRegisterVirtualProviderOffer_RejectsUnknownChild(t *testing.T) {
	rt, _ := newGatewayRuntime(t, fakeBackend{})
	stranger, err := chainiface.ParseAddress("0x9999999999999999999999999999999999999999")
	require.NoError(t, err)

	_, err = rt.handleRegisterVirtualProviderOffer(context.Background(), &router.PipeRequest{
		Requester: stranger,
		Body:      json.RawMessage(`{"detailsFile":"{}","fee":"10"}`),
	})
	require.Error(t, err)
	require.Equal(t, daemonerr.KindAuthorization, errKind(t, err))
}

func TestHandleRegisterVirtualProviderOffer_HappyPath(t *testing.T) {
	rt, chain := newGatewayRuntime(t, fakeBackend{})
	childOwner, err := chainiface.ParseAddress("0x4444444444444444444444444444444444444444")
	require.NoError(t, err)
	registerChild(t, rt, chain, childOwner, []byte(`{"name":"child-svc"}`))

	body, err := json.Marshal(map[string]any{
		"detailsFile": `{"offer":"details"}`,
		"fee":         "10",
		"stockAmount": int64(50),
	})
	require.NoError(t, err)

	resp, err := rt.handleRegisterVirtualProviderOffer(context.Background(), &router.PipeRequest{
		Requester: childOwner,
		Body:      body,
	})
	require.NoError(t, err)

	respBody, ok := resp.Body.(map[string]any)
	require.True(t, ok)
	offerID, ok := respBody["offerId"].(int64)
	require.True(t, ok)

	offer, err := chain.GetOffer(context.Background(), offerID)
	require.NoError(t, err)
	require.Equal(t, childOwner, offer.OwnerAddress)
	require.Equal(t, big.NewInt(10), offer.FeePerSecond)
	require.Equal(t, int64(50), offer.Stock)
}

func TestHandleGetConfigurationSchema_RejectsBackendWithoutSchema(t *testing.T) {
	rt, chain := newGatewayRuntime(t, fakeBackend{})
	childOwner, err := chainiface.ParseAddress("0x4444444444444444444444444444444444444444")
	require.NoError(t, err)
	registerChild(t, rt, chain, childOwner, []byte(`{"name":"child-svc"}`))

	_, err = rt.handleGetConfigurationSchema(context.Background(), &router.PipeRequest{Requester: childOwner})
	require.Error(t, err)
	require.Equal(t, daemonerr.KindDomain, errKind(t, err))
}

func TestHandleGetConfigurationSchema_ReturnsBackendSchema(t *testing.T) {
	schema := map[string]backend.ConfigField{
		"apiKey": {Example: "sk-...", Required: true},
	}
	rt, chain := newGatewayRuntime(t, configurableBackend{schema: schema})
	childOwner, err := chainiface.ParseAddress("0x4444444444444444444444444444444444444444")
	require.NoError(t, err)
	registerChild(t, rt, chain, childOwner, []byte(`{"name":"child-svc"}`))

	resp, err := rt.handleGetConfigurationSchema(context.Background(), &router.PipeRequest{Requester: childOwner})
	require.NoError(t, err)
	require.Equal(t, schema, resp.Body)
}

func TestHandleSetAndGetOfferConfiguration_HappyPath(t *testing.T) {
	rt, chain := newGatewayRuntime(t, fakeBackend{})
	childOwner, err := chainiface.ParseAddress("0x4444444444444444444444444444444444444444")
	require.NoError(t, err)
	registerChild(t, rt, chain, childOwner, []byte(`{"name":"child-svc"}`))

	offerID, err := chain.RegisterOffer(context.Background(), chainiface.RegisterOfferParams{
		ProviderOwnerAddress: childOwner,
		DetailsLink:          "cid-offer",
		Fee:                  big.NewInt(5),
		StockAmount:          10,
	})
	require.NoError(t, err)

	cfgBody, err := json.Marshal(map[string]any{"model": "gpt-x"})
	require.NoError(t, err)

	_, err = rt.handleSetOfferConfiguration(context.Background(), &router.PipeRequest{
		Requester:  childOwner,
		PathParams: map[string]string{"offerId": intToStr(offerID)},
		Body:       cfgBody,
	})
	require.NoError(t, err)

	getResp, err := rt.handleGetOfferConfiguration(context.Background(), &router.PipeRequest{
		Requester:  childOwner,
		PathParams: map[string]string{"offerId": intToStr(offerID)},
	})
	require.NoError(t, err)

	cfg, ok := getResp.Body.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "gpt-x", cfg["model"])
}

func TestHandleGetOfferConfiguration_RejectsNonOwner(t *testing.T) {
	rt, chain := newGatewayRuntime(t, fakeBackend{})
	childOwner, err := chainiface.ParseAddress("0x4444444444444444444444444444444444444444")
	require.NoError(t, err)
	registerChild(t, rt, chain, childOwner, []byte(`{"name":"child-svc"}`))

	otherChild, err := chainiface.ParseAddress("0x6666666666666666666666666666666666666666")
	require.NoError(t, err)
	registerChild(t, rt, chain, otherChild, []byte(`{"name":"other-svc"}`))

	offerID, err := chain.RegisterOffer(context.Background(), chainiface.RegisterOfferParams{
		ProviderOwnerAddress: childOwner,
		DetailsLink:          "cid-offer",
		Fee:                  big.NewInt(5),
		StockAmount:          10,
	})
	require.NoError(t, err)

	_, err = rt.handleGetOfferConfiguration(context.Background(), &router.PipeRequest{
		Requester:  otherChild,
		PathParams: map[string]string{"offerId": intToStr(offerID)},
	})
	require.Error(t, err)
	require.Equal(t, daemonerr.KindAuthorization, errKind(t, err))
}

func TestHandleGetOfferConfiguration_NotFoundWhenNeverSet(t *testing.T) {
	rt, chain := newGatewayRuntime(t, fakeBackend{})
	childOwner, err := chainiface.ParseAddress("0x4444444444444444444444444444444444444444")
	require.NoError(t, err)
	registerChild(t, rt, chain, childOwner, []byte(`{"name":"child-svc"}`))

	offerID, err := chain.RegisterOffer(context.Background(), chainiface.RegisterOfferParams{
		ProviderOwnerAddress: childOwner,
		DetailsLink:          "cid-offer",
		Fee:                  big.NewInt(5),
		StockAmount:          10,
	})
	require.NoError(t, err)

	_, err = rt.handleGetOfferConfiguration(context.Background(), &router.PipeRequest{
		Requester:  childOwner,
		PathParams: map[string]string{"offerId": intToStr(offerID)},
	})
	require.Error(t, err)
	require.Equal(t, daemonerr.KindNotFound, errKind(t, err))
}

func TestHandleSetOfferConfiguration_RejectsUnknownOffer(t *testing.T) {
	rt, chain := newGatewayRuntime(t, fakeBackend{})
	childOwner, err := chainiface.ParseAddress("0x4444444444444444444444444444444444444444")
	require.NoError(t, err)
	registerChild(t, rt, chain, childOwner, []byte(`{"name":"child-svc"}`))

	_, err = rt.handleSetOfferConfiguration(context.Background(), &router.PipeRequest{
		Requester:  childOwner,
		PathParams: map[string]string{"offerId": "99999"},
		Body:       json.RawMessage(`{}`),
	})
	require.Error(t, err)
	require.Equal(t, daemonerr.KindNotFound, errKind(t, err))
}

func intToStr(v int64) string {
	return strconv.FormatInt(v, 10)
}
