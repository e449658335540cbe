package reconciler

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/provider-daemon/internal/backend"
	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/details"
	"github.com/R3E-Network/provider-daemon/internal/indexer"
	"github.com/R3E-Network/provider-daemon/internal/logging"
	"github.com/R3E-Network/provider-daemon/internal/provider"
	"github.com/R3E-Network/provider-daemon/internal/resource"
	"github.com/R3E-Network/provider-daemon/internal/router"
	"github.com/R3E-Network/provider-daemon/internal/store"
)

func addr(t *testing.T, s string) chainiface.Address {
	a, err := chainiface.ParseAddress(s)
	require.NoError(t, err)
	return a
}

type fakeBackend struct {
	result      backend.Result
	createErr   error
	deleteCalls int
}

func (b *fakeBackend) Create(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer) (backend.Result, error) {
	return b.result, b.createErr
}
func (b *fakeBackend) GetDetails(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer, res *resource.Resource) (backend.Result, error) {
	return b.result, nil
}
func (b *fakeBackend) Delete(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer, res *resource.Resource) error {
	b.deleteCalls++
	return nil
}

func eventArgs(t *testing.T, v any) json.RawMessage {
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// setup builds one Provider Runtime with a single offer, all backed by the
// chainiface/indexer fakes, ready for the reconciler to dispatch events against.
func setup(t *testing.T) (*provider.Runtime, *chainiface.Fake, *store.Memory, chainiface.Address, chainiface.Address, chainiface.Address) {
	t.Helper()

	ownerAddress := addr(t, "0x1111111111111111111111111111111111111111")
	operatorAddress := addr(t, "0x2222222222222222222222222222222222222222")
	protocolAddress := addr(t, "0x3333333333333333333333333333333333333333")

	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.PutDetailContent(ctx, "d1", []byte(`{"name":"svc"}`)))

	chain := chainiface.NewFake()
	chain.Providers[1] = &chainiface.Provider{ID: 1, OwnerAddress: ownerAddress, OperatorAddress: operatorAddress, Endpoint: "http://provider.test", DetailsCID: "d1"}
	chain.Offers[10] = &chainiface.Offer{ID: 10, OwnerAddress: ownerAddress, FeePerSecond: big.NewInt(1), Stock: 100, DetailsCID: "d1"}

	reg := details.NewRegistry(st)
	rt := router.New(logging.New("test", "error"))
	logger := logging.New("test", "error")

	runtime, err := provider.New(ctx, provider.Config{
		OwnerAddress:    ownerAddress,
		OperatorAddress: operatorAddress,
		Endpoint:        "http://provider.test",
		ProtocolAddress: protocolAddress,
		DataDir:         t.TempDir(),
	}, chain, st, reg, &fakeBackend{result: backend.Result{Status: resource.Running}}, rt.Table, logger)
	require.NoError(t, err)

	return runtime, chain, st, ownerAddress, protocolAddress, addr(t, "0x4444444444444444444444444444444444444444")
}

func TestReconciler_CreatesResourceOnAgreementCreated(t *testing.T) {
	runtime, chain, st, ownerAddress, protocolAddress, userAddress := setup(t)
	ctx := context.Background()

	chain.Agreements[100] = &chainiface.Agreement{ID: 100, UserAddress: userAddress, ProviderAddress: ownerAddress, OfferID: 10, Balance: big.NewInt(50), Status: chainiface.AgreementActive}

	idx := indexer.NewFake()
	idx.PushEvent(indexer.Event{
		ContractAddress: protocolAddress,
		EventName:       indexer.EventAgreementCreated,
		BlockNumber:     5,
		Processed:       true,
		Args:            eventArgs(t, indexer.AgreementCreatedArgs{AgreementID: 100, OfferID: 10, UserAddress: userAddress, ProviderAddress: ownerAddress}),
	})

	reg := details.NewRegistry(st)
	r := New(idx, chain, st, reg, []*provider.Runtime{runtime}, 1000, 10*time.Millisecond, logging.New("test", "error"), nil, nil, nil)

	next := r.tick(ctx, 0)
	require.Equal(t, uint64(5), next)

	res, err := st.GetResourceByKey(ctx, resource.Key{ID: 100, ProtocolID: runtime.ProtocolID})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, resource.Running, res.DeploymentStatus)
	require.True(t, res.IsActive)

	// Replaying the same window must not create a second row.
	next2 := r.tick(ctx, 0)
	require.Equal(t, uint64(5), next2)
	res2, err := st.GetResourceByKey(ctx, resource.Key{ID: 100, ProtocolID: runtime.ProtocolID})
	require.NoError(t, err)
	require.Equal(t, res.CreatedAt, res2.CreatedAt)
}

func TestReconciler_ClosesResourceOnAgreementClosed(t *testing.T) {
	runtime, chain, st, ownerAddress, protocolAddress, userAddress := setup(t)
	ctx := context.Background()

	chain.Agreements[200] = &chainiface.Agreement{ID: 200, UserAddress: userAddress, ProviderAddress: ownerAddress, OfferID: 10, Balance: big.NewInt(0), Status: chainiface.AgreementNotActive}

	idx := indexer.NewFake()
	idx.PushEvent(indexer.Event{
		ContractAddress: protocolAddress,
		EventName:       indexer.EventAgreementCreated,
		BlockNumber:     5,
		Processed:       true,
		Args:            eventArgs(t, indexer.AgreementCreatedArgs{AgreementID: 200, OfferID: 10, UserAddress: userAddress, ProviderAddress: ownerAddress}),
	})
	idx.PushEvent(indexer.Event{
		ContractAddress: protocolAddress,
		EventName:       indexer.EventAgreementClosed,
		BlockNumber:     5,
		Processed:       true,
		Args:            eventArgs(t, indexer.AgreementClosedArgs{AgreementID: 200}),
	})

	reg := details.NewRegistry(st)
	r := New(idx, chain, st, reg, []*provider.Runtime{runtime}, 1000, 10*time.Millisecond, logging.New("test", "error"), nil, nil, nil)

	// Both events land in the same window: Create then Close must apply in
	// that order within a single tick.
	r.tick(ctx, 0)

	res, err := st.GetResourceByKey(ctx, resource.Key{ID: 200, ProtocolID: runtime.ProtocolID})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.False(t, res.IsActive)
	require.Equal(t, resource.Closed, res.DeploymentStatus)
	require.Empty(t, res.Details)
}

func TestReconciler_ReplayingCloseIsIdempotent(t *testing.T) {
	runtime, chain, st, ownerAddress, protocolAddress, userAddress := setup(t)
	ctx := context.Background()

	chain.Agreements[300] = &chainiface.Agreement{ID: 300, UserAddress: userAddress, ProviderAddress: ownerAddress, OfferID: 10, Balance: big.NewInt(0), Status: chainiface.AgreementNotActive}

	idx := indexer.NewFake()
	idx.PushEvent(indexer.Event{
		ContractAddress: protocolAddress,
		EventName:       indexer.EventAgreementCreated,
		BlockNumber:     1,
		Processed:       true,
		Args:            eventArgs(t, indexer.AgreementCreatedArgs{AgreementID: 300, OfferID: 10, UserAddress: userAddress, ProviderAddress: ownerAddress}),
	})
	idx.PushEvent(indexer.Event{
		ContractAddress: protocolAddress,
		EventName:       indexer.EventAgreementClosed,
		BlockNumber:     2,
		Processed:       true,
		Args:            eventArgs(t, indexer.AgreementClosedArgs{AgreementID: 300}),
	})

	reg := details.NewRegistry(st)
	r := New(idx, chain, st, reg, []*provider.Runtime{runtime}, 1000, 10*time.Millisecond, logging.New("test", "error"), nil, nil, nil)

	r.tick(ctx, 0)
	// Replay the whole history again, starting from 0, as if the cursor
	// had not advanced — closure must still apply at most once.
	r.tick(ctx, 0)

	res, err := st.GetResourceByKey(ctx, resource.Key{ID: 300, ProtocolID: runtime.ProtocolID})
	require.NoError(t, err)
	require.False(t, res.IsActive)
}
