package provider

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/provider-daemon/internal/backend"
	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/details"
	"github.com/R3E-Network/provider-daemon/internal/health"
	"github.com/R3E-Network/provider-daemon/internal/logging"
	"github.com/R3E-Network/provider-daemon/internal/resource"
	"github.com/R3E-Network/provider-daemon/internal/router"
	"github.com/R3E-Network/provider-daemon/internal/store"
)

type fakeBackend struct{}

func (fakeBackend) Create(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer) (backend.Result, error) {
	return backend.Result{}, nil
}
func (fakeBackend) GetDetails(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer, res *resource.Resource) (backend.Result, error) {
	return backend.Result{}, nil
}
func (fakeBackend) Delete(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer, res *resource.Resource) error {
	return nil
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()

	ownerAddress, err := chainiface.ParseAddress("0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	protocolAddress, err := chainiface.ParseAddress("0x3333333333333333333333333333333333333333")
	require.NoError(t, err)

	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.PutDetailContent(ctx, "d1", []byte(`{"name":"svc"}`)))

	chain := chainiface.NewFake()
	chain.Providers[1] = &chainiface.Provider{ID: 1, OwnerAddress: ownerAddress, OperatorAddress: ownerAddress, Endpoint: "http://provider.test", DetailsCID: "d1"}
	chain.Offers[10] = &chainiface.Offer{ID: 10, OwnerAddress: ownerAddress, FeePerSecond: big.NewInt(1), Stock: 100, DetailsCID: "d1"}

	reg := details.NewRegistry(st)
	rt := router.New(logging.New("test", "error"))

	runtime, err := New(ctx, Config{
		OwnerAddress:    ownerAddress,
		OperatorAddress: ownerAddress,
		Endpoint:        "http://provider.test",
		ProtocolAddress: protocolAddress,
		DataDir:         t.TempDir(),
	}, chain, st, reg, fakeBackend{}, rt.Table, logging.New("test", "error"))
	require.NoError(t, err)
	return runtime
}

func TestHandleGetProviders_NoTracker(t *testing.T) {
	runtime := newTestRuntime(t)

	resp, err := runtime.handleGetProviders(context.Background(), &router.PipeRequest{})
	require.NoError(t, err)

	body, ok := resp.Body.(map[string]any)
	require.True(t, ok)
	require.Equal(t, false, body["gateway"])
	require.Equal(t, time.Time{}, body["lastReconcilerTick"])
	require.Equal(t, time.Time{}, body["lastSweep"])

	providers, ok := body["providers"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, providers, 1)
	require.Equal(t, int64(1), providers[0]["id"])
	require.Equal(t, false, providers[0]["isVirtual"])
}

func TestHandleGetProviders_ReportsTrackerSnapshot(t *testing.T) {
	runtime := newTestRuntime(t)
	tracker := health.NewTracker()
	runtime.SetHealthTracker(tracker)

	tick := time.Now().Add(-time.Minute)
	sweep := time.Now().Add(-time.Hour)
	tracker.MarkReconcilerTick(tick)
	tracker.MarkSweep(sweep)

	resp, err := runtime.handleGetProviders(context.Background(), &router.PipeRequest{})
	require.NoError(t, err)

	body, ok := resp.Body.(map[string]any)
	require.True(t, ok)
	require.Equal(t, tick, body["lastReconcilerTick"])
	require.Equal(t, sweep, body["lastSweep"])
}
