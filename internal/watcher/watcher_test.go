package watcher

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/provider-daemon/internal/backend"
	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/logging"
	"github.com/R3E-Network/provider-daemon/internal/resource"
	"github.com/R3E-Network/provider-daemon/internal/store"
)

type fakeBackend struct {
	result backend.Result
	err    error
}

func (b *fakeBackend) Create(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer) (backend.Result, error) {
	return b.result, b.err
}
func (b *fakeBackend) GetDetails(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer, res *resource.Resource) (backend.Result, error) {
	return b.result, b.err
}
func (b *fakeBackend) Delete(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer, res *resource.Resource) error {
	return b.err
}

func protocolAddr() chainiface.Address {
	a, _ := chainiface.ParseAddress("0x1111111111111111111111111111111111111111")
	return a
}

func ownerAddr() chainiface.Address {
	a, _ := chainiface.ParseAddress("0x2222222222222222222222222222222222222222")
	return a
}

func TestWatcher_StopsWhenResourceGoesMissing(t *testing.T) {
	st := store.NewMemory()
	chain := chainiface.NewFake()
	chain.Agreements[1] = &chainiface.Agreement{ID: 1}
	chain.Offers[1] = &chainiface.Offer{ID: 1, FeePerSecond: big.NewInt(1)}
	be := &fakeBackend{}
	logger := logging.New("test", "error")

	key := resource.Key{ID: 1, ProtocolID: 1}
	w := New(key, protocolAddr(), chain, st, be, logger)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not exit for a missing resource")
	}
}

func TestWatcher_ExitsOnceRunning(t *testing.T) {
	st := store.NewMemory()
	protocol, err := st.GetOrCreateProtocol(context.Background(), protocolAddr(), "")
	require.NoError(t, err)

	key := resource.Key{ID: 1, ProtocolID: protocol.ID}
	require.NoError(t, st.CreateResource(context.Background(), &resource.Resource{
		Key:              key,
		OwnerAddress:     ownerAddr(),
		OfferID:          1,
		IsActive:         true,
		DeploymentStatus: resource.Deploying,
		Details:          map[string]any{},
	}))

	chain := chainiface.NewFake()
	chain.Agreements[1] = &chainiface.Agreement{ID: 1}
	chain.Offers[1] = &chainiface.Offer{ID: 1, FeePerSecond: big.NewInt(1)}
	be := &fakeBackend{result: backend.Result{Status: resource.Running, Details: map[string]any{"url": "https://example.test"}}}
	logger := logging.New("test", "error")

	w := New(key, protocolAddr(), chain, st, be, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Run(ctx)

	res, err := st.GetResourceByKey(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, resource.Running, res.DeploymentStatus)
	require.Equal(t, "https://example.test", res.Details["url"])
}
