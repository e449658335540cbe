package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/provider-daemon/internal/backend"
	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/resource"
)

type stubBackend struct{ cfg map[string]string }

func (stubBackend) Create(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer) (backend.Result, error) {
	return backend.Result{}, nil
}
func (stubBackend) GetDetails(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer, res *resource.Resource) (backend.Result, error) {
	return backend.Result{}, nil
}
func (stubBackend) Delete(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer, res *resource.Resource) error {
	return nil
}

func TestRegisterAndGet(t *testing.T) {
	Register("test-stub", Info{Name: "Test Stub"}, func(cfg map[string]string) (backend.ServiceBackend, error) {
		return stubBackend{cfg: cfg}, nil
	})

	factory, ok := Get("test-stub")
	require.True(t, ok)

	be, err := factory(map[string]string{"FOO": "bar"})
	require.NoError(t, err)
	require.Equal(t, stubBackend{cfg: map[string]string{"FOO": "bar"}}, be)

	require.Contains(t, List(), "test-stub")
}

func TestGet_UnknownKind(t *testing.T) {
	_, ok := Get("does-not-exist")
	require.False(t, ok)
}

func TestMustGet_PanicsOnUnknownKind(t *testing.T) {
	require.Panics(t, func() {
		MustGet("does-not-exist")
	})
}

func TestRegister_PanicsOnDuplicateKind(t *testing.T) {
	Register("duplicate-stub", Info{Name: "Dup"}, func(cfg map[string]string) (backend.ServiceBackend, error) {
		return stubBackend{}, nil
	})

	require.Panics(t, func() {
		Register("duplicate-stub", Info{Name: "Dup"}, func(cfg map[string]string) (backend.ServiceBackend, error) {
			return stubBackend{}, nil
		})
	})
}
