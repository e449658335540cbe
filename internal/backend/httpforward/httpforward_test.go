package httpforward

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/resource"
)

func mustAddress(t *testing.T, s string) chainiface.Address {
	a, err := chainiface.ParseAddress(s)
	require.NoError(t, err)
	return a
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(map[string]string{})
	require.Error(t, err)
}

func TestBackend_Create(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"name":    "svc-1",
			"status":  "Running",
			"details": map[string]any{"endpoint": "https://svc.test"},
		})
	}))
	defer server.Close()

	be, err := New(map[string]string{"BASE_URL": server.URL})
	require.NoError(t, err)

	agreement := &chainiface.Agreement{ID: 1, UserAddress: mustAddress(t, "0x1111111111111111111111111111111111111111")}
	offer := &chainiface.Offer{ID: 10}

	result, err := be.Create(context.Background(), agreement, offer)
	require.NoError(t, err)

	require.Equal(t, "/resources", gotPath)
	require.Equal(t, http.MethodPost, gotMethod)
	require.Equal(t, "svc-1", result.Name)
	require.Equal(t, resource.Running, result.Status)
	require.Equal(t, "https://svc.test", result.Details["endpoint"])
}

func TestBackend_GetDetails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/resources/42", r.URL.Path)
		require.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "svc-1", "status": "Deploying"})
	}))
	defer server.Close()

	be, err := New(map[string]string{"BASE_URL": server.URL})
	require.NoError(t, err)

	res := &resource.Resource{Key: resource.Key{ID: 42}}
	result, err := be.GetDetails(context.Background(), &chainiface.Agreement{}, &chainiface.Offer{}, res)
	require.NoError(t, err)
	require.Equal(t, resource.Deploying, result.Status)
}

func TestBackend_Delete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/resources/7", r.URL.Path)
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	be, err := New(map[string]string{"BASE_URL": server.URL})
	require.NoError(t, err)

	res := &resource.Resource{Key: resource.Key{ID: 7}}
	err = be.Delete(context.Background(), &chainiface.Agreement{}, &chainiface.Offer{}, res)
	require.NoError(t, err)
}

func TestBackend_Delete_PropagatesServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	be, err := New(map[string]string{"BASE_URL": server.URL})
	require.NoError(t, err)

	res := &resource.Resource{Key: resource.Key{ID: 1}}
	err = be.Delete(context.Background(), &chainiface.Agreement{}, &chainiface.Offer{}, res)
	require.Error(t, err)
}
