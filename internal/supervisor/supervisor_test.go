package supervisor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/provider-daemon/internal/logging"
)

func TestSupervisor_HandleHealth(t *testing.T) {
	sup := New(logging.New("test", "error"), prometheus.NewRegistry(), "127.0.0.1:0")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	sup.handleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Running", rec.Body.String())
}

func TestSupervisor_ContextCancelledOnShutdownSignal(t *testing.T) {
	sup := New(logging.New("test", "error"), prometheus.NewRegistry(), "127.0.0.1:0")

	started := make(chan struct{})
	finished := make(chan struct{})
	sup.Spawn(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(finished)
	})
	<-started

	done := make(chan int, 1)
	go func() { done <- sup.Run(2 * time.Second) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	select {
	case code := <-done:
		require.Equal(t, 1, code)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after shutdown signal")
	}

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("spawned task was not cancelled by the shutdown signal")
	}

	require.Error(t, sup.Context().Err())
}
