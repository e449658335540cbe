// Package watcher implements the Resource Watcher (spec §4.7): a
// per-resource cooperative task that polls a ServiceBackend until it
// reports Running, modeled on the same select-on-ctx.Done/time.After
// cancellable loop the teacher's confidential-computing marble core
// (services/confidential/marble/core.go) uses for its own polling
// primitives.
package watcher

import (
	"context"
	"time"

	"github.com/R3E-Network/provider-daemon/internal/backend"
	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/logging"
	"github.com/R3E-Network/provider-daemon/internal/resource"
	"github.com/R3E-Network/provider-daemon/internal/store"
)

const pollInterval = 5 * time.Second

// Watcher polls one not-yet-Running resource until it becomes Running, the
// resource disappears or goes inactive, or ctx is cancelled.
type Watcher struct {
	key             resource.Key
	protocolAddress chainiface.Address

	chain   chainiface.Client
	st      store.Store
	backend backend.ServiceBackend
	logger  *logging.Logger
}

// New builds a Watcher for one resource. The caller (the Reconciler, when
// a Create does not immediately report Running) owns spawning Run as a
// goroutine and tracking it against the Lifecycle Supervisor's cleanup
// barrier.
func New(key resource.Key, protocolAddress chainiface.Address, chain chainiface.Client, st store.Store, be backend.ServiceBackend, logger *logging.Logger) *Watcher {
	return &Watcher{
		key:             key,
		protocolAddress: protocolAddress,
		chain:           chain,
		st:              st,
		backend:         be,
		logger:          logger.With(map[string]any{"resourceId": key.ID}),
	}
}

// Run blocks until the resource reaches Running, goes missing/inactive, or
// ctx is cancelled (spec §4.7). On shutdown the Lifecycle Supervisor waits
// for every in-flight Run to return before exiting.
func (w *Watcher) Run(ctx context.Context) {
	for {
		keepGoing := w.poll(ctx)
		if !keepGoing {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
	}
}

// poll runs one iteration of step 1-3 of spec §4.7, returning false when
// the watcher should stop: the backend reported Running, or the resource
// disappeared or went inactive underneath it. Any other reported status
// (including Failed) keeps the watcher polling.
func (w *Watcher) poll(ctx context.Context) bool {
	res, err := w.st.GetResourceByKey(ctx, w.key)
	if err != nil {
		w.logger.WithError(err).Warnf("watcher: load resource failed, retrying")
		return true
	}
	if res == nil || !res.IsActive {
		return false
	}

	agreement, err := w.chain.GetAgreement(ctx, w.key.ID)
	if err != nil {
		w.logger.WithError(err).Warnf("watcher: fetch agreement failed, retrying")
		return true
	}
	offer, err := w.chain.GetOffer(ctx, res.OfferID)
	if err != nil {
		w.logger.WithError(err).Warnf("watcher: fetch offer failed, retrying")
		return true
	}

	result, err := w.backend.GetDetails(ctx, agreement, offer, res)
	if err != nil {
		w.logger.WithError(err).Warnf("watcher: getDetails failed, retrying")
		return true
	}
	if result.Status != resource.Running {
		return true
	}

	err = w.st.UpdateResource(ctx, w.key, w.protocolAddress, func(r *resource.Resource) {
		r.DeploymentStatus = resource.Running
		r.Details = resource.WithoutReserved(result.Details)
	})
	if err != nil {
		w.logger.WithError(err).Errorf("watcher: persist Running state failed")
	}
	return false
}
