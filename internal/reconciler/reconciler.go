// Package reconciler implements the Reconciler (spec §4.4): the
// event-driven engine that windows block ranges from the indexer, applies
// AgreementCreated/AgreementClosed events in ascending order, and drives
// the Provider Runtime's ServiceBackend to create or tear down resources.
// The block-window/cursor-persistence shape is grounded on the teacher's
// platform/contracts/client/listener.go EventListener — a
// subscribe-then-dispatch loop with a persisted lastBlock watermark —
// generalized here from a push subscription to a pull-and-window poll
// because the indexer boundary (spec §4.2) is a REST facade, not a
// streaming one.
package reconciler

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/R3E-Network/provider-daemon/internal/backend"
	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/daemonerr"
	"github.com/R3E-Network/provider-daemon/internal/details"
	"github.com/R3E-Network/provider-daemon/internal/health"
	"github.com/R3E-Network/provider-daemon/internal/indexer"
	"github.com/R3E-Network/provider-daemon/internal/logging"
	"github.com/R3E-Network/provider-daemon/internal/metrics"
	"github.com/R3E-Network/provider-daemon/internal/provider"
	"github.com/R3E-Network/provider-daemon/internal/resource"
	"github.com/R3E-Network/provider-daemon/internal/store"
)

// SpawnWatcher starts a Resource Watcher for a resource that did not come
// up Running immediately (spec §4.4.1, §4.7). The Lifecycle Supervisor
// supplies the concrete closure so it can track the goroutine against its
// shutdown cleanup barrier.
type SpawnWatcher func(key resource.Key, protocolAddress chainiface.Address, be backend.ServiceBackend)

// Reconciler drives one main loop across every configured Provider Runtime.
type Reconciler struct {
	idx    indexer.Client
	chain  chainiface.Client
	st     store.Store
	reg    *details.Registry
	logger *logging.Logger

	runtimes     []*provider.Runtime
	interval     time.Duration
	window       uint64
	spawnWatcher SpawnWatcher
	health       *health.Tracker
	metrics      *metrics.Metrics

	rng *rand.Rand
}

// New builds a Reconciler over every configured Provider Runtime. window
// is BLOCK_PROCESS_RANGE (spec §4.4); interval is AGREEMENT_CHECK_INTERVAL.
// tracker and m may be nil.
func New(idx indexer.Client, chain chainiface.Client, st store.Store, reg *details.Registry, runtimes []*provider.Runtime, window uint64, interval time.Duration, logger *logging.Logger, spawnWatcher SpawnWatcher, tracker *health.Tracker, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		idx:          idx,
		chain:        chain,
		st:           st,
		reg:          reg,
		logger:       logger.With(map[string]any{"component": "reconciler"}),
		runtimes:     runtimes,
		interval:     interval,
		window:       window,
		spawnWatcher: spawnWatcher,
		health:       tracker,
		metrics:      m,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *Reconciler) recordTick(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordReconcilerTick(outcome)
	}
}

func (r *Reconciler) recordEvent(event, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordEvent(event, outcome)
	}
}

// Run blocks, ticking until ctx is cancelled (spec §4.4's main loop).
func (r *Reconciler) Run(ctx context.Context) {
	last, err := r.loadCursor(ctx)
	if err != nil {
		r.logger.WithError(err).Errorf("initialize cursor failed, reconciler cannot start")
		return
	}

	for ctx.Err() == nil {
		last = r.tick(ctx, last)
		r.health.MarkReconcilerTick(time.Now())

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}
	}
}

// loadCursor resolves the persisted cursor, or the current indexer tip if
// none has been persisted yet ("a fresh daemon does not flood on history").
func (r *Reconciler) loadCursor(ctx context.Context) (uint64, error) {
	raw, ok, err := r.st.GetConfig(ctx, store.ConfigKeyLastProcessedBlock)
	if err != nil {
		return 0, err
	}
	if ok {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err == nil {
			return v, nil
		}
		r.logger.WithError(err).Warnf("stored cursor %q is not a valid block number, resetting to tip", raw)
	}
	return r.fetchLastIndexedBlock(ctx)
}

func (r *Reconciler) fetchLastIndexedBlock(ctx context.Context) (uint64, error) {
	events, err := r.idx.GetEvents(ctx, indexer.EventFilter{Limit: 1, Processed: true})
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}
	return events[0].BlockNumber, nil
}

// tick runs one iteration of spec §4.4's main loop steps 1-5, returning the
// cursor value to persist/carry into the next iteration.
func (r *Reconciler) tick(ctx context.Context, last uint64) uint64 {
	lastIndexed, err := r.fetchLastIndexedBlock(ctx)
	if err != nil {
		r.recordIndexerFailure(ctx, err)
		r.recordTick("indexer_error")
		return last
	}
	r.recordIndexerSuccess()

	fromBlock := last + 1
	toBlock := last + r.window
	transportFailure := false

	for _, rt := range r.runtimes {
		events, err := r.fetchProtocolEvents(ctx, rt.ProtocolAddress, fromBlock, toBlock)
		if err != nil {
			if daemonerr.Is(err, daemonerr.KindTransport) {
				transportFailure = true
			}
			r.recordIndexerFailure(ctx, err)
			continue
		}
		r.recordIndexerSuccess()

		for _, ev := range events {
			r.dispatch(ctx, rt, ev)
		}
	}

	if transportFailure {
		// Step 4: do not advance the cursor when the agreement-event fetch
		// itself failed as a transport error for this window.
		r.recordTick("transport_error")
		return last
	}

	next := toBlock
	if lastIndexed < toBlock {
		next = lastIndexed
	}
	if next < last {
		next = last
	}

	if err := r.st.SetConfig(ctx, store.ConfigKeyLastProcessedBlock, strconv.FormatUint(next, 10)); err != nil {
		r.logger.WithError(err).Errorf("persist cursor %d failed", next)
		r.recordTick("persist_error")
		return last
	}
	if r.metrics != nil {
		r.metrics.SetLastProcessedBlock(next)
	}
	r.recordTick("ok")
	return next
}

// fetchProtocolEvents fetches AgreementCreated and AgreementClosed events
// for one protocol in [from, to] and sorts them ascending by block number.
// Concatenating created-then-closed before the stable sort preserves the
// tie-break spec §4.4 requires: "a Close observed in the same window as
// its Create MUST be applied after the Create."
func (r *Reconciler) fetchProtocolEvents(ctx context.Context, protocolAddr chainiface.Address, from, to uint64) ([]indexer.Event, error) {
	created, err := r.idx.GetEvents(ctx, indexer.EventFilter{
		ContractAddress: protocolAddr,
		EventName:       indexer.EventAgreementCreated,
		FromBlock:       from,
		ToBlock:         to,
		Processed:       true,
		AutoPaginate:    true,
	})
	if err != nil {
		return nil, err
	}

	closed, err := r.idx.GetEvents(ctx, indexer.EventFilter{
		ContractAddress: protocolAddr,
		EventName:       indexer.EventAgreementClosed,
		FromBlock:       from,
		ToBlock:         to,
		Processed:       true,
		AutoPaginate:    true,
	})
	if err != nil {
		return nil, err
	}

	events := append(created, closed...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].BlockNumber < events[j].BlockNumber })
	return events, nil
}

func (r *Reconciler) dispatch(ctx context.Context, rt *provider.Runtime, ev indexer.Event) {
	switch ev.EventName {
	case indexer.EventAgreementCreated:
		var args indexer.AgreementCreatedArgs
		if err := json.Unmarshal(ev.Args, &args); err != nil {
			r.logger.WithError(err).Errorf("decode AgreementCreated args at block %d failed", ev.BlockNumber)
			return
		}
		providerID, ok := rt.ResolveActor(args.ProviderAddress)
		if !ok {
			return
		}
		r.handleCreated(ctx, rt, providerID, args)

	case indexer.EventAgreementClosed:
		var args indexer.AgreementClosedArgs
		if err := json.Unmarshal(ev.Args, &args); err != nil {
			r.logger.WithError(err).Errorf("decode AgreementClosed args at block %d failed", ev.BlockNumber)
			return
		}
		r.handleClosed(ctx, rt, args)
	}
}

// handleCreated implements spec §4.4.1.
func (r *Reconciler) handleCreated(ctx context.Context, rt *provider.Runtime, providerID int64, args indexer.AgreementCreatedArgs) {
	key := resource.Key{ID: args.AgreementID, ProtocolID: rt.ProtocolID}

	existing, err := r.st.GetResourceByKey(ctx, key)
	if err != nil {
		r.logger.WithError(err).Errorf("load resource %d failed", args.AgreementID)
		return
	}
	if existing != nil {
		r.recordEvent(string(indexer.EventAgreementCreated), "skipped")
		return // idempotency: creation already acknowledged
	}

	offer, err := r.chain.GetOffer(ctx, args.OfferID)
	if err != nil {
		r.logger.WithError(err).Errorf("fetch offer %d for agreement %d failed", args.OfferID, args.AgreementID)
		return
	}
	if _, ok, err := r.reg.Resolve(ctx, offer.DetailsCID); err != nil {
		r.logger.WithError(err).Warnf("resolve offer %d detail blob failed", args.OfferID)
	} else if !ok {
		r.logger.Warnf("offer %d detail blob %s missing, continuing", args.OfferID, offer.DetailsCID)
	}

	agreement, err := r.chain.GetAgreement(ctx, args.AgreementID)
	if err != nil {
		r.logger.WithError(err).Errorf("fetch agreement %d failed", args.AgreementID)
		return
	}

	be := rt.Backend()
	result, err := be.Create(ctx, agreement, offer)
	if err != nil {
		r.logger.WithError(err).Warnf("backend create failed for agreement %d, recording Failed resource", args.AgreementID)
		failed := &resource.Resource{
			Key:              key,
			Name:             resource.RandomName(r.rng),
			OwnerAddress:     args.UserAddress,
			OfferID:          args.OfferID,
			ProviderID:       providerID,
			DeploymentStatus: resource.Failed,
			Details:          map[string]any{},
			IsActive:         true,
			GroupName:        "default",
		}
		if err := r.st.CreateResource(ctx, failed); err != nil {
			r.logger.WithError(err).Errorf("persist Failed resource %d failed", args.AgreementID)
		}
		r.recordEvent(string(indexer.EventAgreementCreated), "failed")
		return
	}

	name := result.Name
	if name == "" {
		name = resource.RandomName(r.rng)
	}
	res := &resource.Resource{
		Key:              key,
		Name:             name,
		OwnerAddress:     args.UserAddress,
		OfferID:          args.OfferID,
		ProviderID:       providerID,
		DeploymentStatus: result.Status,
		Details:          resource.WithoutReserved(result.Details),
		IsActive:         true,
		GroupName:        "default",
	}
	if err := r.st.CreateResource(ctx, res); err != nil {
		r.logger.WithError(err).Errorf("persist resource %d failed", args.AgreementID)
		return
	}

	if result.Status != resource.Running && r.spawnWatcher != nil {
		r.spawnWatcher(key, rt.ProtocolAddress, be)
	}
	r.recordEvent(string(indexer.EventAgreementCreated), "created")
}

// handleClosed implements spec §4.4.2.
func (r *Reconciler) handleClosed(ctx context.Context, rt *provider.Runtime, args indexer.AgreementClosedArgs) {
	key := resource.Key{ID: args.AgreementID, ProtocolID: rt.ProtocolID}

	res, err := r.st.GetResourceByKey(ctx, key)
	if err != nil {
		r.logger.WithError(err).Errorf("load resource %d for closure failed", args.AgreementID)
		return
	}
	if res == nil || !res.IsActive {
		r.recordEvent(string(indexer.EventAgreementClosed), "skipped")
		return
	}
	if !rt.Owns(res.ProviderID) {
		// This protocol is shared with a sibling runtime that owns the
		// resource; it applies the closure on its own pass.
		r.recordEvent(string(indexer.EventAgreementClosed), "skipped")
		return
	}

	offer, offerErr := r.chain.GetOffer(ctx, res.OfferID)
	if offerErr != nil {
		r.logger.WithError(offerErr).Warnf("fetch offer %d for closing agreement %d failed", res.OfferID, args.AgreementID)
	}
	agreement, agreementErr := r.chain.GetAgreement(ctx, args.AgreementID)
	if agreementErr != nil {
		r.logger.WithError(agreementErr).Warnf("fetch agreement %d for closure failed", args.AgreementID)
	}
	if offer != nil && agreement != nil {
		if err := rt.Backend().Delete(ctx, agreement, offer, res); err != nil {
			r.logger.WithError(err).Warnf("backend delete failed for agreement %d, closing row anyway", args.AgreementID)
		}
	}

	if err := r.st.DeleteResource(ctx, key); err != nil {
		r.logger.WithError(err).Errorf("close resource %d failed", args.AgreementID)
		r.recordEvent(string(indexer.EventAgreementClosed), "error")
		return
	}
	r.recordEvent(string(indexer.EventAgreementClosed), "closed")
}

// recordIndexerFailure and recordIndexerSuccess implement the degradation
// discipline (spec §4.9): "indexer not healthy" is logged exactly once per
// outage, guarded by the Logger's own single-flight flag.
func (r *Reconciler) recordIndexerFailure(ctx context.Context, err error) {
	r.logger.WithError(err).Debugf("indexer call failed")
	if !r.idx.IsHealthy(ctx) {
		r.logger.IndexerUnhealthy()
	}
}

func (r *Reconciler) recordIndexerSuccess() {
	r.logger.IndexerHealthy()
}
