// Package sweeper implements the Balance Sweeper (spec §4.8): a
// boot-plus-interval task that closes agreements whose on-chain balance has
// run out. The interval scheduling is grounded on robfig/cron/v3's @every
// schedule, the same scheduling library the teacher repo's go.mod carries
// but never exercises on its own polling loops — here it replaces the
// teacher's hand-rolled ticker (platform/contracts/client/listener.go) with
// a library the corpus already depends on.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/health"
	"github.com/R3E-Network/provider-daemon/internal/indexer"
	"github.com/R3E-Network/provider-daemon/internal/logging"
	"github.com/R3E-Network/provider-daemon/internal/metrics"
	"github.com/R3E-Network/provider-daemon/internal/provider"
)

// Sweeper closes out-of-balance agreements for every configured Provider
// Runtime, at boot and on a recurring schedule.
type Sweeper struct {
	idx      indexer.Client
	chain    chainiface.Client
	runtimes []*provider.Runtime
	logger   *logging.Logger

	cron    *cron.Cron
	health  *health.Tracker
	metrics *metrics.Metrics

	mu      sync.Mutex
	running bool
}

// New builds a Sweeper over every configured Provider Runtime. tracker and
// m may be nil.
func New(idx indexer.Client, chain chainiface.Client, runtimes []*provider.Runtime, logger *logging.Logger, tracker *health.Tracker, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		idx:      idx,
		chain:    chain,
		runtimes: runtimes,
		logger:   logger.With(map[string]any{"component": "sweeper"}),
		cron:     cron.New(),
		health:   tracker,
		metrics:  m,
	}
}

// Run sweeps once immediately, then schedules a recurring sweep every
// interval until ctx is cancelled. Overlapping ticks are dropped: if a
// sweep is still in flight when the schedule fires again, the new tick is
// skipped rather than queued (spec §4.8's "serialized" requirement).
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	s.sweepOnce(ctx)

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() { s.sweepOnce(ctx) })
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.cron.Start()
	<-ctx.Done()

	done := s.cron.Stop()
	<-done.Done()
	return nil
}

// sweepOnce implements spec §4.8 steps 1-2. A tick that is still running
// when the schedule fires again is dropped, not queued.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warnf("previous sweep still in flight, dropping this tick")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	activeTotal := 0
	outcome := "ok"
	for _, rt := range s.runtimes {
		for _, actor := range rt.Actors() {
			n, err := s.sweepActor(ctx, rt.ProtocolAddress, actor.ID, actor.OwnerAddress)
			activeTotal += n
			if err != nil {
				outcome = "indexer_error"
			}
		}
	}
	s.health.MarkSweep(time.Now())
	if s.metrics != nil {
		s.metrics.RecordSweeperTick(outcome)
		s.metrics.SetActiveResources(activeTotal)
	}
}

// sweepActor returns the number of active agreements it listed for this
// actor, for the caller's resource-count gauge, alongside any listing
// error (a force-close failure does not count as a listing error).
func (s *Sweeper) sweepActor(ctx context.Context, protocolAddr chainiface.Address, providerID int64, ownerAddress chainiface.Address) (int, error) {
	status := chainiface.AgreementActive
	agreements, err := s.idx.GetAgreements(ctx, indexer.AgreementFilter{
		ProtocolAddress: protocolAddr,
		ProviderAddress: &ownerAddress,
		Status:          &status,
		AutoPaginate:    true,
	})
	if err != nil {
		s.logger.WithError(err).Warnf("list agreements for provider %d failed", providerID)
		return 0, err
	}

	for _, agreement := range agreements {
		if agreement.Balance == nil || agreement.Balance.Sign() > 0 {
			continue
		}
		if err := s.chain.CloseAgreement(ctx, agreement.ID); err != nil {
			s.logger.WithError(err).Warnf("close out-of-balance agreement %d failed", agreement.ID)
			continue
		}
		if s.metrics != nil {
			s.metrics.RecordForceClose()
		}
	}
	return len(agreements), nil
}
