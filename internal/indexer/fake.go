package indexer

import (
	"context"
	"sort"
	"sync"
)

// Fake is an in-memory Client for reconciler/sweeper tests.
type Fake struct {
	mu         sync.Mutex
	events     []Event
	agreements []AgreementSnapshot
	healthy    bool
}

func NewFake() *Fake {
	return &Fake{healthy: true}
}

func (f *Fake) PushEvent(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *Fake) SetAgreements(snaps []AgreementSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agreements = snaps
}

func (f *Fake) SetHealthy(h bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = h
}

func (f *Fake) GetAgreements(_ context.Context, filter AgreementFilter) ([]AgreementSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.healthy {
		return nil, errTransport
	}

	var out []AgreementSnapshot
	for _, a := range f.agreements {
		if filter.ProviderAddress != nil && a.ProviderAddress != *filter.ProviderAddress {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		if filter.ID != nil && a.ID != *filter.ID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *Fake) GetEvents(_ context.Context, filter EventFilter) ([]Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.healthy {
		return nil, errTransport
	}

	var out []Event
	for _, e := range f.events {
		if filter.EventName != "" && e.EventName != filter.EventName {
			continue
		}
		if e.BlockNumber < filter.FromBlock {
			continue
		}
		if filter.ToBlock > 0 && e.BlockNumber > filter.ToBlock {
			continue
		}
		out = append(out, e)
	}

	// The real indexer returns pages in deterministic-but-unordered form;
	// the fake shuffles deterministically by sorting descending then lets
	// callers verify they re-sort ascending themselves (spec §4.2).
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber > out[j].BlockNumber })

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *Fake) IsHealthy(_ context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

type fakeTransportError struct{}

func (fakeTransportError) Error() string { return "fake indexer: transport error" }

var errTransport error = fakeTransportError{}
