package chainiface

import (
	"context"
	"fmt"
	"sync"

	"github.com/R3E-Network/provider-daemon/internal/details"
)

// Fake is an in-memory Client used by the reconciler/sweeper/provider unit
// tests, in the spirit of the teacher's MockRepository — a hand-rolled
// test double for a collaborator that is explicitly out of scope (spec §1).
type Fake struct {
	mu sync.Mutex

	Providers  map[int64]*Provider
	Offers     map[int64]*Offer
	Agreements map[int64]*Agreement
	Protocols  map[int64][]Address

	NextOfferID int64
	Closed      []int64
}

func NewFake() *Fake {
	return &Fake{
		Providers:   map[int64]*Provider{},
		Offers:      map[int64]*Offer{},
		Agreements:  map[int64]*Agreement{},
		Protocols:   map[int64][]Address{},
		NextOfferID: 1,
	}
}

func (f *Fake) GetActor(_ context.Context, address Address) (*Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.Providers {
		if AddressEqual(p.OwnerAddress, address) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("actor %s not found", address)
}

func (f *Fake) GetRegisteredProtocolsOf(_ context.Context, providerID int64) ([]Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Protocols[providerID], nil
}

func (f *Fake) GetOffer(_ context.Context, id int64) (*Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.Offers[id]
	if !ok {
		return nil, fmt.Errorf("offer %d not found", id)
	}
	return o, nil
}

func (f *Fake) GetAgreement(_ context.Context, id int64) (*Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.Agreements[id]
	if !ok {
		return nil, fmt.Errorf("agreement %d not found", id)
	}
	return a, nil
}

func (f *Fake) GetAllProviderOffers(_ context.Context, providerID int64) ([]*Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Offer
	for _, o := range f.Offers {
		if AddressEqual(o.OwnerAddress, f.Providers[providerID].OwnerAddress) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *Fake) CloseAgreement(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.Agreements[id]
	if !ok {
		return fmt.Errorf("agreement %d not found", id)
	}
	a.Status = AgreementNotActive
	f.Closed = append(f.Closed, id)
	return nil
}

func (f *Fake) RegisterOffer(_ context.Context, params RegisterOfferParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.NextOfferID
	f.NextOfferID++
	f.Offers[id] = &Offer{
		ID:           id,
		OwnerAddress: params.ProviderOwnerAddress,
		FeePerSecond: params.Fee,
		Stock:        params.StockAmount,
		DetailsCID:   params.DetailsLink,
	}
	return id, nil
}

// GenerateCID mirrors the same base58-over-sha256 digest
// internal/details.CID uses for the on-disk content cache, so a test's
// Fake-backed on-chain detailsCID resolves against the same content the
// Detail Registry stores it under.
func (f *Fake) GenerateCID(_ context.Context, content []byte) (string, error) {
	return details.CID(content), nil
}
