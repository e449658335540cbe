package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/resource"
)

// Memory is an in-memory Store, modeled on the teacher's
// internal/database/MockRepository: a mutex-guarded set of maps used by
// unit tests across the reconciler, sweeper, provider runtime and router.
type Memory struct {
	mu sync.RWMutex

	protocolsByAddr map[string]*ProtocolRow
	protocolsByID   map[int64]*ProtocolRow
	nextProtocolID  int64

	providersByOwner map[string]*ProviderRow
	nextProviderID   int64

	resources map[resource.Key]*resource.Resource

	details map[string][]byte
	config  map[string]string

	vprovConfigs map[[2]int64]VProvOfferConfig
}

func NewMemory() *Memory {
	return &Memory{
		protocolsByAddr:  map[string]*ProtocolRow{},
		protocolsByID:    map[int64]*ProtocolRow{},
		providersByOwner: map[string]*ProviderRow{},
		resources:        map[resource.Key]*resource.Resource{},
		details:          map[string][]byte{},
		config:           map[string]string{},
		vprovConfigs:     map[[2]int64]VProvOfferConfig{},
		nextProtocolID:   1,
		nextProviderID:   1,
	}
}

func ciKey(a chainiface.Address) string { return strings.ToLower(a.String()) }

func (m *Memory) GetOrCreateProtocol(_ context.Context, address chainiface.Address, detailsCID string) (*ProtocolRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ciKey(address)
	if p, ok := m.protocolsByAddr[key]; ok {
		return p, nil
	}
	p := &ProtocolRow{ID: m.nextProtocolID, Address: address, DetailsCID: detailsCID}
	m.nextProtocolID++
	m.protocolsByAddr[key] = p
	m.protocolsByID[p.ID] = p
	return p, nil
}

func (m *Memory) GetProtocolByAddress(_ context.Context, address chainiface.Address) (*ProtocolRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.protocolsByAddr[ciKey(address)]
	if !ok {
		return nil, fmt.Errorf("protocol %s not found", address)
	}
	return p, nil
}

func (m *Memory) GetProtocolByID(_ context.Context, id int64) (*ProtocolRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.protocolsByID[id]
	if !ok {
		return nil, fmt.Errorf("protocol id %d not found", id)
	}
	return p, nil
}

func (m *Memory) UpsertProvider(_ context.Context, p ProviderRow) (*ProviderRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ciKey(p.OwnerAddress)
	if existing, ok := m.providersByOwner[key]; ok {
		p.ID = existing.ID
		*existing = p
		return existing, nil
	}
	p.ID = m.nextProviderID
	m.nextProviderID++
	row := p
	m.providersByOwner[key] = &row
	return &row, nil
}

func (m *Memory) GetProviderByOwner(_ context.Context, owner chainiface.Address) (*ProviderRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providersByOwner[ciKey(owner)]
	if !ok {
		return nil, fmt.Errorf("provider %s not found", owner)
	}
	return p, nil
}

func (m *Memory) ListVirtualChildren(_ context.Context, gatewayProviderID int64) ([]*ProviderRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ProviderRow
	for _, p := range m.providersByOwner {
		if p.IsVirtual && p.GatewayProviderID != nil && *p.GatewayProviderID == gatewayProviderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) GetResource(_ context.Context, id int64, owner chainiface.Address, protocolAddr chainiface.Address) (*resource.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	protocol, ok := m.protocolsByAddr[ciKey(protocolAddr)]
	if !ok {
		return nil, fmt.Errorf("protocol %s not found", protocolAddr)
	}
	r, ok := m.resources[resource.Key{ID: id, ProtocolID: protocol.ID}]
	if !ok || !chainiface.AddressEqual(r.OwnerAddress, owner) {
		return nil, fmt.Errorf("resource %d not found for owner %s", id, owner)
	}
	return r, nil
}

func (m *Memory) GetResourceByKey(_ context.Context, key resource.Key) (*resource.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[key]
	if !ok {
		return nil, nil
	}
	return r, nil
}

func (m *Memory) ListResourcesByOwner(_ context.Context, owner chainiface.Address) ([]*resource.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*resource.Resource
	for _, r := range m.resources {
		if chainiface.AddressEqual(r.OwnerAddress, owner) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) CreateResource(_ context.Context, r *resource.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[r.Key]; ok {
		return fmt.Errorf("resource %+v already exists", r.Key)
	}
	copyRes := *r
	m.resources[r.Key] = &copyRes
	return nil
}

// UpdateResource requires the (id, protocolAddr) pair to resolve to a known
// protocol; a miss is logged by the caller and silently drops the update,
// per spec §4.1 ("prevents blind writes to unknown protocols").
func (m *Memory) UpdateResource(_ context.Context, key resource.Key, protocolAddr chainiface.Address, mutate func(*resource.Resource)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	protocol, ok := m.protocolsByAddr[ciKey(protocolAddr)]
	if !ok || protocol.ID != key.ProtocolID {
		return errUnknownProtocol
	}

	r, ok := m.resources[key]
	if !ok {
		return fmt.Errorf("resource %+v not found", key)
	}
	mutate(r)
	return nil
}

func (m *Memory) DeleteResource(_ context.Context, key resource.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.resources[key]
	if !ok {
		return nil
	}
	r.Close()
	return nil
}

func (m *Memory) SyncDetailFiles(contents map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details = make(map[string][]byte, len(contents))
	for cid, content := range contents {
		m.details[cid] = content
	}
	return nil
}

func (m *Memory) GetDetailContent(_ context.Context, cid string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.details[cid]
	return content, ok, nil
}

func (m *Memory) PutDetailContent(_ context.Context, cid string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[cid] = content
	return nil
}

func (m *Memory) GetConfig(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.config[key]
	return v, ok, nil
}

func (m *Memory) SetConfig(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config[key] = value
	return nil
}

func (m *Memory) GetVProvOfferConfig(_ context.Context, offerID, protocolID int64) (*VProvOfferConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.vprovConfigs[[2]int64{offerID, protocolID}]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (m *Memory) SetVProvOfferConfig(_ context.Context, cfg VProvOfferConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vprovConfigs[[2]int64{cfg.OfferID, cfg.ProtocolID}] = cfg
	return nil
}

var errUnknownProtocol = fmt.Errorf("store: unknown protocol for resource update")

// ErrUnknownProtocol is returned by UpdateResource when the (id,
// protocolAddr) pair does not resolve, so callers can log-and-drop per
// spec §4.1 without treating it as a hard failure.
var ErrUnknownProtocol = errUnknownProtocol
