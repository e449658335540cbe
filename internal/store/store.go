// Package store implements C2: transactional persistence of protocols,
// providers, resources, detail blobs, config, and virtual-provider offer
// configuration (spec §3, §4.1).
package store

import (
	"context"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/resource"
)

// ProviderRow is the persisted provider record (spec §3).
type ProviderRow struct {
	ID                int64
	OwnerAddress      chainiface.Address
	OperatorAddress   chainiface.Address
	Endpoint          string
	IsVirtual         bool
	GatewayProviderID *int64
}

// ProtocolRow is the persisted protocol record (spec §3).
type ProtocolRow struct {
	ID         int64
	Address    chainiface.Address
	DetailsCID string
}

// VProvOfferConfig is the per-(offerId, protocolId) JSON configuration
// blob owned by a gateway provider (spec §3).
type VProvOfferConfig struct {
	OfferID      int64
	ProtocolID   int64
	Configuration map[string]any
}

// Store is the transactional persistence boundary (spec §4.1, §6). All
// mutating operations run in short transactions per the spec's explicit
// requirement; implementations must be case-insensitive on addresses.
type Store interface {
	// Protocols
	GetOrCreateProtocol(ctx context.Context, address chainiface.Address, detailsCID string) (*ProtocolRow, error)
	GetProtocolByAddress(ctx context.Context, address chainiface.Address) (*ProtocolRow, error)
	GetProtocolByID(ctx context.Context, id int64) (*ProtocolRow, error)

	// Providers
	UpsertProvider(ctx context.Context, p ProviderRow) (*ProviderRow, error)
	GetProviderByOwner(ctx context.Context, owner chainiface.Address) (*ProviderRow, error)
	ListVirtualChildren(ctx context.Context, gatewayProviderID int64) ([]*ProviderRow, error)

	// Resources
	GetResource(ctx context.Context, id int64, owner chainiface.Address, protocolAddr chainiface.Address) (*resource.Resource, error)
	GetResourceByKey(ctx context.Context, key resource.Key) (*resource.Resource, error)
	ListResourcesByOwner(ctx context.Context, owner chainiface.Address) ([]*resource.Resource, error)
	CreateResource(ctx context.Context, r *resource.Resource) error
	UpdateResource(ctx context.Context, key resource.Key, protocolAddr chainiface.Address, mutate func(*resource.Resource)) error
	DeleteResource(ctx context.Context, key resource.Key) error

	// Detail registry
	SyncDetailFiles(contents map[string][]byte) error
	GetDetailContent(ctx context.Context, cid string) ([]byte, bool, error)
	PutDetailContent(ctx context.Context, cid string, content []byte) error

	// Config KV
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error

	// Virtual-provider offer configuration
	GetVProvOfferConfig(ctx context.Context, offerID, protocolID int64) (*VProvOfferConfig, error)
	SetVProvOfferConfig(ctx context.Context, cfg VProvOfferConfig) error
}

// ConfigKeyLastProcessedBlock is the config key the reconciler's cursor is
// persisted under (spec §4.4).
const ConfigKeyLastProcessedBlock = "LAST_PROCESSED_BLOCK"
