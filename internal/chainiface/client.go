package chainiface

import (
	"context"
	"math/big"
)

// RegisterOfferParams is the payload for ChainClient.RegisterOffer (used by
// the virtual-provider gateway ops, spec §4.6).
type RegisterOfferParams struct {
	ProviderOwnerAddress Address
	DetailsLink          string
	Fee                  *big.Int
	StockAmount          int64
}

// Client is the ChainClient boundary (spec §4.2). The daemon only ever
// reads through this interface and calls CloseAgreement/RegisterOffer as
// its two writes — the blockchain client library itself (contract ABI
// encoding) is an external collaborator per spec §1; signature recovery
// lives in this package (RecoverAddress).
type Client interface {
	GetActor(ctx context.Context, address Address) (*Provider, error)
	GetRegisteredProtocolsOf(ctx context.Context, providerID int64) ([]Address, error)
	GetOffer(ctx context.Context, id int64) (*Offer, error)
	GetAgreement(ctx context.Context, id int64) (*Agreement, error)
	GetAllProviderOffers(ctx context.Context, providerID int64) ([]*Offer, error)
	CloseAgreement(ctx context.Context, id int64) error
	RegisterOffer(ctx context.Context, params RegisterOfferParams) (int64, error)
	GenerateCID(ctx context.Context, content []byte) (string, error)
}
