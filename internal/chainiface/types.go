package chainiface

import (
	"math/big"
	"time"
)

// AgreementStatus mirrors the on-chain agreement status (spec §3).
type AgreementStatus int

const (
	AgreementActive AgreementStatus = iota
	AgreementNotActive
)

func (s AgreementStatus) String() string {
	if s == AgreementActive {
		return "active"
	}
	return "not_active"
}

// Provider is the on-chain participant record (spec §3).
type Provider struct {
	ID                int64
	OwnerAddress      Address
	OperatorAddress   Address
	Endpoint          string
	DetailsCID        string
	IsVirtual         bool
	GatewayProviderID *int64
}

// Offer is the on-chain item record (spec §3). FeePerSecond is *big.Int —
// grounded in the example pack's own on-chain agreement terms (Balance,
// Price as *big.Int in the Lumerin proxy-router Terms interface), since
// these are wei/satoshi-scale quantities, not plain int64 counters.
type Offer struct {
	ID           int64
	OwnerAddress Address
	FeePerSecond *big.Int
	Stock        int64
	DetailsCID   string
}

// Agreement is the on-chain contract instance (spec §3).
type Agreement struct {
	ID              int64
	UserAddress     Address
	ProviderAddress Address
	OfferID         int64
	Balance         *big.Int
	Status          AgreementStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
