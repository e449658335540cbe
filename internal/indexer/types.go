package indexer

import (
	"time"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
)

// EventName enumerates the two agreement lifecycle events the reconciler
// cares about (spec §4.4).
type EventName string

const (
	EventAgreementCreated EventName = "AgreementCreated"
	EventAgreementClosed  EventName = "AgreementClosed"
)

// Event is one ordered, block-scoped event from the indexer (spec §4.2).
// Args carries the event-specific payload as raw JSON so callers can decode
// only the fields they need via gjson, mirroring the teacher's
// EventParser's tolerant style (platform/contracts/client/listener.go).
type Event struct {
	ContractAddress chainiface.Address
	EventName       EventName
	BlockNumber     uint64
	LogIndex        uint32 // carried when the indexer exposes one (spec §9 open question); the reconciler orders by BlockNumber only
	Args            []byte // raw JSON object
	Processed       bool
}

// AgreementCreatedArgs is the decoded shape of an AgreementCreated event.
type AgreementCreatedArgs struct {
	AgreementID     int64
	OfferID         int64
	UserAddress     chainiface.Address
	ProviderAddress chainiface.Address
}

// AgreementClosedArgs is the decoded shape of an AgreementClosed event.
type AgreementClosedArgs struct {
	AgreementID int64
}

// AgreementFilter selects agreements for IndexerClient.GetAgreements.
type AgreementFilter struct {
	ProtocolAddress chainiface.Address
	ProviderAddress *chainiface.Address
	Status          *chainiface.AgreementStatus
	ID              *int64
	AutoPaginate    bool
}

// EventFilter selects events for IndexerClient.GetEvents.
type EventFilter struct {
	ContractAddress chainiface.Address
	EventName       EventName
	FromBlock       uint64
	ToBlock         uint64
	Processed       bool
	Limit           int
	AutoPaginate    bool
}

// AgreementSnapshot is the indexer's view of an on-chain agreement,
// distinct from chainiface.Agreement in that it carries indexer-side
// pagination metadata.
type AgreementSnapshot struct {
	chainiface.Agreement
	IndexedAt time.Time
}
