package indexer

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
)

// DecodeAgreementCreated pulls the fields the reconciler needs out of an
// event's raw Args JSON, tolerating extra/renamed fields the way the
// teacher's EventParser tolerates heterogeneous contract event shapes.
func DecodeAgreementCreated(args []byte) (AgreementCreatedArgs, error) {
	r := gjson.ParseBytes(args)
	if !r.Get("agreementId").Exists() {
		return AgreementCreatedArgs{}, fmt.Errorf("AgreementCreated args missing agreementId")
	}

	user, err := chainiface.ParseAddress(r.Get("user").String())
	if err != nil {
		return AgreementCreatedArgs{}, fmt.Errorf("invalid user address: %w", err)
	}
	provider, err := chainiface.ParseAddress(r.Get("provider").String())
	if err != nil {
		return AgreementCreatedArgs{}, fmt.Errorf("invalid provider address: %w", err)
	}

	return AgreementCreatedArgs{
		AgreementID:     r.Get("agreementId").Int(),
		OfferID:         r.Get("offerId").Int(),
		UserAddress:     user,
		ProviderAddress: provider,
	}, nil
}

// DecodeAgreementClosed pulls the agreement id out of an AgreementClosed
// event's raw Args JSON.
func DecodeAgreementClosed(args []byte) (AgreementClosedArgs, error) {
	r := gjson.ParseBytes(args)
	if !r.Get("agreementId").Exists() {
		return AgreementClosedArgs{}, fmt.Errorf("AgreementClosed args missing agreementId")
	}
	return AgreementClosedArgs{AgreementID: r.Get("agreementId").Int()}, nil
}
