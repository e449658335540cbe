package chainiface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/R3E-Network/provider-daemon/internal/daemonerr"
)

// HTTPClient is a thin JSON/REST binding onto RPC_HOST (spec §6), in the
// same shape as indexer.HTTPClient: the chain node's own RPC/ABI encoding
// is the external collaborator per spec §1, this client only translates
// the ChainClient boundary into HTTP calls against whatever facade
// RPC_HOST exposes for this daemon's reads and two writes.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient returns a Client talking to the given RPC_HOST.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type providerWire struct {
	ID                int64   `json:"id"`
	OwnerAddress      string  `json:"ownerAddress"`
	OperatorAddress   string  `json:"operatorAddress"`
	Endpoint          string  `json:"endpoint"`
	DetailsCID        string  `json:"detailsLink"`
	IsVirtual         bool    `json:"isVirtual"`
	GatewayProviderID *int64  `json:"gatewayProviderId,omitempty"`
}

type offerWire struct {
	ID           int64  `json:"id"`
	OwnerAddress string `json:"ownerAddress"`
	FeePerSecond string `json:"feePerSecond"`
	Stock        int64  `json:"stock"`
	DetailsCID   string `json:"detailsLink"`
}

type agreementWire struct {
	ID              int64  `json:"id"`
	UserAddress     string `json:"userAddress"`
	ProviderAddress string `json:"providerAddress"`
	OfferID         int64  `json:"offerId"`
	Balance         string `json:"balance"`
	Status          int    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func (c *HTTPClient) GetActor(ctx context.Context, address Address) (*Provider, error) {
	var w providerWire
	if err := c.getJSON(ctx, "/providers/"+address.String(), nil, &w); err != nil {
		return nil, err
	}
	return w.toProvider()
}

func (c *HTTPClient) GetRegisteredProtocolsOf(ctx context.Context, providerID int64) ([]Address, error) {
	var raw []string
	if err := c.getJSON(ctx, fmt.Sprintf("/providers/%d/protocols", providerID), nil, &raw); err != nil {
		return nil, err
	}
	out := make([]Address, 0, len(raw))
	for _, s := range raw {
		a, err := ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("parse protocol address %q: %w", s, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (c *HTTPClient) GetOffer(ctx context.Context, id int64) (*Offer, error) {
	var w offerWire
	if err := c.getJSON(ctx, fmt.Sprintf("/offers/%d", id), nil, &w); err != nil {
		return nil, err
	}
	return w.toOffer()
}

func (c *HTTPClient) GetAgreement(ctx context.Context, id int64) (*Agreement, error) {
	var w agreementWire
	if err := c.getJSON(ctx, fmt.Sprintf("/agreements/%d", id), nil, &w); err != nil {
		return nil, err
	}
	return w.toAgreement()
}

func (c *HTTPClient) GetAllProviderOffers(ctx context.Context, providerID int64) ([]*Offer, error) {
	var wires []offerWire
	if err := c.getJSON(ctx, fmt.Sprintf("/providers/%d/offers", providerID), nil, &wires); err != nil {
		return nil, err
	}
	out := make([]*Offer, 0, len(wires))
	for _, w := range wires {
		offer, err := w.toOffer()
		if err != nil {
			return nil, err
		}
		out = append(out, offer)
	}
	return out, nil
}

func (c *HTTPClient) CloseAgreement(ctx context.Context, id int64) error {
	return c.postJSON(ctx, fmt.Sprintf("/agreements/%d/close", id), nil, nil)
}

func (c *HTTPClient) RegisterOffer(ctx context.Context, params RegisterOfferParams) (int64, error) {
	body := map[string]any{
		"providerOwnerAddress": params.ProviderOwnerAddress.String(),
		"detailsLink":          params.DetailsLink,
		"fee":                  params.Fee.String(),
		"stock":                params.StockAmount,
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.postJSON(ctx, "/offers", body, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *HTTPClient) GenerateCID(ctx context.Context, content []byte) (string, error) {
	var resp struct {
		CID string `json:"cid"`
	}
	if err := c.postJSON(ctx, "/cids", map[string]any{"content": content}, &resp); err != nil {
		return "", err
	}
	return resp.CID, nil
}

func (w providerWire) toProvider() (*Provider, error) {
	owner, err := ParseAddress(w.OwnerAddress)
	if err != nil {
		return nil, fmt.Errorf("parse ownerAddress: %w", err)
	}
	operator, err := ParseAddress(w.OperatorAddress)
	if err != nil {
		return nil, fmt.Errorf("parse operatorAddress: %w", err)
	}
	return &Provider{
		ID:                w.ID,
		OwnerAddress:      owner,
		OperatorAddress:   operator,
		Endpoint:          w.Endpoint,
		DetailsCID:        w.DetailsCID,
		IsVirtual:         w.IsVirtual,
		GatewayProviderID: w.GatewayProviderID,
	}, nil
}

func (w offerWire) toOffer() (*Offer, error) {
	owner, err := ParseAddress(w.OwnerAddress)
	if err != nil {
		return nil, fmt.Errorf("parse ownerAddress: %w", err)
	}
	fee, ok := new(big.Int).SetString(w.FeePerSecond, 10)
	if !ok {
		return nil, fmt.Errorf("parse feePerSecond %q", w.FeePerSecond)
	}
	return &Offer{ID: w.ID, OwnerAddress: owner, FeePerSecond: fee, Stock: w.Stock, DetailsCID: w.DetailsCID}, nil
}

func (w agreementWire) toAgreement() (*Agreement, error) {
	user, err := ParseAddress(w.UserAddress)
	if err != nil {
		return nil, fmt.Errorf("parse userAddress: %w", err)
	}
	provider, err := ParseAddress(w.ProviderAddress)
	if err != nil {
		return nil, fmt.Errorf("parse providerAddress: %w", err)
	}
	balance, ok := new(big.Int).SetString(w.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("parse balance %q", w.Balance)
	}
	status := AgreementActive
	if w.Status != 0 {
		status = AgreementNotActive
	}
	return &Agreement{
		ID:              w.ID,
		UserAddress:     user,
		ProviderAddress: provider,
		OfferID:         w.OfferID,
		Balance:         balance,
		Status:          status,
		CreatedAt:       w.CreatedAt,
		UpdatedAt:       w.UpdatedAt,
	}, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return daemonerr.Domain("build chain request", err)
	}
	return c.do(req, out)
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return daemonerr.Domain("encode chain request body", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return daemonerr.Domain("build chain request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return daemonerr.Transport("chain request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return daemonerr.Transport("read chain response", err)
	}

	if resp.StatusCode >= 500 {
		return daemonerr.Transport(fmt.Sprintf("chain node returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode == http.StatusNotFound {
		return daemonerr.NotFound("chain record not found")
	}
	if resp.StatusCode >= 400 {
		return daemonerr.Domain(fmt.Sprintf("chain node returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return daemonerr.Domain("decode chain response", err)
	}
	return nil
}

