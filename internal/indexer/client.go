// Package indexer defines the IndexerClient boundary (spec §4.2): a typed
// REST facade over the ordered block-scoped event feed and agreement
// snapshots the reconciler and sweeper consume. The indexer service itself
// is an external collaborator per spec §1.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/R3E-Network/provider-daemon/internal/daemonerr"
)

// Client is the IndexerClient boundary.
type Client interface {
	GetAgreements(ctx context.Context, filter AgreementFilter) ([]AgreementSnapshot, error)
	GetEvents(ctx context.Context, filter EventFilter) ([]Event, error)
	IsHealthy(ctx context.Context) bool
}

// HTTPClient is a thin JSON/REST implementation, modeled on the teacher's
// internal/database/supabase_client.go request/response shape (a bare
// net/http.Client plus context-scoped requests).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient returns a Client talking to the given INDEXER_ENDPOINT.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) GetAgreements(ctx context.Context, filter AgreementFilter) ([]AgreementSnapshot, error) {
	q := url.Values{}
	q.Set("protocolAddress", filter.ProtocolAddress.String())
	if filter.ProviderAddress != nil {
		q.Set("providerAddress", filter.ProviderAddress.String())
	}
	if filter.Status != nil {
		q.Set("status", filter.Status.String())
	}
	if filter.ID != nil {
		q.Set("id", strconv.FormatInt(*filter.ID, 10))
	}
	q.Set("autoPaginate", strconv.FormatBool(filter.AutoPaginate))

	var out []AgreementSnapshot
	if err := c.getJSON(ctx, "/agreements", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) GetEvents(ctx context.Context, filter EventFilter) ([]Event, error) {
	q := url.Values{}
	if !filter.ContractAddress.IsZero() {
		q.Set("contractAddress", filter.ContractAddress.String())
	}
	if filter.EventName != "" {
		q.Set("eventName", string(filter.EventName))
	}
	q.Set("fromBlock", strconv.FormatUint(filter.FromBlock, 10))
	if filter.ToBlock > 0 {
		q.Set("toBlock", strconv.FormatUint(filter.ToBlock, 10))
	}
	q.Set("processed", strconv.FormatBool(filter.Processed))
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	q.Set("autoPaginate", strconv.FormatBool(filter.AutoPaginate))

	var out []Event
	if err := c.getJSON(ctx, "/events", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) IsHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return daemonerr.Domain("build indexer request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return daemonerr.Transport("indexer request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return daemonerr.Transport("read indexer response", err)
	}

	if resp.StatusCode >= 500 {
		return daemonerr.Transport(fmt.Sprintf("indexer returned %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return daemonerr.Domain(fmt.Sprintf("indexer returned %d: %s", resp.StatusCode, string(body)), nil)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return daemonerr.Domain("decode indexer response", err)
	}
	return nil
}
