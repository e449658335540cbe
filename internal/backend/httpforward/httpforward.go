// Package httpforward is a concrete ServiceBackend (spec §1's example:
// "an LLM completions forwarder") that forwards the resource lifecycle to
// an HTTP service: Create/GetDetails/Delete become POST/GET/DELETE calls
// against BASE_URL, following the same thin JSON/REST client shape as
// internal/chainiface.HTTPClient and internal/indexer.HTTPClient. It
// registers itself with internal/plugin under the "http-forward" kind so
// cmd/providerd/main.go can select it via BACKEND_KIND without importing
// this package's symbols directly.
package httpforward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/R3E-Network/provider-daemon/internal/backend"
	"github.com/R3E-Network/provider-daemon/internal/chainiface"
	"github.com/R3E-Network/provider-daemon/internal/plugin"
	"github.com/R3E-Network/provider-daemon/internal/resource"
)

func init() {
	plugin.Register("http-forward", plugin.Info{
		Name:        "HTTP Forward",
		Description: "Forwards Create/GetDetails/Delete to a BASE_URL HTTP service.",
	}, New)
}

// Backend forwards the lifecycle interface to an HTTP service reachable at
// BASE_URL. The service owns its own resource model; this backend only
// translates between the daemon's lifecycle calls and a REST contract of
// its choosing.
type Backend struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Backend from its BACKEND_CONFIG_<tag> key/value pairs.
// BASE_URL is required.
func New(cfg map[string]string) (backend.ServiceBackend, error) {
	baseURL := cfg["BASE_URL"]
	if baseURL == "" {
		return nil, fmt.Errorf("httpforward: BASE_URL is required")
	}
	return &Backend{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type lifecycleResponse struct {
	Name    string         `json:"name"`
	Status  string         `json:"status"`
	Details map[string]any `json:"details"`
}

func (r lifecycleResponse) toResult() backend.Result {
	return backend.Result{
		Name:    r.Name,
		Status:  resource.DeploymentStatus(r.Status),
		Details: r.Details,
	}
}

// Create provisions a new resource for agreement/offer (spec §4.3's
// ServiceBackend.Create).
func (b *Backend) Create(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer) (backend.Result, error) {
	var resp lifecycleResponse
	err := b.postJSON(ctx, "/resources", map[string]any{
		"agreementId": agreement.ID,
		"offerId":     offer.ID,
		"userAddress": agreement.UserAddress.String(),
	}, &resp)
	if err != nil {
		return backend.Result{}, err
	}
	return resp.toResult(), nil
}

// GetDetails is polled by the Resource Watcher for a not-yet-Running
// resource (spec §4.7).
func (b *Backend) GetDetails(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer, res *resource.Resource) (backend.Result, error) {
	var resp lifecycleResponse
	path := "/resources/" + strconv.FormatInt(res.ID, 10)
	if err := b.getJSON(ctx, path, &resp); err != nil {
		return backend.Result{}, err
	}
	return resp.toResult(), nil
}

// Delete tears the resource down on AgreementClosed (spec §4.4.2).
func (b *Backend) Delete(ctx context.Context, agreement *chainiface.Agreement, offer *chainiface.Offer, res *resource.Resource) error {
	path := "/resources/" + strconv.FormatInt(res.ID, 10)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, b.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpforward delete %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("httpforward delete %s: status %d: %s", path, resp.StatusCode, body)
	}
	return nil
}

func (b *Backend) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return err
	}
	return b.do(req, out)
}

func (b *Backend) postJSON(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return b.do(req, out)
}

func (b *Backend) do(req *http.Request, out any) error {
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpforward %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("httpforward %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
