// Package resource implements the daemon's local projection of an active
// agreement (spec §3) and the lifecycle rules that govern it.
package resource

import (
	"strings"
	"time"

	"github.com/R3E-Network/provider-daemon/internal/chainiface"
)

// DeploymentStatus mirrors spec §3's Deploying/Running/Failed/Closed states.
type DeploymentStatus string

const (
	Deploying DeploymentStatus = "Deploying"
	Running   DeploymentStatus = "Running"
	Failed    DeploymentStatus = "Failed"
	Closed    DeploymentStatus = "Closed"
)

// Key is the composite primary key (id, protocolId) from spec §3.
type Key struct {
	ID         int64
	ProtocolID int64
}

// Resource is the daemon's local projection of an active agreement.
type Resource struct {
	Key
	Name             string
	OwnerAddress     chainiface.Address
	OfferID          int64
	ProviderID       int64
	DeploymentStatus DeploymentStatus
	Details          map[string]any
	GroupName        string
	IsActive         bool
	CreatedAt        time.Time
}

// FilterPrivate strips keys beginning with "_" from details, per spec §3
// ("keys beginning with _ are private") and §8's round-trip law for
// GET /resources.
func FilterPrivate(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, v := range details {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	return out
}

// WithoutReserved removes the "name" and "status" keys a ServiceBackend's
// create/getDetails result may echo back, per spec §4.4.1
// ("details = returned \ {name, status}").
func WithoutReserved(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "name" || k == "status" {
			continue
		}
		out[k] = v
	}
	return out
}

// Close puts r into the terminal state of the spec §8 invariant: for every
// resource with IsActive=false, Details=={} and DeploymentStatus=Closed.
func (r *Resource) Close() {
	r.IsActive = false
	r.DeploymentStatus = Closed
	r.Details = map[string]any{}
}
