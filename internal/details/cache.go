package details

import "context"

// Lookup is the Store's read surface the registry needs.
type Lookup interface {
	GetDetailContent(ctx context.Context, cid string) ([]byte, bool, error)
}

// Registry is the read-through handle the rest of the daemon resolves
// detailsLink CIDs against (provider startup validation, GET /details).
type Registry struct {
	store Lookup
}

func NewRegistry(store Lookup) *Registry {
	return &Registry{store: store}
}

// Resolve returns the content for cid, or ok=false if it is not present —
// the caller decides whether that is fatal (startup validation) or a warn
// (offer detail lookup during reconciliation, spec §4.4.1).
func (r *Registry) Resolve(ctx context.Context, cid string) ([]byte, bool, error) {
	if cid == "" {
		return nil, false, nil
	}
	return r.store.GetDetailContent(ctx, cid)
}

// ResolveMany resolves a batch of CIDs, skipping any that are missing —
// backs GET /details (spec §4.5: "returns raw contents; 404 if none match").
func (r *Registry) ResolveMany(ctx context.Context, cids []string) (map[string][]byte, error) {
	out := map[string][]byte{}
	for _, cid := range cids {
		content, ok, err := r.Resolve(ctx, cid)
		if err != nil {
			return nil, err
		}
		if ok {
			out[cid] = content
		}
	}
	return out, nil
}
