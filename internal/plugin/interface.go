// Package plugin registers pluggable ServiceBackend implementations
// (spec §1: "concrete service backends ... consumed as ServiceBackend
// implementations") so cmd/providerd/main.go can select one by a BACKEND_KIND
// environment tag without main.go importing every backend package directly
// — the same compiled-in-but-selectable-by-id shape the teacher's service
// registry used for its Marble plugins, here applied to backend kinds
// instead of TEE-hosted services.
package plugin

// Info is static metadata about one registered backend kind.
type Info struct {
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
