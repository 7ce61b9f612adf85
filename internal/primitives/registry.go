package primitives

import "sort"

// CatalogEntry describes one registered primitive for API consumers.
type CatalogEntry struct {
	Name         string       `json:"name"`
	Implemented  bool         `json:"implemented"`
	Capabilities []Capability `json:"capabilities,omitempty"`
}

// Registry is the immutable set of primitive names the planner may emit.
// Names without an implementation stay in the catalog so plans referencing
// them execute as failed facts instead of unknown-name errors.
type Registry struct {
	order []string
	impl  map[string]Primitive
}

// catalogOnly lists production catalog names that have no probe behind
// them yet. Keeping them registered keeps plan shapes stable while the
// probes land one by one.
var catalogOnly = []string{
	"validate_configuration",
	"check_dependency_health",
	"evaluate_throttling",
	"check_security_groups",
	"check_network_acls",
	"check_route_tables",
	"check_resource_policy",
	"validate_credentials",
	"compare_versions",
	"check_resource_status",
	"check_health_checks",
	"analyze_latency",
	"analyze_query_performance",
	"check_replication_lag",
	"check_data_integrity",
}

// NewRegistry builds the full primitive catalog.
func NewRegistry() *Registry {
	probes := []Primitive{
		utilizationProbe{},
		baselineProbe{},
		errorRateProbe{},
		changesProbe{},
		configDiffProbe{},
		deploymentProbe{},
		dependenciesProbe{},
		connectivityProbe{},
		consumersProbe{},
		costTrendProbe{},
		scalingProbe{},
		scalingLimitsProbe{},
		permissionsProbe{},
	}

	r := &Registry{impl: make(map[string]Primitive, len(probes))}
	for _, p := range probes {
		r.order = append(r.order, p.Name())
		r.impl[p.Name()] = p
	}
	r.order = append(r.order, catalogOnly...)
	sort.Strings(r.order)
	return r
}

// Lookup returns the implementation for name, or false when the name is
// catalog-only or entirely unknown.
func (r *Registry) Lookup(name string) (Primitive, bool) {
	p, ok := r.impl[name]
	return p, ok
}

// Known reports whether name is part of the catalog at all.
func (r *Registry) Known(name string) bool {
	if _, ok := r.impl[name]; ok {
		return true
	}
	for _, n := range catalogOnly {
		if n == name {
			return true
		}
	}
	return false
}

// Catalog returns every registered name in sorted order.
func (r *Registry) Catalog() []CatalogEntry {
	entries := make([]CatalogEntry, 0, len(r.order))
	for _, name := range r.order {
		entry := CatalogEntry{Name: name}
		if p, ok := r.impl[name]; ok {
			entry.Implemented = true
			entry.Capabilities = p.Capabilities()
		}
		entries = append(entries, entry)
	}
	return entries
}
