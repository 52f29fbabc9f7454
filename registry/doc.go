// Package registry holds the set of known provider endpoints.
//
// A Registry is an immutable snapshot: it is built once from a list of
// descriptors (usually a YAML file) and never mutated afterwards. A Store
// wraps the current snapshot so it can be replaced wholesale on
// reconfiguration without readers ever observing a partially updated
// registry.
//
// Invalid entries are rejected individually; the rest of the file still
// loads:
//
//	reg, err := registry.Load("providers.yaml")
//	if err != nil {
//	    log.Warn("registry entries rejected", "err", err)
//	}
//	store := registry.NewStore(reg)
package registry
