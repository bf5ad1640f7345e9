package wire

// Permission is the per-endpoint decision attached to a call context after
// resolution. Limit 0 means unlimited; empty Resources means unrestricted.
type Permission struct {
	Allow     bool     `json:"allow"`
	Limit     int      `json:"limit"`
	Resources []string `json:"resources"`
}

// AllowsResource reports whether the permission covers the given resource id.
// An empty resource list places no restriction.
func (p Permission) AllowsResource(id string) bool {
	if len(p.Resources) == 0 {
		return true
	}
	for _, r := range p.Resources {
		if r == id {
			return true
		}
	}
	return false
}

// ControllerGrant is one controller's entry inside a permission table.
// A nil Endpoints map allows every endpoint of the controller.
type ControllerGrant struct {
	Limit     int             `json:"limit"`
	Resources []string        `json:"resources"`
	Endpoints map[string]bool `json:"endpoints,omitempty"`
}

// PermissionTable is the full access rule set for one subscription tier,
// keyed by service then controller. It is decoded from the tier cache entry
// and shared read-only across calls.
type PermissionTable map[string]map[string]ControllerGrant

// CallContext is the per-call bundle of verified identity, request path, and
// resolved permission. It is built from a decoded token and never persisted.
type CallContext struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Path       string         `json:"path"`
	Permission *Permission    `json:"permissions,omitempty"`
	Claims     map[string]any `json:"-"`
}
