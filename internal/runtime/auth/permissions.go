package auth

import "github.com/pathcall/pathcall/internal/runtime/wire"

// FetchPermission resolves the per-endpoint permission for a path against a
// tier's permission table.
//
// The semantics are deliberately default-open with deny-list endpoints:
// a service or controller absent from the table is fully allowed with no
// limit and no resource restriction; a controller entry without an Endpoints
// map allows every endpoint with the controller's limit and resources; inside
// an Endpoints map only an explicit false denies, and limit/resources are
// inherited from the controller entry regardless.
func FetchPermission(table wire.PermissionTable, path wire.Path) wire.Permission {
	controllers, ok := table[path.Service]
	if !ok {
		return openPermission()
	}

	grant, ok := controllers[path.Controller]
	if !ok {
		return openPermission()
	}

	allowed := true
	if grant.Endpoints != nil {
		if v, present := grant.Endpoints[path.Endpoint]; present {
			allowed = v
		}
	}

	return wire.Permission{
		Allow:     allowed,
		Limit:     grant.Limit,
		Resources: grant.Resources,
	}
}

func openPermission() wire.Permission {
	return wire.Permission{Allow: true, Limit: 0, Resources: []string{}}
}
