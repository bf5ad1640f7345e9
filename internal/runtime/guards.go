package runtime

import (
	"context"
	"fmt"

	"github.com/pathcall/pathcall/internal/runtime/wire"
)

// CountFunc counts how many resources the caller already holds; field/value
// describe the lookup (for example "userId" = caller id). The engine does not
// own storage, so the count query is always supplied by the service.
type CountFunc func(ctx context.Context, field, value string) (int, error)

// QuotaGuard wraps a handler with a usage-limit check against the resolved
// permission. The query names the count field and, optionally, the payload
// field carrying the lookup value; without one the caller's identity is used.
// A permission with Limit 0 passes through unchanged.
func QuotaGuard(count CountFunc, query ...string) func(HandlerFunc) HandlerFunc {
	field := "userId"
	payloadKey := ""
	if len(query) > 0 {
		field = query[0]
	}
	if len(query) > 1 {
		payloadKey = query[1]
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
			perm, resp := guardPermission(req)
			if resp != nil {
				return resp, nil
			}
			if perm.Limit <= 0 {
				return next(ctx, req)
			}

			value := req.Context.ID
			if payloadKey != "" {
				if v, ok := req.PayloadField(payloadKey); ok {
					value = fmt.Sprint(v)
				}
			}

			current, err := count(ctx, field, value)
			if err != nil {
				return nil, fmt.Errorf("quota count query: %w", err)
			}
			if current >= perm.Limit {
				return &wire.Response{
					Message: "You have reached your limit for this action",
					Status:  wire.StatusRestricted,
				}, nil
			}

			return next(ctx, req)
		}
	}
}

// ResourceGuard wraps a handler with an ownership check: the payload field
// (default "id") must be a member of the permission's resource list. An empty
// resource list places no restriction.
func ResourceGuard(payloadKey string) func(HandlerFunc) HandlerFunc {
	if payloadKey == "" {
		payloadKey = "id"
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *wire.Request) (*wire.Response, error) {
			perm, resp := guardPermission(req)
			if resp != nil {
				return resp, nil
			}
			if len(perm.Resources) == 0 {
				return next(ctx, req)
			}

			id := ""
			if v, ok := req.PayloadField(payloadKey); ok {
				id = fmt.Sprint(v)
			}
			if !perm.AllowsResource(id) {
				return &wire.Response{
					Message: "You are not authorized to access this resource",
					Status:  wire.StatusRestricted,
				}, nil
			}

			return next(ctx, req)
		}
	}
}

// guardPermission extracts the resolved permission from the call context.
// Both guards require an authorized context; a missing permission is a
// configuration error, not a denial.
func guardPermission(req *wire.Request) (*wire.Permission, *wire.Response) {
	if req.Context == nil {
		return nil, &wire.Response{
			Message: "You are not authorized to access this resource",
			Status:  wire.StatusUnauthorized,
		}
	}
	if req.Context.Permission == nil {
		return nil, &wire.Response{
			Message: "No permissions available for this resource",
			Status:  wire.StatusError,
		}
	}
	return req.Context.Permission, nil
}
