package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/pathcall/pathcall/internal/runtime/wire"
)

func authedRequest(perm *wire.Permission, payload any) *wire.Request {
	return &wire.Request{
		Payload: payload,
		Context: &wire.CallContext{ID: "user-1", Permission: perm},
	}
}

func okHandler(ctx context.Context, req *wire.Request) (*wire.Response, error) {
	return &wire.Response{Message: "done", Status: wire.StatusSuccess}, nil
}

func TestQuotaGuard(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		current    int
		wantStatus wire.Status
	}{
		{name: "no limit passes", limit: 0, current: 100, wantStatus: wire.StatusSuccess},
		{name: "under limit passes", limit: 2, current: 1, wantStatus: wire.StatusSuccess},
		{name: "at limit denies", limit: 2, current: 2, wantStatus: wire.StatusRestricted},
		{name: "over limit denies", limit: 2, current: 5, wantStatus: wire.StatusRestricted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := func(ctx context.Context, field, value string) (int, error) {
				if field != "userId" {
					t.Fatalf("unexpected count field %q", field)
				}
				if value != "user-1" {
					t.Fatalf("unexpected count value %q", value)
				}
				return tt.current, nil
			}

			handler := QuotaGuard(count)(okHandler)
			resp, err := handler(context.Background(), authedRequest(&wire.Permission{Allow: true, Limit: tt.limit}, nil))
			if err != nil {
				t.Fatalf("handler: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Fatalf("got %q, want %q", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestQuotaGuardUsesPayloadValue(t *testing.T) {
	var sawField, sawValue string
	count := func(ctx context.Context, field, value string) (int, error) {
		sawField, sawValue = field, value
		return 0, nil
	}

	handler := QuotaGuard(count, "accountId", "account")(okHandler)
	req := authedRequest(&wire.Permission{Allow: true, Limit: 3}, map[string]any{"account": "acct-9"})
	if _, err := handler(context.Background(), req); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if sawField != "accountId" || sawValue != "acct-9" {
		t.Fatalf("count queried with %q=%q", sawField, sawValue)
	}
}

func TestQuotaGuardPropagatesCountError(t *testing.T) {
	count := func(ctx context.Context, field, value string) (int, error) {
		return 0, errors.New("store offline")
	}

	handler := QuotaGuard(count)(okHandler)
	_, err := handler(context.Background(), authedRequest(&wire.Permission{Allow: true, Limit: 1}, nil))
	if err == nil {
		t.Fatal("expected error from count query")
	}
}

func TestResourceGuard(t *testing.T) {
	tests := []struct {
		name       string
		resources  []string
		payload    any
		wantStatus wire.Status
	}{
		{name: "empty list passes", resources: nil, payload: map[string]any{"id": "any"}, wantStatus: wire.StatusSuccess},
		{name: "listed resource passes", resources: []string{"a", "b"}, payload: map[string]any{"id": "b"}, wantStatus: wire.StatusSuccess},
		{name: "unlisted resource denies", resources: []string{"a", "b"}, payload: map[string]any{"id": "c"}, wantStatus: wire.StatusRestricted},
		{name: "missing field denies", resources: []string{"a"}, payload: map[string]any{}, wantStatus: wire.StatusRestricted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := ResourceGuard("")(okHandler)
			resp, err := handler(context.Background(), authedRequest(&wire.Permission{Allow: true, Resources: tt.resources}, tt.payload))
			if err != nil {
				t.Fatalf("handler: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Fatalf("got %q, want %q", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestGuardsRequireCallContext(t *testing.T) {
	count := func(ctx context.Context, field, value string) (int, error) { return 0, nil }

	handler := QuotaGuard(count)(okHandler)
	resp, err := handler(context.Background(), &wire.Request{})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if resp.Status != wire.StatusUnauthorized {
		t.Fatalf("missing context: got %q", resp.Status)
	}

	resp, err = handler(context.Background(), &wire.Request{Context: &wire.CallContext{ID: "u"}})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if resp.Status != wire.StatusError {
		t.Fatalf("missing permission: got %q", resp.Status)
	}
}
