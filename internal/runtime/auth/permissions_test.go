package auth

import (
	"testing"

	"github.com/pathcall/pathcall/internal/runtime/wire"
)

func TestFetchPermission(t *testing.T) {
	table := wire.PermissionTable{
		"billing": {
			"invoices": wire.ControllerGrant{
				Limit:     5,
				Resources: []string{"inv-1", "inv-2"},
				Endpoints: map[string]bool{
					"create": true,
					"export": false,
				},
			},
			"plans": wire.ControllerGrant{
				Limit: 2,
			},
		},
	}

	tests := []struct {
		name      string
		path      string
		wantAllow bool
		wantLimit int
	}{
		{
			name:      "absent service is open",
			path:      "accounts.users.create",
			wantAllow: true,
		},
		{
			name:      "absent controller is open",
			path:      "billing.reports.daily",
			wantAllow: true,
		},
		{
			name:      "nil endpoints map allows with grant limit",
			path:      "billing.plans.upgrade",
			wantAllow: true,
			wantLimit: 2,
		},
		{
			name:      "allowed endpoint carries limit and resources",
			path:      "billing.invoices.create",
			wantAllow: true,
			wantLimit: 5,
		},
		{
			name:      "denied endpoint",
			path:      "billing.invoices.export",
			wantAllow: false,
			wantLimit: 5,
		},
		{
			name:      "endpoint absent from deny list is open",
			path:      "billing.invoices.list",
			wantAllow: true,
			wantLimit: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FetchPermission(table, wire.ParsePath(tt.path))
			if p.Allow != tt.wantAllow {
				t.Fatalf("allow = %v, want %v", p.Allow, tt.wantAllow)
			}
			if p.Limit != tt.wantLimit {
				t.Fatalf("limit = %d, want %d", p.Limit, tt.wantLimit)
			}
		})
	}
}

func TestFetchPermissionInheritsResources(t *testing.T) {
	table := wire.PermissionTable{
		"billing": {
			"invoices": wire.ControllerGrant{
				Resources: []string{"inv-1"},
				Endpoints: map[string]bool{"view": true},
			},
		},
	}

	p := FetchPermission(table, wire.ParsePath("billing.invoices.view"))
	if !p.Allow {
		t.Fatal("endpoint should be allowed")
	}
	if len(p.Resources) != 1 || p.Resources[0] != "inv-1" {
		t.Fatalf("resources not inherited: %v", p.Resources)
	}
	if !p.AllowsResource("inv-1") || p.AllowsResource("inv-2") {
		t.Fatal("resource scoping incorrect")
	}
}

func TestFetchPermissionEmptyTableIsOpen(t *testing.T) {
	p := FetchPermission(wire.PermissionTable{}, wire.ParsePath("anything.at.all"))
	if !p.Allow || p.Limit != 0 || len(p.Resources) != 0 {
		t.Fatalf("empty table must be fully open, got %+v", p)
	}
}
