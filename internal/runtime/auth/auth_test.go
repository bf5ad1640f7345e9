package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// cacheStub is the minimal store.Store for gateway tests: only Get is
// exercised by Authorize.
type cacheStub struct {
	mu     sync.Mutex
	values map[string]string
}

func newCacheStub() *cacheStub {
	return &cacheStub{values: make(map[string]string)}
}

func (c *cacheStub) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *cacheStub) Set(ctx context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *cacheStub) SAdd(ctx context.Context, key string, members ...string) error { return nil }
func (c *cacheStub) SMembers(ctx context.Context, key string) ([]string, error)    { return nil, nil }
func (c *cacheStub) Publish(ctx context.Context, channel, payload string) error    { return nil }
func (c *cacheStub) Listen(ctx context.Context, channel string) (<-chan string, error) {
	return nil, nil
}
func (c *cacheStub) Close() error { return nil }

func newTestGateway(t *testing.T) (*Gateway, *cacheStub) {
	t.Helper()
	cache := newCacheStub()
	return NewGateway("gateway-secret", cache, nil), cache
}

func TestSignAndAuthorize(t *testing.T) {
	g, cache := newTestGateway(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "pro", `{}`); err != nil {
		t.Fatalf("seeding table: %v", err)
	}

	token, err := g.Sign(map[string]any{"id": "user-1", "type": "user", "subscription": "pro"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !strings.HasPrefix(token, "Bearer ") {
		t.Fatalf("token must carry the scheme prefix, got %q", token)
	}

	result := g.Authorize(ctx, token, "billing.invoices.create")
	if result.Status != "success" {
		t.Fatalf("authorize: %q %q", result.Status, result.Message)
	}
	if result.Data == nil || result.Data.ID != "user-1" || result.Data.Type != "user" {
		t.Fatalf("call context %+v", result.Data)
	}
	if result.Data.Permission == nil || !result.Data.Permission.Allow {
		t.Fatalf("permission %+v", result.Data.Permission)
	}
}

func TestAuthorizeRejectsBadTokens(t *testing.T) {
	g, cache := newTestGateway(t)
	ctx := context.Background()
	if err := cache.Set(ctx, "pro", `{}`); err != nil {
		t.Fatalf("seeding table: %v", err)
	}

	expired, err := g.Sign(map[string]any{"id": "user-1", "subscription": "pro"}, -time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	foreign, err := g.SignCustom(map[string]any{"id": "user-1", "subscription": "pro"}, "other-secret", time.Hour)
	if err != nil {
		t.Fatalf("sign custom: %v", err)
	}

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "scheme only", token: "Bearer"},
		{name: "extra parts", token: "Bearer a b"},
		{name: "garbage", token: "Bearer not-a-jwt"},
		{name: "expired", token: expired},
		{name: "wrong secret", token: foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := g.Authorize(ctx, tt.token, "billing.invoices.create")
			if result.Status != "unauthorized" {
				t.Fatalf("got %q, want unauthorized", result.Status)
			}
			if result.Data != nil {
				t.Fatal("failed authorization must not leak a call context")
			}
		})
	}
}

func TestAuthorizeRejectsUnsignedAlgorithm(t *testing.T) {
	g, cache := newTestGateway(t)
	ctx := context.Background()
	if err := cache.Set(ctx, "pro", `{}`); err != nil {
		t.Fatalf("seeding table: %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"id":           "user-1",
		"subscription": "pro",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("building unsigned token: %v", err)
	}

	result := g.Authorize(ctx, "Bearer "+unsigned, "billing.invoices.create")
	if result.Status != "unauthorized" {
		t.Fatalf("unsigned token accepted: %q", result.Status)
	}
}

func TestAuthorizeWithoutTableIsUnauthorized(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	token, err := g.Sign(map[string]any{"id": "user-1", "subscription": "unknown-tier"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	result := g.Authorize(ctx, token, "billing.invoices.create")
	if result.Status != "unauthorized" {
		t.Fatalf("got %q, want unauthorized", result.Status)
	}
}

func TestAuthorizeRestrictsDeniedEndpoint(t *testing.T) {
	g, cache := newTestGateway(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "free", `{"billing":{"invoices":{"endpoints":{"export":false}}}}`); err != nil {
		t.Fatalf("seeding table: %v", err)
	}
	token, err := g.Sign(map[string]any{"id": "user-1", "subscription": "free"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	result := g.Authorize(ctx, token, "billing.invoices.export")
	if result.Status != "restricted" {
		t.Fatalf("got %q, want restricted", result.Status)
	}
}

func TestAuthorizeUnwrapsLegacyClaims(t *testing.T) {
	g, cache := newTestGateway(t)
	ctx := context.Background()
	if err := cache.Set(ctx, "pro", `{}`); err != nil {
		t.Fatalf("seeding table: %v", err)
	}

	token, err := g.Sign(map[string]any{
		"uE": map[string]any{"id": "legacy-user", "type": "user", "subscription": "pro"},
	}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	result := g.Authorize(ctx, token, "billing.invoices.create")
	if result.Status != "success" {
		t.Fatalf("authorize: %q %q", result.Status, result.Message)
	}
	if result.Data.ID != "legacy-user" {
		t.Fatalf("wrapped claims not unwrapped: %+v", result.Data)
	}
}

func TestAuthorizeCompatibilityTier(t *testing.T) {
	g, cache := newTestGateway(t)
	ctx := context.Background()
	if err := cache.Set(ctx, "subscription:Professional", `{}`); err != nil {
		t.Fatalf("seeding table: %v", err)
	}

	// Tokens predating the subscription claim carry a subscriptions list.
	token, err := g.Sign(map[string]any{
		"id":            "old-user",
		"subscriptions": []any{"plan-a"},
	}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	result := g.Authorize(ctx, token, "billing.invoices.create")
	if result.Status != "success" {
		t.Fatalf("compatibility tier rejected: %q %q", result.Status, result.Message)
	}
}

func TestVerifyCustom(t *testing.T) {
	g, _ := newTestGateway(t)

	token, err := g.SignCustom(map[string]any{"id": "svc"}, "partner-secret", time.Hour)
	if err != nil {
		t.Fatalf("sign custom: %v", err)
	}

	claims, err := g.VerifyCustom(token, "partner-secret")
	if err != nil {
		t.Fatalf("verify custom: %v", err)
	}
	if claims["id"] != "svc" {
		t.Fatalf("claims %v", claims)
	}

	if _, err := g.VerifyCustom(token, ""); err == nil {
		t.Fatal("gateway secret must not verify a partner token")
	}
}

func TestCleanToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{in: "Bearer abc", want: "abc", ok: true},
		{in: "Token abc", want: "abc", ok: true},
		{in: "abc", ok: false},
		{in: "", ok: false},
		{in: "Bearer a b", ok: false},
		{in: "  Bearer   abc  ", want: "abc", ok: true},
	}

	for _, tt := range tests {
		got, ok := cleanToken(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("cleanToken(%q) = %q,%v want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
