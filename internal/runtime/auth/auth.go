// Package auth verifies bearer tokens, loads tier permission tables from the
// shared cache, and resolves per-endpoint permissions.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pathcall/pathcall/internal/runtime/jsoncodec"
	"github.com/pathcall/pathcall/internal/runtime/logging"
	"github.com/pathcall/pathcall/internal/runtime/store"
	"github.com/pathcall/pathcall/internal/runtime/wire"
)

// DefaultExpiry is applied to signed tokens when the caller gives none.
const DefaultExpiry = 365 * 24 * time.Hour

// legacyClaimsKey is the wrapper some older issuers nest the real claims
// under; Authorize unwraps it transparently.
const legacyClaimsKey = "uE"

// compatibilityTier is the tier assumed for tokens that predate the
// subscription claim but carry a subscriptions list.
const compatibilityTier = "subscription:Professional"

// Result is the outcome of an authorization check. Data is only set on
// success.
type Result struct {
	Message string
	Status  wire.Status
	Data    *wire.CallContext
}

// Gateway authenticates callers and resolves their permissions. Permission
// tables are read from the shared cache keyed by subscription tier and are
// invalidated externally; the gateway never writes them.
type Gateway struct {
	secret []byte
	cache  store.Store
	logger logging.ServiceLogger
}

// NewGateway builds a Gateway over the shared registry store.
func NewGateway(secret string, cache store.Store, logger logging.ServiceLogger) *Gateway {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Gateway{secret: []byte(secret), cache: cache, logger: logger}
}

// Authorize verifies the bearer token and resolves the caller's permission
// for the given dot-path. Every verification failure, malformed token, or
// cache fault collapses to an unauthorized result; only an explicit
// permission denial is reported as restricted.
func (g *Gateway) Authorize(ctx context.Context, token, path string) Result {
	claims, err := g.verify(token, g.secret)
	if err != nil {
		g.logger.Debug("token verification failed", logging.LogFields{"error": err.Error()})
		return unauthorizedResult()
	}

	tier := subscriptionTier(claims)
	serialized, found, err := g.cache.Get(ctx, tier)
	if err != nil {
		g.logger.Error("permission cache lookup failed", err, logging.LogFields{"tier": tier})
		return unauthorizedResult()
	}
	if !found {
		return Result{Message: "Unauthorized", Status: wire.StatusUnauthorized}
	}

	var table wire.PermissionTable
	if err := jsoncodec.UnmarshalString(serialized, &table); err != nil {
		g.logger.Error("permission table is not valid JSON", err, logging.LogFields{"tier": tier})
		return unauthorizedResult()
	}

	permission := FetchPermission(table, wire.ParsePath(path))
	if !permission.Allow {
		return Result{
			Message: "You are not authorized to access this endpoint, Upgrade your current plan",
			Status:  wire.StatusRestricted,
		}
	}

	cc := contextFromClaims(claims)
	cc.Permission = &permission
	return Result{Message: "Authorized", Status: wire.StatusSuccess, Data: cc}
}

// VerifyCustom decodes a token signed by an alternate issuer. An empty secret
// falls back to the gateway's own.
func (g *Gateway) VerifyCustom(token, secret string) (map[string]any, error) {
	key := g.secret
	if secret != "" {
		key = []byte(secret)
	}
	return g.verify(token, key)
}

// Sign issues a bearer token over the claims, defaulting expiry to one year.
func (g *Gateway) Sign(claims map[string]any, expiry time.Duration) (string, error) {
	return signWith(g.secret, claims, expiry)
}

// SignCustom issues a token with an alternate secret.
func (g *Gateway) SignCustom(claims map[string]any, secret string, expiry time.Duration) (string, error) {
	key := g.secret
	if secret != "" {
		key = []byte(secret)
	}
	return signWith(key, claims, expiry)
}

func signWith(key []byte, claims map[string]any, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}

	mc := jwt.MapClaims{}
	for k, v := range claims {
		mc[k] = v
	}
	mc["exp"] = jwt.NewNumericDate(time.Now().Add(expiry))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mc).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return "Bearer " + token, nil
}

func (g *Gateway) verify(token string, key []byte) (map[string]any, error) {
	raw, ok := cleanToken(token)
	if !ok {
		return nil, fmt.Errorf("malformed authorization header")
	}

	parsed, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type %T", parsed.Claims)
	}

	// Legacy issuers wrap the real claims.
	if wrapped, ok := claims[legacyClaimsKey].(map[string]any); ok {
		return wrapped, nil
	}
	return claims, nil
}

// cleanToken strips the scheme prefix. Exactly two whitespace-separated
// tokens are expected; anything else means the token is treated as absent.
func cleanToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	parts := strings.Fields(token)
	if len(parts) != 2 {
		return "", false
	}
	return parts[1], true
}

// subscriptionTier prefers the explicit subscription claim and otherwise
// derives a compatibility tier from the presence of a subscriptions claim.
func subscriptionTier(claims map[string]any) string {
	if tier, ok := claims["subscription"].(string); ok && tier != "" {
		return tier
	}
	if _, ok := claims["subscriptions"]; ok {
		return compatibilityTier
	}
	return ""
}

func contextFromClaims(claims map[string]any) *wire.CallContext {
	cc := &wire.CallContext{Claims: claims}
	if id, ok := claims["id"].(string); ok {
		cc.ID = id
	}
	if typ, ok := claims["type"].(string); ok {
		cc.Type = typ
	}
	return cc
}

func unauthorizedResult() Result {
	return Result{
		Message: "Unable to authenticate user, please login again.",
		Status:  wire.StatusUnauthorized,
	}
}
