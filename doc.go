// Package pathcall is a procedure-call substrate for small service meshes.
// Every callable in the mesh is addressed by a dot-path of the form
// service.controller.endpoint, and every service exposes the same three
// surfaces: an HTTP envelope mount for synchronous calls, a broker-backed
// inbox queue for asynchronous calls and events, and a websocket mount for
// long-lived client sessions.
//
// An Engine hosts one service. Procedures are registered explicitly with
// Register; each registration names its controller and endpoint, and may
// carry a validator, an auth requirement, and a websocket callback. Calls
// whose path names a different service are relayed to a registered
// RemoteClient stub with a curated set of forwarded headers.
//
// Authorization is token-based: the AuthGateway verifies HMAC-signed bearer
// tokens, resolves the caller's subscription tier, and checks the requested
// path against a per-tier permission table kept in the shared store. The
// table is deny-listed per endpoint and open by default, so services only
// list what a tier may not call. QuotaGuard and ResourceGuard wrap handlers
// with per-permission usage limits and resource scoping.
//
// Successful calls emit an event named after their path. Subscriptions are
// advertised in the shared store; Emit fans an event out to every local
// subscriber and to the inbox queue of every remote subscriber. The broker
// behind the queue is pluggable through the transport registry (RabbitMQ,
// NATS, or in-memory channels out of the box) with consumption pinned to
// one in-flight message.
//
// Sessions hold at most one websocket per identity. Push delivers to the
// local connection when the identity is connected here, and otherwise
// forwards through a shared-store channel so whichever instance holds the
// session can deliver it.
//
// A minimal setup fills Config (or reads it with ConfigFromEnv), creates an
// Engine with NewEngine, registers procedures and subscriptions, and calls
// Start. See README.md for a copy/paste quick start snippet.
package pathcall
