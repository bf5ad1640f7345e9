// Package store abstracts the shared key-value registry that coordinates
// services: live service names, advertised hosts, event subscriber records,
// cached permission tables, and the cross-worker push channel.
package store

import "context"

// Store is the registry contract. The production implementation is Redis;
// tests use an in-memory fake. Implementations must be safe for concurrent
// use by multiple in-flight operations.
type Store interface {
	// Get returns the string value at key. The second return is false when
	// the key does not exist.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)

	// Publish sends a payload on a pub/sub channel; Listen returns a channel
	// of payloads received on it. Listen's channel closes when ctx ends.
	Publish(ctx context.Context, channel, payload string) error
	Listen(ctx context.Context, channel string) (<-chan string, error)

	Close() error
}

// Registry key layout. Everything is namespaced by application so multiple
// systems can share one Redis.

// ServicesKey holds the set of live service names per environment.
func ServicesKey(application, environment string) string {
	return application + "-client-" + environment
}

// HostKey holds one service's advertised host string.
func HostKey(application, service string) string {
	return application + "-host-" + service
}

// EventKey holds the set of subscriber records for one event.
func EventKey(application, event string) string {
	return application + "-event-" + event
}

// DeclaredEventsKey holds the set of declared event names, for downstream
// tooling to enumerate the valid event surface.
func DeclaredEventsKey(application, environment string) string {
	return application + "-" + environment + "-events"
}

// SocketChannel is the pub/sub channel carrying cross-worker push payloads.
func SocketChannel(application, environment string) string {
	return application + "-" + environment + "-socket"
}
