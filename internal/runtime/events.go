package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	errspkg "github.com/pathcall/pathcall/internal/runtime/errors"
	"github.com/pathcall/pathcall/internal/runtime/logging"
	"github.com/pathcall/pathcall/internal/runtime/store"
)

// EventHandler is a local event subscriber. Invocation is fire-and-forget
// relative to the request that emitted the event; returned errors are logged
// and never surface to the emitter.
type EventHandler func(ctx context.Context, payload any) error

// subscription is the decoded form of the external record
// service-event-class-method. Service and event names must not contain
// dashes; the record format predates this implementation and is shared with
// deployments that split on them.
type subscription struct {
	Service string
	Event   string
	Class   string
	Method  string
}

func encodeSubscription(service, event, class, method string) string {
	return service + "-" + event + "-" + class + "-" + method
}

func decodeSubscription(record string) (subscription, bool) {
	parts := strings.SplitN(record, "-", 4)
	if len(parts) != 4 {
		return subscription{}, false
	}
	return subscription{Service: parts[0], Event: parts[1], Class: parts[2], Method: parts[3]}, true
}

type localSubscriber struct {
	class  string
	method string
	fn     EventHandler
}

// EventBus fans events out to local subscribers and, through the shared
// registry, to the inbox queues of remote subscribing services.
type EventBus struct {
	application string
	environment string
	service     string

	store   store.Store
	queue   *Queue
	logger  logging.ServiceLogger
	metrics *Metrics

	mu       sync.RWMutex
	local    map[string][]localSubscriber
	declared []string
}

func newEventBus(application, environment, service string, st store.Store, queue *Queue, logger logging.ServiceLogger, metrics *Metrics) *EventBus {
	return &EventBus{
		application: application,
		environment: environment,
		service:     service,
		store:       st,
		queue:       queue,
		logger:      logger,
		metrics:     metrics,
		local:       make(map[string][]localSubscriber),
	}
}

// Subscribe registers a handler for an event at startup. The class/method
// pair names the handler in the externalized subscriber record; the record
// itself is published to the registry by flush.
func (b *EventBus) Subscribe(event, class, method string, fn EventHandler) error {
	if event == "" {
		return errspkg.ErrEventNameRequired
	}
	if fn == nil {
		return errspkg.ErrHandlerRequired
	}

	b.mu.Lock()
	b.local[event] = append(b.local[event], localSubscriber{class: class, method: method, fn: fn})
	b.mu.Unlock()
	return nil
}

// DeclareEvent records that an event name exists. This is metadata
// bookkeeping for downstream tooling, not a runtime gate: emitting an
// undeclared event still works.
func (b *EventBus) DeclareEvent(event string) {
	b.mu.Lock()
	b.declared = append(b.declared, event)
	b.mu.Unlock()
}

// IsSubscribed reports whether this process has a local handler for event.
func (b *EventBus) IsSubscribed(event string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.local[event]) > 0
}

// flush publishes declared event names and subscriber records to the shared
// registry. Called once during engine startup. Records are never reaped:
// stale entries from removed subscriptions are tolerated by consumers.
func (b *EventBus) flush(ctx context.Context) error {
	b.mu.RLock()
	declared := append([]string(nil), b.declared...)
	records := make([]string, 0)
	for event, subs := range b.local {
		for _, sub := range subs {
			records = append(records, encodeSubscription(b.service, event, sub.class, sub.method))
		}
	}
	b.mu.RUnlock()

	if len(declared) > 0 {
		if err := b.store.SAdd(ctx, store.DeclaredEventsKey(b.application, b.environment), declared...); err != nil {
			return fmt.Errorf("declaring events: %w", err)
		}
	}

	for _, record := range records {
		sub, _ := decodeSubscription(record)
		if err := b.store.SAdd(ctx, store.EventKey(b.application, sub.Event), record); err != nil {
			return fmt.Errorf("registering subscription %s: %w", record, err)
		}
	}
	return nil
}

// Emit delivers an event. Unless localOnly is set, every subscriber record in
// the registry whose service differs from this one receives an event-flagged
// queue message on its inbox — one publish per record, deliberately without
// deduplication: two subscribing handlers on the same remote service mean two
// deliveries, each re-deriving its own work. Local subscribers always run,
// fire-and-forget.
func (b *EventBus) Emit(ctx context.Context, event string, payload any, localOnly bool) error {
	var errs []error

	if !localOnly {
		records, err := b.store.SMembers(ctx, store.EventKey(b.application, event))
		if err != nil {
			errs = append(errs, fmt.Errorf("listing subscribers for %s: %w", event, err))
		}
		for _, record := range records {
			sub, ok := decodeSubscription(record)
			if !ok {
				b.logger.Debug("skipping malformed subscriber record", logging.LogFields{"record": record})
				continue
			}
			if sub.Service == b.service {
				continue
			}
			target := sub.Service + "-" + b.environment
			if err := b.queue.SendToQueue(ctx, target, payload, event, true); err != nil {
				errs = append(errs, fmt.Errorf("forwarding %s to %s: %w", event, target, err))
				continue
			}
			b.metrics.EventsEmitted.WithLabelValues("remote").Inc()
		}
	}

	b.invokeLocal(ctx, event, payload)
	return errors.Join(errs...)
}

// invokeLocal runs every local subscriber in its own goroutine. Panics and
// errors are contained here; the emitter's response has already been sent.
func (b *EventBus) invokeLocal(ctx context.Context, event string, payload any) {
	b.mu.RLock()
	subs := append([]localSubscriber(nil), b.local[event]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		go func(sub localSubscriber) {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event subscriber panicked", fmt.Errorf("panic: %v", r),
						logging.LogFields{"event": event, "handler": sub.class + "." + sub.method})
				}
			}()
			if err := sub.fn(ctx, payload); err != nil {
				b.logger.Error("event subscriber failed", err,
					logging.LogFields{"event": event, "handler": sub.class + "." + sub.method})
				return
			}
			b.metrics.EventsEmitted.WithLabelValues("local").Inc()
		}(sub)
	}
}
