package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/pathcall/pathcall/internal/runtime/errors"
	"github.com/pathcall/pathcall/internal/runtime/ids"
	"github.com/pathcall/pathcall/internal/runtime/jsoncodec"
	"github.com/pathcall/pathcall/internal/runtime/logging"
	"github.com/pathcall/pathcall/internal/runtime/wire"
	"github.com/pathcall/pathcall/transport"
)

// ConsumeFunc processes one decoded queue message. Implementations must call
// done exactly once; the message is acknowledged when done fires, success or
// failure alike, and the next message is not consumed until then. done may be
// resolved from another goroutine for asynchronous work. Failed messages are
// dropped, not requeued: with prefetch 1 a requeue loop would stall the inbox
// behind one poison message.
type ConsumeFunc func(ctx context.Context, msg wire.QueueMessage, done func(error))

// Queue is the managed connection to this service's inbox plus the ability
// to publish to arbitrarily named queues. The broker connection is attached
// asynchronously; publishing before it is ready fails with
// ErrChannelNotReady rather than silently dropping the message.
type Queue struct {
	inbox    string
	logger   logging.ServiceLogger
	metrics  *Metrics
	wmLogger watermill.LoggerAdapter

	mu         sync.RWMutex
	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router
	consume    ConsumeFunc

	attached chan struct{}
}

func newQueue(inbox string, logger logging.ServiceLogger, metrics *Metrics) *Queue {
	return &Queue{
		inbox:    inbox,
		logger:   logger,
		metrics:  metrics,
		wmLogger: logging.NewWatermillAdapter(logger),
		attached: make(chan struct{}),
	}
}

// Process registers the consumer callback. It must be called before the
// transport is attached; the inbox handler is wired at attach time.
func (q *Queue) Process(cb ConsumeFunc) {
	q.mu.Lock()
	q.consume = cb
	q.mu.Unlock()
}

// Ready reports whether the broker channel is attached.
func (q *Queue) Ready() bool {
	select {
	case <-q.attached:
		return true
	default:
		return false
	}
}

// attach wires the transport's publisher/subscriber and, if a consumer is
// registered, adds the inbox handler. Consumption is strictly one message at
// a time: the router does not hand over message N+1 before N's handler
// returns, and the broker-side prefetch is pinned to one in the transport.
func (q *Queue) attach(t transport.Transport) error {
	router, err := message.NewRouter(message.RouterConfig{}, q.wmLogger)
	if err != nil {
		return fmt.Errorf("creating queue router: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.publisher = t.Publisher
	q.subscriber = t.Subscriber
	q.router = router

	if q.consume != nil {
		router.AddNoPublisherHandler(
			"inbox_consumer",
			q.inbox,
			q.subscriber,
			q.handleMessage,
		)
	}

	close(q.attached)
	return nil
}

// handleMessage decodes the envelope and runs the consumer. It blocks until
// the consumer fires the done signal and only then returns nil, which acks
// the broker message: the next message is never handed over before the
// current one's done resolves. Failures are logged, counted, and dropped,
// keeping the at-most-once contract.
func (q *Queue) handleMessage(msg *message.Message) error {
	defer func() {
		if r := recover(); r != nil {
			q.metrics.QueueFailed.Inc()
			q.logger.Error("queue consumer panicked", fmt.Errorf("panic: %v", r),
				logging.LogFields{"message_uuid": msg.UUID})
		}
	}()

	var envelope wire.QueueMessage
	if err := jsoncodec.Unmarshal(msg.Payload, &envelope); err != nil {
		q.metrics.QueueFailed.Inc()
		q.logger.Error("dropping undecodable queue message", err,
			logging.LogFields{"message_uuid": msg.UUID})
		return nil
	}

	q.mu.RLock()
	consume := q.consume
	q.mu.RUnlock()
	if consume == nil {
		return nil
	}

	doneCh := make(chan error, 1)
	consume(msg.Context(), envelope, func(err error) {
		doneCh <- err
	})
	consumeErr := <-doneCh

	if consumeErr != nil {
		q.metrics.QueueFailed.Inc()
		q.logger.Error("queue message failed, dropping", consumeErr,
			logging.LogFields{"path": envelope.Path, "src": envelope.SrcPath})
	} else {
		q.metrics.QueueProcessed.Inc()
	}
	return nil
}

// SendToQueue wraps the payload into the queue envelope, stamping this
// service's inbox as the source, and publishes it to the target queue.
func (q *Queue) SendToQueue(ctx context.Context, target string, data any, path string, isEvent bool) error {
	return q.Publish(ctx, target, wire.QueueMessage{
		Path:    path,
		Data:    data,
		SrcPath: q.inbox,
		IsEvent: isEvent,
	})
}

// Publish serializes the envelope and sends it to the named queue.
func (q *Queue) Publish(ctx context.Context, target string, envelope wire.QueueMessage) error {
	if target == "" {
		return errspkg.ErrQueueNameRequired
	}

	q.mu.RLock()
	publisher := q.publisher
	q.mu.RUnlock()
	if publisher == nil {
		return errspkg.ErrChannelNotReady
	}

	payload, err := jsoncodec.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encoding queue envelope: %w", err)
	}

	msg := message.NewMessage(ids.NewID(), payload)
	msg.SetContext(ctx)

	if err := publisher.Publish(target, msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", target, err)
	}
	return nil
}

// run blocks until the transport is attached, then drives the consumer
// router until ctx is cancelled. Without a registered consumer it simply
// waits for cancellation.
func (q *Queue) run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.attached:
	}

	q.mu.RLock()
	router := q.router
	consume := q.consume
	q.mu.RUnlock()

	if consume == nil || router == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return router.Run(ctx)
}

// Close shuts down the broker connection if it was attached.
func (q *Queue) Close() error {
	if !q.Ready() {
		return nil
	}

	q.mu.RLock()
	defer q.mu.RUnlock()

	var firstErr error
	if q.router != nil {
		firstErr = q.router.Close()
	}
	if q.publisher != nil {
		if err := q.publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if q.subscriber != nil {
		if err := q.subscriber.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
