package transport

// Capabilities describes the features supported by a transport backend.
// Use this to introspect what operations are available at runtime.
type Capabilities struct {
	// SupportsOrdering indicates the transport guarantees message ordering.
	// When true, messages within a queue are delivered in order.
	SupportsOrdering bool

	// SupportsAck indicates the transport supports explicit message
	// acknowledgment.
	SupportsAck bool

	// SupportsNack indicates the transport supports negative acknowledgment
	// (redelivery).
	SupportsNack bool

	// SupportsPrefetchLimit indicates the broker honors a per-consumer
	// in-flight message cap.
	SupportsPrefetchLimit bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited or
	// unknown).
	MaxMessageSize int64

	// Name is the human-readable name of the transport.
	Name string

	// Version is the transport/driver version.
	Version string
}

// SupportsReliableDelivery returns true if the transport supports
// at-least-once delivery semantics (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Predefined capability sets for the bundled transports.
var (
	// ChannelCapabilities for the in-memory Go channel transport.
	ChannelCapabilities = Capabilities{
		Name:                  "channel",
		SupportsOrdering:      true,
		SupportsAck:           true,
		SupportsNack:          true,
		SupportsPrefetchLimit: false,
	}

	// RabbitMQCapabilities for the AMQP transport.
	RabbitMQCapabilities = Capabilities{
		Name:                  "rabbitmq",
		SupportsOrdering:      true,
		SupportsAck:           true,
		SupportsNack:          true,
		SupportsPrefetchLimit: true,
	}

	// NATSCapabilities for the NATS Core transport.
	NATSCapabilities = Capabilities{
		Name:                  "nats",
		SupportsOrdering:      true,
		SupportsAck:           true,
		SupportsNack:          false,
		SupportsPrefetchLimit: false,
	}
)
