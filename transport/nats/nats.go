// Package nats provides a NATS Core transport for pathcall.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"

	"github.com/pathcall/pathcall/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// Register registers the NATS transport with the default registry.
// This should be called from an init() function in an importing package,
// or explicitly before using the transport.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build creates a new NATS transport. Each queue name maps onto a core-NATS
// subject, and subscribers join a queue group per subject so one inbox's
// messages are split across worker processes rather than broadcast. Core
// NATS has no broker-side prefetch; SubscribersCount is pinned to one so a
// single puller feeds the router, whose sequential handler completes the
// one-in-flight contract. JetStream is disabled: delivery is at most once,
// matching the ack-and-drop consumption policy.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}
	jetStream := nats.JetStreamConfig{Disabled: true}

	publisher, err := nats.NewPublisher(
		nats.PublisherConfig{
			URL:       url,
			Marshaler: marshaler,
			JetStream: jetStream,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := nats.NewSubscriber(
		nats.SubscriberConfig{
			URL:              url,
			Unmarshaler:      marshaler,
			QueueGroupPrefix: "pathcall",
			SubscribersCount: 1,
			JetStream:        jetStream,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
