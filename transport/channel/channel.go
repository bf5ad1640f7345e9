// Package channel provides an in-memory Go channel transport for pathcall.
// This transport is useful for testing and local development.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/pathcall/pathcall/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a new Go channel transport. One gochannel pub/sub serves as
// both sides, so publishes to the local inbox loop back in-process. Messages
// are not persistent and there is only one process, which makes the inbox
// contract trivial: the router's sequential handler is the only consumer.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)
	return transport.Transport{
		Publisher:  pubSub,
		Subscriber: pubSub,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
