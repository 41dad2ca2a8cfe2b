package network

import (
	"github.com/shardlabs/shard-go/model/chunk"
)

// Network represents the network layer of the node. It allows engines to
// register themselves on a channel; the returned conduit lets the engine
// send messages to engines on other nodes subscribed to the same channel.
// On a single node, only one engine can be subscribed to a channel at any
// given time.
//
// The network is treated as an opaque asynchronous channel: message
// delivery is unreliable, unordered, and may duplicate.
type Network interface {
	Register(channel Channel, processor MessageProcessor) (Conduit, error)
}

// Conduit is the sending interface an engine holds for one channel.
type Conduit interface {
	// Publish sends the event in an unreliable way to all given recipients.
	Publish(event interface{}, targetIDs ...chunk.Identifier) error

	// Unicast sends the event to a single recipient.
	Unicast(event interface{}, targetID chunk.Identifier) error
}

// MessageProcessor handles events delivered on a channel. Process must not
// block for long; the origin identifier names the node that originally
// submitted the event to the network and serves as the route-back address
// for replies.
type MessageProcessor interface {
	Process(channel Channel, originID chunk.Identifier, event interface{}) error
}
