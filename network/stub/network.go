package stub

import (
	"fmt"
	"sync"

	"github.com/shardlabs/shard-go/model/chunk"
	"github.com/shardlabs/shard-go/network"
)

// Network is an in-memory implementation of the network interface for one
// node, connected to its peers through a shared hub.
type Network struct {
	hub      *Hub
	originID chunk.Identifier

	mu      sync.Mutex
	engines map[network.Channel]network.MessageProcessor
}

var _ network.Network = (*Network)(nil)

// NewNetwork creates a stub network for the given node and attaches it to
// the hub.
func NewNetwork(hub *Hub, originID chunk.Identifier) *Network {
	n := &Network{
		hub:      hub,
		originID: originID,
		engines:  make(map[network.Channel]network.MessageProcessor),
	}
	hub.register(n)
	return n
}

// Register subscribes the given processor on a channel and returns the
// conduit for sending on that channel.
func (n *Network) Register(channel network.Channel, processor network.MessageProcessor) (network.Conduit, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, taken := n.engines[channel]
	if taken {
		return nil, fmt.Errorf("channel already taken (%s)", channel)
	}
	n.engines[channel] = processor

	return &Conduit{
		net:     n,
		channel: channel,
	}, nil
}

// Detach removes this node from the hub, so events addressed to it are
// dropped. It simulates the node crashing.
func (n *Network) Detach() {
	n.hub.unregister(n.originID)
}

func (n *Network) receive(channel string, originID chunk.Identifier, event interface{}) {
	n.mu.Lock()
	processor, exists := n.engines[network.Channel(channel)]
	n.mu.Unlock()

	if !exists {
		return
	}

	// processing errors are the receiving engine's concern, the network
	// drops them like a real transport would
	_ = processor.Process(network.Channel(channel), originID, event)
}

// Conduit is the stub sending interface for one channel of one node.
type Conduit struct {
	net     *Network
	channel network.Channel
}

var _ network.Conduit = (*Conduit)(nil)

func (c *Conduit) Publish(event interface{}, targetIDs ...chunk.Identifier) error {
	for _, targetID := range targetIDs {
		c.net.hub.deliver(string(c.channel), c.net.originID, targetID, event)
	}
	return nil
}

func (c *Conduit) Unicast(event interface{}, targetID chunk.Identifier) error {
	c.net.hub.deliver(string(c.channel), c.net.originID, targetID, event)
	return nil
}
