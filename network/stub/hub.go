package stub

import (
	"sync"

	"github.com/shardlabs/shard-go/model/chunk"
)

// Hub is a test helper that wires stub networks of multiple nodes together
// and relays events between them. Delivery is synchronous in the sender's
// goroutine; undeliverable events (unknown target, no engine on the
// channel, or a blocked target) are silently dropped, which is exactly the
// unreliable behavior engines must tolerate from a real network.
type Hub struct {
	mu       sync.Mutex
	networks map[chunk.Identifier]*Network
	blocked  map[chunk.Identifier]struct{}
}

func NewHub() *Hub {
	return &Hub{
		networks: make(map[chunk.Identifier]*Network),
		blocked:  make(map[chunk.Identifier]struct{}),
	}
}

// Block causes all events addressed to the given node to be dropped, until
// Unblock is called. Used to simulate an unresponsive peer.
func (h *Hub) Block(nodeID chunk.Identifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blocked[nodeID] = struct{}{}
}

// Unblock resumes delivery to the given node.
func (h *Hub) Unblock(nodeID chunk.Identifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.blocked, nodeID)
}

func (h *Hub) register(network *Network) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.networks[network.originID] = network
}

// unregister detaches a node from the hub, simulating a node going down.
func (h *Hub) unregister(nodeID chunk.Identifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.networks, nodeID)
}

func (h *Hub) deliver(channel string, originID chunk.Identifier, targetID chunk.Identifier, event interface{}) {
	h.mu.Lock()
	_, isBlocked := h.blocked[targetID]
	target, exists := h.networks[targetID]
	h.mu.Unlock()

	if isBlocked || !exists {
		return
	}

	target.receive(channel, originID, event)
}
