package module

import (
	"github.com/shardlabs/shard-go/model/chunk"
)

// Local encapsulates the stable local node identity. Engines use it to
// recognize parts assigned to themselves and to avoid requesting data from
// themselves.
type Local interface {
	// NodeID returns the node identifier of the local node.
	NodeID() chunk.Identifier
}
