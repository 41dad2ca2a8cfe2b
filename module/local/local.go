package local

import (
	"github.com/shardlabs/shard-go/model/chunk"
	"github.com/shardlabs/shard-go/module"
)

// Local implements the local node identity.
type Local struct {
	nodeID chunk.Identifier
}

var _ module.Local = (*Local)(nil)

func New(nodeID chunk.Identifier) *Local {
	return &Local{
		nodeID: nodeID,
	}
}

func (l *Local) NodeID() chunk.Identifier {
	return l.nodeID
}
