package network

// Channel specifies a virtual and isolated communication medium. Nodes
// subscribed to the same channel can disseminate messages to each other.
type Channel string

// channels for the chunk part availability protocol
const (
	// RequestChunkParts carries both part requests and the responses to
	// them; requesting and serving nodes meet on this one channel.
	RequestChunkParts Channel = "request-chunk-parts"
	ProvideChunkParts Channel = RequestChunkParts

	// PushChunkParts carries unsolicited part pushes from a chunk producer
	// to the assigned part owners.
	PushChunkParts Channel = "push-chunk-parts"
)
