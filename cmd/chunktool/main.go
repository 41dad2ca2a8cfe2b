package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shardlabs/shard-go/model/chunk"
	"github.com/shardlabs/shard-go/module/assignment"
	"github.com/shardlabs/shard-go/module/erasure"
	"github.com/shardlabs/shard-go/module/merkle"
	"github.com/shardlabs/shard-go/storage"
	storagebadger "github.com/shardlabs/shard-go/storage/badger"
	"github.com/shardlabs/shard-go/utils/logging"

	"github.com/dgraph-io/badger/v2"
)

// chunktool is a small operational utility around the chunk part store: it
// can encode a payload into proven parts, reconstruct a payload from the
// parts on disk, inspect what is held for a chunk, and print the
// deterministic owner assignment of a chunk's parts.

var (
	flagDataDir    string
	flagLogLevel   string
	flagDataParts  uint16
	flagTotalParts uint16
	flagHeight     uint64
	flagShardIndex uint64
	flagNodeIDs    []string
)

func main() {
	root := &cobra.Command{
		Use:          "chunktool",
		Short:        "inspect and manipulate a chunk part store",
		SilenceUsage: true,
	}
	addStoreFlags(root.PersistentFlags())

	encodeCmd := &cobra.Command{
		Use:   "encode <payload-file>",
		Short: "erasure-code a payload file into proven parts and store them",
		Args:  cobra.ExactArgs(1),
		RunE:  runEncode,
	}
	encodeCmd.Flags().Uint16Var(&flagDataParts, "data-parts", 4, "number of data parts")
	encodeCmd.Flags().Uint16Var(&flagTotalParts, "total-parts", 12, "total number of parts")
	encodeCmd.Flags().Uint64Var(&flagHeight, "height", 0, "block height of the chunk")
	encodeCmd.Flags().Uint64Var(&flagShardIndex, "shard", 0, "shard index of the chunk")

	decodeCmd := &cobra.Command{
		Use:   "decode <chunk-id> <output-file>",
		Short: "reconstruct a chunk payload from the parts on disk",
		Args:  cobra.ExactArgs(2),
		RunE:  runDecode,
	}

	inspectCmd := &cobra.Command{
		Use:   "inspect <chunk-id>",
		Short: "show the header and held part indices of a chunk",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}

	ownersCmd := &cobra.Command{
		Use:   "owners <chunk-id>",
		Short: "print the assigned owner of every part of a chunk",
		Args:  cobra.ExactArgs(1),
		RunE:  runOwners,
	}
	ownersCmd.Flags().Uint16Var(&flagTotalParts, "total-parts", 12, "total number of parts")
	ownersCmd.Flags().StringSliceVar(&flagNodeIDs, "participants", nil, "hex node identifiers of the participant set")

	root.AddCommand(encodeCmd, decodeCmd, inspectCmd, ownersCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addStoreFlags(flags *pflag.FlagSet) {
	flags.StringVar(&flagDataDir, "datadir", "chunkstore", "directory of the part store database")
	flags.StringVar(&flagLogLevel, "loglevel", "info", "log level (debug, info, warn, error)")
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(flagLogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func openStore(log zerolog.Logger) (*badger.DB, storage.Parts, storage.Headers, error) {
	opts := badger.
		DefaultOptions(flagDataDir).
		WithLogger(nil).
		WithSyncWrites(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Debug().Str("datadir", flagDataDir).Msg("part store opened")
	return db, storagebadger.NewParts(db), storagebadger.NewHeaders(db), nil
}

func runEncode(cmd *cobra.Command, args []string) error {
	log := newLogger()

	payload, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	codec, err := erasure.NewCodec(flagDataParts, flagTotalParts)
	if err != nil {
		return err
	}
	shards, err := codec.Encode(payload)
	if err != nil {
		return err
	}
	tree, err := merkle.NewTree(shards)
	if err != nil {
		return err
	}

	header := &chunk.Header{
		Height:      flagHeight,
		ShardIndex:  flagShardIndex,
		DataParts:   flagDataParts,
		TotalParts:  flagTotalParts,
		PayloadSize: uint64(len(payload)),
		PartsRoot:   chunk.HashToID(tree.Root()),
	}
	chunkID := header.ID()

	db, parts, headers, err := openStore(log)
	if err != nil {
		return err
	}
	defer db.Close()

	err = headers.Store(header)
	if err != nil {
		return err
	}
	for i := range shards {
		proof, err := tree.Prove(i)
		if err != nil {
			return err
		}
		err = parts.Store(&chunk.Part{
			ChunkID: chunkID,
			Index:   uint16(i),
			Data:    shards[i],
			Proof:   proof,
		})
		if err != nil {
			return err
		}
	}

	log.Info().
		Hex("chunk_id", logging.ID(chunkID)).
		Int("payload_bytes", len(payload)).
		Uint16("total_parts", flagTotalParts).
		Msg("chunk encoded and stored")
	cmd.Println(chunkID.String())
	return nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	log := newLogger()

	chunkID, err := chunk.HexStringToIdentifier(args[0])
	if err != nil {
		return err
	}

	db, parts, headers, err := openStore(log)
	if err != nil {
		return err
	}
	defer db.Close()

	header, err := headers.ByChunkID(chunkID)
	if err != nil {
		return err
	}
	indices, err := parts.IndicesByChunk(chunkID)
	if err != nil {
		return err
	}

	shards := make([][]byte, header.TotalParts)
	for _, index := range indices {
		if index >= header.TotalParts {
			log.Warn().Uint16("part_index", index).Msg("ignoring stored part with out-of-range index")
			continue
		}
		part, err := parts.ByChunkPart(chunkID, index)
		if err != nil {
			return err
		}
		shards[index] = part.Data
	}

	codec, err := erasure.NewCodec(header.DataParts, header.TotalParts)
	if err != nil {
		return err
	}
	payload, err := codec.Decode(chunkID, shards, header.PayloadSize)
	if err != nil {
		return err
	}

	err = os.WriteFile(args[1], payload, 0644)
	if err != nil {
		return err
	}
	log.Info().
		Hex("chunk_id", logging.ID(chunkID)).
		Int("payload_bytes", len(payload)).
		Msg("chunk payload reconstructed")
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	log := newLogger()

	chunkID, err := chunk.HexStringToIdentifier(args[0])
	if err != nil {
		return err
	}

	db, parts, headers, err := openStore(log)
	if err != nil {
		return err
	}
	defer db.Close()

	header, err := headers.ByChunkID(chunkID)
	if err != nil {
		return err
	}
	indices, err := parts.IndicesByChunk(chunkID)
	if err != nil {
		return err
	}

	cmd.Printf("chunk:        %s\n", chunkID)
	cmd.Printf("height:       %d\n", header.Height)
	cmd.Printf("shard:        %d\n", header.ShardIndex)
	cmd.Printf("parts:        %d data / %d total\n", header.DataParts, header.TotalParts)
	cmd.Printf("payload size: %d bytes\n", header.PayloadSize)
	cmd.Printf("parts root:   %s\n", header.PartsRoot)
	cmd.Printf("held indices: %v (%d of %d)\n", indices, len(indices), header.TotalParts)
	return nil
}

func runOwners(cmd *cobra.Command, args []string) error {
	chunkID, err := chunk.HexStringToIdentifier(args[0])
	if err != nil {
		return err
	}

	participants := make(chunk.ParticipantList, 0, len(flagNodeIDs))
	for _, hexID := range flagNodeIDs {
		nodeID, err := chunk.HexStringToIdentifier(hexID)
		if err != nil {
			return err
		}
		participants = append(participants, &chunk.Participant{NodeID: nodeID, Weight: 1})
	}

	for index := uint16(0); index < flagTotalParts; index++ {
		owner, err := assignment.OwnerOf(chunkID, index, participants)
		if err != nil {
			return err
		}
		cmd.Printf("part %3d -> %s\n", index, owner.NodeID)
	}
	return nil
}
