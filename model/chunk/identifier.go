package chunk

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/onflow/flow-go/crypto/hash"
)

// Identifier is a 32-byte content hash. It identifies chunks, parts and
// participants uniquely across the network and is stable across restarts.
type Identifier [32]byte

// ZeroID is the lowest value in the 32-byte ID space.
var ZeroID = Identifier{}

// HexStringToIdentifier converts a hex string to an identifier. The input
// must be 64 characters long and contain only valid hex characters.
func HexStringToIdentifier(s string) (Identifier, error) {
	var id Identifier
	if len(s) != 2*len(id) {
		return ZeroID, fmt.Errorf("malformed input, expected %d characters, got %d", 2*len(id), len(s))
	}
	_, err := hex.Decode(id[:], []byte(s))
	if err != nil {
		return ZeroID, fmt.Errorf("could not decode hex string: %w", err)
	}
	return id, nil
}

func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// HashToID folds a hash digest into an identifier.
func HashToID(h []byte) Identifier {
	var id Identifier
	copy(id[:], h)
	return id
}

// MakeID hashes the canonical CBOR encoding of the given entity with
// SHA3-256. Every node derives the same identifier for the same entity
// without any coordination, which is what the ownership assignment and
// chunk identification rely on.
func MakeID(entity interface{}) Identifier {
	data, err := cbor.Marshal(entity)
	if err != nil {
		// encoding an in-memory model type can only fail on a programming
		// error, never on user input
		panic(fmt.Sprintf("could not encode entity for hashing: %v", err))
	}
	hasher := hash.NewSHA3_256()
	return HashToID(hasher.ComputeHash(data))
}

// IdentifierList is a slice of identifiers with some convenience methods.
type IdentifierList []Identifier

// Contains reports whether the given identifier is in the list.
func (il IdentifierList) Contains(target Identifier) bool {
	for _, id := range il {
		if id == target {
			return true
		}
	}
	return false
}

// Strs returns the hex representation of all identifiers in the list.
func (il IdentifierList) Strs() []string {
	ss := make([]string, 0, len(il))
	for _, id := range il {
		ss = append(ss, id.String())
	}
	return ss
}

func (il IdentifierList) Len() int {
	return len(il)
}

func (il IdentifierList) Less(i, j int) bool {
	return bytes.Compare(il[i][:], il[j][:]) < 0
}

func (il IdentifierList) Swap(i, j int) {
	il[i], il[j] = il[j], il[i]
}
