package chunk

import (
	"errors"
	"fmt"
)

// InsufficientPartsError indicates that a decode was attempted with fewer
// distinct parts than the chunk's data part count. It is recoverable: the
// caller simply waits for more responses.
type InsufficientPartsError struct {
	ChunkID Identifier
	Have    int
	Need    int
}

func NewInsufficientPartsError(chunkID Identifier, have int, need int) error {
	return InsufficientPartsError{ChunkID: chunkID, Have: have, Need: need}
}

func (e InsufficientPartsError) Error() string {
	return fmt.Sprintf("insufficient parts for chunk %s: have %d, need %d", e.ChunkID, e.Have, e.Need)
}

// IsInsufficientPartsError returns whether the given error is an
// InsufficientPartsError.
func IsInsufficientPartsError(err error) bool {
	var target InsufficientPartsError
	return errors.As(err, &target)
}

// InvalidProofError indicates that a part's merkle proof does not reproduce
// the chunk's committed parts root. The part is dropped and never fed to
// the codec or the store; the request continues against other owners.
type InvalidProofError struct {
	ChunkID Identifier
	Index   uint16
	msg     string
}

func NewInvalidProofErrorf(chunkID Identifier, index uint16, msg string, args ...interface{}) error {
	return InvalidProofError{
		ChunkID: chunkID,
		Index:   index,
		msg:     fmt.Sprintf(msg, args...),
	}
}

func (e InvalidProofError) Error() string {
	return fmt.Sprintf("invalid proof for part %d of chunk %s: %s", e.Index, e.ChunkID, e.msg)
}

// IsInvalidProofError returns whether the given error is an
// InvalidProofError.
func IsInvalidProofError(err error) bool {
	var target InvalidProofError
	return errors.As(err, &target)
}
