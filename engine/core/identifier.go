package core

import (
	"strconv"

	"github.com/google/uuid"
)

// IdentifierGenerator hands out unique identifiers for anchors and sessions.
type IdentifierGenerator func() string

// NewIdentifier returns a random (v4) identifier.
func NewIdentifier() string {
	return uuid.NewString()
}

// SequentialIdentifiers returns a deterministic generator: name-based (v5)
// uuids of prefix + counter. Handy in tests.
func SequentialIdentifiers(prefix string) IdentifierGenerator {
	var n uint64
	return func() string {
		n++
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(prefix+"/"+strconv.FormatUint(n, 10))).String()
	}
}
