package flow

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"sort"

	"golang.org/x/crypto/sha3"

	"github.com/ledgerbft/node/model/encoding/cbor"
)

// Identifier represents a 32-byte unique identifier for an entity.
type Identifier [32]byte

// ZeroID is the lowest value in the 32-byte ID space.
var ZeroID = Identifier{}

// IdentifierList defines a sortable list of identifiers
type IdentifierList []Identifier

var codec = cbor.NewCodec()

// HexStringToIdentifier converts a hex string to an identifier. The input
// must be 64 characters long and contain only valid hex characters.
func HexStringToIdentifier(hexString string) (Identifier, error) {
	var identifier Identifier
	i, err := hex.Decode(identifier[:], []byte(hexString))
	if err != nil {
		return identifier, err
	}
	if i != 32 {
		return identifier, fmt.Errorf("malformed input, expected 32 bytes (64 characters), decoded %d", i)
	}
	return identifier, nil
}

// MustHexStringToIdentifier converts a hex string to an identifier and panics on error.
func MustHexStringToIdentifier(hexString string) Identifier {
	id, err := HexStringToIdentifier(hexString)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the hex string representation of the identifier.
func (id Identifier) String() string {
	return hex.EncodeToString(id[:])
}

// TerminalString returns a short prefix of the identifier for log output.
func (id Identifier) TerminalString() string {
	return hex.EncodeToString(id[:4])
}

// MarshalText returns the hex representation of the identifier.
func (id Identifier) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText parses a hex representation of an identifier.
func (id *Identifier) UnmarshalText(text []byte) error {
	var err error
	*id, err = HexStringToIdentifier(string(text))
	return err
}

// MakeID creates an ID from the SHA3-256 hash of the canonical encoding of the entity.
func MakeID(entity interface{}) Identifier {
	data := codec.MustEncode(entity)
	return HashBytes(data)
}

// HashBytes returns the SHA3-256 digest of the given data as an identifier.
func HashBytes(data ...[]byte) Identifier {
	hasher := sha3.New256()
	for _, d := range data {
		_, _ = hasher.Write(d)
	}
	var id Identifier
	copy(id[:], hasher.Sum(nil))
	return id
}

// Len returns length of the IdentifierList in the number of stored identifiers.
func (il IdentifierList) Len() int {
	return len(il)
}

// Less returns true if element i in the IdentifierList is less than j based on its identifier.
func (il IdentifierList) Less(i, j int) bool {
	return IsIdentifierCanonical(il[i], il[j])
}

// Swap swaps the element i and j in the IdentifierList.
func (il IdentifierList) Swap(i, j int) {
	il[j], il[i] = il[i], il[j]
}

// Contains returns whether the list holds the given identifier.
func (il IdentifierList) Contains(target Identifier) bool {
	for _, id := range il {
		if id == target {
			return true
		}
	}
	return false
}

// Copy returns a copy of the IdentifierList.
func (il IdentifierList) Copy() IdentifierList {
	cpy := make(IdentifierList, 0, len(il))
	return append(cpy, il...)
}

// Filter returns the identifiers for which the filter returns true.
func (il IdentifierList) Filter(keep func(Identifier) bool) IdentifierList {
	filtered := make(IdentifierList, 0, len(il))
	for _, id := range il {
		if keep(id) {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

// Sort returns a canonically ordered copy of the list.
func (il IdentifierList) Sort() IdentifierList {
	cpy := il.Copy()
	sort.Sort(cpy)
	return cpy
}

// Sample returns a random element of the list using the given source.
// It returns false for an empty list.
func (il IdentifierList) Sample(rng *rand.Rand) (Identifier, bool) {
	if len(il) == 0 {
		return ZeroID, false
	}
	return il[rng.Intn(len(il))], true
}

// IsIdentifierCanonical returns true if the first identifier is strictly
// smaller than the second in byte order.
func IsIdentifierCanonical(id1 Identifier, id2 Identifier) bool {
	for i := 0; i < len(id1); i++ {
		if id1[i] != id2[i] {
			return id1[i] < id2[i]
		}
	}
	return false
}
