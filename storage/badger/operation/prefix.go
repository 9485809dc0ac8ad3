package operation

import (
	"encoding/binary"
	"fmt"

	"github.com/ledgerbft/node/model/flow"
)

const (

	// codes for special database markers
	codeLastProof = 1 // latest committed ledger proof

	// codes for the committed ledger
	codeCommand    = 10 // command by height
	codeProof      = 11 // ledger proof by (epoch, height, view)
	codeEpochProof = 12 // epoch ending ledger proof by epoch

	// codes for consensus state
	codeSafetyData       = 20
	codeLivenessData     = 21
	codeVertexStoreState = 22 // vertex store snapshot by epoch
)

func makePrefix(code byte, keys ...interface{}) []byte {
	prefix := []byte{code}
	for _, key := range keys {
		prefix = append(prefix, b(key)...)
	}
	return prefix
}

func b(v interface{}) []byte {
	switch i := v.(type) {
	case uint8:
		return []byte{i}
	case uint32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, i)
		return b
	case uint64:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, i)
		return b
	case flow.Identifier:
		return i[:]
	default:
		panic(fmt.Sprintf("unsupported type to convert (%T)", v))
	}
}
