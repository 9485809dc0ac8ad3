package signature

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"

	"github.com/ledgerbft/node/model/flow"
)

// Signer produces ECDSA signatures over digests with a node's private key.
type Signer interface {
	// NodeID returns the identity of the signing node.
	NodeID() flow.Identifier
	// Sign signs the digest.
	Sign(digest flow.Identifier) []byte
}

// Verifier checks ECDSA signatures against public keys.
type Verifier interface {
	// Verify checks the signature over the digest against the public key.
	// Expected errors during normal operations:
	//  * ErrInvalidKey if the public key can not be parsed
	//  * ErrInvalidFormat if the signature can not be parsed
	//  * ErrInvalidSignature if the signature does not verify
	Verify(digest flow.Identifier, sig []byte, publicKey []byte) error
}

// PrivateKey is a secp256k1 signing key bound to a node identity.
type PrivateKey struct {
	nodeID flow.Identifier
	key    *btcec.PrivateKey
}

var _ Signer = (*PrivateKey)(nil)

// GeneratePrivateKey creates a fresh key; the node ID is derived from the public key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("could not generate secp256k1 key: %w", err)
	}
	return newPrivateKey(key), nil
}

// PrivateKeyFromSeed derives a key from a 32-byte seed. Used for reproducible
// local networks and tests.
func PrivateKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", btcec.PrivKeyBytesLen, len(seed))
	}
	key, _ := btcec.PrivKeyFromBytes(seed)
	return newPrivateKey(key), nil
}

func newPrivateKey(key *btcec.PrivateKey) *PrivateKey {
	return &PrivateKey{
		nodeID: NodeIDFromPublicKey(key.PubKey().SerializeCompressed()),
		key:    key,
	}
}

// NodeIDFromPublicKey derives a node identity from its compressed public key.
func NodeIDFromPublicKey(publicKey []byte) flow.Identifier {
	return flow.HashBytes(publicKey)
}

func (k *PrivateKey) NodeID() flow.Identifier {
	return k.nodeID
}

// PublicKey returns the compressed public key.
func (k *PrivateKey) PublicKey() []byte {
	return k.key.PubKey().SerializeCompressed()
}

// Validator returns a validator entry for this key with the given weight.
func (k *PrivateKey) Validator(weight uint64) *flow.Validator {
	return &flow.Validator{
		NodeID:    k.nodeID,
		Weight:    weight,
		PublicKey: k.PublicKey(),
	}
}

func (k *PrivateKey) Sign(digest flow.Identifier) []byte {
	return ecdsa.Sign(k.key, digest[:]).Serialize()
}

// ECDSAVerifier verifies DER encoded secp256k1 signatures.
type ECDSAVerifier struct{}

var _ Verifier = (*ECDSAVerifier)(nil)

func NewECDSAVerifier() *ECDSAVerifier {
	return &ECDSAVerifier{}
}

func (v *ECDSAVerifier) Verify(digest flow.Identifier, sig []byte, publicKey []byte) error {
	pub, err := btcec.ParsePubKey(publicKey)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidKey, err.Error())
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidFormat, err.Error())
	}
	if !parsed.Verify(digest[:], pub) {
		return ErrInvalidSignature
	}
	return nil
}
