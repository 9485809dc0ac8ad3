package flow

import "fmt"

// LedgerHeader describes a committed ledger state. Height counts the
// commands applied since genesis and Accumulator is the hash chain over them.
type LedgerHeader struct {
	Epoch       uint64
	View        uint64
	Height      uint64
	Accumulator Identifier
	// NextValidators is set on a header that ends its epoch and names the
	// validator set of the following epoch.
	NextValidators *ValidatorSet
}

// ID returns the identifier of the header.
func (h *LedgerHeader) ID() Identifier {
	return MakeID(h)
}

// IsEndOfEpoch returns whether the header ends its epoch.
func (h *LedgerHeader) IsEndOfEpoch() bool {
	return h.NextValidators != nil
}

// Compare orders headers by (epoch, height, view). It returns -1, 0 or 1.
func (h *LedgerHeader) Compare(other *LedgerHeader) int {
	switch {
	case h.Epoch != other.Epoch:
		return compareUint64(h.Epoch, other.Epoch)
	case h.Height != other.Height:
		return compareUint64(h.Height, other.Height)
	default:
		return compareUint64(h.View, other.View)
	}
}

// IsNewerThan returns whether h is strictly ahead of other.
func (h *LedgerHeader) IsNewerThan(other *LedgerHeader) bool {
	return h.Compare(other) > 0
}

func (h *LedgerHeader) String() string {
	return fmt.Sprintf("LedgerHeader{epoch=%d view=%d height=%d acc=%s end=%t}",
		h.Epoch, h.View, h.Height, h.Accumulator.TerminalString(), h.IsEndOfEpoch())
}

// NextEpochGenesis returns the ledger header the next epoch starts from. It
// only depends on the ledger state, so every node derives the same genesis
// regardless of which proof carried the epoch change.
func (h *LedgerHeader) NextEpochGenesis() *LedgerHeader {
	return &LedgerHeader{
		Epoch:       h.Epoch + 1,
		View:        0,
		Height:      h.Height,
		Accumulator: h.Accumulator,
	}
}

func compareUint64(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// LedgerProof certifies a ledger header with the signatures of the QC that
// committed it. Opaque is the core digest of the vote data those signatures
// were produced over.
type LedgerProof struct {
	Opaque     Identifier
	Header     LedgerHeader
	Signatures TimestampedSignatures
}

// ID returns the identifier of the proof.
func (p *LedgerProof) ID() Identifier {
	return MakeID(p)
}

// Digest returns the digest the signature of the given timestamp was produced over.
func (p *LedgerProof) Digest(timestamp uint64) Identifier {
	return VoteDigest(p.Opaque, &p.Header, timestamp)
}

// CommandsAndProof bundles committed commands with the proof of the ledger
// header reached after applying them.
type CommandsAndProof struct {
	Commands []Command
	Proof    *LedgerProof
}

// EpochChange announces the validator set of a new epoch, effective from the
// ledger header carried in Proof.
type EpochChange struct {
	Epoch      uint64
	Validators *ValidatorSet
	Proof      *LedgerProof
}

// Genesis returns the ledger header the new epoch starts from.
func (e *EpochChange) Genesis() *LedgerHeader {
	return e.Proof.Header.NextEpochGenesis()
}

// NewEpochChange derives the epoch change from an epoch-ending proof.
func NewEpochChange(proof *LedgerProof) (*EpochChange, error) {
	if !proof.Header.IsEndOfEpoch() {
		return nil, fmt.Errorf("ledger header %v does not end an epoch", proof.Header.String())
	}
	return &EpochChange{
		Epoch:      proof.Header.Epoch + 1,
		Validators: proof.Header.NextValidators,
		Proof:      proof,
	}, nil
}

// LedgerUpdate is emitted each time the committed ledger state advances.
type LedgerUpdate struct {
	Commands    []Command
	Proof       *LedgerProof
	EpochChange *EpochChange // set if Proof ends an epoch
}

// Header returns the ledger header reached by the update.
func (u *LedgerUpdate) Header() *LedgerHeader {
	return &u.Proof.Header
}
