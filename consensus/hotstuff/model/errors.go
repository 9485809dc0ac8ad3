package model

import (
	"errors"
	"fmt"

	"github.com/ledgerbft/node/model/flow"
)

// ErrInvalidSignature is returned by signature checks of votes, timeouts and
// certificates.
var ErrInvalidSignature = errors.New("invalid signature")

// NoVoteError is returned by the safety rules when the replica must not vote
// for a proposal. It is an expected outcome, not a failure.
type NoVoteError struct {
	Msg string
}

func (e NoVoteError) Error() string { return e.Msg }

func IsNoVoteError(err error) bool {
	var e NoVoteError
	return errors.As(err, &e)
}

// NoTimeoutError is returned by the safety rules when the replica must not
// sign a timeout for the current view.
type NoTimeoutError struct {
	Msg string
}

func (e NoTimeoutError) Error() string { return e.Msg }

func IsNoTimeoutError(err error) bool {
	var e NoTimeoutError
	return errors.As(err, &e)
}

// ConfigurationError reports inconsistent constructor parameters.
type ConfigurationError struct {
	err error
}

func NewConfigurationErrorf(msg string, args ...interface{}) error {
	return ConfigurationError{fmt.Errorf(msg, args...)}
}

func (e ConfigurationError) Error() string { return e.err.Error() }
func (e ConfigurationError) Unwrap() error { return e.err }

func IsConfigurationError(err error) bool {
	var e ConfigurationError
	return errors.As(err, &e)
}

// MissingParentError indicates that the parent of an inserted vertex is not
// held by the vertex store. It is expected for a lagging node and triggers
// vertex-level synchronization.
type MissingParentError struct {
	VertexID   flow.Identifier
	ParentID   flow.Identifier
	ParentView uint64
}

func (e MissingParentError) Error() string {
	return fmt.Sprintf("missing parent %x (view %d) of vertex %x", e.ParentID, e.ParentView, e.VertexID)
}

func IsMissingParentError(err error) bool {
	var e MissingParentError
	return errors.As(err, &e)
}

// AsMissingParentError determines whether the given error is a MissingParentError
// (potentially wrapped). It follows the same semantics as a checked type cast.
func AsMissingParentError(err error) (*MissingParentError, bool) {
	var e MissingParentError
	ok := errors.As(err, &e)
	if ok {
		return &e, true
	}
	return nil, false
}

// InvalidVertexError marks a proposal violating the protocol rules. The
// proposer is byzantine.
type InvalidVertexError struct {
	VertexID flow.Identifier
	View     uint64
	Err      error
}

func NewInvalidVertexErrorf(vertex *flow.Vertex, msg string, args ...interface{}) error {
	return InvalidVertexError{
		VertexID: vertex.ID(),
		View:     vertex.View,
		Err:      fmt.Errorf(msg, args...),
	}
}

func (e InvalidVertexError) Error() string {
	return fmt.Sprintf("invalid vertex %x at view %d: %s", e.VertexID, e.View, e.Err.Error())
}

func (e InvalidVertexError) Unwrap() error { return e.Err }

func IsInvalidVertexError(err error) bool {
	var e InvalidVertexError
	return errors.As(err, &e)
}

// InvalidVoteError marks a vote with a bad signature, a signer outside the
// validator set or an inconsistent view.
type InvalidVoteError struct {
	SignerID flow.Identifier
	View     uint64
	Err      error
}

func NewInvalidVoteErrorf(signerID flow.Identifier, view uint64, msg string, args ...interface{}) error {
	return InvalidVoteError{
		SignerID: signerID,
		View:     view,
		Err:      fmt.Errorf(msg, args...),
	}
}

func (e InvalidVoteError) Error() string {
	return fmt.Sprintf("invalid vote by %x at view %d: %s", e.SignerID, e.View, e.Err.Error())
}

func (e InvalidVoteError) Unwrap() error { return e.Err }

func IsInvalidVoteError(err error) bool {
	var e InvalidVoteError
	return errors.As(err, &e)
}

// InvalidQCError marks a QC without a quorum of valid signatures.
type InvalidQCError struct {
	VertexID flow.Identifier
	View     uint64
	Err      error
}

func NewInvalidQCErrorf(qc *flow.QuorumCertificate, msg string, args ...interface{}) error {
	return InvalidQCError{
		VertexID: qc.VertexID(),
		View:     qc.View(),
		Err:      fmt.Errorf(msg, args...),
	}
}

func (e InvalidQCError) Error() string {
	return fmt.Sprintf("invalid QC for vertex %x at view %d: %s", e.VertexID, e.View, e.Err.Error())
}

func (e InvalidQCError) Unwrap() error { return e.Err }

func IsInvalidQCError(err error) bool {
	var e InvalidQCError
	return errors.As(err, &e)
}

// InvalidTCError marks a TC without a quorum of valid timeouts or with a
// high QC that does not match the signed views.
type InvalidTCError struct {
	View uint64
	Err  error
}

func NewInvalidTCErrorf(tc *flow.TimeoutCertificate, msg string, args ...interface{}) error {
	return InvalidTCError{
		View: tc.View,
		Err:  fmt.Errorf(msg, args...),
	}
}

func (e InvalidTCError) Error() string {
	return fmt.Sprintf("invalid TC at view %d: %s", e.View, e.Err.Error())
}

func (e InvalidTCError) Unwrap() error { return e.Err }

func IsInvalidTCError(err error) bool {
	var e InvalidTCError
	return errors.As(err, &e)
}

// ByzantineThresholdExceededError is evidence that replicas holding at least a
// third of the weight are faulty, for example two QCs for conflicting vertices
// of one view. Safety can no longer be guaranteed.
type ByzantineThresholdExceededError struct {
	Evidence string
}

func (e ByzantineThresholdExceededError) Error() string {
	return e.Evidence
}

func IsByzantineThresholdExceededError(err error) bool {
	var e ByzantineThresholdExceededError
	return errors.As(err, &e)
}

// DoubleVoteError is evidence of a replica voting twice in one view for
// different vote data.
type DoubleVoteError struct {
	FirstVoteData       flow.Identifier
	ConflictingVoteData flow.Identifier
	SignerID            flow.Identifier
	err                 error
}

func (e DoubleVoteError) Error() string {
	return e.err.Error()
}

func (e DoubleVoteError) Unwrap() error {
	return e.err
}

func IsDoubleVoteError(err error) bool {
	var e DoubleVoteError
	return errors.As(err, &e)
}

func NewDoubleVoteErrorf(signerID, first, conflicting flow.Identifier, msg string, args ...interface{}) error {
	return DoubleVoteError{
		FirstVoteData:       first,
		ConflictingVoteData: conflicting,
		SignerID:            signerID,
		err:                 fmt.Errorf(msg, args...),
	}
}

// DuplicatedSignerError marks a certificate listing a signer twice.
type DuplicatedSignerError struct {
	err error
}

func NewDuplicatedSignerErrorf(msg string, args ...interface{}) error {
	return DuplicatedSignerError{err: fmt.Errorf(msg, args...)}
}

func (e DuplicatedSignerError) Error() string { return e.err.Error() }
func (e DuplicatedSignerError) Unwrap() error { return e.err }

func IsDuplicatedSignerError(err error) bool {
	var e DuplicatedSignerError
	return errors.As(err, &e)
}

// InsufficientSignaturesError marks a certificate whose signers do not reach
// the quorum weight.
type InsufficientSignaturesError struct {
	err error
}

func NewInsufficientSignaturesErrorf(msg string, args ...interface{}) error {
	return InsufficientSignaturesError{err: fmt.Errorf(msg, args...)}
}

func (e InsufficientSignaturesError) Error() string { return e.err.Error() }
func (e InsufficientSignaturesError) Unwrap() error { return e.err }

func IsInsufficientSignaturesError(err error) bool {
	var e InsufficientSignaturesError
	return errors.As(err, &e)
}

// InvalidSignerError marks a signer outside the validator set.
type InvalidSignerError struct {
	err error
}

func NewInvalidSignerErrorf(msg string, args ...interface{}) error {
	return InvalidSignerError{err: fmt.Errorf(msg, args...)}
}

func (e InvalidSignerError) Error() string { return e.err.Error() }
func (e InvalidSignerError) Unwrap() error { return e.err }

func IsInvalidSignerError(err error) bool {
	var e InvalidSignerError
	return errors.As(err, &e)
}
