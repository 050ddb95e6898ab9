package consensus

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinels for matching with errors.Is. The typed errors below carry the
// details and match their sentinel.
var (
	ErrInvalidProposer       = errors.New("invalid proposer")
	ErrBlockValidationFailed = errors.New("block validation failed")
	ErrInsufficientVotes     = errors.New("insufficient votes")
	ErrInvalidVoteSignature  = errors.New("invalid vote signature")
	ErrDuplicateVote         = errors.New("duplicate vote")
	ErrWrongBlockVote        = errors.New("vote for wrong block")
	ErrProposalTimeout       = errors.New("proposal timeout")
	ErrInvalidBlockHeight    = errors.New("invalid block height")
	ErrInvalidRound          = errors.New("invalid round")
	ErrConsensus             = errors.New("consensus error")
)

var (
	ErrTooManyProposals = &ConsensusError{"too many concurrent proposals"}
	ErrProposalNotFound = &ConsensusError{"proposal not found"}
	ErrProposalExists   = &ConsensusError{"proposal already submitted"}
	ErrBothThresholds   = &ConsensusError{"support and reject both reached threshold"}
)

type InvalidProposerError struct {
	Index uint64
}

func (e *InvalidProposerError) Error() string {
	return fmt.Sprintf("invalid proposer: %d", e.Index)
}

func (e *InvalidProposerError) Is(target error) bool {
	return target == ErrInvalidProposer
}

type BlockValidationFailedError struct {
	Reason string
}

func (e *BlockValidationFailedError) Error() string {
	return "block validation failed: " + e.Reason
}

func (e *BlockValidationFailedError) Is(target error) bool {
	return target == ErrBlockValidationFailed
}

type InsufficientVotesError struct {
	Got    uint64
	Needed uint64
}

func (e *InsufficientVotesError) Error() string {
	return fmt.Sprintf("insufficient votes: got %d, needed %d", e.Got, e.Needed)
}

func (e *InsufficientVotesError) Is(target error) bool {
	return target == ErrInsufficientVotes
}

type InvalidVoteSignatureError struct {
	Reason string
}

func (e *InvalidVoteSignatureError) Error() string {
	return "invalid vote signature: " + e.Reason
}

func (e *InvalidVoteSignatureError) Is(target error) bool {
	return target == ErrInvalidVoteSignature
}

type DuplicateVoteError struct {
	Index uint64
}

func (e *DuplicateVoteError) Error() string {
	return fmt.Sprintf("duplicate vote from validator %d", e.Index)
}

func (e *DuplicateVoteError) Is(target error) bool {
	return target == ErrDuplicateVote
}

type WrongBlockVoteError struct {
	Expected string
	Got      string
}

func (e *WrongBlockVoteError) Error() string {
	return fmt.Sprintf("vote for wrong block: expected %s, got %s", e.Expected, e.Got)
}

func (e *WrongBlockVoteError) Is(target error) bool {
	return target == ErrWrongBlockVote
}

type ProposalTimeoutError struct {
	Reason string
}

func (e *ProposalTimeoutError) Error() string {
	return "proposal timeout: " + e.Reason
}

func (e *ProposalTimeoutError) Is(target error) bool {
	return target == ErrProposalTimeout
}

type InvalidBlockHeightError struct {
	Expected uint64
	Got      uint64
}

func (e *InvalidBlockHeightError) Error() string {
	return fmt.Sprintf("invalid block height: expected %d, got %d", e.Expected, e.Got)
}

func (e *InvalidBlockHeightError) Is(target error) bool {
	return target == ErrInvalidBlockHeight
}

type InvalidRoundError struct {
	Expected uint64
	Got      uint64
}

func (e *InvalidRoundError) Error() string {
	return fmt.Sprintf("invalid round: expected %d, got %d", e.Expected, e.Got)
}

func (e *InvalidRoundError) Is(target error) bool {
	return target == ErrInvalidRound
}

// ConsensusError covers admission control and lookup failures.
type ConsensusError struct {
	Message string
}

func (e *ConsensusError) Error() string {
	return "consensus error: " + e.Message
}

func (e *ConsensusError) Is(target error) bool {
	return target == ErrConsensus
}
