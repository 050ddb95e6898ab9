package consensus

import (
	"fmt"
	"time"

	"github.com/tcfw/meshbft/pkg/block"
)

// VotingResult is an immutable snapshot of a completed vote. Tally and
// Votes are as they stood at the decision; LateVotes arrived afterwards.
type VotingResult struct {
	BlockHash        block.Hash      `msgpack:"b"`
	Votes            []*BlockVote    `msgpack:"v"`
	LateVotes        []*BlockVote    `msgpack:"lv"`
	Tally            VoteTally       `msgpack:"t"`
	ThresholdStake   uint64          `msgpack:"th"`
	ConsensusReached bool            `msgpack:"c"`
	Decision         Decision        `msgpack:"d"`
	RoundInfo        block.RoundInfo `msgpack:"ri"`
	StartedAt        time.Time       `msgpack:"sa"`
	DecidedAt        time.Time       `msgpack:"da"`

	TxRoot  block.Hash `msgpack:"tr"`
	TxBloom []byte     `msgpack:"tb"`
}

// MayContainTx checks the block's tx bloom. False is definite, true may be
// a false positive.
func (r *VotingResult) MayContainTx(tx []byte) (bool, error) {
	if len(r.TxBloom) == 0 {
		return false, nil
	}

	return block.BloomContains(r.TxBloom, tx)
}

// RequireDecision returns an error unless either stake threshold was met.
func (r *VotingResult) RequireDecision() error {
	if r.ConsensusReached {
		return nil
	}

	got := r.Tally.SupportStake
	if r.Tally.RejectStake > got {
		got = r.Tally.RejectStake
	}

	return &InsufficientVotesError{Got: got, Needed: r.ThresholdStake}
}

// Err describes why the block was not accepted, or nil when it was.
func (r *VotingResult) Err() error {
	switch r.Decision {
	case DecisionAccept:
		return nil
	case DecisionReject:
		return &ConsensusError{fmt.Sprintf("block rejected with %d stake", r.Tally.RejectStake)}
	case DecisionNoConsensus:
		return &ProposalTimeoutError{fmt.Sprintf("no threshold reached after %s", r.DecidedAt.Sub(r.StartedAt))}
	default:
		return &ConsensusError{"unknown decision " + r.Decision.String()}
	}
}

// Stats is a read only view of the manager.
type Stats struct {
	ActiveProposals int
	TotalVotes      int
	CompletedVoting int
	ValidatorCount  int
	TotalStake      uint64
	ActiveStake     uint64
}
