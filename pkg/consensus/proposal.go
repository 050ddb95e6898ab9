package consensus

import (
	"time"

	"github.com/pkg/errors"
	"github.com/tcfw/meshbft/pkg/block"
	"github.com/tcfw/meshbft/pkg/cryptography"
	"github.com/tcfw/meshbft/pkg/leader"
	"github.com/tcfw/meshbft/pkg/validator"
)

// LeaderVerifier checks leader eligibility claims. An error means the claim
// could not be judged; false means it was judged invalid.
type LeaderVerifier interface {
	VerifyLeaderSelection(proof *leader.Proof) (bool, error)
}

// BlockProposal is a candidate block from the round leader.
type BlockProposal struct {
	Header            *block.Header   `msgpack:"h"`
	LeaderProof       *leader.Proof   `msgpack:"lp"`
	ProposerSignature []byte          `msgpack:"s"`
	TxTree            *block.TxTree   `msgpack:"tx,omitempty"`
	RoundInfo         block.RoundInfo `msgpack:"ri"`
	ProposedAt        time.Time       `msgpack:"at"`
}

// NewBlockProposal signs the header hash with the proposer key.
func NewBlockProposal(header *block.Header, proof *leader.Proof, key cryptography.Signer, txs *block.TxTree, ri block.RoundInfo) (*BlockProposal, error) {
	h, err := header.Hash()
	if err != nil {
		return nil, errors.Wrap(err, "hashing header")
	}

	sig, err := key.SignHash(h.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "signing header")
	}

	return &BlockProposal{
		Header:            header,
		LeaderProof:       proof,
		ProposerSignature: sig,
		TxTree:            txs,
		RoundInfo:         ri,
		ProposedAt:        time.Now(),
	}, nil
}

func (p *BlockProposal) BlockHash() (block.Hash, error) {
	if p.Header == nil {
		return block.ZeroHash, &BlockValidationFailedError{"missing header"}
	}

	return p.Header.Hash()
}

// Verify checks the leader proof, the proposer signature and that the header
// belongs to the round it claims. Content failures return false; an
// unresolvable proposer or a height/round mismatch is an error.
func (p *BlockProposal) Verify(set *validator.Set, leaders LeaderVerifier) (bool, error) {
	if p.Header == nil || p.LeaderProof == nil {
		return false, &BlockValidationFailedError{"missing header or leader proof"}
	}

	index := p.LeaderProof.LeaderIndex

	ok, err := leaders.VerifyLeaderSelection(p.LeaderProof)
	if err != nil {
		if _, found := set.Get(index); !found {
			return false, &InvalidProposerError{index}
		}
		return false, errors.Wrap(err, "verifying leader selection")
	}
	if !ok {
		return false, nil
	}

	proposer, found := set.Get(index)
	if !found {
		return false, &InvalidProposerError{index}
	}

	h, err := p.Header.Hash()
	if err != nil {
		return false, errors.Wrap(err, "hashing header")
	}

	if !proposer.BlsKey.VerifyHash(h.Bytes(), p.ProposerSignature) {
		return false, nil
	}

	if p.Header.Height != p.RoundInfo.Height {
		return false, &InvalidBlockHeightError{Expected: p.RoundInfo.Height, Got: p.Header.Height}
	}

	if p.Header.Round != p.RoundInfo.Round {
		return false, &InvalidRoundError{Expected: p.RoundInfo.Round, Got: p.Header.Round}
	}

	return true, nil
}

// validateBlock checks the block body against the header and the limits in
// cfg. It does not look at signatures.
func (p *BlockProposal) validateBlock(cfg Config, lastAccepted time.Time) error {
	if err := p.Header.Validate(); err != nil {
		return &BlockValidationFailedError{err.Error()}
	}

	lri := p.LeaderProof.RoundInfo
	if lri.Height != p.RoundInfo.Height || lri.Round != p.RoundInfo.Round {
		return &BlockValidationFailedError{"leader proof is for a different round"}
	}

	txRoot := block.ZeroHash
	size := 0
	if p.TxTree != nil {
		txRoot = p.TxTree.Root()
		size = p.TxTree.Size()

		if p.TxTree.Len() > block.MaxBlockTxCount {
			return &BlockValidationFailedError{block.ErrTooManyTx.Error()}
		}
	}

	if txRoot != p.Header.TxRoot {
		return &BlockValidationFailedError{"tx root mismatch"}
	}

	if size > cfg.MaxBlockSize {
		return &BlockValidationFailedError{"block exceeds max size"}
	}

	if !lastAccepted.IsZero() && p.Header.Time().Before(lastAccepted.Add(cfg.MinBlockTime)) {
		return &BlockValidationFailedError{"block created before min block time"}
	}

	return nil
}
