package consensus

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/tcfw/meshbft/pkg/block"
	"github.com/tcfw/meshbft/pkg/cryptography"
	"github.com/tcfw/meshbft/pkg/validator"
)

type VoteType uint8

const (
	VoteSupport VoteType = iota + 1
	VoteReject
	VoteAbstain
)

func (v VoteType) String() string {
	switch v {
	case VoteSupport:
		return "support"
	case VoteReject:
		return "reject"
	case VoteAbstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// BlockVote is one validator's signed stance on a proposal.
type BlockVote struct {
	BlockHash      block.Hash      `msgpack:"b"`
	ValidatorIndex uint64          `msgpack:"i"`
	VoteType       VoteType        `msgpack:"t"`
	Signature      []byte          `msgpack:"s"`
	RoundInfo      block.RoundInfo `msgpack:"ri"`
	VotedAt        time.Time       `msgpack:"at"`
}

// voteMessage is block_hash || index(LE) || type || height(LE) || round(LE).
func voteMessage(hash block.Hash, index uint64, vt VoteType, height, round uint64) []byte {
	b := make([]byte, 0, block.HashSize+8+1+8+8)
	b = append(b, hash[:]...)
	b = binary.LittleEndian.AppendUint64(b, index)
	b = append(b, byte(vt))
	b = binary.LittleEndian.AppendUint64(b, height)
	b = binary.LittleEndian.AppendUint64(b, round)
	return b
}

func NewBlockVote(hash block.Hash, index uint64, vt VoteType, ri block.RoundInfo, key cryptography.Signer) (*BlockVote, error) {
	v := &BlockVote{
		BlockHash:      hash,
		ValidatorIndex: index,
		VoteType:       vt,
		RoundInfo:      ri,
		VotedAt:        time.Now(),
	}

	sh := v.SigningHash()
	sig, err := key.SignHash(sh.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "signing vote")
	}
	v.Signature = sig

	return v, nil
}

// SigningHash is the domain separated hash the vote signature covers.
func (v *BlockVote) SigningHash() block.Hash {
	msg := voteMessage(v.BlockHash, v.ValidatorIndex, v.VoteType, v.RoundInfo.Height, v.RoundInfo.Round)
	return block.DomainHash(block.DomainBlsMessage, msg)
}

func (v *BlockVote) Verify(info *validator.Info) bool {
	if info == nil || info.BlsKey == nil || info.Index != v.ValidatorIndex {
		return false
	}

	sh := v.SigningHash()
	return info.BlsKey.VerifyHash(sh.Bytes(), v.Signature)
}
