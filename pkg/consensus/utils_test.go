package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tcfw/meshbft/pkg/block"
	"github.com/tcfw/meshbft/pkg/consensus/mocks"
	"github.com/tcfw/meshbft/pkg/cryptography"
	"github.com/tcfw/meshbft/pkg/leader"
	"github.com/tcfw/meshbft/pkg/validator"
)

var baseTime = time.UnixMilli(1_700_000_000_000)

type testValidator struct {
	info *validator.Info
	bls  *cryptography.Bls12381PrivateKey
	vrf  *cryptography.VrfPrivateKey
}

func newTestValidators(t *testing.T, stakes ...uint64) ([]*testValidator, *validator.Set) {
	vals := make([]*testValidator, 0, len(stakes))
	infos := make([]*validator.Info, 0, len(stakes))

	for i, s := range stakes {
		tv := &testValidator{
			bls: cryptography.NewBls12381PrivateKey(),
			vrf: cryptography.NewVrfPrivateKey(),
		}
		tv.info = &validator.Info{
			Index:  uint64(i),
			Stake:  s,
			BlsKey: tv.bls.PublicKey(),
			VrfKey: tv.vrf.Public(),
		}

		vals = append(vals, tv)
		infos = append(infos, tv.info)
	}

	set, err := validator.New(0, infos...)
	require.NoError(t, err)

	return vals, set
}

func acceptingVerifier(t *testing.T) *mocks.LeaderVerifier {
	lv := mocks.NewLeaderVerifier(t)
	lv.On("VerifyLeaderSelection", mock.Anything).Maybe().Return(true, nil)
	return lv
}

func newTestManager(t *testing.T, set *validator.Set, opts ...Option) *Manager {
	m, err := NewManager(set, acceptingVerifier(t), DefaultConfig(), opts...)
	require.NoError(t, err)
	return m
}

func testRoundInfo(height, round uint64) block.RoundInfo {
	return block.RoundInfo{Height: height, Round: round, Timestamp: baseTime}
}

func testHeader(height, round uint64, txs *block.TxTree) *block.Header {
	h := &block.Header{
		Version:   block.Version1,
		Height:    height,
		Round:     round,
		Parent:    block.DomainHash(block.DomainHeader, []byte("parent")),
		CreatedAt: baseTime.Add(time.Duration(height) * 2 * time.Second).UnixMilli(),
	}
	if txs != nil {
		h.TxRoot = txs.Root()
	}
	return h
}

func newTestProposal(t *testing.T, proposer *testValidator, height, round uint64) *BlockProposal {
	txs, err := block.NewTxTree([][]byte{[]byte("tx1"), []byte("tx2")})
	require.NoError(t, err)

	ri := testRoundInfo(height, round)
	proof := &leader.Proof{LeaderIndex: proposer.info.Index, RoundInfo: ri}

	p, err := NewBlockProposal(testHeader(height, round, txs), proof, proposer.bls, txs, ri)
	require.NoError(t, err)

	return p
}

func newTestVote(t *testing.T, voter *testValidator, p *BlockProposal, vt VoteType) *BlockVote {
	h, err := p.BlockHash()
	require.NoError(t, err)

	v, err := NewBlockVote(h, voter.info.Index, vt, p.RoundInfo, voter.bls)
	require.NoError(t, err)

	return v
}

func mustHash(t *testing.T, p *BlockProposal) block.Hash {
	h, err := p.BlockHash()
	require.NoError(t, err)
	return h
}
