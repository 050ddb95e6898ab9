package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tcfw/meshbft/pkg/block"
	"github.com/tcfw/meshbft/pkg/consensus/mocks"
	"github.com/tcfw/meshbft/pkg/leader"
	"github.com/tcfw/meshbft/pkg/validator"
)

func TestAcceptAfterThirdSupport(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500, 2000, 2500)
	m := newTestManager(t, set)

	p := newTestProposal(t, vals[0], 1, 0)
	if err := m.SubmitProposal(p); err != nil {
		t.Fatal(err)
	}
	h := mustHash(t, p)

	require.NoError(t, m.CastVote(newTestVote(t, vals[3], p, VoteSupport)))
	require.NoError(t, m.CastVote(newTestVote(t, vals[2], p, VoteSupport)))

	_, ok := m.VotingResult(h)
	assert.False(t, ok, "4500 < 4690 should still be open")

	require.NoError(t, m.CastVote(newTestVote(t, vals[1], p, VoteSupport)))

	r, ok := m.VotingResult(h)
	require.True(t, ok)
	assert.Equal(t, DecisionAccept, r.Decision)
	assert.True(t, r.ConsensusReached)
	assert.Equal(t, uint64(6000), r.Tally.SupportStake)
	assert.Equal(t, uint64(7000), r.Tally.TotalStake)
	assert.Equal(t, uint64(4690), r.ThresholdStake)
	assert.Len(t, r.Votes, 3)
	assert.NoError(t, r.RequireDecision())

	assert.Equal(t, p.Header.TxRoot, r.TxRoot)
	in, err := r.MayContainTx([]byte("tx1"))
	require.NoError(t, err)
	assert.True(t, in)

	//a late reject is recorded apart and the tally stays as decided
	require.NoError(t, m.CastVote(newTestVote(t, vals[0], p, VoteReject)))
	assert.ErrorIs(t, m.CastVote(newTestVote(t, vals[0], p, VoteSupport)), ErrDuplicateVote)

	r, ok = m.VotingResult(h)
	require.True(t, ok)
	assert.Equal(t, DecisionAccept, r.Decision)
	assert.Len(t, r.Votes, 3)
	require.Len(t, r.LateVotes, 1)
	assert.Equal(t, uint64(0), r.LateVotes[0].ValidatorIndex)
	assert.Equal(t, uint64(0), r.Tally.RejectStake)
	assert.Equal(t, uint64(6000), r.Tally.SupportStake)

	st := m.Stats()
	assert.Equal(t, Stats{
		ActiveProposals: 1,
		TotalVotes:      4,
		CompletedVoting: 1,
		ValidatorCount:  4,
		TotalStake:      7000,
		ActiveStake:     7000,
	}, st)
}

func TestRejectDecision(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500, 2000, 2500)
	m := newTestManager(t, set)

	p := newTestProposal(t, vals[0], 1, 0)
	require.NoError(t, m.SubmitProposal(p))

	for _, i := range []int{3, 2, 0} {
		require.NoError(t, m.CastVote(newTestVote(t, vals[i], p, VoteReject)))
	}

	r, ok := m.VotingResult(mustHash(t, p))
	require.True(t, ok)
	assert.Equal(t, DecisionReject, r.Decision)
	assert.True(t, r.ConsensusReached)
	assert.NoError(t, r.RequireDecision())
	assert.ErrorIs(t, r.Err(), ErrConsensus)
}

func TestAbstainNeverDecides(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500, 2000, 2500)
	m := newTestManager(t, set)

	p := newTestProposal(t, vals[0], 1, 0)
	require.NoError(t, m.SubmitProposal(p))

	for _, v := range vals {
		require.NoError(t, m.CastVote(newTestVote(t, v, p, VoteAbstain)))
	}

	_, ok := m.VotingResult(mustHash(t, p))
	assert.False(t, ok)
}

func TestDuplicateVote(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500, 2000, 2500)
	m := newTestManager(t, set)

	p := newTestProposal(t, vals[0], 1, 0)
	require.NoError(t, m.SubmitProposal(p))

	v := newTestVote(t, vals[2], p, VoteSupport)
	require.NoError(t, m.CastVote(v))

	err := m.CastVote(v)
	assert.ErrorIs(t, err, ErrDuplicateVote)

	var dup *DuplicateVoteError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, uint64(2), dup.Index)

	//changing stance is also a duplicate
	assert.ErrorIs(t, m.CastVote(newTestVote(t, vals[2], p, VoteReject)), ErrDuplicateVote)

	assert.Equal(t, 1, m.Stats().TotalVotes)

	require.NoError(t, m.CastVote(newTestVote(t, vals[3], p, VoteSupport)))
	_, ok := m.VotingResult(mustHash(t, p))
	assert.False(t, ok, "duplicate stake must not have been counted")
}

func TestTimeoutLiveness(t *testing.T) {
	mc := clock.NewMock()

	vals, set := newTestValidators(t, 1000, 1500, 2000, 2500)
	m := newTestManager(t, set, WithClock(mc))

	p := newTestProposal(t, vals[0], 1, 0)
	require.NoError(t, m.SubmitProposal(p))
	require.NoError(t, m.CastVote(newTestVote(t, vals[0], p, VoteSupport)))

	mc.Add(DefaultVotingTimeout - time.Millisecond)

	done, err := m.Tick()
	require.NoError(t, err)
	assert.Empty(t, done)

	_, ok := m.VotingResult(mustHash(t, p))
	assert.False(t, ok)

	mc.Add(time.Millisecond)

	done, err = m.Tick()
	require.NoError(t, err)
	assert.Equal(t, []block.Hash{mustHash(t, p)}, done)

	r, ok := m.VotingResult(mustHash(t, p))
	require.True(t, ok)
	assert.Equal(t, DecisionNoConsensus, r.Decision)
	assert.False(t, r.ConsensusReached)

	err = r.RequireDecision()
	assert.ErrorIs(t, err, ErrInsufficientVotes)

	var iv *InsufficientVotesError
	require.True(t, errors.As(err, &iv))
	assert.Equal(t, uint64(1000), iv.Got)
	assert.Equal(t, uint64(4690), iv.Needed)

	assert.ErrorIs(t, r.Err(), ErrProposalTimeout)
}

func TestTimeoutDetectedOnVote(t *testing.T) {
	mc := clock.NewMock()

	vals, set := newTestValidators(t, 1000, 1500, 2000, 2500)
	m := newTestManager(t, set, WithClock(mc))

	p := newTestProposal(t, vals[0], 1, 0)
	require.NoError(t, m.SubmitProposal(p))

	mc.Add(DefaultVotingTimeout)
	require.NoError(t, m.CastVote(newTestVote(t, vals[0], p, VoteSupport)))

	r, ok := m.VotingResult(mustHash(t, p))
	require.True(t, ok)
	assert.Equal(t, DecisionNoConsensus, r.Decision)
}

func TestAdmissionBound(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500, 2000, 2500)
	m := newTestManager(t, set)

	for r := uint64(0); r < DefaultMaxConcurrentProposals; r++ {
		require.NoError(t, m.SubmitProposal(newTestProposal(t, vals[0], 1, r)))
	}

	extra := newTestProposal(t, vals[0], 1, DefaultMaxConcurrentProposals)
	err := m.SubmitProposal(extra)
	assert.ErrorIs(t, err, ErrTooManyProposals)
	assert.ErrorIs(t, err, ErrConsensus)

	res, err := m.CleanupCompletedProposals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res)

	active := m.ActiveProposals()
	require.Len(t, active, DefaultMaxConcurrentProposals)
	for i, p := range active {
		assert.Equal(t, uint64(i), p.RoundInfo.Round)
	}

	//reject round 0 and harvest it to make room
	for _, i := range []int{3, 2, 1} {
		require.NoError(t, m.CastVote(newTestVote(t, vals[i], active[0], VoteReject)))
	}

	res, err = m.CleanupCompletedProposals(context.Background())
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, mustHash(t, active[0]), res[0].BlockHash)

	_, ok := m.VotingResult(res[0].BlockHash)
	assert.False(t, ok, "harvested results leave the manager")

	require.NoError(t, m.SubmitProposal(extra))
}

func TestDuplicateProposal(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500)
	m := newTestManager(t, set)

	p := newTestProposal(t, vals[0], 1, 0)
	require.NoError(t, m.SubmitProposal(p))

	err := m.SubmitProposal(p)
	assert.ErrorIs(t, err, ErrProposalExists)
	assert.Equal(t, 1, m.Stats().ActiveProposals)
}

func TestVoteForUnknownProposal(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500, 2000, 2500)
	m := newTestManager(t, set)

	p := newTestProposal(t, vals[0], 1, 0)
	other := newTestProposal(t, vals[0], 1, 1)
	require.NoError(t, m.SubmitProposal(p))

	err := m.CastVote(newTestVote(t, vals[1], other, VoteSupport))
	assert.ErrorIs(t, err, ErrProposalNotFound)
	assert.ErrorIs(t, err, ErrConsensus)

	assert.Zero(t, m.Stats().TotalVotes)
}

func TestVoteWrongRound(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500)
	m := newTestManager(t, set)

	p := newTestProposal(t, vals[0], 1, 0)
	require.NoError(t, m.SubmitProposal(p))

	v, err := NewBlockVote(mustHash(t, p), 1, VoteSupport, testRoundInfo(1, 4), vals[1].bls)
	require.NoError(t, err)

	assert.ErrorIs(t, m.CastVote(v), ErrWrongBlockVote)
	assert.Zero(t, m.Stats().TotalVotes)
}

func TestVoteSignatureRejected(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500)
	m := newTestManager(t, set)

	p := newTestProposal(t, vals[0], 1, 0)
	require.NoError(t, m.SubmitProposal(p))

	//signed by validator 0 but claims to be validator 1
	v, err := NewBlockVote(mustHash(t, p), 1, VoteSupport, p.RoundInfo, vals[0].bls)
	require.NoError(t, err)
	assert.ErrorIs(t, m.CastVote(v), ErrInvalidVoteSignature)

	tampered := newTestVote(t, vals[1], p, VoteReject)
	tampered.VoteType = VoteSupport
	assert.ErrorIs(t, m.CastVote(tampered), ErrInvalidVoteSignature)

	unknown, err := NewBlockVote(mustHash(t, p), 7, VoteSupport, p.RoundInfo, vals[0].bls)
	require.NoError(t, err)
	assert.ErrorIs(t, m.CastVote(unknown), ErrInvalidProposer)

	assert.Zero(t, m.Stats().TotalVotes)
}

func TestUnknownVoteTypeNotApplied(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500)
	m := newTestManager(t, set)

	p := newTestProposal(t, vals[0], 1, 0)
	require.NoError(t, m.SubmitProposal(p))

	v := newTestVote(t, vals[1], p, VoteType(9))
	assert.ErrorIs(t, m.CastVote(v), ErrConsensus)

	//the validator may still vote properly
	require.NoError(t, m.CastVote(newTestVote(t, vals[1], p, VoteSupport)))
}

func TestSubmitRejectsInvalidLeader(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500)

	lv := mocks.NewLeaderVerifier(t)
	lv.On("VerifyLeaderSelection", mock.Anything).Return(false, nil).Once()

	m, err := NewManager(set, lv, DefaultConfig())
	require.NoError(t, err)

	err = m.SubmitProposal(newTestProposal(t, vals[0], 1, 0))
	assert.ErrorIs(t, err, ErrBlockValidationFailed)
	assert.Zero(t, m.Stats().ActiveProposals)
}

func TestSubmitUnknownProposer(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500)

	lv := mocks.NewLeaderVerifier(t)
	lv.On("VerifyLeaderSelection", mock.Anything).Return(false, leader.ErrValidatorNotFound).Once()

	m, err := NewManager(set, lv, DefaultConfig())
	require.NoError(t, err)

	p := newTestProposal(t, vals[0], 1, 0)
	p.LeaderProof.LeaderIndex = 42

	err = m.SubmitProposal(p)
	assert.ErrorIs(t, err, ErrInvalidProposer)

	var ip *InvalidProposerError
	require.True(t, errors.As(err, &ip))
	assert.Equal(t, uint64(42), ip.Index)
}

func TestSubmitBlockChecks(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500)

	t.Run("tx root mismatch", func(t *testing.T) {
		m := newTestManager(t, set)

		txs, err := block.NewTxTree([][]byte{[]byte("a")})
		require.NoError(t, err)

		ri := testRoundInfo(1, 0)
		h := testHeader(1, 0, nil)
		p, err := NewBlockProposal(h, &leader.Proof{RoundInfo: ri}, vals[0].bls, txs, ri)
		require.NoError(t, err)

		assert.ErrorIs(t, m.SubmitProposal(p), ErrBlockValidationFailed)
	})

	t.Run("max block size", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxBlockSize = 4

		m, err := NewManager(set, acceptingVerifier(t), cfg)
		require.NoError(t, err)

		assert.ErrorIs(t, m.SubmitProposal(newTestProposal(t, vals[0], 1, 0)), ErrBlockValidationFailed)
	})

	t.Run("min block time", func(t *testing.T) {
		p := newTestProposal(t, vals[0], 1, 0)

		m := newTestManager(t, set, WithParentTime(p.Header.Time().Add(-500*time.Millisecond)))
		assert.ErrorIs(t, m.SubmitProposal(p), ErrBlockValidationFailed)

		m = newTestManager(t, set, WithParentTime(p.Header.Time().Add(-time.Second)))
		assert.NoError(t, m.SubmitProposal(p))
	})

	t.Run("leader proof round", func(t *testing.T) {
		m := newTestManager(t, set)

		p := newTestProposal(t, vals[0], 1, 0)
		p.LeaderProof.RoundInfo.Round = 3

		assert.ErrorIs(t, m.SubmitProposal(p), ErrBlockValidationFailed)
	})
}

func TestMinBlockTimeFollowsAccepted(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500, 2000, 2500)
	m := newTestManager(t, set)

	p := newTestProposal(t, vals[0], 2, 0)
	require.NoError(t, m.SubmitProposal(p))
	for _, i := range []int{3, 2, 1} {
		require.NoError(t, m.CastVote(newTestVote(t, vals[i], p, VoteSupport)))
	}

	//created before the accepted block
	assert.ErrorIs(t, m.SubmitProposal(newTestProposal(t, vals[0], 1, 0)), ErrBlockValidationFailed)
	assert.NoError(t, m.SubmitProposal(newTestProposal(t, vals[0], 3, 0)))
}

func TestUpdateValidatorSetKeepsSnapshot(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500, 2000, 2500)
	m := newTestManager(t, set)

	p := newTestProposal(t, vals[0], 1, 0)
	require.NoError(t, m.SubmitProposal(p))

	updated := make([]*validator.Info, 0, len(vals))
	for _, v := range vals {
		c := *v.info
		if c.Index == 0 {
			c.Stake = 100000
		}
		updated = append(updated, &c)
	}
	newSet, err := validator.New(1, updated...)
	require.NoError(t, err)

	m.UpdateValidatorSet(newSet)
	assert.Equal(t, uint64(107000), m.Stats().TotalStake)

	//the open proposal still weighs validator 0 at its stake when opened
	require.NoError(t, m.CastVote(newTestVote(t, vals[0], p, VoteSupport)))

	_, ok := m.VotingResult(mustHash(t, p))
	assert.False(t, ok, "1000 of 7000 must not decide")

	require.NoError(t, m.CastVote(newTestVote(t, vals[3], p, VoteSupport)))
	require.NoError(t, m.CastVote(newTestVote(t, vals[2], p, VoteSupport)))

	r, ok := m.VotingResult(mustHash(t, p))
	require.True(t, ok)
	assert.Equal(t, DecisionAccept, r.Decision)
	assert.Equal(t, uint64(7000), r.Tally.TotalStake)
	assert.Equal(t, uint64(5500), r.Tally.SupportStake)
	assert.LessOrEqual(t, r.Tally.VotedStake(), r.Tally.TotalStake)

	//new proposals use the new set
	next := newTestProposal(t, vals[0], 2, 0)
	require.NoError(t, m.SubmitProposal(next))
	require.NoError(t, m.CastVote(newTestVote(t, vals[0], next, VoteSupport)))

	r, ok = m.VotingResult(mustHash(t, next))
	require.True(t, ok)
	assert.Equal(t, DecisionAccept, r.Decision)
	assert.Equal(t, uint64(107000), r.Tally.TotalStake)
}

type failingSink struct {
	err   error
	calls int
}

func (s *failingSink) PutResult(_ context.Context, _ *VotingResult) error {
	s.calls++
	return s.err
}

func TestCleanupSinkFailure(t *testing.T) {
	vals, set := newTestValidators(t, 1000, 1500, 2000, 2500)

	sink := &failingSink{err: errors.New("disk full")}
	m := newTestManager(t, set, WithResultSink(sink))

	p := newTestProposal(t, vals[0], 1, 0)
	require.NoError(t, m.SubmitProposal(p))
	for _, i := range []int{3, 2, 1} {
		require.NoError(t, m.CastVote(newTestVote(t, vals[i], p, VoteSupport)))
	}

	res, err := m.CleanupCompletedProposals(context.Background())
	assert.ErrorIs(t, err, ErrConsensus)
	assert.Empty(t, res)
	assert.Equal(t, 1, m.Stats().ActiveProposals)

	sink.err = nil
	res, err = m.CleanupCompletedProposals(context.Background())
	require.NoError(t, err)
	assert.Len(t, res, 1)
	assert.Equal(t, 2, sink.calls)
	assert.Zero(t, m.Stats().ActiveProposals)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	vals, set := newTestValidators(t, 1000, 1500, 2000, 2500)
	m := newTestManager(t, set, WithMetrics(metrics))

	p := newTestProposal(t, vals[0], 1, 0)
	require.NoError(t, m.SubmitProposal(p))
	for _, i := range []int{3, 2, 1} {
		require.NoError(t, m.CastVote(newTestVote(t, vals[i], p, VoteSupport)))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.proposals.WithLabelValues("accepted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.votes.WithLabelValues("support")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.decisions.WithLabelValues("accept")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.active))

	_, err = m.CleanupCompletedProposals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.active))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "double registration")
}

func TestNewManagerValidatesConfig(t *testing.T) {
	_, set := newTestValidators(t, 1000)

	cfg := DefaultConfig()
	cfg.Threshold = 50

	_, err := NewManager(set, acceptingVerifier(t), cfg)
	assert.Error(t, err)

	_, err = NewManager(nil, acceptingVerifier(t), DefaultConfig())
	assert.Error(t, err)
}
