package consensus

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tcfw/meshbft/pkg/block"
	"github.com/tcfw/meshbft/pkg/validator"
)

type votingState struct {
	// set is the validator set at open. Votes are resolved against it so a
	// set update cannot move stake into an open tally.
	set *validator.Set

	votes     map[uint64]*BlockVote
	late      map[uint64]*BlockVote
	tally     VoteTally
	startedAt time.Time
	txBloom   []byte

	complete  bool
	decision  Decision
	decidedAt time.Time
}

// Manager coordinates stake weighted voting on block proposals. Every
// operation holds a single lock for its full duration.
type Manager struct {
	mu sync.Mutex

	cfg     Config
	set     *validator.Set
	leaders LeaderVerifier

	proposals map[block.Hash]*BlockProposal
	voting    map[block.Hash]*votingState

	lastAccepted time.Time

	log     *logrus.Entry
	clock   clock.Clock
	metrics *Metrics
	sink    ResultSink
}

func NewManager(set *validator.Set, leaders LeaderVerifier, cfg Config, opts ...Option) (*Manager, error) {
	if set == nil {
		return nil, errors.New("nil validator set")
	}
	if leaders == nil {
		return nil, errors.New("nil leader verifier")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating consensus config")
	}

	m := &Manager{
		cfg:       cfg,
		set:       set,
		leaders:   leaders,
		proposals: make(map[block.Hash]*BlockProposal),
		voting:    make(map[block.Hash]*votingState),
		log:       logrus.NewEntry(logrus.StandardLogger()),
		clock:     clock.New(),
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}

	m.log = m.log.WithField("component", "consensus")

	return m, nil
}

func (m *Manager) Config() Config {
	return m.cfg
}

func (m *Manager) ValidatorSet() *validator.Set {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.set
}

// SubmitProposal verifies a proposal and opens voting on it.
func (m *Manager) SubmitProposal(p *BlockProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ok, err := p.Verify(m.set, m.leaders)
	if err != nil {
		m.metrics.proposal("invalid")
		return err
	}
	if !ok {
		m.metrics.proposal("invalid")
		return &BlockValidationFailedError{"proposal verification failed"}
	}

	if err := p.validateBlock(m.cfg, m.lastAccepted); err != nil {
		m.metrics.proposal("invalid")
		return err
	}

	h, err := p.BlockHash()
	if err != nil {
		return errors.Wrap(err, "hashing proposal")
	}

	if _, exists := m.proposals[h]; exists {
		return errors.Wrapf(ErrProposalExists, "block %s", h)
	}

	if len(m.proposals) >= m.cfg.MaxConcurrentProposals {
		m.metrics.proposal("backpressure")
		return ErrTooManyProposals
	}

	var txBloom []byte
	if p.TxTree != nil {
		if txBloom, err = p.TxTree.Bloom(); err != nil {
			return errors.Wrap(err, "building tx bloom")
		}
	}

	m.proposals[h] = p
	m.voting[h] = &votingState{
		set:       m.set,
		votes:     make(map[uint64]*BlockVote),
		late:      make(map[uint64]*BlockVote),
		tally:     VoteTally{TotalStake: m.set.TotalStake()},
		startedAt: m.clock.Now(),
		txBloom:   txBloom,
	}

	m.metrics.proposal("accepted")
	m.metrics.setActive(len(m.proposals))

	m.log.WithFields(logrus.Fields{
		"block":    h.String(),
		"height":   p.RoundInfo.Height,
		"round":    p.RoundInfo.Round,
		"proposer": p.LeaderProof.LeaderIndex,
	}).Debug("opened voting")

	return nil
}

// CastVote verifies and tallies a vote against the validator set the
// proposal was opened with. The first vote from a validator is final. Votes
// arriving after a decision are kept apart and leave the tally untouched.
func (m *Manager) CastVote(v *BlockVote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.proposals[v.BlockHash]
	if !ok {
		return errors.Wrapf(ErrProposalNotFound, "block %s", v.BlockHash)
	}

	st, ok := m.voting[v.BlockHash]
	if !ok {
		return errors.Wrapf(&ConsensusError{"voting state not found"}, "block %s", v.BlockHash)
	}

	info, ok := st.set.Get(v.ValidatorIndex)
	if !ok {
		return &InvalidProposerError{v.ValidatorIndex}
	}

	if !v.Verify(info) {
		return &InvalidVoteSignatureError{fmt.Sprintf("validator %d", v.ValidatorIndex)}
	}

	if v.RoundInfo.Height != p.RoundInfo.Height || v.RoundInfo.Round != p.RoundInfo.Round {
		return &WrongBlockVoteError{
			Expected: fmt.Sprintf("%d/%d", p.RoundInfo.Height, p.RoundInfo.Round),
			Got:      fmt.Sprintf("%d/%d", v.RoundInfo.Height, v.RoundInfo.Round),
		}
	}

	if _, voted := st.votes[v.ValidatorIndex]; voted {
		return &DuplicateVoteError{v.ValidatorIndex}
	}
	if _, voted := st.late[v.ValidatorIndex]; voted {
		return &DuplicateVoteError{v.ValidatorIndex}
	}

	next := st.tally
	if err := next.add(v.VoteType, info.Stake); err != nil {
		return err
	}

	if st.complete {
		st.late[v.ValidatorIndex] = v
		m.metrics.vote(v.VoteType)
		return nil
	}

	decision, done, err := decide(next, m.cfg.Threshold, m.clock.Since(st.startedAt), m.cfg.VotingTimeout)
	if err != nil {
		return err
	}

	st.tally = next
	st.votes[v.ValidatorIndex] = v
	m.metrics.vote(v.VoteType)

	if done {
		m.complete(v.BlockHash, p, st, decision)
	}

	return nil
}

func (m *Manager) complete(h block.Hash, p *BlockProposal, st *votingState, d Decision) {
	st.complete = true
	st.decision = d
	st.decidedAt = m.clock.Now()

	if d == DecisionAccept {
		if t := p.Header.Time(); t.After(m.lastAccepted) {
			m.lastAccepted = t
		}
	}

	m.metrics.decision(d)

	m.log.WithFields(logrus.Fields{
		"block":    h.String(),
		"height":   p.RoundInfo.Height,
		"round":    p.RoundInfo.Round,
		"decision": d.String(),
		"support":  st.tally.SupportStake,
		"reject":   st.tally.RejectStake,
	}).Info("voting complete")
}

// Tick runs consensus determination on every open proposal so timeouts are
// noticed without new votes. It returns the hashes that completed.
func (m *Manager) Tick() ([]block.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		completed []block.Hash
		firstErr  error
	)

	for _, h := range m.sortedHashes() {
		st := m.voting[h]
		if st.complete {
			continue
		}

		d, done, err := decide(st.tally, m.cfg.Threshold, m.clock.Since(st.startedAt), m.cfg.VotingTimeout)
		if err != nil {
			if firstErr == nil {
				firstErr = errors.Wrapf(err, "block %s", h)
			}
			continue
		}

		if done {
			m.complete(h, m.proposals[h], st, d)
			completed = append(completed, h)
		}
	}

	return completed, firstErr
}

func (m *Manager) result(h block.Hash) *VotingResult {
	p, st := m.proposals[h], m.voting[h]

	return &VotingResult{
		BlockHash:        h,
		Votes:            sortedVotes(st.votes),
		LateVotes:        sortedVotes(st.late),
		Tally:            st.tally,
		ThresholdStake:   ThresholdStake(st.tally.TotalStake, m.cfg.Threshold),
		ConsensusReached: st.decision != DecisionNoConsensus,
		Decision:         st.decision,
		RoundInfo:        p.RoundInfo,
		StartedAt:        st.startedAt,
		DecidedAt:        st.decidedAt,
		TxRoot:           p.Header.TxRoot,
		TxBloom:          st.txBloom,
	}
}

func sortedVotes(m map[uint64]*BlockVote) []*BlockVote {
	if len(m) == 0 {
		return nil
	}

	votes := make([]*BlockVote, 0, len(m))
	for _, v := range m {
		votes = append(votes, v)
	}
	sort.Slice(votes, func(i, j int) bool {
		return votes[i].ValidatorIndex < votes[j].ValidatorIndex
	})

	return votes
}

// VotingResult returns the result of a completed proposal. Unknown or still
// open proposals report false.
func (m *Manager) VotingResult(h block.Hash) (*VotingResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.voting[h]
	if !ok || !st.complete {
		return nil, false
	}

	return m.result(h), true
}

// ActiveProposals lists every held proposal ordered by height, round then hash.
func (m *Manager) ActiveProposals() []*BlockProposal {
	m.mu.Lock()
	defer m.mu.Unlock()

	hashes := m.sortedHashes()
	out := make([]*BlockProposal, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, m.proposals[h])
	}

	return out
}

func (m *Manager) sortedHashes() []block.Hash {
	hashes := make([]block.Hash, 0, len(m.proposals))
	for h := range m.proposals {
		hashes = append(hashes, h)
	}

	sort.Slice(hashes, func(i, j int) bool {
		a, b := m.proposals[hashes[i]].RoundInfo, m.proposals[hashes[j]].RoundInfo
		if a.Height != b.Height {
			return a.Height < b.Height
		}
		if a.Round != b.Round {
			return a.Round < b.Round
		}
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})

	return hashes
}

// CleanupCompletedProposals removes every completed proposal and returns its
// result. With a ResultSink configured a result is only removed once the sink
// has accepted it.
func (m *Manager) CleanupCompletedProposals(ctx context.Context) ([]*VotingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []*VotingResult

	for _, h := range m.sortedHashes() {
		if !m.voting[h].complete {
			continue
		}

		r := m.result(h)

		if m.sink != nil {
			if err := m.sink.PutResult(ctx, r); err != nil {
				m.metrics.setActive(len(m.proposals))
				return results, errors.Wrapf(&ConsensusError{"archiving result: " + err.Error()}, "block %s", h)
			}
		}

		delete(m.proposals, h)
		delete(m.voting, h)
		results = append(results, r)
	}

	m.metrics.setActive(len(m.proposals))

	if len(results) > 0 {
		m.log.WithField("count", len(results)).Debug("harvested completed proposals")
	}

	return results, nil
}

// UpdateValidatorSet replaces the set used for new proposals. Proposals
// already open keep voting against the set they were opened with.
func (m *Manager) UpdateValidatorSet(set *validator.Set) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.set = set

	if u, ok := m.leaders.(interface{ UpdateValidatorSet(*validator.Set) }); ok {
		u.UpdateValidatorSet(set)
	}

	m.log.WithFields(logrus.Fields{
		"epoch":      set.Epoch(),
		"validators": set.Len(),
		"stake":      set.TotalStake(),
	}).Info("updated validator set")
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		ActiveProposals: len(m.proposals),
		ValidatorCount:  m.set.Len(),
		TotalStake:      m.set.TotalStake(),
		ActiveStake:     m.set.ActiveStake(),
	}

	for _, st := range m.voting {
		s.TotalVotes += len(st.votes) + len(st.late)
		if st.complete {
			s.CompletedVoting++
		}
	}

	return s
}
