package leader

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/pkg/errors"
	"github.com/tcfw/meshbft/pkg/block"
	"github.com/tcfw/meshbft/pkg/cryptography"
	"github.com/tcfw/meshbft/pkg/validator"
)

var (
	ErrValidatorNotFound = errors.New("validator not found")
	ErrNoEligible        = errors.New("no eligible validators")
	ErrNoLeader          = errors.New("no leader selected for round")
)

// Proof is a claim that a validator was selected to propose in a round.
type Proof struct {
	LeaderIndex          uint64                 `msgpack:"l"`
	RoundInfo            block.RoundInfo        `msgpack:"ri"`
	VrfProof             *cryptography.VrfProof `msgpack:"p"`
	VrfOutput            []byte                 `msgpack:"o"`
	SelectionProbability float64                `msgpack:"sp"`
}

// Selector runs stake weighted VRF sortition. Every validator evaluates
// the VRF for a round with its own key and is a leader when the output
// falls below its selection probability.
type Selector struct {
	mu  sync.RWMutex
	cfg Config
	set *validator.Set
}

func NewSelector(set *validator.Set, cfg Config) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating leader config")
	}

	return &Selector{cfg: cfg, set: set}, nil
}

func (s *Selector) UpdateValidatorSet(set *validator.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.set = set
}

// SetSeed replaces the seed mixed into the VRF input. With
// SourcePreviousBlock it is called with each accepted block hash.
func (s *Selector) SetSeed(seed []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg.Seed = append([]byte(nil), seed...)
}

// Input is the VRF input for a round.
func (s *Selector) Input(ri block.RoundInfo) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.input(ri)
}

func (s *Selector) input(ri block.RoundInfo) []byte {
	var b []byte

	switch s.cfg.Source {
	case SourcePreviousBlock:
		b = append(b, s.cfg.Seed...)
		b = binary.LittleEndian.AppendUint64(b, ri.Round)
	case SourceSeed:
		b = append(b, s.cfg.Seed...)
		b = binary.LittleEndian.AppendUint64(b, ri.Height)
		b = binary.LittleEndian.AppendUint64(b, ri.Round)
	default:
		b = binary.LittleEndian.AppendUint64(b, ri.Height)
		b = binary.LittleEndian.AppendUint64(b, ri.Round)
		b = binary.LittleEndian.AppendUint64(b, ri.Epoch)
	}

	h := block.DomainHash(block.DomainVrfInput, b)
	return h.Bytes()
}

func (s *Selector) eligible(v *validator.Info) bool {
	return v.IsActive() && v.Stake >= s.cfg.MinStake
}

func (s *Selector) eligibleStake() uint64 {
	var t uint64
	for _, v := range s.set.Active() {
		if s.eligible(v) {
			t += v.Stake
		}
	}
	return t
}

func (s *Selector) probability(v *validator.Info) float64 {
	total := s.eligibleStake()
	if total == 0 || !s.eligible(v) {
		return 0
	}

	return math.Pow(float64(v.Stake)/float64(total), s.cfg.StakeWeightFactor)
}

// Probability is the chance the validator at index leads any given round.
func (s *Selector) Probability(index uint64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.set.Get(index)
	if !ok {
		return 0, errors.Wrapf(ErrValidatorNotFound, "index %d", index)
	}

	return s.probability(v), nil
}

// Evaluate runs the VRF for the validator at index. The returned proof is
// only a valid leader claim when selected is true.
func (s *Selector) Evaluate(ri block.RoundInfo, index uint64, key *cryptography.VrfPrivateKey) (*Proof, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.set.Get(index)
	if !ok {
		return nil, false, errors.Wrapf(ErrValidatorNotFound, "index %d", index)
	}

	out, vp, err := key.Prove(s.input(ri))
	if err != nil {
		return nil, false, errors.Wrap(err, "evaluating vrf")
	}

	p := s.probability(v)

	proof := &Proof{
		LeaderIndex:          index,
		RoundInfo:            ri,
		VrfProof:             vp,
		VrfOutput:            out,
		SelectionProbability: p,
	}

	return proof, belowThreshold(out, p), nil
}

// Select evaluates every held key and returns the selected validator with
// the lowest VRF output. Used where one process holds many keys, such as
// local simulation.
func (s *Selector) Select(ri block.RoundInfo, keys map[uint64]*cryptography.VrfPrivateKey) (*Proof, error) {
	s.mu.RLock()
	total := s.eligibleStake()
	s.mu.RUnlock()

	if total == 0 {
		return nil, ErrNoEligible
	}

	var best *Proof

	for index, key := range keys {
		p, selected, err := s.Evaluate(ri, index, key)
		if err != nil {
			return nil, err
		}
		if !selected {
			continue
		}

		if best == nil || lessOutput(p.VrfOutput, best.VrfOutput) {
			best = p
		}
	}

	if best == nil {
		return nil, errors.Wrapf(ErrNoLeader, "height %d round %d", ri.Height, ri.Round)
	}

	return best, nil
}

// VerifyLeaderSelection checks a leader claim against the current set. An
// unknown leader index is an error; every other failure is a false result.
func (s *Selector) VerifyLeaderSelection(proof *Proof) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if proof == nil {
		return false, nil
	}

	v, ok := s.set.Get(proof.LeaderIndex)
	if !ok {
		return false, errors.Wrapf(ErrValidatorNotFound, "index %d", proof.LeaderIndex)
	}

	if !s.eligible(v) {
		return false, nil
	}

	out, err := v.VrfKey.Verify(s.input(proof.RoundInfo), proof.VrfProof)
	if err != nil {
		if errors.Is(err, cryptography.ErrInvalidVrfProof) {
			return false, nil
		}
		return false, err
	}

	if string(out) != string(proof.VrfOutput) {
		return false, nil
	}

	expected := s.probability(v)
	if math.Abs(proof.SelectionProbability-expected) > s.cfg.ProbabilityTolerance {
		return false, nil
	}

	return belowThreshold(out, expected), nil
}

// belowThreshold maps the first 8 bytes of out onto [0,1) and compares.
func belowThreshold(out []byte, p float64) bool {
	if p >= 1 {
		return true
	}
	if len(out) < 8 {
		return false
	}

	x := float64(binary.BigEndian.Uint64(out[:8])) / math.Exp2(64)
	return x < p
}

func lessOutput(a, b []byte) bool {
	return string(a) < string(b)
}
