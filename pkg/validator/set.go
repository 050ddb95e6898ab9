package validator

import (
	"encoding/binary"
	"math/bits"
	"sort"

	"github.com/pkg/errors"
	"github.com/tcfw/meshbft/pkg/block"
)

var (
	ErrEmptySet           = errors.New("empty validator set")
	ErrDuplicateValidator = errors.New("duplicate validator index")
	ErrInvalidStake       = errors.New("invalid validator stake")
	ErrMissingKey         = errors.New("validator missing public key")
	ErrStakeOverflow      = errors.New("total stake overflow")
)

// Set is an immutable snapshot of the validators for an epoch. Replacing
// membership means building a new Set.
type Set struct {
	epoch      uint64
	validators []*Info
	byIndex    map[uint64]*Info
	totalStake uint64
}

func New(epoch uint64, validators ...*Info) (*Set, error) {
	if len(validators) == 0 {
		return nil, ErrEmptySet
	}

	s := &Set{
		epoch:      epoch,
		validators: make([]*Info, 0, len(validators)),
		byIndex:    make(map[uint64]*Info, len(validators)),
	}

	for _, v := range validators {
		if _, ok := s.byIndex[v.Index]; ok {
			return nil, errors.Wrapf(ErrDuplicateValidator, "index %d", v.Index)
		}
		if v.Stake == 0 {
			return nil, errors.Wrapf(ErrInvalidStake, "index %d", v.Index)
		}
		if v.BlsKey == nil || v.VrfKey == nil {
			return nil, errors.Wrapf(ErrMissingKey, "index %d", v.Index)
		}

		total, carry := bits.Add64(s.totalStake, v.Stake, 0)
		if carry != 0 {
			return nil, ErrStakeOverflow
		}

		c := *v
		if c.Status == 0 {
			c.Status = StatusActive
		}

		s.totalStake = total
		s.validators = append(s.validators, &c)
		s.byIndex[c.Index] = &c
	}

	sort.Slice(s.validators, func(i, j int) bool {
		return s.validators[i].Index < s.validators[j].Index
	})

	return s, nil
}

func (s *Set) Get(index uint64) (*Info, bool) {
	v, ok := s.byIndex[index]
	return v, ok
}

func (s *Set) Epoch() uint64 {
	return s.epoch
}

func (s *Set) Len() int {
	return len(s.validators)
}

// TotalStake is the stake of every member regardless of status.
func (s *Set) TotalStake() uint64 {
	return s.totalStake
}

// Validators returns the members ordered by index.
func (s *Set) Validators() []*Info {
	out := make([]*Info, len(s.validators))
	copy(out, s.validators)
	return out
}

// Active returns the active members ordered by index.
func (s *Set) Active() []*Info {
	out := make([]*Info, 0, len(s.validators))
	for _, v := range s.validators {
		if v.IsActive() {
			out = append(out, v)
		}
	}
	return out
}

func (s *Set) ActiveStake() uint64 {
	var t uint64
	for _, v := range s.Active() {
		t += v.Stake
	}
	return t
}

// Hash commits to the epoch and every member, in index order.
func (s *Set) Hash() (block.Hash, error) {
	leaves := make([][]byte, 0, len(s.validators))
	for _, v := range s.validators {
		l, err := v.leaf()
		if err != nil {
			return block.ZeroHash, errors.Wrapf(err, "validator %d", v.Index)
		}
		leaves = append(leaves, l)
	}

	root := block.MerkleRoot(leaves)

	b := make([]byte, 0, 8+block.HashSize)
	b = binary.LittleEndian.AppendUint64(b, s.epoch)
	b = append(b, root[:]...)

	return block.DomainHash(block.DomainValidatorSet, b), nil
}
