package consensus

import (
	"math/bits"
	"time"
)

type Decision uint8

const (
	DecisionAccept Decision = iota + 1
	DecisionReject
	DecisionNoConsensus
)

func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionReject:
		return "reject"
	case DecisionNoConsensus:
		return "no-consensus"
	default:
		return "undecided"
	}
}

// VoteTally accumulates vote counts and stake per vote type. TotalStake is
// fixed when voting opens.
type VoteTally struct {
	Support uint64 `msgpack:"s"`
	Reject  uint64 `msgpack:"r"`
	Abstain uint64 `msgpack:"a"`

	SupportStake uint64 `msgpack:"ss"`
	RejectStake  uint64 `msgpack:"rs"`
	AbstainStake uint64 `msgpack:"as"`

	TotalStake uint64 `msgpack:"ts"`
}

func (t *VoteTally) add(vt VoteType, stake uint64) error {
	switch vt {
	case VoteSupport:
		t.Support++
		t.SupportStake += stake
	case VoteReject:
		t.Reject++
		t.RejectStake += stake
	case VoteAbstain:
		t.Abstain++
		t.AbstainStake += stake
	default:
		return &ConsensusError{"unknown vote type " + vt.String()}
	}

	return nil
}

func (t VoteTally) Votes() uint64 {
	return t.Support + t.Reject + t.Abstain
}

func (t VoteTally) VotedStake() uint64 {
	return t.SupportStake + t.RejectStake + t.AbstainStake
}

// ThresholdStake is floor(total * pct / 100), never less than 1 so that an
// empty bucket cannot decide.
func ThresholdStake(total, pct uint64) uint64 {
	hi, lo := bits.Mul64(total, pct)
	if hi >= 100 {
		//pct is at most 100 so the quotient always fits
		return total
	}

	q, _ := bits.Div64(hi, lo, 100)
	if q == 0 {
		return 1
	}
	return q
}

// decide is the single place a voting outcome is determined. It reports
// false while voting should stay open.
func decide(t VoteTally, pct uint64, elapsed, timeout time.Duration) (Decision, bool, error) {
	threshold := ThresholdStake(t.TotalStake, pct)

	support := t.SupportStake >= threshold
	reject := t.RejectStake >= threshold

	switch {
	case support && reject:
		return 0, false, ErrBothThresholds
	case support:
		return DecisionAccept, true, nil
	case reject:
		return DecisionReject, true, nil
	case elapsed >= timeout:
		return DecisionNoConsensus, true, nil
	default:
		return 0, false, nil
	}
}
