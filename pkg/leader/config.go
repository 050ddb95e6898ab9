package leader

import "github.com/pkg/errors"

// RandomnessSource selects what is mixed into the VRF input of each round.
type RandomnessSource uint8

const (
	SourceHeightAndRound RandomnessSource = iota
	SourcePreviousBlock
	SourceSeed
)

type Config struct {
	// MinStake is the stake below which a validator can never lead.
	MinStake uint64

	// StakeWeightFactor is the exponent applied to a validator's stake share.
	StakeWeightFactor float64

	// ProbabilityTolerance is the allowed drift between the claimed and
	// recomputed selection probability.
	ProbabilityTolerance float64

	Source RandomnessSource

	// Seed is the previous block hash for SourcePreviousBlock or the custom
	// seed for SourceSeed.
	Seed []byte
}

func DefaultConfig() Config {
	return Config{
		MinStake:             1000,
		StakeWeightFactor:    1.0,
		ProbabilityTolerance: 0.1,
		Source:               SourceHeightAndRound,
	}
}

func (c Config) Validate() error {
	if c.StakeWeightFactor <= 0 {
		return errors.New("stake weight factor must be positive")
	}

	if c.ProbabilityTolerance < 0 || c.ProbabilityTolerance > 1 {
		return errors.New("probability tolerance must be within [0,1]")
	}

	switch c.Source {
	case SourceHeightAndRound:
	case SourcePreviousBlock, SourceSeed:
		if len(c.Seed) == 0 {
			return errors.New("randomness source requires a seed")
		}
	default:
		return errors.Errorf("unknown randomness source %d", c.Source)
	}

	return nil
}
