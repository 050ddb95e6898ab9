package consensus

import (
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultThreshold              = 67
	DefaultVotingTimeout          = 30 * time.Second
	DefaultMaxConcurrentProposals = 3
	DefaultMinBlockTime           = 1 * time.Second
	DefaultMaxBlockSize           = 1 << 20
)

type Config struct {
	// Threshold is the percentage of total stake needed to decide.
	Threshold              uint64
	VotingTimeout          time.Duration
	MaxConcurrentProposals int

	// MinBlockTime is the minimum spacing between the creation times of
	// consecutive accepted blocks.
	MinBlockTime time.Duration

	// MaxBlockSize bounds the total transaction payload of a proposal.
	MaxBlockSize int
}

func DefaultConfig() Config {
	return Config{
		Threshold:              DefaultThreshold,
		VotingTimeout:          DefaultVotingTimeout,
		MaxConcurrentProposals: DefaultMaxConcurrentProposals,
		MinBlockTime:           DefaultMinBlockTime,
		MaxBlockSize:           DefaultMaxBlockSize,
	}
}

func (c Config) Validate() error {
	//a threshold at or below half would let support and reject both decide
	if c.Threshold <= 50 || c.Threshold > 100 {
		return errors.Errorf("threshold must be within (50,100], got %d", c.Threshold)
	}

	if c.VotingTimeout <= 0 {
		return errors.New("voting timeout must be positive")
	}

	if c.MaxConcurrentProposals <= 0 {
		return errors.New("max concurrent proposals must be positive")
	}

	if c.MinBlockTime < 0 {
		return errors.New("min block time must not be negative")
	}

	if c.MaxBlockSize <= 0 {
		return errors.New("max block size must be positive")
	}

	return nil
}
