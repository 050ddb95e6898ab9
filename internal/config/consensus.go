package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/tcfw/meshbft/pkg/consensus"
	"github.com/tcfw/meshbft/pkg/leader"
)

type Consensus struct {
	Manager       consensus.Config
	Leader        leader.Config
	SweepInterval time.Duration
}

const (
	Cfg_consensus_threshold              = "consensus.threshold"
	Cfg_consensus_votingTimeout          = "consensus.votingTimeout"
	Cfg_consensus_maxConcurrentProposals = "consensus.maxConcurrentProposals"
	Cfg_consensus_minBlockTime           = "consensus.minBlockTime"
	Cfg_consensus_maxBlockSize           = "consensus.maxBlockSize"
	Cfg_consensus_sweepInterval          = "consensus.sweepInterval"
	Cfg_leader_minStake                  = "leader.minStake"
	Cfg_leader_stakeWeightFactor         = "leader.stakeWeightFactor"
	Cfg_leader_seed                      = "leader.seed"
)

var (
	consensusDefaults = map[string]interface{}{
		Cfg_consensus_threshold:              consensus.DefaultThreshold,
		Cfg_consensus_votingTimeout:          consensus.DefaultVotingTimeout,
		Cfg_consensus_maxConcurrentProposals: consensus.DefaultMaxConcurrentProposals,
		Cfg_consensus_minBlockTime:           consensus.DefaultMinBlockTime,
		Cfg_consensus_maxBlockSize:           consensus.DefaultMaxBlockSize,
		Cfg_consensus_sweepInterval:          time.Second,
		Cfg_leader_minStake:                  leader.DefaultConfig().MinStake,
		Cfg_leader_stakeWeightFactor:         leader.DefaultConfig().StakeWeightFactor,
		Cfg_leader_seed:                      "",
	}
)

func init() {
	for k, v := range consensusDefaults {
		viper.SetDefault(k, v)
	}
}

func buildConsensusConfig() (*Consensus, error) {
	c := &Consensus{
		Manager: consensus.Config{
			Threshold:              viper.GetUint64(Cfg_consensus_threshold),
			VotingTimeout:          viper.GetDuration(Cfg_consensus_votingTimeout),
			MaxConcurrentProposals: viper.GetInt(Cfg_consensus_maxConcurrentProposals),
			MinBlockTime:           viper.GetDuration(Cfg_consensus_minBlockTime),
			MaxBlockSize:           viper.GetInt(Cfg_consensus_maxBlockSize),
		},
		Leader:        leader.DefaultConfig(),
		SweepInterval: viper.GetDuration(Cfg_consensus_sweepInterval),
	}

	c.Leader.MinStake = viper.GetUint64(Cfg_leader_minStake)
	c.Leader.StakeWeightFactor = viper.GetFloat64(Cfg_leader_stakeWeightFactor)

	if seed := viper.GetString(Cfg_leader_seed); seed != "" {
		c.Leader.Source = leader.SourceSeed
		c.Leader.Seed = []byte(seed)
	}

	if err := c.Manager.Validate(); err != nil {
		return nil, err
	}

	if err := c.Leader.Validate(); err != nil {
		return nil, err
	}

	if c.SweepInterval <= 0 {
		return nil, errors.New("sweep interval must be positive")
	}

	return c, nil
}
