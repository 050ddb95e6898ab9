package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcfw/meshbft/pkg/consensus"
	"github.com/tcfw/meshbft/pkg/leader"
)

func TestConsensusDefaults(t *testing.T) {
	c, err := buildConsensusConfig()
	require.NoError(t, err)

	assert.Equal(t, consensus.DefaultConfig(), c.Manager)
	assert.Equal(t, time.Second, c.SweepInterval)
	assert.Equal(t, leader.SourceHeightAndRound, c.Leader.Source)
}

func TestConsensusOverrides(t *testing.T) {
	viper.Set(Cfg_consensus_threshold, 75)
	viper.Set(Cfg_consensus_votingTimeout, "5s")
	viper.Set(Cfg_leader_seed, "abc")
	defer func() {
		viper.Set(Cfg_consensus_threshold, consensus.DefaultThreshold)
		viper.Set(Cfg_consensus_votingTimeout, consensus.DefaultVotingTimeout)
		viper.Set(Cfg_leader_seed, "")
	}()

	c, err := buildConsensusConfig()
	require.NoError(t, err)

	assert.Equal(t, uint64(75), c.Manager.Threshold)
	assert.Equal(t, 5*time.Second, c.Manager.VotingTimeout)
	assert.Equal(t, leader.SourceSeed, c.Leader.Source)
	assert.Equal(t, []byte("abc"), c.Leader.Seed)
}

func TestConsensusInvalidThreshold(t *testing.T) {
	viper.Set(Cfg_consensus_threshold, 40)
	defer viper.Set(Cfg_consensus_threshold, consensus.DefaultThreshold)

	_, err := buildConsensusConfig()
	assert.Error(t, err)
}
