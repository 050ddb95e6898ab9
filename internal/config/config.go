package config

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/tcfw/meshbft/internal/utils/logging"
)

const (
	Cfg_verbose = "verbose"
	Cfg_logJSON = "log.json"
)

var (
	defaults = map[string]interface{}{
		Cfg_verbose: false,
		Cfg_logJSON: false,
	}
)

func init() {
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}
}

func GetConfig() (*Config, error) {
	viper.SetConfigType("yaml")
	viper.SetConfigName("meshbft")
	viper.AddConfigPath("/etc/meshbft/")
	viper.AddConfigPath("$HOME/.meshbft")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("MESHBFT")
	viper.AutomaticEnv()
	err := viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults and env only
			logging.Entry().Debug("no config found")
		} else {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	c := &Config{}

	c.consensus, err = buildConsensusConfig()
	if err != nil {
		return nil, errors.Wrap(err, "consensus config")
	}

	c.archive = buildArchiveConfig()

	logging.SetJSON(viper.GetBool(Cfg_logJSON))

	if viper.GetBool(Cfg_verbose) {
		logging.SetLevel(logrus.DebugLevel)
		logging.Entry().WithField("level", "debug").Debug("setting log level")
	}

	return c, nil
}

type Config struct {
	consensus *Consensus
	archive   *Archive
}

func (c *Config) Consensus() *Consensus {
	return c.consensus
}

func (c *Config) Archive() *Archive {
	return c.archive
}
