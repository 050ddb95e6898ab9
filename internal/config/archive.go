package config

import "github.com/spf13/viper"

type Archive struct {
	// Path of the pebble archive. Empty keeps results in memory.
	Path string

	ValidatorsFile string
}

const (
	Cfg_archive_path    = "archive.path"
	Cfg_validators_file = "validators.file"
)

var (
	archiveDefaults = map[string]interface{}{
		Cfg_archive_path:    "",
		Cfg_validators_file: "validators.yaml",
	}
)

func init() {
	for k, v := range archiveDefaults {
		viper.SetDefault(k, v)
	}
}

func buildArchiveConfig() *Archive {
	return &Archive{
		Path:           viper.GetString(Cfg_archive_path),
		ValidatorsFile: viper.GetString(Cfg_validators_file),
	}
}
