package cli

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tcfw/meshbft/internal/config"
)

var (
	keygenCmd = &cobra.Command{
		Use:   "keygen",
		Short: "generate a validators file with fresh keys",
		RunE:  runKeygen,
	}
)

func init() {
	keygenCmd.Flags().IntP("count", "n", 4, "number of validators")
	keygenCmd.Flags().Uint64("stake", 1000, "stake of the first validator")
	keygenCmd.Flags().Uint64("stake-step", 500, "stake added for each following validator")
	keygenCmd.Flags().Uint64("epoch", 0, "validator set epoch")
	keygenCmd.Flags().StringP("out", "o", "validators.yaml", "file to write. Use '-' for stdout")
	keygenCmd.Flags().Bool("public-only", false, "omit private keys")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetInt("count")
	stake, _ := cmd.Flags().GetUint64("stake")
	step, _ := cmd.Flags().GetUint64("stake-step")
	epoch, _ := cmd.Flags().GetUint64("epoch")
	out, _ := cmd.Flags().GetString("out")
	publicOnly, _ := cmd.Flags().GetBool("public-only")

	f, err := generateValidators(epoch, count, stake, step, !publicOnly)
	if err != nil {
		return err
	}

	if out == "-" {
		d, err := f.Marshal()
		if err != nil {
			return err
		}
		fmt.Printf("%s", d)
		return nil
	}

	if err := f.Write(out); err != nil {
		return errors.Wrap(err, "writing validators file")
	}

	fmt.Printf("wrote %d validators to %s\n", count, out)

	return nil
}

func generateValidators(epoch uint64, count int, stake, step uint64, secrets bool) (*config.ValidatorsFile, error) {
	if count <= 0 {
		return nil, errors.New("count must be positive")
	}

	f := &config.ValidatorsFile{Epoch: epoch}

	for i := 0; i < count; i++ {
		e, err := config.NewValidatorEntry(uint64(i), stake+uint64(i)*step, fmt.Sprintf("validator-%d", i), secrets)
		if err != nil {
			return nil, errors.Wrap(err, "generating validator")
		}

		f.Validators = append(f.Validators, *e)
	}

	return f, nil
}
