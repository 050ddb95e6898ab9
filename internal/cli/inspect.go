package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tcfw/meshbft/internal/config"
	"github.com/tcfw/meshbft/pkg/block"
	"github.com/tcfw/meshbft/pkg/consensus"
	"github.com/tcfw/meshbft/pkg/storage"
	"gopkg.in/yaml.v3"
)

var (
	inspectCmd = &cobra.Command{
		Use:   "inspect [block cid]",
		Short: "list archived voting results, or show one block",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInspect,
	}

	inspect_txCmd = &cobra.Command{
		Use:   "tx <block cid> <tx>",
		Short: "prove a multibase encoded tx is included in an archived block",
		Args:  cobra.ExactArgs(2),
		RunE:  runInspectTx,
	}

	inspect_lastCmd = &cobra.Command{
		Use:   "last",
		Short: "show the last accepted block",
		RunE:  runInspectLast,
	}
)

type resultSummary struct {
	Block     string    `yaml:"block"`
	Height    uint64    `yaml:"height"`
	Round     uint64    `yaml:"round"`
	Epoch     uint64    `yaml:"epoch"`
	Decision  string    `yaml:"decision"`
	Threshold uint64    `yaml:"threshold"`
	Support   uint64    `yaml:"support"`
	Reject    uint64    `yaml:"reject"`
	Abstain   uint64    `yaml:"abstain"`
	Total     uint64    `yaml:"total"`
	Votes     []string  `yaml:"votes,omitempty"`
	Started   time.Time `yaml:"started"`
	Decided   time.Time `yaml:"decided"`
}

func summarise(r *consensus.VotingResult, withVotes bool) resultSummary {
	s := resultSummary{
		Block:     r.BlockHash.String(),
		Height:    r.RoundInfo.Height,
		Round:     r.RoundInfo.Round,
		Epoch:     r.RoundInfo.Epoch,
		Decision:  r.Decision.String(),
		Threshold: r.ThresholdStake,
		Support:   r.Tally.SupportStake,
		Reject:    r.Tally.RejectStake,
		Abstain:   r.Tally.AbstainStake,
		Total:     r.Tally.TotalStake,
		Started:   r.StartedAt,
		Decided:   r.DecidedAt,
	}

	if withVotes {
		for _, v := range r.Votes {
			s.Votes = append(s.Votes, fmt.Sprintf("%d:%s", v.ValidatorIndex, v.VoteType))
		}
	}

	return s
}

func printYaml(v interface{}) error {
	d, err := yaml.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshalling output")
	}

	fmt.Printf("%s", d)
	return nil
}

func archiveConfig() (*config.Config, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}

	if cfg.Archive().Path == "" {
		return nil, errors.Errorf("no archive configured, set %s", config.Cfg_archive_path)
	}

	return cfg, nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := archiveConfig()
	if err != nil {
		return err
	}

	archive, err := openArchive(cfg.Archive())
	if err != nil {
		return err
	}
	defer archive.Close()

	if len(args) == 1 {
		c, err := cid.Decode(args[0])
		if err != nil {
			return errors.Wrap(err, "parsing block cid")
		}

		h, err := block.HashFromCid(c)
		if err != nil {
			return err
		}

		r, err := archive.GetResult(ctx, h)
		if err != nil {
			return errors.Wrapf(err, "block %s", c)
		}

		return printYaml(summarise(r, true))
	}

	results, err := archive.Results(ctx)
	if err != nil {
		return err
	}

	out := make([]resultSummary, 0, len(results))
	for _, r := range results {
		out = append(out, summarise(r, false))
	}

	return printYaml(out)
}

type txProof struct {
	Block string   `yaml:"block"`
	Index int      `yaml:"index"`
	Steps []string `yaml:"steps"`
}

func runInspectTx(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := cid.Decode(args[0])
	if err != nil {
		return errors.Wrap(err, "parsing block cid")
	}

	h, err := block.HashFromCid(c)
	if err != nil {
		return err
	}

	_, tx, err := multibase.Decode(args[1])
	if err != nil {
		return errors.Wrap(err, "decoding tx")
	}

	cfg, err := archiveConfig()
	if err != nil {
		return err
	}

	archive, err := openArchive(cfg.Archive())
	if err != nil {
		return err
	}
	defer archive.Close()

	proof, err := storage.ProveTx(ctx, archive, h, tx)
	if err != nil {
		return err
	}

	out := txProof{Block: h.String(), Index: proof.Index}
	for _, s := range proof.Steps {
		side := "right"
		if s.Left {
			side = "left"
		}
		out.Steps = append(out.Steps, side+":"+s.Hash.String())
	}

	return printYaml(out)
}

func runInspectLast(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := archiveConfig()
	if err != nil {
		return err
	}

	archive, err := openArchive(cfg.Archive())
	if err != nil {
		return err
	}
	defer archive.Close()

	r, err := archive.LastAccepted(ctx)
	if err != nil {
		return err
	}
	if r == nil {
		fmt.Println("no accepted blocks")
		return nil
	}

	return printYaml(summarise(r, true))
}
