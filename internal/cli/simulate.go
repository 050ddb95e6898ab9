package cli

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/tcfw/meshbft/internal/config"
	"github.com/tcfw/meshbft/internal/utils/logging"
	"github.com/tcfw/meshbft/pkg/block"
	"github.com/tcfw/meshbft/pkg/consensus"
	"github.com/tcfw/meshbft/pkg/cryptography"
	"github.com/tcfw/meshbft/pkg/leader"
	"github.com/tcfw/meshbft/pkg/mempool"
	"github.com/tcfw/meshbft/pkg/storage"
	"github.com/tcfw/meshbft/pkg/validator"
)

var (
	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "run a local network of validators through proposal and voting",
		RunE:  runSimulate,
	}
)

func init() {
	simulateCmd.Flags().IntP("blocks", "b", 10, "number of blocks to accept")
	simulateCmd.Flags().IntP("validators", "n", 4, "validators to generate when no validators file exists")
	simulateCmd.Flags().Int("byzantine", 0, "validators that vote reject on every proposal")
	simulateCmd.Flags().Int("txs", 8, "random transactions per block")
	simulateCmd.Flags().Int("max-rounds", 20, "rounds to attempt per height before giving up")
	simulateCmd.Flags().Bool("chain-randomness", false, "seed leader selection with the previous block hash")
	simulateCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx, cancel := waitExit(context.Background())
	defer cancel()

	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	opts := simOptions{}
	opts.blocks, _ = cmd.Flags().GetInt("blocks")
	opts.byzantine, _ = cmd.Flags().GetInt("byzantine")
	opts.txs, _ = cmd.Flags().GetInt("txs")
	opts.maxRounds, _ = cmd.Flags().GetInt("max-rounds")
	opts.chainRandomness, _ = cmd.Flags().GetBool("chain-randomness")
	count, _ := cmd.Flags().GetInt("validators")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	set, keys, err := loadOrGenerateValidators(cfg.Archive().ValidatorsFile, count)
	if err != nil {
		return err
	}

	archive, err := openArchive(cfg.Archive())
	if err != nil {
		return err
	}
	defer archive.Close()

	reg := prometheus.NewRegistry()
	metrics, err := consensus.NewMetrics(reg)
	if err != nil {
		return errors.Wrap(err, "registering metrics")
	}

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:    metricsAddr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		defer srv.Shutdown(context.Background())

		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.WithError(err).Error("serving metrics")
			}
		}()
	}

	sim, err := newSimulation(cfg.Consensus(), set, keys, archive, metrics, opts)
	if err != nil {
		return err
	}

	return sim.run(ctx, func(r *consensus.VotingResult) {
		fmt.Printf("height=%d round=%d block=%s decision=%s support=%d reject=%d abstain=%d threshold=%d\n",
			r.RoundInfo.Height, r.RoundInfo.Round, r.BlockHash, r.Decision,
			r.Tally.SupportStake, r.Tally.RejectStake, r.Tally.AbstainStake, r.ThresholdStake,
		)
	})
}

func loadOrGenerateValidators(path string, count int) (*validator.Set, map[uint64]*config.Keys, error) {
	if _, err := os.Stat(path); err == nil {
		f, err := config.ReadValidatorsFile(path)
		if err != nil {
			return nil, nil, err
		}
		return f.Set()
	}

	logging.Entry().WithField("count", count).Info("no validators file, generating validators")

	f, err := generateValidators(0, count, 1000, 500, true)
	if err != nil {
		return nil, nil, err
	}

	return f.Set()
}

func openArchive(cfg *config.Archive) (storage.Archive, error) {
	if cfg.Path == "" {
		return storage.NewMemArchive(), nil
	}

	a, err := storage.NewPebbleArchive(cfg.Path)
	if err != nil {
		return nil, errors.Wrap(err, "opening archive")
	}

	return a, nil
}

type simOptions struct {
	blocks          int
	byzantine       int
	txs             int
	maxRounds       int
	chainRandomness bool
}

// simulation drives every locally held validator through proposing and
// voting, one height at a time.
type simulation struct {
	opts     simOptions
	set      *validator.Set
	keys     map[uint64]*config.Keys
	vrfKeys  map[uint64]*cryptography.VrfPrivateKey
	voters   []uint64
	selector *leader.Selector
	manager  *consensus.Manager
	sweeper  *consensus.Sweeper
	submit   *consensus.Submitter
	archive  storage.Archive
	pool     *mempool.Pool

	parent     block.Hash
	parentTime time.Time
	height     uint64
	setHash    block.Hash
}

func newSimulation(cfg *config.Consensus, set *validator.Set, keys map[uint64]*config.Keys, archive storage.Archive, metrics *consensus.Metrics, opts simOptions) (*simulation, error) {
	if len(keys) == 0 {
		return nil, errors.New("no validator secrets available")
	}
	if opts.maxRounds <= 0 {
		opts.maxRounds = 1
	}

	s := &simulation{
		opts:    opts,
		set:     set,
		keys:    keys,
		vrfKeys: make(map[uint64]*cryptography.VrfPrivateKey, len(keys)),
		archive: archive,
		pool:    mempool.New(10 * block.MaxBlockTxCount),
	}

	for _, v := range set.Validators() {
		k, ok := keys[v.Index]
		if !ok {
			continue
		}
		s.vrfKeys[v.Index] = k.Vrf
		s.voters = append(s.voters, v.Index)
	}

	var err error
	s.setHash, err = set.Hash()
	if err != nil {
		return nil, err
	}

	if err := s.resume(context.Background()); err != nil {
		return nil, err
	}

	lcfg := cfg.Leader
	if opts.chainRandomness {
		lcfg.Source = leader.SourcePreviousBlock
		lcfg.Seed = s.parent.Bytes()
	}

	s.selector, err = leader.NewSelector(set, lcfg)
	if err != nil {
		return nil, errors.Wrap(err, "building leader selector")
	}

	s.manager, err = consensus.NewManager(set, s.selector, cfg.Manager,
		consensus.WithLogger(logging.Component("consensus")),
		consensus.WithMetrics(metrics),
		consensus.WithResultSink(archive),
		consensus.WithParentTime(s.parentTime),
	)
	if err != nil {
		return nil, errors.Wrap(err, "building consensus manager")
	}

	s.sweeper = consensus.NewSweeper(s.manager, cfg.SweepInterval)
	s.submit = consensus.NewSubmitter(s.manager, cfg.SweepInterval, 10*cfg.SweepInterval, 10)

	return s, nil
}

// resume continues from the last accepted block in the archive, or from a
// fresh genesis header.
func (s *simulation) resume(ctx context.Context) error {
	last, err := s.archive.LastAccepted(ctx)
	if err != nil {
		return errors.Wrap(err, "reading last accepted block")
	}

	if last != nil {
		s.parent = last.BlockHash
		s.parentTime = last.RoundInfo.Timestamp
		s.height = last.RoundInfo.Height + 1
		return nil
	}

	genesis := block.Genesis(s.setHash, time.Now())
	s.parent, err = genesis.Hash()
	if err != nil {
		return err
	}
	s.parentTime = genesis.Time()
	s.height = 1

	return nil
}

func (s *simulation) run(ctx context.Context, report func(*consensus.VotingResult)) error {
	ctx, cancel := context.WithCancel(ctx)

	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		s.sweeper.Run(ctx)
	}()
	defer func() {
		cancel()
		<-sweepDone
	}()

	log := logging.Component("simulate")

	for _, idx := range s.voters {
		p, err := s.selector.Probability(idx)
		if err != nil {
			return err
		}
		log.WithField("validator", idx).WithField("probability", p).Debug("leader probability")
	}

	for accepted := 0; accepted < s.opts.blocks; {
		res, err := s.runHeight(ctx, report)
		if err != nil {
			return err
		}

		accepted++
		log.WithField("height", res.RoundInfo.Height).WithField("rounds", res.RoundInfo.Round+1).Debug("height accepted")
	}

	stats := s.manager.Stats()
	log.WithFields(logging.Fields{
		"active":      stats.ActiveProposals,
		"votes":       stats.TotalVotes,
		"activeStake": stats.ActiveStake,
		"totalStake":  stats.TotalStake,
	}).Info("simulation complete")

	return nil
}

// runHeight proposes rounds at the current height until one is accepted.
func (s *simulation) runHeight(ctx context.Context, report func(*consensus.VotingResult)) (*consensus.VotingResult, error) {
	for round := uint64(0); round < uint64(s.opts.maxRounds); round++ {
		ri := block.RoundInfo{
			Height:    s.height,
			Round:     round,
			Epoch:     s.set.Epoch(),
			Timestamp: s.blockTime(round),
		}

		proof, err := s.selector.Select(ri, s.vrfKeys)
		if errors.Is(err, leader.ErrNoLeader) {
			continue
		} else if err != nil {
			return nil, errors.Wrap(err, "selecting leader")
		}

		if err := s.fillPool(); err != nil {
			return nil, err
		}

		p, txs, err := s.propose(ri, proof)
		if err != nil {
			return nil, err
		}

		h, err := p.BlockHash()
		if err != nil {
			return nil, err
		}

		harvested, err := s.submit.Submit(ctx, p)
		for _, r := range harvested {
			report(r)
		}
		if err != nil {
			return nil, errors.Wrap(err, "submitting proposal")
		}

		if err := s.archive.PutTxTree(ctx, h, p.TxTree); err != nil {
			return nil, errors.Wrap(err, "archiving txs")
		}

		s.vote(h, ri)

		res, err := s.await(ctx, h, report)
		if err != nil {
			return nil, err
		}

		if err := res.Err(); err != nil {
			logging.Component("simulate").WithError(err).WithField("height", ri.Height).WithField("round", ri.Round).Info("round not accepted")
			if err := s.pool.Return(txs); err != nil {
				return nil, errors.Wrap(err, "returning txs to pool")
			}
			continue
		}

		s.parent = h
		s.parentTime = ri.Timestamp
		s.height++

		if s.opts.chainRandomness {
			s.selector.SetSeed(h.Bytes())
		}

		return res, nil
	}

	return nil, errors.Wrapf(consensus.ErrConsensus, "height %d not accepted after %d rounds", s.height, s.opts.maxRounds)
}

// blockTime spaces blocks by the minimum block time so the simulation
// does not have to wait on the wall clock.
func (s *simulation) blockTime(round uint64) time.Time {
	t := s.parentTime.Add(s.manager.Config().MinBlockTime).Add(time.Duration(round) * time.Millisecond)
	return time.UnixMilli(t.UnixMilli())
}

// fillPool stands in for client submissions.
func (s *simulation) fillPool() error {
	for i := 0; i < s.opts.txs; i++ {
		d := make([]byte, 64)
		if _, err := rand.Read(d); err != nil {
			return errors.Wrap(err, "generating tx")
		}

		err := s.pool.AddTx(&mempool.Tx{Ts: time.Now().UnixNano(), Data: d})
		if errors.Is(err, mempool.ErrPoolFull) {
			return nil
		} else if err != nil {
			return err
		}
	}

	return nil
}

func (s *simulation) propose(ri block.RoundInfo, proof *leader.Proof) (*consensus.BlockProposal, [][]byte, error) {
	txs := s.pool.Take(block.MaxBlockTxCount, s.manager.Config().MaxBlockSize)

	tree, err := block.NewTxTree(txs)
	if err != nil {
		return nil, nil, err
	}

	header := &block.Header{
		Version:          block.Version1,
		Height:           ri.Height,
		Round:            ri.Round,
		Parent:           s.parent,
		TxRoot:           tree.Root(),
		ValidatorSetHash: s.setHash,
		CreatedAt:        ri.Timestamp.UnixMilli(),
	}

	p, err := consensus.NewBlockProposal(header, proof, s.keys[proof.LeaderIndex].Bls, tree, ri)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building proposal")
	}

	return p, txs, nil
}

// vote has the first byzantine voters reject and the rest support.
func (s *simulation) vote(h block.Hash, ri block.RoundInfo) {
	for i, idx := range s.voters {
		vt := consensus.VoteSupport
		if i < s.opts.byzantine {
			vt = consensus.VoteReject
		}

		v, err := consensus.NewBlockVote(h, idx, vt, ri, s.keys[idx].Bls)
		if err != nil {
			logging.WithError(err).Error("signing vote")
			continue
		}

		if err := s.manager.CastVote(v); err != nil {
			logging.WithError(err).WithField("validator", idx).Debug("casting vote")
		}
	}
}

// await waits for the sweeper to harvest the result for h, reporting every
// result seen on the way.
func (s *simulation) await(ctx context.Context, h block.Hash, report func(*consensus.VotingResult)) (*consensus.VotingResult, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case batch, ok := <-s.sweeper.Results():
			if !ok {
				return nil, errors.New("sweeper stopped")
			}

			var found *consensus.VotingResult
			for _, r := range batch {
				report(r)
				if r.BlockHash == h {
					found = r
				}
			}

			if found != nil {
				return found, nil
			}
		}
	}
}
