package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"goqem/app"
	"goqem/domain/circuit"
	"goqem/internal/config"
	"goqem/internal/container"
	"goqem/internal/datagen"
	"goqem/internal/errors"
	"goqem/internal/logging"
	"goqem/internal/training"
)

// rootFlags override the environment for every command
type rootFlags struct {
	envFile  string
	device   string
	seed     uint64
	logLevel string
	logDir   string
	store    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "goqem",
		Short:         "Adversarial quantum error mitigation: dataset generation and GAN training",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&root.envFile, "env-file", "", "Load environment from this file instead of ./.env")
	pf.StringVar(&root.device, "device", config.SupportedDevice, "Compute device (only cpu is supported)")
	pf.Uint64Var(&root.seed, "seed", 1, "Base random seed")
	pf.StringVar(&root.logLevel, "log-level", "info", "Log level: trace|debug|info|warn|error")
	pf.StringVar(&root.logDir, "logdir", "./runs", "Directory for checkpoints, metrics and history")
	pf.StringVar(&root.store, "store", "", "Dataset directory, or a sqlite3:// / postgres:// DSN")

	rootCmd.AddCommand(
		newGenTriplesCmd(root),
		newGenSurrogateCmd(root),
		newPretrainCmd(root),
		newTrainCmd(root),
		newInspectCmd(root),
	)
	return rootCmd
}

// setup loads .env and the environment, applies flags that were set explicitly, validates the
// result and builds the container
func setup(cmd *cobra.Command, root *rootFlags, apply func(cfg *config.Config)) (*container.Container, error) {
	if root.envFile != "" {
		if err := godotenv.Load(root.envFile); err != nil {
			return nil, errors.ConfigInvalid(fmt.Sprintf("failed to load %s: %v", root.envFile, err))
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Runtime.Device = root.device
	}
	if flags.Changed("seed") {
		cfg.Runtime.Seed = root.seed
	}
	if flags.Changed("log-level") {
		cfg.Runtime.LogLevel = root.logLevel
	}
	if flags.Changed("logdir") {
		cfg.Paths.LogDir = root.logDir
	}
	if flags.Changed("store") {
		cfg.Paths.DatasetStore = root.store
	}
	if apply != nil {
		apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	logging.Init(logging.Options{App: "goqem", Level: cfg.Runtime.LogLevel})
	c, err := container.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.InitWithDatabase(cmd.Context()); err != nil {
		return nil, err
	}
	log.Debug().
		Str("device", cfg.Runtime.Device).
		Uint64("seed", cfg.Runtime.Seed).
		Str("logdir", cfg.Paths.LogDir).
		Msg("configuration loaded")
	return c, nil
}

// generationFlags are shared by both generation commands
type generationFlags struct {
	circuit        string
	out            string
	samples        int
	workers        int
	chunkSize      int
	targetQubit    int
	noiseProb      float64
	distribution   string
	observableKind string
}

func (g *generationFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&g.circuit, "circuit", "", "Circuit description (.toml)")
	f.StringVar(&g.out, "out", "", "Output dataset reference")
	f.IntVarP(&g.samples, "samples", "n", 10000, "Number of samples to generate")
	f.IntVar(&g.workers, "workers", 8, "Worker goroutines")
	f.IntVar(&g.chunkSize, "chunk-size", 1000, "Samples per work chunk")
	f.IntVar(&g.targetQubit, "target-qubit", -1, "Qubit the observable acts on (-1 keeps the circuit's)")
	f.Float64Var(&g.noiseProb, "noise-prob", -1, "Depolarizing probability override (-1 keeps the circuit's)")
	f.StringVar(&g.distribution, "distribution", "gaussian", "Matrix entry distribution: gaussian|uniform")
	f.StringVar(&g.observableKind, "observable-kind", "hermitian", "Observable construction: hermitian|psd")
	_ = cmd.MarkFlagRequired("circuit")
	_ = cmd.MarkFlagRequired("out")
}

func (g *generationFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("workers") {
		cfg.Generation.Workers = g.workers
	}
	if f.Changed("chunk-size") {
		cfg.Generation.ChunkSize = g.chunkSize
	}
	if f.Changed("target-qubit") {
		cfg.Generation.TargetQubit = g.targetQubit
	}
	if f.Changed("noise-prob") {
		cfg.Generation.NoiseProb = g.noiseProb
	}
	if f.Changed("distribution") {
		cfg.Generation.Distribution = g.distribution
	}
	if f.Changed("observable-kind") {
		cfg.Generation.ObservableKind = g.observableKind
	}
}

func generationOptions(cfg config.GenerationConfig, sampler datagen.ObservableSampler) datagen.Options {
	opts := datagen.DefaultOptions()
	opts.Workers = cfg.Workers
	opts.ChunkSize = cfg.ChunkSize
	opts.TargetQubit = cfg.TargetQubit
	opts.Sampler = sampler
	if p, ok := cfg.NoiseOverride(); ok {
		noise := circuit.Noise{Kind: circuit.NoiseDepolarizing, Probability: p}
		opts.Noise = &noise
	}
	return opts
}

func newGenTriplesCmd(root *rootFlags) *cobra.Command {
	g := &generationFlags{}
	cmd := &cobra.Command{
		Use:   "gen-triples",
		Short: "Generate (observable, noisy, ideal) training triples for a circuit",
		Long: `Simulate a circuit once ideally and once under noise, then evaluate random normalized
observables against both results.

Example: goqem gen-triples --circuit circuits/swap_mitigate.toml --out train -n 100000 --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(cmd, root, func(cfg *config.Config) { g.apply(cmd, cfg) })
			if err != nil {
				return err
			}
			defer c.Close()

			gc := c.Config.Generation
			sampler := datagen.ObservableSampler{
				Distribution: datagen.Distribution(gc.Distribution),
				Kind:         datagen.ObservableKind(gc.ObservableKind),
				Dim:          2,
			}
			res, err := c.Generation.GenerateTriples(cmd.Context(), app.GenerationRequest{
				Circuit: g.circuit,
				Count:   g.samples,
				Ref:     g.out,
				Options: generationOptions(gc, sampler),
			}, c.Datasets)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	g.register(cmd)
	return cmd
}

func newGenSurrogateCmd(root *rootFlags) *cobra.Command {
	g := &generationFlags{}
	cmd := &cobra.Command{
		Use:   "gen-surrogate",
		Short: "Generate surrogate pretraining samples for a circuit",
		Long: `Draw random mitigation probabilities and observables, and simulate the noisy circuit whose
mitigation slots follow those probabilities. Observables default to normalized A†A with Gaussian
entries unless --distribution or --observable-kind is given.

Example: goqem gen-surrogate --circuit circuits/swap_mitigate.toml --out surrogate_train -n 50000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(cmd, root, func(cfg *config.Config) { g.apply(cmd, cfg) })
			if err != nil {
				return err
			}
			defer c.Close()

			gc := c.Config.Generation
			sampler := datagen.SurrogateSampler()
			if cmd.Flags().Changed("distribution") {
				sampler.Distribution = datagen.Distribution(gc.Distribution)
			}
			if cmd.Flags().Changed("observable-kind") {
				sampler.Kind = datagen.ObservableKind(gc.ObservableKind)
			}
			res, err := c.Generation.GenerateSurrogateSamples(cmd.Context(), app.GenerationRequest{
				Circuit: g.circuit,
				Count:   g.samples,
				Ref:     g.out,
				Options: generationOptions(gc, sampler),
			}, c.Datasets)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	g.register(cmd)
	return cmd
}

// fitFlags are shared by pretrain and train
type fitFlags struct {
	train       string
	val         string
	epochs      int
	batchSize   int
	lr          float64
	hidden      string
	logEvery    int
	prefetch    int
	initialBest float64
}

func (t *fitFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&t.train, "train", "", "Training dataset reference")
	f.StringVar(&t.val, "val", "", "Validation dataset reference")
	f.IntVar(&t.epochs, "epochs", 200, "Number of epochs")
	f.IntVar(&t.batchSize, "batch-size", 128, "Batch size")
	f.Float64Var(&t.lr, "lr", 1e-3, "Learning rate")
	f.StringVar(&t.hidden, "hidden", "64,64", "Hidden layer widths")
	f.IntVar(&t.logEvery, "log-every", 1000, "Log step statistics every N batches")
	f.IntVar(&t.prefetch, "prefetch", 2, "Batches prepared ahead of the training loop")
	f.Float64Var(&t.initialBest, "initial-best", 1.0, "Metric a run must beat before the first checkpoint")
	_ = cmd.MarkFlagRequired("train")
	_ = cmd.MarkFlagRequired("val")
}

func (t *fitFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	tc := &cfg.Training
	if f.Changed("epochs") {
		tc.Epochs = t.epochs
	}
	if f.Changed("batch-size") {
		tc.BatchSize = t.batchSize
	}
	if f.Changed("lr") {
		tc.LR = t.lr
	}
	if f.Changed("log-every") {
		tc.LogEvery = t.logEvery
	}
	if f.Changed("prefetch") {
		tc.Prefetch = t.prefetch
	}
	if f.Changed("initial-best") {
		tc.InitialBestMetric = t.initialBest
	}
	if f.Changed("hidden") {
		hidden, err := config.ParseIntList(t.hidden)
		if err != nil {
			return errors.ConfigInvalid(err.Error())
		}
		tc.HiddenSizes = hidden
	}
	return nil
}

func newPretrainCmd(root *rootFlags) *cobra.Command {
	t := &fitFlags{}
	cmd := &cobra.Command{
		Use:   "pretrain",
		Short: "Fit the surrogate model to surrogate samples",
		Long: `Regress the surrogate on (probabilities, observable) → expectation samples and save the best
weights for adversarial training.

Example: goqem pretrain --train surrogate_train --val surrogate_val --epochs 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var applyErr error
			c, err := setup(cmd, root, func(cfg *config.Config) { applyErr = t.apply(cmd, cfg) })
			if err != nil {
				return err
			}
			defer c.Close()
			if applyErr != nil {
				return applyErr
			}

			tc := c.Config.Training
			h, err := c.Training.Pretrain(cmd.Context(), app.PretrainRequest{
				TrainRef: t.train,
				ValRef:   t.val,
				Hidden:   tc.HiddenSizes,
				Options: training.PretrainOptions{
					BatchSize:         tc.BatchSize,
					Epochs:            tc.Epochs,
					LR:                tc.LR,
					LogEvery:          tc.LogEvery,
					Prefetch:          tc.Prefetch,
					InitialBestMetric: tc.InitialBestMetric,
				},
			}, c.Datasets)
			if err != nil {
				return err
			}
			fmt.Printf("best %.6f after %d epochs, checkpoints at %v\n", h.BestMetric, len(h.Epochs), h.Improved())
			return nil
		},
	}
	t.register(cmd)
	return cmd
}

func newTrainCmd(root *rootFlags) *cobra.Command {
	t := &fitFlags{}
	var circuitRef string
	var numMitigates int
	var surrogateLR, randomFraction float64
	var resume bool

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the mitigation generator adversarially against the discriminator",
		Long: `Load the pretrained surrogate, build fresh generator and discriminator networks and train them
on (observable, noisy, ideal) triples. The generator checkpoint is written whenever the validation
deviation improves.

Example: goqem train --train train --val val --num-mitigates 5 --epochs 200 --batch-size 128`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var applyErr error
			c, err := setup(cmd, root, func(cfg *config.Config) {
				applyErr = t.apply(cmd, cfg)
				f := cmd.Flags()
				if f.Changed("num-mitigates") {
					cfg.Training.NumMitigates = numMitigates
				}
				if f.Changed("surrogate-lr") {
					cfg.Training.SurrogateLR = surrogateLR
				}
				if f.Changed("random-fraction") {
					cfg.Training.RandomFraction = randomFraction
				}
			})
			if err != nil {
				return err
			}
			defer c.Close()
			if applyErr != nil {
				return applyErr
			}

			tc := c.Config.Training
			opts := training.DefaultOptions()
			opts.BatchSize = tc.BatchSize
			opts.Epochs = tc.Epochs
			opts.LR = tc.LR
			opts.SurrogateLR = tc.SurrogateLR
			opts.LogEvery = tc.LogEvery
			opts.Prefetch = tc.Prefetch
			opts.RandomFraction = tc.RandomFraction
			opts.InitialBestMetric = tc.InitialBestMetric

			h, err := c.Training.Train(cmd.Context(), app.TrainRequest{
				TrainRef:     t.train,
				ValRef:       t.val,
				Circuit:      circuitRef,
				NumMitigates: tc.NumMitigates,
				Hidden:       tc.HiddenSizes,
				Options:      opts,
				Resume:       resume,
			}, c.Datasets)
			if err != nil {
				return err
			}
			fmt.Printf("best %.6f after %d epochs, checkpoints at %v\n", h.BestMetric, len(h.Epochs), h.Improved())
			return nil
		},
	}
	t.register(cmd)
	f := cmd.Flags()
	f.StringVar(&circuitRef, "circuit", "", "Circuit description to cross-check mitigation slots against")
	f.IntVar(&numMitigates, "num-mitigates", 0, "Expected number of mitigation gates (0 takes the surrogate's)")
	f.Float64Var(&surrogateLR, "surrogate-lr", 1e-6, "Surrogate fine-tuning learning rate")
	f.Float64Var(&randomFraction, "random-fraction", 0.5, "Share of random observables in generated batches")
	f.BoolVar(&resume, "resume", false, "Continue from the saved checkpoint")
	return cmd
}

func newInspectCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [dataset-ref...]",
		Short: "Describe stored datasets without loading them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := setup(cmd, root, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			for _, ref := range args {
				info, err := c.Datasets.Describe(cmd.Context(), ref)
				if err != nil {
					return err
				}
				if err := printJSON(info); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
