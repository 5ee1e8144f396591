package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"plycloud/internal/config"
	"plycloud/internal/logging"
	"plycloud/pkg/bench"
	"plycloud/pkg/loader"
	"plycloud/pkg/ply"
)

var errMismatch = errors.New("strategies produced different record sets")

var cfg struct {
	config     string
	in         string
	runs       int
	strategies []string
	verify     bool
}

var cmd = &cobra.Command{
	Use:   "plybench",
	Short: "Compare loading a .ply.gz through disk, memory and a stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, err := benchConfig(cmd)
		if err != nil {
			return err
		}
		return run(cmd.Context(), bc)
	},
	SilenceUsage: true,
}

func init() {
	cmd.PersistentFlags().StringVarP(&cfg.config, "config", "c", "", "toml bench config")
	cmd.PersistentFlags().StringVarP(&cfg.in, "in", "i", "", "input .ply.gz file")
	cmd.PersistentFlags().IntVarP(&cfg.runs, "runs", "n", config.DefaultRuns, "runs per strategy")
	cmd.PersistentFlags().StringSliceVarP(&cfg.strategies, "strategy", "s", loader.StrategyNames(), "strategies to compare")
	cmd.PersistentFlags().BoolVar(&cfg.verify, "verify", true, "check that every strategy yields the same records")

	cmd.AddCommand(genCmd)
}

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("plybench failed")
		os.Exit(1)
	}
}

// benchConfig starts from the config file, if any, and applies flags the
// user set explicitly.
func benchConfig(cmd *cobra.Command) (config.BenchConfig, error) {
	bc := config.DefaultBenchConfig()
	if cfg.config != "" {
		var err error
		if bc, err = config.LoadBenchConfig(cfg.config); err != nil {
			return bc, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("in") || bc.Input == "" {
		bc.Input = cfg.in
	}
	if flags.Changed("runs") {
		bc.Runs = cfg.runs
	}
	if flags.Changed("strategy") {
		bc.Strategies = cfg.strategies
	}
	if flags.Changed("verify") {
		bc.Verify = cfg.verify
	}
	return bc, config.ValidateBenchConfig(bc)
}

func run(ctx context.Context, bc config.BenchConfig) error {
	if bc.Verify {
		if err := verify(bc); err != nil {
			return err
		}
	}
	cases := make([]bench.Case, 0, len(bc.Strategies))
	for _, name := range bc.Strategies {
		load, err := loader.Lookup(name)
		if err != nil {
			return err
		}
		cases = append(cases, bench.Case{Name: name, Fn: func() error {
			_, err := load(bc.Input)
			return err
		}})
	}
	log.Info().Str("input", bc.Input).Int("runs", bc.Runs).Strs("strategies", bc.Strategies).Msg("benchmark start")
	results, err := bench.Compare(ctx, bc.Runs, cases...)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Println(r)
	}
	return bench.WriteTable(os.Stdout, results)
}

// verify loads the input once per strategy and requires identical results.
func verify(bc config.BenchConfig) error {
	var (
		first     *ply.Ply
		firstName string
	)
	for _, name := range bc.Strategies {
		load, err := loader.Lookup(name)
		if err != nil {
			return err
		}
		p, err := load(bc.Input)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if first == nil {
			first, firstName = p, name
			for _, e := range p.Elements {
				log.Info().Str("element", e.Name).Int("count", e.Count).Int("properties", len(e.Properties)).Msg("schema")
			}
			continue
		}
		if !reflect.DeepEqual(first, p) {
			return fmt.Errorf("%w: %s vs %s", errMismatch, firstName, name)
		}
	}
	return nil
}
