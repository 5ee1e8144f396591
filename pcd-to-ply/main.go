package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"plycloud/internal/logging"
	"plycloud/pkg/loader"
	"plycloud/pkg/pcd"
	"plycloud/pkg/ply"
)

var cfg struct {
	in     string
	out    string
	format string
	gzip   bool
}

var cmd = &cobra.Command{
	Use:   "pcd-to-ply",
	Short: "Convert every .pcd file in a directory to .ply",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		format, ok := ply.ParseFormat(cfg.format)
		if !ok {
			return fmt.Errorf("unknown ply format %q", cfg.format)
		}
		if cfg.out == "" {
			cfg.out = cfg.in
		}
		return TransDirPcdToPly(cfg.in, cfg.out, format, cfg.gzip)
	},
	SilenceUsage: true,
}

func init() {
	cmd.PersistentFlags().StringVarP(&cfg.in, "in", "i", "", "input dir")
	cmd.PersistentFlags().StringVarP(&cfg.out, "out", "o", "", "output dir")
	cmd.PersistentFlags().StringVarP(&cfg.format, "format", "f", ply.FormatBinaryLittleEndian.String(), "ply format")
	cmd.PersistentFlags().BoolVarP(&cfg.gzip, "gzip", "z", false, "write .ply.gz")

	cmd.MarkPersistentFlagRequired("in")
}

func main() {
	logging.ConfigureRuntime()
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("pcd-to-ply failed")
		os.Exit(1)
	}
}

func TransDirPcdToPly(sourceDir, outDir string, format ply.Format, gz bool) (err error) {
	ds, err := os.ReadDir(sourceDir)
	if err != nil {
		return err
	}
	for _, d := range ds {
		fn := d.Name()
		if d.IsDir() || !strings.EqualFold(filepath.Ext(fn), ".pcd") {
			continue
		}
		src := filepath.Join(sourceDir, fn)
		out := filepath.Join(outDir, strings.TrimSuffix(fn, filepath.Ext(fn))+".ply")
		if gz {
			out += ".gz"
		}
		if err = transFile(src, out, format, gz); err != nil {
			return fmt.Errorf("%s: %w", src, err)
		}
		log.Info().Str("src", src).Str("out", out).Msg("TransPcdToPly")
	}
	return nil
}

func transFile(src, out string, format ply.Format, gz bool) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	c, err := pcd.Decode(in)
	if err != nil {
		return err
	}

	plyf, err := os.Create(out)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := plyf.Close(); err == nil {
			err = cerr
		}
	}()
	if gz {
		return loader.Gzip(plyf, c.ToPly(format))
	}
	return ply.Encode(plyf, c.ToPly(format))
}
