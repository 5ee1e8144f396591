package main

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"plycloud/internal/logging"
	"plycloud/pkg/cloud"
	"plycloud/pkg/loader"
	"plycloud/pkg/pcd"
)

var cfg struct {
	in  string
	out string
}

var cmd = &cobra.Command{
	Use:   "ply-to-pcd",
	Short: "Convert .ply and .ply.gz clouds in a directory or zip archive to .pcd",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if strings.HasSuffix(strings.ToLower(cfg.in), ".zip") {
			return tranZipFile()
		}
		return tranPlyFiles()
	},
	SilenceUsage: true,
}

func init() {
	cmd.PersistentFlags().StringVarP(&cfg.in, "in", "i", "", "input zipFile or dir")
	cmd.PersistentFlags().StringVarP(&cfg.out, "out", "o", "", "output zipFile or dir")

	cmd.MarkPersistentFlagRequired("in")
}

func main() {
	logging.ConfigureRuntime()
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("ply-to-pcd failed")
		os.Exit(1)
	}
}

func tranPlyFiles() (err error) {
	if cfg.out == "" {
		cfg.out = cfg.in
	}
	return TransDirPlyToPcd(cfg.in, cfg.out)
}

func tranZipFile() (err error) {
	if cfg.out == "" {
		base := filepath.Base(cfg.in)
		ext := filepath.Ext(base)
		cfg.out = strings.TrimSuffix(base, ext) + "-pcd" + ext
	}
	if cfg.out == cfg.in {
		return errors.New("input file can not be the same as output file")
	}
	if err = TransZipFile(cfg.in, cfg.out); err != nil {
		return err
	}
	log.Info().Str("in", cfg.in).Str("out", cfg.out).Msg("converted archive")
	return nil
}

// TransZipFile writes the converted archive of src to dst. dst is removed
// when the conversion fails.
func TransZipFile(src, dst string) (err error) {
	inZip, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer inZip.Close()
	outFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := outFile.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()
	return TransZip(&inZip.Reader, outFile)
}

// TransZip converts every PLY entry of in to PCD and copies all other
// entries to out unchanged.
func TransZip(in *zip.Reader, out io.Writer) (err error) {
	outZip := zip.NewWriter(out)
	defer func() {
		if err != nil {
			outZip.Close()
		}
	}()
	for _, f := range in.File {
		if loader.IsPly(f.Name) {
			err = func() (err error) {
				r, err := f.Open()
				if err != nil {
					return err
				}
				defer r.Close()
				w, err := outZip.Create(pcdName(f.Name))
				if err != nil {
					return err
				}
				return convert(r, isGz(f.Name), w)
			}()
			if err != nil {
				return err
			}
			continue
		}
		w, err := outZip.CreateRaw(&f.FileHeader)
		if err != nil {
			return err
		}
		r, err := f.OpenRaw()
		if err != nil {
			return err
		}
		if _, err = io.Copy(w, r); err != nil {
			return err
		}
	}
	return outZip.Close()
}

func TransDirPlyToPcd(sourceDir, outDir string) (err error) {
	ds, err := os.ReadDir(sourceDir)
	if err != nil {
		return err
	}
	for _, d := range ds {
		fn := d.Name()
		if d.IsDir() || !loader.IsPly(fn) {
			continue
		}
		src := filepath.Join(sourceDir, fn)
		out := filepath.Join(outDir, pcdName(fn))
		if err = transFile(src, out); err != nil {
			return err
		}
		log.Info().Str("src", src).Str("out", out).Msg("TransPlyToPcd")
	}
	return nil
}

func transFile(src, out string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	pcdf, err := os.Create(out)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := pcdf.Close(); err == nil {
			err = cerr
		}
	}()
	return convert(in, isGz(src), pcdf)
}

func convert(r io.Reader, gz bool, w io.Writer) error {
	p, err := loader.Decode(r, gz)
	if err != nil {
		return err
	}
	c, err := cloud.FromPly(p)
	if err != nil {
		return err
	}
	return pcd.Encode(w, c)
}

func isGz(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".gz")
}

func pcdName(name string) string {
	if isGz(name) {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".pcd"
}
