package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"plycloud/pkg/cloud"
	"plycloud/pkg/loader"
	"plycloud/pkg/ply"
)

var genCfg struct {
	out    string
	points int
	fields int
	format string
	seed   int64
}

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Write a synthetic coloured point cloud with scalar fields",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, ok := ply.ParseFormat(genCfg.format)
		if !ok {
			return fmt.Errorf("unknown format %q", genCfg.format)
		}
		c, err := synthetic(genCfg.points, genCfg.fields, genCfg.seed)
		if err != nil {
			return err
		}
		return writeCloud(genCfg.out, c.ToPly(format))
	},
}

func init() {
	genCmd.Flags().StringVarP(&genCfg.out, "out", "o", "example_pointcloud.ply.gz", "output .ply or .ply.gz")
	genCmd.Flags().IntVarP(&genCfg.points, "points", "p", 1_000_000, "number of points")
	genCmd.Flags().IntVar(&genCfg.fields, "fields", 4, "number of extra scalar fields")
	genCmd.Flags().StringVar(&genCfg.format, "format", ply.FormatBinaryLittleEndian.String(), "ply format")
	genCmd.Flags().Int64Var(&genCfg.seed, "seed", 1, "random seed")
}

// synthetic scatters points over a 100x100 patch with a gentle height
// profile, random colours and uniform scalar fields.
func synthetic(points, fields int, seed int64) (*cloud.PointCloud, error) {
	rng := rand.New(rand.NewSource(seed))
	c := &cloud.PointCloud{
		Points: make([]cloud.Point, 0, points),
		Colors: make([]cloud.Color, 0, points),
	}
	for i := 0; i < points; i++ {
		x, y := rng.Float64()*100, rng.Float64()*100
		z := 2*math.Sin(x/10) + math.Cos(y/7)
		c.AddPoint(cloud.Point{X: float32(x), Y: float32(y), Z: float32(z)})
		c.Colors = append(c.Colors, cloud.Color{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256))})
	}
	for f := 0; f < fields; f++ {
		values := make([]float64, points)
		for i := range values {
			values[i] = rng.Float64()
		}
		if err := c.AddField(fmt.Sprintf("scalar_%d", f), values); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func writeCloud(path string, p *ply.Ply) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		err = loader.Gzip(f, p)
	} else {
		err = ply.Encode(f, p)
	}
	if err != nil {
		return err
	}
	log.Info().Str("out", path).Int("points", len(p.Records["vertex"])).Str("format", p.Format.String()).Msg("wrote cloud")
	return nil
}
