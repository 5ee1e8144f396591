package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plycloud/internal/logging"
	"plycloud/pkg/cloud"
	"plycloud/pkg/loader"
	"plycloud/pkg/pcd"
	"plycloud/pkg/ply"
)

func TestTransDirPcdToPly(t *testing.T) {
	logging.ConfigureTests()
	src := t.TempDir()
	c := &cloud.PointCloud{Points: []cloud.Point{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}}
	require.NoError(t, c.AddField("intensity", []float64{0.5, 0.75}))

	f, err := os.Create(filepath.Join(src, "scan.pcd"))
	require.NoError(t, err)
	require.NoError(t, pcd.Encode(f, c))
	require.NoError(t, f.Close())

	for _, gz := range []bool{false, true} {
		out := t.TempDir()
		require.NoError(t, TransDirPcdToPly(src, out, ply.FormatASCII, gz))

		name := "scan.ply"
		if gz {
			name += ".gz"
		}
		p, err := loader.Open(filepath.Join(out, name))
		require.NoError(t, err)
		assert.Equal(t, ply.FormatASCII, p.Format)

		back, err := cloud.FromPly(p)
		require.NoError(t, err)
		assert.Equal(t, c.Points, back.Points)
		assert.Equal(t, c.Fields, back.Fields)
	}
}

func TestTransDirPcdToPlyBadInput(t *testing.T) {
	logging.ConfigureTests()
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "broken.pcd"), []byte("not a pcd"), 0o644))
	assert.Error(t, TransDirPcdToPly(src, t.TempDir(), ply.FormatASCII, false))
}
