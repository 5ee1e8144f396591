package cloud

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plycloud/pkg/ply"
)

const coloredMesh = `ply
format ascii 1.0
element vertex 4
property float x
property float y
property float z
property uchar red
property uchar green
property uchar blue
property float intensity
property int label
element face 2
property list uchar int vertex_index
end_header
0 0 0 255 0 0 0.5 1
1 0 0 0 255 0 0.25 1
1 1 0 0 0 255 1 2
0 1 0 10 20 30 0 2
3 0 1 2
3 0 2 3
`

func mustDecode(t *testing.T, s string) *ply.Ply {
	t.Helper()
	p, err := ply.Decode(strings.NewReader(s))
	require.NoError(t, err)
	return p
}

func TestFromPlyMesh(t *testing.T) {
	c, err := FromPly(mustDecode(t, coloredMesh))
	require.NoError(t, err)

	assert.Equal(t, 4, c.Len())
	assert.Equal(t, Point{X: 1, Y: 1, Z: 0}, c.Points[2])
	require.True(t, c.HasColors())
	assert.Equal(t, Color{R: 10, G: 20, B: 30}, c.Colors[3])
	assert.Equal(t, []string{"intensity", "label"}, c.FieldNames)
	assert.Equal(t, []float64{0.5, 0.25, 1, 0}, c.Fields["intensity"])
	assert.Equal(t, []float64{1, 1, 2, 2}, c.Fields["label"])
	assert.Equal(t, [][3]int32{{0, 1, 2}, {0, 2, 3}}, c.Triangles)
}

func TestFromPlyWithoutColor(t *testing.T) {
	src := "ply\nformat ascii 1.0\nelement vertex 1\nproperty double x\nproperty double y\nproperty double z\nproperty uchar red\nend_header\n1 2 3 9\n"
	c, err := FromPly(mustDecode(t, src))
	require.NoError(t, err)
	assert.False(t, c.HasColors())
	// a lone red channel is an ordinary field
	assert.Equal(t, []string{"red"}, c.FieldNames)
	assert.Equal(t, []float64{9}, c.Fields["red"])
}

func TestFromPlyErrors(t *testing.T) {
	_, err := FromPly(mustDecode(t, "ply\nformat ascii 1.0\nelement face 0\nend_header\n"))
	assert.ErrorIs(t, err, ErrNoVertex)

	_, err = FromPly(mustDecode(t, "ply\nformat ascii 1.0\nelement vertex 0\nproperty float x\nproperty float y\nend_header\n"))
	assert.ErrorIs(t, err, ErrMissingField)

	bad := strings.Replace(coloredMesh, "3 0 2 3\n", "2 0 2\n", 1)
	_, err = FromPly(mustDecode(t, bad))
	assert.ErrorIs(t, err, ErrBadTriangle)
}

func TestToPlyRoundTrip(t *testing.T) {
	c, err := FromPly(mustDecode(t, coloredMesh))
	require.NoError(t, err)

	for _, format := range []ply.Format{ply.FormatASCII, ply.FormatBinaryLittleEndian} {
		var buf bytes.Buffer
		require.NoError(t, ply.Encode(&buf, c.ToPly(format)))
		back, err := ply.Decode(&buf)
		require.NoError(t, err)

		vertex, ok := back.Element("vertex")
		require.True(t, ok)
		prop, _ := vertex.Property("label")
		assert.Equal(t, ply.Float32, prop.Type)
		prop, _ = vertex.Property("green")
		assert.Equal(t, ply.Uint8, prop.Type)

		again, err := FromPly(back)
		require.NoError(t, err)
		assert.Equal(t, c, again)
	}
}

func TestAddField(t *testing.T) {
	c := &PointCloud{}
	c.AddPoint(Point{X: 1})
	c.AddPoint(Point{X: 2})
	require.NoError(t, c.AddField("t", []float64{1, 2}))
	require.NoError(t, c.AddField("t", []float64{3, 4}))
	assert.Equal(t, []string{"t"}, c.FieldNames)
	assert.Error(t, c.AddField("short", []float64{1}))
}

func TestBounds(t *testing.T) {
	c := &PointCloud{Points: []Point{{1, -2, 3}, {-1, 5, 0}, {0, 0, 9}}}
	min, max := c.Bounds()
	assert.Equal(t, Point{-1, -2, 0}, min)
	assert.Equal(t, Point{1, 5, 9}, max)
}

func TestXYArea(t *testing.T) {
	c := &PointCloud{}
	for x := 0; x < 10; x++ {
		for y := 0; y < 5; y++ {
			c.AddPoint(Point{X: float32(x) + 0.5, Y: float32(y) + 0.5, Z: float32(x * y)})
		}
	}
	assert.InDelta(t, 50, c.XYArea(1), 1e-6)
	// finer cells only count the occupied quarter of each unit square
	assert.InDelta(t, 12.5, c.XYArea(2), 1e-6)
	assert.Zero(t, c.XYArea(0))
}

func TestCountInBox(t *testing.T) {
	c := &PointCloud{Points: []Point{
		{0, 0, 0},
		{1.9, 0, 0},
		{0, 0.9, 0},
		{0, 1.5, 0},
		{0, 0, 3},
	}}
	box := Box{Length: 4, Width: 2, Height: 2}
	assert.Equal(t, 3, c.CountInBox(box))

	// rotated a quarter turn the long side runs along Y
	box.Yaw = math.Pi / 2
	assert.Equal(t, 3, c.CountInBox(box))
	box.Length = 2
	assert.Equal(t, 2, c.CountInBox(box))
}
