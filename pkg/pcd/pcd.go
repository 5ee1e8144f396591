package pcd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/seqsense/pcgol/pc"

	"plycloud/pkg/cloud"
)

var (
	ErrInvalidPcdFormat      = errors.New("invalid pcd format")
	ErrUnsupportPcdFieldType = errors.New("unsupport pcd field type")
)

const rgbField = "rgb"

// FromCloud lays the cloud out as x y z float fields, a packed rgb field when
// the cloud has colours, and one float field per scalar field. rgb is declared
// F 4 holding 0x00RRGGBB bits, as PCL writes it.
func FromCloud(c *cloud.PointCloud) *pc.PointCloud {
	fields := []string{"x", "y", "z"}
	sizes := []int{4, 4, 4}
	types := []string{"F", "F", "F"}
	withColor := c.HasColors()
	if withColor {
		fields = append(fields, rgbField)
		sizes = append(sizes, 4)
		types = append(types, "F")
	}
	for _, name := range c.FieldNames {
		fields = append(fields, name)
		sizes = append(sizes, 4)
		types = append(types, "F")
	}
	counts := make([]int, len(fields))
	for i := range counts {
		counts[i] = 1
	}

	stride := 4 * len(fields)
	n := c.Len()
	data := make([]byte, n*stride)
	for i, p := range c.Points {
		b := data[i*stride:]
		binary.LittleEndian.PutUint32(b[0:], math.Float32bits(p.X))
		binary.LittleEndian.PutUint32(b[4:], math.Float32bits(p.Y))
		binary.LittleEndian.PutUint32(b[8:], math.Float32bits(p.Z))
		off := 12
		if withColor {
			col := c.Colors[i]
			binary.LittleEndian.PutUint32(b[off:], uint32(col.R)<<16|uint32(col.G)<<8|uint32(col.B))
			off += 4
		}
		for _, name := range c.FieldNames {
			binary.LittleEndian.PutUint32(b[off:], math.Float32bits(float32(c.Fields[name][i])))
			off += 4
		}
	}

	return &pc.PointCloud{
		PointCloudHeader: pc.PointCloudHeader{
			Version:   0.7,
			Fields:    fields,
			Size:      sizes,
			Type:      types,
			Count:     counts,
			Width:     n,
			Height:    1,
			Viewpoint: []float32{0, 0, 0, 1, 0, 0, 0},
		},
		Points: n,
		Data:   data,
	}
}

type fieldLayout struct {
	offset, size int
	typ          string
}

// ToCloud reads x, y, z, an optional rgb/rgba field and every other
// single-count field from a binary point cloud.
func ToCloud(pp *pc.PointCloud) (*cloud.PointCloud, error) {
	if len(pp.Fields) != len(pp.Size) || len(pp.Fields) != len(pp.Type) || len(pp.Fields) != len(pp.Count) {
		return nil, ErrInvalidPcdFormat
	}
	layout := map[string]fieldLayout{}
	var stride int
	for i, name := range pp.Fields {
		layout[name] = fieldLayout{offset: stride, size: pp.Size[i], typ: pp.Type[i]}
		stride += pp.Size[i] * pp.Count[i]
	}
	if stride == 0 || len(pp.Data) < stride*pp.Points {
		return nil, ErrInvalidPcdFormat
	}
	for _, name := range []string{"x", "y", "z"} {
		if _, ok := layout[name]; !ok {
			return nil, fmt.Errorf("%w: missing field %s", ErrInvalidPcdFormat, name)
		}
	}

	color, withColor := layout[rgbField]
	if !withColor {
		color, withColor = layout["rgba"]
	}
	if withColor && color.size != 4 {
		return nil, fmt.Errorf("%w: rgb size %d", ErrUnsupportPcdFieldType, color.size)
	}

	c := &cloud.PointCloud{Points: make([]cloud.Point, 0, pp.Points)}
	var extra []string
	for i, name := range pp.Fields {
		switch name {
		case "x", "y", "z", rgbField, "rgba":
			continue
		}
		if pp.Count[i] != 1 {
			continue
		}
		extra = append(extra, name)
	}
	fieldValues := make(map[string][]float64, len(extra))

	for i := 0; i < pp.Points; i++ {
		b := pp.Data[i*stride : (i+1)*stride]
		var xyz [3]float64
		for j, name := range []string{"x", "y", "z"} {
			v, err := readField(b, layout[name])
			if err != nil {
				return nil, err
			}
			xyz[j] = v
		}
		c.AddPoint(cloud.Point{X: float32(xyz[0]), Y: float32(xyz[1]), Z: float32(xyz[2])})
		if withColor {
			packed := binary.LittleEndian.Uint32(b[color.offset:])
			c.Colors = append(c.Colors, cloud.Color{R: uint8(packed >> 16), G: uint8(packed >> 8), B: uint8(packed)})
		}
		for _, name := range extra {
			v, err := readField(b, layout[name])
			if err != nil {
				return nil, err
			}
			fieldValues[name] = append(fieldValues[name], v)
		}
	}
	for _, name := range extra {
		if err := c.AddField(name, fieldValues[name]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func readField(b []byte, f fieldLayout) (float64, error) {
	b = b[f.offset:]
	switch f.typ + fmt.Sprint(f.size) {
	case "F4":
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case "F8":
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	case "U1":
		return float64(b[0]), nil
	case "U2":
		return float64(binary.LittleEndian.Uint16(b)), nil
	case "U4":
		return float64(binary.LittleEndian.Uint32(b)), nil
	case "I1":
		return float64(int8(b[0])), nil
	case "I2":
		return float64(int16(binary.LittleEndian.Uint16(b))), nil
	case "I4":
		return float64(int32(binary.LittleEndian.Uint32(b))), nil
	}
	return 0, fmt.Errorf("%w: %s%d", ErrUnsupportPcdFieldType, f.typ, f.size)
}

func Encode(w io.Writer, c *cloud.PointCloud) error {
	return pc.Marshal(FromCloud(c), w)
}

func Decode(r io.Reader) (*cloud.PointCloud, error) {
	pp, err := pc.Unmarshal(r)
	if err != nil {
		return nil, err
	}
	return ToCloud(pp)
}
