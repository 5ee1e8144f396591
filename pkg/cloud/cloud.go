package cloud

import (
	"errors"
	"fmt"
	"math"

	"plycloud/pkg/ply"
)

var (
	ErrNoVertex     = errors.New("ply has no vertex element")
	ErrMissingField = errors.New("vertex element is missing a coordinate")
	ErrBadTriangle  = errors.New("face has fewer than 3 indices")
)

type Point struct {
	X, Y, Z float32
}

type Color struct {
	R, G, B uint8
}

// PointCloud splits a vertex table into positions, optional colours and the
// remaining per-point scalar fields. Triangles come from a face element.
type PointCloud struct {
	Points []Point
	Colors []Color

	FieldNames []string
	Fields     map[string][]float64

	Triangles [][3]int32
}

func (p *PointCloud) AddPoint(pt Point) {
	p.Points = append(p.Points, pt)
}

func (p *PointCloud) Len() int {
	return len(p.Points)
}

func (p *PointCloud) HasColors() bool {
	return len(p.Colors) > 0 && len(p.Colors) == len(p.Points)
}

// AddField attaches a scalar field; values must have one entry per point.
func (p *PointCloud) AddField(name string, values []float64) error {
	if len(values) != len(p.Points) {
		return fmt.Errorf("field %s has %d values for %d points", name, len(values), len(p.Points))
	}
	if p.Fields == nil {
		p.Fields = map[string][]float64{}
	}
	if _, ok := p.Fields[name]; !ok {
		p.FieldNames = append(p.FieldNames, name)
	}
	p.Fields[name] = values
	return nil
}

var (
	positionNames = []string{"x", "y", "z"}
	colorNames    = []string{"red", "green", "blue"}
	faceListNames = []string{"vertex_index", "vertex_indices"}
)

// FromPly builds a point cloud from the vertex element of p. Colours are
// taken when red, green and blue are all present; every other scalar
// property becomes a field.
func FromPly(p *ply.Ply) (*PointCloud, error) {
	vertex, ok := p.Element("vertex")
	if !ok {
		return nil, ErrNoVertex
	}
	for _, name := range positionNames {
		if prop, ok := vertex.Property(name); !ok || prop.IsList {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	withColor := true
	for _, name := range colorNames {
		if prop, ok := vertex.Property(name); !ok || prop.IsList {
			withColor = false
		}
	}

	records := p.Records["vertex"]
	c := &PointCloud{
		Points: make([]Point, 0, len(records)),
		Fields: map[string][]float64{},
	}
	var fieldProps []string
	for _, prop := range vertex.Properties {
		if prop.IsList || isOneOf(prop.Name, positionNames) || (withColor && isOneOf(prop.Name, colorNames)) {
			continue
		}
		fieldProps = append(fieldProps, prop.Name)
		c.FieldNames = append(c.FieldNames, prop.Name)
		c.Fields[prop.Name] = make([]float64, 0, len(records))
	}
	if withColor {
		c.Colors = make([]Color, 0, len(records))
	}

	for i, rec := range records {
		var xyz [3]float64
		for j, name := range positionNames {
			v, err := number(rec[name])
			if err != nil {
				return nil, fmt.Errorf("vertex %d %s: %w", i, name, err)
			}
			xyz[j] = v
		}
		c.AddPoint(Point{X: float32(xyz[0]), Y: float32(xyz[1]), Z: float32(xyz[2])})

		if withColor {
			var rgb [3]uint8
			for j, name := range colorNames {
				v, err := number(rec[name])
				if err != nil {
					return nil, fmt.Errorf("vertex %d %s: %w", i, name, err)
				}
				rgb[j] = clampByte(v)
			}
			c.Colors = append(c.Colors, Color{R: rgb[0], G: rgb[1], B: rgb[2]})
		}
		for _, name := range fieldProps {
			v, err := number(rec[name])
			if err != nil {
				return nil, fmt.Errorf("vertex %d %s: %w", i, name, err)
			}
			c.Fields[name] = append(c.Fields[name], v)
		}
	}

	if err := c.readTriangles(p); err != nil {
		return nil, err
	}
	return c, nil
}

func (p *PointCloud) readTriangles(src *ply.Ply) error {
	face, ok := src.Element("face")
	if !ok {
		return nil
	}
	var list string
	for _, name := range faceListNames {
		if prop, ok := face.Property(name); ok && prop.IsList {
			list = name
			break
		}
	}
	if list == "" {
		return nil
	}
	for i, rec := range src.Records["face"] {
		items, _ := rec[list].([]any)
		if len(items) < 3 {
			return fmt.Errorf("face %d: %w", i, ErrBadTriangle)
		}
		var tri [3]int32
		for j := range tri {
			v, err := number(items[j])
			if err != nil {
				return fmt.Errorf("face %d: %w", i, err)
			}
			tri[j] = int32(v)
		}
		p.Triangles = append(p.Triangles, tri)
	}
	return nil
}

// ToPly lays the cloud out as x, y, z float32, red, green, blue uint8 and
// one float32 property per field, plus a face element when triangles exist.
func (p *PointCloud) ToPly(format ply.Format) *ply.Ply {
	props := []ply.Property{
		{Name: "x", Type: ply.Float32},
		{Name: "y", Type: ply.Float32},
		{Name: "z", Type: ply.Float32},
	}
	withColor := p.HasColors()
	if withColor {
		for _, name := range colorNames {
			props = append(props, ply.Property{Name: name, Type: ply.Uint8})
		}
	}
	for _, name := range p.FieldNames {
		props = append(props, ply.Property{Name: name, Type: ply.Float32})
	}

	records := make([]ply.Record, len(p.Points))
	for i, pt := range p.Points {
		rec := ply.Record{"x": pt.X, "y": pt.Y, "z": pt.Z}
		if withColor {
			rec["red"], rec["green"], rec["blue"] = p.Colors[i].R, p.Colors[i].G, p.Colors[i].B
		}
		for _, name := range p.FieldNames {
			rec[name] = float32(p.Fields[name][i])
		}
		records[i] = rec
	}

	out := &ply.Ply{
		Header: ply.Header{
			Format:  format,
			Version: "1.0",
			Elements: []ply.Element{
				{Name: "vertex", Count: len(records), Properties: props},
			},
		},
		Records: map[string][]ply.Record{"vertex": records},
	}
	if len(p.Triangles) > 0 {
		faces := make([]ply.Record, len(p.Triangles))
		for i, tri := range p.Triangles {
			faces[i] = ply.Record{"vertex_indices": []any{tri[0], tri[1], tri[2]}}
		}
		out.Elements = append(out.Elements, ply.Element{
			Name:  "face",
			Count: len(faces),
			Properties: []ply.Property{
				{Name: "vertex_indices", Type: ply.Int32, IsList: true, CountType: ply.Uint8},
			},
		})
		out.Records["face"] = faces
	}
	return out
}

func (p *PointCloud) Bounds() (min, max Point) {
	if len(p.Points) == 0 {
		return
	}
	min, max = p.Points[0], p.Points[0]
	for _, pt := range p.Points[1:] {
		min.X, max.X = float32(math.Min(float64(min.X), float64(pt.X))), float32(math.Max(float64(max.X), float64(pt.X)))
		min.Y, max.Y = float32(math.Min(float64(min.Y), float64(pt.Y))), float32(math.Max(float64(max.Y), float64(pt.Y)))
		min.Z, max.Z = float32(math.Min(float64(min.Z), float64(pt.Z))), float32(math.Max(float64(max.Z), float64(pt.Z)))
	}
	return
}

func number(v any) (float64, error) {
	switch x := v.(type) {
	case int8:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case nil:
		return 0, errors.New("missing value")
	}
	return 0, fmt.Errorf("unexpected value type %T", v)
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(math.Round(v))
}

func isOneOf(s string, set []string) bool {
	for _, v := range set {
		if s == v {
			return true
		}
	}
	return false
}
