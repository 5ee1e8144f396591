package cloud

import "math"

// XYArea estimates the footprint on the XY plane by counting occupied grid
// cells. precision is cells per unit: larger is finer, 1 gives unit cells.
func (p *PointCloud) XYArea(precision float32) float32 {
	if precision <= 0 {
		return 0
	}
	cells := make(map[[2]int]struct{})
	for _, pt := range p.Points {
		x := int(math.Floor(float64(pt.X * precision)))
		y := int(math.Floor(float64(pt.Y * precision)))
		cells[[2]int{x, y}] = struct{}{}
	}
	return float32(len(cells)) / precision / precision
}

// Box is an oriented box whose base is parallel to the XY plane, rotated
// by Yaw radians around Z.
type Box struct {
	CX, CY, CZ            float32
	Length, Width, Height float32
	Yaw                   float32
}

// CountInBox returns how many points fall inside b.
func (p *PointCloud) CountInBox(b Box) int {
	var count int
	sin, cos := math.Sincos(float64(b.Yaw))
	cx, cy := float64(b.CX), float64(b.CY)
	halfL, halfW := float64(b.Length)/2, float64(b.Width)/2
	for _, pt := range p.Points {
		if pt.Z > b.CZ+b.Height/2 || pt.Z < b.CZ-b.Height/2 {
			continue
		}
		dx, dy := float64(pt.X)-cx, float64(pt.Y)-cy
		// distance along the heading, then across it
		along := math.Abs(dx*cos + dy*sin)
		across := math.Abs(-dx*sin + dy*cos)
		if along > halfL || across > halfW {
			continue
		}
		count++
	}
	return count
}
