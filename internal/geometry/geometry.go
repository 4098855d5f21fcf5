// Package geometry computes where connector lines meet node silhouettes.
package geometry

import "math"

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned bounding box with a top-left origin.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Shape is the visual silhouette of a node.
type Shape int

const (
	ShapeRect Shape = iota
	ShapeRoundedRect
	ShapeDiamond
	ShapeParallelogram
)

func (s Shape) String() string {
	switch s {
	case ShapeRoundedRect:
		return "rounded_rect"
	case ShapeDiamond:
		return "diamond"
	case ShapeParallelogram:
		return "parallelogram"
	default:
		return "rect"
	}
}

// ParallelogramSkew is the horizontal slant of a parallelogram as a fraction of its width.
const ParallelogramSkew = 0.2

// Intersect returns the point where the ray leaving from toward toward crosses
// the silhouette of shape drawn in box. The ray is anchored at the box center;
// from only fixes its direction. Coincident points yield the center.
func Intersect(shape Shape, box Box, from, toward Point) Point {
	c := box.Center()
	dx := toward.X - from.X
	dy := toward.Y - from.Y
	length := math.Hypot(dx, dy)
	if length == 0 || box.Width <= 0 || box.Height <= 0 {
		return c
	}
	nx, ny := dx/length, dy/length
	hw, hh := box.Width/2, box.Height/2

	var t float64
	switch shape {
	case ShapeDiamond:
		// |x|/hw + |y|/hh = 1 along the ray.
		t = hw * hh / (math.Abs(nx)*hh + math.Abs(ny)*hw)
	case ShapeParallelogram:
		if math.Abs(nx)*hh > math.Abs(ny)*hw {
			skew := box.Width * ParallelogramSkew
			t = (hw - sign(nx)*skew*ny) / math.Abs(nx)
		} else {
			t = hh / math.Abs(ny)
		}
	default:
		return boxIntersect(box, c, nx, ny)
	}
	return Point{X: c.X + nx*t, Y: c.Y + ny*t}
}

// boxIntersect exits through the vertical side the ray heads toward and falls
// back to the horizontal side when that exit lies outside the box.
func boxIntersect(box Box, c Point, nx, ny float64) Point {
	top, bottom := box.Y, box.Y+box.Height
	if nx != 0 {
		x := box.X
		if nx > 0 {
			x = box.X + box.Width
		}
		y := c.Y + ny*(x-c.X)/nx
		if y >= top && y <= bottom {
			return Point{X: x, Y: y}
		}
	}
	y := top
	if ny > 0 {
		y = bottom
	}
	return Point{X: c.X + nx*(y-c.Y)/ny, Y: y}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
