package geometry

import "math"

// Orientation is the one-time classification of a connector.
type Orientation string

const (
	Horizontal Orientation = "horizontal"
	Vertical   Orientation = "vertical"
)

// Classify reports Horizontal when the centers are farther apart on x than on y.
func Classify(source, target Box) Orientation {
	s, t := source.Center(), target.Center()
	if math.Abs(t.X-s.X) > math.Abs(t.Y-s.Y) {
		return Horizontal
	}
	return Vertical
}

// Endpoint is a positioned silhouette at one end of a connector.
type Endpoint struct {
	Shape Shape
	Box   Box
}

// Path is a connector drawn between two silhouettes.
type Path struct {
	From Point `json:"from"`
	To   Point `json:"to"`
	Mid  Point `json:"mid"`
}

// Route computes the boundary points of a straight connector between two
// nodes and the midpoint where its label and hit target sit.
func Route(source, target Endpoint) Path {
	sc, tc := source.Box.Center(), target.Box.Center()
	from := Intersect(source.Shape, source.Box, sc, tc)
	to := Intersect(target.Shape, target.Box, tc, sc)
	return Path{
		From: from,
		To:   to,
		Mid:  Point{X: (from.X + to.X) / 2, Y: (from.Y + to.Y) / 2},
	}
}
