package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const eps = 1e-9

func relative(p Point, b Box) Point {
	c := b.Center()
	return Point{X: p.X - c.X, Y: p.Y - c.Y}
}

func TestIntersect_RectAxisRays(t *testing.T) {
	box := Box{X: 100, Y: 50, Width: 140, Height: 60}
	c := box.Center()

	tests := []struct {
		name   string
		toward Point
		want   Point
	}{
		{"right", Point{X: c.X + 1, Y: c.Y}, Point{X: 70, Y: 0}},
		{"left", Point{X: c.X - 500, Y: c.Y}, Point{X: -70, Y: 0}},
		{"down", Point{X: c.X, Y: c.Y + 10}, Point{X: 0, Y: 30}},
		{"up", Point{X: c.X, Y: c.Y - 10}, Point{X: 0, Y: -30}},
	}
	for _, shape := range []Shape{ShapeRect, ShapeRoundedRect} {
		for _, tt := range tests {
			t.Run(shape.String()+"/"+tt.name, func(t *testing.T) {
				got := relative(Intersect(shape, box, c, tt.toward), box)
				assert.InDelta(t, tt.want.X, got.X, eps)
				assert.InDelta(t, tt.want.Y, got.Y, eps)
			})
		}
	}
}

func TestIntersect_RectFallsBackToHorizontalEdge(t *testing.T) {
	box := Box{Width: 100, Height: 40}
	c := box.Center()
	// Steep ray: exits through the bottom edge.
	got := relative(Intersect(ShapeRect, box, c, Point{X: c.X + 10, Y: c.Y + 40}), box)
	assert.InDelta(t, 5, got.X, eps)
	assert.InDelta(t, 20, got.Y, eps)
}

func TestIntersect_DiamondDiagonal(t *testing.T) {
	box := Box{Width: 160, Height: 100}
	c := box.Center()

	axis := relative(Intersect(ShapeDiamond, box, c, Point{X: c.X + 1, Y: c.Y}), box)
	assert.InDelta(t, 80, axis.X, eps)
	assert.InDelta(t, 0, axis.Y, eps)

	// 45 degree ray: |x|/80 + |y|/50 = 1 with x == y.
	got := relative(Intersect(ShapeDiamond, box, c, Point{X: c.X + 1, Y: c.Y + 1}), box)
	want := 80.0 * 50.0 / 130.0
	assert.InDelta(t, want, got.X, 1e-6)
	assert.InDelta(t, want, got.Y, 1e-6)

	rect := relative(Intersect(ShapeRect, box, c, Point{X: c.X + 1, Y: c.Y + 1}), box)
	assert.NotEqual(t, rect, got)
}

func TestIntersect_ParallelogramSkewsHorizontalExit(t *testing.T) {
	box := Box{Width: 150, Height: 60}
	c := box.Center()

	right := relative(Intersect(ShapeParallelogram, box, c, Point{X: c.X + 10, Y: c.Y}), box)
	assert.InDelta(t, 75, right.X, eps)
	assert.InDelta(t, 0, right.Y, eps)

	down := relative(Intersect(ShapeParallelogram, box, c, Point{X: c.X, Y: c.Y + 10}), box)
	assert.InDelta(t, 0, down.X, eps)
	assert.InDelta(t, 30, down.Y, eps)

	// Shallow ray heading right and down lands short of the box edge.
	slanted := relative(Intersect(ShapeParallelogram, box, c, Point{X: c.X + 100, Y: c.Y + 10}), box)
	assert.Less(t, slanted.X, 75.0)
	assert.Greater(t, slanted.Y, 0.0)
}

func TestIntersect_DegenerateReturnsCenter(t *testing.T) {
	box := Box{X: 10, Y: 10, Width: 80, Height: 40}
	c := box.Center()
	for _, shape := range []Shape{ShapeRect, ShapeRoundedRect, ShapeDiamond, ShapeParallelogram} {
		assert.Equal(t, c, Intersect(shape, box, c, c), shape.String())
	}
}

func TestClassify(t *testing.T) {
	a := Box{X: 0, Y: 0, Width: 100, Height: 50}
	assert.Equal(t, Horizontal, Classify(a, Box{X: 300, Y: 40, Width: 100, Height: 50}))
	assert.Equal(t, Vertical, Classify(a, Box{X: 40, Y: 300, Width: 100, Height: 50}))
	assert.Equal(t, Vertical, Classify(a, a))
}

func TestRoute(t *testing.T) {
	src := Endpoint{Shape: ShapeRect, Box: Box{X: 0, Y: 0, Width: 100, Height: 50}}
	dst := Endpoint{Shape: ShapeRect, Box: Box{X: 300, Y: 0, Width: 100, Height: 50}}

	p := Route(src, dst)
	assert.InDelta(t, 100, p.From.X, eps)
	assert.InDelta(t, 25, p.From.Y, eps)
	assert.InDelta(t, 300, p.To.X, eps)
	assert.InDelta(t, 25, p.To.Y, eps)
	assert.InDelta(t, 200, p.Mid.X, eps)
	assert.InDelta(t, 25, p.Mid.Y, eps)
}
