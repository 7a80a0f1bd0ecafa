package fusion

import "math"

// Center returns the center point of the box.
func (b BoundingBox) Center() (x, y float64) {
	return b.Left + b.Width/2, b.Top + b.Height/2
}

// IsInside reports whether the center of inner lies within outer, edges
// included. It does not test overlap: inner may extend past outer.
// Inputs are not clamped.
func IsInside(inner, outer BoundingBox) bool {
	cx, cy := inner.Center()
	return cx >= outer.Left &&
		cx <= outer.Left+outer.Width &&
		cy >= outer.Top &&
		cy <= outer.Top+outer.Height
}

// CenterDistance is the Euclidean distance between the centers of two boxes.
func CenterDistance(a, b BoundingBox) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return math.Hypot(ax-bx, ay-by)
}
