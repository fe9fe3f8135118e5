package state

import "github.com/go-gl/mathgl/mgl64"

// Vec2 is the 2D point/velocity type shared by the world and the wire
// protocol. It marshals to JSON as a two element array.
type Vec2 = mgl64.Vec2

// V builds a vector from its components.
func V(x, y float64) Vec2 {
	return Vec2{x, y}
}

// Clamp limits value to the range [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampToSquare confines p to [0, size] on both axes and reports whether any
// axis had to be adjusted. Points already on the boundary are not clamped.
func ClampToSquare(p Vec2, size float64) (Vec2, bool) {
	x := Clamp(p.X(), 0, size)
	y := Clamp(p.Y(), 0, size)
	return Vec2{x, y}, x != p.X() || y != p.Y()
}

// Within reports whether b lies strictly closer to a than radius.
func Within(a, b Vec2, radius float64) bool {
	d := a.Sub(b)
	return d.Dot(d) < radius*radius
}
