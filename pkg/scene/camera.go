package scene

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Camera is a perspective camera looking from Position at FocalPoint
type Camera struct {
	Position   r3.Vec
	FocalPoint r3.Vec
	ViewUp     r3.Vec

	// ViewAngle is the full vertical field of view in degrees
	ViewAngle float64
}

// NewCamera returns a camera on the +z axis looking at the origin
func NewCamera() Camera {
	return Camera{
		Position:   r3.Vec{Z: 1},
		FocalPoint: r3.Vec{},
		ViewUp:     r3.Vec{Y: 1},
		ViewAngle:  30,
	}
}

// Direction is the unit vector from the position to the focal point
func (c *Camera) Direction() r3.Vec {
	d := r3.Sub(c.FocalPoint, c.Position)
	if r3.Norm(d) == 0 {
		return r3.Vec{Z: -1}
	}
	return r3.Unit(d)
}

// Distance is how far the camera sits from its focal point
func (c *Camera) Distance() float64 {
	return r3.Norm(r3.Sub(c.FocalPoint, c.Position))
}

// Reset keeps the viewing direction and moves the camera so the sphere
// around box fills the view angle
func (c *Camera) Reset(box r3.Box) {
	center := r3.Scale(0.5, r3.Add(box.Min, box.Max))
	radius := 0.5 * r3.Norm(r3.Sub(box.Max, box.Min))
	if radius == 0 {
		radius = 0.5
	}

	angle := c.ViewAngle
	if angle <= 0 || angle >= 180 {
		angle = 30
	}
	distance := radius / math.Sin(angle*math.Pi/360)

	dir := c.Direction()
	c.FocalPoint = center
	c.Position = r3.Sub(center, r3.Scale(distance, dir))
}

// Basis returns the camera's right, up and forward unit vectors
func (c *Camera) Basis() (right, up, forward r3.Vec) {
	forward = c.Direction()
	right = r3.Cross(forward, c.ViewUp)
	if r3.Norm(right) == 0 {
		// View-up parallel to the view direction; pick any perpendicular
		right = r3.Cross(forward, r3.Vec{X: 1})
		if r3.Norm(right) == 0 {
			right = r3.Cross(forward, r3.Vec{Y: 1})
		}
	}
	right = r3.Unit(right)
	up = r3.Cross(right, forward)
	return right, up, forward
}

// Project maps p to normalized screen coordinates in [-1, 1] for points in
// the view cone, with y pointing up, and returns its depth along the view
// direction. ok is false for points behind the camera.
func (c *Camera) Project(p r3.Vec, aspect float64) (x, y, depth float64, ok bool) {
	right, up, forward := c.Basis()
	rel := r3.Sub(p, c.Position)
	depth = r3.Dot(rel, forward)
	if depth <= 1e-9 {
		return 0, 0, depth, false
	}

	f := 1 / math.Tan(c.ViewAngle*math.Pi/360)
	x = f * r3.Dot(rel, right) / depth
	y = f * r3.Dot(rel, up) / depth
	if aspect > 0 {
		x /= aspect
	}
	return x, y, depth, true
}
