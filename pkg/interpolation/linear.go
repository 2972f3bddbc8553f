// Package interpolation samples volumes at continuous voxel positions.
//
// Positions are continuous indices in (z, y, x) order: integer values land
// on voxel centers. Linear interpolation treats a position as inside the
// volume when it lies at most half a voxel beyond the outermost centers,
// and clamps neighbours to the buffer there.
package interpolation

import (
	"math"

	"zarrfusion/internal/models"
)

// Point is a continuous index in (z, y, x) order.
type Point struct {
	Z, Y, X float64
}

// Inside reports whether p lies within the volume buffer, i.e. within
// [-0.5, size-0.5) along every axis.
func Inside(v *models.Volume, p Point) bool {
	return p.Z >= -0.5 && p.Z < float64(v.Depth)-0.5 &&
		p.Y >= -0.5 && p.Y < float64(v.Height)-0.5 &&
		p.X >= -0.5 && p.X < float64(v.Width)-0.5
}

// Linear returns the trilinear interpolation of v at p and whether p is
// inside the buffer. Outside points return 0, false.
func Linear(v *models.Volume, p Point) (float64, bool) {
	if !Inside(v, p) {
		return 0, false
	}
	return Clamped(v, p), true
}

// Clamped returns the trilinear interpolation of v at p with neighbour
// indices clamped to the buffer. It never fails, so callers must check
// Inside themselves when out-of-range positions matter.
func Clamped(v *models.Volume, p Point) float64 {
	z0, z1, fz := axis(p.Z, v.Depth)
	y0, y1, fy := axis(p.Y, v.Height)
	x0, x1, fx := axis(p.X, v.Width)

	w := v.Width
	hw := v.Height * w
	d := v.Data

	c000 := float64(d[z0*hw+y0*w+x0])
	c001 := float64(d[z0*hw+y0*w+x1])
	c010 := float64(d[z0*hw+y1*w+x0])
	c011 := float64(d[z0*hw+y1*w+x1])
	c100 := float64(d[z1*hw+y0*w+x0])
	c101 := float64(d[z1*hw+y0*w+x1])
	c110 := float64(d[z1*hw+y1*w+x0])
	c111 := float64(d[z1*hw+y1*w+x1])

	c00 := c000 + fx*(c001-c000)
	c01 := c010 + fx*(c011-c010)
	c10 := c100 + fx*(c101-c100)
	c11 := c110 + fx*(c111-c110)

	c0 := c00 + fy*(c01-c00)
	c1 := c10 + fy*(c11-c10)

	return c0 + fz*(c1-c0)
}

// axis returns the two neighbouring indices of the continuous coordinate
// c along an axis of length n, clamped to [0, n-1], and the weight of the
// upper neighbour.
func axis(c float64, n int) (lo, hi int, frac float64) {
	base := math.Floor(c)
	frac = c - base
	lo = int(base)
	hi = lo + 1
	if lo < 0 {
		lo = 0
	}
	if hi < 0 {
		hi = 0
	}
	if lo > n-1 {
		lo = n - 1
	}
	if hi > n-1 {
		hi = n - 1
	}
	return lo, hi, frac
}
