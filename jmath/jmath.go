// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package jmath provides the scalar and small-vector math shared by the
// command front end and the GPU binning/rasterization stages: 2D vectors,
// quantized axis-aligned bounding boxes, and the colinearity and smoothing
// helpers the tessellator and group compositor need.
package jmath

import (
	"math"
	"structs"

	"golang.org/x/exp/constraints"
)

const Epsilon = 1e-12

func Abs32(f float32) float32 {
	return float32(math.Abs(float64(f)))
}

// AlignUp rounds len up to the next multiple of alignment, which must be a
// power of two.
func AlignUp(len uint32, alignment uint32) uint32 {
	return (len + alignment - 1) &^ (alignment - 1)
}

func NextMultipleOf[T constraints.Integer](x, y T) T {
	r := x % y
	if r == 0 {
		return x
	}
	return x + y - r
}

type Vec2 struct {
	_ structs.HostLayout

	X, Y float32
}

func (v Vec2) Add(o Vec2) Vec2     { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2     { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }
func (v Vec2) Scale(s float32) Vec2 { return Vec2{X: v.X * s, Y: v.Y * s} }
func (v Vec2) Dot(o Vec2) float32  { return v.X*o.X + v.Y*o.Y }

// Skew rotates v by 90 degrees, matching `skew(float2 v)` in the reference
// shader headers.
func (v Vec2) Skew() Vec2 { return Vec2{X: -v.Y, Y: v.X} }

func (v Vec2) Length() float32 {
	return float32(math.Sqrt(float64(v.X*v.X + v.Y*v.Y)))
}

func (v Vec2) LengthSq() float32 { return v.X*v.X + v.Y*v.Y }

func (v Vec2) Normalized() Vec2 {
	l := v.Length()
	if l < Epsilon {
		return Vec2{}
	}
	return v.Scale(1 / l)
}

// Cross2 returns the 2D cross product of a and b as a scalar.
func Cross2(a, b Vec2) float32 { return a.X*b.Y - a.Y*b.X }

// AABB is an axis-aligned bounding box in screen pixels.
type AABB struct {
	MinX, MinY, MaxX, MaxY float32
}

// InvalidAABB returns the sentinel empty box: merging it with any real box
// yields that box unchanged.
func InvalidAABB() AABB {
	return AABB{
		MinX: math.MaxFloat32, MinY: math.MaxFloat32,
		MaxX: -math.MaxFloat32, MaxY: -math.MaxFloat32,
	}
}

func (a AABB) IsEmpty() bool { return a.MinX > a.MaxX || a.MinY > a.MaxY }

func (a AABB) Merge(o AABB) AABB {
	return AABB{
		MinX: min(a.MinX, o.MinX),
		MinY: min(a.MinY, o.MinY),
		MaxX: max(a.MaxX, o.MaxX),
		MaxY: max(a.MaxY, o.MaxY),
	}
}

func (a AABB) Grow(by float32) AABB {
	return AABB{MinX: a.MinX - by, MinY: a.MinY - by, MaxX: a.MaxX + by, MaxY: a.MaxY + by}
}

// QuantAABB is an AABB quantized to tile units, one byte per edge, matching
// commands_aabb's on-disk layout.
type QuantAABB struct {
	_ structs.HostLayout

	MinX, MinY, MaxX, MaxY uint8
}

// InvalidQuantAABB is the group accumulator's starting value: min=255,
// max=0, so Merge with any real box produces that box.
func InvalidQuantAABB() QuantAABB {
	return QuantAABB{MinX: 255, MinY: 255, MaxX: 0, MaxY: 0}
}

func quantizeEdge(v float32, tileSize float32) uint8 {
	q := v / tileSize
	switch {
	case q <= 0:
		return 0
	case q >= 255:
		return 255
	default:
		return uint8(q)
	}
}

// quantizeMaxEdge treats v as an exclusive upper bound: an edge lying
// exactly on a tile boundary maps to the tile before that boundary.
func quantizeMaxEdge(v float32, tileSize float32) uint8 {
	q := float32(math.Ceil(float64(v/tileSize))) - 1
	switch {
	case q <= 0:
		return 0
	case q >= 255:
		return 255
	default:
		return uint8(q)
	}
}

// QuantizeAABB divides a by tileSize and clamps each edge to [0, 255]. The
// max edges are exclusive, so a box ending exactly on a tile boundary does
// not reach into the next tile.
func QuantizeAABB(a AABB, tileSize float32) QuantAABB {
	if a.IsEmpty() {
		return InvalidQuantAABB()
	}
	return QuantAABB{
		MinX: quantizeEdge(a.MinX, tileSize),
		MinY: quantizeEdge(a.MinY, tileSize),
		MaxX: quantizeMaxEdge(a.MaxX, tileSize),
		MaxY: quantizeMaxEdge(a.MaxY, tileSize),
	}
}

func (q QuantAABB) Merge(o QuantAABB) QuantAABB {
	return QuantAABB{
		MinX: min(q.MinX, o.MinX),
		MinY: min(q.MinY, o.MinY),
		MaxX: max(q.MaxX, o.MaxX),
		MaxY: max(q.MaxY, o.MaxY),
	}
}

// OverlapsTile reports whether q overlaps the tile at (tx, ty) in tile
// coordinates.
func (q QuantAABB) OverlapsTile(tx, ty uint8) bool {
	if q.MinX > q.MaxX || q.MinY > q.MaxY {
		return false
	}
	return tx >= q.MinX && tx <= q.MaxX && ty >= q.MinY && ty <= q.MaxY
}

// LinearStep is clamp((x-edge0)/(edge1-edge0), 0, 1), matching the WGSL
// helper of the same name.
func LinearStep(edge0, edge1, x float32) float32 {
	if edge1 == edge0 {
		if x < edge0 {
			return 0
		}
		return 1
	}
	t := (x - edge0) / (edge1 - edge0)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// SmoothMin is the polynomial smooth-min used by the group blend operator;
// as k approaches 0 it degenerates to a plain min.
func SmoothMin(a, b, k float32) float32 {
	if k <= 0 {
		return min(a, b)
	}
	h := max(k-Abs32(a-b), 0) / k
	return min(a, b) - h*h*h*k*(1.0/6.0)
}

// PerpDistanceSq returns the squared perpendicular distance from p to the
// line through a and b, used by the Bezier tessellator's colinearity test.
func PerpDistanceSq(p, a, b Vec2) float32 {
	ab := b.Sub(a)
	lenSq := ab.LengthSq()
	if lenSq < Epsilon {
		return p.Sub(a).LengthSq()
	}
	cross := Cross2(ab, p.Sub(a))
	return (cross * cross) / lenSq
}
