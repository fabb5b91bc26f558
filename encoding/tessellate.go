// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package encoding

import (
	"honnef.co/go/color"

	"gpudraw/gfx"
	"gpudraw/jmath"
)

// tessellateStackCap bounds the explicit subdivision stack used by
// FlattenBezier and FlattenQuadraticBezier; a curve that needs more than this many splits to meet
// the colinearity tolerance is abandoned rather than risking unbounded
// recursion.
const tessellateStackCap = 1024

// colinearityToleranceSq is the squared perpendicular-distance threshold
// (in pixels) below which a cubic Bezier segment is considered flat enough
// to emit as a single capsule.
const colinearityToleranceSq = 0.1

type bezierSegment struct {
	p0, p1, p2, p3 jmath.Vec2
}

func (s bezierSegment) isFlat() bool {
	d1 := jmath.PerpDistanceSq(s.p1, s.p0, s.p3)
	d2 := jmath.PerpDistanceSq(s.p2, s.p0, s.p3)
	return d1 <= colinearityToleranceSq && d2 <= colinearityToleranceSq
}

// cubicSplit computes the De Casteljau parameter od_draw_cubic_bezier
// splits at: proportional to the control polygon's segment lengths rather
// than a fixed midpoint, weighting the middle segment by half so a curve
// that bulges in its middle still subdivides evenly. Degenerate
// (zero-length) control polygons fall back to a plain bisection.
func cubicSplit(p0, p1, p2, p3 jmath.Vec2) float32 {
	d0 := p1.Sub(p0).Length()
	d1 := p2.Sub(p1).Length()
	d2 := p3.Sub(p2).Length()
	total := d0 + d1 + d2
	if total < jmath.Epsilon {
		return 0.5
	}
	return (d0 + 0.5*d1) / total
}

func (s bezierSegment) split() (bezierSegment, bezierSegment) {
	t := cubicSplit(s.p0, s.p1, s.p2, s.p3)
	p01 := lerp(s.p0, s.p1, t)
	p12 := lerp(s.p1, s.p2, t)
	p23 := lerp(s.p2, s.p3, t)
	p012 := lerp(p01, p12, t)
	p123 := lerp(p12, p23, t)
	mid := lerp(p012, p123, t)
	return bezierSegment{s.p0, p01, p012, mid}, bezierSegment{mid, p123, p23, s.p3}
}

func lerp(a, b jmath.Vec2, t float32) jmath.Vec2 {
	return a.Add(b.Sub(a).Scale(t))
}

// quadraticBezierSegment is a 3-control-point curve, the degree-2
// counterpart od_draw_quadratic_bezier tessellates separately from the
// cubic case.
type quadraticBezierSegment struct {
	p0, p1, p2 jmath.Vec2
}

func (s quadraticBezierSegment) isFlat() bool {
	return jmath.PerpDistanceSq(s.p1, s.p0, s.p2) <= colinearityToleranceSq
}

// quadraticSplit mirrors cubicSplit for the 2-segment control polygon of a
// quadratic curve.
func quadraticSplit(p0, p1, p2 jmath.Vec2) float32 {
	d0 := p1.Sub(p0).Length()
	d1 := p2.Sub(p1).Length()
	total := d0 + d1
	if total < jmath.Epsilon {
		return 0.5
	}
	return d0 / total
}

func (s quadraticBezierSegment) split() (quadraticBezierSegment, quadraticBezierSegment) {
	t := quadraticSplit(s.p0, s.p1, s.p2)
	left := lerp(s.p0, s.p1, t)
	right := lerp(s.p1, s.p2, t)
	mid := lerp(left, right, t)
	return quadraticBezierSegment{s.p0, left, mid}, quadraticBezierSegment{mid, right, s.p2}
}

// TessellateBezierFailed is the count FlattenBezier and
// FlattenQuadraticBezier return when the explicit subdivision stack would
// have to grow beyond its fixed capacity; the Encode*Stroke wrappers then
// log a warning and draw nothing for that curve.
const TessellateBezierFailed = -1

// tessellateStack is an explicit, fixed-capacity stack of pending segments,
// standing in for what would otherwise be unbounded recursion.
type tessellateStack struct {
	items [tessellateStackCap]bezierSegment
	len   int
}

func (s *tessellateStack) push(seg bezierSegment) bool {
	if s.len >= tessellateStackCap {
		return false
	}
	s.items[s.len] = seg
	s.len++
	return true
}

func (s *tessellateStack) pop() (bezierSegment, bool) {
	if s.len == 0 {
		return bezierSegment{}, false
	}
	s.len--
	return s.items[s.len], true
}

// FlattenBezier adaptively subdivides a cubic Bezier into a sequence of
// line segments (as point pairs) flat enough to satisfy
// colinearityToleranceSq, using an explicit bounded stack rather than
// recursion. It returns the emitted segment endpoints and the count, or
// (nil, TessellateBezierFailed) if the stack capacity was exhausted.
func FlattenBezier(p0, p1, p2, p3 jmath.Vec2) ([][2]jmath.Vec2, int) {
	var stack tessellateStack
	if !stack.push(bezierSegment{p0, p1, p2, p3}) {
		return nil, TessellateBezierFailed
	}

	// Segments are popped in reverse order, so collect then reverse to
	// preserve the curve's natural parameterization.
	var out [][2]jmath.Vec2
	for stack.len > 0 {
		seg, ok := stack.pop()
		if !ok {
			break
		}
		if seg.isFlat() {
			out = append(out, [2]jmath.Vec2{seg.p0, seg.p3})
			continue
		}
		a, b := seg.split()
		if !stack.push(a) {
			return nil, TessellateBezierFailed
		}
		if !stack.push(b) {
			return nil, TessellateBezierFailed
		}
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, len(out)
}

// EncodeBezierStroke flattens a cubic Bezier and records each resulting
// segment as a solid capsule of the given width, returning the number of
// capsules emitted or TessellateBezierFailed on stack exhaustion.
func (enc *Encoding) EncodeBezierStroke(p0, p1, p2, p3 jmath.Vec2, width float32, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) int {
	segments, n := FlattenBezier(p0, p1, p2, p3)
	if n == TessellateBezierFailed {
		enc.warn("bezier tessellation stack exhausted, dropping curve")
		return TessellateBezierFailed
	}
	for _, seg := range segments {
		enc.DrawOrientedBox(seg[0], seg[1], width, 0, 0, gfx.FillSolid, col, op, aaWidth, smoothValue)
	}
	return n
}

// quadraticTessellateStack is the quadratic counterpart of
// tessellateStack.
type quadraticTessellateStack struct {
	items [tessellateStackCap]quadraticBezierSegment
	len   int
}

func (s *quadraticTessellateStack) push(seg quadraticBezierSegment) bool {
	if s.len >= tessellateStackCap {
		return false
	}
	s.items[s.len] = seg
	s.len++
	return true
}

func (s *quadraticTessellateStack) pop() (quadraticBezierSegment, bool) {
	if s.len == 0 {
		return quadraticBezierSegment{}, false
	}
	s.len--
	return s.items[s.len], true
}

// FlattenQuadraticBezier adaptively subdivides a quadratic Bezier into a
// sequence of line segments, the degree-2 counterpart of FlattenBezier.
func FlattenQuadraticBezier(p0, p1, p2 jmath.Vec2) ([][2]jmath.Vec2, int) {
	var stack quadraticTessellateStack
	if !stack.push(quadraticBezierSegment{p0, p1, p2}) {
		return nil, TessellateBezierFailed
	}

	var out [][2]jmath.Vec2
	for stack.len > 0 {
		seg, ok := stack.pop()
		if !ok {
			break
		}
		if seg.isFlat() {
			out = append(out, [2]jmath.Vec2{seg.p0, seg.p2})
			continue
		}
		a, b := seg.split()
		if !stack.push(a) {
			return nil, TessellateBezierFailed
		}
		if !stack.push(b) {
			return nil, TessellateBezierFailed
		}
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, len(out)
}

// EncodeQuadraticBezierStroke flattens a quadratic Bezier and records each
// resulting segment as a solid capsule of the given width, the degree-2
// counterpart of EncodeBezierStroke.
func (enc *Encoding) EncodeQuadraticBezierStroke(p0, p1, p2 jmath.Vec2, width float32, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) int {
	segments, n := FlattenQuadraticBezier(p0, p1, p2)
	if n == TessellateBezierFailed {
		enc.warn("bezier tessellation stack exhausted, dropping curve")
		return TessellateBezierFailed
	}
	for _, seg := range segments {
		enc.DrawOrientedBox(seg[0], seg[1], width, 0, 0, gfx.FillSolid, col, op, aaWidth, smoothValue)
	}
	return n
}
