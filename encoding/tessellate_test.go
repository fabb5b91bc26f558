// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package encoding

import (
	"testing"

	"honnef.co/go/color"

	"gpudraw/gfx"
	"gpudraw/jmath"
)

func TestFlattenBezierColinearControlPointsYieldOneSegment(t *testing.T) {
	p0 := jmath.Vec2{X: 0, Y: 0}
	p1 := jmath.Vec2{X: 10, Y: 0}
	p2 := jmath.Vec2{X: 20, Y: 0}
	p3 := jmath.Vec2{X: 30, Y: 0}

	segs, n := FlattenBezier(p0, p1, p2, p3)
	if n != 1 {
		t.Fatalf("n = %d, want 1 for a colinear control polygon", n)
	}
	if segs[0][0] != p0 || segs[0][1] != p3 {
		t.Fatalf("segment = %v, want {%v, %v}", segs[0], p0, p3)
	}
}

func TestFlattenBezierCurvedControlPointsSplit(t *testing.T) {
	p0 := jmath.Vec2{X: 0, Y: 0}
	p1 := jmath.Vec2{X: 0, Y: 100}
	p2 := jmath.Vec2{X: 100, Y: 100}
	p3 := jmath.Vec2{X: 100, Y: 0}

	segs, n := FlattenBezier(p0, p1, p2, p3)
	if n < 2 {
		t.Fatalf("n = %d, want at least 2 segments for a curved control polygon", n)
	}
	if segs[0][0] != p0 {
		t.Fatalf("first segment start = %v, want %v", segs[0][0], p0)
	}
	if segs[len(segs)-1][1] != p3 {
		t.Fatalf("last segment end = %v, want %v", segs[len(segs)-1][1], p3)
	}
}

func TestCubicSplitIsLengthProportional(t *testing.T) {
	// A control polygon whose first leg is longer than its last should
	// split past the midpoint rather than at a plain 0.5.
	p0 := jmath.Vec2{X: 0, Y: 0}
	p1 := jmath.Vec2{X: 10, Y: 0}
	p2 := jmath.Vec2{X: 110, Y: 0}
	p3 := jmath.Vec2{X: 111, Y: 0}

	got := cubicSplit(p0, p1, p2, p3)
	want := float32(10+0.5*100) / 111
	if diff := got - want; diff > 1e-4 || diff < -1e-4 {
		t.Fatalf("cubicSplit = %v, want %v", got, want)
	}
	if got == 0.5 {
		t.Fatal("cubicSplit degenerated to the fixed-midpoint value")
	}
}

func TestCubicSplitDegenerateFallsBackToMidpoint(t *testing.T) {
	p := jmath.Vec2{X: 5, Y: 5}
	if got := cubicSplit(p, p, p, p); got != 0.5 {
		t.Fatalf("cubicSplit of a collapsed control polygon = %v, want 0.5", got)
	}
}

func TestQuadraticSplitIsLengthProportional(t *testing.T) {
	p0 := jmath.Vec2{X: 0, Y: 0}
	p1 := jmath.Vec2{X: 10, Y: 0}
	p2 := jmath.Vec2{X: 30, Y: 0}

	got := quadraticSplit(p0, p1, p2)
	want := float32(10) / 30
	if diff := got - want; diff > 1e-4 || diff < -1e-4 {
		t.Fatalf("quadraticSplit = %v, want %v", got, want)
	}
}

func TestFlattenQuadraticBezierColinearControlPointsYieldOneSegment(t *testing.T) {
	p0 := jmath.Vec2{X: 0, Y: 0}
	p1 := jmath.Vec2{X: 10, Y: 0}
	p2 := jmath.Vec2{X: 20, Y: 0}

	segs, n := FlattenQuadraticBezier(p0, p1, p2)
	if n != 1 {
		t.Fatalf("n = %d, want 1 for a colinear control polygon", n)
	}
	if segs[0][0] != p0 || segs[0][1] != p2 {
		t.Fatalf("segment = %v, want {%v, %v}", segs[0], p0, p2)
	}
}

func TestFlattenQuadraticBezierCurvedControlPointsSplit(t *testing.T) {
	p0 := jmath.Vec2{X: 0, Y: 0}
	p1 := jmath.Vec2{X: 50, Y: 100}
	p2 := jmath.Vec2{X: 100, Y: 0}

	segs, n := FlattenQuadraticBezier(p0, p1, p2)
	if n < 2 {
		t.Fatalf("n = %d, want at least 2 segments for a curved control polygon", n)
	}
	if segs[0][0] != p0 {
		t.Fatalf("first segment start = %v, want %v", segs[0][0], p0)
	}
	if segs[len(segs)-1][1] != p2 {
		t.Fatalf("last segment end = %v, want %v", segs[len(segs)-1][1], p2)
	}
}

func TestEncodeQuadraticBezierStrokeEmitsCapsules(t *testing.T) {
	enc := &Encoding{}
	enc.Reset(200, 200)

	n := enc.EncodeQuadraticBezierStroke(
		jmath.Vec2{X: 0, Y: 0}, jmath.Vec2{X: 50, Y: 100}, jmath.Vec2{X: 100, Y: 0},
		4, color.Color{}, gfx.OpOverwrite, 1, 0)
	if n == TessellateBezierFailed {
		t.Fatal("EncodeQuadraticBezierStroke failed unexpectedly")
	}
	if len(enc.Commands) != n {
		t.Fatalf("len(Commands) = %d, want %d", len(enc.Commands), n)
	}
	for _, c := range enc.Commands {
		if c.Kind() != gfx.PrimitiveOrientedBox {
			t.Fatalf("command kind = %v, want PrimitiveOrientedBox", c.Kind())
		}
	}
}
