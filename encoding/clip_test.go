// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package encoding

import (
	"testing"

	"gpudraw/jmath"
)

func TestClipRectContains(t *testing.T) {
	c := clipRectFromAABB(jmath.AABB{MinX: 10, MinY: 10, MaxX: 20, MaxY: 20})

	if !c.Contains(jmath.Vec2{X: 15, Y: 15}) {
		t.Fatal("want point inside the rect to be contained")
	}
	if c.Contains(jmath.Vec2{X: 5, Y: 5}) {
		t.Fatal("want point outside the rect to not be contained")
	}
	if !c.Contains(jmath.Vec2{X: 10, Y: 10}) {
		t.Fatal("want the min corner to be contained (inclusive bound)")
	}
}

func TestClipDiscContains(t *testing.T) {
	c := clipDiscFromCircle(jmath.Vec2{X: 0, Y: 0}, 5)

	if !c.Contains(jmath.Vec2{X: 3, Y: 4}) {
		t.Fatal("want a point exactly on the radius to be contained")
	}
	if c.Contains(jmath.Vec2{X: 4, Y: 4}) {
		t.Fatal("want a point outside the radius to not be contained")
	}
}

func TestPushClipDedupesIdenticalClip(t *testing.T) {
	enc := &Encoding{}
	enc.Reset(100, 100)

	n := len(enc.Clips)
	idx1 := enc.SetClipRect(jmath.AABB{MinX: 1, MinY: 1, MaxX: 2, MaxY: 2})
	idx2 := enc.SetClipRect(jmath.AABB{MinX: 1, MinY: 1, MaxX: 2, MaxY: 2})

	if len(enc.Clips) != n+1 {
		t.Fatalf("len(Clips) = %d, want %d (identical clip must not be pushed twice)", len(enc.Clips), n+1)
	}
	if idx1 != idx2 {
		t.Fatalf("idx1=%d idx2=%d, want the same index for an identical clip", idx1, idx2)
	}
}

func TestPushClipDistinguishesRectAndDisc(t *testing.T) {
	enc := &Encoding{}
	enc.Reset(100, 100)

	rectIdx := enc.SetClipRect(jmath.AABB{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10})
	discIdx := enc.SetClipDisc(jmath.Vec2{X: 5, Y: 5}, 5)

	if rectIdx == discIdx {
		t.Fatal("a disc clip must not dedupe against a differently-tagged rect clip with overlapping fields")
	}
	if enc.Clips[discIdx].Kind != ClipKindDisc {
		t.Fatalf("Clips[%d].Kind = %v, want ClipKindDisc", discIdx, enc.Clips[discIdx].Kind)
	}
}
