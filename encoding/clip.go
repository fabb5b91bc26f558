// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package encoding

import (
	"structs"

	"gpudraw/jmath"
)

// ClipKind tags a Clip entry as clip_rect or clip_disc, matching the two
// clip-shape variants spec §3's clips[] array holds.
type ClipKind uint32

const (
	ClipKindRect ClipKind = 0
	ClipKindDisc ClipKind = 1
)

// Clip mirrors clip_shape_t: a tagged union of the two shapes a command's
// fragments can be clipped against. The three padding words keep the struct
// a multiple of 16 bytes so its GPU-side array has the same stride as a
// pair of vec4<f32>s, regardless of which variant is active.
type Clip struct {
	_ structs.HostLayout

	Kind ClipKind
	_    [3]uint32

	// Rect: A, B, C, D = MinX, MinY, MaxX, MaxY.
	// Disc: A, B, C    = CenterX, CenterY, Radius; D unused.
	A, B, C, D float32
}

func clipRectFromAABB(a jmath.AABB) Clip {
	return Clip{Kind: ClipKindRect, A: a.MinX, B: a.MinY, C: a.MaxX, D: a.MaxY}
}

func clipDiscFromCircle(center jmath.Vec2, radius float32) Clip {
	return Clip{Kind: ClipKindDisc, A: center.X, B: center.Y, C: radius}
}

func (c Clip) equal(other Clip) bool {
	return c.Kind == other.Kind && c.A == other.A && c.B == other.B && c.C == other.C && c.D == other.D
}

// Contains reports whether p lies within the clip shape, used by the CPU
// reference rasterizer.
func (c Clip) Contains(p jmath.Vec2) bool {
	switch c.Kind {
	case ClipKindDisc:
		dx, dy := p.X-c.A, p.Y-c.B
		return dx*dx+dy*dy <= c.C*c.C
	default:
		return p.X >= c.A && p.Y >= c.B && p.X <= c.C && p.Y <= c.D
	}
}
