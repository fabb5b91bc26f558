// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package font

import (
	"image"
	"testing"

	xdraw "golang.org/x/image/draw"
)

// TestAtlasTextureUpscalesWithoutFlatteningCoverage builds a tiny
// synthetic coverage atlas by hand and upscales it with x/image/draw the
// way a caller previewing a baked atlas at a larger size would, checking
// the scaler doesn't average away the boundary between a covered and an
// uncovered texel.
func TestAtlasTextureUpscalesWithoutFlatteningCoverage(t *testing.T) {
	a := &Atlas{
		FontHeight: 16,
		NumGlyphs:  1,
		FirstGlyph: 'A',
		TextureW:   2,
		TextureH:   1,
		Texture:    []byte{0, 255},
	}
	a.Glyphs[0] = Glyph{X0: 0, Y0: 0, X1: 1, Y1: 1, AdvanceX: 8}

	src := image.NewGray(image.Rect(0, 0, int(a.TextureW), int(a.TextureH)))
	copy(src.Pix, a.Texture)

	dst := image.NewGray(image.Rect(0, 0, 8, 4))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	left := dst.GrayAt(1, 2).Y
	right := dst.GrayAt(6, 2).Y
	if left != 0 {
		t.Fatalf("upscaled left half coverage = %d, want 0", left)
	}
	if right != 255 {
		t.Fatalf("upscaled right half coverage = %d, want 255", right)
	}
}

// TestLookupFallsBackOutsideGlyphRange exercises Lookup's fallback-advance
// path alongside the fixture atlas above, since FirstGlyph/NumGlyphs here
// cover only 'A'.
func TestLookupFallsBackOutsideGlyphRange(t *testing.T) {
	a := &Atlas{FontHeight: 16, NumGlyphs: 1, FirstGlyph: 'A'}
	a.Glyphs[0] = Glyph{AdvanceX: 10}

	if _, ok := a.Lookup('A'); !ok {
		t.Fatal("Lookup('A') reported no glyph, want the configured one")
	}
	g, ok := a.Lookup('B')
	if ok {
		t.Fatal("Lookup('B') reported a glyph, want the fallback path")
	}
	if want := a.FontHeight * fallbackAdvanceFactor; g.AdvanceX != want {
		t.Fatalf("fallback AdvanceX = %v, want %v", g.AdvanceX, want)
	}
}
