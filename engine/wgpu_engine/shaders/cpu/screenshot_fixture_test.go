// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT OR Unlicense

package cpu

import (
	"image"
	"testing"

	xdraw "golang.org/x/image/draw"

	"gpudraw/gfx"
	"gpudraw/jmath"
)

// renderToImage runs the fixture's encoding through the full CPU pipeline
// and assembles every pixel into an *image.NRGBA, the same shape EndFrame's
// screenshot readback would hand a caller.
func (f *fixture) renderToImage(t *testing.T, width, height uint32) *image.NRGBA {
	t.Helper()
	cfg, tileHeads, tileNodes := f.runPipeline(t, width, height)
	img := image.NewNRGBA(image.Rect(0, 0, int(width), int(height)))
	for y := uint32(0); y < height; y++ {
		for x := uint32(0); x < width; x++ {
			r, g, b, a := f.samplePixelTex(cfg, tileHeads, tileNodes, x, y, nil)
			i := img.PixOffset(int(x), int(y))
			img.Pix[i+0] = byte(clamp01(r) * 255)
			img.Pix[i+1] = byte(clamp01(g) * 255)
			img.Pix[i+2] = byte(clamp01(b) * 255)
			img.Pix[i+3] = byte(clamp01(a) * 255)
		}
	}
	return img
}

func clamp01(v float32) float32 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// TestScreenshotDownscaleKeepsDiscCentered renders a single opaque red disc
// against a black background, downscales the captured frame to a quarter
// size with x/image/draw the way a thumbnail preview of a captured frame
// would, and checks the disc's color survives at the downscaled center.
func TestScreenshotDownscaleKeepsDiscCentered(t *testing.T) {
	const width, height = 64, 64
	f := newFixture(width, height)
	f.addCommand(gfx.PrimitiveDisc, gfx.FillSolid, 0, opaqueRed, jmath.AABB{MinX: 12, MinY: 12, MaxX: 52, MaxY: 52},
		32, 32, 20)

	full := f.renderToImage(t, width, height)

	small := image.NewNRGBA(image.Rect(0, 0, width/4, height/4))
	xdraw.CatmullRom.Scale(small, small.Bounds(), full, full.Bounds(), xdraw.Over, nil)

	cx, cy := width/8, height/8
	i := small.PixOffset(cx, cy)
	r, g, b, a := small.Pix[i], small.Pix[i+1], small.Pix[i+2], small.Pix[i+3]
	if a < 200 {
		t.Fatalf("downscaled center alpha = %d, want a near-opaque pixel", a)
	}
	if r < g || r < b {
		t.Fatalf("downscaled center = (%d,%d,%d), want red-dominant", r, g, b)
	}
}
