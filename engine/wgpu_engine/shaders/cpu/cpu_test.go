// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT OR Unlicense

package cpu

import (
	"testing"

	"gpudraw/encoding"
	"gpudraw/font"
	"gpudraw/gfx"
	"gpudraw/jmath"
	"gpudraw/renderer"
)

// fixture builds an Encoding by hand, bypassing the Draw* entry points (and
// the honnef.co/go/color conversions they go through) so these tests stay
// independent of color space handling and exercise only the binning and
// rasterization math.
type fixture struct {
	enc *encoding.Encoding
}

func newFixture(width, height uint32) *fixture {
	enc := &encoding.Encoding{}
	enc.Reset(width, height)
	return &fixture{enc: enc}
}

// addCommand appends one draw command with the given shape, fill mode,
// packed BGRA8 color, clip index, and screen-space bounding box.
func (f *fixture) addCommand(kind gfx.PrimitiveKind, fill gfx.FillMode, clipIndex uint8, packedColor uint32, box jmath.AABB, data ...float32) {
	dataIndex := uint32(len(f.enc.DrawData))
	f.enc.DrawData = append(f.enc.DrawData, data...)
	f.enc.Commands = append(f.enc.Commands, encoding.DrawCommand{
		DataIndex: dataIndex,
		ClipIndex: clipIndex,
		FillMode:  uint8(fill),
		Type:      uint8(kind),
	})
	f.enc.Colors = append(f.enc.Colors, packedColor)
	f.enc.CommandsAABB = append(f.enc.CommandsAABB, jmath.QuantizeAABB(box, encoding.TileSize))
}

const (
	opaqueRed   = 0xffff0000
	opaqueBlue  = 0xff0000ff
	opaqueGreen = 0xff00ff00
	opaqueWhite = 0xffffffff
)

// testAAWidth is the coverage ramp width fixtures render with; not 0, so
// these tests exercise the same linear falloff real frames do rather than a
// degenerate hard edge.
const testAAWidth = 1.0

// runPipeline drives the fixture's encoding through every CPU-reference
// kernel in order, the same sequence RenderToTexture issues on the GPU, and
// returns the tile-list buffers a test can then sample pixels from.
func (f *fixture) runPipeline(t *testing.T, width, height uint32) (*renderer.RenderConfig, []uint32, []renderer.TileNode) {
	t.Helper()
	enc := f.enc

	cfg := renderer.NewRenderConfig(width, height, uint32(len(enc.Commands)), [4]float32{}, false, testAAWidth)

	predicate := make([]uint32, cfg.BufferSizes.RegionPredicate.Len())
	scan := make([]uint32, cfg.BufferSizes.RegionScan.Len())
	indices := make([]uint32, cfg.BufferSizes.RegionIndices.Len())
	RegionPredicate(cfg, enc.CommandsAABB, predicate)
	RegionExclusiveScan(cfg, predicate, scan)
	RegionBin(cfg, predicate, scan, indices)

	tileHeads := make([]uint32, cfg.BufferSizes.TileHeads.Len())
	tileNodes := make([]renderer.TileNode, cfg.BufferSizes.TileNodes.Len())
	tileIndices := make([]uint32, cfg.BufferSizes.TileIndices.Len())
	var counters renderer.Counters
	TileBin(cfg, enc.Commands, enc.CommandsAABB, tileHeads, tileNodes, tileIndices, &counters)

	icb := WriteICB(&counters)
	if icb.InstanceCount != max(counters.NumTiles, 1) {
		t.Fatalf("WriteICB instance count = %d, want %d", icb.InstanceCount, max(counters.NumTiles, 1))
	}

	return cfg, tileHeads, tileNodes
}

func (f *fixture) samplePixel(cfg *renderer.RenderConfig, tileHeads []uint32, tileNodes []renderer.TileNode, x, y uint32) (r, g, b, a float32) {
	tx, ty := x/encoding.TileSize, y/encoding.TileSize
	tileIndex := ty*cfg.Frame.WidthInTiles + tx
	pixel := jmath.Vec2{X: float32(x) + 0.5, Y: float32(y) + 0.5}
	return RasterizePixel(f.enc.Commands, f.enc.Colors, f.enc.CommandsAABB, f.enc.DrawData, f.enc.Clips, tileHeads, tileNodes, tileIndex, pixel, cfg.Frame.ClearColor, cfg.Frame.AAWidth, nil)
}

func TestPipelineSolidDiscCoversItsCenter(t *testing.T) {
	const width, height = 64, 64

	f := newFixture(width, height)
	f.addCommand(gfx.PrimitiveDisc, gfx.FillSolid, 0, opaqueRed,
		jmath.AABB{MinX: 22, MinY: 22, MaxX: 42, MaxY: 42},
		32, 32, 10, 0) // center=(32,32), radius=10

	cfg, tileHeads, tileNodes := f.runPipeline(t, width, height)

	r, _, _, a := f.samplePixel(cfg, tileHeads, tileNodes, 32, 32)
	if a < 0.99 {
		t.Fatalf("center pixel alpha = %v, want ~1", a)
	}
	if r < 0.5 {
		t.Fatalf("center pixel red channel = %v, want > 0.5", r)
	}

	_, _, _, a = f.samplePixel(cfg, tileHeads, tileNodes, 0, 0)
	if a > 0.01 {
		t.Fatalf("corner pixel alpha = %v, want ~0 (outside the disc)", a)
	}
}

func TestPipelineFrontToBackOrder(t *testing.T) {
	const width, height = 32, 32

	f := newFixture(width, height)
	box := jmath.AABB{MinX: 4, MinY: 4, MaxX: 28, MaxY: 28}
	f.addCommand(gfx.PrimitiveAABox, gfx.FillSolid, 0, opaqueRed, box, box.MinX, box.MinY, box.MaxX, box.MaxY, 0, 0)
	f.addCommand(gfx.PrimitiveAABox, gfx.FillSolid, 0, opaqueBlue, box, box.MinX, box.MinY, box.MaxX, box.MaxY, 0, 0)

	cfg, tileHeads, tileNodes := f.runPipeline(t, width, height)

	r, _, b, a := f.samplePixel(cfg, tileHeads, tileNodes, 16, 16)
	if a < 0.99 {
		t.Fatalf("overlapping region alpha = %v, want ~1", a)
	}
	if b < 0.5 || r > 0.5 {
		t.Fatalf("overlapping region color = (r=%v b=%v), want the later (blue) command on top", r, b)
	}
}

func TestPipelineClipDiscExcludesOutsidePixels(t *testing.T) {
	const width, height = 32, 32

	f := newFixture(width, height)
	clipIndex := f.enc.SetClipDisc(jmath.Vec2{X: 16, Y: 16}, 6)
	box := jmath.AABB{MinX: 0, MinY: 0, MaxX: 32, MaxY: 32}
	f.addCommand(gfx.PrimitiveAABox, gfx.FillSolid, clipIndex, opaqueGreen, box, box.MinX, box.MinY, box.MaxX, box.MaxY, 0, 0)

	cfg, tileHeads, tileNodes := f.runPipeline(t, width, height)

	_, g, _, a := f.samplePixel(cfg, tileHeads, tileNodes, 16, 16)
	if a < 0.99 || g < 0.5 {
		t.Fatalf("pixel inside the clip disc = (g=%v a=%v), want fully covered", g, a)
	}

	_, _, _, a = f.samplePixel(cfg, tileHeads, tileNodes, 1, 1)
	if a > 0.01 {
		t.Fatalf("pixel outside the clip disc alpha = %v, want ~0", a)
	}
}

func TestTileBinStopsAtNodeArenaExhaustion(t *testing.T) {
	const width, height = 16, 16

	f := newFixture(width, height)
	box := jmath.AABB{MinX: 0, MinY: 0, MaxX: 16, MaxY: 16}
	f.addCommand(gfx.PrimitiveAABox, gfx.FillSolid, 0, opaqueWhite, box, box.MinX, box.MinY, box.MaxX, box.MaxY, 0, 0)

	cfg := renderer.NewRenderConfig(width, height, uint32(len(f.enc.Commands)), [4]float32{}, false, testAAWidth)
	cfg.Frame.MaxNodes = 1 // only node index 0 is reachable; every allocation must be dropped

	tileHeads := make([]uint32, cfg.BufferSizes.TileHeads.Len())
	tileNodes := make([]renderer.TileNode, cfg.BufferSizes.TileNodes.Len())
	tileIndices := make([]uint32, cfg.BufferSizes.TileIndices.Len())
	var counters renderer.Counters
	TileBin(cfg, f.enc.Commands, f.enc.CommandsAABB, tileHeads, tileNodes, tileIndices, &counters)

	if counters.NumTiles != 0 {
		t.Fatalf("NumTiles = %d, want 0 once the node arena is exhausted", counters.NumTiles)
	}
	for i, head := range tileHeads {
		if head != 0 {
			t.Fatalf("tileHeads[%d] = %d, want 0 (list end) since every node allocation was dropped", i, head)
		}
	}
}

// TestTileBinCompactsTouchedTilesOnly covers a small box against a much
// larger tile grid: WriteICB's instance count must track how many tiles the
// box actually touched, not the grid's full extent, and tile_indices must
// list exactly those tiles.
func TestTileBinCompactsTouchedTilesOnly(t *testing.T) {
	const width, height = 128, 128 // 8x8 = 64 tiles total

	f := newFixture(width, height)
	box := jmath.AABB{MinX: 0, MinY: 0, MaxX: 16, MaxY: 16} // one tile
	f.addCommand(gfx.PrimitiveAABox, gfx.FillSolid, 0, opaqueWhite, box, box.MinX, box.MinY, box.MaxX, box.MaxY, 0, 0)

	cfg := renderer.NewRenderConfig(width, height, uint32(len(f.enc.Commands)), [4]float32{}, false, testAAWidth)
	totalTiles := cfg.Frame.WidthInTiles * cfg.Frame.HeightInTiles

	tileHeads := make([]uint32, cfg.BufferSizes.TileHeads.Len())
	tileNodes := make([]renderer.TileNode, cfg.BufferSizes.TileNodes.Len())
	tileIndices := make([]uint32, cfg.BufferSizes.TileIndices.Len())
	var counters renderer.Counters
	TileBin(cfg, f.enc.Commands, f.enc.CommandsAABB, tileHeads, tileNodes, tileIndices, &counters)

	if counters.NumTiles != 1 {
		t.Fatalf("NumTiles = %d, want 1 (the single tile the box overlaps)", counters.NumTiles)
	}
	if counters.NumTiles == totalTiles {
		t.Fatalf("NumTiles = %d, want it distinct from the full grid (%d tiles)", counters.NumTiles, totalTiles)
	}
	if tileIndices[0] != 0 {
		t.Fatalf("tileIndices[0] = %d, want 0 (the top-left tile)", tileIndices[0])
	}

	icb := WriteICB(&counters)
	if icb.InstanceCount != 1 {
		t.Fatalf("WriteICB instance count = %d, want 1", icb.InstanceCount)
	}
}

// addGroupCommand appends a begin_group or end_group marker, the only
// commands whose Extra byte (the group operator) addCommand leaves unset.
func (f *fixture) addGroupCommand(kind gfx.PrimitiveKind, clipIndex uint8, op gfx.GroupOp, packedColor uint32, box jmath.AABB, data ...float32) {
	dataIndex := uint32(len(f.enc.DrawData))
	f.enc.DrawData = append(f.enc.DrawData, data...)
	f.enc.Commands = append(f.enc.Commands, encoding.DrawCommand{
		DataIndex: dataIndex,
		Extra:     uint8(op),
		ClipIndex: clipIndex,
		Type:      uint8(kind),
	})
	f.enc.Colors = append(f.enc.Colors, packedColor)
	f.enc.CommandsAABB = append(f.enc.CommandsAABB, jmath.QuantizeAABB(box, encoding.TileSize))
}

func (f *fixture) samplePixelTex(cfg *renderer.RenderConfig, tileHeads []uint32, tileNodes []renderer.TileNode, x, y uint32, tex *Textures) (r, g, b, a float32) {
	tx, ty := x/encoding.TileSize, y/encoding.TileSize
	tileIndex := ty*cfg.Frame.WidthInTiles + tx
	pixel := jmath.Vec2{X: float32(x) + 0.5, Y: float32(y) + 0.5}
	return RasterizePixel(f.enc.Commands, f.enc.Colors, f.enc.CommandsAABB, f.enc.DrawData, f.enc.Clips, tileHeads, tileNodes, tileIndex, pixel, cfg.Frame.ClearColor, cfg.Frame.AAWidth, tex)
}

// TestPipelineGroupBlendMergesGap exercises a smooth-blend group: two discs
// with a gap between them, bridged by the group's smoothness the way a pair
// of metaballs fuse, which a plain (ungrouped) min of the same two SDFs
// would not do.
func TestPipelineGroupBlendMergesGap(t *testing.T) {
	const width, height = 32, 32
	fullBox := jmath.AABB{MinX: 0, MinY: 0, MaxX: width, MaxY: height}

	f := newFixture(width, height)
	f.addGroupCommand(gfx.BeginGroup, 0, gfx.OpBlend, opaqueWhite, fullBox)
	f.addCommand(gfx.PrimitiveDisc, gfx.FillSolid, 0, opaqueRed, fullBox, 8, 16, 6, 0)
	f.addCommand(gfx.PrimitiveDisc, gfx.FillSolid, 0, opaqueBlue, fullBox, 24, 16, 6, 0)
	// effective_smoothness=20, outline_width=0: no outline, a wide blend radius.
	f.addGroupCommand(gfx.EndGroup, 0, gfx.OpBlend, opaqueWhite, fullBox, 20, 0)

	cfg, tileHeads, tileNodes := f.runPipeline(t, width, height)

	_, _, _, a := f.samplePixel(cfg, tileHeads, tileNodes, 16, 16)
	if a < 0.5 {
		t.Fatalf("gap midpoint alpha = %v, want > 0.5 (smooth-blend should bridge the 4px gap)", a)
	}
}

// TestPipelineGroupOverwriteLeavesGapOpen mirrors the same layout as
// TestPipelineGroupBlendMergesGap but with OpOverwrite, confirming the gap
// only closes when the group operator asks for a blend.
func TestPipelineGroupOverwriteLeavesGapOpen(t *testing.T) {
	const width, height = 32, 32
	fullBox := jmath.AABB{MinX: 0, MinY: 0, MaxX: width, MaxY: height}

	f := newFixture(width, height)
	f.addGroupCommand(gfx.BeginGroup, 0, gfx.OpOverwrite, opaqueWhite, fullBox)
	f.addCommand(gfx.PrimitiveDisc, gfx.FillSolid, 0, opaqueRed, fullBox, 8, 16, 6, 0)
	f.addCommand(gfx.PrimitiveDisc, gfx.FillSolid, 0, opaqueBlue, fullBox, 24, 16, 6, 0)
	f.addGroupCommand(gfx.EndGroup, 0, gfx.OpOverwrite, opaqueWhite, fullBox, 0, 0)

	cfg, tileHeads, tileNodes := f.runPipeline(t, width, height)

	_, _, _, a := f.samplePixel(cfg, tileHeads, tileNodes, 16, 16)
	if a > 0.1 {
		t.Fatalf("gap midpoint alpha = %v, want ~0 (a hard min should leave the gap empty)", a)
	}
}

// TestPipelineGroupOutlineRing checks that end_group's outline_width draws
// an anti-aliased ring in outline_color just outside the grouped shape,
// where the body fill itself no longer covers the pixel.
func TestPipelineGroupOutlineRing(t *testing.T) {
	const width, height = 32, 32
	fullBox := jmath.AABB{MinX: 0, MinY: 0, MaxX: width, MaxY: height}

	f := newFixture(width, height)
	f.addGroupCommand(gfx.BeginGroup, 0, gfx.OpOverwrite, opaqueWhite, fullBox)
	f.addCommand(gfx.PrimitiveDisc, gfx.FillSolid, 0, opaqueRed, fullBox, 16, 16, 10, 0)
	// effective_smoothness=4, outline_width=4: a 4px outline band, no blend.
	f.addGroupCommand(gfx.EndGroup, 0, gfx.OpOverwrite, opaqueGreen, fullBox, 4, 4)

	cfg, tileHeads, tileNodes := f.runPipeline(t, width, height)

	// (26,16) sits half a pixel outside the radius-10 disc, well inside the
	// 4px band centred on its edge.
	r, g, _, a := f.samplePixel(cfg, tileHeads, tileNodes, 26, 16)
	if a < 0.9 {
		t.Fatalf("outline band alpha = %v, want ~1", a)
	}
	if g < r {
		t.Fatalf("outline band color = (r=%v g=%v), want the outline's green to dominate over the disc's red", r, g)
	}
}

// TestPipelineGlyphSamplesFontAtlas checks that a char primitive's alpha
// follows the font atlas's per-texel coverage instead of being a flat box,
// the defect a maintainer review flagged against the untextured fallback.
func TestPipelineGlyphSamplesFontAtlas(t *testing.T) {
	const width, height = 16, 16
	box := jmath.AABB{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

	f := newFixture(width, height)
	f.addCommand(gfx.PrimitiveChar, gfx.FillSolid, 0, opaqueWhite, box,
		box.MinX, box.MinY, box.MaxX, box.MaxY, 0, 0, 1, 1)

	cfg, tileHeads, tileNodes := f.runPipeline(t, width, height)

	atlas := &font.Atlas{TextureW: 2, TextureH: 1, Texture: []byte{0, 255}}
	tex := &Textures{FontAtlas: atlas}

	_, _, _, aLeft := f.samplePixelTex(cfg, tileHeads, tileNodes, 0, 5, tex)
	if aLeft > 0.1 {
		t.Fatalf("glyph left-texel alpha = %v, want ~0 (atlas coverage there is 0)", aLeft)
	}
	_, _, _, aRight := f.samplePixelTex(cfg, tileHeads, tileNodes, 6, 5, tex)
	if aRight < 0.9 {
		t.Fatalf("glyph right-texel alpha = %v, want ~1 (atlas coverage there is 255)", aRight)
	}
}

// TestPipelineQuadSamplesTextureArray checks that a quad primitive's color
// comes from its addressed texture array layer instead of a flat fill.
func TestPipelineQuadSamplesTextureArray(t *testing.T) {
	const width, height = 16, 16
	box := jmath.AABB{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

	f := newFixture(width, height)
	f.addCommand(gfx.PrimitiveQuad, gfx.FillSolid, 0, opaqueWhite, box,
		box.MinX, box.MinY, box.MaxX, box.MaxY, 0, 0)

	cfg, tileHeads, tileNodes := f.runPipeline(t, width, height)

	tex := &Textures{
		QuadArrayWidth:  2,
		QuadArrayHeight: 1,
		QuadArraySlices: [][]byte{{255, 0, 0, 255, 0, 0, 255, 255}}, // layer 0: blue | red
	}

	_, _, bLeft, _ := f.samplePixelTex(cfg, tileHeads, tileNodes, 3, 5, tex)
	if bLeft < 0.9 {
		t.Fatalf("quad left-texel blue channel = %v, want ~1", bLeft)
	}
	rRight, _, _, _ := f.samplePixelTex(cfg, tileHeads, tileNodes, 6, 5, tex)
	if rRight < 0.9 {
		t.Fatalf("quad right-texel red channel = %v, want ~1", rRight)
	}
}

// TestCoverageRampWidensWithAAWidth pins Coverage to the linear falloff
// spec'd for the boundary, and checks a wider aa_width spreads that falloff
// further from the edge than a narrower one does.
func TestCoverageRampWidensWithAAWidth(t *testing.T) {
	if cov := Coverage(-3, 2); cov != 1 {
		t.Fatalf("Coverage(-3, 2) = %v, want 1 (well past the ramp, fully inside)", cov)
	}
	if cov := Coverage(1, 2); cov != 0 {
		t.Fatalf("Coverage(1, 2) = %v, want 0 (past the boundary, fully outside)", cov)
	}

	// A point half a pixel inside the boundary sits further along a narrow
	// ramp than a wide one, so it reads more opaque under the narrow ramp.
	const d = -0.5
	narrow := Coverage(d, 1)
	wide := Coverage(d, 4)
	if wide >= narrow {
		t.Fatalf("Coverage(%v, 4) = %v, want it below Coverage(%v, 1) = %v", d, wide, d, narrow)
	}
}

func TestRegionPredicateMatchesQuantizedOverlap(t *testing.T) {
	const width, height = 64, 64 // 4x4 tiles, 1x1 regions

	f := newFixture(width, height)
	box := jmath.AABB{MinX: 0, MinY: 0, MaxX: 16, MaxY: 16}
	f.addCommand(gfx.PrimitiveAABox, gfx.FillSolid, 0, opaqueWhite, box, box.MinX, box.MinY, box.MaxX, box.MaxY, 0, 0)

	cfg := renderer.NewRenderConfig(width, height, uint32(len(f.enc.Commands)), [4]float32{}, false, testAAWidth)
	predicate := make([]uint32, cfg.BufferSizes.RegionPredicate.Len())
	RegionPredicate(cfg, f.enc.CommandsAABB, predicate)

	if predicate[0] != 1 {
		t.Fatalf("predicate[0] = %d, want 1 (the box's only region)", predicate[0])
	}
}
