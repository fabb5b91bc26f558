// Copyright 2023 the Vello Authors
// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT OR Unlicense

// Package cpu provides CPU-side twins of the region and tile binning compute
// kernels and the tile rasterizer, one function per WGSL kernel in
// engine/wgpu_engine/shaders. They exist for deterministic tests: running
// the same binning and SDF math on the CPU, against the same buffer layouts
// the GPU kernels read and write, lets a test assert on exact pixel and
// tile-list contents without a GPU.
//
// These functions intentionally replicate the compute shaders' control flow
// instead of using more CPU-friendly alternatives. They are a test harness,
// not a viable rendering fallback.
package cpu

import (
	"math"

	"gpudraw/encoding"
	"gpudraw/font"
	"gpudraw/gfx"
	"gpudraw/jmath"
	"gpudraw/renderer"
)

// RegionPredicate mirrors regionPredicateWGSL: for every (region, command)
// pair it records whether the command's quantized AABB overlaps that
// region. predicate must be sized widthInRegions*heightInRegions*numCommands
// (at least 1*numCommands when there are no regions), matching
// renderer.BufferSizes.RegionPredicate.
func RegionPredicate(cfg *renderer.RenderConfig, aabbs []jmath.QuantAABB, predicate []uint32) {
	f := cfg.Frame
	numRegions := max(f.WidthInRegions*f.HeightInRegions, 1)
	for i := uint32(0); i < f.NumCommands; i++ {
		box := aabbs[i]
		regionBox := jmath.QuantAABB{
			MinX: box.MinX / encoding.RegionSize,
			MinY: box.MinY / encoding.RegionSize,
			MaxX: box.MaxX / encoding.RegionSize,
			MaxY: box.MaxY / encoding.RegionSize,
		}
		for r := uint32(0); r < numRegions; r++ {
			rx := uint8(r % f.WidthInRegions)
			ry := uint8(r / f.WidthInRegions)
			v := uint32(0)
			if regionBox.OverlapsTile(rx, ry) {
				v = 1
			}
			predicate[r*f.NumCommands+i] = v
		}
	}
}

// RegionExclusiveScan mirrors regionExclusiveScanWGSL's single-thread serial
// prefix sum, restarted at the start of each region's num_commands-wide
// slice of the predicate array, so every region's scan values index into
// that region's own slice of region_indices.
func RegionExclusiveScan(cfg *renderer.RenderConfig, predicate, scan []uint32) {
	f := cfg.Frame
	numRegions := max(f.WidthInRegions*f.HeightInRegions, 1)
	n := numRegions * f.NumCommands
	var sum uint32
	for i := uint32(0); i < n; i++ {
		if i%f.NumCommands == 0 {
			sum = 0
		}
		scan[i] = sum
		sum += predicate[i]
	}
}

// RegionBin mirrors regionBinWGSL: it scatters each command's index into
// region_indices at the slot region_scan assigned it, once per region it
// overlaps.
func RegionBin(cfg *renderer.RenderConfig, predicate, scan, indices []uint32) {
	f := cfg.Frame
	numRegions := max(f.WidthInRegions*f.HeightInRegions, 1)
	for i := uint32(0); i < f.NumCommands; i++ {
		for r := uint32(0); r < numRegions; r++ {
			idx := r*f.NumCommands + i
			if predicate[idx] == 1 {
				indices[r*f.NumCommands+scan[idx]] = i
			}
		}
	}
}

// TileBin mirrors tileBinWGSL: for every (command, tile) pair whose
// quantized AABBs overlap, it bump-allocates a node out of tileNodes and
// prepends it onto tileHeads. Node index 0 means "list end", so every
// allocated index is biased by one; allocation stops once the arena is
// exhausted, matching the GPU kernel's silent drop. A tile's index is
// appended to tileIndices the first time it receives a node this frame, so
// counters.NumTiles ends up the count of tiles actually touched rather than
// the total tile count, and tileIndices[0:NumTiles] is the compact list the
// rasterize stage dispatches one instance per.
func TileBin(cfg *renderer.RenderConfig, commands []encoding.DrawCommand, aabbs []jmath.QuantAABB, tileHeads []uint32, tileNodes []renderer.TileNode, tileIndices []uint32, counters *renderer.Counters) {
	f := cfg.Frame
	numTiles := f.WidthInTiles * f.HeightInTiles
	for cmdI := uint32(0); cmdI < f.NumCommands; cmdI++ {
		box := aabbs[cmdI]
		for tileI := uint32(0); tileI < numTiles; tileI++ {
			tx := uint8(tileI % f.WidthInTiles)
			ty := uint8(tileI / f.WidthInTiles)
			if !box.OverlapsTile(tx, ty) {
				continue
			}

			raw := counters.NumNodes
			counters.NumNodes++
			nodeIdx := raw + 1
			if nodeIdx >= f.MaxNodes {
				continue
			}

			cmd := commands[cmdI]
			prevHead := tileHeads[tileI]
			if prevHead == 0 {
				tileIndices[counters.NumTiles] = tileI
				counters.NumTiles++
			}
			tileHeads[tileI] = nodeIdx
			tileNodes[nodeIdx-1] = renderer.TileNode{
				Next:         prevHead,
				CommandIndex: uint16(cmdI),
				CommandType:  cmd.Type & 0x3f,
			}
		}
	}
}

// WriteICB mirrors writeICBWGSL's trivial indirect-draw-args fill: a tile
// quad drawn once per tile that actually received a fragment this frame,
// read from counters.NumTiles rather than the tile grid's full extent.
func WriteICB(counters *renderer.Counters) renderer.IndirectDrawArgs {
	return renderer.IndirectDrawArgs{
		VertexCount:   6,
		InstanceCount: max(counters.NumTiles, 1),
		FirstVertex:   0,
		FirstInstance: 0,
	}
}

func sdBox(p, b jmath.Vec2, r float32) float32 {
	dx, dy := jmath.Abs32(p.X)-b.X+r, jmath.Abs32(p.Y)-b.Y+r
	inside := min(max(dx, dy), 0)
	ox, oy := max(dx, 0), max(dy, 0)
	outside := float32(math.Hypot(float64(ox), float64(oy)))
	return inside + outside - r
}

func sdSegment(p, a, b jmath.Vec2) float32 {
	pa := p.Sub(a)
	ba := b.Sub(a)
	denom := max(ba.Dot(ba), 1e-6)
	h := clamp32(pa.Dot(ba)/denom, 0, 1)
	return pa.Sub(ba.Scale(h)).Length()
}

func sdEllipse(p, ab jmath.Vec2) float32 {
	k0 := jmath.Vec2{X: p.X / ab.X, Y: p.Y / ab.Y}.Length()
	k1 := jmath.Vec2{X: p.X / (ab.X * ab.X), Y: p.Y / (ab.Y * ab.Y)}.Length()
	return k0 * (k0 - 1) / max(k1, 1e-6)
}

func sdTriangle(p, a, b, c jmath.Vec2) float32 {
	e0, e1, e2 := b.Sub(a), c.Sub(b), a.Sub(c)
	v0, v1, v2 := p.Sub(a), p.Sub(b), p.Sub(c)
	pq0 := v0.Sub(e0.Scale(clamp32(v0.Dot(e0)/e0.Dot(e0), 0, 1)))
	pq1 := v1.Sub(e1.Scale(clamp32(v1.Dot(e1)/e1.Dot(e1), 0, 1)))
	pq2 := v2.Sub(e2.Scale(clamp32(v2.Dot(e2)/e2.Dot(e2), 0, 1)))
	s := sign32(e0.X*e2.Y - e0.Y*e2.X)
	d0x, d0y := pq0.Dot(pq0), s*(v0.X*e0.Y-v0.Y*e0.X)
	d1x, d1y := pq1.Dot(pq1), s*(v1.X*e1.Y-v1.Y*e1.X)
	d2x, d2y := pq2.Dot(pq2), s*(v2.X*e2.Y-v2.Y*e2.X)
	dx, dy := d0x, d0y
	if d1x < dx {
		dx, dy = d1x, d1y
	}
	if d2x < dx {
		dx, dy = d2x, d2y
	}
	return -float32(math.Sqrt(float64(dx))) * sign32(dy)
}

func sdPie(p jmath.Vec2, startAngle, endAngle, radius float32) float32 {
	mid := (startAngle + endAngle) * 0.5
	half := (endAngle - startAngle) * 0.5
	c := jmath.Vec2{X: sin32(half), Y: cos32(half)}
	rot := rotate(p, -mid)
	q := jmath.Vec2{X: jmath.Abs32(rot.X), Y: rot.Y}
	l := q.Length() - radius
	m := q.Sub(c.Scale(clamp32(q.Dot(c), 0, radius))).Length()
	return max(l, m*sign32(c.Y*q.X-c.X*q.Y))
}

func sdArc(p jmath.Vec2, startAngle, endAngle, radius, thickness float32) float32 {
	mid := (startAngle + endAngle) * 0.5
	half := (endAngle - startAngle) * 0.5
	c := jmath.Vec2{X: sin32(half), Y: cos32(half)}
	rot := rotate(p, -mid)
	q := jmath.Vec2{X: jmath.Abs32(rot.X), Y: rot.Y}
	var d float32
	if c.Y*q.X > c.X*q.Y {
		d = q.Sub(c.Scale(radius)).Length()
	} else {
		d = jmath.Abs32(q.Length() - radius)
	}
	return d - thickness*0.5
}

func rotate(p jmath.Vec2, angle float32) jmath.Vec2 {
	s, co := sin32(angle), cos32(angle)
	return jmath.Vec2{X: p.X*co - p.Y*s, Y: p.X*s + p.Y*co}
}

func clamp32(x, lo, hi float32) float32 {
	return min(max(x, lo), hi)
}

func sign32(x float32) float32 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func sin32(x float32) float32 { return float32(math.Sin(float64(x))) }
func cos32(x float32) float32 { return float32(math.Cos(float64(x))) }

// EvalSDF mirrors eval_sdf: the signed distance of p, in the target's pixel
// space, to the shape commands[cmdIndex] describes, adjusted for fill mode
// so negative means inside.
func EvalSDF(commands []encoding.DrawCommand, drawData []float32, cmdIndex uint32, p jmath.Vec2) float32 {
	cmd := commands[cmdIndex]
	base := cmd.DataIndex
	fill := gfx.FillMode(cmd.FillMode)
	d := float32(1e6)

	switch gfx.PrimitiveKind(cmd.Type) {
	case gfx.PrimitiveAABox:
		minp := jmath.Vec2{X: drawData[base], Y: drawData[base+1]}
		maxp := jmath.Vec2{X: drawData[base+2], Y: drawData[base+3]}
		roundness, rt := drawData[base+4], drawData[base+5]
		c := minp.Add(maxp).Scale(0.5)
		b := maxp.Sub(minp).Scale(0.5)
		d = sdBox(p.Sub(c), b, roundness)
		if fill == gfx.FillHollow || fill == gfx.FillOutline {
			d = jmath.Abs32(d) - rt
		}
	case gfx.PrimitiveOrientedBox:
		p0 := jmath.Vec2{X: drawData[base], Y: drawData[base+1]}
		p1 := jmath.Vec2{X: drawData[base+2], Y: drawData[base+3]}
		width, rt := drawData[base+4], drawData[base+5]
		d = sdSegment(p, p0, p1) - width*0.5
		if fill == gfx.FillHollow || fill == gfx.FillOutline {
			d = jmath.Abs32(d) - rt
		}
	case gfx.PrimitiveDisc:
		c := jmath.Vec2{X: drawData[base], Y: drawData[base+1]}
		radius := drawData[base+2]
		d = p.Sub(c).Length() - radius
		switch fill {
		case gfx.FillHollow:
			thickness := drawData[base+3]
			d = jmath.Abs32(d) - thickness
		case gfx.FillOutline:
			d = jmath.Abs32(d) - 1
		}
	case gfx.PrimitiveTriangle:
		a := jmath.Vec2{X: drawData[base], Y: drawData[base+1]}
		b := jmath.Vec2{X: drawData[base+2], Y: drawData[base+3]}
		c := jmath.Vec2{X: drawData[base+4], Y: drawData[base+5]}
		thickness := drawData[base+6]
		d = sdTriangle(p, a, b, c)
		if fill == gfx.FillHollow || fill == gfx.FillOutline {
			d = jmath.Abs32(d) - thickness
		}
	case gfx.PrimitiveEllipse:
		c := jmath.Vec2{X: drawData[base], Y: drawData[base+1]}
		ab := jmath.Vec2{X: drawData[base+2], Y: drawData[base+3]}
		thickness := drawData[base+4]
		d = sdEllipse(p.Sub(c), ab)
		if fill == gfx.FillHollow || fill == gfx.FillOutline {
			d = jmath.Abs32(d) - thickness
		}
	case gfx.PrimitivePie:
		c := jmath.Vec2{X: drawData[base], Y: drawData[base+1]}
		radius := drawData[base+2]
		startAngle, endAngle := drawData[base+3], drawData[base+4]
		thickness := drawData[base+5]
		d = sdPie(p.Sub(c), startAngle, endAngle, radius)
		if fill == gfx.FillHollow || fill == gfx.FillOutline {
			d = jmath.Abs32(d) - thickness
		}
	case gfx.PrimitiveArc:
		c := jmath.Vec2{X: drawData[base], Y: drawData[base+1]}
		radius := drawData[base+2]
		startAngle, endAngle := drawData[base+3], drawData[base+4]
		thickness := drawData[base+5]
		d = sdArc(p.Sub(c), startAngle, endAngle, radius, thickness)
	case gfx.PrimitiveBlurredBox:
		minp := jmath.Vec2{X: drawData[base], Y: drawData[base+1]}
		maxp := jmath.Vec2{X: drawData[base+2], Y: drawData[base+3]}
		roundness := drawData[base+4]
		c := minp.Add(maxp).Scale(0.5)
		b := maxp.Sub(minp).Scale(0.5)
		d = sdBox(p.Sub(c), b, roundness)
	case gfx.PrimitiveChar, gfx.PrimitiveQuad:
		minp := jmath.Vec2{X: drawData[base], Y: drawData[base+1]}
		maxp := jmath.Vec2{X: drawData[base+2], Y: drawData[base+3]}
		c := minp.Add(maxp).Scale(0.5)
		b := maxp.Sub(minp).Scale(0.5)
		d = sdBox(p.Sub(c), b, 0)
	}
	return d
}

// Coverage mirrors the fragment shader's coverage(), the anti-aliased
// boundary falloff every primitive's signed distance is mapped through.
// aaWidth is the frame's uniform AA ramp width, not the per-draw-call
// aaWidth threaded through encoding's AABB growth.
func Coverage(d, aaWidth float32) float32 {
	return 1 - jmath.LinearStep(-aaWidth, 0, d)
}

func unpackBGRA8F32(v uint32) (r, g, b, a float32) {
	r8, g8, b8, a8 := gfx.UnpackBGRA8(v)
	return float32(r8) / 255, float32(g8) / 255, float32(b8) / 255, float32(a8) / 255
}

// sampleFontAtlas mirrors sample_font_atlas: it maps p onto the glyph's
// stored uv rect across its box and tints the atlas's single-channel
// coverage sample by the draw command's color.
func sampleFontAtlas(commands []encoding.DrawCommand, drawData []float32, colors []uint32, cmdIndex uint32, p jmath.Vec2, atlas *font.Atlas) (r, g, b, a float32) {
	cmd := commands[cmdIndex]
	base := cmd.DataIndex
	minp := jmath.Vec2{X: drawData[base], Y: drawData[base+1]}
	maxp := jmath.Vec2{X: drawData[base+2], Y: drawData[base+3]}
	uv0 := jmath.Vec2{X: drawData[base+4], Y: drawData[base+5]}
	uv1 := jmath.Vec2{X: drawData[base+6], Y: drawData[base+7]}
	tr, tg, tb, ta := unpackBGRA8F32(colors[cmdIndex])
	if atlas == nil || atlas.TextureW == 0 || atlas.TextureH == 0 {
		return tr, tg, tb, 0
	}
	tx := clamp32(safeDiv(p.X-minp.X, maxp.X-minp.X), 0, 1)
	ty := clamp32(safeDiv(p.Y-minp.Y, maxp.Y-minp.Y), 0, 1)
	u := uv0.X + (uv1.X-uv0.X)*tx
	v := uv0.Y + (uv1.Y-uv0.Y)*ty
	texX := min(int(u*float32(atlas.TextureW)), int(atlas.TextureW)-1)
	texY := min(int(v*float32(atlas.TextureH)), int(atlas.TextureH)-1)
	texX = max(texX, 0)
	texY = max(texY, 0)
	cov := float32(atlas.Texture[texY*int(atlas.TextureW)+texX]) / 255
	return tr, tg, tb, ta * cov
}

// sampleQuadArray mirrors sample_quad_array: it maps p onto the quad's box
// and reads the texel straight from layer pixelsBGRA8, the same slice
// UploadQuadSlice writes into the GPU texture array.
func sampleQuadArray(commands []encoding.DrawCommand, drawData []float32, cmdIndex uint32, p jmath.Vec2, quadArrayWidth, quadArrayHeight uint32, slices [][]byte) (r, g, b, a float32) {
	cmd := commands[cmdIndex]
	base := cmd.DataIndex
	minp := jmath.Vec2{X: drawData[base], Y: drawData[base+1]}
	maxp := jmath.Vec2{X: drawData[base+2], Y: drawData[base+3]}
	layer := int(drawData[base+5])
	if layer < 0 || layer >= len(slices) || slices[layer] == nil || quadArrayWidth == 0 || quadArrayHeight == 0 {
		return 0, 0, 0, 0
	}
	tx := clamp32(safeDiv(p.X-minp.X, maxp.X-minp.X), 0, 1)
	ty := clamp32(safeDiv(p.Y-minp.Y, maxp.Y-minp.Y), 0, 1)
	texX := min(int(tx*float32(quadArrayWidth)), int(quadArrayWidth)-1)
	texY := min(int(ty*float32(quadArrayHeight)), int(quadArrayHeight)-1)
	texX, texY = max(texX, 0), max(texY, 0)
	off := (texY*int(quadArrayWidth) + texX) * 4
	pixels := slices[layer]
	bb, gg, rr, aa := pixels[off], pixels[off+1], pixels[off+2], pixels[off+3]
	return float32(rr) / 255, float32(gg) / 255, float32(bb) / 255, float32(aa) / 255
}

func safeDiv(a, b float32) float32 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Textures bundles the sampled resources EvalSrcColor needs for glyph and
// quad primitives. A nil Textures (or nil fields within it) makes those
// primitives sample as fully transparent, the same blank result the GPU
// pipeline gets from an unconfigured atlas or texture array.
type Textures struct {
	FontAtlas       *font.Atlas
	QuadArrayWidth  uint32
	QuadArrayHeight uint32
	QuadArraySlices [][]byte // one BGRA8 []byte per layer, len == W*H*4
}

// EvalSrcColor mirrors eval_src_color: a texture sample for glyph and quad
// primitives, the packed draw color otherwise.
func EvalSrcColor(commands []encoding.DrawCommand, drawData []float32, colors []uint32, cmdIndex uint32, p jmath.Vec2, tex *Textures) (r, g, b, a float32) {
	cmd := commands[cmdIndex]
	switch gfx.PrimitiveKind(cmd.Type) {
	case gfx.PrimitiveChar:
		var atlas *font.Atlas
		if tex != nil {
			atlas = tex.FontAtlas
		}
		return sampleFontAtlas(commands, drawData, colors, cmdIndex, p, atlas)
	case gfx.PrimitiveQuad:
		if tex == nil {
			return 0, 0, 0, 0
		}
		return sampleQuadArray(commands, drawData, cmdIndex, p, tex.QuadArrayWidth, tex.QuadArrayHeight, tex.QuadArraySlices)
	default:
		return unpackBGRA8F32(colors[cmdIndex])
	}
}

// RasterizePixel mirrors fs_main: it walks tile's node list front-to-back
// (the most recently submitted command first), compositing each primitive
// under whatever has already been written, and returns the resulting
// premultiplied color over clearColor. begin_group/end_group pairs fold
// their members' SDFs into one group shape (jmath.SmoothMin for the blend
// operator, a hard min otherwise) and composite only the nearest member's
// color plus, when configured, an anti-aliased outline band.
func RasterizePixel(commands []encoding.DrawCommand, colors []uint32, aabbs []jmath.QuantAABB, drawData []float32, clips []encoding.Clip, tileHeads []uint32, tileNodes []renderer.TileNode, tileIndex uint32, pixel jmath.Vec2, clearColor [4]float32, aaWidth float32, tex *Textures) (r, g, b, a float32) {
	var outR, outG, outB, outA float32

	var inGroup bool
	var groupOp gfx.GroupOp
	var groupSmoothness, groupOutlineWidth float32
	var groupOutlineR, groupOutlineG, groupOutlineB, groupOutlineA float32
	var groupClipIndex uint8
	groupD := float32(1e6)
	closestD := float32(1e6)
	var closestR, closestG, closestB, closestA float32

	node := tileHeads[tileIndex]
	for node != 0 && outA < 0.999 {
		entry := tileNodes[node-1]
		cmdI := uint32(entry.CommandIndex)
		cmd := commands[cmdI]
		kind := gfx.PrimitiveKind(cmd.Type)

		switch {
		case kind == gfx.EndGroup:
			base := cmd.DataIndex
			groupSmoothness = drawData[base+0]
			groupOutlineWidth = drawData[base+1]
			groupOp = cmd.Op()
			groupOutlineR, groupOutlineG, groupOutlineB, groupOutlineA = unpackBGRA8F32(colors[cmdI])
			groupClipIndex = cmd.ClipIndex
			groupD, closestD = 1e6, 1e6
			closestR, closestG, closestB, closestA = 0, 0, 0, 0
			inGroup = true
		case kind == gfx.BeginGroup:
			inGroup = false
			if clips[groupClipIndex].Contains(pixel) {
				if cov := Coverage(groupD, aaWidth); cov > 0 {
					srcA := closestA * cov
					outR += (1 - outA) * closestR * srcA
					outG += (1 - outA) * closestG * srcA
					outB += (1 - outA) * closestB * srcA
					outA += (1 - outA) * srcA
				}
				if groupOutlineWidth > 0 {
					if ocov := Coverage(jmath.Abs32(groupD)-groupOutlineWidth*0.5, aaWidth); ocov > 0 {
						oa := groupOutlineA * ocov
						outR += (1 - outA) * groupOutlineR * oa
						outG += (1 - outA) * groupOutlineG * oa
						outB += (1 - outA) * groupOutlineB * oa
						outA += (1 - outA) * oa
					}
				}
			}
		case inGroup:
			if clips[cmd.ClipIndex].Contains(pixel) {
				d := EvalSDF(commands, drawData, cmdI, pixel)
				if groupOp == gfx.OpBlend {
					groupD = jmath.SmoothMin(groupD, d, groupSmoothness)
				} else {
					groupD = min(groupD, d)
				}
				if d < closestD {
					closestD = d
					closestR, closestG, closestB, closestA = EvalSrcColor(commands, drawData, colors, cmdI, pixel, tex)
				}
			}
		default:
			if clips[cmd.ClipIndex].Contains(pixel) {
				d := EvalSDF(commands, drawData, cmdI, pixel)
				if cov := Coverage(d, aaWidth); cov > 0 {
					sr, sg, sb, sa := EvalSrcColor(commands, drawData, colors, cmdI, pixel, tex)
					if gfx.FillMode(cmd.FillMode) == gfx.FillGradient {
						box := aabbs[cmdI]
						span := max(float32(box.MaxX)-float32(box.MinX), 1) * encoding.TileSize
						t := clamp32((pixel.X-float32(box.MinX)*encoding.TileSize)/span, 0, 1)
						sr, sg, sb = sr+(1-sr)*t, sg+(1-sg)*t, sb+(1-sb)*t
					}
					srcA := sa * cov
					outR += (1 - outA) * sr * srcA
					outG += (1 - outA) * sg * srcA
					outB += (1 - outA) * sb * srcA
					outA += (1 - outA) * srcA
				}
			}
		}

		node = entry.Next
	}

	bgR, bgG, bgB, bgA := clearColor[0], clearColor[1], clearColor[2], clearColor[3]
	outR += (1 - outA) * bgR * bgA
	outG += (1 - outA) * bgG * bgA
	outB += (1 - outA) * bgB * bgA
	outA += (1 - outA) * bgA
	return outR, outG, outB, outA
}
