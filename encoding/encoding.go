// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package encoding is the command-buffer front end: it turns Draw* calls
// into the parallel command/color/aabb/draw-data/clip arrays the GPU
// binning and rasterization stages consume, exactly as the original
// renderer's per-frame DynamicBuffer set does.
package encoding

import (
	"honnef.co/go/color"

	"gpudraw/gfx"
	"gpudraw/jmath"
)

// Capacity limits shared with the GPU binning kernels; see common.h.
const (
	TileSize                 = 16
	RegionSize               = 16
	MaxNodesCount            = 1 << 22
	InvalidIndex             = 0xffffffff
	MaxClips                 = 256
	MaxCommands              = 1 << 16
	MaxDrawData              = MaxCommands * 4
	SimdGroupSize            = 32
	MaxThreadsPerThreadgroup = 1024
	MaxGlyphs                = 128
)

// Encoding accumulates one frame's worth of draw commands. It is reset and
// reused across frames to avoid reallocating its backing arrays.
type Encoding struct {
	Commands     []DrawCommand
	Colors       []uint32
	CommandsAABB []jmath.QuantAABB
	DrawData     []float32
	Clips        []Clip

	combinationAABB jmath.AABB
	groupStack      []groupFrame

	// LogFunc receives capacity-exhaustion and usage warnings. Nil means
	// warnings are dropped.
	LogFunc func(string)
}

type groupFrame struct {
	startCommand        int
	op                  gfx.GroupOp
	accumAABB           jmath.QuantAABB
	effectiveSmoothness float32
	outlineWidth        float32
}

func (enc *Encoding) warn(msg string) {
	if enc.LogFunc != nil {
		enc.LogFunc(msg)
	}
}

// IsEmpty reports whether any draw commands have been recorded this frame.
func (enc *Encoding) IsEmpty() bool {
	return len(enc.Commands) == 0
}

// Reset clears the encoding for reuse, keeping the backing arrays and the
// base clip rect matching the render target.
func (enc *Encoding) Reset(width, height uint32) {
	enc.Commands = enc.Commands[:0]
	enc.Colors = enc.Colors[:0]
	enc.CommandsAABB = enc.CommandsAABB[:0]
	enc.DrawData = enc.DrawData[:0]
	enc.Clips = enc.Clips[:0]
	enc.combinationAABB = jmath.InvalidAABB()
	enc.groupStack = enc.groupStack[:0]
	enc.Clips = append(enc.Clips, Clip{Kind: ClipKindRect, A: 0, B: 0, C: float32(width), D: float32(height)})
}

// CombinationAABB is the screen-space bounding box of every command
// recorded this frame.
func (enc *Encoding) CombinationAABB() jmath.AABB {
	return enc.combinationAABB
}

// SetClipRect pushes a new clip rectangle, skipping the push when it is
// identical to the currently active one (the original renderer's
// redundant-clip-rect guard). It returns the clip index future draw calls
// should stamp into their command.
func (enc *Encoding) SetClipRect(r jmath.AABB) uint8 {
	return enc.pushClip(clipRectFromAABB(r))
}

// SetClipDisc pushes a new circular clip, skipping the push when it is
// identical to the currently active clip, matching set_cliprect's
// redundant-clip guard for the disc variant.
func (enc *Encoding) SetClipDisc(center jmath.Vec2, radius float32) uint8 {
	return enc.pushClip(clipDiscFromCircle(center, radius))
}

func (enc *Encoding) pushClip(c Clip) uint8 {
	if len(enc.Clips) > 0 && enc.Clips[len(enc.Clips)-1].equal(c) {
		return uint8(len(enc.Clips) - 1)
	}
	if len(enc.Clips) >= MaxClips {
		enc.warn("too many clip shapes, maximum is 256")
		return uint8(len(enc.Clips) - 1)
	}
	enc.Clips = append(enc.Clips, c)
	return uint8(len(enc.Clips) - 1)
}

func (enc *Encoding) currentClipIndex() uint8 {
	if len(enc.Clips) == 0 {
		return 0
	}
	return uint8(len(enc.Clips) - 1)
}

// reserveCommand allocates one command slot, returning false and logging a
// warning if the command buffer is full.
func (enc *Encoding) reserveCommand() bool {
	if len(enc.Commands) >= MaxCommands {
		enc.warn("out of draw command buffer, expect graphical artefacts")
		return false
	}
	return true
}

// reserveDrawData allocates n float slots in the draw-data stream, returning
// false and logging a warning if the stream is full. reserveCommand only
// checks for room and appends nothing, so a failure here leaves no command
// slot behind to roll back.
func (enc *Encoding) reserveDrawData(n int) (int, bool) {
	if len(enc.DrawData)+n > MaxDrawData {
		enc.warn("out of draw data buffer, expect graphical artefacts")
		return 0, false
	}
	idx := len(enc.DrawData)
	enc.DrawData = append(enc.DrawData, make([]float32, n)...)
	return idx, true
}

func packColor(c color.Color) uint32 {
	return gfx.PackBGRA8(&c)
}

// pushCommand records a command, its color, its AABB, and merges the AABB
// into the frame (or enclosing group's) combination box. Callers that fail
// to reserve their draw data must not call this.
func (enc *Encoding) pushCommand(kind gfx.PrimitiveKind, fill gfx.FillMode, op gfx.GroupOp, clipIndex uint8, dataIndex uint32, col color.Color, box jmath.AABB) {
	enc.Commands = append(enc.Commands, packCommand(kind, fill, clipIndex, dataIndex, op))
	enc.Colors = append(enc.Colors, packColor(col))
	qa := jmath.QuantizeAABB(box, TileSize)
	enc.CommandsAABB = append(enc.CommandsAABB, qa)
	if len(enc.groupStack) > 0 {
		top := &enc.groupStack[len(enc.groupStack)-1]
		top.accumAABB = top.accumAABB.Merge(qa)
	}
	enc.combinationAABB = enc.combinationAABB.Merge(box)
}

func aaBump(op gfx.GroupOp, aaWidth, smoothValue float32) float32 {
	if op == gfx.OpBlend {
		return max(aaWidth, smoothValue)
	}
	return aaWidth
}

// --- primitive encoders -----------------------------------------------

// DrawDisc records a filled or ringed disc, matching renderer_draw_disc.
func (enc *Encoding) DrawDisc(center jmath.Vec2, radius, thickness float32, fill gfx.FillMode, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) {
	thickness *= 0.5
	if !enc.reserveCommand() {
		return
	}
	n := 3
	if fill == gfx.FillHollow {
		n = 4
	}
	idx, ok := enc.reserveDrawData(n)
	if !ok {
		return
	}
	enc.DrawData[idx+0] = center.X
	enc.DrawData[idx+1] = center.Y
	enc.DrawData[idx+2] = radius
	maxRadius := radius + aaBump(op, aaWidth, smoothValue)
	if fill == gfx.FillHollow {
		maxRadius += thickness
		enc.DrawData[idx+3] = thickness
	}
	box := jmath.AABB{MinX: center.X - maxRadius, MinY: center.Y - maxRadius, MaxX: center.X + maxRadius, MaxY: center.Y + maxRadius}
	enc.pushCommand(gfx.PrimitiveDisc, fill, op, enc.currentClipIndex(), uint32(idx), col, box)
}

// DrawRing is od_draw_ring's convenience entry point for a hollow disc.
func (enc *Encoding) DrawRing(center jmath.Vec2, radius, thickness float32, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) {
	enc.DrawDisc(center, radius, thickness, gfx.FillHollow, col, op, aaWidth, smoothValue)
}

// DrawOrientedBox records a box of the given width swept between p0 and p1,
// matching renderer_draw_orientedbox. The rasterizer evaluates it as a
// capsule whose ends are rounded by half the width; for a solid fill
// roundness only grows the bounding box, and a hollow fill rings the capsule
// at half the given thickness.
func (enc *Encoding) DrawOrientedBox(p0, p1 jmath.Vec2, width, roundness, thickness float32, fill gfx.FillMode, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) {
	if p0.Sub(p1).LengthSq() < jmath.Epsilon {
		return
	}
	thickness *= 0.5
	if !enc.reserveCommand() {
		return
	}
	idx, ok := enc.reserveDrawData(6)
	if !ok {
		return
	}
	rt := roundness
	if fill == gfx.FillHollow {
		rt = thickness
	}
	bump := rt + aaBump(op, aaWidth, smoothValue)
	box := orientedBoxAABB(p0, p1, width, bump)
	enc.DrawData[idx+0] = p0.X
	enc.DrawData[idx+1] = p0.Y
	enc.DrawData[idx+2] = p1.X
	enc.DrawData[idx+3] = p1.Y
	enc.DrawData[idx+4] = width
	enc.DrawData[idx+5] = rt
	enc.pushCommand(gfx.PrimitiveOrientedBox, fill, op, enc.currentClipIndex(), uint32(idx), col, box)
}

func orientedBoxAABB(p0, p1 jmath.Vec2, width, bump float32) jmath.AABB {
	r := width*0.5 + bump
	box := jmath.AABB{
		MinX: min(p0.X, p1.X) - r, MinY: min(p0.Y, p1.Y) - r,
		MaxX: max(p0.X, p1.X) + r, MaxY: max(p0.Y, p1.Y) + r,
	}
	return box
}

// DrawLine records a solid capsule of the given width, matching
// renderer_draw_line.
func (enc *Encoding) DrawLine(p0, p1 jmath.Vec2, width float32, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) {
	enc.DrawOrientedBox(p0, p1, width, 0, 0, gfx.FillSolid, col, op, aaWidth, smoothValue)
}

// DrawBox records an axis-aligned, optionally rounded box.
func (enc *Encoding) DrawBox(box jmath.AABB, roundness, thickness float32, fill gfx.FillMode, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) {
	if !enc.reserveCommand() {
		return
	}
	idx, ok := enc.reserveDrawData(6)
	if !ok {
		return
	}
	rt := roundness
	if fill == gfx.FillHollow {
		rt = thickness * 0.5
	}
	bump := rt + aaBump(op, aaWidth, smoothValue)
	enc.DrawData[idx+0] = box.MinX
	enc.DrawData[idx+1] = box.MinY
	enc.DrawData[idx+2] = box.MaxX
	enc.DrawData[idx+3] = box.MaxY
	enc.DrawData[idx+4] = roundness
	enc.DrawData[idx+5] = rt
	enc.pushCommand(gfx.PrimitiveAABox, fill, op, enc.currentClipIndex(), uint32(idx), col, box.Grow(bump))
}

// DrawOrientedRect is od_draw_oriented_rect's convenience entry point:
// DrawOrientedBox with zero roundness. Since every oriented box is
// rasterized as a capsule, its ends are rounded by half the width, the same
// as DrawOrientedBox's; the corners are not square.
func (enc *Encoding) DrawOrientedRect(p0, p1 jmath.Vec2, width, thickness float32, fill gfx.FillMode, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) {
	enc.DrawOrientedBox(p0, p1, width, 0, thickness, fill, col, op, aaWidth, smoothValue)
}

// DrawBlurredBox records a blurred-box command whose bounding box is grown
// by three times blurRadius. The rasterizer draws it as a solid box of the
// given roundness with the ordinary anti-aliased edge; blurRadius is not
// stored in the draw data and no blur falloff is applied.
func (enc *Encoding) DrawBlurredBox(box jmath.AABB, roundness, blurRadius float32, col color.Color, op gfx.GroupOp) {
	if !enc.reserveCommand() {
		return
	}
	idx, ok := enc.reserveDrawData(5)
	if !ok {
		return
	}
	enc.DrawData[idx+0] = box.MinX
	enc.DrawData[idx+1] = box.MinY
	enc.DrawData[idx+2] = box.MaxX
	enc.DrawData[idx+3] = box.MaxY
	enc.DrawData[idx+4] = roundness
	enc.pushCommand(gfx.PrimitiveBlurredBox, gfx.FillSolid, op, enc.currentClipIndex(), uint32(idx), col, box.Grow(blurRadius*3))
}

// DrawTriangle records a filled or outlined triangle.
func (enc *Encoding) DrawTriangle(a, b, c jmath.Vec2, thickness float32, fill gfx.FillMode, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) {
	if !enc.reserveCommand() {
		return
	}
	idx, ok := enc.reserveDrawData(7)
	if !ok {
		return
	}
	bump := aaBump(op, aaWidth, smoothValue)
	if fill == gfx.FillHollow {
		bump += thickness
	}
	box := jmath.AABB{
		MinX: min(a.X, min(b.X, c.X)) - bump, MinY: min(a.Y, min(b.Y, c.Y)) - bump,
		MaxX: max(a.X, max(b.X, c.X)) + bump, MaxY: max(a.Y, max(b.Y, c.Y)) + bump,
	}
	enc.DrawData[idx+0] = a.X
	enc.DrawData[idx+1] = a.Y
	enc.DrawData[idx+2] = b.X
	enc.DrawData[idx+3] = b.Y
	enc.DrawData[idx+4] = c.X
	enc.DrawData[idx+5] = c.Y
	enc.DrawData[idx+6] = thickness
	enc.pushCommand(gfx.PrimitiveTriangle, fill, op, enc.currentClipIndex(), uint32(idx), col, box)
}

// DrawTriangleRing is the hollow-triangle convenience entry point the
// original library exposes separately from its filled counterpart
// (od_draw_triangle_ring).
func (enc *Encoding) DrawTriangleRing(a, b, c jmath.Vec2, thickness float32, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) {
	enc.DrawTriangle(a, b, c, thickness, gfx.FillHollow, col, op, aaWidth, smoothValue)
}

// DrawEllipse records a filled, outlined, or ringed ellipse.
func (enc *Encoding) DrawEllipse(center jmath.Vec2, radii jmath.Vec2, thickness float32, fill gfx.FillMode, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) {
	if !enc.reserveCommand() {
		return
	}
	idx, ok := enc.reserveDrawData(5)
	if !ok {
		return
	}
	bump := aaBump(op, aaWidth, smoothValue)
	if fill == gfx.FillHollow {
		bump += thickness
	}
	maxR := max(radii.X, radii.Y) + bump
	box := jmath.AABB{MinX: center.X - maxR, MinY: center.Y - maxR, MaxX: center.X + maxR, MaxY: center.Y + maxR}
	enc.DrawData[idx+0] = center.X
	enc.DrawData[idx+1] = center.Y
	enc.DrawData[idx+2] = radii.X
	enc.DrawData[idx+3] = radii.Y
	enc.DrawData[idx+4] = thickness
	enc.pushCommand(gfx.PrimitiveEllipse, fill, op, enc.currentClipIndex(), uint32(idx), col, box)
}

// DrawEllipseRing is od_draw_ellipse_ring's convenience entry point.
func (enc *Encoding) DrawEllipseRing(center, radii jmath.Vec2, thickness float32, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) {
	enc.DrawEllipse(center, radii, thickness, gfx.FillHollow, col, op, aaWidth, smoothValue)
}

// DrawPie records a filled, outlined, or ringed pie slice spanning
// [startAngle, endAngle) radians.
func (enc *Encoding) DrawPie(center jmath.Vec2, radius, startAngle, endAngle, thickness float32, fill gfx.FillMode, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) {
	if !enc.reserveCommand() {
		return
	}
	idx, ok := enc.reserveDrawData(6)
	if !ok {
		return
	}
	bump := radius + aaBump(op, aaWidth, smoothValue)
	if fill == gfx.FillHollow {
		bump += thickness
	}
	box := jmath.AABB{MinX: center.X - bump, MinY: center.Y - bump, MaxX: center.X + bump, MaxY: center.Y + bump}
	enc.DrawData[idx+0] = center.X
	enc.DrawData[idx+1] = center.Y
	enc.DrawData[idx+2] = radius
	enc.DrawData[idx+3] = startAngle
	enc.DrawData[idx+4] = endAngle
	enc.DrawData[idx+5] = thickness
	enc.pushCommand(gfx.PrimitivePie, fill, op, enc.currentClipIndex(), uint32(idx), col, box)
}

// DrawSectorRing is od_draw_sector_ring's convenience entry point.
func (enc *Encoding) DrawSectorRing(center jmath.Vec2, radius, startAngle, endAngle, thickness float32, col color.Color, op gfx.GroupOp, aaWidth, smoothValue float32) {
	enc.DrawPie(center, radius, startAngle, endAngle, thickness, gfx.FillHollow, col, op, aaWidth, smoothValue)
}

// DrawArc records a stroked arc of the given thickness.
func (enc *Encoding) DrawArc(center jmath.Vec2, radius, startAngle, endAngle, thickness float32, col color.Color, op gfx.GroupOp, aaWidth float32) {
	if !enc.reserveCommand() {
		return
	}
	idx, ok := enc.reserveDrawData(6)
	if !ok {
		return
	}
	bump := radius + thickness*0.5 + aaWidth
	box := jmath.AABB{MinX: center.X - bump, MinY: center.Y - bump, MaxX: center.X + bump, MaxY: center.Y + bump}
	enc.DrawData[idx+0] = center.X
	enc.DrawData[idx+1] = center.Y
	enc.DrawData[idx+2] = radius
	enc.DrawData[idx+3] = startAngle
	enc.DrawData[idx+4] = endAngle
	enc.DrawData[idx+5] = thickness
	enc.pushCommand(gfx.PrimitiveArc, gfx.FillSolid, op, enc.currentClipIndex(), uint32(idx), col, box)
}

// DrawQuad records an axis-aligned textured quad sampling texture array
// slice layer, matching od_draw_quad.
func (enc *Encoding) DrawQuad(box jmath.AABB, layer uint32, col color.Color, op gfx.GroupOp) {
	enc.drawQuad(box, 0, layer, col, op)
}

// DrawOrientedQuad records a quad together with a rotation angle in radians,
// matching od_draw_oriented_quad's entry point. The angle is stored in the
// quad's draw data and its bounding box covers every rotation, but the
// rasterizer does not apply the angle: the quad is hit-tested and sampled as
// the unrotated box.
func (enc *Encoding) DrawOrientedQuad(box jmath.AABB, angle float32, layer uint32, col color.Color, op gfx.GroupOp) {
	enc.drawQuad(box, angle, layer, col, op)
}

func (enc *Encoding) drawQuad(box jmath.AABB, angle float32, layer uint32, col color.Color, op gfx.GroupOp) {
	if !enc.reserveCommand() {
		return
	}
	idx, ok := enc.reserveDrawData(6)
	if !ok {
		return
	}
	diag := jmath.Vec2{X: box.MaxX - box.MinX, Y: box.MaxY - box.MinY}.Length()
	cx := (box.MinX + box.MaxX) * 0.5
	cy := (box.MinY + box.MaxY) * 0.5
	bounds := jmath.AABB{MinX: cx - diag*0.5, MinY: cy - diag*0.5, MaxX: cx + diag*0.5, MaxY: cy + diag*0.5}
	enc.DrawData[idx+0] = box.MinX
	enc.DrawData[idx+1] = box.MinY
	enc.DrawData[idx+2] = box.MaxX
	enc.DrawData[idx+3] = box.MaxY
	enc.DrawData[idx+4] = angle
	enc.DrawData[idx+5] = float32(layer)
	enc.pushCommand(gfx.PrimitiveQuad, gfx.FillSolid, op, enc.currentClipIndex(), uint32(idx), col, bounds)
}

// DrawGlyph records a single pre-shaped glyph quad sampling the font atlas,
// matching renderer_draw_char; text shaping/layout happens in the caller.
func (enc *Encoding) DrawGlyph(box jmath.AABB, uvTopLeft, uvBottomRight jmath.Vec2, col color.Color, op gfx.GroupOp) {
	if !enc.reserveCommand() {
		return
	}
	idx, ok := enc.reserveDrawData(8)
	if !ok {
		return
	}
	enc.DrawData[idx+0] = box.MinX
	enc.DrawData[idx+1] = box.MinY
	enc.DrawData[idx+2] = box.MaxX
	enc.DrawData[idx+3] = box.MaxY
	enc.DrawData[idx+4] = uvTopLeft.X
	enc.DrawData[idx+5] = uvTopLeft.Y
	enc.DrawData[idx+6] = uvBottomRight.X
	enc.DrawData[idx+7] = uvBottomRight.Y
	enc.pushCommand(gfx.PrimitiveChar, gfx.FillSolid, op, enc.currentClipIndex(), uint32(idx), col, box)
}

// --- group scoping ------------------------------------------------------

// BeginGroup opens a new compositing group: subsequent commands accumulate
// into a private bounding box until EndGroup, at which point op determines
// how the group's SDF combines with the canvas (overwrite or smooth blend).
// smoothness is the smooth-blend polynomial's k factor (ignored when op is
// OpOverwrite) and outlineWidth sizes the anti-aliased outline band EndGroup
// draws in its outline color; both are stored as this begin_group command's
// draw data and copied onto the matching end_group command, which is where
// the rasterizer reads them. At most
// one group may be open at a time; nesting is a usage error (spec §4.1).
func (enc *Encoding) BeginGroup(op gfx.GroupOp, smoothness, outlineWidth float32) {
	if len(enc.groupStack) > 0 {
		enc.warn("begin_group called while a group is already open")
		return
	}
	if !enc.reserveCommand() {
		return
	}
	idx, ok := enc.reserveDrawData(2)
	if !ok {
		return
	}
	effectiveSmoothness := smoothness + outlineWidth
	enc.DrawData[idx+0] = effectiveSmoothness
	enc.DrawData[idx+1] = outlineWidth
	enc.Commands = append(enc.Commands, packCommand(gfx.BeginGroup, gfx.FillSolid, enc.currentClipIndex(), uint32(idx), op))
	enc.Colors = append(enc.Colors, 0)
	enc.CommandsAABB = append(enc.CommandsAABB, jmath.InvalidQuantAABB())
	enc.groupStack = append(enc.groupStack, groupFrame{
		startCommand:        len(enc.Commands) - 1,
		op:                  op,
		accumAABB:           jmath.InvalidQuantAABB(),
		effectiveSmoothness: effectiveSmoothness,
		outlineWidth:        outlineWidth,
	})
}

// EndGroup closes the most recently opened group, writing the accumulated
// bounding box back into the begin_group command's AABB slot so the tile
// binner only visits the group once across its full extent. Its color field
// stores outlineColor, the color EndGroup's anti-aliased outline band (sized
// by BeginGroup's outlineWidth) is drawn in; its draw data mirrors
// BeginGroup's so the rasterizer has the smoothness and outline width the
// moment it reaches end_group while walking the tile's node list.
func (enc *Encoding) EndGroup(outlineColor color.Color) {
	if len(enc.groupStack) == 0 {
		enc.warn("end_group called without a matching begin_group")
		return
	}
	top := enc.groupStack[len(enc.groupStack)-1]
	enc.groupStack = enc.groupStack[:len(enc.groupStack)-1]
	enc.CommandsAABB[top.startCommand] = top.accumAABB

	if !enc.reserveCommand() {
		return
	}
	idx, ok := enc.reserveDrawData(2)
	if !ok {
		return
	}
	enc.DrawData[idx+0] = top.effectiveSmoothness
	enc.DrawData[idx+1] = top.outlineWidth
	enc.Commands = append(enc.Commands, packCommand(gfx.EndGroup, gfx.FillSolid, enc.currentClipIndex(), uint32(idx), top.op))
	enc.Colors = append(enc.Colors, packColor(outlineColor))
	enc.CommandsAABB = append(enc.CommandsAABB, top.accumAABB)

	if len(enc.groupStack) > 0 {
		parent := &enc.groupStack[len(enc.groupStack)-1]
		parent.accumAABB = parent.accumAABB.Merge(top.accumAABB)
	}
}

// OpenGroups reports how many begin_group calls have not yet been matched
// by an end_group, mirroring the open-clip counter invariant jello's
// EncodeBeginClip/EncodeEndClip keep for nested clips.
func (enc *Encoding) OpenGroups() int {
	return len(enc.groupStack)
}
