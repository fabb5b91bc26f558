// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"gpudraw/encoding"
	"gpudraw/mem"
)

// ShaderIDs names the compute and render pipelines BuildFrameRecording
// dispatches, resolved once at engine startup by whatever owns the WGPU
// device (engine/wgpu_engine).
type ShaderIDs struct {
	RegionPredicate     ShaderID
	RegionExclusiveScan ShaderID
	RegionBin           ShaderID
	TileBin             ShaderID
	WriteICB            ShaderID
	Rasterize           ShaderID
}

// RenderParams carries the per-frame target description BuildFrameRecording
// needs beyond the encoded commands themselves.
// RenderParams carries only what varies frame to frame; the font atlas and
// quad texture array are configured once at Init (spec §6.1's init config
// atlas {W,H,num_slices}) and live on the engine for the renderer's whole
// lifetime, so BuildFrameRecording takes them as separate arguments rather
// than through RenderParams.
type RenderParams struct {
	Width, Height uint32
	ClearColor    [4]float32
	CullingDebug  bool
	AAWidth       float32
}

// BuildFrameRecording assembles one frame's GPU work: upload the encoded
// command/color/aabb/draw-data/clip arrays and the frame uniform, clear the
// counters and tile head pointers, run the region predicate/scan/scatter
// passes, then the tile-binning pass that builds each tile's singly linked
// command list and appends touched tiles to the compact tile_indices array,
// then write_icb to fill in the rasterizer's indirect draw arguments (one
// instance per tile that actually received a fragment), and finally the
// indirect rasterization draw itself, which looks tiles up through
// tile_indices rather than by instance index directly.
func BuildFrameRecording(
	arena *mem.Arena,
	enc *encoding.Encoding,
	shaders ShaderIDs,
	cfg *RenderConfig,
	target ImageProxy,
	fontTexture ImageProxy,
	quadArray ArrayImageProxy,
) *Recording {
	rec := mem.New[Recording](arena)

	commandsBuf := rec.Upload(arena, "commands", structSliceBytes(enc.Commands))
	colorsBuf := rec.Upload(arena, "colors", uint32SliceBytes(enc.Colors))
	aabbBuf := rec.Upload(arena, "commands_aabb", structSliceBytes(enc.CommandsAABB))
	drawDataBuf := rec.Upload(arena, "draw_data", float32SliceBytes(enc.DrawData))
	clipsBuf := rec.Upload(arena, "clips", structSliceBytes(enc.Clips))
	uniformBuf := rec.UploadUniform(arena, "frame_uniform", structBytes(&cfg.Frame))

	regionPredicate := newBufferFromSize(rec, arena, "region_predicate", cfg.BufferSizes.RegionPredicate)
	regionScan := newBufferFromSize(rec, arena, "region_scan", cfg.BufferSizes.RegionScan)
	regionIndices := newBufferFromSize(rec, arena, "region_indices", cfg.BufferSizes.RegionIndices)
	tileHeads := newBufferFromSize(rec, arena, "tile_heads", cfg.BufferSizes.TileHeads)
	tileNodes := newBufferFromSize(rec, arena, "tile_nodes", cfg.BufferSizes.TileNodes)
	tileIndices := newBufferFromSize(rec, arena, "tile_indices", cfg.BufferSizes.TileIndices)
	counters := newBufferFromSize(rec, arena, "counters", cfg.BufferSizes.Counters)
	indirectDraw := newBufferFromSize(rec, arena, "indirect_draw", cfg.BufferSizes.IndirectDraw)

	rec.ClearAll(arena, tileHeads)
	rec.ClearAll(arena, counters)
	rec.ClearAll(arena, indirectDraw)

	rec.Dispatch(arena, shaders.RegionPredicate, cfg.WorkgroupCounts.Predicate, []ResourceProxy{
		uniformBuf.Resource(), commandsBuf.Resource(), aabbBuf.Resource(), regionPredicate.Resource(),
	})

	rec.Dispatch(arena, shaders.RegionExclusiveScan, cfg.WorkgroupCounts.ExclusiveScan, []ResourceProxy{
		uniformBuf.Resource(), regionPredicate.Resource(), regionScan.Resource(),
	})

	rec.Dispatch(arena, shaders.RegionBin, cfg.WorkgroupCounts.RegionBin, []ResourceProxy{
		uniformBuf.Resource(), regionPredicate.Resource(), regionScan.Resource(), regionIndices.Resource(),
	})

	rec.Dispatch(arena, shaders.TileBin, cfg.WorkgroupCounts.TileBin, []ResourceProxy{
		uniformBuf.Resource(), commandsBuf.Resource(), aabbBuf.Resource(),
		regionIndices.Resource(), tileHeads.Resource(), tileNodes.Resource(), counters.Resource(),
		tileIndices.Resource(),
	})

	rec.Dispatch(arena, shaders.WriteICB, cfg.WorkgroupCounts.WriteICB, []ResourceProxy{
		uniformBuf.Resource(), counters.Resource(), indirectDraw.Resource(),
	})

	rec.DrawIndirect(arena, shaders.Rasterize, target, cfg.Frame.ClearColor, indirectDraw, 0, []ResourceProxy{
		uniformBuf.Resource(), commandsBuf.Resource(), colorsBuf.Resource(), aabbBuf.Resource(),
		drawDataBuf.Resource(), clipsBuf.Resource(), tileHeads.Resource(), tileNodes.Resource(),
		fontTexture.Resource(), quadArray.Resource(), tileIndices.Resource(),
	})

	rec.FreeBuffer(arena, regionPredicate)
	rec.FreeBuffer(arena, regionScan)
	rec.FreeBuffer(arena, regionIndices)
	rec.FreeBuffer(arena, tileHeads)
	rec.FreeBuffer(arena, tileNodes)
	rec.FreeBuffer(arena, tileIndices)
	rec.FreeBuffer(arena, counters)
	rec.FreeBuffer(arena, indirectDraw)
	rec.FreeBuffer(arena, commandsBuf)
	rec.FreeBuffer(arena, colorsBuf)
	rec.FreeBuffer(arena, aabbBuf)
	rec.FreeBuffer(arena, drawDataBuf)
	rec.FreeBuffer(arena, clipsBuf)
	rec.FreeBuffer(arena, uniformBuf)

	return rec
}

// newBufferFromSize creates a proxy for a bump-allocated intermediate
// buffer without uploading any host data; the engine materializes its GPU
// buffer lazily the first time a dispatch binds it, the same as jello's
// scratch buffers (lines, tiles, segments, ...).
func newBufferFromSize[T any](rec *Recording, arena *mem.Arena, name string, size BufferSize[T]) BufferProxy {
	return NewBufferProxy(uint64(size.SizeInBytes()), name)
}
