// Copyright 2023 the Vello Authors
// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import (
	"structs"
	"unsafe"

	"gpudraw/encoding"
	"gpudraw/jmath"
)

type WorkgroupSize [3]uint32

// FrameUniform is the per-frame uniform block every compute and render
// shader binds, mirroring draw_cmd_arguments' non-pointer fields (the
// pointer-valued fields become separate storage buffer bindings in the
// Go/WGPU binding model).
type FrameUniform struct {
	_ structs.HostLayout

	ClearColor  [4]float32
	NumCommands uint32
	MaxNodes    uint32
	TargetWidth uint32
	TargetHeight uint32
	WidthInTiles  uint32
	HeightInTiles uint32
	WidthInRegions  uint32
	HeightInRegions uint32
	CullingDebug uint32
	AAWidth      float32
}

type RenderConfig struct {
	Frame           FrameUniform
	WorkgroupCounts WorkgroupCounts
	BufferSizes     BufferSizes
}

// NewRenderConfig derives every buffer size and dispatch extent from the
// target size and the number of commands recorded this frame, the same
// role renderer_resize plays around od_resize.
func NewRenderConfig(width, height uint32, numCommands uint32, clearColor [4]float32, cullingDebug bool, aaWidth float32) *RenderConfig {
	widthInTiles := jmath.NextMultipleOf(width, encoding.TileSize) / encoding.TileSize
	heightInTiles := jmath.NextMultipleOf(height, encoding.TileSize) / encoding.TileSize
	widthInRegions := jmath.NextMultipleOf(widthInTiles, encoding.RegionSize) / encoding.RegionSize
	heightInRegions := jmath.NextMultipleOf(heightInTiles, encoding.RegionSize) / encoding.RegionSize

	debug := uint32(0)
	if cullingDebug {
		debug = 1
	}

	cfg := &RenderConfig{
		Frame: FrameUniform{
			ClearColor:      clearColor,
			NumCommands:     numCommands,
			MaxNodes:        encoding.MaxNodesCount,
			TargetWidth:     width,
			TargetHeight:    height,
			WidthInTiles:    widthInTiles,
			HeightInTiles:   heightInTiles,
			WidthInRegions:  widthInRegions,
			HeightInRegions: heightInRegions,
			CullingDebug:    debug,
			AAWidth:         aaWidth,
		},
	}
	cfg.WorkgroupCounts = NewWorkgroupCounts(numCommands, widthInTiles, heightInTiles, widthInRegions, heightInRegions)
	cfg.BufferSizes = NewBufferSizes(numCommands, widthInTiles, heightInTiles, widthInRegions, heightInRegions)
	return cfg
}

// NewWorkgroupCounts sizes every compute dispatch in the two-level binning
// pipeline: the region predicate and scatter passes run one thread per
// command, the exclusive scan is a single-thread pass, the tile binning pass
// runs one thread per (command, tile) pair in SIMD_GROUP_SIZE-wide groups,
// and write_icb is a single-thread pass that only produces the indirect
// draw count.
func NewWorkgroupCounts(numCommands, widthInTiles, heightInTiles, widthInRegions, heightInRegions uint32) WorkgroupCounts {
	commandWgs := (numCommands + encoding.SimdGroupSize - 1) / encoding.SimdGroupSize
	tileWgs := ((widthInTiles*heightInTiles + encoding.SimdGroupSize - 1) / encoding.SimdGroupSize)
	return WorkgroupCounts{
		Predicate:     WorkgroupSize{commandWgs, 1, 1},
		ExclusiveScan: WorkgroupSize{1, 1, 1},
		RegionBin:     WorkgroupSize{commandWgs, 1, 1},
		TileBin:       WorkgroupSize{commandWgs, tileWgs, 1},
		WriteICB:      WorkgroupSize{1, 1, 1},
		Rasterize:     WorkgroupSize{widthInTiles, heightInTiles, 1},
	}
}

// NewBufferSizes sizes every GPU buffer the region and tile binners need.
// The region stage is sized by region count times command count (the dense
// predicate/scan arrays); the tile stage's node arena is the fixed
// MaxNodesCount from common.h, since node allocation is demand-driven and
// cannot be bounded tighter without knowing primitive coverage in advance.
func NewBufferSizes(numCommands, widthInTiles, heightInTiles, widthInRegions, heightInRegions uint32) BufferSizes {
	numRegions := max(widthInRegions*heightInRegions, 1)
	numTiles := max(widthInTiles*heightInTiles, 1)
	return BufferSizes{
		RegionPredicate: NewBufferSize[uint32](numRegions * numCommands),
		RegionScan:      NewBufferSize[uint32](numRegions * numCommands),
		RegionIndices:   NewBufferSize[uint32](numRegions * numCommands),
		TileHeads:       NewBufferSize[uint32](numTiles),
		TileNodes:       NewBufferSize[TileNode](encoding.MaxNodesCount),
		TileIndices:     NewBufferSize[uint32](numTiles),
		Counters:        NewBufferSize[Counters](1),
		IndirectDraw:    NewBufferSize[IndirectDrawArgs](1),
	}
}

type BufferSizes struct {
	RegionPredicate BufferSize[uint32]
	RegionScan      BufferSize[uint32]
	RegionIndices   BufferSize[uint32]
	TileHeads       BufferSize[uint32]
	TileNodes       BufferSize[TileNode]
	TileIndices     BufferSize[uint32]
	Counters        BufferSize[Counters]
	IndirectDraw    BufferSize[IndirectDrawArgs]
}

type WorkgroupCounts struct {
	Predicate     WorkgroupSize
	ExclusiveScan WorkgroupSize
	RegionBin     WorkgroupSize
	TileBin       WorkgroupSize
	WriteICB      WorkgroupSize
	Rasterize     WorkgroupSize
}

// BufferSize[T] counts elements of T, converting to a byte size on demand;
// kept exactly as the sizing abstraction the upstream path-rendering engine
// uses for its own bump-allocated buffers.
type BufferSize[T any] uint32

func NewBufferSize[T any](x uint32) BufferSize[T] {
	return BufferSize[T](max(x, 1))
}

func (s BufferSize[T]) SizeInBytes() uint32 {
	return uint32(s) * uint32(unsafe.Sizeof(*new(T)))
}

func (s BufferSize[T]) Len() uint32 { return uint32(s) }

// IndirectDrawArgs is the argument buffer write_icb fills in: a standard
// WebGPU indirect draw call with an instance count computed from how many
// tiles actually received fragments.
type IndirectDrawArgs struct {
	_ structs.HostLayout

	VertexCount   uint32
	InstanceCount uint32
	FirstVertex   uint32
	FirstInstance uint32
}
