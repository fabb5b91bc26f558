// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package shaders holds the WGSL source and binding layout for every stage
// of the region/tile binning pipeline and the rasterizer, the same role
// jello's shaders package plays for its path-rendering pipeline.
package shaders

type BindType int

const (
	Buffer BindType = iota + 1
	BufReadOnly
	Uniform
	Image
	ImageRead
	ImageArrayRead
)

func (typ BindType) IsMutable() bool {
	return typ == Buffer || typ == Image
}

type WorkgroupBufferInfo struct {
	size_in_bytes uint32
	index         uint32
}

// ComputeShader describes one compute kernel: the region predicate/scan/
// scatter passes, the tile binner, and write_icb.
type ComputeShader struct {
	Name             string
	WorkgroupSize    [3]uint32
	Bindings         []BindType
	WorkgroupBuffers []WorkgroupBufferInfo
	WGSL             WGSLSource
}

// RenderShader describes the rasterizer's vertex+fragment pipeline: it
// reads the same bind group as the compute kernels but writes directly to
// a color target rather than a storage buffer/image.
type RenderShader struct {
	Name     string
	Bindings []BindType
	WGSL     WGSLSource
}

type WGSLSource struct {
	Code           []byte
	BindingIndices []uint8
}

// Collection holds every shader this module needs; wgpu_engine.newShaderIDs
// registers each one by naming its field directly.
var Collection = struct {
	RegionPredicate     ComputeShader
	RegionExclusiveScan ComputeShader
	RegionBin           ComputeShader
	TileBin             ComputeShader
	WriteICB            ComputeShader
	Rasterize           RenderShader
}{
	RegionPredicate: ComputeShader{
		Name: "region_predicate",
		Bindings: []BindType{
			Uniform, BufReadOnly, BufReadOnly, Buffer,
		},
		WGSL: WGSLSource{Code: []byte(regionPredicateWGSL)},
	},
	RegionExclusiveScan: ComputeShader{
		Name: "region_exclusive_scan",
		Bindings: []BindType{
			Uniform, BufReadOnly, Buffer,
		},
		WGSL: WGSLSource{Code: []byte(regionExclusiveScanWGSL)},
	},
	RegionBin: ComputeShader{
		Name: "region_bin",
		Bindings: []BindType{
			Uniform, BufReadOnly, BufReadOnly, Buffer,
		},
		WGSL: WGSLSource{Code: []byte(regionBinWGSL)},
	},
	TileBin: ComputeShader{
		Name: "tile_bin",
		Bindings: []BindType{
			Uniform, BufReadOnly, BufReadOnly, BufReadOnly, Buffer, Buffer, Buffer,
		},
		WGSL: WGSLSource{Code: []byte(tileBinWGSL)},
	},
	WriteICB: ComputeShader{
		Name: "write_icb",
		Bindings: []BindType{
			Uniform, BufReadOnly, Buffer,
		},
		WGSL: WGSLSource{Code: []byte(writeICBWGSL)},
	},
	Rasterize: RenderShader{
		Name: "rasterize",
		Bindings: []BindType{
			Uniform, BufReadOnly, BufReadOnly, BufReadOnly, BufReadOnly, BufReadOnly, BufReadOnly, BufReadOnly,
			ImageRead, ImageArrayRead,
		},
		WGSL: WGSLSource{Code: []byte(rasterizeWGSL)},
	},
}
