// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package encoding

import (
	"structs"

	"gpudraw/gfx"
)

// DrawCommand is the packed 8-byte record the region and tile binners scan
// and the rasterizer evaluates, matching draw_command's non-rasterizer
// layout byte for byte.
type DrawCommand struct {
	_ structs.HostLayout

	DataIndex uint32
	Extra     uint8
	ClipIndex uint8
	FillMode  uint8
	Type      uint8
}

func packCommand(kind gfx.PrimitiveKind, fill gfx.FillMode, clipIndex uint8, dataIndex uint32, op gfx.GroupOp) DrawCommand {
	return DrawCommand{
		DataIndex: dataIndex,
		Extra:     uint8(op),
		ClipIndex: clipIndex,
		FillMode:  uint8(fill),
		Type:      uint8(kind),
	}
}

func (c DrawCommand) Kind() gfx.PrimitiveKind { return gfx.PrimitiveKind(c.Type) }
func (c DrawCommand) Fill() gfx.FillMode       { return gfx.FillMode(c.FillMode) }
func (c DrawCommand) Op() gfx.GroupOp          { return gfx.GroupOp(c.Extra) }
