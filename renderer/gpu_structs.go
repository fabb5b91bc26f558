// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import "structs"

// Counters mirrors the `counters` struct: two atomically-incremented
// allocation cursors into the node arena and the tile-indices array.
type Counters struct {
	_ structs.HostLayout

	NumNodes uint32
	NumTiles uint32
	_        [2]uint32 // padding, matching counters.pad
}

// TileNode mirrors `tile_node`: one singly-linked-list cell in a tile's
// command chain, allocated out of a fixed arena by atomic bump allocation.
type TileNode struct {
	_ structs.HostLayout

	Next         uint32
	CommandIndex uint16
	CommandType  uint8
	_            uint8 // padding
}
