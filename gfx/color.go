// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gfx

import "honnef.co/go/color"

// Premul32 converts c to premultiplied linear sRGB, the format the clear
// color is stored in. Draw command colors are packed by PackBGRA8 instead.
func Premul32(c *color.Color) [4]float32 {
	cc := c.Convert(color.LinearSRGB)
	r := cc.Values[0]
	g := cc.Values[1]
	b := cc.Values[2]
	a := cc.Values[3]

	return [4]float32{
		float32(r * a),
		float32(g * a),
		float32(b * a),
		float32(a),
	}
}

// PackBGRA8 converts c to sRGB, premultiplies its three color channels by
// alpha and packs the result into the 8-bit-per-channel B8G8R8A8 word
// stored in the colors buffer.
func PackBGRA8(c *color.Color) uint32 {
	cc := c.Convert(color.SRGB)
	r := clamp8(cc.Values[0] * cc.Values[3])
	g := clamp8(cc.Values[1] * cc.Values[3])
	b := clamp8(cc.Values[2] * cc.Values[3])
	a := clamp8(cc.Values[3])
	return uint32(b) | uint32(g)<<8 | uint32(r)<<16 | uint32(a)<<24
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(v*255 + 0.5)
	}
}

// UnpackBGRA8 splits a packed B8G8R8A8 word back into its channels, used by
// the CPU reference rasterizer.
func UnpackBGRA8(v uint32) (r, g, b, a uint8) {
	b = uint8(v)
	g = uint8(v >> 8)
	r = uint8(v >> 16)
	a = uint8(v >> 24)
	return
}
