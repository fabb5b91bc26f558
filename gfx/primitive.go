// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gfx

// PrimitiveKind identifies the SDF shape a draw_command evaluates, packed
// into the low 6 bits of a command's type byte.
type PrimitiveKind uint8

const (
	PrimitiveChar        PrimitiveKind = 0
	PrimitiveAABox       PrimitiveKind = 1
	PrimitiveOrientedBox PrimitiveKind = 2 // capsule: a box with rounded ends
	PrimitiveDisc        PrimitiveKind = 3
	PrimitiveTriangle    PrimitiveKind = 4
	PrimitiveEllipse     PrimitiveKind = 5
	PrimitivePie         PrimitiveKind = 6
	PrimitiveArc         PrimitiveKind = 7
	PrimitiveBlurredBox  PrimitiveKind = 8
	PrimitiveQuad        PrimitiveKind = 9

	BeginGroup PrimitiveKind = 32
	EndGroup   PrimitiveKind = 33
)

func (k PrimitiveKind) IsGroupMarker() bool {
	return k == BeginGroup || k == EndGroup
}

// FillMode selects how a primitive's SDF is turned into coverage.
type FillMode uint8

const (
	FillSolid   FillMode = 0
	FillOutline FillMode = 1
	FillHollow  FillMode = 2
	// FillGradient occupies the fourth fill-mode slot, reserved but left
	// undefined by the original enum; resolved here as a horizontal blend
	// from the primitive's color toward white across its tile-quantized
	// bounding box.
	FillGradient FillMode = 3
)

const (
	CommandTypeMask       = 0x3f
	PrimitiveFillModeMask = 0xc0
	PrimitiveFillModeShift = 6
)

// PackType combines a primitive kind and fill mode into the single type
// byte draw_command stores them in.
func PackType(kind PrimitiveKind, fill FillMode) uint8 {
	return uint8(kind)&CommandTypeMask | uint8(fill)<<PrimitiveFillModeShift
}

// UnpackType splits a draw_command type byte back into its kind and fill
// mode.
func UnpackType(b uint8) (PrimitiveKind, FillMode) {
	return PrimitiveKind(b & CommandTypeMask), FillMode(b >> PrimitiveFillModeShift & 0x3)
}

// GroupOp selects how a group's accumulated SDF combines with the canvas
// when the group closes.
type GroupOp uint8

const (
	OpOverwrite GroupOp = 0
	OpBlend     GroupOp = 1
)
