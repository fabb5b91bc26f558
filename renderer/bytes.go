// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import "honnef.co/go/safeish"

func structBytes[T any](v *T) []byte {
	return safeish.AsBytes(v)
}

func structSliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return safeish.SliceCast[[]byte](s)
}

func uint32SliceBytes(s []uint32) []byte {
	if len(s) == 0 {
		return nil
	}
	return safeish.SliceCast[[]byte](s)
}

func float32SliceBytes(s []float32) []byte {
	if len(s) == 0 {
		return nil
	}
	return safeish.SliceCast[[]byte](s)
}
