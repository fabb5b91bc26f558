// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gpudraw

import (
	"testing"

	"gpudraw/engine/wgpu_engine"
)

func TestProfilerResultDurationMSSpansChildren(t *testing.T) {
	res := wgpu_engine.ProfilerResult{
		Label: "frame",
		Queries: []wgpu_engine.ProfilerQueryResult{
			{Label: "total", Start: 1_000_000, End: 4_000_000},
		},
		Children: []wgpu_engine.ProfilerResult{
			{
				Label: "tile_bin",
				Queries: []wgpu_engine.ProfilerQueryResult{
					{Label: "tile_bin", Start: 1_500_000, End: 2_000_000},
				},
			},
			{
				Label: "rasterize",
				Queries: []wgpu_engine.ProfilerQueryResult{
					{Label: "rasterize", Start: 2_000_000, End: 5_000_000},
				},
			},
		},
	}

	ms, ok := profilerResultDurationMS(res)
	if !ok {
		t.Fatal("profilerResultDurationMS reported no queries")
	}
	// Widest span across the group and its children: 1_000_000 to
	// 5_000_000 ns, i.e. 4ms, even though the top-level "total" query
	// alone only covers 1_000_000 to 4_000_000.
	if want := 4.0; ms != want {
		t.Fatalf("profilerResultDurationMS = %v, want %v", ms, want)
	}
}

func TestProfilerResultDurationMSNoQueries(t *testing.T) {
	if _, ok := profilerResultDurationMS(wgpu_engine.ProfilerResult{Label: "empty"}); ok {
		t.Fatal("profilerResultDurationMS reported a duration for a group with no queries")
	}
}

func TestStatsTrackerRecordFrameAveragesOverWindow(t *testing.T) {
	var tracker statsTracker
	for i := 0; i < gpuTimeAverageWindow; i++ {
		tracker.recordFrame(10, 2.0)
	}
	snap := tracker.snapshot(10)
	if snap.AverageGPUTimeMS != 2.0 {
		t.Fatalf("AverageGPUTimeMS = %v, want 2.0", snap.AverageGPUTimeMS)
	}
	if snap.GPUTimeMS != 2.0 {
		t.Fatalf("GPUTimeMS = %v, want 2.0", snap.GPUTimeMS)
	}
	if snap.FrameIndex != gpuTimeAverageWindow {
		t.Fatalf("FrameIndex = %v, want %v", snap.FrameIndex, gpuTimeAverageWindow)
	}
}
