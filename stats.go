// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gpudraw

import "gpudraw/engine/wgpu_engine"

// gpuTimeAverageWindow is the frame count od_stats' average_gpu_time_ms
// accumulator divides by, per spec §4.6.
const gpuTimeAverageWindow = 60

// Stats mirrors od_stats, extended with GpuMemoryUsage (see SPEC_FULL.md §3)
// since the original struct never accounted for GPU buffer residency.
type Stats struct {
	FrameIndex      uint64
	NumDrawCommands uint32
	PeakDrawCommands uint32
	GPUTimeMS        float64
	AverageGPUTimeMS float64
	GPUMemoryUsage   uint64
}

// statsTracker accumulates the running counters get_stats reports, reset
// only by Terminate; PeakDrawCommands never decreases within a renderer's
// lifetime, matching od_stats' "high water mark" semantics.
type statsTracker struct {
	frameIndex       uint64
	peakDrawCommands uint32
	gpuMemoryUsage   uint64

	gpuTimeAccum float64
	gpuTimeCount int
	averageGPUMS float64
	lastGPUMS    float64
}

func (t *statsTracker) recordFrame(numDrawCommands uint32, gpuTimeMS float64) {
	t.frameIndex++
	if numDrawCommands > t.peakDrawCommands {
		t.peakDrawCommands = numDrawCommands
	}
	t.lastGPUMS = gpuTimeMS
	t.gpuTimeAccum += gpuTimeMS
	t.gpuTimeCount++
	if t.gpuTimeCount == gpuTimeAverageWindow {
		t.averageGPUMS = t.gpuTimeAccum / gpuTimeAverageWindow
		t.gpuTimeAccum = 0
		t.gpuTimeCount = 0
	}
}

// harvestGPUTime drains whatever profiler groups have finished mapping and
// keeps the most recent one's total span as r.gpuTimeMS. Groups surface a
// few frames after FlushProfiler submitted them, so most calls collect
// nothing and leave the previous value in place.
func (r *Renderer) harvestGPUTime() {
	for _, res := range r.engine.CollectProfilerResults() {
		if ms, ok := profilerResultDurationMS(res); ok {
			r.gpuTimeMS = ms
		}
	}
}

// profilerResultDurationMS walks a profiler group's own queries and every
// descendant's, converting the widest [min start, max end) timestamp span
// it finds from nanoseconds (the unit WebGPU timestamp queries resolve to)
// into milliseconds.
func profilerResultDurationMS(res wgpu_engine.ProfilerResult) (float64, bool) {
	var start, end uint64
	found := false
	var walk func(r wgpu_engine.ProfilerResult)
	walk = func(r wgpu_engine.ProfilerResult) {
		for _, q := range r.Queries {
			if !found || q.Start < start {
				start = q.Start
			}
			if !found || q.End > end {
				end = q.End
			}
			found = true
		}
		for _, c := range r.Children {
			walk(c)
		}
	}
	walk(res)
	if !found || end <= start {
		return 0, false
	}
	return float64(end-start) / 1e6, true
}

func (t *statsTracker) snapshot(numDrawCommands uint32) Stats {
	return Stats{
		FrameIndex:       t.frameIndex,
		NumDrawCommands:  numDrawCommands,
		PeakDrawCommands: t.peakDrawCommands,
		GPUTimeMS:        t.lastGPUMS,
		AverageGPUTimeMS: t.averageGPUMS,
		GPUMemoryUsage:   t.gpuMemoryUsage,
	}
}
