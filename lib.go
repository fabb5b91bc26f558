// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

// Package gpudraw is an immediate-mode, GPU-driven 2D vector renderer: a
// host submits drawing calls between BeginFrame and EndFrame, and the
// renderer bins and rasterizes them on the GPU via a two-level tile binning
// pipeline, the same division of labor as the original library's
// renderer_t/onedraw_t pair.
package gpudraw

import (
	"log"

	"honnef.co/go/color"
	"honnef.co/go/wgpu"

	"gpudraw/encoding"
	"gpudraw/engine/wgpu_engine"
	"gpudraw/font"
	"gpudraw/gfx"
	"gpudraw/jmath"
	"gpudraw/mem"
	"gpudraw/renderer"
)

// maxFramesInFlight is the triple-buffering depth spec §4.6/§5 specify.
const maxFramesInFlight = 3

// defaultAAWidth is the coverage ramp's default width in pixels, matching
// rasterizer.aa_width's VEC2_SQR2 default (sqrt(2), the diagonal of a unit
// pixel) in the original renderer.
const defaultAAWidth = float32(1.4142135)

// RendererOptions configures Init, mirroring od_init's config struct minus
// the fields Go's GC makes unnecessary (min_memory_size has no equivalent:
// there is no preallocated handle to size).
type RendererOptions struct {
	Device *wgpu.Device
	Queue  *wgpu.Queue

	Width, Height uint32

	// SurfaceFormat is the swap-chain's texture format, used by the blit
	// pass RenderToSurface issues after rasterizing to an intermediate
	// target.
	SurfaceFormat wgpu.TextureFormat

	// AllowScreenshot matches od_init's allow_screenshot: when false,
	// TakeScreenshot is always a no-op.
	AllowScreenshot bool

	// SRGBBackbuffer matches od_init's srgb_backbuffer. The value is stored
	// on the Renderer but changes no color conversion: SetClearColor always
	// converts to premultiplied linear sRGB, and draw colors are always
	// packed as premultiplied sRGB bytes and written without conversion.
	SRGBBackbuffer bool

	// LogFunc receives capacity-exhaustion and usage warnings (spec §7).
	// Nil defaults to the standard library's log.Default(), the one
	// ambient concern in this module without a third-party backing (no
	// example repo in the retrieved pack depends on a structured logger).
	LogFunc func(string)

	// FontAtlas is the pre-baked glyph coverage atlas DrawGlyph samples,
	// parsed by font.Parse. Nil leaves glyphs sampling a blank 1x1 stand-in.
	FontAtlas *font.Atlas

	// QuadArrayWidth/Height/Slices size the texture array UploadSlice
	// populates and DrawQuad/DrawOrientedQuad address by layer, mirroring
	// od_init's atlas{width,height,num_slices} (spec caps num_slices at
	// 256). Left zero, UploadSlice always rejects the slice index.
	QuadArrayWidth, QuadArrayHeight, QuadArraySlices uint32
}

// Renderer is the library's opaque handle, the Go counterpart to onedraw_t.
type Renderer struct {
	engine *wgpu_engine.Engine
	queue  *wgpu.Queue

	enc *encoding.Encoding

	sem   frameSemaphore
	arena *mem.Arena

	width, height  uint32
	srgbBackbuffer bool
	clearColor     [4]float32
	cullingDebug   bool
	aaWidth        float32

	// gpuTimeMS holds the most recently collected per-frame GPU duration.
	// Timestamp queries resolve a few frames after submission, so this
	// value always lags the frame it's reported alongside by a few frames
	// of PollProfilerResults latency.
	gpuTimeMS float64

	// quadArraySlices is the num_slices the renderer was configured with
	// at Init, the bound UploadSlice validates every call against.
	quadArraySlices uint32

	stats statsTracker

	logFunc func(string)

	frameOpen bool
}

// Init allocates GPU buffers and builds pipelines, returning nil on a fatal
// configuration error (missing device), mirroring od_init's nullable return.
func Init(options RendererOptions) *Renderer {
	if options.Device == nil || options.Queue == nil {
		return nil
	}

	logFunc := options.LogFunc
	if logFunc == nil {
		logFunc = func(s string) { log.Default().Println(s) }
	}

	var fontWidth, fontHeight uint32
	var fontPixels []byte
	if options.FontAtlas != nil {
		fontWidth, fontHeight = uint32(options.FontAtlas.TextureW), uint32(options.FontAtlas.TextureH)
		fontPixels = expandCoverageToRGBA8(options.FontAtlas.Texture)
	}

	engine := wgpu_engine.New(options.Device, options.Queue, &wgpu_engine.RendererOptions{
		SurfaceFormat:   options.SurfaceFormat,
		AllowScreenshot: options.AllowScreenshot,
		FontAtlasWidth:  fontWidth,
		FontAtlasHeight: fontHeight,
		FontAtlasPixels: fontPixels,
		QuadArrayWidth:  options.QuadArrayWidth,
		QuadArrayHeight: options.QuadArrayHeight,
		QuadArraySlices: options.QuadArraySlices,
	})

	r := &Renderer{
		engine:          engine,
		queue:           options.Queue,
		enc:             &encoding.Encoding{LogFunc: logFunc},
		sem:             newFrameSemaphore(maxFramesInFlight),
		arena:           mem.NewArena(),
		srgbBackbuffer:  options.SRGBBackbuffer,
		logFunc:         logFunc,
		quadArraySlices: options.QuadArraySlices,
		aaWidth:         defaultAAWidth,
	}
	r.Resize(options.Width, options.Height)
	return r
}

// expandCoverageToRGBA8 replicates a single-channel coverage byte into
// every channel of an RGBA8 texel, since the rasterizer's texture bindings
// are all textureLoad<f32> reads against a 4-channel format (spec §6.4's
// BC4-compressed atlas is stored uncompressed here, see DESIGN.md).
func expandCoverageToRGBA8(coverage []byte) []byte {
	out := make([]byte, len(coverage)*4)
	for i, c := range coverage {
		out[i*4+0] = c
		out[i*4+1] = c
		out[i*4+2] = c
		out[i*4+3] = c
	}
	return out
}

// Terminate releases the GPU resources Init allocated. The underlying WGPU
// device/queue are owned by the caller and outlive the renderer.
func (r *Renderer) Terminate() {
	*r = Renderer{}
}

// Resize records the new viewport size and refreshes the GPU memory
// estimate. It allocates nothing itself: the tile/region buffers are
// created at the current size each time a frame is rendered, so they are
// never grown in place.
func (r *Renderer) Resize(width, height uint32) {
	r.width, r.height = width, height
	r.stats.gpuMemoryUsage = estimateGPUMemoryUsage(width, height, uint32(len(r.enc.Commands)), r.aaWidth)
}

// SetClearColor sets the backbuffer's clear color, always converted to
// premultiplied linear sRGB whatever SRGBBackbuffer was set to.
func (r *Renderer) SetClearColor(c color.Color) {
	r.clearColor = gfx.Premul32(&c)
}

// SetCullingDebug toggles the tile-occupancy debug overlay (spec §4.5).
func (r *Renderer) SetCullingDebug(enabled bool) {
	r.cullingDebug = enabled
}

// BeginFrame opens command recording: it acquires a triple-buffering slot
// (blocking if all three are in flight, mirroring flush's implicit
// semaphore wait) and installs the full-viewport default clip.
func (r *Renderer) BeginFrame() {
	if r.frameOpen {
		r.logFunc("begin_frame called while a frame is already open")
		return
	}
	r.sem.acquire()
	r.frameOpen = true
	r.enc.Reset(r.width, r.height)
}

// SetClipRect appends a new clip rectangle unless it duplicates the active
// one (spec §4.1's clip dedup policy).
func (r *Renderer) SetClipRect(box jmath.AABB) {
	r.requireFrame("set_cliprect")
	r.enc.SetClipRect(box)
}

// SetClipDisc appends a new circular clip unless it duplicates the active
// one.
func (r *Renderer) SetClipDisc(center jmath.Vec2, radius float32) {
	r.requireFrame("set_clipdisc")
	r.enc.SetClipDisc(center, radius)
}

// BeginGroup opens a compositing group scope; drawing calls issued before
// the matching EndGroup accumulate into a shared bounding box and SDF
// combine under op, either overwriting (min, keeping the closest primitive's
// color) or smooth-blending with the given smoothness. outlineWidth sizes
// the anti-aliased outline band EndGroup draws around the group's silhouette;
// pass 0 to skip the outline.
func (r *Renderer) BeginGroup(op gfx.GroupOp, smoothness, outlineWidth float32) {
	r.requireFrame("begin_group")
	r.enc.BeginGroup(op, smoothness, outlineWidth)
}

// EndGroup closes the most recently opened group, compositing its
// accumulated SDF and, if BeginGroup was given a nonzero outline width,
// an outline band in outlineColor. Calling it without an open group, or
// ending the frame with one still open, is a usage error logged through
// LogFunc per spec §7.
func (r *Renderer) EndGroup(outlineColor color.Color) {
	r.requireFrame("end_group")
	r.enc.EndGroup(outlineColor)
}

// Encoding exposes the frame's draw-call front end for every Draw* call;
// it must only be used between BeginFrame and EndFrame.
func (r *Renderer) Encoding() *encoding.Encoding {
	return r.enc
}

func (r *Renderer) requireFrame(op string) {
	if !r.frameOpen {
		r.logFunc(op + " called outside a frame")
	}
}

// EndFrame finalizes the frame's counts, runs the binning and rasterization
// passes against texture, and, if a screenshot is armed, reads the
// configured capture region back into the user's buffer. The caller is
// responsible for presenting texture's owning surface. GPU timing for the
// frame is collected a few frames later, once its queries have resolved;
// GetStats reports whatever is most recent by then.
func (r *Renderer) EndFrame(texture *wgpu.TextureView) {
	if !r.frameOpen {
		r.logFunc("end_frame called outside a frame")
		return
	}
	if r.enc.OpenGroups() > 0 {
		r.logFunc("end_frame called with an open group")
	}
	r.frameOpen = false

	params := &renderer.RenderParams{
		Width:        r.width,
		Height:       r.height,
		ClearColor:   r.clearColor,
		CullingDebug: r.cullingDebug,
		AAWidth:      r.aaWidth,
	}

	r.arena.Reset()
	pgroup := r.engine.Profiler().Start(r.stats.frameIndex)
	r.engine.RenderToTexture(r.arena, r.queue, r.enc, texture, params, pgroup)
	pgroup.End()
	r.engine.FlushProfiler(r.queue)

	r.harvestGPUTime()
	r.stats.recordFrame(uint32(len(r.enc.Commands)), r.gpuTimeMS)
	r.sem.release()
}

// EndFrameToSurface is EndFrame's swap-chain counterpart: it renders to an
// internal intermediate target, then blits and presents surface, the same
// split RenderToSurface keeps in engine/wgpu_engine.
func (r *Renderer) EndFrameToSurface(surface *wgpu.SurfaceTexture) {
	if !r.frameOpen {
		r.logFunc("end_frame called outside a frame")
		return
	}
	if r.enc.OpenGroups() > 0 {
		r.logFunc("end_frame called with an open group")
	}
	r.frameOpen = false

	params := &renderer.RenderParams{
		Width:        r.width,
		Height:       r.height,
		ClearColor:   r.clearColor,
		CullingDebug: r.cullingDebug,
		AAWidth:      r.aaWidth,
	}

	r.arena.Reset()
	pgroup := r.engine.Profiler().Start(r.stats.frameIndex)
	r.engine.RenderToSurface(r.arena, r.queue, r.enc, surface, params, pgroup)
	pgroup.End()
	r.engine.FlushProfiler(r.queue)

	r.harvestGPUTime()
	r.stats.recordFrame(uint32(len(r.enc.Commands)), r.gpuTimeMS)
	r.sem.release()
}

// TakeScreenshot arms a one-shot readback of the configured capture region
// (default: the full viewport) into out for the next EndFrame, at 4 bytes
// per pixel. It reports false if the renderer was not initialized with
// AllowScreenshot.
func (r *Renderer) TakeScreenshot(out []byte) bool {
	return r.engine.Screenshotter().Arm(out)
}

// SetCaptureRegion limits future screenshots to a sub-rectangle of the
// viewport, matching set_capture_region.
func (r *Renderer) SetCaptureRegion(x, y, width, height uint32) {
	r.engine.Screenshotter().SetCaptureRegion(renderer.CaptureRegion{X: x, Y: y, Width: width, Height: height})
}

// GetStats returns {frame_index, num_draw_cmd, peak, gpu_time_ms,
// gpu_memory_usage}, matching od_get_stats.
func (r *Renderer) GetStats() Stats {
	return r.stats.snapshot(uint32(len(r.enc.Commands)))
}

// UploadSlice replaces one layer of the quad texture array DrawQuad and
// DrawOrientedQuad address by layer, matching upload_slice's B8G8R8A8_sRGB
// pixel format. sliceIndex must be below the num_slices the renderer was
// configured with at Init.
func (r *Renderer) UploadSlice(sliceIndex uint32, pixelsBGRA8 []byte) {
	if sliceIndex >= r.quadArraySlices {
		r.logFunc("upload_slice: slice index out of range")
		return
	}
	r.engine.UploadQuadSlice(r.queue, sliceIndex, pixelsBGRA8)
}

// estimateGPUMemoryUsage sums the byte size of every GPU buffer the
// renderer owns at the given viewport and command count, supplementing
// od_stats' gpu_memory_usage field (SPEC_FULL.md §3).
func estimateGPUMemoryUsage(width, height, numCommands uint32, aaWidth float32) uint64 {
	cfg := renderer.NewRenderConfig(width, height, numCommands, [4]float32{}, false, aaWidth)
	bs := cfg.BufferSizes
	total := uint64(bs.RegionPredicate.SizeInBytes()) +
		uint64(bs.RegionScan.SizeInBytes()) +
		uint64(bs.RegionIndices.SizeInBytes()) +
		uint64(bs.TileHeads.SizeInBytes()) +
		uint64(bs.TileNodes.SizeInBytes()) +
		uint64(bs.TileIndices.SizeInBytes()) +
		uint64(bs.Counters.SizeInBytes()) +
		uint64(bs.IndirectDraw.SizeInBytes())
	total += uint64(numCommands) * 8           // commands[]
	total += uint64(numCommands) * 4           // colors[]
	total += uint64(numCommands) * 4           // commands_aabb[]
	total += uint64(encoding.MaxDrawData) * 4  // draw_data[]
	total += uint64(encoding.MaxClips) * 32    // clips[]
	return total
}
