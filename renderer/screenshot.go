// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package renderer

import "gpudraw/mem"

// CaptureRegion is a pixel rectangle within the render target, the Go
// mirror of od_capture_region's (x, y, width, height) arguments.
type CaptureRegion struct {
	X, Y, Width, Height uint32
}

// Screenshotter tracks the one-shot screenshot arm/disarm state that
// od_take_screenshot and od_capture_region implement around a persistent
// capture region: SetCaptureRegion is sticky across frames, Arm requests a
// single readback on the next completed frame, and Take both returns and
// clears that request so a stale arm never fires twice.
type Screenshotter struct {
	allowed bool
	region  CaptureRegion
	armed   bool
	out     []byte
}

// NewScreenshotter reports allowed as false when the renderer was not
// initialized with allow_screenshot; Arm is then always a no-op, matching
// the "screenshot without init flag" precondition violation.
func NewScreenshotter(allowed bool) *Screenshotter {
	return &Screenshotter{allowed: allowed}
}

func (s *Screenshotter) Allowed() bool { return s.allowed }

// SetCaptureRegion changes the sub-region captured by future screenshots.
// A zero-sized region means "use the full viewport", resolved by Region.
func (s *Screenshotter) SetCaptureRegion(r CaptureRegion) {
	s.region = r
}

// Region resolves the configured capture rectangle against the current
// target size, defaulting to the full viewport when none was set.
func (s *Screenshotter) Region(targetWidth, targetHeight uint32) CaptureRegion {
	if s.region.Width == 0 || s.region.Height == 0 {
		return CaptureRegion{0, 0, targetWidth, targetHeight}
	}
	return s.region
}

// Arm requests that the next end_frame's completion handler copy the
// configured region into out, at 4 bytes per pixel. It reports false
// without arming anything if screenshots were not enabled at init.
func (s *Screenshotter) Arm(out []byte) bool {
	if !s.allowed {
		return false
	}
	s.out = out
	s.armed = true
	return true
}

func (s *Screenshotter) Armed() bool { return s.armed }

// Take clears the arm and returns the buffer it was armed with, called by
// the frame completion handler right before it copies pixels in.
func (s *Screenshotter) Take() ([]byte, bool) {
	if !s.armed {
		return nil, false
	}
	out := s.out
	s.out = nil
	s.armed = false
	return out, true
}

// AppendCapture appends a texture-to-buffer readback of region onto an
// already-built frame recording and returns the buffer proxy the engine
// will have populated once the frame's commands are submitted and the
// queue has been waited on, mirroring how od_take_screenshot rides along
// on the already-armed end_frame submission rather than issuing a
// separate command buffer.
func (rec *Recording) AppendCapture(arena *mem.Arena, target ImageProxy, region CaptureRegion) BufferProxy {
	buf := NewBufferProxy(uint64(region.Width)*uint64(region.Height)*4, "screenshot")
	rec.CopyTextureToBuffer(arena, target, [4]uint32{region.X, region.Y, region.Width, region.Height}, buf)
	rec.Download(arena, buf)
	return buf
}
