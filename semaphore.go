// Copyright 2024 Dominik Honnef and contributors
// SPDX-License-Identifier: Apache-2.0 OR MIT

package gpudraw

// frameSemaphore is the capacity-3 counting semaphore spec §4.6/§5 describe:
// begin_frame acquires a slot before the front end is allowed to rewrite
// buffer f%3, and EndFrame/EndFrameToSurface release it as soon as the
// frame's work has been submitted; the release does not wait for the GPU to
// finish that frame. A buffered channel is the
// idiomatic Go counting semaphore; acquiring is receiving a token, releasing
// is sending one back.
type frameSemaphore chan struct{}

func newFrameSemaphore(capacity int) frameSemaphore {
	s := make(frameSemaphore, capacity)
	for range capacity {
		s <- struct{}{}
	}
	return s
}

// acquire blocks until a buffer slot is free, mirroring flush's implicit
// semaphore wait.
func (s frameSemaphore) acquire() {
	<-s
}

// release hands a slot back, called at the end of EndFrame and
// EndFrameToSurface once the frame has been submitted.
func (s frameSemaphore) release() {
	s <- struct{}{}
}
