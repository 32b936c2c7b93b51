// Copyright 2026 The UStore Authors.
//
// Package rollinghash implements the chunk-boundary predicate the Prolly
// tree uses to decide where one chunk ends and the next begins: a BuzHash
// rolling hash over a trailing byte window, with a boundary declared
// whenever the hash satisfies a bit-pattern mask (spec §3, §4.4).
package rollinghash

import "github.com/kch42/buzhash"

// DefaultPattern is the default boundary mask: a chunk boundary fires
// whenever hash&Pattern == Pattern. (1<<12)-1 gives an expected leaf size
// of about 4 KiB (spec §3, confirmed against the original implementation's
// RollingHasher::DEFAULT_CHUNK_PATTERN).
const DefaultPattern = (1 << 12) - 1

// DefaultWindow is the default trailing-window size in bytes (spec §4.4,
// matching RollingHasher::DEFAULT_CHUNK_WINDOW in the original).
const DefaultWindow = 64

// Hasher wraps a BuzHash rolling hash with the pattern-mask boundary
// predicate. Its state (window buffer, current 32-bit hash) must be reset
// at the start of every new tree level — callers do this by constructing
// a fresh Hasher per level, matching the original's per-level
// RollingHasher lifetime.
type Hasher struct {
	buz     *buzhash.BuzHash
	pattern uint32
	window  uint32
}

// New constructs a Hasher with the given boundary pattern and trailing
// window size.
func New(pattern uint32, window uint32) *Hasher {
	return &Hasher{
		buz:     buzhash.NewBuzHash(window),
		pattern: pattern,
		window:  window,
	}
}

// NewDefault constructs a Hasher using DefaultPattern and DefaultWindow.
func NewDefault() *Hasher {
	return New(DefaultPattern, DefaultWindow)
}

// HashByte feeds one byte into the rolling hash and reports whether this
// byte completes a chunk (the trailing window's hash now satisfies the
// boundary predicate). Feeding is stateful: each call advances the
// window by one byte.
func (h *Hasher) HashByte(b byte) (boundary bool) {
	sum := h.buz.HashByte(b)
	return sum&h.pattern == h.pattern
}

// Reset clears the rolling window, starting a fresh run. Callers must
// call Reset after a boundary fires and the emitted run has been sealed
// into a chunk, so the next run's window does not see bytes from the
// sealed chunk.
func (h *Hasher) Reset() {
	h.buz.Reset()
}

// Pattern reports the configured boundary mask.
func (h *Hasher) Pattern() uint32 { return h.pattern }

// Window reports the configured trailing-window size in bytes.
func (h *Hasher) Window() uint32 { return h.window }
