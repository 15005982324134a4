// This file is part of mipsmatch.
//
// mipsmatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// mipsmatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with mipsmatch.  If not, see <https://www.gnu.org/licenses/>.

// Package fingerprint computes the 32-bit polynomial hash the
// fingerprinting pipeline calls a fingerprint, both as a one-shot function over a
// complete byte slice and as an incremental Rabin-Karp rolling state
// over a fixed-size window. A fingerprint is a filter, not a proof of
// equality; callers must verify candidate matches against the original
// bytes before trusting them.
package fingerprint

import "fmt"

// R and M are fixed constants shared by every catalog produced by this
// version of mipsmatch. M is prime and close to 2^32 so the hash fully
// occupies the output width; R is odd and coprime to M. Changing either
// invalidates every previously produced catalog, which is why the
// catalog format embeds a version tag (see internal/catalog) rather
// than R and M themselves.
const (
	R uint64 = 0x01000193 // FNV-prime-shaped multiplier, good dispersion on sparse MIPS code
	M uint64 = 0xfffffffb // largest prime below 2^32
)

// Hash is a 32-bit polynomial fingerprint.
type Hash uint32

// String renders the fingerprint the way the catalog format does:
// lowercase hex with a 0x prefix.
func (h Hash) String() string {
	return fmt.Sprintf("0x%08x", uint32(h))
}

// MarshalYAML renders the fingerprint as the catalog format's hex
// string rather than as a plain decimal scalar.
func (h Hash) MarshalYAML() (interface{}, error) {
	return h.String(), nil
}

// UnmarshalYAML accepts either a hex string ("0xdeadbeef") or a plain
// integer scalar, so hand-written catalogs need not use the hex form.
func (h *Hash) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		var v uint32
		if _, err := fmt.Sscanf(s, "0x%x", &v); err != nil {
			if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
				return fmt.Errorf("fingerprint: cannot parse hash %q: %w", s, err)
			}
		}
		*h = Hash(v)
		return nil
	}

	var v uint32
	if err := unmarshal(&v); err != nil {
		return fmt.Errorf("fingerprint: cannot unmarshal hash: %w", err)
	}
	*h = Hash(v)
	return nil
}

// Sum computes the Horner's-method evaluation of data: h = (h*R + b) mod
// M for each byte b, left to right, starting from h = 0.
func Sum(data []byte) Hash {
	var h uint64
	for _, b := range data {
		h = (h*R + uint64(b)) % M
	}
	return Hash(h)
}

// Rolling is an incremental Rabin-Karp hash state over a fixed-size
// window. After Window bytes have been pushed via Advance, Value
// reflects the hash of the most recent Window bytes, and stays current
// in O(1) per subsequent Advance call.
type Rolling struct {
	window int
	rPow   uint64 // R^(window-1) mod M, precomputed for rolling subtraction

	ring   []byte
	pos    int
	filled int

	h uint64
}

// NewRolling creates a Rolling hasher for the given window size in
// bytes. window must be greater than zero.
func NewRolling(window int) *Rolling {
	if window <= 0 {
		panic("fingerprint: window size must be positive")
	}

	rPow := uint64(1)
	for i := 0; i < window-1; i++ {
		rPow = (rPow * R) % M
	}

	return &Rolling{
		window: window,
		rPow:   rPow,
		ring:   make([]byte, window),
	}
}

// Window returns the configured window size in bytes.
func (r *Rolling) Window() int {
	return r.window
}

// Ready reports whether Window bytes have been pushed, so Value is
// meaningful.
func (r *Rolling) Ready() bool {
	return r.filled >= r.window
}

// Advance pushes a new byte into the window, evicting the oldest byte
// if the window is already full, and returns the resulting hash. The
// returned value is only meaningful once Ready reports true.
func (r *Rolling) Advance(b byte) Hash {
	if r.filled < r.window {
		r.h = (r.h*R + uint64(b)) % M
		r.ring[r.pos] = b
		r.pos = (r.pos + 1) % r.window
		r.filled++
		return Hash(r.h)
	}

	old := uint64(r.ring[r.pos])

	// h = ((h - old*R^(window-1)) * R + new) mod M, keeping every
	// intermediate term non-negative before the modulo reduction.
	sub := (old * r.rPow) % M
	h := r.h + M - sub
	h = (h % M * R) % M
	h = (h + uint64(b)) % M

	r.h = h
	r.ring[r.pos] = b
	r.pos = (r.pos + 1) % r.window

	return Hash(r.h)
}

// Value returns the current hash without advancing the window.
func (r *Rolling) Value() Hash {
	return Hash(r.h)
}
