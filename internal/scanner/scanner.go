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

// Package scanner locates every catalog segment in a candidate binary:
// given a catalog and a candidate binary, it locates every segment via
// Rabin-Karp over a normalized view of the binary, verifies each
// fingerprint hit by re-hashing the window and then each function's
// slice against the catalog's fingerprints, and recovers each symbol's
// absolute offset.
package scanner

import (
	"context"
	"encoding/binary"
	"errors"
	"runtime"
	"sort"
	"sync"

	"github.com/ttkb-oss/mipsmatch/internal/catalog"
	"github.com/ttkb-oss/mipsmatch/internal/fingerprint"
	"github.com/ttkb-oss/mipsmatch/internal/logger"
	"github.com/ttkb-oss/mipsmatch/internal/normalize"
)

// ErrCancelled is returned by Scan when ctx is cancelled before the scan
// finishes. No partial output is ever returned on cancellation.
var ErrCancelled = errors.New("scanner: cancelled")

// Scan searches bin for every segment in cat. order decodes instruction
// words from the scanned binary; it need not match the endianness of
// whatever binary originally produced the catalog, though in practice
// it always will, since both come from the same target ISA.
//
// concurrency bounds how many segments are scanned in parallel; values
// <= 0 default to runtime.NumCPU(), one worker per segment being the
// natural unit of parallelism (each segment has its own window size and
// rolling state).
func Scan(ctx context.Context, cat catalog.Catalog, bin []byte, order binary.ByteOrder, concurrency int) ([]catalog.Match, error) {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	// The normalized view of the scanned binary does not depend on
	// which segment is being searched for, so it is computed once and
	// shared read-only across workers; each worker still owns its own
	// rolling-hash state exclusively.
	normalized := normalizeBinary(bin, order)

	results := make([][]catalog.Match, len(cat.Segments))

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, seg := range cat.Segments {
		i, seg := i, seg

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = scanSegment(ctx, seg, normalized)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ErrCancelled
	}

	return mergeResults(cat, results), nil
}

// normalizeBinary normalizes every 4-byte-aligned word of data in a
// single continuous pass, leaving any trailing 0-3 bytes untouched
// (they can never begin an aligned candidate window).
func normalizeBinary(data []byte, order binary.ByteOrder) []byte {
	out := make([]byte, len(data))
	full := len(data) - len(data)%4

	s := normalize.NewStream()
	for i := 0; i < full; i += 4 {
		word := order.Uint32(data[i : i+4])
		order.PutUint32(out[i:i+4], s.Next(word))
	}
	copy(out[full:], data[full:])

	return out
}

// scanSegment runs the Rabin-Karp search for a single segment over an
// already-normalized view of the scanned binary.
func scanSegment(ctx context.Context, seg catalog.Segment, normalized []byte) []catalog.Match {
	w := int(seg.Size)
	if w <= 0 || w%4 != 0 || len(normalized) < w {
		return nil
	}

	var matches []catalog.Match
	roll := fingerprint.NewRolling(w)

	i := 0
	for i+4 <= len(normalized) {
		if i&0xff == 0 && ctx.Err() != nil {
			return nil
		}

		var h fingerprint.Hash
		for k := 0; k < 4; k++ {
			h = roll.Advance(normalized[i+k])
		}
		i += 4

		if !roll.Ready() {
			continue
		}

		base := i - w
		if h != seg.Fingerprint {
			continue
		}

		// Step 3a: re-hash the window from scratch. This guards
		// against rolling-state drift rather than normalization
		// itself, which was already computed once, cleanly, above.
		if fingerprint.Sum(normalized[base:base+w]) != seg.Fingerprint {
			continue
		}

		// Step 3b: verify every function fingerprint in order.
		symbols := make(map[string]uint64, len(seg.Symbols))
		verified := true
		for _, sym := range seg.Symbols {
			start := base + int(sym.Offset)
			end := start + int(sym.Size)
			if end > len(normalized) || fingerprint.Sum(normalized[start:end]) != sym.Fingerprint {
				verified = false
				break
			}
			symbols[sym.Name] = uint64(base) + uint64(sym.Offset)
		}

		if !verified {
			// A fingerprint collision here is expected and rare;
			// failing verification simply continues scanning.
			logger.Logf("scanner", "fingerprint hit for %q at %#x failed verification", seg.Name, base)
			continue
		}

		matches = append(matches, catalog.Match{
			Name:    seg.Name,
			Offset:  uint64(base),
			Size:    seg.Size,
			Symbols: symbols,
		})

		// Advance the cursor to match_offset + W so this segment's own
		// matches never overlap each other. Resetting the rolling
		// state means the next candidate it can report is exactly W
		// bytes further along, since it must refill its window first.
		roll = fingerprint.NewRolling(w)
	}

	return matches
}

type span struct {
	start, end uint64
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// mergeResults applies the cross-segment non-overlap rule: "first by
// catalog order wins". Segments are walked in catalog order;
// within a segment, matches are already in ascending offset order. A
// candidate match that overlaps anything already accepted is dropped.
// The final slice is sorted by (offset ascending, name ascending)
// regardless of worker interleaving.
func mergeResults(cat catalog.Catalog, results [][]catalog.Match) []catalog.Match {
	var accepted []catalog.Match
	var occupied []span

	for i := range cat.Segments {
		for _, m := range results[i] {
			s := span{start: m.Offset, end: m.Offset + uint64(m.Size)}

			overlapped := false
			for _, o := range occupied {
				if s.overlaps(o) {
					overlapped = true
					break
				}
			}
			if overlapped {
				continue
			}

			occupied = append(occupied, s)
			accepted = append(accepted, m)
		}
	}

	sort.Slice(accepted, func(i, j int) bool {
		if accepted[i].Offset != accepted[j].Offset {
			return accepted[i].Offset < accepted[j].Offset
		}
		return accepted[i].Name < accepted[j].Name
	})

	return accepted
}
