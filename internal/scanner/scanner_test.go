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

package scanner_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/ttkb-oss/mipsmatch/internal/catalog"
	"github.com/ttkb-oss/mipsmatch/internal/fingerprint"
	"github.com/ttkb-oss/mipsmatch/internal/normalize"
	"github.com/ttkb-oss/mipsmatch/internal/scanner"
)

func words(order binary.ByteOrder, ws ...uint32) []byte {
	buf := make([]byte, 4*len(ws))
	for i, w := range ws {
		order.PutUint32(buf[i*4:i*4+4], w)
	}
	return buf
}

// funcA is a small self-contained routine: lui/addiu pair, a store, and
// a jr return with its delay slot. Its lui immediate is deliberately
// relocation-sensitive so address independence is actually exercised.
func funcA(order binary.ByteOrder, luiImm uint32) []byte {
	return words(order,
		0x3c080000|luiImm, // lui $t0, luiImm
		0x25080010,        // addiu $t0, $t0, 0x10
		0xad090000,        // sw $t1, 0($t0)
		0x03e00008,        // jr $ra
		0x00000000,        // nop (delay slot)
	)
}

// buildSegment fingerprints funcA as a one-function segment named name,
// the way "mipsmatch fingerprint" would.
func buildSegment(t *testing.T, order binary.ByteOrder, name string, luiImm uint32) catalog.Segment {
	t.Helper()

	raw := funcA(order, luiImm)
	normalized, err := normalize.Bytes(raw, order)
	if err != nil {
		t.Fatal(err)
	}

	return catalog.Segment{
		Name:        name,
		Fingerprint: fingerprint.Sum(normalized),
		Size:        uint32(len(raw)),
		Symbols: []catalog.Symbol{
			{Name: name + "_fn", Offset: 0, Size: uint32(len(raw)), Fingerprint: fingerprint.Sum(normalized)},
		},
	}
}

// TestScanFindsSelfMatch verifies that fingerprinting a binary and
// scanning that same binary for its own catalog must report every
// segment at its original offset.
func TestScanFindsSelfMatch(t *testing.T) {
	order := binary.LittleEndian
	seg := buildSegment(t, order, "foo", 0x8009)

	bin := funcA(order, 0x8009)

	cat := catalog.Catalog{Version: catalog.Version, Segments: []catalog.Segment{seg}}

	matches, err := scanner.Scan(context.Background(), cat, bin, order, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d: %+v", len(matches), matches)
	}
	if matches[0].Offset != 0 || matches[0].Name != "foo" {
		t.Fatalf("unexpected match: %+v", matches[0])
	}
	if got := matches[0].Symbols["foo_fn"]; got != 0 {
		t.Fatalf("expected symbol offset 0, got %d", got)
	}
}

// TestScanFindsRelocatedMatch verifies address independence end to end:
// the catalog is built from one relocation of funcA, the scanned binary
// carries a different one, and the match must still be found because
// lui immediates normalize away.
func TestScanFindsRelocatedMatch(t *testing.T) {
	order := binary.LittleEndian
	seg := buildSegment(t, order, "foo", 0x8009)

	bin := funcA(order, 0x9000) // relocated copy, different lui immediate

	cat := catalog.Catalog{Version: catalog.Version, Segments: []catalog.Segment{seg}}

	matches, err := scanner.Scan(context.Background(), cat, bin, order, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Offset != 0 {
		t.Fatalf("expected relocated match at offset 0, got %+v", matches)
	}
}

// TestScanMultiSegmentMultiHit verifies that several independent,
// non-overlapping segments scattered through one binary are all found,
// in ascending offset order.
func TestScanMultiSegmentMultiHit(t *testing.T) {
	order := binary.LittleEndian
	segFoo := buildSegment(t, order, "foo", 0x8009)

	// bar stores $t2 rather than $t1, so unlike a relocated funcA it
	// does not normalize to foo's fingerprint.
	barRaw := words(order,
		0x3c089000, // lui $t0, 0x9000
		0x25080010, // addiu $t0, $t0, 0x10
		0xad0a0000, // sw $t2, 0($t0)
		0x03e00008, // jr $ra
		0x00000000, // nop (delay slot)
	)
	barNorm, err := normalize.Bytes(barRaw, order)
	if err != nil {
		t.Fatal(err)
	}
	barFP := fingerprint.Sum(barNorm)
	segBar := catalog.Segment{
		Name:        "bar",
		Fingerprint: barFP,
		Size:        uint32(len(barRaw)),
		Symbols:     []catalog.Symbol{{Name: "bar_fn", Offset: 0, Size: uint32(len(barRaw)), Fingerprint: barFP}},
	}

	var bin []byte
	bin = append(bin, funcA(order, 0x8009)...) // foo at 0
	bin = append(bin, make([]byte, 8)...)      // padding, unrelated bytes
	bin = append(bin, barRaw...)               // bar at 28
	bin = append(bin, make([]byte, 8)...)      // more padding
	bin = append(bin, funcA(order, 0x8009)...) // foo again, at 56

	cat := catalog.Catalog{Version: catalog.Version, Segments: []catalog.Segment{segFoo, segBar}}

	matches, err := scanner.Scan(context.Background(), cat, bin, order, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches, got %d: %+v", len(matches), matches)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Offset < matches[i-1].Offset {
			t.Fatalf("matches not in ascending offset order: %+v", matches)
		}
	}
	wantNames := []string{"foo", "bar", "foo"}
	for i, m := range matches {
		if m.Name != wantNames[i] {
			t.Fatalf("match %d: got segment %q, want %q: %+v", i, m.Name, wantNames[i], matches)
		}
	}
}

// TestScanNonOverlapFirstCatalogOrderWins verifies that when two catalog
// segments could both match the same byte range, only the one earlier
// in catalog order is reported.
func TestScanNonOverlapFirstCatalogOrderWins(t *testing.T) {
	order := binary.LittleEndian

	raw := funcA(order, 0x8009)
	normalized, err := normalize.Bytes(raw, order)
	if err != nil {
		t.Fatal(err)
	}
	fp := fingerprint.Sum(normalized)

	// Two distinct catalog segments, same size, same fingerprint (as if
	// the exact same routine had been catalogued under two names).
	first := catalog.Segment{
		Name:        "first",
		Fingerprint: fp,
		Size:        uint32(len(raw)),
		Symbols:     []catalog.Symbol{{Name: "fn", Offset: 0, Size: uint32(len(raw)), Fingerprint: fp}},
	}
	second := catalog.Segment{
		Name:        "second",
		Fingerprint: fp,
		Size:        uint32(len(raw)),
		Symbols:     []catalog.Symbol{{Name: "fn", Offset: 0, Size: uint32(len(raw)), Fingerprint: fp}},
	}

	cat := catalog.Catalog{Version: catalog.Version, Segments: []catalog.Segment{first, second}}

	matches, err := scanner.Scan(context.Background(), cat, raw, order, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly 1 match after overlap resolution, got %d: %+v", len(matches), matches)
	}
	if matches[0].Name != "first" {
		t.Fatalf("expected catalog order to prefer %q, got %q", "first", matches[0].Name)
	}
}

// TestScanRejectsShortBinary verifies that a binary too short to contain a
// full window must never produce a spurious match.
func TestScanRejectsShortBinary(t *testing.T) {
	order := binary.LittleEndian
	seg := buildSegment(t, order, "foo", 0x8009)

	full := funcA(order, 0x8009)
	truncated := full[:len(full)-4]

	cat := catalog.Catalog{Version: catalog.Version, Segments: []catalog.Segment{seg}}

	matches, err := scanner.Scan(context.Background(), cat, truncated, order, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches against truncated binary, got %+v", matches)
	}
}

// TestScanCancellation verifies that a pre-cancelled context yields
// ErrCancelled and no partial results.
func TestScanCancellation(t *testing.T) {
	order := binary.LittleEndian
	seg := buildSegment(t, order, "foo", 0x8009)
	bin := funcA(order, 0x8009)
	cat := catalog.Catalog{Version: catalog.Version, Segments: []catalog.Segment{seg}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	matches, err := scanner.Scan(ctx, cat, bin, order, 1)
	if err != scanner.ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if matches != nil {
		t.Fatalf("expected nil matches on cancellation, got %+v", matches)
	}
}
