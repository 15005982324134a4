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

// Package symbolindex combines a parsed linker map with an ELF's
// function symbol table to produce, per segment, an ordered list of
// function extents indexing into the ELF's text section. This is the
// Symbol Index stage of the fingerprinting pipeline.
package symbolindex

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/ttkb-oss/mipsmatch/internal/elfsym"
	"github.com/ttkb-oss/mipsmatch/internal/logger"
	"github.com/ttkb-oss/mipsmatch/internal/mipsmap"
)

// Function is one compiled function's byte range within its segment's
// owning ELF text section.
type Function struct {
	Name       string
	FileOffset uint64 // offset from the start of the ELF's text section
	Size       uint32 // multiple of 4
}

// Segment is a contiguous run of functions linked from the same source
// object file.
type Segment struct {
	Name      string
	Functions []Function
	Size      uint32
}

// Build assembles segments from a linker map's entries and an ELF's
// function symbol table. Segments that fail the covering invariant (a
// non-contiguous or overlapping set of function ranges) are dropped
// with a logged diagnostic rather than failing the whole run.
func Build(entries []mipsmap.Entry, ef *elfsym.File) []Segment {
	entries = append([]mipsmap.Entry(nil), entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })

	funcs := append([]elfsym.FuncSymbol(nil), ef.Funcs...)
	sort.Slice(funcs, func(i, j int) bool { return funcs[i].Value < funcs[j].Value })

	textEnd := ef.TextAddr + uint64(len(ef.TextData))

	var segments []Segment

	for i := 0; i < len(entries); {
		start := entries[i].Address
		obj := entries[i].ObjectFile

		j := i + 1
		for j < len(entries) && entries[j].ObjectFile == obj {
			j++
		}

		var end uint64
		if j < len(entries) {
			end = entries[j].Address
		} else {
			end = textEnd
		}
		i = j

		if start < ef.TextAddr || end > textEnd || end <= start {
			logger.Logf("symbolindex", "skipping %s: range [%#x,%#x) outside text section", obj, start, end)
			continue
		}

		segFuncs := collectFuncs(funcs, start, end)
		if len(segFuncs) == 0 {
			logger.Logf("symbolindex", "skipping %s: no function symbols in range [%#x,%#x)", obj, start, end)
			continue
		}

		name := segmentName(obj)

		functions := make([]Function, 0, len(segFuncs))
		for k, f := range segFuncs {
			size := f.Size
			if size == 0 {
				var next uint64
				if k+1 < len(segFuncs) {
					next = segFuncs[k+1].Value
				} else {
					next = end
				}
				size = next - f.Value
			}

			functions = append(functions, Function{
				Name:       f.Name,
				FileOffset: f.Value - ef.TextAddr,
				Size:       uint32(size),
			})
		}

		if !coversExactly(functions, start-ef.TextAddr, end-ef.TextAddr) {
			logger.Logf("symbolindex", "skipping %s: function ranges do not exactly cover [%#x,%#x)", obj, start, end)
			continue
		}

		total := end - start

		segments = append(segments, Segment{
			Name:      name,
			Functions: functions,
			Size:      uint32(total),
		})
	}

	return segments
}

func collectFuncs(sorted []elfsym.FuncSymbol, start, end uint64) []elfsym.FuncSymbol {
	var out []elfsym.FuncSymbol
	for _, f := range sorted {
		if f.Value >= start && f.Value < end {
			out = append(out, f)
		}
	}
	return out
}

// coversExactly reports whether functions, in order, exactly tile
// [start, end) with no gaps and no overlap.
func coversExactly(functions []Function, start, end uint64) bool {
	cursor := start
	for _, f := range functions {
		if f.FileOffset != cursor {
			return false
		}
		cursor += uint64(f.Size)
	}
	return cursor == end
}

// segmentName derives a segment name from a linker-reported object file
// path: the basename with its extension stripped.
func segmentName(objfile string) string {
	base := filepath.Base(objfile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
