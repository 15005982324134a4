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

// Package mipsmap parses the "Linker script and memory map" section of a
// GNU ld map file, the form produced by the psx/n64-era MIPS toolchains
// this tool targets. It attributes address ranges in the text output
// section to the source object file the linker pulled them from; it
// does not itself know about individual function symbols; those come
// from the ELF symbol table (see internal/elfsym) and are matched
// against the ranges this package reports.
package mipsmap

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/ttkb-oss/mipsmatch/internal/mipserr"
)

// Entry associates a text-section address with the source object file
// the linker attributed it to.
type Entry struct {
	Address    uint64
	ObjectFile string
}

const mapHeader = "Linker script and memory map"

// Parse reads a linker map from r and returns its text-section entries
// in ascending address order, as they appear in the map. Entries whose
// contribution is a linker-synthesized symbol rather than a real object
// file are skipped.
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, mipserr.Errorf(mipserr.PatternIO, err)
	}

	for i, l := range lines {
		if strings.TrimSpace(l) == mapHeader {
			lines = lines[i:]
			break
		}
	}

	var entries []Entry
	var pendingSection string

	for _, l := range lines {
		fields := strings.Fields(l)
		if len(fields) == 0 {
			continue
		}

		switch {
		case len(fields) == 1 && strings.HasPrefix(fields[0], ".text"):
			// a lone ".text" or ".text.<name>" line introduces the next
			// object file's contribution to the text section.
			pendingSection = fields[0]

		case strings.HasSuffix(l, ".o"):
			if pendingSection == "" {
				continue
			}

			addr, err := strconv.ParseUint(fields[0], 0, 64)
			if err != nil {
				// not every line starting with a hex-looking field is
				// an address record (some are symbol definitions); skip
				// lines we can't parse rather than failing the whole file.
				continue
			}

			n := strings.LastIndex(l, " ")
			objFile := l[n+1:]

			entries = append(entries, Entry{
				Address:    addr,
				ObjectFile: objFile,
			})
			pendingSection = ""
		}
	}

	return entries, nil
}
