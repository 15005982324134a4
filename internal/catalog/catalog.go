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

// Package catalog implements the Fingerprint Store: the persisted,
// human-readable YAML artifact produced by "mipsmatch fingerprint" and
// consumed by "mipsmatch scan", plus the match-report stream the
// scanner emits. Both are plain YAML, encoded with gopkg.in/yaml.v3.
package catalog

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/ttkb-oss/mipsmatch/internal/fingerprint"
	"github.com/ttkb-oss/mipsmatch/internal/mipserr"
)

// Version is embedded in every catalog this tool writes. It identifies
// the (R, M) constants and normalization table a catalog was built
// with; a mismatch on read is fatal, since fingerprint values are not
// meaningful across versions.
const Version uint32 = 1

// Symbol is one function's entry within a segment, in the order it
// appears in the segment.
type Symbol struct {
	Name        string           `yaml:"name"`
	Offset      uint32           `yaml:"offset"`
	Size        uint32           `yaml:"size"`
	Fingerprint fingerprint.Hash `yaml:"fingerprint"`
}

// Segment is one catalog entry: a matchable unit with its own
// fingerprint and an ordered list of the functions inside it.
type Segment struct {
	Name        string           `yaml:"name"`
	Fingerprint fingerprint.Hash `yaml:"fingerprint"`
	Size        uint32           `yaml:"size"`
	Symbols     []Symbol         `yaml:"symbols"`
}

// Catalog is the top-level fingerprint store document.
type Catalog struct {
	Version  uint32    `yaml:"version"`
	Segments []Segment `yaml:"segments"`
}

// Write encodes c to w as YAML.
func Write(w io.Writer, c Catalog) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()

	if err := enc.Encode(c); err != nil {
		return mipserr.Errorf(mipserr.PatternIO, err)
	}
	return nil
}

// Read decodes a catalog from r and verifies its version tag. A
// version mismatch is fatal: consumers must refuse to scan against an
// incompatible catalog rather than silently
// produce fingerprint comparisons that can never match.
func Read(r io.Reader) (Catalog, error) {
	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return Catalog{}, mipserr.Errorf(mipserr.PatternMalformedInput, err)
	}

	if c.Version != Version {
		return Catalog{}, mipserr.Errorf(mipserr.PatternCatalogVersion, c.Version, Version)
	}

	return c, nil
}

// hexU64 marshals as a 0x-prefixed hex string, matching the match
// report stream's "<u64 hex>" fields.
type hexU64 uint64

func (h hexU64) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("0x%x", uint64(h)), nil
}

func (h *hexU64) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		var v uint64
		if _, err := fmt.Sscanf(s, "0x%x", &v); err != nil {
			return fmt.Errorf("catalog: cannot parse offset %q: %w", s, err)
		}
		*h = hexU64(v)
		return nil
	}
	var v uint64
	if err := unmarshal(&v); err != nil {
		return err
	}
	*h = hexU64(v)
	return nil
}

// Match is one match-stream document, as emitted by the scanner: a
// located segment with the absolute scanned-file offset of every one
// of its symbols.
type Match struct {
	Name    string
	Offset  uint64
	Size    uint32
	Symbols map[string]uint64
}

// matchWire is the YAML-shaped mirror of Match, used because yaml.v3
// does not let a single struct field carry two different marshaled
// representations (decimal Offset for callers, hex for the wire).
type matchWire struct {
	Name    string            `yaml:"name"`
	Offset  hexU64            `yaml:"offset"`
	Size    uint32            `yaml:"size"`
	Symbols map[string]hexU64 `yaml:"symbols"`
}

func toWire(m Match) matchWire {
	symbols := make(map[string]hexU64, len(m.Symbols))
	for k, v := range m.Symbols {
		symbols[k] = hexU64(v)
	}
	return matchWire{
		Name:    m.Name,
		Offset:  hexU64(m.Offset),
		Size:    m.Size,
		Symbols: symbols,
	}
}

func fromWire(w matchWire) Match {
	symbols := make(map[string]uint64, len(w.Symbols))
	for k, v := range w.Symbols {
		symbols[k] = uint64(v)
	}
	return Match{
		Name:    w.Name,
		Offset:  uint64(w.Offset),
		Size:    w.Size,
		Symbols: symbols,
	}
}

// WriteMatches encodes reports as a stream of YAML documents, one per
// match, separated by the conventional "---" document marker.
func WriteMatches(w io.Writer, reports []Match) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()

	for _, m := range reports {
		if err := enc.Encode(toWire(m)); err != nil {
			return mipserr.Errorf(mipserr.PatternIO, err)
		}
	}
	return nil
}

// ReadMatches decodes a stream of match documents previously written by
// WriteMatches.
func ReadMatches(r io.Reader) ([]Match, error) {
	dec := yaml.NewDecoder(r)

	var out []Match
	for {
		var w matchWire
		err := dec.Decode(&w)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, mipserr.Errorf(mipserr.PatternMalformedInput, err)
		}
		out = append(out, fromWire(w))
	}
	return out, nil
}
