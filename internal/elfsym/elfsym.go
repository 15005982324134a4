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

// Package elfsym wraps debug/elf to provide the narrow view the symbol
// index needs: the text section's bytes and base address, the file's
// endianness, and the full FUNC symbol table including file-local
// bindings (which debug/elf exposes but which linker maps omit).
package elfsym

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/ttkb-oss/mipsmatch/internal/mipserr"
)

// FuncSymbol is one FUNC-type ELF symbol inside the text section.
type FuncSymbol struct {
	Name  string
	Value uint64 // virtual address
	Size  uint64 // st_size; zero if the object file didn't record one
}

// File is the subset of ELF file contents the symbol index consumes.
type File struct {
	Order    binary.ByteOrder
	TextAddr uint64
	TextData []byte
	Funcs    []FuncSymbol
}

// Load opens path, verifies it is a MIPS ELF, and extracts the text
// section and function symbol table.
func Load(path string) (*File, error) {
	ef, err := elf.Open(path)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return nil, mipserr.Errorf(mipserr.PatternIO, err)
		}
		return nil, mipserr.Errorf(mipserr.PatternMalformedInput, err)
	}
	defer ef.Close()

	if ef.Machine != elf.EM_MIPS {
		return nil, mipserr.Errorf(mipserr.PatternEndianMismatch,
			fmt.Sprintf("expected EM_MIPS, got %s", ef.Machine))
	}

	text := ef.Section(".text")
	if text == nil {
		return nil, mipserr.Errorf(mipserr.PatternMalformedInput,
			fmt.Errorf("no .text section in %s", path))
	}

	data, err := text.Data()
	if err != nil {
		return nil, mipserr.Errorf(mipserr.PatternMalformedInput, err)
	}

	syms, err := ef.Symbols()
	if err != nil {
		return nil, mipserr.Errorf(mipserr.PatternMalformedInput, err)
	}

	textStart := text.Addr
	textEnd := text.Addr + text.Size

	var funcs []FuncSymbol
	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		if s.Value < textStart || s.Value >= textEnd {
			continue
		}
		funcs = append(funcs, FuncSymbol{
			Name:  s.Name,
			Value: s.Value,
			Size:  s.Size,
		})
	}

	return &File{
		Order:    ef.ByteOrder,
		TextAddr: textStart,
		TextData: data,
		Funcs:    funcs,
	}, nil
}
