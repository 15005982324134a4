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

// Package normalize implements mipsmatch's operand-masking normalizer:
// clearing the operand bits of
// address-bearing MIPS instructions so that relocatable code compares
// byte-equal across overlays built at different load addresses.
//
// Masking decisions for addiu/ori/addi and for memory instructions
// depend on whether the base/source register was most recently written
// by a lui in the same basic block. Stream carries that minimal
// per-register state so both one-shot segment normalization (Bytes) and
// the scanner's single pass over the whole scanned binary use
// identical rules: a fresh Stream always starts with an empty table,
// mirroring the fact that a function or segment is only ever entered
// through a call or jump, which is itself a basic-block leader with no
// carried lui state. See DESIGN.md for the corner case this leaves
// undefined (a function falling through into the next without an
// explicit return).
package normalize

import (
	"encoding/binary"
	"fmt"

	"github.com/ttkb-oss/mipsmatch/internal/mipsasm"
)

// Stream is a stateful, one-word-at-a-time normalizer. Its zero value is
// ready to use.
type Stream struct {
	lastLUI [32]bool
}

// NewStream returns a Stream with an empty basic-block history, as if
// the previous instruction were a control transfer.
func NewStream() *Stream {
	return &Stream{}
}

// Next classifies and masks a single instruction word, updating the
// basic-block history as a side effect. word is in host byte order.
func (s *Stream) Next(word uint32) uint32 {
	in := mipsasm.Decode(word)

	if !in.Known {
		// Conservative: unknown encodings are left untouched rather than
		// guessed at. This keeps the stream more discriminating, not
		// less, and leaves the basic-block history unaffected.
		return word
	}

	var masked uint32

	switch in.Family {
	case mipsasm.FamilyLUI:
		masked = word & 0xfc1f0000 // keep opcode, rt; mask rs and imm16
		s.lastLUI[in.Rt] = true

	case mipsasm.FamilyImmALU:
		if s.lastLUI[in.Rs] {
			masked = word & 0xffff0000 // keep opcode, rs, rt; mask imm16
		} else {
			masked = word // kept in full
		}
		s.lastLUI[in.Rt] = false

	case mipsasm.FamilyMemory:
		const gp = 28
		if in.Rs == gp || s.lastLUI[in.Rs] {
			masked = word & 0xffff0000 // keep opcode, rs, rt; mask imm16
		} else {
			masked = word // stack/frame-relative access, kept in full
		}
		if in.Mnemonic[0] == 'l' {
			s.lastLUI[in.Rt] = false // loads write rt; stores only read it
		}

	case mipsasm.FamilyJump:
		masked = word & 0xfc000000 // keep opcode; mask target26
		s.clearBlock()

	case mipsasm.FamilyBranch:
		masked = word & 0xffff0000 // keep opcode, rs, rt; mask offset16
		s.clearBlock()

	case mipsasm.FamilyRegister:
		masked = word // register-register instructions carry no address
		switch in.Mnemonic {
		case "jr", "jalr":
			s.clearBlock()
		case "syscall", "break":
			// the rd bits are part of a code field, not a destination
		default:
			s.lastLUI[in.Rd] = false
		}

	default:
		masked = word
	}

	return masked
}

func (s *Stream) clearBlock() {
	for i := range s.lastLUI {
		s.lastLUI[i] = false
	}
}

// Bytes normalizes a 4-byte-aligned byte slice in one pass, starting
// from a fresh Stream. The returned slice has the same length as data.
func Bytes(data []byte, order binary.ByteOrder) ([]byte, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("normalize: data length %d is not a multiple of 4", len(data))
	}

	out := make([]byte, len(data))
	s := NewStream()

	for i := 0; i+4 <= len(data); i += 4 {
		word := order.Uint32(data[i : i+4])
		order.PutUint32(out[i:i+4], s.Next(word))
	}

	return out, nil
}
