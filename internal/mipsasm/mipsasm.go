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

// Package mipsasm decodes 32-bit MIPS-I instruction words into their
// mnemonic, format, and operand fields. It is the narrow MIPS-decoder
// collaborator mipsmatch expects (see DESIGN.md): it knows
// nothing about address masking or fingerprinting, only how to split a
// word into the fields a classifier further up the pipeline needs.
package mipsasm

// Family groups instructions by the shape of operand-masking decision
// the normalizer must make. It is data, not behavior: the mnemonic
// tables and Decode below are the only place mnemonics map to a Family.
type Family int

const (
	// FamilyUnknown is returned for any word this decoder does not
	// recognise. The normalizer treats unknown encodings as
	// position-independent and passes them through unmodified.
	FamilyUnknown Family = iota

	// FamilyLUI is `lui rt, imm16`: the upper half of an absolute
	// constant or address.
	FamilyLUI

	// FamilyImmALU is `addiu/ori/addi rt, rs, imm16`. Whether imm16 is
	// address-bearing depends on whether rs was just loaded by a lui;
	// that decision belongs to the normalizer, not this package.
	FamilyImmALU

	// FamilyJump is `j target26` / `jal target26`.
	FamilyJump

	// FamilyMemory is a load or store with a 16-bit offset from a base
	// register (`lw`, `sw`, `lb`, `lbu`, `lh`, `lhu`, `sb`, `sh`).
	FamilyMemory

	// FamilyBranch is a PC-relative conditional branch
	// (`beq`, `bne`, `blez`, `bgtz`, `bltz`, `bgez`, ...).
	FamilyBranch

	// FamilyRegister is register-register ALU, shifts, jr, jalr, and
	// syscalls: entirely position-independent.
	FamilyRegister
)

// Instruction is the decoded form of a single 32-bit MIPS-I word.
type Instruction struct {
	Word     uint32
	Mnemonic string
	Family   Family
	Known    bool

	Opcode   uint32 // bits 31:26
	Rs       uint32 // bits 25:21
	Rt       uint32 // bits 20:16
	Rd       uint32 // bits 15:11 (R-type only)
	Shamt    uint32 // bits 10:6 (R-type only)
	Funct    uint32 // bits 5:0 (R-type only)
	Imm16    uint32 // bits 15:0, sign-extension is the caller's concern
	Target26 uint32 // bits 25:0 (j/jal only)
}

const (
	opSpecial = 0x00
	opRegimm  = 0x01
	opJ       = 0x02
	opJAL     = 0x03
	opBEQ     = 0x04
	opBNE     = 0x05
	opBLEZ    = 0x06
	opBGTZ    = 0x07
	opADDI    = 0x08
	opADDIU   = 0x09
	opSLTI    = 0x0a
	opSLTIU   = 0x0b
	opANDI    = 0x0c
	opORI     = 0x0d
	opXORI    = 0x0e
	opLUI     = 0x0f
	opCOP0    = 0x10
	opCOP1    = 0x11
	opCOP2    = 0x12
	opLB      = 0x20
	opLH      = 0x21
	opLWL     = 0x22
	opLW      = 0x23
	opLBU     = 0x24
	opLHU     = 0x25
	opLWR     = 0x26
	opSB      = 0x28
	opSH      = 0x29
	opSWL     = 0x2a
	opSW      = 0x2b
	opSWR     = 0x2e
)

const (
	functSLL     = 0x00
	functSRL     = 0x02
	functSRA     = 0x03
	functSLLV    = 0x04
	functSRLV    = 0x06
	functSRAV    = 0x07
	functJR      = 0x08
	functJALR    = 0x09
	functSYSCALL = 0x0c
	functBREAK   = 0x0d
	functMFHI    = 0x10
	functMTHI    = 0x11
	functMFLO    = 0x12
	functMTLO    = 0x13
	functMULT    = 0x18
	functMULTU   = 0x19
	functDIV     = 0x1a
	functDIVU    = 0x1b
	functADD     = 0x20
	functADDU    = 0x21
	functSUB     = 0x22
	functSUBU    = 0x23
	functAND     = 0x24
	functOR      = 0x25
	functXOR     = 0x26
	functNOR     = 0x27
	functSLT     = 0x2a
	functSLTU    = 0x2b
)

var mnemonicsImmALU = map[uint32]string{
	opADDI:  "addi",
	opADDIU: "addiu",
	opSLTI:  "slti",
	opSLTIU: "sltiu",
	opANDI:  "andi",
	opORI:   "ori",
	opXORI:  "xori",
}

var mnemonicsMemory = map[uint32]string{
	opLB:  "lb",
	opLH:  "lh",
	opLWL: "lwl",
	opLW:  "lw",
	opLBU: "lbu",
	opLHU: "lhu",
	opLWR: "lwr",
	opSB:  "sb",
	opSH:  "sh",
	opSWL: "swl",
	opSW:  "sw",
	opSWR: "swr",
}

var mnemonicsBranch = map[uint32]string{
	opBEQ:  "beq",
	opBNE:  "bne",
	opBLEZ: "blez",
	opBGTZ: "bgtz",
}

var mnemonicsRegister = map[uint32]string{
	functSLL:     "sll",
	functSRL:     "srl",
	functSRA:     "sra",
	functSLLV:    "sllv",
	functSRLV:    "srlv",
	functSRAV:    "srav",
	functJR:      "jr",
	functJALR:    "jalr",
	functSYSCALL: "syscall",
	functBREAK:   "break",
	functMFHI:    "mfhi",
	functMTHI:    "mthi",
	functMFLO:    "mflo",
	functMTLO:    "mtlo",
	functMULT:    "mult",
	functMULTU:   "multu",
	functDIV:     "div",
	functDIVU:    "divu",
	functADD:     "add",
	functADDU:    "addu",
	functSUB:     "sub",
	functSUBU:    "subu",
	functAND:     "and",
	functOR:      "or",
	functXOR:     "xor",
	functNOR:     "nor",
	functSLT:     "slt",
	functSLTU:    "sltu",
}

// Decode classifies a single 32-bit instruction word. The caller has
// already resolved byte order; word is the instruction in host order.
func Decode(word uint32) Instruction {
	in := Instruction{
		Word:     word,
		Opcode:   (word >> 26) & 0x3f,
		Rs:       (word >> 21) & 0x1f,
		Rt:       (word >> 16) & 0x1f,
		Rd:       (word >> 11) & 0x1f,
		Shamt:    (word >> 6) & 0x1f,
		Funct:    word & 0x3f,
		Imm16:    word & 0xffff,
		Target26: word & 0x03ffffff,
	}

	switch in.Opcode {
	case opSpecial:
		if name, ok := mnemonicsRegister[in.Funct]; ok {
			in.Known = true
			in.Mnemonic = name
			in.Family = FamilyRegister
		}

	case opRegimm:
		// bltz/bgez/bltzal/bgezal family: rt selects the specific
		// branch, the shape is otherwise identical to the other
		// branch instructions.
		switch in.Rt {
		case 0x00:
			in.Mnemonic = "bltz"
		case 0x01:
			in.Mnemonic = "bgez"
		case 0x10:
			in.Mnemonic = "bltzal"
		case 0x11:
			in.Mnemonic = "bgezal"
		default:
			return in
		}
		in.Known = true
		in.Family = FamilyBranch

	case opJ:
		in.Known = true
		in.Mnemonic = "j"
		in.Family = FamilyJump

	case opJAL:
		in.Known = true
		in.Mnemonic = "jal"
		in.Family = FamilyJump

	case opLUI:
		in.Known = true
		in.Mnemonic = "lui"
		in.Family = FamilyLUI

	default:
		if name, ok := mnemonicsImmALU[in.Opcode]; ok {
			in.Known = true
			in.Mnemonic = name
			in.Family = FamilyImmALU
		} else if name, ok := mnemonicsMemory[in.Opcode]; ok {
			in.Known = true
			in.Mnemonic = name
			in.Family = FamilyMemory
		} else if name, ok := mnemonicsBranch[in.Opcode]; ok {
			in.Known = true
			in.Mnemonic = name
			in.Family = FamilyBranch
		}
	}

	return in
}
