package proc

import (
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

const badInstruction = "(bad)"

func noSymbols(uint64) (string, uint64) {
	return "", 0
}

// decodeX86 decodes code as a single x86-64 instruction stream whose first
// byte lives at base. Bytes that do not decode are emitted as one byte
// "(bad)" instructions so that decoding stays aligned.
func decodeX86(code []byte, base uint64) []*Instruction {
	var insts []*Instruction
	for off := 0; off < len(code); {
		pc := base + uint64(off)
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil || inst.Len == 0 {
			insts = append(insts, &Instruction{
				Addr:     pc,
				Bytes:    code[off : off+1],
				Mnemonic: badInstruction,
			})
			off++
			continue
		}
		mnemonic, operands := splitAsm(x86asm.IntelSyntax(inst, pc, noSymbols))
		insts = append(insts, &Instruction{
			Addr:     pc,
			Bytes:    code[off : off+inst.Len],
			Mnemonic: mnemonic,
			Operands: operands,
		})
		off += inst.Len
	}
	return insts
}

// splitAsm separates the mnemonic from the operand list of an Intel syntax
// instruction. Prefixes such as rep or lock stay with the mnemonic.
func splitAsm(text string) (mnemonic, operands string) {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	i := 0
	for i < len(fields)-1 && isPrefix(fields[i]) {
		i++
	}
	if i >= len(fields) {
		return text, ""
	}
	mnemonic = strings.Join(fields[:i+1], " ")
	operands = strings.Join(fields[i+1:], " ")
	return mnemonic, operands
}

func isPrefix(s string) bool {
	switch s {
	case "lock", "rep", "repe", "repne", "repz", "repnz", "data16", "addr32", "bnd", "xacquire", "xrelease":
		return true
	}
	return false
}
