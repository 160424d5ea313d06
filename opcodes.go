package mooregex

import (
	"fmt"
	"strings"
)

// opcode is a single bytecode instruction tag. Each opcode is one byte
// followed by zero or more operand bytes, per the layout documented
// next to each constant.
type opcode byte

const (
	opEnd         opcode = iota // no operands
	opBOL                       // no operands
	opEOL                       // no operands
	opAny                       // no operands
	opChar                      // 1 byte length + UTF-8 bytes of one codepoint
	opClass                     // 32-byte bitmap + 1 byte ext-count + 8*ext-count bytes
	opClassNeg                  // same layout as opClass, complemented
	opJump                      // 2-byte signed displacement
	opStarJump                  // 2-byte signed displacement
	opFailJump                  // 2-byte signed displacement
	opStartGroup                // 1 byte group index (1-9)
	opEndGroup                  // 1 byte group index (1-9)
	opBackref                   // 1 byte group index (1-9)
	opWordBound                 // no operands
	opNotWordBound              // no operands
	opWordStart                 // no operands
	opWordEnd                   // no operands
	opWordChar                  // no operands
	opNotWordChar               // no operands
	opBufBegin                  // no operands
	opBufEnd                    // no operands
)

var opcodeNames = map[opcode]string{
	opEnd:          "END",
	opBOL:          "BOL",
	opEOL:          "EOL",
	opAny:          "ANY",
	opChar:         "CHAR",
	opClass:        "CLASS",
	opClassNeg:     "CLASS_NEG",
	opJump:         "JUMP",
	opStarJump:     "STAR_JUMP",
	opFailJump:     "FAIL_JUMP",
	opStartGroup:   "START_GROUP",
	opEndGroup:     "END_GROUP",
	opBackref:      "BACKREF",
	opWordBound:    "WORD_BOUND",
	opNotWordBound: "NOT_WORD_BOUND",
	opWordStart:    "WORD_START",
	opWordEnd:      "WORD_END",
	opWordChar:     "WORD_CHAR",
	opNotWordChar:  "NOT_WORD_CHAR",
	opBufBegin:     "BUF_BEGIN",
	opBufEnd:       "BUF_END",
}

func (op opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("OP(%d)", byte(op))
}

// readDisp16 reads a 16-bit signed displacement starting at pos.
func readDisp16(code []byte, pos int) int16 {
	return int16(code[pos]) | int16(code[pos+1])<<8
}

// Disassemble renders one line per instruction: address, mnemonic, and
// operands. Intended for debugging failed test assertions, in the
// spirit of the original engine's debug_bytecode/debug_groups/trace_groups
// developer tools — a developer convenience, not part of the matching
// semantics.
func (p *Program) Disassemble() string {
	var b strings.Builder
	code := p.Code
	for ip := 0; ip < len(code); {
		start := ip
		op := opcode(code[ip])
		ip++
		fmt.Fprintf(&b, "%4d: %-14s", start, op)
		switch op {
		case opChar:
			n := int(code[ip])
			ip++
			fmt.Fprintf(&b, " %q", string(code[ip:ip+n]))
			ip += n
		case opClass, opClassNeg:
			ip += 32
			n := int(code[ip])
			ip++
			ip += n * 8
			fmt.Fprintf(&b, " <%d ext ranges>", n)
		case opJump, opStarJump, opFailJump:
			disp := readDisp16(code, ip)
			ip += 2
			fmt.Fprintf(&b, " -> %d", start+3+int(disp))
		case opStartGroup, opEndGroup, opBackref:
			fmt.Fprintf(&b, " %d", code[ip])
			ip++
		}
		b.WriteByte('\n')
	}
	return b.String()
}
