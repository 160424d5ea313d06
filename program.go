package mooregex

import "fmt"

// maxGroups is the largest capturing-group index this dialect supports.
const maxGroups = 9

// maxProgramSize is the largest bytecode buffer a 16-bit signed
// displacement can address.
const maxProgramSize = 32767

// Program is an immutable compiled pattern: an opcode stream plus the
// metadata the VM needs to skip non-starting positions quickly.
type Program struct {
	Code          []byte
	NumGroups     int
	AnchoredAtBOL bool
	Fastmap       *[256]bool
	MustMatchByte *byte
	Source        string
	Profile       SyntaxFlags
}

// ProgramInfo is the read-only introspection surface named in the
// external interface: num_groups, anchored, fastmap.
type ProgramInfo struct {
	NumGroups     int
	AnchoredAtBOL bool
	HasFastmap    bool
}

// Info reports a compiled program's shape without exposing the raw
// bytecode, mirroring the optional program_info introspection entry
// point.
func (p *Program) Info() ProgramInfo {
	return ProgramInfo{
		NumGroups:     p.NumGroups,
		AnchoredAtBOL: p.AnchoredAtBOL,
		HasFastmap:    p.Fastmap != nil,
	}
}

// CompileErrorKind distinguishes the deterministic, pattern-only
// failures the compiler can report. Callers dispatch on Kind, never on
// the message text.
type CompileErrorKind int

const (
	ErrUnbalancedGroup CompileErrorKind = iota
	ErrUnbalancedBracket
	ErrTrailingBackslash
	ErrInvalidRange
	ErrInvalidBackref
	ErrMisplacedQuantifier
	ErrNestedQuantifier
	ErrTooManyGroups
	ErrProgramTooLarge
	ErrBadEscape
)

var compileErrorText = map[CompileErrorKind]string{
	ErrUnbalancedGroup:     "unbalanced group",
	ErrUnbalancedBracket:   "unbalanced bracket expression",
	ErrTrailingBackslash:   "trailing backslash",
	ErrInvalidRange:        "invalid character range",
	ErrInvalidBackref:      "invalid backreference",
	ErrMisplacedQuantifier: "quantifier with no operand",
	ErrNestedQuantifier:    "nested quantifier",
	ErrTooManyGroups:       "too many capturing groups (max 9)",
	ErrProgramTooLarge:     "compiled program exceeds 16-bit displacement range",
	ErrBadEscape:           "bad escape sequence",
}

// CompileError reports a single deterministic compile failure, with
// the byte offset into the pattern where it was detected.
type CompileError struct {
	Kind CompileErrorKind
	Pos  int
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("mooregex: compile error at byte %d: %s", e.Pos, compileErrorText[e.Kind])
}

// MatchResult is the outcome of MatchAt or SearchFrom. Exactly one of
// Matched or Aborted is true when the match fails to be found cleanly;
// both false means an ordinary NoMatch.
type MatchResult struct {
	Matched      bool
	Aborted      bool
	Groups       [maxGroups + 1][2]int // byte offsets; [-1,-1] if unset
	TicksUsed    int
	FailuresUsed int
}
