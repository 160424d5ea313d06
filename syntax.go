// Package mooregex implements a backtracking regular-expression engine
// faithful to the early-1990s LambdaMOO regex dialect: a two-stage
// compile/execute pipeline of a syntax-sensitive compiler producing a
// compact bytecode program, and a backtracking virtual machine that
// walks that program against a subject string.
package mooregex

// SyntaxFlags selects dialect quirks for the compiler. Each flag is an
// independent toggle; presets below bundle the common combinations.
type SyntaxFlags uint16

const (
	// BackslashParens: ( and ) are literal unless backslashed (EMACS).
	// When unset, bare ( and ) group and \( \) are literal.
	BackslashParens SyntaxFlags = 1 << iota
	// BackslashVBar: | is literal unless backslashed.
	BackslashVBar
	// BackslashPlusQM: + and ? are literal unless backslashed (GREP).
	BackslashPlusQM
	// AnsiHex recognizes \n \t \r \xHH etc inside patterns.
	AnsiHex
	// NoBackrefs disables \1...\9 backreferences.
	NoBackrefs
	// NewlineOr treats an unescaped newline in the pattern as a
	// top-level alternation operator.
	NewlineOr
	// CharClassBrackets allows POSIX-style [:alpha:] inside [...].
	CharClassBrackets
	// NoGNUOps disables \w \W \b \B \< \> \` \'.
	NoGNUOps
	// CaseInsensitive folds case during class membership tests and
	// literal comparisons.
	CaseInsensitive
)

// Dialect presets, concrete flag combinations named in the original
// LambdaMOO regex sources.
const (
	EMACS = BackslashParens | BackslashVBar
	AWK   = AnsiHex
	GREP  = BackslashPlusQM | BackslashParens | BackslashVBar | NewlineOr
	EGREP = AnsiHex | NewlineOr
)

// Has reports whether flag is set in f.
func (f SyntaxFlags) Has(flag SyntaxFlags) bool {
	return f&flag != 0
}
