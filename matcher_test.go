package mooregex

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/assert"
)

func unsetGroup() [2]int { return [2]int{-1, -1} }

func mustCompile(t *testing.T, pattern string, profile SyntaxFlags) *Program {
	t.Helper()
	prog, err := Compile([]byte(pattern), profile)
	if err != nil {
		t.Fatalf("Compile(%q): %v", pattern, err)
	}
	return prog
}

// Concrete scenarios from the engine's test matrix: one table entry
// per documented (pattern, subject, syntax) -> expected-span case.
func TestSearchFromScenarios(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		profile SyntaxFlags
		subject string
		want    [2]int
		group1  [2]int
	}{
		{
			name:    "greedy any star",
			pattern: "hello.*world",
			profile: EMACS,
			subject: "hello beautiful world",
			want:    [2]int{0, 21},
			group1:  unsetGroup(),
		},
		{
			name:    "awk alternation plus",
			pattern: "(foo|bar)+",
			profile: AWK,
			subject: "foobar",
			want:    [2]int{0, 6},
			group1:  [2]int{3, 6},
		},
		{
			name:    "word and digit groups",
			pattern: `(\w+)\s+(\d+)`,
			profile: AWK,
			subject: "hello 123",
			want:    [2]int{0, 9},
			group1:  [2]int{0, 5},
		},
		{
			name:    "backreference",
			pattern: `\(.\)\1`,
			profile: EMACS,
			subject: "abba",
			want:    [2]int{1, 3},
			group1:  [2]int{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := mustCompile(t, tt.pattern, tt.profile)
			res := SearchFrom(prog, []byte(tt.subject), 0, Limits{})
			if !res.Matched {
				t.Fatalf("SearchFrom(%q, %q): want Match, got %+v\n%s", tt.pattern, tt.subject, res, prog.Disassemble())
			}
			if diff := cmp.Diff(tt.want, res.Groups[0]); diff != "" {
				t.Errorf("group 0 span (-want +got):\n%s", diff)
			}
			if tt.group1 != unsetGroup() || res.Groups[1] != unsetGroup() {
				if diff := cmp.Diff(tt.group1, res.Groups[1]); diff != "" {
					t.Errorf("group 1 span (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestMultilineBOLEOL(t *testing.T) {
	prog := mustCompile(t, "^abc$", EMACS)
	res := SearchFrom(prog, []byte("abc\ndef"), 0, Limits{})
	require.True(t, res.Matched)
	assert.Equal(t, res.Groups[0], [2]int{0, 3})
}

// a*a*a*a*b against a run of 'a's with no trailing 'b' forces the VM
// to explore every way of splitting the run across the four stars
// before concluding NoMatch; under a tight tick budget it must never
// reach that conclusion, only Abort.
func TestCatastrophicBacktrackingAbortsUnderBudget(t *testing.T) {
	prog := mustCompile(t, "a*a*a*a*b", EMACS)
	res := MatchAt(prog, []byte("aaaaaaaaaaaaaaaaaaaa!"), 0, Limits{MaxTicks: 10_000})
	if res.Matched {
		t.Fatalf("expected Aborted under a tight tick budget, got Match: %+v", res)
	}
	require.True(t, res.Aborted)
}

func TestDialectLawEmacsVsAwkAlternation(t *testing.T) {
	emacs := mustCompile(t, `\(a\|b\)`, EMACS)
	res := MatchAt(emacs, []byte("a"), 0, Limits{})
	require.True(t, res.Matched)

	awk := mustCompile(t, "(a|b)", AWK)
	res = MatchAt(awk, []byte("a"), 0, Limits{})
	require.True(t, res.Matched)
}

func TestDialectLawGrepVsEgrepPlus(t *testing.T) {
	grep := mustCompile(t, `a\+`, GREP)
	res := MatchAt(grep, []byte("aa"), 0, Limits{})
	require.True(t, res.Matched)
	assert.Equal(t, res.Groups[0], [2]int{0, 2})

	egrep := mustCompile(t, "a+", EGREP)
	res = MatchAt(egrep, []byte("aa"), 0, Limits{})
	require.True(t, res.Matched)
	assert.Equal(t, res.Groups[0], [2]int{0, 2})
}

// Alternation under capture: a failed left branch must not leak its
// capture offsets into the surviving right branch. This is the subtle
// correctness hazard the capture-snapshot design note calls out.
func TestCaptureSnapshotAcrossAlternation(t *testing.T) {
	prog := mustCompile(t, "(ab)c|(de)f", AWK)
	res := MatchAt(prog, []byte("def"), 0, Limits{})
	require.True(t, res.Matched)
	assert.Equal(t, res.Groups[1], unsetGroup())
	assert.Equal(t, res.Groups[2], [2]int{0, 2})
}

// Every FAIL_JUMP site snapshots the full capture arrays before the
// branch it guards runs, so backtracking out of a branch that opened
// and closed a group restores that group to whatever it held before
// the branch was tried — here, unset. A trailing backreference to that
// group then correctly sees it as never set, rather than leaking the
// failed branch's captured span.
func TestBackrefDoesNotLeakCaptureFromBacktrackedBranch(t *testing.T) {
	prog := mustCompile(t, `(a)?\1`, AWK)
	res := MatchAt(prog, []byte("a"), 0, Limits{})
	require.False(t, res.Matched)
}

func TestBackrefUnsetGroupFails(t *testing.T) {
	prog := mustCompile(t, `(a)?b\1`, AWK)
	res := MatchAt(prog, []byte("bc"), 0, Limits{})
	require.False(t, res.Matched)
	require.False(t, res.Aborted)
}

func TestWordBoundary(t *testing.T) {
	prog := mustCompile(t, `\bcat\b`, AWK)
	res := SearchFrom(prog, []byte("the cat sat"), 0, Limits{})
	require.True(t, res.Matched)
	assert.Equal(t, res.Groups[0], [2]int{4, 7})

	res = SearchFrom(prog, []byte("concatenate"), 0, Limits{})
	require.False(t, res.Matched)
}

func TestWordStartEnd(t *testing.T) {
	prog := mustCompile(t, `\<cat\>`, AWK)
	res := SearchFrom(prog, []byte("a cat nap"), 0, Limits{})
	require.True(t, res.Matched)
	assert.Equal(t, res.Groups[0], [2]int{2, 5})
}

func TestAnyDoesNotMatchNewline(t *testing.T) {
	prog := mustCompile(t, "a.c", AWK)
	res := MatchAt(prog, []byte("a\nc"), 0, Limits{})
	require.False(t, res.Matched)
}

func TestNegatedClass(t *testing.T) {
	prog := mustCompile(t, "[^0-9]+", AWK)
	res := SearchFrom(prog, []byte("42abc99"), 0, Limits{})
	require.True(t, res.Matched)
	assert.Equal(t, res.Groups[0], [2]int{2, 5})
}

func TestCaseInsensitiveLiteralAndClass(t *testing.T) {
	prog := mustCompile(t, "[a-z]+", AWK|CaseInsensitive)
	res := MatchAt(prog, []byte("ABC"), 0, Limits{})
	require.True(t, res.Matched)
	assert.Equal(t, res.Groups[0], [2]int{0, 3})
}

func TestSearchFromUnanchoredFindsEarliestStart(t *testing.T) {
	prog := mustCompile(t, "ab", AWK)
	subject := []byte("xxabxxab")
	res := SearchFrom(prog, subject, 0, Limits{})
	require.True(t, res.Matched)
	start := res.Groups[0][0]
	for i := 0; i < start; i++ {
		if MatchAt(prog, subject, i, Limits{}).Matched {
			t.Fatalf("MatchAt succeeded at earlier offset %d than SearchFrom reported (%d)", i, start)
		}
	}
	require.True(t, MatchAt(prog, subject, start, Limits{}).Matched)
}

func TestAnchoredAtBOLNeverMatchesMidLine(t *testing.T) {
	prog := mustCompile(t, "^abc", AWK)
	res := SearchFrom(prog, []byte("xx\nabc"), 0, Limits{})
	require.True(t, res.Matched)
	assert.Equal(t, res.Groups[0], [2]int{3, 6})

	res = SearchFrom(prog, []byte("xxabc"), 0, Limits{})
	require.False(t, res.Matched)
}

func TestFailureBudgetAborts(t *testing.T) {
	prog := mustCompile(t, "(a|aa)*b", AWK)
	res := MatchAt(prog, []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaac"), 0, Limits{MaxFailures: 5})
	require.True(t, res.Aborted)
	require.False(t, res.Matched)
}

func TestTickBudgetAborts(t *testing.T) {
	prog := mustCompile(t, "(a|aa)*b", AWK)
	res := MatchAt(prog, []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaac"), 0, Limits{MaxTicks: 5})
	require.True(t, res.Aborted)
	require.False(t, res.Matched)
}

func TestInvalidUTF8SubjectDoesNotPanic(t *testing.T) {
	prog := mustCompile(t, ".+", AWK)
	subject := []byte{'a', 0xff, 0xfe, 'b'}
	res := MatchAt(prog, subject, 0, Limits{})
	require.True(t, res.Matched)
}

func TestMustMatchByteShortCircuitsSearch(t *testing.T) {
	prog := mustCompile(t, "xyz", AWK)
	require.NotNil(t, prog.MustMatchByte)
	res := SearchFrom(prog, []byte("no such byte here"), 0, Limits{})
	require.False(t, res.Matched)
	require.False(t, res.Aborted)
}

func TestPosixBracketClass(t *testing.T) {
	prog := mustCompile(t, "[[:digit:]]+", AWK|CharClassBrackets)
	res := SearchFrom(prog, []byte("ab123cd"), 0, Limits{})
	require.True(t, res.Matched)
	assert.Equal(t, res.Groups[0], [2]int{2, 5})
}

func TestBuiltinDigitAndSpaceClasses(t *testing.T) {
	prog := mustCompile(t, `\d\D`, AWK)
	res := MatchAt(prog, []byte("5x"), 0, Limits{})
	require.True(t, res.Matched)

	prog = mustCompile(t, `\s\S`, AWK)
	res = MatchAt(prog, []byte(" x"), 0, Limits{})
	require.True(t, res.Matched)
}

func TestGroupsNeverExecutedAreUnset(t *testing.T) {
	prog := mustCompile(t, "(a)|(b)", AWK)
	res := MatchAt(prog, []byte("a"), 0, Limits{})
	require.True(t, res.Matched)
	assert.Equal(t, res.Groups[1], [2]int{0, 1})
	assert.Equal(t, res.Groups[2], unsetGroup())
}
