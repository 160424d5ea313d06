package mooregex

import "unicode/utf8"

// Compile parses pattern under profile and emits a bytecode Program,
// or returns a *CompileError.
func Compile(pattern []byte, profile SyntaxFlags) (*Program, error) {
	root, numGroups, err := parsePattern(pattern, profile)
	if err != nil {
		return nil, err
	}
	c := &compiler{profile: profile}
	if err := c.compileNode(root); err != nil {
		return nil, err
	}
	c.code = append(c.code, byte(opEnd))
	if len(c.code) > maxProgramSize {
		return nil, &CompileError{Kind: ErrProgramTooLarge, Pos: len(pattern)}
	}
	prog := &Program{
		Code:          c.code,
		NumGroups:     numGroups,
		Source:        string(pattern),
		Profile:       profile,
		AnchoredAtBOL: firstAtomAnchored(root),
	}
	// Both search hints are derived from the unfolded literal bytes, so
	// they are left unset when case folding lets other bytes match.
	if !profile.Has(CaseInsensitive) {
		prog.Fastmap = computeFastmap(root)
		prog.MustMatchByte = mustMatchByteIn(root)
	}
	return prog, nil
}

// compiler walks a node tree once, emitting bytecode into an
// append-only buffer. Jump targets are unknown until the jumped-to
// region is compiled, so jump sites are recorded and back-patched.
type compiler struct {
	code    []byte
	profile SyntaxFlags
}

func (c *compiler) compileNode(n node) error {
	switch n.kind() {
	case nodeLiteral:
		c.emitChar(n.(*literalNode).r)
	case nodeAnyChar:
		c.code = append(c.code, byte(opAny))
	case nodeClass:
		c.emitClass(n.(*classNode))
	case nodeConcat:
		for _, item := range n.(*concatNode).items {
			if err := c.compileNode(item); err != nil {
				return err
			}
		}
	case nodeAlt:
		return c.compileAlt(n.(*altNode))
	case nodeStar:
		return c.compileStar(n.(*quantNode).body)
	case nodePlus:
		return c.compilePlus(n.(*quantNode).body)
	case nodeQuest:
		return c.compileQuest(n.(*quantNode).body)
	case nodeGroup:
		g := n.(*groupNode)
		c.code = append(c.code, byte(opStartGroup), byte(g.index))
		if err := c.compileNode(g.body); err != nil {
			return err
		}
		c.code = append(c.code, byte(opEndGroup), byte(g.index))
	case nodeBackref:
		c.code = append(c.code, byte(opBackref), byte(n.(*backrefNode).index))
	case nodeBoundary:
		c.code = append(c.code, byte(boundaryOpcode(n.(*boundaryNode).b)))
	case nodeWordChar:
		w := n.(*wordCharNode)
		if w.negate {
			c.code = append(c.code, byte(opNotWordChar))
		} else {
			c.code = append(c.code, byte(opWordChar))
		}
	}
	return nil
}

func boundaryOpcode(b boundaryKind) opcode {
	switch b {
	case boundaryBOL:
		return opBOL
	case boundaryEOL:
		return opEOL
	case boundaryBufBegin:
		return opBufBegin
	case boundaryBufEnd:
		return opBufEnd
	case boundaryWordBound:
		return opWordBound
	case boundaryNotWordBound:
		return opNotWordBound
	case boundaryWordStart:
		return opWordStart
	case boundaryWordEnd:
		return opWordEnd
	}
	panic("mooregex: unhandled boundary kind")
}

// emitChar appends a CHAR instruction for r, case-folded first when
// the active profile is case-insensitive.
func (c *compiler) emitChar(r rune) {
	if c.profile.Has(CaseInsensitive) {
		r = Fold(r)
	}
	var buf [4]byte
	n := utf8.EncodeRune(buf[:], r)
	c.code = append(c.code, byte(opChar), byte(n))
	c.code = append(c.code, buf[:n]...)
}

// emitClass appends a CLASS or CLASS_NEG instruction: the op byte, the
// 32-byte bitmap, an extension-range count byte, then 8 bytes
// (uint32 lo, uint32 hi, little-endian) per extension range.
func (c *compiler) emitClass(n *classNode) {
	op := opClass
	if n.negate {
		op = opClassNeg
	}
	c.code = append(c.code, byte(op))
	c.code = append(c.code, n.class.bitmap[:]...)
	c.code = append(c.code, byte(len(n.class.ext)))
	for _, r := range n.class.ext {
		c.code = append(c.code, encodeUint32(uint32(r.lo))...)
		c.code = append(c.code, encodeUint32(uint32(r.hi))...)
	}
}

func encodeUint32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func decodeUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// emitJumpPlaceholder appends op plus a zero disp16, returning the
// instruction's start offset so the displacement can be patched once
// its target is known.
func (c *compiler) emitJumpPlaceholder(op opcode) int {
	site := len(c.code)
	c.code = append(c.code, byte(op), 0, 0)
	return site
}

// emitJump appends op with a displacement already resolved to target.
func (c *compiler) emitJump(op opcode, target int) {
	site := len(c.code)
	c.code = append(c.code, byte(op), 0, 0)
	c.patchJump(site, target)
}

// patchJump overwrites the disp16 operand at site (the instruction's
// opcode byte offset) so it points at target, measured from the end of
// the 2-byte operand as the data model requires.
func (c *compiler) patchJump(site, target int) {
	disp := int16(target - (site + 3))
	c.code[site+1] = byte(disp)
	c.code[site+2] = byte(disp >> 8)
}

// compileAlt compiles a left-to-right chain of alternatives: every
// branch but the last is guarded by a FAIL_JUMP to the next branch and
// followed by a JUMP to the end; the last branch is compiled bare.
func (c *compiler) compileAlt(a *altNode) error {
	var endSites []int
	for i, branch := range a.branches {
		last := i == len(a.branches)-1
		var failSite int
		if !last {
			failSite = c.emitJumpPlaceholder(opFailJump)
		}
		if err := c.compileNode(branch); err != nil {
			return err
		}
		if !last {
			endSites = append(endSites, c.emitJumpPlaceholder(opJump))
			c.patchJump(failSite, len(c.code))
		}
	}
	end := len(c.code)
	for _, site := range endSites {
		c.patchJump(site, end)
	}
	return nil
}

// compileStar compiles X*. The loop header is a FAIL_JUMP that runs
// fresh on every iteration, each time pushing a new failure frame
// holding the subject position reached so far; STAR_JUMP is a bare
// jump back to that header. A mismatch inside X pops the
// most-recently-pushed frame, so backtracking gives back exactly one
// repetition at a time, most-greedy first.
func (c *compiler) compileStar(body node) error {
	l0 := len(c.code)
	failSite := c.emitJumpPlaceholder(opFailJump)
	if err := c.compileNode(body); err != nil {
		return err
	}
	c.emitJump(opStarJump, l0)
	c.patchJump(failSite, len(c.code))
	return nil
}

// compilePlus compiles X+: X is compiled once and executed
// unconditionally for the mandatory first repetition, then the same
// FAIL_JUMP/STAR_JUMP loop as compileStar jumps back to that same copy
// of X for every further repetition, sharing the atom's bytecode.
func (c *compiler) compilePlus(body node) error {
	xStart := len(c.code)
	if err := c.compileNode(body); err != nil {
		return err
	}
	failSite := c.emitJumpPlaceholder(opFailJump)
	c.emitJump(opStarJump, xStart)
	c.patchJump(failSite, len(c.code))
	return nil
}

// compileQuest compiles X?: a single FAIL_JUMP offers the
// skip-X alternative.
func (c *compiler) compileQuest(body node) error {
	failSite := c.emitJumpPlaceholder(opFailJump)
	if err := c.compileNode(body); err != nil {
		return err
	}
	c.patchJump(failSite, len(c.code))
	return nil
}

// firstAtomAnchored reports whether every path through n begins with
// BOL or BUF_BEGIN, i.e. whether the compiled program can only ever
// match starting right after a newline (or at the buffer start).
func firstAtomAnchored(n node) bool {
	switch n.kind() {
	case nodeBoundary:
		b := n.(*boundaryNode).b
		return b == boundaryBOL || b == boundaryBufBegin
	case nodeConcat:
		items := n.(*concatNode).items
		if len(items) == 0 {
			return false
		}
		return firstAtomAnchored(items[0])
	case nodeGroup:
		return firstAtomAnchored(n.(*groupNode).body)
	case nodeAlt:
		for _, b := range n.(*altNode).branches {
			if !firstAtomAnchored(b) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// computeFastmap conservatively derives the set of bytes that can
// begin a match of n. It returns nil whenever any part of n defeats a
// simple, provably-safe analysis (backreferences, negated classes,
// classes with extension ranges, patterns that can match the empty
// string, etc) — a nil fastmap only disables the unanchored search fast
// path, it never changes matching results.
func computeFastmap(n node) *[256]bool {
	if mayMatchEmpty(n) {
		return nil
	}
	set := &[256]bool{}
	if !collectFirstBytes(n, set) {
		return nil
	}
	return set
}

func collectFirstBytes(n node, set *[256]bool) bool {
	switch n.kind() {
	case nodeLiteral:
		var buf [4]byte
		utf8.EncodeRune(buf[:], n.(*literalNode).r)
		set[buf[0]] = true
		return true
	case nodeAnyChar:
		for b := 0; b < 256; b++ {
			if b != '\n' {
				set[b] = true
			}
		}
		return true
	case nodeClass:
		cn := n.(*classNode)
		if cn.negate || len(cn.class.ext) > 0 {
			return false
		}
		for cp := 0; cp < 256; cp++ {
			if !bitmapTest(&cn.class.bitmap, rune(cp)) {
				continue
			}
			// bitmap bits are codepoints (spec.md §4.3), but Fastmap
			// indexes UTF-8 lead bytes. A codepoint >=128 encodes to a
			// multi-byte lead byte that differs from its own value, so
			// bail conservatively rather than set the wrong bit.
			if cp >= 128 {
				return false
			}
			set[cp] = true
		}
		return true
	case nodeWordChar:
		wc := n.(*wordCharNode)
		word := newWordClass()
		for b := 0; b < 256; b++ {
			isWord := bitmapTest(&word.bitmap, rune(b))
			if isWord != wc.negate {
				set[b] = true
			}
		}
		return true
	case nodeConcat:
		for _, item := range n.(*concatNode).items {
			if !collectFirstBytes(item, set) {
				return false
			}
			if !mayMatchEmpty(item) {
				return true
			}
		}
		return false
	case nodeBoundary:
		// Zero-width: contributes no byte of its own; mayMatchEmpty lets
		// an enclosing concatenation go on to the next item.
		return true
	case nodeGroup:
		return collectFirstBytes(n.(*groupNode).body, set)
	case nodeAlt:
		for _, b := range n.(*altNode).branches {
			if !collectFirstBytes(b, set) {
				return false
			}
		}
		return true
	case nodeStar, nodeQuest, nodePlus:
		return collectFirstBytes(n.(*quantNode).body, set)
	default:
		return false
	}
}

// mayMatchEmpty reports whether n can match the empty string, used by
// collectFirstBytes to decide whether a concatenation's later items
// can still affect the leading-byte set.
func mayMatchEmpty(n node) bool {
	switch n.kind() {
	case nodeStar, nodeQuest, nodeBoundary:
		return true
	case nodePlus:
		return mayMatchEmpty(n.(*quantNode).body)
	case nodeGroup:
		return mayMatchEmpty(n.(*groupNode).body)
	case nodeConcat:
		for _, item := range n.(*concatNode).items {
			if !mayMatchEmpty(item) {
				return false
			}
		}
		return true
	case nodeAlt:
		for _, b := range n.(*altNode).branches {
			if mayMatchEmpty(b) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// mustMatchByteIn finds a single byte guaranteed to occur in any
// successful match, trusting only the mandatory spine of concat,
// group, and + nodes; it bails (nil) through alternation, `*`/`?`, and
// anything else whose presence in the match is conditional.
func mustMatchByteIn(n node) *byte {
	switch n.kind() {
	case nodeLiteral:
		var buf [4]byte
		utf8.EncodeRune(buf[:], n.(*literalNode).r)
		b := buf[0]
		return &b
	case nodeConcat:
		for _, item := range n.(*concatNode).items {
			if b := mustMatchByteIn(item); b != nil {
				return b
			}
		}
		return nil
	case nodeGroup:
		return mustMatchByteIn(n.(*groupNode).body)
	case nodePlus:
		return mustMatchByteIn(n.(*quantNode).body)
	default:
		return nil
	}
}
