package mooregex

import (
	"sort"
	"unicode/utf8"
)

// parser turns pattern bytes into a node tree, under the control of a
// SyntaxFlags profile. It is a single left-to-right recursive-descent
// pass; the byte position it stops at, on success, is len(pat).
type parser struct {
	pat       []byte
	pos       int
	profile   SyntaxFlags
	numGroups int
}

// parsePattern parses pat under profile, returning the root node and
// the number of capturing groups seen.
func parsePattern(pat []byte, profile SyntaxFlags) (node, int, error) {
	p := &parser{pat: pat, profile: profile}
	root, err := p.parseAlt()
	if err != nil {
		return nil, 0, err
	}
	if p.pos < len(p.pat) {
		// Only reachable via a stray, unmatched group-close token.
		return nil, 0, &CompileError{Kind: ErrUnbalancedGroup, Pos: p.pos}
	}
	return root, p.numGroups, nil
}

func (p *parser) atEOF() bool { return p.pos >= len(p.pat) }

func (p *parser) byteAt(off int) (byte, bool) {
	if p.pos+off >= len(p.pat) {
		return 0, false
	}
	return p.pat[p.pos+off], true
}

// atAltSeparator reports whether the parser sits at an alternation
// separator under the active profile: bare '|' unless BackslashVBar is
// set (then "\|"), or a bare newline when NewlineOr is set.
func (p *parser) atAltSeparator() bool {
	if p.atEOF() {
		return false
	}
	if p.profile.Has(NewlineOr) && p.pat[p.pos] == '\n' {
		return true
	}
	if p.profile.Has(BackslashVBar) {
		b0, ok0 := p.byteAt(0)
		b1, ok1 := p.byteAt(1)
		return ok0 && ok1 && b0 == '\\' && b1 == '|'
	}
	return p.pat[p.pos] == '|'
}

func (p *parser) consumeAltSeparator() {
	if p.profile.Has(NewlineOr) && !p.atEOF() && p.pat[p.pos] == '\n' {
		p.pos++
		return
	}
	if p.profile.Has(BackslashVBar) {
		p.pos += 2
		return
	}
	p.pos++
}

// atGroupOpen/atGroupClose report whether the parser sits at a
// group-delimiter token under the active profile: bare ( ) unless
// BackslashParens is set (then \( \)).
func (p *parser) atGroupOpen() bool  { return p.atGroupDelim('(') }
func (p *parser) atGroupClose() bool { return p.atGroupDelim(')') }

func (p *parser) atGroupDelim(c byte) bool {
	if p.profile.Has(BackslashParens) {
		b0, ok0 := p.byteAt(0)
		b1, ok1 := p.byteAt(1)
		return ok0 && ok1 && b0 == '\\' && b1 == c
	}
	b0, ok0 := p.byteAt(0)
	return ok0 && b0 == c
}

func (p *parser) consumeGroupDelim() {
	if p.profile.Has(BackslashParens) {
		p.pos += 2
		return
	}
	p.pos++
}

// parseAlt parses a left-to-right chain of '|'-separated alternatives.
func (p *parser) parseAlt() (node, error) {
	branches := []node{}
	first, err := p.parseConcat(true)
	if err != nil {
		return nil, err
	}
	branches = append(branches, first)
	for p.atAltSeparator() {
		p.consumeAltSeparator()
		next, err := p.parseConcat(true)
		if err != nil {
			return nil, err
		}
		branches = append(branches, next)
	}
	if len(branches) == 1 {
		return branches[0], nil
	}
	return &altNode{branches: branches}, nil
}

// parseConcat parses a sequence of terms up to the next alternation
// separator, group close, or end of pattern. atStart marks the very
// first term of this concatenation, the position where a bare '^' is
// eligible to mean BOL.
func (p *parser) parseConcat(atStart bool) (node, error) {
	items := []node{}
	for !p.atEOF() && !p.atAltSeparator() && !p.atGroupClose() {
		item, err := p.parseTerm(atStart)
		if err != nil {
			return nil, err
		}
		atStart = false
		items = append(items, item)
	}
	switch len(items) {
	case 0:
		return &concatNode{}, nil
	case 1:
		return items[0], nil
	default:
		return &concatNode{items: items}, nil
	}
}

// parseTerm parses one atom followed by at most one quantifier.
func (p *parser) parseTerm(atStart bool) (node, error) {
	startPos := p.pos
	atom, err := p.parseAtom(atStart)
	if err != nil {
		return nil, err
	}
	op, matched := p.tryConsumeQuantifierOp()
	if !matched {
		return atom, nil
	}
	if isZeroWidth(atom) {
		return nil, &CompileError{Kind: ErrMisplacedQuantifier, Pos: startPos}
	}
	quant := &quantNode{body: atom, op: op}
	if _, again := p.tryConsumeQuantifierOp(); again {
		return nil, &CompileError{Kind: ErrNestedQuantifier, Pos: startPos}
	}
	return quant, nil
}

// tryConsumeQuantifierOp consumes a trailing *, +, or ? under the
// active profile, returning the node kind it denotes. '*' is always
// special; '+' and '?' require a backslash when BackslashPlusQM is set.
func (p *parser) tryConsumeQuantifierOp() (nodeType, bool) {
	if p.atEOF() {
		return 0, false
	}
	if p.pat[p.pos] == '*' {
		p.pos++
		return nodeStar, true
	}
	if !p.profile.Has(BackslashPlusQM) {
		switch p.pat[p.pos] {
		case '+':
			p.pos++
			return nodePlus, true
		case '?':
			p.pos++
			return nodeQuest, true
		}
		return 0, false
	}
	b0, ok0 := p.byteAt(0)
	b1, ok1 := p.byteAt(1)
	if ok0 && ok1 && b0 == '\\' {
		switch b1 {
		case '+':
			p.pos += 2
			return nodePlus, true
		case '?':
			p.pos += 2
			return nodeQuest, true
		}
	}
	return 0, false
}

// parseAtom parses one atom: a literal, ., a class, a group, an
// escape, or a boundary assertion. atStart tells it whether a bare '^'
// here should be read as BOL.
func (p *parser) parseAtom(atStart bool) (node, error) {
	if p.atGroupOpen() {
		return p.parseGroup()
	}
	c := p.pat[p.pos]
	switch c {
	case '*':
		return nil, &CompileError{Kind: ErrMisplacedQuantifier, Pos: p.pos}
	case '+', '?':
		// Under BackslashPlusQM (GREP), a bare + or ? is literal; only
		// the backslashed form is the quantifier, so it never reaches
		// here unescaped. Fall through to the literal path below.
		if !p.profile.Has(BackslashPlusQM) {
			return nil, &CompileError{Kind: ErrMisplacedQuantifier, Pos: p.pos}
		}
	case '.':
		p.pos++
		return &anyCharNode{}, nil
	case '[':
		return p.parseClass()
	case '\\':
		return p.parseEscape()
	case '^':
		if atStart {
			p.pos++
			return &boundaryNode{b: boundaryBOL}, nil
		}
	case '$':
		p.pos++
		if p.atEOF() || p.atAltSeparator() || p.atGroupClose() {
			return &boundaryNode{b: boundaryEOL}, nil
		}
		return &literalNode{r: '$'}, nil
	}
	r, size := utf8.DecodeRune(p.pat[p.pos:])
	p.pos += size
	return &literalNode{r: r}, nil
}

// parseGroup parses a capturing group. The opening delimiter has not
// yet been consumed.
func (p *parser) parseGroup() (node, error) {
	openPos := p.pos
	if p.numGroups >= maxGroups {
		return nil, &CompileError{Kind: ErrTooManyGroups, Pos: openPos}
	}
	p.consumeGroupDelim()
	p.numGroups++
	idx := p.numGroups
	body, err := p.parseAlt()
	if err != nil {
		return nil, err
	}
	if !p.atGroupClose() {
		return nil, &CompileError{Kind: ErrUnbalancedGroup, Pos: openPos}
	}
	p.consumeGroupDelim()
	return &groupNode{index: idx, body: body}, nil
}

// parseEscape parses a backslash escape. p.pos is at the backslash.
func (p *parser) parseEscape() (node, error) {
	backslashPos := p.pos
	p.pos++
	if p.atEOF() {
		return nil, &CompileError{Kind: ErrTrailingBackslash, Pos: backslashPos}
	}
	c := p.pat[p.pos]

	if c >= '1' && c <= '9' {
		if p.profile.Has(NoBackrefs) {
			p.pos++
			return &literalNode{r: rune(c)}, nil
		}
		idx := int(c - '0')
		if idx > p.numGroups {
			return nil, &CompileError{Kind: ErrInvalidBackref, Pos: backslashPos}
		}
		p.pos++
		return &backrefNode{index: idx}, nil
	}

	if !p.profile.Has(NoGNUOps) {
		switch c {
		case 'w':
			p.pos++
			return &wordCharNode{negate: false}, nil
		case 'W':
			p.pos++
			return &wordCharNode{negate: true}, nil
		case 'd':
			p.pos++
			return &classNode{class: newDigitClass(), negate: false}, nil
		case 'D':
			p.pos++
			return &classNode{class: newDigitClass(), negate: true}, nil
		case 's':
			p.pos++
			return &classNode{class: newSpaceClass(), negate: false}, nil
		case 'S':
			p.pos++
			return &classNode{class: newSpaceClass(), negate: true}, nil
		case 'b':
			p.pos++
			return &boundaryNode{b: boundaryWordBound}, nil
		case 'B':
			p.pos++
			return &boundaryNode{b: boundaryNotWordBound}, nil
		case '<':
			p.pos++
			return &boundaryNode{b: boundaryWordStart}, nil
		case '>':
			p.pos++
			return &boundaryNode{b: boundaryWordEnd}, nil
		case '`':
			p.pos++
			return &boundaryNode{b: boundaryBufBegin}, nil
		case '\'':
			p.pos++
			return &boundaryNode{b: boundaryBufEnd}, nil
		}
	}

	if p.profile.Has(AnsiHex) {
		switch c {
		case 'n':
			p.pos++
			return &literalNode{r: '\n'}, nil
		case 't':
			p.pos++
			return &literalNode{r: '\t'}, nil
		case 'r':
			p.pos++
			return &literalNode{r: '\r'}, nil
		case 'f':
			p.pos++
			return &literalNode{r: '\f'}, nil
		case 'v':
			p.pos++
			return &literalNode{r: '\v'}, nil
		case 'a':
			p.pos++
			return &literalNode{r: '\a'}, nil
		case 'x':
			v, err := p.parseHexEscape(backslashPos)
			if err != nil {
				return nil, err
			}
			return &literalNode{r: v}, nil
		}
	}

	// Anything else, including the meta-characters . * + ? | ( ) [ ] ^ $
	// and \\ itself, escapes to its literal codepoint.
	r, size := utf8.DecodeRune(p.pat[p.pos:])
	p.pos += size
	return &literalNode{r: r}, nil
}

func hexDigitValue(b byte) (int, bool) {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0'), true
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10, true
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10, true
	default:
		return 0, false
	}
}

func (p *parser) parseHexEscape(backslashPos int) (rune, error) {
	p.pos++ // skip 'x'
	d0, ok0 := p.byteAt(0)
	d1, ok1 := p.byteAt(1)
	if !ok0 || !ok1 {
		return 0, &CompileError{Kind: ErrBadEscape, Pos: backslashPos}
	}
	v0, valid0 := hexDigitValue(d0)
	v1, valid1 := hexDigitValue(d1)
	if !valid0 || !valid1 {
		return 0, &CompileError{Kind: ErrBadEscape, Pos: backslashPos}
	}
	p.pos += 2
	return rune(v0*16 + v1), nil
}

// parseClass parses a bracket expression: '[' has not yet been consumed.
func (p *parser) parseClass() (node, error) {
	openPos := p.pos
	p.pos++ // skip '['
	negate := false
	if !p.atEOF() && p.pat[p.pos] == '^' {
		negate = true
		p.pos++
	}
	class := &charClass{}
	first := true
	for {
		if p.atEOF() {
			return nil, &CompileError{Kind: ErrUnbalancedBracket, Pos: openPos}
		}
		if p.pat[p.pos] == ']' && !first {
			p.pos++
			break
		}
		first = false

		if p.profile.Has(CharClassBrackets) && p.pat[p.pos] == '[' {
			if b1, ok := p.byteAt(1); ok && b1 == ':' {
				name, ok := p.tryParsePosixClassName()
				if ok {
					posix := posixClass(name)
					if posix == nil {
						return nil, &CompileError{Kind: ErrBadEscape, Pos: p.pos}
					}
					class.bitmap = orBitmap(class.bitmap, posix.bitmap)
					continue
				}
			}
		}

		lo, loPos, err := p.parseClassAtom(openPos)
		if err != nil {
			return nil, err
		}
		if b0, ok := p.byteAt(0); ok && b0 == '-' {
			if b1, ok1 := p.byteAt(1); ok1 && b1 != ']' {
				p.pos++ // skip '-'
				hi, _, err := p.parseClassAtom(openPos)
				if err != nil {
					return nil, err
				}
				if hi < lo {
					return nil, &CompileError{Kind: ErrInvalidRange, Pos: loPos}
				}
				class.setRange(lo, hi)
				continue
			}
		}
		if lo < 256 {
			class.setByte(byte(lo))
		} else {
			class.ext = append(class.ext, runeRange{lo: lo, hi: lo})
		}
	}
	sort.Slice(class.ext, func(i, j int) bool { return class.ext[i].lo < class.ext[j].lo })
	return &classNode{class: class, negate: negate}, nil
}

// parseClassAtom parses one character inside a bracket expression,
// respecting ANSI_HEX for backslash escapes.
func (p *parser) parseClassAtom(openPos int) (rune, int, error) {
	pos := p.pos
	if p.pat[p.pos] == '\\' {
		if _, ok := p.byteAt(1); !ok {
			return 0, pos, &CompileError{Kind: ErrTrailingBackslash, Pos: pos}
		}
		if p.profile.Has(AnsiHex) {
			esc := p.pat[p.pos+1]
			switch esc {
			case 'n':
				p.pos += 2
				return '\n', pos, nil
			case 't':
				p.pos += 2
				return '\t', pos, nil
			case 'r':
				p.pos += 2
				return '\r', pos, nil
			case 'x':
				p.pos++ // skip backslash, leaving pos at 'x'
				r, err := p.parseHexEscape(pos)
				if err != nil {
					return 0, pos, err
				}
				return r, pos, nil
			}
		}
		p.pos++
		r, size := utf8.DecodeRune(p.pat[p.pos:])
		p.pos += size
		return r, pos, nil
	}
	r, size := utf8.DecodeRune(p.pat[p.pos:])
	p.pos += size
	return r, pos, nil
}

// tryParsePosixClassName parses "[:name:]" at the current position,
// consuming it on success. p.pos must be at the leading '['.
func (p *parser) tryParsePosixClassName() (string, bool) {
	save := p.pos
	p.pos += 2 // "[:"
	start := p.pos
	for !p.atEOF() && p.pat[p.pos] != ':' {
		p.pos++
	}
	if p.atEOF() {
		p.pos = save
		return "", false
	}
	name := string(p.pat[start:p.pos])
	if b1, ok := p.byteAt(1); !ok || p.pat[p.pos] != ':' || b1 != ']' {
		p.pos = save
		return "", false
	}
	p.pos += 2 // ":]"
	return name, true
}

func orBitmap(a, b [32]byte) [32]byte {
	for i := range a {
		a[i] |= b[i]
	}
	return a
}
