package mooregex

import "unicode/utf8"

// MatchAt tests whether prog matches subject starting exactly at
// offset, consuming its own fresh tick/failure budget from limits.
func MatchAt(prog *Program, subject []byte, offset int, limits Limits) MatchResult {
	c := &counters{limits: limits}
	return runMatch(prog, subject, offset, c)
}

// SearchFrom finds the earliest match at or after offset, trying
// successive starting positions. The tick/failure budget in limits is
// shared across every position attempted, so a pathological subject
// cannot defeat the budget by spreading cost across many starts.
func SearchFrom(prog *Program, subject []byte, offset int, limits Limits) MatchResult {
	c := &counters{limits: limits}
	if prog.MustMatchByte != nil && !containsByte(subject[min(offset, len(subject)):], *prog.MustMatchByte) {
		return MatchResult{Groups: newUnsetGroups()}
	}
	sp := offset
	for sp <= len(subject) {
		if !prog.AnchoredAtBOL && prog.Fastmap != nil {
			for sp < len(subject) && !prog.Fastmap[subject[sp]] {
				sp++
			}
		}
		if sp > len(subject) {
			break
		}
		res := runMatch(prog, subject, sp, c)
		if res.Matched || res.Aborted {
			return res
		}
		if sp >= len(subject) {
			break
		}
		_, size, ok := decodeRuneAt(subject, sp)
		if !ok {
			break
		}
		sp += size
	}
	return MatchResult{Groups: newUnsetGroups(), TicksUsed: c.ticks, FailuresUsed: c.failures}
}

func containsByte(s []byte, b byte) bool {
	for _, x := range s {
		if x == b {
			return true
		}
	}
	return false
}

// frame is one entry of the failure stack: the resume point and a full
// snapshot of the capture arrays at the time it was pushed, so popping
// it restores exactly the state a failed branch saw on entry.
type frame struct {
	ip, sp     int
	groupStart [maxGroups + 1]int
	groupEnd   [maxGroups + 1]int
}

// vm holds the mutable state of one execution of a program against one
// subject at one starting offset.
type vm struct {
	prog       *Program
	subject    []byte
	groupStart [maxGroups + 1]int
	groupEnd   [maxGroups + 1]int
	stack      []frame
	c          *counters
}

func newUnsetGroups() [maxGroups + 1][2]int {
	var g [maxGroups + 1][2]int
	for i := range g {
		g[i] = [2]int{-1, -1}
	}
	return g
}

func snapshotGroups(gs, ge [maxGroups + 1]int) [maxGroups + 1][2]int {
	var g [maxGroups + 1][2]int
	for i := range g {
		g[i] = [2]int{gs[i], ge[i]}
	}
	return g
}

func (m *vm) pushFrame(targetIP, targetSP int) {
	m.stack = append(m.stack, frame{
		ip:         targetIP,
		sp:         targetSP,
		groupStart: m.groupStart,
		groupEnd:   m.groupEnd,
	})
}

// onMismatch is called whenever the current opcode fails to hold. It
// pops the most recent failure frame and restores ip/sp/captures
// through the pointers, or returns a final result if there is nothing
// left to retry (NoMatch) or the failure budget is exhausted (Aborted).
func (m *vm) onMismatch(ip, sp *int) *MatchResult {
	if len(m.stack) == 0 {
		res := MatchResult{Groups: newUnsetGroups(), TicksUsed: m.c.ticks, FailuresUsed: m.c.failures}
		return &res
	}
	if m.c.fail() {
		res := MatchResult{Aborted: true, Groups: newUnsetGroups(), TicksUsed: m.c.ticks, FailuresUsed: m.c.failures}
		return &res
	}
	f := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	*ip, *sp = f.ip, f.sp
	m.groupStart, m.groupEnd = f.groupStart, f.groupEnd
	return nil
}

// runMatch is the main dispatch loop: one opcode per tick, either
// advancing ip/sp, succeeding at END, or failing back into the
// failure stack via onMismatch.
func runMatch(prog *Program, subject []byte, offset int, c *counters) MatchResult {
	m := &vm{prog: prog, subject: subject, c: c}
	for i := range m.groupStart {
		m.groupStart[i] = -1
		m.groupEnd[i] = -1
	}
	m.groupStart[0] = offset
	ip, sp := 0, offset
	code := prog.Code
	caseInsensitive := prog.Profile.Has(CaseInsensitive)

	for {
		if m.c.tick() {
			return MatchResult{Aborted: true, Groups: newUnsetGroups(), TicksUsed: m.c.ticks, FailuresUsed: m.c.failures}
		}
		op := opcode(code[ip])
		switch op {
		case opEnd:
			m.groupEnd[0] = sp
			return MatchResult{Matched: true, Groups: snapshotGroups(m.groupStart, m.groupEnd), TicksUsed: m.c.ticks, FailuresUsed: m.c.failures}

		case opBOL:
			if sp == 0 || subject[sp-1] == '\n' {
				ip++
			} else if res := m.onMismatch(&ip, &sp); res != nil {
				return *res
			}

		case opEOL:
			if sp == len(subject) || subject[sp] == '\n' {
				ip++
			} else if res := m.onMismatch(&ip, &sp); res != nil {
				return *res
			}

		case opBufBegin:
			if sp == 0 {
				ip++
			} else if res := m.onMismatch(&ip, &sp); res != nil {
				return *res
			}

		case opBufEnd:
			if sp == len(subject) {
				ip++
			} else if res := m.onMismatch(&ip, &sp); res != nil {
				return *res
			}

		case opAny:
			r, size, ok := decodeRuneAt(subject, sp)
			if ok && r != '\n' {
				sp += size
				ip++
			} else if res := m.onMismatch(&ip, &sp); res != nil {
				return *res
			}

		case opChar:
			n := int(code[ip+1])
			want := code[ip+2 : ip+2+n]
			if sp+n <= len(subject) && charBytesEqual(subject[sp:sp+n], want, caseInsensitive) {
				sp += n
				ip += 2 + n
			} else if res := m.onMismatch(&ip, &sp); res != nil {
				return *res
			}

		case opClass, opClassNeg:
			bitmap := code[ip+1 : ip+33]
			extCount := int(code[ip+33])
			extBytes := code[ip+34 : ip+34+extCount*8]
			instrLen := 34 + extCount*8
			r, size, ok := decodeRuneAt(subject, sp)
			matched := false
			if ok {
				matched = classBytesContainsFold(bitmap, extBytes, extCount, r, caseInsensitive)
				if op == opClassNeg {
					matched = !matched
				}
			}
			if matched {
				sp += size
				ip += instrLen
			} else if res := m.onMismatch(&ip, &sp); res != nil {
				return *res
			}

		case opJump, opStarJump:
			disp := readDisp16(code, ip+1)
			ip = ip + 3 + int(disp)

		case opFailJump:
			disp := readDisp16(code, ip+1)
			target := ip + 3 + int(disp)
			m.pushFrame(target, sp)
			ip += 3

		case opStartGroup:
			idx := int(code[ip+1])
			m.groupStart[idx] = sp
			ip += 2

		case opEndGroup:
			idx := int(code[ip+1])
			m.groupEnd[idx] = sp
			ip += 2

		case opBackref:
			idx := int(code[ip+1])
			gs, ge := m.groupStart[idx], m.groupEnd[idx]
			ok := false
			if gs >= 0 && ge >= 0 {
				n := ge - gs
				if sp+n <= len(subject) && charBytesEqual(subject[sp:sp+n], subject[gs:ge], caseInsensitive) {
					sp += n
					ip += 2
					ok = true
				}
			}
			if !ok {
				if res := m.onMismatch(&ip, &sp); res != nil {
					return *res
				}
			}

		case opWordBound:
			if m.wordBefore(sp) != m.wordAfter(sp) {
				ip++
			} else if res := m.onMismatch(&ip, &sp); res != nil {
				return *res
			}

		case opNotWordBound:
			if m.wordBefore(sp) == m.wordAfter(sp) {
				ip++
			} else if res := m.onMismatch(&ip, &sp); res != nil {
				return *res
			}

		case opWordStart:
			if !m.wordBefore(sp) && m.wordAfter(sp) {
				ip++
			} else if res := m.onMismatch(&ip, &sp); res != nil {
				return *res
			}

		case opWordEnd:
			if m.wordBefore(sp) && !m.wordAfter(sp) {
				ip++
			} else if res := m.onMismatch(&ip, &sp); res != nil {
				return *res
			}

		case opWordChar, opNotWordChar:
			r, size, ok := decodeRuneAt(subject, sp)
			matched := ok && IsWordChar(r)
			if op == opNotWordChar {
				matched = ok && !IsWordChar(r)
			}
			if matched {
				sp += size
				ip++
			} else if res := m.onMismatch(&ip, &sp); res != nil {
				return *res
			}
		}
	}
}

func (m *vm) wordBefore(sp int) bool {
	if sp <= 0 {
		return false
	}
	r, _ := utf8.DecodeLastRune(m.subject[:sp])
	return IsWordChar(r)
}

func (m *vm) wordAfter(sp int) bool {
	r, _, ok := decodeRuneAt(m.subject, sp)
	return ok && IsWordChar(r)
}

// decodeRuneAt decodes the codepoint starting at sp, reporting false
// only when sp is at or past the end of subject. Ill-formed UTF-8
// decodes as utf8.RuneError with size 1, matching the permissive,
// total behavior the byte-oriented original engine relies on.
func decodeRuneAt(subject []byte, sp int) (rune, int, bool) {
	if sp >= len(subject) {
		return 0, 0, false
	}
	r, size := utf8.DecodeRune(subject[sp:])
	return r, size, true
}

// charBytesEqual compares two equal-length byte slices, case-folding
// each byte first when ci is set.
func charBytesEqual(a, b []byte, ci bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if ci {
			x, y = foldByte(x), foldByte(y)
		}
		if x != y {
			return false
		}
	}
	return true
}

// classBytesContainsFold tests codepoint membership directly against
// a serialized CLASS operand (32-byte bitmap + extension ranges),
// without reconstructing a charClass value.
func classBytesContainsFold(bitmap, extBytes []byte, extCount int, cp rune, caseInsensitive bool) bool {
	if classBytesContains(bitmap, extBytes, extCount, cp) {
		return true
	}
	if !caseInsensitive {
		return false
	}
	folded := Fold(cp)
	if folded != cp && classBytesContains(bitmap, extBytes, extCount, folded) {
		return true
	}
	if cp >= 'a' && cp <= 'z' && classBytesContains(bitmap, extBytes, extCount, cp-('a'-'A')) {
		return true
	}
	return false
}

func classBytesContains(bitmap, extBytes []byte, extCount int, cp rune) bool {
	if cp >= 0 && cp < 256 {
		b := byte(cp)
		return bitmap[b/8]&(1<<(b%8)) != 0
	}
	for i := 0; i < extCount; i++ {
		off := i * 8
		lo := decodeUint32(extBytes[off : off+4])
		hi := decodeUint32(extBytes[off+4 : off+8])
		if uint32(cp) >= lo && uint32(cp) <= hi {
			return true
		}
	}
	return false
}
