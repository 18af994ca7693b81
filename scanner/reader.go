package scanner

import (
	"unicode/utf8"

	"github.com/kjpearse/lumen/source"
)

// reader walks a *source.File one rune at a time, tracking line/column
// position. Grounded on the teacher's frontend.Scanner, but returns an ok
// flag at end-of-input instead of panicking, since this scanner runs over
// arbitrary require()'d files rather than one pre-validated entry script.
type reader struct {
	file     *source.File
	nextByte int
	line     int
	col      int
}

func newReader(file *source.File) *reader {
	return &reader{file: file, nextByte: 0, line: 1, col: 1}
}

func (r *reader) peek() (rn rune, pos source.Pos, ok bool) {
	if r.nextByte >= len(r.file.Contents) {
		return 0, source.Pos{Line: r.line, Col: r.col}, false
	}
	rn, _ = utf8.DecodeRuneInString(r.file.Contents[r.nextByte:])
	return rn, source.Pos{Line: r.line, Col: r.col}, true
}

func (r *reader) peek2() (rn rune, ok bool) {
	if r.nextByte >= len(r.file.Contents) {
		return 0, false
	}
	_, w := utf8.DecodeRuneInString(r.file.Contents[r.nextByte:])
	if r.nextByte+w >= len(r.file.Contents) {
		return 0, false
	}
	rn, _ = utf8.DecodeRuneInString(r.file.Contents[r.nextByte+w:])
	return rn, true
}

func (r *reader) next() (rn rune, pos source.Pos, ok bool) {
	rn, pos, ok = r.peek()
	if !ok {
		return
	}
	width := utf8.RuneLen(rn)
	if rn == '\n' {
		r.line++
		r.col = 1
	} else {
		r.col++
	}
	r.nextByte += width
	return rn, pos, true
}

func (r *reader) pos() source.Pos {
	return source.Pos{Line: r.line, Col: r.col}
}
