package source

import "fmt"

// Pos holds the line/column data for a single rune in a source document.
// Both are 1-indexed.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Span holds a half-open Start/End position range in a source document,
// plus the file it came from, and is attached to every AST node and
// diagnostic raised against it.
type Span struct {
	File  *File
	Start Pos
	End   Pos
}

func (s Span) String() string {
	name := "<input>"
	if s.File != nil {
		name = s.File.Filename
	}
	return fmt.Sprintf("%s:%s", name, s.Start)
}

// Join returns a span covering both a and b, assuming a precedes b in the
// same file.
func Join(a, b Span) Span {
	return Span{File: a.File, Start: a.Start, End: b.End}
}
