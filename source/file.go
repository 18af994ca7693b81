package source

import (
	"os"
	"strings"
)

// File represents a chunk of source code to be processed by the front end.
// Contents is the raw text; Lines is a cached split on '\n' so diagnostics
// don't repeatedly re-split the same file.
type File struct {
	Filename string
	Contents string
	Lines    []string
}

// Load reads a file from disk and wraps it in a *File ready for scanning.
func Load(filename string) (*File, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	contents := string(raw)
	return &File{
		Filename: filename,
		Contents: contents,
		Lines:    strings.Split(contents, "\n"),
	}, nil
}

// FromString wraps in-memory source text in a *File, used by the REPL and
// by tests; require() reads modules through Load.
func FromString(filename, contents string) *File {
	return &File{
		Filename: filename,
		Contents: contents,
		Lines:    strings.Split(contents, "\n"),
	}
}

// Line returns the 1-indexed source line, or "" if out of range.
func (f *File) Line(n int) string {
	if n < 1 || n > len(f.Lines) {
		return ""
	}
	return f.Lines[n-1]
}
