package lspconv

import (
	"sort"
	"strings"
	"unicode/utf16"
	"unicode/utf8"

	"go.lsp.dev/protocol"
)

// LineIndex maps between byte offsets and LSP positions. LSP characters are
// counted in UTF-16 code units.
type LineIndex struct {
	text       string
	lineStarts []int
}

// NewLineIndex indexes the line starts of text. "\n", "\r\n" and a lone "\r"
// all end a line.
func NewLineIndex(text string) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\n':
			starts = append(starts, i+1)
		case '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				continue
			}
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{text: text, lineStarts: starts}
}

// LineCount returns the number of lines, counting a trailing empty line
func (li *LineIndex) LineCount() int {
	return len(li.lineStarts)
}

// LineStart returns the byte offset at which line starts, clamped to the text
func (li *LineIndex) LineStart(line int) int {
	if line < 0 {
		return 0
	}
	if line >= len(li.lineStarts) {
		return len(li.text)
	}
	return li.lineStarts[line]
}

// Line returns the content of line without its line terminator
func (li *LineIndex) Line(line int) string {
	if line < 0 || line >= len(li.lineStarts) {
		return ""
	}
	end := len(li.text)
	if line+1 < len(li.lineStarts) {
		end = li.lineStarts[line+1]
	}
	return strings.TrimRight(li.text[li.lineStarts[line]:end], "\r\n")
}

// LineOf returns the 0-indexed line containing offset
func (li *LineIndex) LineOf(offset int) int {
	if offset <= 0 {
		return 0
	}
	return sort.Search(len(li.lineStarts), func(i int) bool { return li.lineStarts[i] > offset }) - 1
}

// OffsetToPosition converts a byte offset into a 0-indexed LSP position
func (li *LineIndex) OffsetToPosition(offset int) protocol.Position {
	if offset > len(li.text) {
		offset = len(li.text)
	}
	line := li.LineOf(offset)
	return protocol.Position{
		Line:      uint32(line),
		Character: uint32(UTF16Len(li.text[li.lineStarts[line]:offset])),
	}
}

// PositionToOffset converts a 0-indexed LSP position into a byte offset.
// Positions past the end of a line clamp to the end of that line.
func (li *LineIndex) PositionToOffset(pos protocol.Position) int {
	line := int(pos.Line)
	if line >= len(li.lineStarts) {
		return len(li.text)
	}
	start := li.lineStarts[line]
	content := li.Line(line)

	units := 0
	for i, r := range content {
		if units >= int(pos.Character) {
			return start + i
		}
		units += utf16RuneLen(r)
	}
	return start + len(content)
}

// UTF16Len returns the length of s in UTF-16 code units
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16RuneLen(r)
	}
	return n
}

func utf16RuneLen(r rune) int {
	if r == utf8.RuneError {
		return 1
	}
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}
