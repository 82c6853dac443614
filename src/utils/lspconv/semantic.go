package lspconv

import (
	"sort"
)

// Standard semantic token types, in legend order
const (
	TokenNamespace uint32 = iota
	TokenType
	TokenClass
	TokenEnum
	TokenInterface
	TokenStruct
	TokenTypeParameter
	TokenParameter
	TokenVariable
	TokenProperty
	TokenEnumMember
	TokenEvent
	TokenFunction
	TokenMethod
	TokenMacro
	TokenKeyword
	TokenModifier
	TokenComment
	TokenString
	TokenNumber
	TokenRegexp
	TokenOperator
)

// TokenTypes is the standard semantic token legend advertised to servers
var TokenTypes = []string{
	"namespace", "type", "class", "enum", "interface", "struct",
	"typeParameter", "parameter", "variable", "property", "enumMember",
	"event", "function", "method", "macro", "keyword", "modifier",
	"comment", "string", "number", "regexp", "operator",
}

// TokenModifiers is the standard semantic token modifier legend
var TokenModifiers = []string{
	"declaration", "definition", "readonly", "static", "deprecated",
	"abstract", "async", "modification", "documentation", "defaultLibrary",
}

// AbsoluteToken is a single-line token in absolute 0-indexed UTF-16 coordinates
type AbsoluteToken struct {
	Line      uint32
	StartChar uint32
	Length    uint32
	TokenType uint32
	Modifiers uint32
}

// EncodeSemanticTokens sorts tokens by position and delta-encodes them into
// the five-integer-per-token wire form. Zero-length tokens are dropped.
func EncodeSemanticTokens(tokens []AbsoluteToken) []uint32 {
	sorted := make([]AbsoluteToken, 0, len(tokens))
	for _, tok := range tokens {
		if tok.Length > 0 {
			sorted = append(sorted, tok)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Line != sorted[j].Line {
			return sorted[i].Line < sorted[j].Line
		}
		return sorted[i].StartChar < sorted[j].StartChar
	})

	data := make([]uint32, 0, len(sorted)*5)
	var prevLine, prevStart uint32
	for _, tok := range sorted {
		deltaLine := tok.Line - prevLine
		deltaStart := tok.StartChar
		if deltaLine == 0 {
			deltaStart = tok.StartChar - prevStart
		}
		data = append(data, deltaLine, deltaStart, tok.Length, tok.TokenType, tok.Modifiers)
		prevLine = tok.Line
		prevStart = tok.StartChar
	}
	return data
}

// DecodeSemanticTokens reverses EncodeSemanticTokens. Trailing partial groups are ignored.
func DecodeSemanticTokens(data []uint32) []AbsoluteToken {
	tokens := make([]AbsoluteToken, 0, len(data)/5)
	var line, start uint32
	for i := 0; i+5 <= len(data); i += 5 {
		if data[i] > 0 {
			line += data[i]
			start = data[i+1]
		} else {
			start += data[i+1]
		}
		tokens = append(tokens, AbsoluteToken{
			Line:      line,
			StartChar: start,
			Length:    data[i+2],
			TokenType: data[i+3],
			Modifiers: data[i+4],
		})
	}
	return tokens
}
