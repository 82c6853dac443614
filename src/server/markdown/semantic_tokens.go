package markdown

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"

	"github.com/harehare/mq-edit/src/utils/lspconv"
)

var markdownLexer = chroma.Coalesce(lexerOrFallback("markdown"))

func lexerOrFallback(name string) chroma.Lexer {
	if lexer := lexers.Get(name); lexer != nil {
		return lexer
	}
	return lexers.Fallback
}

// SemanticTokens highlights source with the Markdown lexer and returns the
// delta-encoded token data. Multi-line lexer tokens are split per line.
func SemanticTokens(source string) []uint32 {
	iter, err := markdownLexer.Tokenise(nil, source)
	if err != nil {
		return []uint32{}
	}

	var (
		tokens []lspconv.AbsoluteToken
		line   uint32
		column uint32
	)
	for _, tok := range iter.Tokens() {
		tokenType, highlighted := semanticTokenType(tok.Type)
		for i, part := range strings.Split(tok.Value, "\n") {
			if i > 0 {
				line++
				column = 0
			}
			part = strings.TrimSuffix(part, "\r")
			length := uint32(lspconv.UTF16Len(part))
			if highlighted && strings.TrimSpace(part) != "" {
				tokens = append(tokens, lspconv.AbsoluteToken{
					Line:      line,
					StartChar: column,
					Length:    length,
					TokenType: tokenType,
				})
			}
			column += length
		}
	}
	return lspconv.EncodeSemanticTokens(tokens)
}

// semanticTokenType maps a lexer token type onto the standard legend
func semanticTokenType(t chroma.TokenType) (uint32, bool) {
	switch {
	case t == chroma.GenericHeading || t == chroma.GenericSubheading:
		return lspconv.TokenNamespace, true
	case t == chroma.GenericEmph || t == chroma.GenericStrong || t == chroma.GenericDeleted:
		return lspconv.TokenMacro, true
	case t == chroma.NameTag:
		return lspconv.TokenVariable, true
	case t == chroma.NameAttribute:
		return lspconv.TokenProperty, true
	case t == chroma.NameFunction || t == chroma.NameBuiltin:
		return lspconv.TokenFunction, true
	case t == chroma.NameClass:
		return lspconv.TokenClass, true
	case t.InSubCategory(chroma.LiteralString):
		return lspconv.TokenString, true
	case t.InSubCategory(chroma.LiteralNumber):
		return lspconv.TokenNumber, true
	case t.InCategory(chroma.Keyword):
		return lspconv.TokenKeyword, true
	case t.InCategory(chroma.Comment):
		return lspconv.TokenComment, true
	case t.InCategory(chroma.Operator):
		return lspconv.TokenOperator, true
	default:
		return 0, false
	}
}
