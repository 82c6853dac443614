package cli

import (
	"fmt"
	"io"
	"sort"

	"go.lsp.dev/protocol"

	"github.com/harehare/mq-edit/src/utils"
	"github.com/harehare/mq-edit/src/utils/lspconv"
)

var severityNames = map[protocol.DiagnosticSeverity]string{
	protocol.DiagnosticSeverityError:       "error",
	protocol.DiagnosticSeverityWarning:     "warning",
	protocol.DiagnosticSeverityInformation: "info",
	protocol.DiagnosticSeverityHint:        "hint",
}

func severityName(severity protocol.DiagnosticSeverity) string {
	if name, ok := severityNames[severity]; ok {
		return name
	}
	return "error"
}

// printDiagnostic writes a diagnostic as path:line:col: severity: message, 1-indexed
func printDiagnostic(w io.Writer, path string, diag protocol.Diagnostic) {
	fmt.Fprintf(w, "%s:%d:%d: %s: %s\n",
		path, diag.Range.Start.Line+1, diag.Range.Start.Character+1,
		severityName(diag.Severity), diag.Message)
}

// printLocations writes one 0-indexed location per line, sorted by file and position
func printLocations(w io.Writer, locations []protocol.Location) {
	sorted := append([]protocol.Location{}, locations...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].URI != sorted[j].URI {
			return sorted[i].URI < sorted[j].URI
		}
		a, b := sorted[i].Range.Start, sorted[j].Range.Start
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Character < b.Character
	})

	for _, loc := range sorted {
		path, err := utils.URIToFilePath(loc.URI)
		if err != nil {
			path = string(loc.URI)
		}
		fmt.Fprintf(w, "%s:%d:%d-%d:%d\n", path,
			loc.Range.Start.Line, loc.Range.Start.Character,
			loc.Range.End.Line, loc.Range.End.Character)
	}
}

// printCompletions writes label, kind and detail of every item, tab separated
func printCompletions(w io.Writer, list *protocol.CompletionList) {
	if list == nil {
		return
	}
	for _, item := range list.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\n", item.Label, completionKindName(item.Kind), item.Detail)
	}
}

var completionKindNames = map[protocol.CompletionItemKind]string{
	protocol.CompletionItemKindText:      "text",
	protocol.CompletionItemKindFunction:  "function",
	protocol.CompletionItemKindVariable:  "variable",
	protocol.CompletionItemKindKeyword:   "keyword",
	protocol.CompletionItemKindSnippet:   "snippet",
	protocol.CompletionItemKindFile:      "file",
	protocol.CompletionItemKindReference: "reference",
}

func completionKindName(kind protocol.CompletionItemKind) string {
	if name, ok := completionKindNames[kind]; ok {
		return name
	}
	if kind == 0 {
		return "-"
	}
	return fmt.Sprintf("kind%d", int(kind))
}

// printTokens writes the decoded tokens as line:col length type
func printTokens(w io.Writer, tokens *protocol.SemanticTokens) {
	if tokens == nil {
		return
	}
	for _, tok := range lspconv.DecodeSemanticTokens(tokens.Data) {
		name := fmt.Sprintf("type%d", tok.TokenType)
		if int(tok.TokenType) < len(lspconv.TokenTypes) {
			name = lspconv.TokenTypes[tok.TokenType]
		}
		fmt.Fprintf(w, "%d:%d\t%d\t%s\n", tok.Line, tok.StartChar, tok.Length, name)
	}
}
