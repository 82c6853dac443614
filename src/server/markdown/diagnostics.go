package markdown

import (
	"fmt"

	"go.lsp.dev/protocol"

	"github.com/harehare/mq-edit/src/internal/constants"
)

// Diagnose reports every same-document link whose anchor matches no heading
func Diagnose(tree *Tree) []protocol.Diagnostic {
	slugs := make(map[string]struct{})
	for _, heading := range tree.Headings() {
		slugs[heading.Slug()] = struct{}{}
	}

	diagnostics := []protocol.Diagnostic{}
	for _, link := range tree.Links() {
		anchor, ok := link.Anchor()
		if !ok {
			continue
		}
		if _, found := slugs[anchor]; found {
			continue
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    link.Span.Range(),
			Severity: protocol.DiagnosticSeverityWarning,
			Source:   constants.DiagnosticSource,
			Message:  fmt.Sprintf("Broken link: heading '%s' not found", anchor),
		})
	}
	return diagnostics
}
