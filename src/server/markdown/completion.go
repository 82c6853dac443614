package markdown

import (
	"fmt"
	"strings"

	"go.lsp.dev/protocol"
)

// TriggerCharacters are the characters that open a completion popup
var TriggerCharacters = []string{"#", "[", "!", "`", "-", "("}

// codeFenceLanguages are offered after two backticks when opening a fenced block
var codeFenceLanguages = []string{
	"rust", "python", "javascript", "typescript", "json", "yaml", "bash", "go",
	"java", "c", "cpp", "ruby", "elixir", "clojure", "haskell", "scala", "sh",
	"jq", "mq", "shell", "powershell", "zsh", "fish", "perl", "php", "swift",
	"kotlin", "dart", "lua", "groovy", "objective-c", "ocaml", "r", "julia",
	"erlang", "fsharp", "nim", "zig", "jsx", "tsx", "css", "scss", "less",
	"html", "xml", "markdown", "plaintext", "sql", "dockerfile", "terraform",
	"makefile", "cmake", "ini", "toml", "csv", "diff",
}

// Complete computes completion items from the document tree and the text
// of the cursor line left of the cursor. Only the first matching rule
// contributes items.
func Complete(tree *Tree, line uint32, prefix string) []protocol.CompletionItem {
	if tree.InCodeBlock(line) {
		return []protocol.CompletionItem{}
	}

	trimmed := strings.TrimSpace(prefix)
	switch {
	case strings.Contains(prefix, "](#"):
		return anchorCompletions(tree)
	case strings.HasSuffix(prefix, "!["):
		return []protocol.CompletionItem{snippet("![alt](url)", "Image", "$1]($2)")}
	case strings.HasSuffix(prefix, "["):
		return []protocol.CompletionItem{snippet("[text](url)", "Link", "$1]($2)")}
	case strings.HasSuffix(prefix, "``"):
		return codeFenceCompletions()
	case isHeadingPrefix(trimmed):
		return headingCompletions()
	case trimmed == "-":
		return taskCompletions()
	default:
		return []protocol.CompletionItem{}
	}
}

// isHeadingPrefix matches one or more "#" optionally followed by a space.
// The space has already been trimmed away.
func isHeadingPrefix(trimmed string) bool {
	return trimmed != "" && strings.Trim(trimmed, "#") == ""
}

func anchorCompletions(tree *Tree) []protocol.CompletionItem {
	headings := tree.Headings()
	items := make([]protocol.CompletionItem, 0, len(headings))
	for i, heading := range headings {
		slug := heading.Slug()
		items = append(items, protocol.CompletionItem{
			Label:      "#" + slug,
			Detail:     fmt.Sprintf("H%d: %s", heading.Depth, heading.Text),
			Kind:       protocol.CompletionItemKindReference,
			InsertText: slug,
			SortText:   fmt.Sprintf("%04d", i),
		})
	}
	return items
}

func headingCompletions() []protocol.CompletionItem {
	items := make([]protocol.CompletionItem, 0, 6)
	for level := 1; level <= 6; level++ {
		marks := strings.Repeat("#", level)
		items = append(items, protocol.CompletionItem{
			Label:      fmt.Sprintf("%s Heading %d", marks, level),
			Kind:       protocol.CompletionItemKindSnippet,
			InsertText: marks + " ",
		})
	}
	return items
}

func taskCompletions() []protocol.CompletionItem {
	return []protocol.CompletionItem{
		{
			Label:      "- [ ] Task",
			Detail:     "Task list item",
			Kind:       protocol.CompletionItemKindSnippet,
			InsertText: " [ ] ",
		},
		{
			Label:      "- [x] Completed task",
			Detail:     "Completed task item",
			Kind:       protocol.CompletionItemKindSnippet,
			InsertText: " [x] ",
		},
	}
}

func codeFenceCompletions() []protocol.CompletionItem {
	items := make([]protocol.CompletionItem, 0, len(codeFenceLanguages))
	for _, lang := range codeFenceLanguages {
		items = append(items, snippet("`"+lang, lang+" code block", "`"+lang+"\n$1\n```"))
	}
	return items
}

func snippet(label, detail, insert string) protocol.CompletionItem {
	return protocol.CompletionItem{
		Label:            label,
		Detail:           detail,
		Kind:             protocol.CompletionItemKindSnippet,
		InsertText:       insert,
		InsertTextFormat: protocol.InsertTextFormatSnippet,
	}
}
