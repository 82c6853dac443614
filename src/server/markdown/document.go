package markdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
	"go.lsp.dev/protocol"

	"github.com/harehare/mq-edit/src/utils/lspconv"
)

// NodeKind discriminates the nodes kept in a Tree
type NodeKind int

const (
	NodeHeading NodeKind = iota + 1
	NodeLink
	NodeCodeBlock
)

func (k NodeKind) String() string {
	switch k {
	case NodeHeading:
		return "heading"
	case NodeLink:
		return "link"
	case NodeCodeBlock:
		return "code_block"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// Point is a 1-indexed line and column. Columns count UTF-16 code units.
type Point struct {
	Line   uint32
	Column uint32
}

// Span covers a node from Start up to, but not including, End
type Span struct {
	Start Point
	End   Point
}

// Range converts the span into a 0-indexed LSP range
func (s Span) Range() protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: s.Start.Line - 1, Character: s.Start.Column - 1},
		End:   protocol.Position{Line: s.End.Line - 1, Character: s.End.Column - 1},
	}
}

// Contains reports whether a 0-indexed position falls inside the span.
// A cursor sitting right after the last character still counts.
func (s Span) Contains(pos protocol.Position) bool {
	r := s.Range()
	if pos.Line < r.Start.Line || pos.Line > r.End.Line {
		return false
	}
	if pos.Line == r.Start.Line && pos.Character < r.Start.Character {
		return false
	}
	if pos.Line == r.End.Line && pos.Character > r.End.Character {
		return false
	}
	return true
}

// ContainsLine reports whether a 0-indexed line falls inside the span
func (s Span) ContainsLine(line uint32) bool {
	return line+1 >= s.Start.Line && line+1 <= s.End.Line
}

// Node is a heading, link or code block projected out of the syntax tree.
// Depth is set for headings, Target for links, Text for headings (plain
// text) and links (label).
type Node struct {
	Kind   NodeKind
	Span   Span
	Depth  int
	Text   string
	Target string
}

// Anchor returns the fragment of a same-document link, e.g. "intro" for "#intro"
func (n Node) Anchor() (string, bool) {
	if n.Kind != NodeLink || !strings.HasPrefix(n.Target, "#") {
		return "", false
	}
	return n.Target[1:], true
}

// Slug returns the anchor slug of a heading
func (n Node) Slug() string {
	return Slug(n.Text)
}

// Tree is the flat, document-ordered list of nodes the analyzer works on
type Tree struct {
	Nodes []Node
}

// Headings returns the headings in document order
func (t *Tree) Headings() []Node {
	return t.filter(NodeHeading)
}

// Links returns the links in document order
func (t *Tree) Links() []Node {
	return t.filter(NodeLink)
}

// CodeBlocks returns the code blocks in document order
func (t *Tree) CodeBlocks() []Node {
	return t.filter(NodeCodeBlock)
}

func (t *Tree) filter(kind NodeKind) []Node {
	if t == nil {
		return nil
	}
	var nodes []Node
	for _, node := range t.Nodes {
		if node.Kind == kind {
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// HeadingBySlug returns the first heading whose slug is exactly slug
func (t *Tree) HeadingBySlug(slug string) (Node, bool) {
	for _, heading := range t.Headings() {
		if heading.Slug() == slug {
			return heading, true
		}
	}
	return Node{}, false
}

// LinksTo returns every link pointing at "#anchor"
func (t *Tree) LinksTo(anchor string) []Node {
	var links []Node
	for _, link := range t.Links() {
		if target, ok := link.Anchor(); ok && target == anchor {
			links = append(links, link)
		}
	}
	return links
}

// LinkAt returns the link containing pos
func (t *Tree) LinkAt(pos protocol.Position) (Node, bool) {
	return t.at(NodeLink, pos)
}

// HeadingAt returns the heading containing pos
func (t *Tree) HeadingAt(pos protocol.Position) (Node, bool) {
	return t.at(NodeHeading, pos)
}

func (t *Tree) at(kind NodeKind, pos protocol.Position) (Node, bool) {
	for _, node := range t.filter(kind) {
		if node.Span.Contains(pos) {
			return node, true
		}
	}
	return Node{}, false
}

// InCodeBlock reports whether a 0-indexed line is inside a code block,
// fence lines included
func (t *Tree) InCodeBlock(line uint32) bool {
	for _, block := range t.CodeBlocks() {
		if block.Span.ContainsLine(line) {
			return true
		}
	}
	return false
}

var mdParser = goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser()

// Parse builds a Tree from Markdown source. A panic inside the parser is
// returned as an error.
func Parse(source string) (tree *Tree, err error) {
	defer func() {
		if r := recover(); r != nil {
			tree = nil
			err = fmt.Errorf("markdown parser panicked: %v", r)
		}
	}()

	src := []byte(source)
	doc := mdParser.Parse(text.NewReader(src))

	b := &treeBuilder{source: src, lines: lspconv.NewLineIndex(source)}
	if err := ast.Walk(doc, b.visit); err != nil {
		return nil, err
	}
	return &Tree{Nodes: b.nodes}, nil
}

// treeBuilder walks the goldmark AST in document order. nextLine is the
// first line not yet covered by a visited block and is used to locate
// blocks that carry no text segments, such as an empty heading or fence.
// cursor is the source offset reached by inline content so far and is used
// the same way for links and images with an empty label.
type treeBuilder struct {
	source   []byte
	lines    *lspconv.LineIndex
	nodes    []Node
	nextLine int
	cursor   int
}

func (b *treeBuilder) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		b.cursor = n.Lines().At(0).Start
	}

	switch node := n.(type) {
	case *ast.Heading:
		b.addHeading(node)
	case *ast.FencedCodeBlock:
		b.addFencedCodeBlock(node)
		return ast.WalkSkipChildren, nil
	case *ast.CodeBlock:
		b.addIndentedCodeBlock(node)
		return ast.WalkSkipChildren, nil
	case *ast.Link:
		b.addLink(node)
	case *ast.Image:
		if _, end, ok := b.bounds(node, true); ok {
			b.moveCursor(end)
		}
		return ast.WalkSkipChildren, nil
	case *ast.Text:
		b.moveCursor(node.Segment.Stop)
	default:
		if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
			b.advance(b.lastLine(n.Lines()) + 1)
		}
	}
	return ast.WalkContinue, nil
}

func (b *treeBuilder) addHeading(node *ast.Heading) {
	var first, last int
	if node.Lines().Len() > 0 {
		first = b.lines.LineOf(node.Lines().At(0).Start)
		last = b.lastLine(node.Lines())
		// setext headings continue onto their underline
		if !strings.HasPrefix(strings.TrimLeft(b.lines.Line(first), " \t>"), "#") {
			last++
		}
	} else {
		first = b.scan(b.nextLine, func(line string) bool { return strings.HasPrefix(line, "#") })
		last = first
	}

	b.nodes = append(b.nodes, Node{
		Kind:  NodeHeading,
		Span:  b.lineSpan(first, last),
		Depth: node.Level,
		Text:  plainText(node, b.source),
	})
	b.advance(last + 1)
}

func (b *treeBuilder) addFencedCodeBlock(node *ast.FencedCodeBlock) {
	var open int
	switch {
	case node.Lines().Len() > 0:
		open = b.lines.LineOf(node.Lines().At(0).Start) - 1
	case node.Info != nil:
		open = b.lines.LineOf(node.Info.Segment.Start)
	default:
		open = b.scan(b.nextLine, isFence)
	}

	last := open
	if node.Lines().Len() > 0 {
		last = b.lastLine(node.Lines())
	}

	end := last
	if isFence(strings.TrimLeft(b.lines.Line(last+1), " \t>")) {
		end = last + 1
	} else if node.Lines().Len() == 0 {
		end = b.lines.LineCount() - 1
	}

	b.nodes = append(b.nodes, Node{
		Kind: NodeCodeBlock,
		Span: b.lineSpan(open, end),
		Text: string(node.Language(b.source)),
	})
	b.advance(end + 1)
}

func (b *treeBuilder) addIndentedCodeBlock(node *ast.CodeBlock) {
	if node.Lines().Len() == 0 {
		return
	}
	first := b.lines.LineOf(node.Lines().At(0).Start)
	last := b.lastLine(node.Lines())

	b.nodes = append(b.nodes, Node{Kind: NodeCodeBlock, Span: b.lineSpan(first, last)})
	b.advance(last + 1)
}

func (b *treeBuilder) addLink(node *ast.Link) {
	open, end, ok := b.bounds(node, false)
	if !ok {
		return
	}

	b.nodes = append(b.nodes, Node{
		Kind:   NodeLink,
		Span:   b.offsetSpan(open, end),
		Text:   plainText(node, b.source),
		Target: string(node.Destination),
	})
	b.moveCursor(end)
}

// bounds returns the source range of a link or image, from its opening
// bracket ("!" for images) to the end of its destination
func (b *treeBuilder) bounds(n ast.Node, image bool) (open, end int, ok bool) {
	start, stop, hasLabel := b.labelBounds(n)
	if !hasLabel {
		return b.emptyLabelBounds(image)
	}

	open = start
	for open > 0 && b.source[open-1] != '[' && b.source[open-1] != '\n' {
		open--
	}
	if open == 0 || b.source[open-1] != '[' {
		return 0, 0, false
	}
	open--
	if image {
		if open == 0 || b.source[open-1] != '!' {
			return 0, 0, false
		}
		open--
	}
	return open, linkEnd(b.source, stop), true
}

// labelBounds returns the byte range covered by the label of n. A nested
// image counts with its full source range, so a badge link spans the
// whole image.
func (b *treeBuilder) labelBounds(n ast.Node) (start, stop int, ok bool) {
	start = -1
	extend := func(s, e int) {
		if start < 0 || s < start {
			start = s
		}
		if e > stop {
			stop = e
		}
	}
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || child == n {
			return ast.WalkContinue, nil
		}
		switch c := child.(type) {
		case *ast.Text:
			extend(c.Segment.Start, c.Segment.Stop)
		case *ast.Image:
			if s, e, ok := b.bounds(c, true); ok {
				extend(s, e)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return start, stop, start >= 0
}

// emptyLabelBounds locates the next "[](" (or "![](") at or after the
// cursor, skipping escaped brackets
func (b *treeBuilder) emptyLabelBounds(image bool) (open, end int, ok bool) {
	marker := []byte("[](")
	for from := b.cursor; from < len(b.source); {
		i := bytes.Index(b.source[from:], marker)
		if i < 0 {
			return 0, 0, false
		}
		at := from + i
		from = at + 1

		var prev byte
		if at > 0 {
			prev = b.source[at-1]
		}
		if prev == '\\' || (prev == '!') != image {
			continue
		}
		open = at
		if image {
			open--
		}
		return open, linkEnd(b.source, at+1), true
	}
	return 0, 0, false
}

func (b *treeBuilder) moveCursor(offset int) {
	if offset > b.cursor {
		b.cursor = offset
	}
}

// lastLine returns the line holding the final character of segments. A
// segment ending in "\n" stops at the start of the next line.
func (b *treeBuilder) lastLine(segments *text.Segments) int {
	seg := segments.At(segments.Len() - 1)
	if seg.Stop > seg.Start {
		return b.lines.LineOf(seg.Stop - 1)
	}
	return b.lines.LineOf(seg.Start)
}

func (b *treeBuilder) advance(line int) {
	if line > b.nextLine {
		b.nextLine = line
	}
}

// scan returns the first line at or after from whose content, stripped of
// indentation and quote markers, satisfies match
func (b *treeBuilder) scan(from int, match func(string) bool) int {
	for line := from; line < b.lines.LineCount(); line++ {
		if match(strings.TrimLeft(b.lines.Line(line), " \t>")) {
			return line
		}
	}
	return from
}

// lineSpan covers whole lines first..last (0-indexed)
func (b *treeBuilder) lineSpan(first, last int) Span {
	if last < first {
		last = first
	}
	return Span{
		Start: Point{Line: uint32(first) + 1, Column: 1},
		End:   Point{Line: uint32(last) + 1, Column: uint32(lspconv.UTF16Len(b.lines.Line(last))) + 1},
	}
}

func (b *treeBuilder) offsetSpan(start, end int) Span {
	s := b.lines.OffsetToPosition(start)
	e := b.lines.OffsetToPosition(end)
	return Span{
		Start: Point{Line: s.Line + 1, Column: s.Character + 1},
		End:   Point{Line: e.Line + 1, Column: e.Character + 1},
	}
}

func isFence(line string) bool {
	return strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~")
}

// linkEnd finds the end of a link whose label text stops at offset: the
// closing ")" of an inline destination, the "]" of a reference label, or
// the label's own "]"
func linkEnd(source []byte, offset int) int {
	i := offset
	for i < len(source) && source[i] != ']' {
		if source[i] == '\n' {
			return offset
		}
		i++
	}
	if i >= len(source) {
		return offset
	}
	i++

	if i < len(source) && source[i] == '(' {
		depth := 0
		for j := i; j < len(source); j++ {
			switch source[j] {
			case '\\':
				j++
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					return j + 1
				}
			}
		}
		return i
	}
	if i < len(source) && source[i] == '[' {
		if closing := strings.IndexByte(string(source[i:]), ']'); closing >= 0 {
			return i + closing + 1
		}
	}
	return i
}

// plainText concatenates the literal text below n
func plainText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := child.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}
