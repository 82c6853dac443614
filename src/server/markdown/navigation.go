package markdown

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.lsp.dev/protocol"

	"github.com/harehare/mq-edit/src/utils"
)

// FileExists reports whether a path names an existing file system entry
type FileExists func(path string) bool

func osFileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Definition resolves the link under pos. Anchor links resolve to the
// first heading with a matching slug; relative links resolve to the linked
// file when it exists.
func Definition(tree *Tree, docURI protocol.DocumentURI, pos protocol.Position, exists FileExists) (protocol.Location, bool) {
	link, ok := tree.LinkAt(pos)
	if !ok {
		return protocol.Location{}, false
	}

	if anchor, isAnchor := link.Anchor(); isAnchor {
		heading, found := tree.HeadingBySlug(anchor)
		if !found {
			return protocol.Location{}, false
		}
		return protocol.Location{URI: docURI, Range: heading.Span.Range()}, true
	}

	target, ok := resolveLinkTarget(docURI, link.Target)
	if !ok || !exists(target) {
		return protocol.Location{}, false
	}
	return protocol.Location{URI: utils.FilePathToURI(target)}, true
}

// resolveLinkTarget maps a relative link target to a file path next to the
// document. Remote targets and bare fragments have no file.
func resolveLinkTarget(docURI protocol.DocumentURI, target string) (string, bool) {
	if target == "" || utils.IsRemoteTarget(target) {
		return "", false
	}

	if i := strings.IndexAny(target, "#?"); i >= 0 {
		target = target[:i]
	}
	if target == "" {
		return "", false
	}
	if unescaped, err := url.PathUnescape(target); err == nil {
		target = unescaped
	}

	if filepath.IsAbs(target) {
		return filepath.Clean(target), true
	}

	docPath, err := utils.URIToFilePath(docURI)
	if err != nil {
		return "", false
	}
	return filepath.Join(filepath.Dir(docPath), filepath.FromSlash(target)), true
}

// References collects the locations tied to the heading or anchor link
// under pos: the heading itself when includeDeclaration is set, then every
// link pointing at it.
func References(tree *Tree, docURI protocol.DocumentURI, pos protocol.Position, includeDeclaration bool) []protocol.Location {
	var (
		slug        string
		declaration *Node
	)

	if link, ok := tree.LinkAt(pos); ok {
		anchor, isAnchor := link.Anchor()
		if !isAnchor {
			return nil
		}
		slug = anchor
		if heading, found := tree.HeadingBySlug(anchor); found {
			declaration = &heading
		}
	} else if heading, ok := tree.HeadingAt(pos); ok {
		slug = heading.Slug()
		declaration = &heading
	} else {
		return nil
	}

	var locations []protocol.Location
	if includeDeclaration && declaration != nil {
		locations = append(locations, protocol.Location{URI: docURI, Range: declaration.Span.Range()})
	}
	for _, link := range tree.LinksTo(slug) {
		locations = append(locations, protocol.Location{URI: docURI, Range: link.Span.Range()})
	}
	return locations
}
