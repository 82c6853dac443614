// Package diagnostics indexes the latest diagnostics snapshot of a document
// by line so the editor can decorate lines and gutters cheaply.
package diagnostics

import (
	"sort"

	"go.lsp.dev/protocol"
)

// severityRank orders severities from most to least severe. A missing
// severity ranks below a hint.
func severityRank(severity protocol.DiagnosticSeverity) int {
	switch severity {
	case protocol.DiagnosticSeverityError:
		return 4
	case protocol.DiagnosticSeverityWarning:
		return 3
	case protocol.DiagnosticSeverityInformation:
		return 2
	case protocol.DiagnosticSeverityHint:
		return 1
	default:
		return 0
	}
}

// DiagnosticIndex groups a document's diagnostics by start line. Every
// Update replaces the previous snapshot. It is not safe for concurrent use.
type DiagnosticIndex struct {
	all    []protocol.Diagnostic
	byLine map[uint32][]protocol.Diagnostic
	errors int
	warns  int
}

// NewDiagnosticIndex creates an empty index
func NewDiagnosticIndex() *DiagnosticIndex {
	return &DiagnosticIndex{byLine: make(map[uint32][]protocol.Diagnostic)}
}

// Update replaces the snapshot with diags, preserving their order within each line
func (idx *DiagnosticIndex) Update(diags []protocol.Diagnostic) {
	idx.Clear()
	idx.all = append(idx.all, diags...)
	for _, diag := range diags {
		line := diag.Range.Start.Line
		idx.byLine[line] = append(idx.byLine[line], diag)
		switch diag.Severity {
		case protocol.DiagnosticSeverityError:
			idx.errors++
		case protocol.DiagnosticSeverityWarning:
			idx.warns++
		}
	}
}

// GetForLine returns the diagnostics starting on a 0-indexed line
func (idx *DiagnosticIndex) GetForLine(line uint32) []protocol.Diagnostic {
	return idx.byLine[line]
}

// MostSevereForLine returns the most severe diagnostic starting on line.
// Ties go to the diagnostic that came first.
func (idx *DiagnosticIndex) MostSevereForLine(line uint32) (protocol.Diagnostic, bool) {
	diags := idx.byLine[line]
	if len(diags) == 0 {
		return protocol.Diagnostic{}, false
	}
	best := diags[0]
	for _, diag := range diags[1:] {
		if severityRank(diag.Severity) > severityRank(best.Severity) {
			best = diag
		}
	}
	return best, true
}

// Lines returns the lines that carry diagnostics, ascending
func (idx *DiagnosticIndex) Lines() []uint32 {
	lines := make([]uint32, 0, len(idx.byLine))
	for line := range idx.byLine {
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i] < lines[j] })
	return lines
}

// ErrorCount returns the number of error diagnostics
func (idx *DiagnosticIndex) ErrorCount() int {
	return idx.errors
}

// WarningCount returns the number of warning diagnostics
func (idx *DiagnosticIndex) WarningCount() int {
	return idx.warns
}

// HasDiagnostics reports whether the snapshot is non-empty
func (idx *DiagnosticIndex) HasDiagnostics() bool {
	return len(idx.all) > 0
}

// All returns the snapshot in the order it was received
func (idx *DiagnosticIndex) All() []protocol.Diagnostic {
	return idx.all
}

// Clear empties the index
func (idx *DiagnosticIndex) Clear() {
	idx.all = nil
	idx.byLine = make(map[uint32][]protocol.Diagnostic)
	idx.errors = 0
	idx.warns = 0
}
