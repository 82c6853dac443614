package diagnostics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
)

func diagnostic(line uint32, severity protocol.DiagnosticSeverity, message string) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: 0},
			End:   protocol.Position{Line: line, Character: 4},
		},
		Severity: severity,
		Message:  message,
	}
}

func TestDiagnosticIndexGroupsByLine(t *testing.T) {
	idx := NewDiagnosticIndex()
	idx.Update([]protocol.Diagnostic{
		diagnostic(3, protocol.DiagnosticSeverityWarning, "first"),
		diagnostic(1, protocol.DiagnosticSeverityError, "broken"),
		diagnostic(3, protocol.DiagnosticSeverityHint, "second"),
	})

	line3 := idx.GetForLine(3)
	require.Len(t, line3, 2)
	assert.Equal(t, "first", line3[0].Message)
	assert.Equal(t, "second", line3[1].Message)
	assert.Empty(t, idx.GetForLine(2))

	assert.Equal(t, []uint32{1, 3}, idx.Lines())
	assert.Equal(t, 1, idx.ErrorCount())
	assert.Equal(t, 1, idx.WarningCount())
	assert.True(t, idx.HasDiagnostics())
	assert.Len(t, idx.All(), 3)
	assert.Equal(t, "first", idx.All()[0].Message)
}

func TestDiagnosticIndexUpdateReplaces(t *testing.T) {
	idx := NewDiagnosticIndex()
	idx.Update([]protocol.Diagnostic{diagnostic(0, protocol.DiagnosticSeverityError, "old")})
	idx.Update([]protocol.Diagnostic{diagnostic(5, protocol.DiagnosticSeverityWarning, "new")})

	assert.Empty(t, idx.GetForLine(0))
	assert.Len(t, idx.GetForLine(5), 1)
	assert.Equal(t, 0, idx.ErrorCount())
	assert.Equal(t, 1, idx.WarningCount())

	idx.Update(nil)
	assert.False(t, idx.HasDiagnostics())
	assert.Empty(t, idx.Lines())
}

func TestMostSevereForLine(t *testing.T) {
	tests := []struct {
		name       string
		severities []protocol.DiagnosticSeverity
		expected   string
	}{
		{"error beats warning", []protocol.DiagnosticSeverity{protocol.DiagnosticSeverityWarning, protocol.DiagnosticSeverityError}, "1"},
		{"warning beats information", []protocol.DiagnosticSeverity{protocol.DiagnosticSeverityInformation, protocol.DiagnosticSeverityWarning}, "1"},
		{"hint beats unspecified", []protocol.DiagnosticSeverity{0, protocol.DiagnosticSeverityHint}, "1"},
		{"first wins ties", []protocol.DiagnosticSeverity{protocol.DiagnosticSeverityError, protocol.DiagnosticSeverityError}, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var diags []protocol.Diagnostic
			for i, severity := range tt.severities {
				diags = append(diags, diagnostic(7, severity, string(rune('0'+i))))
			}
			idx := NewDiagnosticIndex()
			idx.Update(diags)

			best, ok := idx.MostSevereForLine(7)
			require.True(t, ok)
			assert.Equal(t, tt.expected, best.Message)
		})
	}

	_, ok := NewDiagnosticIndex().MostSevereForLine(0)
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	idx := NewDiagnosticIndex()
	idx.Update([]protocol.Diagnostic{diagnostic(0, protocol.DiagnosticSeverityError, "x")})
	idx.Clear()

	assert.False(t, idx.HasDiagnostics())
	assert.Zero(t, idx.ErrorCount())
	assert.Empty(t, idx.GetForLine(0))
}
