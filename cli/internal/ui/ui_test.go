package ui

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := map[string]pterm.LogLevel{
		"trace":   pterm.LogLevelTrace,
		"debug":   pterm.LogLevelDebug,
		"info":    pterm.LogLevelInfo,
		"warning": pterm.LogLevelWarn,
		"error":   pterm.LogLevelError,
		"":        pterm.LogLevelInfo,
	}
	for name, expected := range tests {
		assert.Equal(t, expected, NewLogger(name, &bytes.Buffer{}).Level, name)
	}
}

func TestNewLoggerWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", &buf)
	logger.Info("hidden")
	logger.Warn("apply groupApp.0002_groupmatch_group2accept_and_more")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "groupApp.0002_groupmatch_group2accept_and_more")
}

// TestPrinterStreams tests that only errors go to the error writer.
func TestPrinterStreams(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPrinter(&out, &errOut)

	p.Success("%s: %d statement(s)", "groupApp.0002_groupmatch_group2accept_and_more", 3)
	p.Info("No migrations to apply.")
	p.Warning("Cancelled")
	p.Error("boom")

	assert.Contains(t, out.String(), "✓ groupApp.0002_groupmatch_group2accept_and_more: 3 statement(s)")
	assert.Contains(t, out.String(), "ℹ No migrations to apply.")
	assert.Contains(t, out.String(), "⚠ Cancelled")
	assert.NotContains(t, out.String(), "boom")
	assert.Contains(t, errOut.String(), "✗ boom")
}

func TestPrinterTable(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, &out)
	p.Section("groupApp")
	require.NoError(t, p.Table([]string{"Migration", "Applied at"}, [][]string{
		{"0001_initial", "2026-10-15 09:00:00"},
		{"0002_groupmatch_group2accept_and_more", ""},
	}))
	assert.Contains(t, out.String(), "groupApp")
	assert.Contains(t, out.String(), "0002_groupmatch_group2accept_and_more")
}

func TestPrinterSQL(t *testing.T) {
	var out bytes.Buffer
	NewPrinter(&out, &out).SQL("postgres", "BEGIN;\nCOMMIT;\n")
	assert.Contains(t, out.String(), "postgres")
	assert.Contains(t, out.String(), "COMMIT;")
}

func TestStatusMark(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	assert.Equal(t, "[X]", StatusMark(true))
	assert.Equal(t, "[ ]", StatusMark(false))
	assert.Equal(t, "changed since applied", Highlight("changed since applied"))
}
