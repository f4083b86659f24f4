// Package ui renders command output: status lines, tables, markdown plans
// and SQL blocks.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	accent = lipgloss.Color("#00D9FF")
	muted  = lipgloss.Color("#6C757D")

	titleStyle   = lipgloss.NewStyle().Foreground(accent).Bold(true).MarginBottom(1)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(muted).
			Bold(true)
	sqlStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1).
			Foreground(lipgloss.Color("#D4D4D4"))
)

type level int

const (
	levelSuccess level = iota
	levelInfo
	levelWarning
	levelError
)

var marks = map[level]struct {
	symbol string
	style  lipgloss.Style
}{
	levelSuccess: {"✓", lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF88")).Bold(true)},
	levelInfo:    {"ℹ", lipgloss.NewStyle().Foreground(accent)},
	levelWarning: {"⚠", lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB800")).Bold(true)},
	levelError:   {"✗", lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444")).Bold(true)},
}

// Printer writes styled output. Errors go to the error writer, everything
// else to out.
type Printer struct {
	out, err io.Writer
	width    int
}

// NewPrinter returns a Printer for the given streams.
func NewPrinter(out, err io.Writer) *Printer {
	width := pterm.GetTerminalWidth()
	if width <= 0 || width > 100 {
		width = 80
	}
	return &Printer{out: out, err: err, width: width}
}

var std = NewPrinter(os.Stdout, os.Stderr)

func (p *Printer) line(l level, format string, args []interface{}) {
	w := p.out
	if l == levelError {
		w = p.err
	}
	m := marks[l]
	fmt.Fprintln(w, m.style.Render(m.symbol+" "+fmt.Sprintf(format, args...)))
}

// Success reports a completed step.
func (p *Printer) Success(format string, args ...interface{}) { p.line(levelSuccess, format, args) }

// Info reports something that needs no action.
func (p *Printer) Info(format string, args ...interface{}) { p.line(levelInfo, format, args) }

// Warning reports something the user should look at.
func (p *Printer) Warning(format string, args ...interface{}) { p.line(levelWarning, format, args) }

// Error writes to the error stream.
func (p *Printer) Error(format string, args ...interface{}) { p.line(levelError, format, args) }

// Header prints a boxed title.
func (p *Printer) Header(title, subtitle string) {
	box := lipgloss.NewStyle().
		Width(p.width).
		Align(lipgloss.Center).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Center, titleStyle.Render(title), mutedStyle.Render(subtitle)))
	fmt.Fprintf(p.out, "%s\n\n", box)
}

// Section prints an underlined heading, used per app and per table.
func (p *Printer) Section(title string) {
	fmt.Fprintln(p.out, sectionStyle.Width(p.width).Render(title))
}

// Table prints rows under a header row.
func (p *Printer) Table(headers []string, rows [][]string) error {
	data := append(pterm.TableData{headers}, rows...)
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.out, s)
	return err
}

// Markdown renders content for the terminal.
func (p *Printer) Markdown(content string) error {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(p.width))
	if err != nil {
		return err
	}
	out, err := r.Render(content)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(p.out, out)
	return err
}

// SQL prints statements in a bordered block labelled with the provider.
func (p *Printer) SQL(provider, sql string) {
	if provider != "" {
		fmt.Fprintln(p.out, mutedStyle.Render(" "+provider+" "))
	}
	fmt.Fprintln(p.out, sqlStyle.Width(p.width).Render(strings.TrimRight(sql, "\n")))
}

// PrintError writes an error line to stderr.
func PrintError(format string, args ...interface{}) { std.Error(format, args...) }

// NewLogger returns a structured logger writing to w at the named level
// (trace, debug, info, warn or error).
func NewLogger(level string, w io.Writer) *pterm.Logger {
	lvl := pterm.LogLevelInfo
	switch level {
	case "trace":
		lvl = pterm.LogLevelTrace
	case "debug":
		lvl = pterm.LogLevelDebug
	case "warn", "warning":
		lvl = pterm.LogLevelWarn
	case "error":
		lvl = pterm.LogLevelError
	}
	return pterm.DefaultLogger.WithLevel(lvl).WithWriter(w)
}

// StatusMark renders the applied column of showmigrations.
func StatusMark(applied bool) string {
	if applied {
		return color.New(color.FgGreen, color.Bold).Sprint("[X]")
	}
	return color.New(color.FgYellow, color.Bold).Sprint("[ ]")
}

// Highlight colors a note that needs attention.
func Highlight(s string) string {
	return color.New(color.FgRed, color.Bold).Sprint(s)
}
