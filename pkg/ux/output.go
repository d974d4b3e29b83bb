// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux styles familytree terminal output.
//
// A Printer writes styled lines in Rich mode, undecorated lines in Plain
// mode and prefixed, parseable lines in Machine mode. DetectMode picks
// Machine when stdout is not a terminal so that scripts see stable text.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles are the shared lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Selected  lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorWarning).Bold(true),
	Selected:  lipgloss.NewStyle().Foreground(ColorTealBright).Underline(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// Render returns the icon in its status color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Mode controls how much decoration a Printer adds.
type Mode string

const (
	ModeRich    Mode = "rich"
	ModePlain   Mode = "plain"
	ModeMachine Mode = "machine"
)

// ParseMode accepts rich, plain and machine plus their first letters.
// Anything else is Rich.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "p":
		return ModePlain
	case "machine", "m", "quiet", "q":
		return ModeMachine
	default:
		return ModeRich
	}
}

// DetectMode returns the mode named by FAMILYTREE_OUTPUT, or Machine when
// w is not a terminal, or Rich.
func DetectMode(w io.Writer) Mode {
	if env := os.Getenv("FAMILYTREE_OUTPUT"); env != "" {
		return ParseMode(env)
	}
	if !IsTerminal(w) {
		return ModeMachine
	}
	return ModeRich
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes status lines. Errors and warnings go to Err.
type Printer struct {
	Out  io.Writer
	Err  io.Writer
	Mode Mode
}

// NewPrinter returns a Printer over stdout and stderr in the detected mode.
func NewPrinter() *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr, Mode: DetectMode(os.Stdout)}
}

// Rich reports whether styling is enabled.
func (p *Printer) Rich() bool {
	return p.Mode == ModeRich
}

// Title prints a heading. Machine mode drops it.
func (p *Printer) Title(text string) {
	switch p.Mode {
	case ModeMachine:
	case ModePlain:
		fmt.Fprintln(p.Out, text)
	default:
		fmt.Fprintln(p.Out, Styles.Title.Render(text))
	}
}

// Success prints a completed action.
func (p *Printer) Success(text string) {
	switch p.Mode {
	case ModeMachine:
		fmt.Fprintf(p.Out, "OK: %s\n", text)
	case ModePlain:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(p.Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a non-fatal problem.
func (p *Printer) Warning(text string) {
	switch p.Mode {
	case ModeMachine:
		fmt.Fprintf(p.Err, "WARN: %s\n", text)
	case ModePlain:
		fmt.Fprintf(p.Err, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(p.Err, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints a failure.
func (p *Printer) Error(text string) {
	switch p.Mode {
	case ModeMachine:
		fmt.Fprintf(p.Err, "ERROR: %s\n", text)
	case ModePlain:
		fmt.Fprintf(p.Err, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(p.Err, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if p.Mode == ModeRich {
		fmt.Fprintf(p.Out, "%s %s\n", Styles.Muted.Render("│"), text)
		return
	}
	fmt.Fprintln(p.Out, text)
}

// Muted prints secondary text. Machine mode drops it.
func (p *Printer) Muted(text string) {
	switch p.Mode {
	case ModeMachine:
	case ModePlain:
		fmt.Fprintln(p.Out, text)
	default:
		fmt.Fprintln(p.Out, Styles.Muted.Render(text))
	}
}

// Box prints content under a title, boxed in Rich mode.
func (p *Printer) Box(title, content string) {
	content = strings.TrimRight(content, "\n")
	switch p.Mode {
	case ModeMachine:
		fmt.Fprintf(p.Out, "%s:\n%s\n", title, content)
	case ModePlain:
		fmt.Fprintf(p.Out, "%s\n%s\n", title, content)
	default:
		fmt.Fprintln(p.Out, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
	}
}

// Print writes text unchanged.
func (p *Printer) Print(text string) {
	fmt.Fprint(p.Out, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(p.Out)
	}
}
