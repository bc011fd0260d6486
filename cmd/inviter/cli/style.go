// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Tone colors a line of output.
type Tone int

const (
	TonePlain Tone = iota
	ToneOK
	ToneWarn
	ToneFail
	ToneMuted
)

// Printer writes styled command output. Colors follow the writer: a
// pipe or file gets plain text.
type Printer struct {
	w       io.Writer
	heading lipgloss.Style
	tones   map[Tone]lipgloss.Style
}

// NewPrinter styles output for w.
func NewPrinter(w io.Writer) *Printer {
	renderer := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		heading: renderer.NewStyle().Bold(true),
		tones: map[Tone]lipgloss.Style{
			TonePlain: renderer.NewStyle(),
			ToneOK:    renderer.NewStyle().Foreground(lipgloss.Color("2")),
			ToneWarn:  renderer.NewStyle().Foreground(lipgloss.Color("3")),
			ToneFail:  renderer.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
			ToneMuted: renderer.NewStyle().Foreground(lipgloss.Color("8")),
		},
	}
}

// Heading writes a bold line.
func (p *Printer) Heading(format string, args ...any) {
	fmt.Fprintln(p.w, p.heading.Render(fmt.Sprintf(format, args...)))
}

// Line writes a line in tone.
func (p *Printer) Line(tone Tone, format string, args ...any) {
	fmt.Fprintln(p.w, p.tones[tone].Render(fmt.Sprintf(format, args...)))
}

// Item writes an indented list entry with a muted detail column.
func (p *Printer) Item(text, detail string) {
	if detail == "" {
		fmt.Fprintf(p.w, "  %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "  %s  %s\n", text, p.tones[ToneMuted].Render(detail))
}
