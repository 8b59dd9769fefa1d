package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// styles colours command output. Writers that are not terminals get plain text.
type styles struct {
	header  lipgloss.Style
	assign  lipgloss.Style
	failed  lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		assign:  r.NewStyle().Foreground(lipgloss.Color("14")),
		failed:  r.NewStyle().Foreground(lipgloss.Color("9")),
		muted:   r.NewStyle().Foreground(lipgloss.Color("240")),
		success: r.NewStyle().Foreground(lipgloss.Color("10")),
	}
}
