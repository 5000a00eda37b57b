package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

type printStyles struct {
	header  lipgloss.Style
	passed  lipgloss.Style
	pending lipgloss.Style
	failed  lipgloss.Style
	dim     lipgloss.Style
}

func newPrintStyles() printStyles {
	return printStyles{
		header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		passed:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		pending: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		failed:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (s printStyles) status(status models.PromotionStatus) string {
	switch {
	case status.Passing():
		return s.passed.Render(string(status))
	case status == models.StatusFailed:
		return s.failed.Render(string(status))
	default:
		return s.pending.Render(string(status))
	}
}
