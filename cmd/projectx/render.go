package main

import (
	"strings"
	"sync"

	"github.com/TNAHOM/project-x-ai-service/internal/mcp"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

var (
	rendererOnce sync.Once
	renderer     *glamour.TermRenderer
)

// renderMarkdown renders md for the terminal, or returns it unchanged when
// no renderer is available.
func renderMarkdown(md string) string {
	rendererOnce.Do(func() {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
	})
	if renderer == nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

func statusStyle(s mcp.ServerStatus) lipgloss.Style {
	switch s {
	case mcp.ServerStatusConnected:
		return okStyle
	case mcp.ServerStatusError:
		return errStyle
	default:
		return warnStyle
	}
}

func outcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "ok":
		return okStyle
	case "incomplete", "session_unavailable":
		return warnStyle
	default:
		return errStyle
	}
}
