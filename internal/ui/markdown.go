package ui

import (
	"charm.land/glamour/v2"
)

// RenderMarkdown renders a description through glamour, word-wrapped to
// the terminal width. Falls back to the raw text when styling is off or
// rendering fails.
func RenderMarkdown(markdown string) string {
	if PlainMode() || !ShouldUseColor() {
		return markdown
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(Width()),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}
