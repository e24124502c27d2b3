// Package ui renders tracker entities for the terminal.
package ui

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// PlainMode reports whether output should skip all styling, for piping
// into scripts. TRK_PLAIN=1 forces it on.
func PlainMode() bool {
	if os.Getenv("TRK_PLAIN") == "1" {
		return true
	}
	return !term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor honors NO_COLOR and the detected terminal profile.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if PlainMode() {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}

// Width returns the terminal width, capped for readability, with a
// fallback of 80 when stdout is not a terminal.
func Width() int {
	const maxReadable = 100
	w := 80
	if tw, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && tw > 0 {
		w = tw
	}
	if w > maxReadable {
		w = maxReadable
	}
	return w
}
