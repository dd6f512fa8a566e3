// Package ui holds terminal presentation helpers for the prov CLI.
package ui

import "fmt"

// ANSI256 color codes.
const (
	colorIntact    = 114 // green
	colorViolation = 203 // red
	colorMuted     = 245 // medium gray
)

var noColor bool

// RenderIntact returns s in green, used for intact verdicts.
func RenderIntact(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorIntact, s)
}

// RenderViolation returns s in red, used for tamper verdicts.
func RenderViolation(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorViolation, s)
}

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", colorMuted, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
