// Package display renders batch progress, failure reports and tables for a
// terminal.
package display

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
)

// ColorMode selects when ANSI styling is emitted.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ParseColorMode parses a color mode, treating an empty string as auto.
func ParseColorMode(s string) (ColorMode, error) {
	switch ColorMode(strings.ToLower(strings.TrimSpace(s))) {
	case ColorAuto, "":
		return ColorAuto, nil
	case ColorAlways:
		return ColorAlways, nil
	case ColorNever:
		return ColorNever, nil
	default:
		return "", fmt.Errorf("invalid color mode: %q (valid: auto, always, never)", s)
	}
}

const (
	ansiReset     = "\033[0m"
	ansiBold      = "\033[1m"
	ansiUnderline = "\033[4m"
	ansiRed       = "\033[31m"
	ansiGreen     = "\033[32m"
	ansiYellow    = "\033[33m"
	ansiBlue      = "\033[34m"
	ansiGrey      = "\033[90m"
)

// Theme is an immutable set of styles. The zero value prints plain text.
type Theme struct {
	color  bool
	live   bool
	accent string
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewTheme builds a theme. terminal tells whether the output is interactive;
// it decides color in auto mode and whether the progress bar redraws in
// place. accent is an optional "#RRGGBB" color for the progress bar and
// highlights.
func NewTheme(mode ColorMode, accent string, terminal bool) (Theme, error) {
	t := Theme{live: terminal, accent: ansiGreen}

	switch mode {
	case ColorAlways:
		t.color = true
	case ColorNever:
		t.color = false
	case ColorAuto, "":
		t.color = terminal
	default:
		return Theme{}, fmt.Errorf("invalid color mode: %q", mode)
	}

	if accent != "" {
		r, g, b, err := ParseAccent(accent)
		if err != nil {
			return Theme{}, err
		}
		t.accent = fmt.Sprintf("\033[38;2;%d;%d;%dm", r, g, b)
	}
	return t, nil
}

// ParseAccent parses a "#RRGGBB" color.
func ParseAccent(s string) (r, g, b uint8, err error) {
	hex, ok := strings.CutPrefix(s, "#")
	if !ok || len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid accent color %q: want #RRGGBB", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid accent color %q: %w", s, err)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}

// Color reports whether styles produce escape sequences.
func (t Theme) Color() bool { return t.color }

// Live reports whether the progress bar redraws in place.
func (t Theme) Live() bool { return t.live }

func (t Theme) paint(s string, codes ...string) string {
	if !t.color || len(codes) == 0 {
		return s
	}
	return strings.Join(codes, "") + s + ansiReset
}

func (t Theme) Accent(s string) string  { return t.paint(s, t.accent) }
func (t Theme) Success(s string) string { return t.paint(s, ansiGreen) }
func (t Theme) Warning(s string) string { return t.paint(s, ansiYellow) }
func (t Theme) Error(s string) string   { return t.paint(s, ansiRed) }
func (t Theme) Muted(s string) string   { return t.paint(s, ansiGrey) }
func (t Theme) Bold(s string) string    { return t.paint(s, ansiBold) }
func (t Theme) Link(s string) string    { return t.paint(s, ansiBlue, ansiUnderline) }
func (t Theme) Label(s string) string   { return t.paint(s, ansiGrey, ansiBold) }
