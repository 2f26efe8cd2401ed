package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
)

// Message is a structured CLI error or warning
type Message struct {
	Level       Level
	Context     string
	Problem     string
	Suggestions []string
	Help        []string
	NoColor     bool
}

// Format renders a message.
//
// Example output:
//
//	✗ RESOURCE NOT FOUND: Cannot find resource 'widgts'.
//
//	   Did you mean: widgets?
//
//	   → See all resources: datarest resources
func Format(m Message) string {
	var b strings.Builder

	header := color.New(color.FgRed, color.Bold)
	symbol := "✗"
	if m.Level == LevelWarning {
		header = color.New(color.FgYellow, color.Bold)
		symbol = "!"
	}
	suggest := color.New(color.FgYellow)
	help := color.New(color.FgCyan)
	if m.NoColor {
		header.DisableColor()
		suggest.DisableColor()
		help.DisableColor()
	}

	if m.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}

	if len(m.Suggestions) > 0 {
		b.WriteString("\n")
		suggest.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}

	if len(m.Help) > 0 {
		b.WriteString("\n")
		for _, line := range m.Help {
			help.Fprintf(&b, "   → %s\n", line)
		}
	}

	return b.String()
}

// Write writes a formatted message to w
func Write(w io.Writer, m Message) {
	fmt.Fprint(w, Format(m))
}

// FormatSuccess renders a success line
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success line to w
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// ResourceNotFound reports an unknown resource with close matches among known
func ResourceNotFound(name string, known []string, noColor bool) string {
	return Format(Message{
		Level:       LevelError,
		Context:     "resource not found",
		Problem:     fmt.Sprintf("Cannot find resource '%s'.", name),
		Suggestions: FindSimilar(name, known, 0),
		Help: []string{
			"See all resources: datarest resources",
		},
		NoColor: noColor,
	})
}

// ConfigError reports an invalid configuration
func ConfigError(err error, noColor bool) string {
	return Format(Message{
		Level:   LevelError,
		Context: "configuration error",
		Problem: err.Error(),
		Help: []string{
			"Generate a config: datarest init",
			"Get help: datarest --help",
		},
		NoColor: noColor,
	})
}
