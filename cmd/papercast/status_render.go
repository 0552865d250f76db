package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"papercast/internal/jobs"
)

// statusKind selects the tag and color for a status line.
type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
)

const statusIndent = "  "

var statusTags = map[statusKind]string{
	statusInfo:  "INFO",
	statusOK:    "OK",
	statusWarn:  "WARN",
	statusError: "ERROR",
}

var statusColors = map[statusKind]string{
	statusInfo:  ansiCyan,
	statusOK:    ansiGreen,
	statusWarn:  ansiYellow,
	statusError: ansiRed,
}

// renderStatusLine prints one "Label: [TAG] detail" row. Only the tag is
// colored so artifact paths and error text stay readable when copied.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	tag := "[" + statusTags[kind] + "]"
	if colorize {
		tag = statusColors[kind] + tag + ansiReset
	}
	line := fmt.Sprintf("%s%-18s %s", statusIndent, label+":", tag)
	if message != "" {
		line += " " + message
	}
	return line
}

// jobStatusKind maps an episode job status to a display kind.
func jobStatusKind(status string) statusKind {
	switch jobs.Status(status) {
	case jobs.StatusCompleted:
		return statusOK
	case jobs.StatusFailed:
		return statusError
	default:
		return statusInfo
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := strings.TrimSpace(title)
	rule := strings.Repeat("─", len([]rune(line)))
	if colorize {
		line = ansiCyan + line + ansiReset
		rule = ansiCyan + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
