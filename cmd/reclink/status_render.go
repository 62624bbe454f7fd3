package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"reclink/internal/pipeline"
)

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
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

// renderSummary formats a run summary. withOutput adds the clustering and
// output rows that only link runs produce.
func renderSummary(s *pipeline.Summary, withOutput bool, colorize bool) string {
	lines := renderSectionHeader("reclink run "+s.RunID, colorize)

	modelLine := renderStatusLine("Model", statusOK, fmt.Sprintf("trained on %d examples", s.ModelExamples), colorize)
	if s.ReusedSettings {
		modelLine = renderStatusLine("Model", statusInfo, fmt.Sprintf("reused trained settings (%d examples)", s.ModelExamples), colorize)
	} else if s.ModelExamples == 0 {
		modelLine = renderStatusLine("Model", statusWarn, "trained on 0 examples; scores come from the prior", colorize)
	}
	lines = append(lines, modelLine)

	metrics := []count{
		{"Left records", s.LeftRecords},
		{"Right records", s.RightRecords},
	}
	if !s.ReusedSettings {
		metrics = append(metrics,
			count{"Prior labels", s.PriorLabels},
			count{"New labels", s.NewLabels},
			count{"Skipped pairs", s.Skipped},
		)
	}
	if withOutput {
		metrics = append(metrics,
			count{"Clusters", s.Clusters},
			count{"Clustered rows", s.ClusteredRows},
			count{"Output rows", s.OutputRows},
		)
	}
	lines = append(lines, renderCountTable("Metric", "Value", metrics))
	if withOutput {
		lines = append(lines, renderStatusLine("Output", statusOK, s.OutputPath, colorize))
	}
	return strings.Join(lines, "\n")
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
